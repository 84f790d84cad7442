// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package id defines the universal asset identifiers and paths used
// throughout the asset database: the 128-bit ErasedId, the typed wrapper
// TypedId[A], the interned AssetType tag, and the namespaced AssetPath.
//
// See asset_type.go for AssetType interning.
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErasedId is the universal, type-erased asset identity. It is stable
// across runs: the same source path always mints or resolves to the same
// ErasedId once it has been imported.
type ErasedId uuid.UUID

// Nil is the zero ErasedId, never assigned to a real asset.
var Nil = ErasedId(uuid.Nil)

// NewErasedId mints a fresh, random identity for a newly discovered
// source file. Called exactly once per path, the first time it is
// imported; subsequent imports reuse the id recorded in the sidecar
// meta file.
func NewErasedId() ErasedId { return ErasedId(uuid.New()) }

// String renders the canonical UUID text form.
func (id ErasedId) String() string { return uuid.UUID(id).String() }

// IsNil reports whether id is the zero value.
func (id ErasedId) IsNil() bool { return id == Nil }

// ParseErasedId parses the canonical UUID text form produced by String.
func ParseErasedId(s string) (ErasedId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: invalid ErasedId %q: %w", s, err)
	}
	return ErasedId(u), nil
}

// MarshalText implements encoding.TextMarshaler so ErasedId round-trips
// through jsoniter and yaml as a plain UUID string rather than a byte array.
func (id ErasedId) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ErasedId) UnmarshalText(text []byte) error {
	parsed, err := ParseErasedId(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ChildId deterministically derives the identity of a child asset emitted
// by an importer for parent, named name. The derivation is a UUIDv5 over
// the parent's raw bytes and the child's name bytes: it is idempotent,
// deterministic, and collision-free across distinct names under the same
// parent. See ImportContext.AddChild for the only caller.
func ChildId(parent ErasedId, name string) ErasedId {
	return ErasedId(uuid.NewSHA1(uuid.UUID(parent), []byte(name)))
}

// TypedId tags an ErasedId with the Go asset type A it is expected to
// deserialize to. It carries no runtime weight beyond the wrapped
// ErasedId; the type parameter only records A at compile time.
// load.Manager itself takes and returns plain ErasedIds.
type TypedId[A any] struct {
	id ErasedId
}

// NewTypedId wraps id as a TypedId[A]. The caller asserts that id names
// an asset which deserializes to A; nothing here checks that statically.
func NewTypedId[A any](id ErasedId) TypedId[A] { return TypedId[A]{id: id} }

// Erased discards the type tag, returning the underlying ErasedId.
func (t TypedId[A]) Erased() ErasedId { return t.id }

// String renders the underlying id's canonical UUID text form.
func (t TypedId[A]) String() string { return t.id.String() }

// AssetPath names a source file, optionally down to a child asset it
// produced on import. Textual form: "source://path/to/file@subname".
// Source is the empty string for the default/unnamed root.
type AssetPath struct {
	Source  string // named source root, or "" for the default root.
	Path    string // path relative to Source, using forward slashes.
	SubName string // child asset name, or "" for the primary asset.
}

// ParsePath splits str on "://" (source root) and "@" (child sub-name).
// A bare "path/to/file" is equivalent to "://path/to/file" — the default
// root, no sub-name.
func ParsePath(str string) (AssetPath, error) {
	rest := str
	source := ""
	if idx := strings.Index(rest, "://"); idx >= 0 {
		source = rest[:idx]
		rest = rest[idx+3:]
	}
	subName := ""
	if idx := strings.LastIndex(rest, "@"); idx >= 0 {
		subName = rest[idx+1:]
		rest = rest[:idx]
	}
	if rest == "" {
		return AssetPath{}, fmt.Errorf("id: empty path in %q", str)
	}
	return AssetPath{Source: source, Path: rest, SubName: subName}, nil
}

// String renders the canonical "source://path@sub" textual form.
func (p AssetPath) String() string {
	var b strings.Builder
	b.WriteString(p.Source)
	b.WriteString("://")
	b.WriteString(p.Path)
	if p.SubName != "" {
		b.WriteByte('@')
		b.WriteString(p.SubName)
	}
	return b.String()
}

// WithName returns a sibling path identifying a child asset of p, used
// when an importer emits a child under its primary asset's path.
func (p AssetPath) WithName(name string) AssetPath {
	return AssetPath{Source: p.Source, Path: p.Path, SubName: name}
}

// IsChild reports whether p names a child asset rather than a primary one.
func (p AssetPath) IsChild() bool { return p.SubName != "" }

// MetaPath returns the sidecar meta-file path for p's source file: the
// primary path with ".meta" appended. Child asset paths share their
// parent's meta file — they have no meta path of their own.
func (p AssetPath) MetaPath() string { return p.Path + ".meta" }
