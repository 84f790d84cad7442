// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package cache

import (
	"bytes"
	"encoding/binary"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/gazed/assetdb/id"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UnloadAction governs what the load manager does when the last
// reference to a Loaded asset is dropped (spec §4.7.3, §9). Enumerated
// here per spec §9's suggestion since the source material doesn't pin
// it down further.
type UnloadAction int

const (
	// Keep never unloads the asset once loaded; it stays resident for
	// the lifetime of the database.
	Keep UnloadAction = iota
	// UnloadIfUnreferenced drops the asset once its refcount reaches
	// zero.
	UnloadIfUnreferenced
	// UnloadAlways drops the asset on the first Release, regardless of
	// its remaining refcount.
	UnloadAlways
)

// DependencyChecksum pairs a dependency's id with the full_checksum it
// had at the time this asset was (re)imported — the snapshot the skip
// check (spec §4.6.1(e)) compares against on the next pass.
type DependencyChecksum struct {
	ID           id.ErasedId `json:"id"`
	FullChecksum uint64      `json:"full_checksum"`
}

// ImportInfo records how an artifact's current bytes came to be, per
// spec §3.
type ImportInfo struct {
	// ProcessorID names the processor that produced this artifact's
	// current bytes, or "" if the artifact is pass-through (no
	// processor ran).
	ProcessorID string `json:"processor_id,omitempty"`

	// Checksum covers only this asset's own source bytes and settings.
	Checksum uint32 `json:"checksum"`

	// FullChecksum transitively captures this asset's whole import
	// state: hash(Checksum ++ each dependency's FullChecksum).
	FullChecksum uint64 `json:"full_checksum"`

	// Dependencies is the accumulated list of assets this artifact's
	// processor loaded while processing, each pinned to the
	// full_checksum it had at that moment.
	Dependencies []DependencyChecksum `json:"dependencies,omitempty"`
}

// ArtifactMetadata is the per-artifact header stored ahead of an
// artifact's asset bytes (spec §3, §6).
type ArtifactMetadata struct {
	ID   id.ErasedId  `json:"id"`
	Type id.AssetType `json:"type"`
	Path id.AssetPath `json:"path"`

	Import ImportInfo `json:"import"`

	DependencyIDs []id.ErasedId `json:"dependency_ids,omitempty"`
	ChildIDs      []id.ErasedId `json:"child_ids,omitempty"`

	// ParentID is set for a child asset emitted by an importer; nil
	// for the primary asset of a source file.
	ParentID *id.ErasedId `json:"parent_id,omitempty"`

	// UnloadAction is nil when the registered asset type carries no
	// explicit policy, in which case the load manager falls back to
	// its registry default.
	UnloadAction *UnloadAction `json:"unload_action,omitempty"`
}

// Artifact is a self-describing binary blob: metadata plus the asset's
// serialized bytes.
type Artifact struct {
	Metadata ArtifactMetadata
	Data     []byte
}

// Encode renders a into the external binary form (spec §6):
// a 4-byte little-endian meta_length, the serialized ArtifactMetadata,
// then the raw asset bytes.
func Encode(a Artifact) ([]byte, error) {
	metaBytes, err := json.Marshal(a.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "cache: encoding artifact metadata")
	}
	var buf bytes.Buffer
	buf.Grow(4 + len(metaBytes) + len(a.Data))
	var lenBytes [4]byte
	binary.LittleEndian.PutUint32(lenBytes[:], uint32(len(metaBytes)))
	buf.Write(lenBytes[:])
	buf.Write(metaBytes)
	buf.Write(a.Data)
	return buf.Bytes(), nil
}

// Decode parses the full binary form produced by Encode.
func Decode(data []byte) (Artifact, error) {
	meta, body, err := decodeMetaPrefix(data)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Metadata: meta, Data: body}, nil
}

// DecodeMetadata reads only the metadata header from a stream, using
// the 4-byte length prefix to avoid loading the asset payload — the
// "metadata-only reads" path spec §4.4 and §6 call out explicitly.
func DecodeMetadata(r io.Reader) (ArtifactMetadata, error) {
	var lenBytes [4]byte
	if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
		return ArtifactMetadata{}, errors.Wrap(err, "cache: reading artifact meta_length")
	}
	metaLen := binary.LittleEndian.Uint32(lenBytes[:])
	metaBytes := make([]byte, metaLen)
	if _, err := io.ReadFull(r, metaBytes); err != nil {
		return ArtifactMetadata{}, errors.Wrap(err, "cache: reading artifact metadata")
	}
	var meta ArtifactMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return ArtifactMetadata{}, errors.Wrap(err, "cache: decoding artifact metadata")
	}
	return meta, nil
}

func decodeMetaPrefix(data []byte) (ArtifactMetadata, []byte, error) {
	if len(data) < 4 {
		return ArtifactMetadata{}, nil, errors.New("cache: artifact shorter than meta_length prefix")
	}
	metaLen := binary.LittleEndian.Uint32(data[:4])
	if uint32(len(data)) < 4+metaLen {
		return ArtifactMetadata{}, nil, errors.New("cache: artifact truncated before end of metadata")
	}
	var meta ArtifactMetadata
	if err := json.Unmarshal(data[4:4+metaLen], &meta); err != nil {
		return ArtifactMetadata{}, nil, errors.Wrap(err, "cache: decoding artifact metadata")
	}
	return meta, data[4+metaLen:], nil
}
