// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package source abstracts the named filesystem roots that raw asset
// files live in. It generalizes the teacher's load.Locator (which only
// ever read, from either disk or an embedded zip) into a full
// read/write/list trait: the pipeline needs to write staging and
// finalized artifacts as well as read source bytes.
package source

import (
	"context"
	"io"
)

// Source is a named filesystem root offering the operations the import
// pipeline and the cache need. Every method takes a context so the
// caller can cancel a scan or a load at a suspension point, mirroring
// the teacher's "expected to run as a goroutine" loader idiom generalized
// with explicit cancellation instead of implicit goroutine lifetime.
//
// Implementations must be safe under concurrent readers (spec §4.2);
// writers may assume the caller serializes them — the pipeline only
// ever mutates a Source while holding the database's writer lease.
type Source interface {
	// Name is the source root's registered name; "" names the default
	// root used when an AssetPath carries no explicit source.
	Name() string

	// Reader opens path for sequential reading. The caller must Close it.
	Reader(ctx context.Context, path string) (io.ReadCloser, error)

	// Writer opens path for writing, creating or truncating it.
	// The caller must Close it to flush the write.
	Writer(ctx context.Context, path string) (io.WriteCloser, error)

	// ReadDir lists the immediate entries of a directory, relative to
	// the source root. Returns (nil, nil) style iteration is avoided in
	// favor of a plain slice — asset source trees are not expected to
	// be large enough to need a streaming API.
	ReadDir(ctx context.Context, path string) ([]DirEntry, error)

	// IsDir reports whether path names a directory.
	IsDir(ctx context.Context, path string) (bool, error)

	// Exists reports whether path names anything at all.
	Exists(ctx context.Context, path string) (bool, error)

	// Remove deletes the file at path. Removing a path that does not
	// exist is not an error.
	Remove(ctx context.Context, path string) error

	// RemoveDir recursively deletes the directory at path.
	RemoveDir(ctx context.Context, path string) error

	// Rename moves oldPath to newPath, creating newPath's parent
	// directories as needed.
	Rename(ctx context.Context, oldPath, newPath string) error

	// CreateDirAll ensures path and all of its parents exist.
	CreateDirAll(ctx context.Context, path string) error
}

// DirEntry is one immediate child of a directory listed by ReadDir.
type DirEntry struct {
	Name  string // entry name, not a full path.
	IsDir bool
}
