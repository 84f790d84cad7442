// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package cache

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/gazed/assetdb/id"
	"github.com/gazed/assetdb/source"
)

// LibraryFileName is the library's persisted location under the cache
// root (spec §6).
const LibraryFileName = "assets.lib"

// Library is the persisted bijection between AssetPaths and ErasedIds
// (spec §3, invariant 1). All mutation happens while the pipeline holds
// the database's writer lease; reads take the many-reader side of the
// same lock (spec §4.7.4) — enforced by the caller, not by Library
// itself, which only guards its own map consistency.
type Library struct {
	mu        sync.RWMutex
	pathToID  map[string]id.ErasedId
	idToPath  map[id.ErasedId]id.AssetPath
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{
		pathToID: make(map[string]id.ErasedId),
		idToPath: make(map[id.ErasedId]id.AssetPath),
	}
}

// GetId resolves path to its ErasedId. ok is false if path has never
// been imported (or was since removed).
func (l *Library) GetId(path id.AssetPath) (aid id.ErasedId, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	aid, ok = l.pathToID[path.String()]
	return aid, ok
}

// GetPath resolves an ErasedId back to the path it was imported from.
func (l *Library) GetPath(aid id.ErasedId) (path id.AssetPath, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	path, ok = l.idToPath[aid]
	return path, ok
}

// Put inserts or overwrites the path<->id pair. Callers must ensure
// neither side of the bijection is already bound to a different
// partner — Put does not itself enforce invariant 1 beyond keeping its
// two maps in lockstep for the given pair.
func (l *Library) Put(path id.AssetPath, aid id.ErasedId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pathToID[path.String()] = aid
	l.idToPath[aid] = path
}

// Remove drops the entry for aid, if present.
func (l *Library) Remove(aid id.ErasedId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if path, ok := l.idToPath[aid]; ok {
		delete(l.pathToID, path.String())
		delete(l.idToPath, aid)
	}
}

// Len returns the number of entries currently bound.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.idToPath)
}

// librarySnapshot is the on-disk form: a plain list round-trips through
// jsoniter more predictably than two parallel maps keyed by a struct.
type librarySnapshot struct {
	Entries []libraryEntry `json:"entries"`
}

type libraryEntry struct {
	Path id.AssetPath `json:"path"`
	ID   id.ErasedId  `json:"id"`
}

// Save persists the library to LibraryFileName under root.
func (l *Library) Save(ctx context.Context, root source.Source) error {
	l.mu.RLock()
	snap := librarySnapshot{Entries: make([]libraryEntry, 0, len(l.idToPath))}
	for aid, path := range l.idToPath {
		snap.Entries = append(snap.Entries, libraryEntry{Path: path, ID: aid})
	}
	l.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "cache: encoding library")
	}
	w, err := root.Writer(ctx, LibraryFileName)
	if err != nil {
		return errors.Wrap(err, "cache: opening library for write")
	}
	defer w.Close()
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "cache: writing library")
	}
	return nil
}

// LoadLibrary reads a previously persisted library from root. A
// missing library file is not an error — it means this is the first
// import() run against an empty cache — and yields an empty Library.
func LoadLibrary(ctx context.Context, root source.Source) (*Library, error) {
	exists, err := root.Exists(ctx, LibraryFileName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return NewLibrary(), nil
	}
	r, err := root.Reader(ctx, LibraryFileName)
	if err != nil {
		return nil, errors.Wrap(err, "cache: opening library")
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "cache: reading library")
	}
	var snap librarySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, "cache: decoding library")
	}
	lib := NewLibrary()
	for _, e := range snap.Entries {
		lib.Put(e.Path, e.ID)
	}
	return lib, nil
}
