// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package cache implements the two-tier content-addressed artifact
// store (spec §4.4): a transient "sources/" staging area artifacts
// pass through between import and process, and the final "artifacts/"
// tier that load() reads from. It also owns the persisted Library
// bijection (library.go) and the two stable hashes (checksum.go).
package cache

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/gazed/assetdb/id"
	"github.com/gazed/assetdb/source"
)

// Area names one of the cache's two tiers.
type Area int

const (
	// Artifacts is the finalized tier, "artifacts/<uuid>", read by load().
	Artifacts Area = iota
	// Staging is the transient tier, "sources/<uuid>", written by
	// importers and cleared at the end of every import() run.
	Staging
)

func (a Area) dir() string {
	if a == Staging {
		return "sources"
	}
	return "artifacts"
}

// Cache wraps the filesystem Source that backs the cache root: calling
// it a separate type (rather than exposing the raw Source) keeps the
// artifact binary layout and atomic-commit protocol in one place.
type Cache struct {
	root source.Source
}

// New wraps root as a content-addressed cache. root is expected to be
// empty or a previously used cache root; EnsureLayout creates the two
// tier directories if they don't exist yet.
func New(root source.Source) *Cache {
	return &Cache{root: root}
}

// Root returns the underlying Source, for callers (Library.Save/Load)
// that need direct access to the cache root rather than an artifact
// area.
func (c *Cache) Root() source.Source { return c.root }

// EnsureLayout creates cache/artifacts/ and cache/sources/ if absent
// (spec §4.6 step 2).
func (c *Cache) EnsureLayout(ctx context.Context) error {
	if err := c.root.CreateDirAll(ctx, Artifacts.dir()); err != nil {
		return errors.Wrap(err, "cache: creating artifacts area")
	}
	if err := c.root.CreateDirAll(ctx, Staging.dir()); err != nil {
		return errors.Wrap(err, "cache: creating staging area")
	}
	return nil
}

func artifactPath(area Area, aid id.ErasedId) string {
	return area.dir() + "/" + aid.String()
}

// SaveArtifact atomically writes artifact into area: it writes the full
// encoded form to a temporary name and renames it into place, matching
// spec §4.4's "write-to-temp-and-rename where supported" and the
// atomic-write convention used by the quad-ops ArtifactStore example.
func (c *Cache) SaveArtifact(ctx context.Context, area Area, artifact Artifact) error {
	data, err := Encode(artifact)
	if err != nil {
		return err
	}
	final := artifactPath(area, artifact.Metadata.ID)
	tmp := final + ".tmp"
	w, err := c.root.Writer(ctx, tmp)
	if err != nil {
		return errors.Wrapf(err, "cache: opening %s for write", tmp)
	}
	if _, werr := w.Write(data); werr != nil {
		w.Close()
		return errors.Wrapf(werr, "cache: writing %s", tmp)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "cache: closing %s", tmp)
	}
	if err := c.root.Rename(ctx, tmp, final); err != nil {
		return errors.Wrapf(err, "cache: committing %s", final)
	}
	return nil
}

// ReadArtifact reads and decodes the full artifact for aid from area.
func (c *Cache) ReadArtifact(ctx context.Context, area Area, aid id.ErasedId) (Artifact, error) {
	r, err := c.root.Reader(ctx, artifactPath(area, aid))
	if err != nil {
		return Artifact{}, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return Artifact{}, errors.Wrapf(err, "cache: reading artifact %s", aid)
	}
	return Decode(data)
}

// ReadMetadata reads only the metadata header for aid from area,
// without loading the asset payload (spec §4.4, §6).
func (c *Cache) ReadMetadata(ctx context.Context, area Area, aid id.ErasedId) (ArtifactMetadata, error) {
	r, err := c.root.Reader(ctx, artifactPath(area, aid))
	if err != nil {
		return ArtifactMetadata{}, err
	}
	defer r.Close()
	return DecodeMetadata(r)
}

// RemoveArtifact deletes the artifact for aid from area. A missing
// artifact is tolerated (spec §4.6.2 "missing artifacts during removal
// are tolerated").
func (c *Cache) RemoveArtifact(ctx context.Context, area Area, aid id.ErasedId) error {
	return c.root.Remove(ctx, artifactPath(area, aid))
}

// RemoveArea deletes every artifact under area, used to clear the
// staging tier at the end of import() (spec §4.6 step 4).
func (c *Cache) RemoveArea(ctx context.Context, area Area) error {
	return c.root.RemoveDir(ctx, area.dir())
}

// Exists reports whether an artifact for aid is present in area.
func (c *Cache) Exists(ctx context.Context, area Area, aid id.ErasedId) (bool, error) {
	return c.root.Exists(ctx, artifactPath(area, aid))
}

// FullChecksum recomputes full_checksum(checksum, deps) by reading only
// each dependency's metadata header from the Artifacts area (spec §3
// invariant 4, §4.4). Dependency order is preserved from depIDs so the
// combiner stays reproducible (spec §4.5).
func (c *Cache) FullChecksum(ctx context.Context, checksum uint32, depIDs []id.ErasedId) (uint64, error) {
	depFull := make([]uint64, len(depIDs))
	for i, dep := range depIDs {
		meta, err := c.ReadMetadata(ctx, Artifacts, dep)
		if err != nil {
			return 0, errors.Wrapf(err, "cache: reading dependency %s metadata", dep)
		}
		depFull[i] = meta.Import.FullChecksum
	}
	return CombineFullChecksum(checksum, depFull), nil
}
