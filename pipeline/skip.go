// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package pipeline

import (
	"context"
	"io"

	"github.com/gazed/assetdb/cache"
	"github.com/gazed/assetdb/id"
	"github.com/gazed/assetdb/source"
)

// skipCheck implements spec §4.6.1: a candidate file is skipped iff all
// five conditions hold. Any failure — including the absence of a prior
// import — means "not skipped, re-import".
func skipCheck(ctx context.Context, src source.Source, store *cache.Cache, library *cache.Library, assetPath id.AssetPath) (bool, error) {
	aid, ok := library.GetId(assetPath) // (a) library already maps the path to an ID.
	if !ok {
		return false, nil
	}

	fileMeta, err := source.ReadFileMeta(ctx, src, assetPath.Path) // (b) meta file exists.
	if err != nil {
		return false, nil
	}

	artifactMeta, err := store.ReadMetadata(ctx, cache.Artifacts, aid) // (c) artifact exists and parses.
	if err != nil {
		return false, nil
	}

	sourceBytes, err := readAll(ctx, src, assetPath.Path)
	if err != nil {
		return false, nil
	}
	checksum := cache.Checksum(sourceBytes, fileMeta.Settings) // (d) checksum matches.
	if checksum != fileMeta.Checksum {
		return false, nil
	}

	// (e) full_checksum matches. Recomputed from artifactMeta.Import.Dependencies,
	// not artifactMeta.DependencyIDs: the former is the exact id/full_checksum
	// pinning processOne committed Import.FullChecksum from, in the processor's
	// own load order; DependencyIDs is the separately-merged declared+loaded
	// id list and carries no guarantee of matching that order.
	depIDs := make([]id.ErasedId, len(artifactMeta.Import.Dependencies))
	for i, d := range artifactMeta.Import.Dependencies {
		depIDs[i] = d.ID
	}
	fullChecksum, err := store.FullChecksum(ctx, checksum, depIDs)
	if err != nil {
		return false, nil
	}
	return fullChecksum == fileMeta.FullChecksum, nil
}

// readAll drains a Source reader fully; every caller in this package
// needs the whole file in memory to compute a checksum or hand it to
// an importer.
func readAll(ctx context.Context, src source.Source, path string) ([]byte, error) {
	r, err := src.Reader(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
