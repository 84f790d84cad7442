// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/gazed/assetdb/cache"
	"github.com/gazed/assetdb/event"
	"github.com/gazed/assetdb/id"
	"github.com/gazed/assetdb/registry"
	"github.com/gazed/assetdb/source"
)

// processOne implements spec §4.6.4: read the staged artifact, run its
// processor (explicit, default, or pass-through), recompute
// full_checksum, and commit the finalized artifact into cache/artifacts.
func (p *Pipeline) processOne(ctx context.Context, aid id.ErasedId, assetPath id.AssetPath) error {
	artifact, err := p.store.ReadArtifact(ctx, cache.Staging, aid)
	if err != nil {
		return errors.Wrapf(err, "pipeline: reading staged artifact %s", aid)
	}

	proc := p.resolveProcessor(artifact.Metadata)
	var deps []cache.DependencyChecksum
	if proc != nil {
		pctx := registry.NewProcessContext(ctx, p.library, p.store, assetPath, artifact.Metadata.Type)
		output, err := proc.Process(ctx, pctx, artifact.Data)
		if err != nil {
			return errors.Wrapf(err, "pipeline: processor %s failed on %s", proc.Name, assetPath)
		}
		artifact.Metadata.Type = proc.OutputType
		artifact.Data = output
		deps = pctx.Dependencies()
		artifact.Metadata.DependencyIDs = mergeDependencyIDs(artifact.Metadata.DependencyIDs, deps)
	} else {
		deps, err = pinDependencies(ctx, p.store, artifact.Metadata.DependencyIDs)
		if err != nil {
			return errors.Wrapf(err, "pipeline: pinning dependency checksums for %s", assetPath)
		}
	}

	depFull := make([]uint64, len(deps))
	for i, d := range deps {
		depFull[i] = d.FullChecksum
	}
	artifact.Metadata.Import.Dependencies = deps
	artifact.Metadata.Import.FullChecksum = cache.CombineFullChecksum(artifact.Metadata.Import.Checksum, depFull)

	if err := p.store.SaveArtifact(ctx, cache.Artifacts, artifact); err != nil {
		return errors.Wrapf(err, "pipeline: committing artifact %s", assetPath)
	}
	p.library.Put(assetPath, aid)

	if !assetPath.IsChild() {
		if src, ok := p.sources[assetPath.Source]; ok {
			if err := updateFileMetaChecksums(ctx, src, assetPath.Path, artifact.Metadata.Import); err != nil {
				return errors.Wrapf(err, "pipeline: updating meta for %s", assetPath)
			}
		}
	}

	p.bus.Publish(event.Event{Kind: event.AssetAdded, ID: aid, Path: assetPath, Type: artifact.Metadata.Type})
	return nil
}

// resolveProcessor picks the processor for meta, per spec §4.6.4: the
// explicit one recorded by the importer, else the registered default
// for the asset type, else nil (pass-through).
func (p *Pipeline) resolveProcessor(meta cache.ArtifactMetadata) *registry.Processor {
	if meta.Import.ProcessorID != "" {
		if proc, ok := p.reg.ProcessorByName(meta.Import.ProcessorID); ok {
			return proc
		}
	}
	if proc, ok := p.reg.DefaultProcessor(meta.Type); ok {
		return proc
	}
	return nil
}

// pinDependencies reads each dependency's finalized FullChecksum,
// pinning it the same way a processor would via LoadDependencyByID —
// used for pass-through artifacts, which have no processor to do the
// accumulation themselves.
func pinDependencies(ctx context.Context, store *cache.Cache, depIDs []id.ErasedId) ([]cache.DependencyChecksum, error) {
	pinned := make([]cache.DependencyChecksum, len(depIDs))
	for i, depID := range depIDs {
		meta, err := store.ReadMetadata(ctx, cache.Artifacts, depID)
		if err != nil {
			return nil, err
		}
		pinned[i] = cache.DependencyChecksum{ID: depID, FullChecksum: meta.Import.FullChecksum}
	}
	return pinned, nil
}

// mergeDependencyIDs unions the importer-declared dependency ids with
// whatever a processor additionally loaded, preserving invariant 3
// (every dependency an artifact names must exist in cache/).
func mergeDependencyIDs(declared []id.ErasedId, loaded []cache.DependencyChecksum) []id.ErasedId {
	seen := make(map[id.ErasedId]bool, len(declared))
	merged := make([]id.ErasedId, 0, len(declared)+len(loaded))
	for _, d := range declared {
		if !seen[d] {
			seen[d] = true
			merged = append(merged, d)
		}
	}
	for _, l := range loaded {
		if !seen[l.ID] {
			seen[l.ID] = true
			merged = append(merged, l.ID)
		}
	}
	return merged
}

// updateFileMetaChecksums rewrites the sidecar meta's Checksum and
// FullChecksum fields to the values just committed, preserving its ID
// and Settings, so the next pass's skip check (spec §4.6.1 (d), (e))
// compares against this run's result rather than the pre-process one.
func updateFileMetaChecksums(ctx context.Context, src source.Source, path string, info cache.ImportInfo) error {
	fileMeta, err := source.ReadFileMeta(ctx, src, path)
	if err != nil {
		return err
	}
	fileMeta.Checksum = info.Checksum
	fileMeta.FullChecksum = info.FullChecksum
	return source.WriteFileMeta(ctx, src, path, fileMeta)
}
