// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package pipeline

import (
	"bytes"
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/gazed/assetdb/cache"
	"github.com/gazed/assetdb/id"
	"github.com/gazed/assetdb/registry"
	"github.com/gazed/assetdb/source"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// importOne implements spec §4.6.3: locate an importer, resolve
// settings, run the importer, checksum the result, and write the
// primary artifact and any children into the staging area. Nodes and
// edges for the run's dependency DAG are recorded under run.mu since
// multiple imports run concurrently within a pass.
func (p *Pipeline) importOne(ctx context.Context, sp scanned, r *run) error {
	imp, ok := p.reg.ImporterForExtension(extOf(sp.path))
	if !ok {
		return errors.Wrapf(ErrNoImporter, "%s", sp.path)
	}
	src := p.sources[sp.source]

	aid, settings, err := resolveSettings(ctx, src, sp.path, imp)
	if err != nil {
		return errors.Wrapf(err, "pipeline: resolving settings for %s", sp.path)
	}

	sourceBytes, err := readAll(ctx, src, sp.path.Path)
	if err != nil {
		return errors.Wrapf(err, "pipeline: reading %s", sp.path)
	}

	ictx := registry.NewImportContext(src, p.reg, sp.path, aid, imp.AssetType)
	asset, err := imp.Import(ctx, ictx, bytes.NewReader(sourceBytes), settings)
	if err != nil {
		return errors.Wrapf(err, "pipeline: importer %s failed on %s", imp.Name, sp.path)
	}

	settingsBytes, err := json.Marshal(settings)
	if err != nil {
		return errors.Wrapf(err, "pipeline: encoding settings for %s", sp.path)
	}
	checksum := cache.Checksum(sourceBytes, settingsBytes)

	if err := source.WriteFileMeta(ctx, src, sp.path.Path, source.FileMeta{
		ID:       aid,
		Settings: settingsBytes,
	}); err != nil {
		return errors.Wrapf(err, "pipeline: writing meta for %s", sp.path)
	}

	children := ictx.Children()
	childIDs := make([]id.ErasedId, len(children))
	for i, c := range children {
		childIDs[i] = c.ID
	}

	data, err := asset.Encode()
	if err != nil {
		return errors.Wrapf(err, "pipeline: encoding asset %s", sp.path)
	}

	primary := cache.Artifact{
		Metadata: cache.ArtifactMetadata{
			ID:   aid,
			Type: imp.AssetType,
			Path: sp.path,
			Import: cache.ImportInfo{
				ProcessorID: ictx.ProcessorOverride(),
				Checksum:    checksum,
			},
			DependencyIDs: asset.References(),
			ChildIDs:      childIDs,
		},
		Data: data,
	}
	if err := p.store.SaveArtifact(ctx, cache.Staging, primary); err != nil {
		return errors.Wrapf(err, "pipeline: staging artifact for %s", sp.path)
	}

	for _, c := range children {
		childData, err := c.Asset.Encode()
		if err != nil {
			return errors.Wrapf(err, "pipeline: encoding child %s of %s", c.Path, sp.path)
		}
		parentID := aid
		child := cache.Artifact{
			Metadata: cache.ArtifactMetadata{
				ID:            c.ID,
				Type:          c.Type,
				Path:          c.Path,
				Import:        cache.ImportInfo{Checksum: checksum},
				DependencyIDs: c.Asset.References(),
				ParentID:      &parentID,
			},
			Data: childData,
		}
		if err := p.store.SaveArtifact(ctx, cache.Staging, child); err != nil {
			return errors.Wrapf(err, "pipeline: staging child artifact %s", c.Path)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.graph.AddNode(aid)
	r.staged[aid] = sp.path
	for _, dep := range asset.References() {
		r.graph.AddDependency(dep, aid) // dependencies processed before the artifact that needs them.
	}
	for _, c := range children {
		r.graph.AddNode(c.ID)
		r.staged[c.ID] = c.Path
		r.graph.AddDependency(c.ID, aid) // children processed before their parent (spec §4.6.3 step 9).
	}
	return nil
}

// resolveSettings loads the sidecar meta for path, if any, returning
// its recorded ID and deserialized settings; otherwise it mints a new
// ID and the importer's default settings (spec §4.6.3 step 2).
func resolveSettings(ctx context.Context, src source.Source, assetPath id.AssetPath, imp *registry.Importer) (id.ErasedId, registry.Settings, error) {
	fileMeta, err := source.ReadFileMeta(ctx, src, assetPath.Path)
	if err != nil {
		return id.NewErasedId(), imp.DefaultSettings(), nil
	}
	settings, err := imp.DeserializeSettings(fileMeta.Settings)
	if err != nil {
		return id.Nil, nil, errors.Wrapf(err, "pipeline: deserializing settings for %s", assetPath)
	}
	return fileMeta.ID, settings, nil
}
