// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package registry

import (
	"context"

	"github.com/pkg/errors"

	"github.com/gazed/assetdb/cache"
	"github.com/gazed/assetdb/id"
	"github.com/gazed/assetdb/source"
)

// ChildAsset is one child emitted by an importer via
// ImportContext.AddChild (spec §4.6.3 step 4).
type ChildAsset struct {
	ID    id.ErasedId
	Path  id.AssetPath
	Type  id.AssetType
	Asset Asset
}

// ImportContext is handed to an Importer's Import function (spec §4.6.3
// step 3): it carries everything the importer needs to resolve its own
// identity, read sibling source files, and emit child assets.
type ImportContext struct {
	Source   source.Source
	Registry *Registry
	Path     id.AssetPath
	ID       id.ErasedId
	AssetType id.AssetType

	// processorOverride is set by UseProcessor; "" means no override.
	processorOverride string
	children          []ChildAsset
}

// NewImportContext constructs the context an importer runs under for a
// single source file.
func NewImportContext(src source.Source, reg *Registry, path id.AssetPath, aid id.ErasedId, at id.AssetType) *ImportContext {
	return &ImportContext{Source: src, Registry: reg, Path: path, ID: aid, AssetType: at}
}

// AddChild derives name's child ID from ictx.ID (spec §4.1 child_id)
// and buffers it as a child of the primary asset being imported (spec
// §4.6.3 step 4).
func (ictx *ImportContext) AddChild(name string, asset Asset, at id.AssetType) id.ErasedId {
	childID := id.ChildId(ictx.ID, name)
	ictx.children = append(ictx.children, ChildAsset{
		ID:    childID,
		Path:  ictx.Path.WithName(name),
		Type:  at,
		Asset: asset,
	})
	return childID
}

// Children returns the child assets buffered so far via AddChild.
func (ictx *ImportContext) Children() []ChildAsset { return ictx.children }

// UseProcessor declares a non-default processor by name for the
// primary asset being imported (spec §4.6.3 step 4, §4.6.4 "the
// explicit one recorded by the importer").
func (ictx *ImportContext) UseProcessor(name string) { ictx.processorOverride = name }

// ProcessorOverride returns the processor name declared via
// UseProcessor, or "" if none was declared.
func (ictx *ImportContext) ProcessorOverride() string { return ictx.processorOverride }

// ProcessContext is handed to a Processor's Process function (spec
// §4.6.4 step 1): it exposes the library and cache so a processor can
// load its own dependencies by path or ID, accumulating each into
// Dependencies with the full_checksum it had at load time.
type ProcessContext struct {
	ctx     context.Context
	library *cache.Library
	store   *cache.Cache
	Path    id.AssetPath
	AssetType id.AssetType

	dependencies []cache.DependencyChecksum
}

// NewProcessContext constructs the context a processor runs under.
func NewProcessContext(ctx context.Context, library *cache.Library, store *cache.Cache, path id.AssetPath, at id.AssetType) *ProcessContext {
	return &ProcessContext{ctx: ctx, library: library, store: store, Path: path, AssetType: at}
}

// ErrDependencyNotFound is returned by LoadDependency/LoadDependencyByID
// when the requested asset has no finalized artifact yet. A processor
// should only ever reference dependencies already processed earlier in
// the DAG's topological order (spec §5, "process(a) commits... before
// process(b) begins").
var ErrDependencyNotFound = errors.New("registry: dependency has no finalized artifact")

// LoadDependency resolves path via the library, reads its finalized
// metadata, and appends it to the accumulator, returning the
// dependency's bytes.
func (pctx *ProcessContext) LoadDependency(path id.AssetPath) ([]byte, error) {
	depID, ok := pctx.library.GetId(path)
	if !ok {
		return nil, errors.Wrapf(ErrDependencyNotFound, "path %s", path)
	}
	return pctx.LoadDependencyByID(depID)
}

// LoadDependencyByID reads depID's finalized artifact, appends it (with
// its current full_checksum) to the accumulator, and returns its bytes.
func (pctx *ProcessContext) LoadDependencyByID(depID id.ErasedId) ([]byte, error) {
	artifact, err := pctx.store.ReadArtifact(pctx.ctx, cache.Artifacts, depID)
	if err != nil {
		return nil, errors.Wrapf(ErrDependencyNotFound, "id %s: %s", depID, err)
	}
	pctx.dependencies = append(pctx.dependencies, cache.DependencyChecksum{
		ID:           depID,
		FullChecksum: artifact.Metadata.Import.FullChecksum,
	})
	return artifact.Data, nil
}

// Dependencies returns every dependency accumulated so far via
// LoadDependency/LoadDependencyByID.
func (pctx *ProcessContext) Dependencies() []cache.DependencyChecksum { return pctx.dependencies }
