// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package registry is the type-erased plugin registry (spec §4.3):
// importers keyed by extension and asset type, processors keyed by
// input asset type, and per-type asset metadata hooks. It generalizes
// the teacher's closed set of hand-written loaders (load/obj.go,
// load/png.go, load/wav.go, ...) into an open, host-registered table,
// the way the teacher's own loader.go dispatches on file extension
// inside loadAsset but without a fixed switch statement.
package registry

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/gazed/assetdb/cache"
	"github.com/gazed/assetdb/id"
)

// Asset is the marker interface every importer-produced value
// satisfies. It is intentionally minimal — the registry, pipeline and
// load manager handle assets only through this interface; the module's
// one generic type is id.TypedId.
type Asset interface {
	// References returns the IDs of assets this asset depends on (spec
	// §4.6.3 step 6, "asking the asset for its references").
	References() []id.ErasedId

	// Encode renders the asset's own bytes for storage in a staging or
	// finalized artifact. Each importer's Asset implementation owns its
	// own wire form; the registry and pipeline never inspect it.
	Encode() ([]byte, error)
}

// Settings is the marker interface an importer's settings type
// satisfies. Settings values round-trip through the sidecar meta file
// (source.FileMeta.Settings) as raw JSON.
type Settings interface{}

// Importer turns source bytes into an Asset under some Settings (spec
// §4.3). Import receives an ImportContext so it can emit child assets
// and declare a non-default processor while it runs.
type Importer struct {
	// Name identifies the importer in error messages; it has no effect
	// on dispatch.
	Name string
	// Extensions lists the file extensions (without the leading dot,
	// lower-cased) this importer recognizes.
	Extensions []string
	// AssetType is the type the importer's primary asset is registered
	// under.
	AssetType id.AssetType

	// Import reads from r using settings and returns the primary asset.
	Import func(ctx context.Context, ictx *ImportContext, r io.Reader, settings Settings) (Asset, error)

	// DefaultSettings returns a fresh Settings value used when no sidecar
	// meta file exists yet (spec §4.6.3 step 2).
	DefaultSettings func() Settings

	// DeserializeSettings decodes a sidecar meta file's raw settings
	// bytes into a concrete Settings value.
	DeserializeSettings func(data []byte) (Settings, error)
}

// Processor transforms one asset type's bytes into another's (spec
// §4.3, §4.6.4).
type Processor struct {
	// Name identifies the processor for explicit lookup
	// (ProcessorByName, ImportContext.UseProcessor) and in error
	// messages; default lookup is keyed by InputType.
	Name string
	// InputType is the asset type this processor accepts.
	InputType id.AssetType
	// OutputType is the asset type this processor declares as its
	// product; the artifact's ArtifactMetadata.Type is rewritten to this
	// value after Process runs (spec §4.6.4 step 3).
	OutputType id.AssetType

	// Process transforms inputBytes into the output asset's bytes. It
	// may call pctx.LoadDependency / pctx.LoadDependencyByID, each call
	// appending to pctx's dependency accumulator.
	Process func(ctx context.Context, pctx *ProcessContext, inputBytes []byte) ([]byte, error)
}

// AssetMetadata is the per-registered-type hook set: deserialization
// for the load manager, and the type's default unload policy (spec
// §4.3, §4.7.3). It carries no publish-to-world hook: loaded assets
// reach the world through the load manager's WorldSink. The registry
// only stores and looks these entries up.
type AssetMetadata struct {
	// AssetType is the type these hooks are registered for.
	AssetType id.AssetType

	// Deserialize turns an artifact's raw bytes back into a runtime
	// Asset value, for load.Manager to hand to the world sink.
	Deserialize func(data []byte) (Asset, error)

	// DefaultUnloadAction is used when an artifact's ArtifactMetadata
	// carries no explicit override.
	DefaultUnloadAction cache.UnloadAction
}

// Registry holds every importer, processor, and asset-metadata
// registration. It is append-only in normal use (spec §4.3: "append-only
// after construction") — nothing here stops a caller from registering
// after startup, but the load/import paths assume the set is stable
// once they start running.
type Registry struct {
	types *id.Types

	importers       []*Importer          // in registration order, for first-match-by-extension lookup.
	importerByExt   map[string][]*Importer // extension -> importers recognizing it, registration order preserved.
	defaultProc     map[id.AssetType]*Processor
	procByName      map[string]*Processor
	metadataByType  map[id.AssetType]*AssetMetadata
}

// New returns an empty registry sharing the given type-interning table.
// Host applications typically own one Types table and one Registry for
// the lifetime of the process.
func New(types *id.Types) *Registry {
	return &Registry{
		types:          types,
		importerByExt:  make(map[string][]*Importer),
		defaultProc:    make(map[id.AssetType]*Processor),
		procByName:     make(map[string]*Processor),
		metadataByType: make(map[id.AssetType]*AssetMetadata),
	}
}

// Types returns the registry's shared type-interning table.
func (r *Registry) Types() *id.Types { return r.types }

// RegisterImporter adds imp to the registry under each of its
// extensions, in registration order.
func (r *Registry) RegisterImporter(imp *Importer) {
	r.importers = append(r.importers, imp)
	for _, ext := range imp.Extensions {
		r.importerByExt[ext] = append(r.importerByExt[ext], imp)
	}
}

// ImporterForExtension returns the first importer registered for ext
// (spec §4.3: "lookup by extension returns the first importer whose
// extension list contains the extension").
func (r *Registry) ImporterForExtension(ext string) (*Importer, bool) {
	candidates := r.importerByExt[ext]
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[0], true
}

// RegisterProcessor adds proc to the registry, indexed by name and, if
// markDefault is set, as the default processor for proc.InputType.
func (r *Registry) RegisterProcessor(proc *Processor, markDefault bool) {
	r.procByName[proc.Name] = proc
	if markDefault {
		r.defaultProc[proc.InputType] = proc
	}
}

// ProcessorByName looks up a processor an importer explicitly declared
// (spec §4.6.4: "the explicit one recorded by the importer").
func (r *Registry) ProcessorByName(name string) (*Processor, bool) {
	p, ok := r.procByName[name]
	return p, ok
}

// DefaultProcessor returns the registered default processor for at, if
// any (spec §4.6.4: "else the registered default for the asset type").
func (r *Registry) DefaultProcessor(at id.AssetType) (*Processor, bool) {
	p, ok := r.defaultProc[at]
	return p, ok
}

// RegisterAssetMetadata adds meta, indexed by its AssetType.
func (r *Registry) RegisterAssetMetadata(meta *AssetMetadata) {
	r.metadataByType[meta.AssetType] = meta
}

// AssetMetadataFor returns the registered hooks for at.
func (r *Registry) AssetMetadataFor(at id.AssetType) (*AssetMetadata, bool) {
	m, ok := r.metadataByType[at]
	return m, ok
}

// ErrNoDeserializer is returned (wrapped) by Deserialize when an
// artifact's type has no registered AssetMetadata; the load manager
// reports it as a load.MissingDeserializerError.
var ErrNoDeserializer = errors.New("registry: no deserializer registered for asset type")

// Deserialize looks up at's AssetMetadata and deserializes data, or
// returns ErrNoDeserializer if at was never registered.
func (r *Registry) Deserialize(at id.AssetType, data []byte) (Asset, error) {
	meta, ok := r.metadataByType[at]
	if !ok {
		return nil, errors.Wrapf(ErrNoDeserializer, "type %s", r.types.Name(at))
	}
	return meta.Deserialize(data)
}
