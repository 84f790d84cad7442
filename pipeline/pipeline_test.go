// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package pipeline

import (
	"context"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/gazed/assetdb/cache"
	"github.com/gazed/assetdb/dag"
	"github.com/gazed/assetdb/event"
	"github.com/gazed/assetdb/id"
	"github.com/gazed/assetdb/lease"
	"github.com/gazed/assetdb/registry"
	"github.com/gazed/assetdb/source"
)

// textAsset is the test fixture for S1/S2 and the base assets of S4 and
// the skip-order test: a leaf asset type with no
// dependencies, whose encoded form is just its own text.
type textAsset struct{ content string }

func (t textAsset) References() []id.ErasedId { return nil }
func (t textAsset) Encode() ([]byte, error)    { return []byte(t.content), nil }

type textSettings struct{}

func newTextImporter(textType id.AssetType) *registry.Importer {
	return &registry.Importer{
		Name:       "text",
		Extensions: []string{"txt"},
		AssetType:  textType,
		Import: func(ctx context.Context, ictx *registry.ImportContext, r io.Reader, settings registry.Settings) (registry.Asset, error) {
			data, err := io.ReadAll(r)
			if err != nil {
				return nil, err
			}
			return textAsset{content: string(data)}, nil
		},
		DefaultSettings:     func() registry.Settings { return textSettings{} },
		DeserializeSettings: func(data []byte) (registry.Settings, error) { return textSettings{}, nil },
	}
}

// meshAsset is the test fixture for S3: an importer that emits two
// children "a" and "b" alongside its primary asset.
type meshAsset struct{ content string }

func (m meshAsset) References() []id.ErasedId { return nil }
func (m meshAsset) Encode() ([]byte, error)    { return []byte(m.content), nil }

func newMeshImporter(meshType id.AssetType) *registry.Importer {
	return &registry.Importer{
		Name:       "mesh",
		Extensions: []string{"mesh"},
		AssetType:  meshType,
		Import: func(ctx context.Context, ictx *registry.ImportContext, r io.Reader, settings registry.Settings) (registry.Asset, error) {
			data, err := io.ReadAll(r)
			if err != nil {
				return nil, err
			}
			ictx.AddChild("a", meshAsset{content: "child-a"}, meshType)
			ictx.AddChild("b", meshAsset{content: "child-b"}, meshType)
			return meshAsset{content: string(data)}, nil
		},
		DefaultSettings:     func() registry.Settings { return textSettings{} },
		DeserializeSettings: func(data []byte) (registry.Settings, error) { return textSettings{}, nil },
	}
}

// compositeAsset is the test fixture for S4/S5: its Encode form prefixes
// its dependency's UUID text so the processor can recover which asset to
// load without any side channel, and its References() exposes the same
// dependency to the DAG at import time.
type compositeAsset struct {
	dep  id.ErasedId
	body string
}

func (c compositeAsset) References() []id.ErasedId { return []id.ErasedId{c.dep} }
func (c compositeAsset) Encode() ([]byte, error) {
	depBytes, err := c.dep.MarshalText()
	if err != nil {
		return nil, err
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(depBytes)))
	out := make([]byte, 0, 4+len(depBytes)+len(c.body))
	out = append(out, lenBuf[:]...)
	out = append(out, depBytes...)
	out = append(out, []byte(c.body)...)
	return out, nil
}

type compositeSettings struct {
	DepID id.ErasedId `json:"dep_id"`
}

func newCompositeImporter(compositeType id.AssetType) *registry.Importer {
	return &registry.Importer{
		Name:       "composite",
		Extensions: []string{"cmp"},
		AssetType:  compositeType,
		Import: func(ctx context.Context, ictx *registry.ImportContext, r io.Reader, settings registry.Settings) (registry.Asset, error) {
			data, err := io.ReadAll(r)
			if err != nil {
				return nil, err
			}
			cs := settings.(compositeSettings)
			return compositeAsset{dep: cs.DepID, body: string(data)}, nil
		},
		DefaultSettings: func() registry.Settings { return compositeSettings{} },
		DeserializeSettings: func(data []byte) (registry.Settings, error) {
			var cs compositeSettings
			if err := json.Unmarshal(data, &cs); err != nil {
				return nil, err
			}
			return cs, nil
		},
	}
}

func newCompositeProcessor(compositeType id.AssetType) *registry.Processor {
	return &registry.Processor{
		Name:       "composite-default",
		InputType:  compositeType,
		OutputType: compositeType,
		Process: func(ctx context.Context, pctx *registry.ProcessContext, inputBytes []byte) ([]byte, error) {
			if len(inputBytes) < 4 {
				return nil, errors.New("composite: truncated artifact")
			}
			depLen := binary.LittleEndian.Uint32(inputBytes[:4])
			rest := inputBytes[4:]
			if uint32(len(rest)) < depLen {
				return nil, errors.New("composite: truncated dependency id")
			}
			var depID id.ErasedId
			if err := depID.UnmarshalText(rest[:depLen]); err != nil {
				return nil, err
			}
			if _, err := pctx.LoadDependencyByID(depID); err != nil {
				return nil, err
			}
			return rest[depLen:], nil
		},
	}
}

// duoAsset is the test fixture for the skip-check order-divergence
// regression: it declares two dependencies through References() in a
// fixed order, but its processor loads them in the opposite order, so
// DependencyIDs (declared order) and Import.Dependencies (load order)
// disagree.
type duoAsset struct {
	depA, depB id.ErasedId
	body       string
}

func (d duoAsset) References() []id.ErasedId { return []id.ErasedId{d.depA, d.depB} }
func (d duoAsset) Encode() ([]byte, error) {
	aBytes, err := d.depA.MarshalText()
	if err != nil {
		return nil, err
	}
	bBytes, err := d.depB.MarshalText()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(aBytes)+1+len(bBytes)+1+len(d.body))
	out = append(out, aBytes...)
	out = append(out, ',')
	out = append(out, bBytes...)
	out = append(out, ',')
	out = append(out, []byte(d.body)...)
	return out, nil
}

type duoSettings struct {
	DepA id.ErasedId `json:"dep_a"`
	DepB id.ErasedId `json:"dep_b"`
}

func newDuoImporter(duoType id.AssetType) *registry.Importer {
	return &registry.Importer{
		Name:       "duo",
		Extensions: []string{"duo"},
		AssetType:  duoType,
		Import: func(ctx context.Context, ictx *registry.ImportContext, r io.Reader, settings registry.Settings) (registry.Asset, error) {
			data, err := io.ReadAll(r)
			if err != nil {
				return nil, err
			}
			ds := settings.(duoSettings)
			return duoAsset{depA: ds.DepA, depB: ds.DepB, body: string(data)}, nil
		},
		DefaultSettings: func() registry.Settings { return duoSettings{} },
		DeserializeSettings: func(data []byte) (registry.Settings, error) {
			var ds duoSettings
			if err := json.Unmarshal(data, &ds); err != nil {
				return nil, err
			}
			return ds, nil
		},
	}
}

// newDuoProcessor's Process loads depB before depA, the reverse of
// duoAsset.References()'s declared order.
func newDuoProcessor(duoType id.AssetType) *registry.Processor {
	return &registry.Processor{
		Name:       "duo-default",
		InputType:  duoType,
		OutputType: duoType,
		Process: func(ctx context.Context, pctx *registry.ProcessContext, inputBytes []byte) ([]byte, error) {
			parts := strings.SplitN(string(inputBytes), ",", 3)
			if len(parts) != 3 {
				return nil, errors.New("duo: malformed artifact")
			}
			var depA, depB id.ErasedId
			if err := depA.UnmarshalText([]byte(parts[0])); err != nil {
				return nil, err
			}
			if err := depB.UnmarshalText([]byte(parts[1])); err != nil {
				return nil, err
			}
			if _, err := pctx.LoadDependencyByID(depB); err != nil {
				return nil, err
			}
			if _, err := pctx.LoadDependencyByID(depA); err != nil {
				return nil, err
			}
			return []byte(parts[2]), nil
		},
	}
}

// harness bundles one Pipeline with its virtual source and collaborators
// so each test can build a database slice without repeating the wiring.
type harness struct {
	src     *source.Virtual
	reg     *registry.Registry
	store   *cache.Cache
	library *cache.Library
	bus     *event.Bus
	p       *Pipeline
}

func newHarness() *harness {
	types := id.NewTypes()
	src := source.NewVirtual("")
	reg := registry.New(types)
	store := cache.New(source.NewVirtual(""))
	library := cache.NewLibrary()
	bus := event.NewBus()
	p := New(map[string]source.Source{"": src}, reg, store, library, &lease.Lease{}, bus)
	return &harness{src: src, reg: reg, store: store, library: library, bus: bus, p: p}
}

func TestRoundTripSingleTextAsset(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	textType := h.reg.Types().Intern("text")
	h.reg.RegisterImporter(newTextImporter(textType))
	h.src.Seed("text.txt", []byte("hello"))

	if err := h.p.Import(ctx); err != nil {
		t.Fatalf("Import returned error: %s", err)
	}

	path, _ := id.ParsePath("text.txt")
	aid, ok := h.library.GetId(path)
	if !ok {
		t.Fatalf("expected text.txt to be in the library after import")
	}
	fileMeta, err := source.ReadFileMeta(ctx, h.src, "text.txt")
	if err != nil {
		t.Fatalf("ReadFileMeta returned error: %s", err)
	}
	if fileMeta.ID != aid {
		t.Errorf("library id %s does not match meta id %s", aid, fileMeta.ID)
	}

	artifact, err := h.store.ReadArtifact(ctx, cache.Artifacts, aid)
	if err != nil {
		t.Fatalf("ReadArtifact returned error: %s", err)
	}
	if string(artifact.Data) != "hello" {
		t.Errorf("expected artifact data %q, got %q", "hello", artifact.Data)
	}
}

func TestSkipOnSecondImport(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	textType := h.reg.Types().Intern("text")
	h.reg.RegisterImporter(newTextImporter(textType))
	h.src.Seed("text.txt", []byte("hello"))

	if err := h.p.Import(ctx); err != nil {
		t.Fatalf("first Import returned error: %s", err)
	}
	h.bus.Drain()

	if err := h.p.Import(ctx); err != nil {
		t.Fatalf("second Import returned error: %s", err)
	}
	if events := h.bus.Drain(); len(events) != 0 {
		t.Errorf("expected no events on an unchanged second import, got %+v", events)
	}
}

func TestRemovePropagatesToChildren(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	meshType := h.reg.Types().Intern("mesh")
	h.reg.RegisterImporter(newMeshImporter(meshType))
	h.src.Seed("model.mesh", []byte("parent"))

	if err := h.p.Import(ctx); err != nil {
		t.Fatalf("first Import returned error: %s", err)
	}
	path, _ := id.ParsePath("model.mesh")
	parentID, ok := h.library.GetId(path)
	if !ok {
		t.Fatalf("expected model.mesh in library after first import")
	}
	parentMeta, err := h.store.ReadMetadata(ctx, cache.Artifacts, parentID)
	if err != nil {
		t.Fatalf("ReadMetadata returned error: %s", err)
	}
	if len(parentMeta.ChildIDs) != 2 {
		t.Fatalf("expected 2 children, got %d", len(parentMeta.ChildIDs))
	}
	allIDs := append([]id.ErasedId{parentID}, parentMeta.ChildIDs...)

	if err := h.src.Remove(ctx, "model.mesh"); err != nil {
		t.Fatalf("Remove returned error: %s", err)
	}
	if err := h.p.Import(ctx); err != nil {
		t.Fatalf("second Import returned error: %s", err)
	}

	removedCount := 0
	for _, e := range h.bus.Drain() {
		if e.Kind == event.AssetRemoved {
			removedCount++
		}
	}
	if removedCount != 3 {
		t.Errorf("expected 3 AssetRemoved events, got %d", removedCount)
	}
	for _, aid := range allIDs {
		if ok, _ := h.store.Exists(ctx, cache.Artifacts, aid); ok {
			t.Errorf("expected artifact %s to be removed from cache/artifacts", aid)
		}
	}
}

func TestDependencyOrderingAcrossPasses(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	textType := h.reg.Types().Intern("text")
	compositeType := h.reg.Types().Intern("composite")
	h.reg.RegisterImporter(newTextImporter(textType))
	h.reg.RegisterImporter(newCompositeImporter(compositeType))
	h.reg.RegisterProcessor(newCompositeProcessor(compositeType), true)

	h.src.Seed("base.txt", []byte("base-bytes"))
	if err := h.p.Import(ctx); err != nil {
		t.Fatalf("first Import returned error: %s", err)
	}
	basePath, _ := id.ParsePath("base.txt")
	baseID, ok := h.library.GetId(basePath)
	if !ok {
		t.Fatalf("expected base.txt in library")
	}
	baseMeta, err := h.store.ReadMetadata(ctx, cache.Artifacts, baseID)
	if err != nil {
		t.Fatalf("ReadMetadata returned error: %s", err)
	}

	comboID := id.NewErasedId()
	settingsBytes, err := json.Marshal(compositeSettings{DepID: baseID})
	if err != nil {
		t.Fatalf("marshaling settings returned error: %s", err)
	}
	h.src.Seed("combo.cmp", []byte("combo-bytes"))
	if err := source.WriteFileMeta(ctx, h.src, "combo.cmp", source.FileMeta{ID: comboID, Settings: settingsBytes}); err != nil {
		t.Fatalf("WriteFileMeta returned error: %s", err)
	}

	if err := h.p.Import(ctx); err != nil {
		t.Fatalf("second Import returned error: %s", err)
	}

	comboPath, _ := id.ParsePath("combo.cmp")
	resolvedID, ok := h.library.GetId(comboPath)
	if !ok {
		t.Fatalf("expected combo.cmp in library")
	}
	if resolvedID != comboID {
		t.Fatalf("expected library id %s to match pre-assigned id %s", resolvedID, comboID)
	}
	comboMeta, err := h.store.ReadMetadata(ctx, cache.Artifacts, comboID)
	if err != nil {
		t.Fatalf("ReadMetadata returned error: %s", err)
	}
	want := cache.CombineFullChecksum(comboMeta.Import.Checksum, []uint64{baseMeta.Import.FullChecksum})
	if comboMeta.Import.FullChecksum != want {
		t.Errorf("expected combo full_checksum %d to include base's, got %d", want, comboMeta.Import.FullChecksum)
	}
}

func TestCycleRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	compositeType := h.reg.Types().Intern("composite")
	h.reg.RegisterImporter(newCompositeImporter(compositeType))
	h.reg.RegisterProcessor(newCompositeProcessor(compositeType), true)

	aID, bID := id.NewErasedId(), id.NewErasedId()
	h.src.Seed("a.cmp", []byte("a-bytes"))
	h.src.Seed("b.cmp", []byte("b-bytes"))
	aSettings, err := json.Marshal(compositeSettings{DepID: bID})
	if err != nil {
		t.Fatalf("marshaling a settings returned error: %s", err)
	}
	bSettings, err := json.Marshal(compositeSettings{DepID: aID})
	if err != nil {
		t.Fatalf("marshaling b settings returned error: %s", err)
	}
	if err := source.WriteFileMeta(ctx, h.src, "a.cmp", source.FileMeta{ID: aID, Settings: aSettings}); err != nil {
		t.Fatalf("WriteFileMeta a returned error: %s", err)
	}
	if err := source.WriteFileMeta(ctx, h.src, "b.cmp", source.FileMeta{ID: bID, Settings: bSettings}); err != nil {
		t.Fatalf("WriteFileMeta b returned error: %s", err)
	}

	err = h.p.Import(ctx)
	if err == nil {
		t.Fatalf("expected Import to fail with a cycle error")
	}
	var cycleErr *dag.CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected a *dag.CycleError, got %T: %s", err, err)
	}

	if ok, _ := h.store.Exists(ctx, cache.Artifacts, aID); ok {
		t.Errorf("expected a.cmp to not be committed to cache/artifacts")
	}
	if ok, _ := h.store.Exists(ctx, cache.Artifacts, bID); ok {
		t.Errorf("expected b.cmp to not be committed to cache/artifacts")
	}
}

// TestSkipSurvivesProcessorLoadOrderDivergingFromDeclaredOrder guards
// against the skip check recomputing full_checksum from the wrong
// dependency order. duoAsset declares [depA, depB] via References(),
// but its processor loads depB before depA, so DependencyIDs and
// Import.Dependencies disagree on order; the skip check must recompute
// from the latter or every reimport looks changed forever.
func TestSkipSurvivesProcessorLoadOrderDivergingFromDeclaredOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	textType := h.reg.Types().Intern("text")
	duoType := h.reg.Types().Intern("duo")
	h.reg.RegisterImporter(newTextImporter(textType))
	h.reg.RegisterImporter(newDuoImporter(duoType))
	h.reg.RegisterProcessor(newDuoProcessor(duoType), true)

	h.src.Seed("a.txt", []byte("a-bytes"))
	h.src.Seed("b.txt", []byte("b-bytes"))
	if err := h.p.Import(ctx); err != nil {
		t.Fatalf("first Import returned error: %s", err)
	}
	aPath, _ := id.ParsePath("a.txt")
	bPath, _ := id.ParsePath("b.txt")
	aID, _ := h.library.GetId(aPath)
	bID, _ := h.library.GetId(bPath)

	settingsBytes, err := json.Marshal(duoSettings{DepA: aID, DepB: bID})
	if err != nil {
		t.Fatalf("marshaling settings returned error: %s", err)
	}
	comboID := id.NewErasedId()
	h.src.Seed("combo.duo", []byte("combo-bytes"))
	if err := source.WriteFileMeta(ctx, h.src, "combo.duo", source.FileMeta{ID: comboID, Settings: settingsBytes}); err != nil {
		t.Fatalf("WriteFileMeta returned error: %s", err)
	}
	if err := h.p.Import(ctx); err != nil {
		t.Fatalf("second Import returned error: %s", err)
	}
	h.bus.Drain()

	if err := h.p.Import(ctx); err != nil {
		t.Fatalf("third Import returned error: %s", err)
	}
	if events := h.bus.Drain(); len(events) != 0 {
		t.Errorf("expected the skip check to recognize combo.duo as unchanged, got %+v", events)
	}
}
