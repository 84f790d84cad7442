// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package assetdb is the root facade over the asset pipeline and
// database (spec §1-§2): a process-wide singleton wiring the registry,
// content-addressed cache, library, writer lease, event bus, import
// pipeline, and load manager into the handful of entry points a host
// application calls — Init, Import, Load, Reload, Unload — generalizing
// the teacher's single *engine value (see eng.go's New/Engine) into an
// explicitly singleton-guarded database, since spec §4.7.4 requires
// exactly one instance per process.
package assetdb

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/gazed/assetdb/cache"
	"github.com/gazed/assetdb/event"
	"github.com/gazed/assetdb/id"
	"github.com/gazed/assetdb/lease"
	"github.com/gazed/assetdb/load"
	"github.com/gazed/assetdb/pipeline"
	"github.com/gazed/assetdb/registry"
	"github.com/gazed/assetdb/source"
)

// WorldSink is the opaque command sink the database publishes asset
// lifecycle commands to (spec §1's "entity-component world... treated
// as an opaque sink"). It satisfies load.WorldSink structurally.
type WorldSink interface {
	AssetAdded(aid id.ErasedId, path id.AssetPath, at id.AssetType)
	AssetRemoved(aid id.ErasedId)
	AssetLoaded(aid id.ErasedId, at id.AssetType, asset registry.Asset)
}

// Database is the singleton facade. Construct one with Init.
type Database struct {
	cfg     Config
	sources map[string]source.Source
	reg     *registry.Registry
	store   *cache.Cache
	library *cache.Library
	lease   *lease.Lease
	bus     *event.Bus
	sink    WorldSink

	Pipeline *pipeline.Pipeline
	Loader   *load.Manager
}

var (
	instanceMu sync.Mutex
	instance   *Database
)

// Init constructs the process-wide Database from configDefaults overridden
// by opts, registers it as the singleton, and returns it. cacheRoot
// backs cache/artifacts, cache/sources, and assets.lib; roots are the
// named asset source roots AssetPaths resolve against ("" is the
// default root). Calling Init twice without an intervening reset is an
// error (spec §4.7.4: "a single process-wide singleton initialized
// once").
func Init(reg *registry.Registry, cacheRoot source.Source, roots map[string]source.Source, sink WorldSink, opts ...Attr) (*Database, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		return nil, errors.New("assetdb: database already initialized")
	}

	cfg := configDefaults
	for _, opt := range opts {
		opt(&cfg)
	}

	store := cache.New(cacheRoot)
	library := cache.NewLibrary()
	bus := event.NewBus()
	ls := &lease.Lease{}

	p := pipeline.New(roots, reg, store, library, ls, bus)
	p.Concurrency = cfg.Concurrency

	loader := load.New(ls, store, library, reg, bus, sink)

	db := &Database{
		cfg:      cfg,
		sources:  roots,
		reg:      reg,
		store:    store,
		library:  library,
		lease:    ls,
		bus:      bus,
		sink:     sink,
		Pipeline: p,
		Loader:   loader,
	}
	instance = db
	return db, nil
}

// Get returns the process-wide Database, if Init has run.
func Get() (*Database, bool) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance, instance != nil
}

// IsInitialized reports whether Init has already run.
func IsInitialized() bool {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance != nil
}

// reset clears the singleton; used by tests that need a fresh Database
// per test case.
func reset() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = nil
}

// Import runs one import() pass over every source root (spec §4.6).
func (db *Database) Import(ctx context.Context) error {
	err := db.Pipeline.Import(ctx)
	db.dispatch(ctx)
	return err
}

// Load resolves and loads p's full dependency closure (spec §4.7.1).
func (db *Database) Load(ctx context.Context, p load.Path) (id.ErasedId, error) {
	aid, err := db.Loader.Load(ctx, p)
	db.dispatch(ctx)
	return aid, err
}

// Reload re-executes the load body for a single already-loaded or
// failed id (spec §4.7.2).
func (db *Database) Reload(ctx context.Context, aid id.ErasedId) error {
	err := db.Loader.Reload(ctx, aid)
	db.dispatch(ctx)
	return err
}

// Unload drops one reference to aid and applies its unload policy (spec
// §4.7.3; see load.Manager.Release).
func (db *Database) Unload(aid id.ErasedId) {
	db.Loader.Release(aid)
}

// dispatch drains the event bus and forwards AssetAdded/AssetRemoved
// lifecycle events to the world sink (spec §4.7.4: "drained by the
// consumer each tick"). AssetLoaded is delivered synchronously by the
// load manager itself.
//
// An AssetAdded naming an id the load manager already has Loaded is not
// forwarded as a fresh addition: it means import() reprocessed an asset
// already resident, so the load manager reloads it in place instead
// (spec §4.6.4: "if the asset was already loaded, enqueue an
// ImportedAsset event so the load manager can reload it").
//
// Events of every other kind (AssetLoaded and the error kinds) are put
// back on the bus, in order, for Events to return.
func (db *Database) dispatch(ctx context.Context) {
	var unforwarded []event.Event
	for _, e := range db.bus.Drain() {
		switch e.Kind {
		case event.AssetAdded:
			if db.Loader.State(e.ID) == load.Loaded {
				_ = db.Loader.Reload(ctx, e.ID)
				continue
			}
			db.sink.AssetAdded(e.ID, e.Path, e.Type)
		case event.AssetRemoved:
			db.sink.AssetRemoved(e.ID)
		default:
			unforwarded = append(unforwarded, e)
		}
	}
	for _, e := range unforwarded {
		db.bus.Publish(e)
	}
}

// Events drains and returns the queued events without forwarding
// anything to the sink: the AssetLoaded and error/cycle events (spec
// §7) that dispatch left on the bus, plus anything published since —
// for host applications that want raw access to them alongside
// lifecycle commands.
func (db *Database) Events() []event.Event { return db.bus.Drain() }
