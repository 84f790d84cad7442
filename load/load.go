// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package load implements the load-state FSM (spec §4.7): resolving a
// path or id to its cached artifact, deserializing it through the
// registry, publishing it to the world sink, and recursively loading
// its dependency closure. It takes the shared-reader side of the same
// lease the pipeline package takes the writer side of, generalizing the
// teacher's loader.go goroutine-and-channel request queue into a
// synchronous, lock-guarded state machine with per-root request
// collapsing via golang.org/x/sync/singleflight.
package load

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/gazed/assetdb/cache"
	"github.com/gazed/assetdb/event"
	"github.com/gazed/assetdb/id"
	"github.com/gazed/assetdb/lease"
	"github.com/gazed/assetdb/registry"
)

// State is one position in an asset's load-state FSM (spec §3's
// LoadState).
type State int

const (
	// Unloaded is the initial state, and the state an asset returns to
	// after its last reference is dropped under UnloadIfUnreferenced.
	Unloaded State = iota
	// Loading marks an asset whose artifact read/deserialize is
	// currently in flight.
	Loading
	// Loaded marks an asset published to the world sink and holding at
	// least one reference.
	Loaded
	// Failed marks an asset whose most recent load attempt errored.
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "Unloaded"
	case Loading:
		return "Loading"
	case Loaded:
		return "Loaded"
	case Failed:
		return "Failed"
	default:
		return "State(?)"
	}
}

// entry is the FSM's per-id bookkeeping (spec §3 LoadState::Loaded's
// {ty, refcount, dependencies, parent?, unload_action?}).
type entry struct {
	state        State
	assetType    id.AssetType
	refcount     int
	deps         []id.ErasedId
	parent       *id.ErasedId
	unloadAction cache.UnloadAction
}

// WorldSink receives successfully loaded assets (spec §1's "opaque sink
// receiving asset added/removed/loaded commands", §4.7.1 step c).
type WorldSink interface {
	AssetLoaded(aid id.ErasedId, at id.AssetType, asset registry.Asset)
}

// Path selects what Load resolves: either an id directly, or a path
// looked up through the library (spec §4.7's LoadPath = Id | Path).
type Path struct {
	id     id.ErasedId
	path   id.AssetPath
	byPath bool
}

// ByID builds a Path that names aid directly.
func ByID(aid id.ErasedId) Path { return Path{id: aid} }

// ByPath builds a Path resolved through the library.
func ByPath(p id.AssetPath) Path { return Path{path: p, byPath: true} }

// Manager owns the load-state FSM and drives spec §4.7.1's algorithm.
// One Manager is created for the process lifetime by the root database
// facade, sharing its lease.Lease and cache.Library with the Pipeline.
type Manager struct {
	lease   *lease.Lease
	store   *cache.Cache
	library *cache.Library
	reg     *registry.Registry
	bus     *event.Bus
	sink    WorldSink

	mu     sync.RWMutex
	states map[id.ErasedId]*entry

	inflight singleflight.Group
}

// New constructs a Manager.
func New(ls *lease.Lease, store *cache.Cache, library *cache.Library, reg *registry.Registry, bus *event.Bus, sink WorldSink) *Manager {
	return &Manager{
		lease:   ls,
		store:   store,
		library: library,
		reg:     reg,
		bus:     bus,
		sink:    sink,
		states:  make(map[id.ErasedId]*entry),
	}
}

// State reports aid's current FSM state; an id never seen is Unloaded.
func (m *Manager) State(aid id.ErasedId) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.states[aid]; ok {
		return e.state
	}
	return Unloaded
}

// Load resolves p to an id and loads its full dependency closure (spec
// §4.7.1). Concurrent Load calls naming the same root id are collapsed
// into a single run via singleflight; each still returns the resolved
// id once the run completes.
func (m *Manager) Load(ctx context.Context, p Path) (id.ErasedId, error) {
	release, err := m.lease.AcquireReader(ctx)
	if err != nil {
		return id.Nil, err
	}
	defer release()

	rootID, err := m.resolve(p)
	if err != nil {
		return id.Nil, err
	}

	_, err, _ = m.inflight.Do(rootID.String(), func() (interface{}, error) {
		return nil, m.run(ctx, rootID)
	})
	if err != nil {
		return id.Nil, err
	}
	return rootID, nil
}

// resolve turns a Path into an id via the library (spec §4.7.1 step 2).
func (m *Manager) resolve(p Path) (id.ErasedId, error) {
	if !p.byPath {
		return p.id, nil
	}
	aid, ok := m.library.GetId(p.path)
	if !ok {
		return id.Nil, &NotFoundError{Path: p.path}
	}
	return aid, nil
}

// run walks the work stack seeded by rootID, per spec §4.7.1 steps 3-5.
// Only a failure on the root itself is returned; failures discovered
// deeper in the closure are recorded in the FSM and reported as
// LoadError events, matching "on failure: set Failed, emit typed error,
// continue".
func (m *Manager) run(ctx context.Context, rootID id.ErasedId) error {
	stack := []id.ErasedId{rootID}
	var rootErr error

	for len(stack) > 0 {
		aid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !m.beginLoading(aid) {
			continue
		}

		deps, parent, err := m.loadOne(ctx, aid)
		if err != nil {
			if aid == rootID {
				rootErr = err
			}
			continue
		}

		for _, dep := range deps {
			if m.linkReference(dep) {
				stack = append(stack, dep)
			}
		}
		if parent != nil && m.linkReference(*parent) {
			stack = append(stack, *parent)
		}
	}
	return rootErr
}

// beginLoading implements step 4.a: upgrade the FSM lock, skip if
// already Loading or Loaded, otherwise mark Loading and proceed.
func (m *Manager) beginLoading(aid id.ErasedId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.states[aid]
	if ok && (e.state == Loading || e.state == Loaded) {
		return false
	}
	if !ok {
		e = &entry{}
		m.states[aid] = e
	}
	e.state = Loading
	return true
}

// linkReference records that some dependent now holds a reference to
// aid, for refcount/unload-policy purposes (spec §4.7.3). It reports
// whether aid still needs to be pushed onto the work stack (spec §4.7.1
// step 4.e: "if its state is Unloaded or Failed, push it").
func (m *Manager) linkReference(aid id.ErasedId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.states[aid]
	if !ok {
		return true
	}
	switch e.state {
	case Loaded:
		e.refcount++
		return false
	case Loading:
		return false
	default: // Unloaded, Failed
		return true
	}
}

// loadOne implements spec §4.7.1 steps 4.b-4.d / §4.7.2's reload body:
// read the artifact, deserialize it, publish it to the world sink, and
// transition to Loaded (or Failed on any error along the way).
func (m *Manager) loadOne(ctx context.Context, aid id.ErasedId) (deps []id.ErasedId, parent *id.ErasedId, err error) {
	artifact, err := m.store.ReadArtifact(ctx, cache.Artifacts, aid)
	if err != nil {
		ioErr := &IOError{ID: aid, Err: err}
		m.markFailed(aid, ioErr)
		return nil, nil, ioErr
	}

	asset, derr := m.reg.Deserialize(artifact.Metadata.Type, artifact.Data)
	if derr != nil {
		var loadErr error
		if errors.Is(derr, registry.ErrNoDeserializer) {
			loadErr = &MissingDeserializerError{ID: aid, Type: artifact.Metadata.Type}
		} else {
			loadErr = &DeserializeError{ID: aid, Err: derr}
		}
		m.markFailed(aid, loadErr)
		return nil, nil, loadErr
	}

	m.sink.AssetLoaded(aid, artifact.Metadata.Type, asset)
	m.bus.Publish(event.Event{Kind: event.AssetLoaded, ID: aid, Path: artifact.Metadata.Path, Type: artifact.Metadata.Type})

	unloadAction := m.resolveUnloadAction(artifact.Metadata)

	m.mu.Lock()
	e, ok := m.states[aid]
	if !ok {
		e = &entry{}
		m.states[aid] = e
	}
	e.state = Loaded
	e.assetType = artifact.Metadata.Type
	if e.refcount == 0 {
		e.refcount = 1
	}
	e.deps = artifact.Metadata.DependencyIDs
	e.parent = artifact.Metadata.ParentID
	e.unloadAction = unloadAction
	m.mu.Unlock()

	return artifact.Metadata.DependencyIDs, artifact.Metadata.ParentID, nil
}

// resolveUnloadAction prefers the artifact's own override, falling back
// to the registry's default for its type (spec §4.7.3).
func (m *Manager) resolveUnloadAction(meta cache.ArtifactMetadata) cache.UnloadAction {
	if meta.UnloadAction != nil {
		return *meta.UnloadAction
	}
	if am, ok := m.reg.AssetMetadataFor(meta.Type); ok {
		return am.DefaultUnloadAction
	}
	return cache.Keep
}

func (m *Manager) markFailed(aid id.ErasedId, err error) {
	m.mu.Lock()
	e, ok := m.states[aid]
	if !ok {
		e = &entry{}
		m.states[aid] = e
	}
	e.state = Failed
	m.mu.Unlock()
	m.bus.Publish(event.Event{Kind: event.LoadError, ID: aid, Err: err})
}

// Reload re-executes the load body for a single id already Loaded or
// Failed, without touching its dependency closure (spec §4.7.2).
func (m *Manager) Reload(ctx context.Context, aid id.ErasedId) error {
	release, err := m.lease.AcquireReader(ctx)
	if err != nil {
		return err
	}
	defer release()

	m.mu.RLock()
	e, ok := m.states[aid]
	allowed := ok && (e.state == Loaded || e.state == Failed)
	m.mu.RUnlock()
	if !allowed {
		return errors.Errorf("load: cannot reload %s: not currently Loaded or Failed", aid)
	}

	_, _, err = m.loadOne(ctx, aid)
	return err
}

// Release drops one reference to aid and applies its unload policy
// (spec §4.7.3). Keep never unloads;
// UnloadIfUnreferenced unloads once unreferenced; UnloadAlways unloads
// as soon as the reference is dropped, regardless of remaining count.
func (m *Manager) Release(aid id.ErasedId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.states[aid]
	if !ok || e.state != Loaded {
		return
	}
	if e.refcount > 0 {
		e.refcount--
	}
	switch e.unloadAction {
	case cache.UnloadAlways:
		m.unloadLocked(aid, e)
	case cache.UnloadIfUnreferenced:
		if e.refcount <= 0 {
			m.unloadLocked(aid, e)
		}
	case cache.Keep:
		// never unloaded.
	}
}

func (m *Manager) unloadLocked(aid id.ErasedId, e *entry) {
	e.state = Unloaded
	e.refcount = 0
	e.deps = nil
	e.parent = nil
}
