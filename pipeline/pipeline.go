// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package pipeline drives the import/process pipeline (spec §4.6): it
// scans every named source root, decides which files are new, changed,
// or removed, runs importers to produce staging artifacts and a
// dependency DAG, then walks the DAG running processors to finalize
// artifacts in the cache. It is the one package that touches C2-C5
// (source, registry, cache, dag) together, the way the teacher's old
// loader.go was the one place that coordinated the disk loader, the
// bind channel, and the render cache.
package pipeline

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gazed/assetdb/cache"
	"github.com/gazed/assetdb/dag"
	"github.com/gazed/assetdb/event"
	"github.com/gazed/assetdb/id"
	"github.com/gazed/assetdb/lease"
	"github.com/gazed/assetdb/registry"
	"github.com/gazed/assetdb/source"
)

// ErrNoImporter is published as an ImportError when a candidate file's
// extension has no registered importer.
var ErrNoImporter = errors.New("pipeline: no importer registered for extension")

// Pipeline owns a single import() run's collaborators: the named
// source roots, the registry of importers/processors, the cache and
// its persisted library, the writer lease, and the event bus. One
// Pipeline is created for the process lifetime by the root database
// facade.
type Pipeline struct {
	sources map[string]source.Source // "" is the default/unnamed root.
	reg     *registry.Registry
	store   *cache.Cache
	library *cache.Library
	lease   *lease.Lease
	bus     *event.Bus

	// Concurrency bounds the number of files imported at once within a
	// single pass (spec §1's "cooperative async I/O with a bounded worker
	// pool"). Scanning and processing run one at a time; processing
	// follows the DAG's topological order.
	Concurrency int
}

// New constructs a Pipeline. sources must include an entry keyed ""
// for the default root if callers intend to parse paths with no
// explicit source name.
func New(sources map[string]source.Source, reg *registry.Registry, store *cache.Cache, library *cache.Library, ls *lease.Lease, bus *event.Bus) *Pipeline {
	return &Pipeline{
		sources:     sources,
		reg:         reg,
		store:       store,
		library:     library,
		lease:       ls,
		bus:         bus,
		Concurrency: 8,
	}
}

// sourceNames returns every registered root name in a stable order, so
// a multi-root import() scans roots in the same order every run.
func (p *Pipeline) sourceNames() []string {
	names := make([]string, 0, len(p.sources))
	for name := range p.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Import runs one full import() pass to completion (spec §4.6). It
// returns lease.ErrWriterHeld immediately if another import() is
// already running, matching spec §4.6 step 1's "if already held,
// return immediately" — the caller can treat that as a no-op rather
// than a failure.
func (p *Pipeline) Import(ctx context.Context) error {
	release, err := p.lease.TryAcquireWriter()
	if err != nil {
		return err
	}
	defer release()

	if err := p.store.EnsureLayout(ctx); err != nil {
		return err
	}

	blacklist := newBlacklist()
	run := &run{pipeline: p, blacklist: blacklist, graph: dag.New(), staged: make(map[id.ErasedId]id.AssetPath)}

	for {
		changed, err := run.pass(ctx)
		if err != nil {
			p.store.RemoveArea(ctx, cache.Staging)
			return err
		}
		if !changed {
			break
		}
	}

	if err := p.library.Save(ctx, p.store.Root()); err != nil {
		return err
	}
	return p.store.RemoveArea(ctx, cache.Staging)
}

// blacklist records paths that failed during the current Import() call
// so the retry loop doesn't spin on them (spec §4.6.3 "the offending
// path is blacklisted for the remainder of this import() call").
type blacklist struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newBlacklist() *blacklist { return &blacklist{seen: make(map[string]bool)} }

func (b *blacklist) add(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen[path] = true
}

func (b *blacklist) has(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seen[path]
}

// run holds the per-Import()-call state threaded through every pass:
// the accumulating dependency DAG, the blacklist, and the staged
// artifact metadata keyed by ID (needed again during processing).
type run struct {
	pipeline  *Pipeline
	blacklist *blacklist

	mu     sync.Mutex
	graph  *dag.Graph
	staged map[id.ErasedId]id.AssetPath
}

// pass executes steps 3.a-3.f of spec §4.6 once, over every source
// root, and reports whether anything changed (so Import can decide
// whether to loop again).
func (r *run) pass(ctx context.Context) (changed bool, err error) {
	var importedPaths []scanned
	var removedPaths []removalCandidate

	for _, name := range r.pipeline.sourceNames() {
		src := r.pipeline.sources[name]
		imp, rem, err := scanRoot(ctx, name, src, r.pipeline.store, r.pipeline.library, r.blacklist)
		if err != nil {
			r.pipeline.bus.Publish(event.Event{Kind: event.ScanError, Err: err})
			return false, err
		}
		importedPaths = append(importedPaths, imp...)
		removedPaths = append(removedPaths, rem...)
	}

	if len(importedPaths) == 0 && len(removedPaths) == 0 {
		return false, nil
	}

	for _, rp := range removedPaths {
		if err := r.pipeline.removePath(ctx, rp); err != nil {
			r.pipeline.bus.Publish(event.Event{Kind: event.ImportError, Path: rp.path, Err: err})
		}
	}

	r.graph = dag.New()
	r.staged = make(map[id.ErasedId]id.AssetPath)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(max(1, r.pipeline.Concurrency))
	for _, sp := range importedPaths {
		sp := sp
		group.Go(func() error {
			if r.blacklist.has(sp.path.String()) {
				return nil
			}
			if err := r.pipeline.importOne(gctx, sp, r); err != nil {
				r.blacklist.add(sp.path.String())
				r.pipeline.bus.Publish(event.Event{Kind: event.ImportError, Path: sp.path, Err: err})
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return false, err
	}

	order, err := r.graph.Build()
	if err != nil {
		var cycleErr *dag.CycleError
		if errors.As(err, &cycleErr) {
			r.pipeline.bus.Publish(event.Event{Kind: event.CycleError, Err: cycleErr})
		}
		return false, err
	}

	for _, aid := range order {
		assetPath, ok := r.staged[aid]
		if !ok {
			continue // a dependency/child id with no staged artifact of its own this pass.
		}
		if err := r.pipeline.processOne(ctx, aid, assetPath); err != nil {
			r.pipeline.bus.Publish(event.Event{Kind: event.ProcessError, ID: aid, Path: assetPath, Err: err})
		}
	}

	return true, nil
}

// scanned is one candidate file found during a scan that needs
// (re)importing.
type scanned struct {
	source string
	path   id.AssetPath
}

// removalCandidate is one path a directory's meta listed previously but
// no longer has on disk.
type removalCandidate struct {
	source string
	path   string // relative to the source root.
}

// scanRoot recursively walks src, diffing each directory's current
// listing against its DirMeta (spec §4.6 step 3.a-b), and for every
// surviving candidate file applies the skip check (spec §4.6.1).
func scanRoot(ctx context.Context, rootName string, src source.Source, store *cache.Cache, library *cache.Library, bl *blacklist) (imported []scanned, removed []removalCandidate, err error) {
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := src.ReadDir(ctx, dir)
		if err != nil {
			return errors.Wrapf(err, "pipeline: scanning %q", dir)
		}
		prevMeta, err := source.ReadDirMeta(ctx, src, dir)
		if err != nil {
			return err
		}

		current := make(map[string]bool, len(entries))
		for _, e := range entries {
			if e.IsDir {
				continue
			}
			if strings.HasSuffix(e.Name, ".meta") {
				continue
			}
			current[e.Name] = true
		}
		for _, prev := range prevMeta.Children {
			if !current[prev] {
				removed = append(removed, removalCandidate{source: rootName, path: joinDir(dir, prev)})
			}
		}
		if err := source.WriteDirMeta(ctx, src, dir, source.DirMeta{Children: sortedKeys(current)}); err != nil {
			return err
		}

		for _, e := range entries {
			full := joinDir(dir, e.Name)
			if e.IsDir {
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			if strings.HasSuffix(e.Name, ".meta") {
				continue
			}
			if bl.has((id.AssetPath{Source: rootName, Path: full}).String()) {
				continue
			}
			assetPath := id.AssetPath{Source: rootName, Path: full}
			skip, err := skipCheck(ctx, src, store, library, assetPath)
			if err != nil {
				return err
			}
			if !skip {
				imported = append(imported, scanned{source: rootName, path: assetPath})
			}
		}
		return nil
	}
	if err := walk(""); err != nil {
		return nil, nil, err
	}
	return imported, removed, nil
}

func joinDir(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// extOf returns the lower-cased extension of an asset path, without
// the leading dot, for importer lookup.
func extOf(assetPath id.AssetPath) string {
	ext := path.Ext(assetPath.Path)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
