// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package event is the database's outward-facing notification channel
// (spec §4.7.4, §5): asset lifecycle notices and typed pipeline errors,
// published by the import pipeline and load manager and drained by the
// host application once per tick. It generalizes the teacher's
// dedicated msg channels (loader.load, loader.loaded, machine.binder in
// the old loader.go) into one ordered, unbounded queue shared by every
// publisher, since the database itself has no per-tick loop of its own
// to own a blocking channel consumer.
package event

import (
	"sync"

	"github.com/gazed/assetdb/id"
)

// Kind identifies what an Event reports.
type Kind int

const (
	// AssetAdded reports a newly imported or reimported asset (spec
	// §4.6.4: "enqueue an ImportedAsset event so the load manager can
	// reload it").
	AssetAdded Kind = iota
	// AssetRemoved reports an asset dropped from the library during
	// removal propagation (spec §4.6.2).
	AssetRemoved
	// AssetLoaded reports a successful load by id, path and type (spec
	// §4.7.1 step c); the deserialized asset itself goes straight to the
	// load manager's WorldSink.
	AssetLoaded

	// ScanError reports a failure walking a source root (spec §7).
	ScanError
	// ImportError reports a per-path import failure (spec §7).
	ImportError
	// ProcessError reports a per-ID process failure (spec §7).
	ProcessError
	// SaveError reports a failed write to sources/ or artifacts/ (spec §7).
	SaveError
	// CycleError reports a fatal dependency cycle found during a DAG
	// build; the pass that found it is aborted (spec §4.6.5, §7).
	CycleError
	// LoadError reports a load() failure: NotFound, Io,
	// MissingDeserializer, or Deserialize (spec §7).
	LoadError
)

// Event is one notice published to the Bus.
type Event struct {
	Kind Kind
	ID   id.ErasedId
	Path id.AssetPath
	Type id.AssetType
	// Err carries the underlying error for the *Error kinds; nil for
	// lifecycle kinds.
	Err error
}

// Bus is the unbounded, ordered event queue the pipeline and load
// manager publish to (spec §4.7.4: "published through an unbounded
// MPSC channel drained by the consumer each tick"). A slice-backed
// queue behind a mutex is used instead of a Go channel because the
// host application drains in batches once per tick rather than
// blocking on each event, and an unbounded Go channel would need the
// same backing growth logic internally anyway.
type Bus struct {
	mu     sync.Mutex
	events []Event
}

// NewBus returns an empty event bus.
func NewBus() *Bus { return &Bus{} }

// Publish appends e to the queue. Safe for concurrent use by multiple
// publishers (the pipeline's worker pool, the load manager).
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

// Drain removes and returns every event queued since the last Drain,
// in publish order. Intended to be called once per host application
// tick.
func (b *Bus) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	drained := b.events
	b.events = nil
	return drained
}
