// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package lease implements the single many-reader/one-writer lock that
// guards the import cycle (spec §4.7.4): import() takes the exclusive
// writer side, load() and reload() take the shared reader side. It is
// its own package, rather than living in pipeline or load, because both
// of those packages need to take opposite sides of the same lock
// without importing one another.
package lease

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrWriterHeld is returned by TryAcquireWriter when another import()
// is already running (spec §4.6 step 1: "if already held, return
// immediately").
var ErrWriterHeld = errors.New("lease: writer already held")

// Lease is a many-reader/one-writer lock. The zero value is ready to use.
type Lease struct {
	mu sync.RWMutex
}

// TryAcquireWriter attempts to take the exclusive side without
// blocking. On success it returns a release func the caller must call
// exactly once; on failure it returns ErrWriterHeld.
func (l *Lease) TryAcquireWriter() (release func(), err error) {
	if !l.mu.TryLock() {
		return nil, ErrWriterHeld
	}
	return l.mu.Unlock, nil
}

// AcquireReader takes the shared side, blocking only against an active
// writer (spec §4.7.1 step 1: "blocks only against an active
// importer"). It returns promptly if ctx is already done.
func (l *Lease) AcquireReader(ctx context.Context) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	return l.mu.RUnlock, nil
}
