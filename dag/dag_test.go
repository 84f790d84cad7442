// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package dag

import (
	"testing"

	"github.com/gazed/assetdb/id"
)

func TestBuildTopologicalOrder(t *testing.T) {
	a, b, c := id.NewErasedId(), id.NewErasedId(), id.NewErasedId()
	g := New()
	g.AddDependency(a, b) // a before b
	g.AddDependency(b, c) // b before c

	order, err := g.Build()
	if err != nil {
		t.Fatalf("Build returned error: %s", err)
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 nodes in order, got %d", len(order))
	}
	pos := map[id.ErasedId]int{}
	for i, n := range order {
		pos[n] = i
	}
	if pos[a] >= pos[b] || pos[b] >= pos[c] {
		t.Errorf("expected a before b before c, got order %v", order)
	}
}

func TestBuildDetectsCycle(t *testing.T) {
	a, b := id.NewErasedId(), id.NewErasedId()
	g := New()
	g.AddDependency(a, b)
	g.AddDependency(b, a)

	_, err := g.Build()
	if err == nil {
		t.Fatalf("expected a cycle error")
	}
	cycleErr, ok := err.(*CycleError)
	if !ok {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if len(cycleErr.Path) < 2 {
		t.Errorf("expected a cycle path naming at least 2 ids, got %v", cycleErr.Path)
	}
}

func TestBuildSelfCycle(t *testing.T) {
	a := id.NewErasedId()
	g := New()
	g.AddDependency(a, a)

	if _, err := g.Build(); err == nil {
		t.Errorf("expected a self-dependency to be reported as a cycle")
	}
}

func TestIntoImmutableOrder(t *testing.T) {
	a, b := id.NewErasedId(), id.NewErasedId()
	g := New()
	g.AddDependency(a, b)

	im, err := g.IntoImmutable()
	if err != nil {
		t.Fatalf("IntoImmutable returned error: %s", err)
	}
	if len(im.Order()) != 2 {
		t.Errorf("expected 2 nodes, got %d", len(im.Order()))
	}
}

func TestIndependentNodesBothAppear(t *testing.T) {
	a, b := id.NewErasedId(), id.NewErasedId()
	g := New()
	g.AddNode(a)
	g.AddNode(b)

	order, err := g.Build()
	if err != nil {
		t.Fatalf("Build returned error: %s", err)
	}
	if len(order) != 2 {
		t.Errorf("expected 2 independent nodes, got %d", len(order))
	}
}
