// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package dag implements the dependency DAG that orders artifact
// processing and, later, load traversal (spec §4.5): a growable
// node-indexed graph with Tarjan-style cycle detection and a
// deterministic topological order. Grounded on the arena/index graph
// idiom (nodes as a dense slice, edges as index adjacency lists) seen
// in the gopls metadata graph among the retrieved examples, generalized
// here from a reverse-import graph to a forward dependency graph with
// an explicit Build step.
package dag

import (
	"fmt"

	"github.com/gazed/assetdb/id"
)

// node is one arena entry: the asset it represents plus the indices of
// the nodes that must be processed before it.
type node struct {
	id   id.ErasedId
	deps []int // indices into Graph.nodes that must precede this node.
}

// Graph is a growable, node-indexed dependency DAG. The zero value is
// not usable; use New.
type Graph struct {
	nodes   []node
	indexOf map[id.ErasedId]int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{indexOf: make(map[id.ErasedId]int)}
}

// AddNode inserts aid if it isn't already present and returns its
// index. Calling AddNode again for an id already in the graph is a
// no-op that returns the existing index.
func (g *Graph) AddNode(aid id.ErasedId) int {
	if idx, ok := g.indexOf[aid]; ok {
		return idx
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, node{id: aid})
	g.indexOf[aid] = idx
	return idx
}

// AddDependency records that from must be processed before to (spec
// §4.5: "from must be processed before to"). Both ids are added to the
// graph first if they are not already present.
func (g *Graph) AddDependency(from, to id.ErasedId) {
	fromIdx := g.AddNode(from)
	toIdx := g.AddNode(to)
	for _, d := range g.nodes[toIdx].deps {
		if d == fromIdx {
			return // already recorded.
		}
	}
	g.nodes[toIdx].deps = append(g.nodes[toIdx].deps, fromIdx)
}

// CycleError reports a dependency cycle found during Build, naming the
// participating ids in encounter order (spec §4.5, §4.6.5).
type CycleError struct {
	Path []id.ErasedId
}

func (e *CycleError) Error() string {
	s := "dag: dependency cycle:"
	for i, aid := range e.Path {
		if i > 0 {
			s += " ->"
		}
		s += " " + aid.String()
	}
	return s
}

// visitState tracks a node's position in the DFS per Tarjan's
// three-color scheme: unvisited, on the current recursion stack, or
// fully processed.
type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

// Build computes a topological order over the graph — every node
// preceded by all of its deps — via DFS with an explicit recursion
// stack (spec §4.5). On the first cycle encountered it returns a
// *CycleError naming the cyclic path in encounter order; no order is
// returned in that case.
//
// Node visitation (and each node's dependency list) is walked in index
// order, which is insertion order, so Build is deterministic across
// runs given the same sequence of AddNode/AddDependency calls (spec
// §4.5 "deterministic... so import logs are reproducible").
func (g *Graph) Build() ([]id.ErasedId, error) {
	state := make([]visitState, len(g.nodes))
	order := make([]id.ErasedId, 0, len(g.nodes))
	stack := make([]int, 0, len(g.nodes))

	var visit func(idx int) error
	visit = func(idx int) error {
		switch state[idx] {
		case visited:
			return nil
		case visiting:
			cycle := make([]id.ErasedId, 0, len(stack)+1)
			start := 0
			for i, s := range stack {
				if s == idx {
					start = i
					break
				}
			}
			for _, s := range stack[start:] {
				cycle = append(cycle, g.nodes[s].id)
			}
			cycle = append(cycle, g.nodes[idx].id)
			return &CycleError{Path: cycle}
		}

		state[idx] = visiting
		stack = append(stack, idx)
		for _, dep := range g.nodes[idx].deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[idx] = visited
		order = append(order, g.nodes[idx].id)
		return nil
	}

	for idx := range g.nodes {
		if state[idx] == unvisited {
			if err := visit(idx); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

// Immutable is a frozen, already-ordered view of a Graph, produced by
// IntoImmutable once Build has succeeded.
type Immutable struct {
	order []id.ErasedId
}

// IntoImmutable runs Build and, on success, freezes the result as an
// Immutable that can only be iterated, never mutated further (spec
// §4.5's into_immutable()).
func (g *Graph) IntoImmutable() (*Immutable, error) {
	order, err := g.Build()
	if err != nil {
		return nil, err
	}
	return &Immutable{order: order}, nil
}

// Order returns the topological order computed by Build/IntoImmutable.
func (im *Immutable) Order() []id.ErasedId { return im.order }

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// String renders a short debug form, used by pipeline error messages
// that need to describe a graph without walking it themselves.
func (g *Graph) String() string {
	return fmt.Sprintf("dag.Graph{nodes: %d}", len(g.nodes))
}
