// Package cycles enumerates the elementary cycles of a dependency graph.
//
// The search is Johnson's circuit algorithm run once per start node s in id
// order, restricted to nodes with id > s inside s's strongly connected
// component. Every cycle is therefore found exactly once, already rotated to
// begin at its lowest-id node. The depth-first search and the unblocking
// cascade both use explicit stacks, and the context is checked on every step.
package cycles

import (
	"context"
	"slices"
	"strings"

	"gonum.org/v1/gonum/graph/topo"

	"github.com/phobologic/pydependra/internal/depgraph"
	"github.com/phobologic/pydependra/internal/model"
)

// Options bounds a search.
type Options struct {
	// MaxCycles stops the search once this many cycles are found. Zero means
	// no limit.
	MaxCycles int
}

// Result holds the cycles in discovery order.
type Result struct {
	Cycles    []model.Cycle
	Truncated bool // MaxCycles was reached
}

type frame struct {
	v     int64
	next  int  // index into the successor list
	found bool // a cycle was closed below this frame
}

type enumerator struct {
	g       *depgraph.Graph
	opts    Options
	comp    []int     // scc index per node
	members [][]int64 // nodes per scc, ascending
	blocked []bool
	bset    []map[int64]struct{}
	path    []int64
	stack   []frame
	work    []int64
	res     Result
}

// Enumerate returns every elementary cycle of g. A self-loop yields a
// one-node cycle. If ctx is done before the search completes, the cycles
// found so far are returned with ctx.Err().
func Enumerate(ctx context.Context, g *depgraph.Graph, opts Options) (Result, error) {
	n := g.Len()
	e := &enumerator{
		g:       g,
		opts:    opts,
		comp:    make([]int, n),
		blocked: make([]bool, n),
		bset:    make([]map[int64]struct{}, n),
	}
	for i, scc := range topo.TarjanSCC(g.Directed()) {
		ids := make([]int64, len(scc))
		for j, node := range scc {
			ids[j] = node.ID()
			e.comp[node.ID()] = i
		}
		slices.Sort(ids)
		e.members = append(e.members, ids)
	}

	for s := int64(0); s < int64(n); s++ {
		if err := ctx.Err(); err != nil {
			return e.res, err
		}
		if g.HasSelfLoop(s) {
			if e.emit([]int64{s}) {
				return e.res, nil
			}
		}
		if len(e.members[e.comp[s]]) < 2 {
			continue
		}
		stop, err := e.circuits(ctx, s)
		if err != nil || stop {
			return e.res, err
		}
	}
	return e.res, nil
}

// circuits finds all cycles through s using nodes above s in its component.
// It reports stop when the cycle limit is reached.
func (e *enumerator) circuits(ctx context.Context, s int64) (bool, error) {
	c := e.comp[s]
	for _, v := range e.members[c] {
		if v >= s {
			e.blocked[v] = false
			clear(e.bset[v])
		}
	}
	inScope := func(w int64) bool { return w > s && e.comp[w] == c }

	done := ctx.Done()
	e.path = append(e.path[:0], s)
	e.stack = append(e.stack[:0], frame{v: s})
	e.blocked[s] = true

	for len(e.stack) > 0 {
		select {
		case <-done:
			return false, ctx.Err()
		default:
		}

		top := &e.stack[len(e.stack)-1]
		succ := e.g.Successors(top.v)

		if top.next < len(succ) {
			w := succ[top.next]
			top.next++
			switch {
			case w == s:
				top.found = true
				if e.emit(e.path) {
					return true, nil
				}
			case inScope(w) && !e.blocked[w]:
				e.path = append(e.path, w)
				e.blocked[w] = true
				e.stack = append(e.stack, frame{v: w})
			}
			continue
		}

		v, found := top.v, top.found
		if found {
			e.unblock(v)
		} else {
			for _, w := range succ {
				if inScope(w) {
					if e.bset[w] == nil {
						e.bset[w] = make(map[int64]struct{})
					}
					e.bset[w][v] = struct{}{}
				}
			}
		}
		e.stack = e.stack[:len(e.stack)-1]
		e.path = e.path[:len(e.path)-1]
		if found && len(e.stack) > 0 {
			e.stack[len(e.stack)-1].found = true
		}
	}
	return false, nil
}

// unblock clears v and, transitively, every node waiting on it.
func (e *enumerator) unblock(v int64) {
	e.work = append(e.work[:0], v)
	for len(e.work) > 0 {
		u := e.work[len(e.work)-1]
		e.work = e.work[:len(e.work)-1]
		if !e.blocked[u] {
			continue
		}
		e.blocked[u] = false
		for w := range e.bset[u] {
			e.work = append(e.work, w)
		}
		clear(e.bset[u])
	}
}

// emit records a copy of ids as a cycle and reports whether the limit is hit.
func (e *enumerator) emit(ids []int64) bool {
	c := make(model.Cycle, len(ids))
	for i, id := range ids {
		c[i] = e.g.Name(id)
	}
	e.res.Cycles = append(e.res.Cycles, c)
	if e.opts.MaxCycles > 0 && len(e.res.Cycles) >= e.opts.MaxCycles {
		e.res.Truncated = true
		return true
	}
	return false
}

// Canonical rotates c so that it begins at the element that sorts first
// under less. Rotations of one cycle share a canonical form.
func Canonical(c model.Cycle, less func(a, b string) bool) model.Cycle {
	if len(c) < 2 {
		return c
	}
	min := 0
	for i := 1; i < len(c); i++ {
		if less(c[i], c[min]) {
			min = i
		}
	}
	out := make(model.Cycle, 0, len(c))
	out = append(out, c[min:]...)
	return append(out, c[:min]...)
}

// ByGraphOrder orders node names by their id in g.
func ByGraphOrder(g *depgraph.Graph) func(a, b string) bool {
	return func(a, b string) bool {
		ia, _ := g.ID(a)
		ib, _ := g.ID(b)
		return ia < ib
	}
}

// Lexical orders node names as strings.
func Lexical(a, b string) bool { return a < b }

// Key identifies a canonical cycle.
func Key(c model.Cycle) string {
	return strings.Join(c, "\x00")
}

// Set is a set of cycles under rotation equivalence.
type Set struct {
	less  func(a, b string) bool
	keys  map[string]struct{}
	items []model.Cycle
}

// NewSet returns an empty set that canonicalizes with less.
func NewSet(less func(a, b string) bool) *Set {
	return &Set{less: less, keys: make(map[string]struct{})}
}

// Add inserts c in canonical form and reports whether it was new.
func (s *Set) Add(c model.Cycle) bool {
	c = Canonical(c, s.less)
	k := Key(c)
	if _, ok := s.keys[k]; ok {
		return false
	}
	s.keys[k] = struct{}{}
	s.items = append(s.items, c)
	return true
}

// Contains reports whether c, or a rotation of it, is in the set.
func (s *Set) Contains(c model.Cycle) bool {
	_, ok := s.keys[Key(Canonical(c, s.less))]
	return ok
}

// Len returns the number of distinct cycles.
func (s *Set) Len() int { return len(s.keys) }

// Cycles returns the canonical cycles in insertion order.
func (s *Set) Cycles() []model.Cycle { return s.items }
