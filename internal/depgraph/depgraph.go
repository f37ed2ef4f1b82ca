// Package depgraph builds the directed file → called-name graph.
package depgraph

import (
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/phobologic/pydependra/internal/model"
)

// Graph is a simple directed graph over string-named nodes. Node ids are
// assigned in insertion order starting at 0, so id order is the fixed node
// order used by cycle enumeration. Duplicate edges collapse; self-loops are
// kept beside the gonum graph, which cannot store them.
type Graph struct {
	g     *simple.DirectedGraph
	names []string
	ids   map[string]int64
	files map[int64]struct{}
	succ  [][]int64 // successors per node in edge insertion order, self-loops excluded
	self  map[int64]struct{}
	edges int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		g:     simple.NewDirectedGraph(),
		ids:   make(map[string]int64),
		files: make(map[int64]struct{}),
		self:  make(map[int64]struct{}),
	}
}

// Build creates a graph from m: a node for every file (even one with no
// calls), a node for every distinct called name, and one edge per distinct
// (file, name) pair.
func Build(m *model.DependencyMap) *Graph {
	return BuildWith(m, nil)
}

// BuildWith is Build with file nodes named by nodeName(path). Files that map
// to the same name share a node. A nil nodeName keeps the path.
func BuildWith(m *model.DependencyMap, nodeName func(path string) string) *Graph {
	g := New()
	for file, calls := range m.All() {
		node := file
		if nodeName != nil {
			node = nodeName(file)
		}
		g.AddFile(node)
		for _, name := range calls {
			g.AddEdge(node, name)
		}
	}
	return g
}

// Stem names a file node by its base name without extension, so a file
// a.py and a call to a() meet at the same node.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// AddNode adds name if absent and returns its id.
func (g *Graph) AddNode(name string) int64 {
	if id, ok := g.ids[name]; ok {
		return id
	}
	id := int64(len(g.names))
	g.ids[name] = id
	g.names = append(g.names, name)
	g.succ = append(g.succ, nil)
	g.g.AddNode(simple.Node(id))
	return id
}

// AddFile adds name and marks it as a source file.
func (g *Graph) AddFile(name string) int64 {
	id := g.AddNode(name)
	g.files[id] = struct{}{}
	return id
}

// AddEdge adds both endpoints if needed and the edge from → to if absent.
// It reports whether a new edge was created.
func (g *Graph) AddEdge(from, to string) bool {
	f, t := g.AddNode(from), g.AddNode(to)
	if f == t {
		if _, ok := g.self[f]; ok {
			return false
		}
		g.self[f] = struct{}{}
		g.edges++
		return true
	}
	if g.g.HasEdgeFromTo(f, t) {
		return false
	}
	g.g.SetEdge(simple.Edge{F: simple.Node(f), T: simple.Node(t)})
	g.succ[f] = append(g.succ[f], t)
	g.edges++
	return true
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.names) }

// EdgeCount returns the number of distinct edges, self-loops included.
func (g *Graph) EdgeCount() int { return g.edges }

// Name returns the node name for id.
func (g *Graph) Name(id int64) string { return g.names[id] }

// ID returns the id of name.
func (g *Graph) ID(name string) (int64, bool) {
	id, ok := g.ids[name]
	return id, ok
}

// Has reports whether name is a node.
func (g *Graph) Has(name string) bool {
	_, ok := g.ids[name]
	return ok
}

// IsFile reports whether the node was added as a source file.
func (g *Graph) IsFile(id int64) bool {
	_, ok := g.files[id]
	return ok
}

// HasSelfLoop reports whether id has an edge to itself.
func (g *Graph) HasSelfLoop(id int64) bool {
	_, ok := g.self[id]
	return ok
}

// HasEdge reports whether the edge from → to exists.
func (g *Graph) HasEdge(from, to string) bool {
	f, ok1 := g.ids[from]
	t, ok2 := g.ids[to]
	if !ok1 || !ok2 {
		return false
	}
	if f == t {
		return g.HasSelfLoop(f)
	}
	return g.g.HasEdgeFromTo(f, t)
}

// Successors returns the ids id points to, excluding id itself, in the order
// the edges were added. The slice must not be modified.
func (g *Graph) Successors(id int64) []int64 { return g.succ[id] }

// Callers returns the in-degree of id, counting a self-loop once.
func (g *Graph) Callers(id int64) int {
	n := g.g.To(id).Len()
	if g.HasSelfLoop(id) {
		n++
	}
	return n
}

// Nodes returns all node names in id order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Edges returns every edge, grouped by source in id order, targets in
// insertion order with a self-loop first.
func (g *Graph) Edges() []model.Edge {
	out := make([]model.Edge, 0, g.edges)
	for id, name := range g.names {
		if g.HasSelfLoop(int64(id)) {
			out = append(out, model.Edge{Source: name, Target: name})
		}
		for _, t := range g.succ[id] {
			out = append(out, model.Edge{Source: name, Target: g.names[t]})
		}
	}
	return out
}

// Directed exposes the graph without self-loops to gonum algorithms.
func (g *Graph) Directed() graph.Directed { return g.g }
