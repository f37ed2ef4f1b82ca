// Package model defines core data structures for pydependra.
package model

import (
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"slices"
	"strings"
)

// SourceFile is a discovered file after its bytes have been decoded.
type SourceFile struct {
	Path     string // absolute, symlinks resolved
	Language string
	Text     []byte // UTF-8
	Encoding string // detected source encoding
}

// DependencyMap maps each successfully parsed file to the names it calls,
// in order of occurrence. Duplicate names are kept; the graph collapses them.
// Files keep the order in which they were first added.
type DependencyMap struct {
	files []string
	calls map[string][]string
}

// NewDependencyMap returns an empty map.
func NewDependencyMap() *DependencyMap {
	return &DependencyMap{calls: make(map[string][]string)}
}

// Set records the calls of path. Setting an existing path replaces its calls
// but keeps its position.
func (m *DependencyMap) Set(path string, calls []string) {
	if _, ok := m.calls[path]; !ok {
		m.files = append(m.files, path)
	}
	if calls == nil {
		calls = []string{}
	}
	m.calls[path] = calls
}

// Get returns the calls recorded for path.
func (m *DependencyMap) Get(path string) ([]string, bool) {
	calls, ok := m.calls[path]
	return calls, ok
}

// Len returns the number of files in the map.
func (m *DependencyMap) Len() int {
	return len(m.files)
}

// Files returns the file paths in insertion order.
func (m *DependencyMap) Files() []string {
	return slices.Clone(m.files)
}

// All iterates over (path, calls) pairs in insertion order.
func (m *DependencyMap) All() iter.Seq2[string, []string] {
	return func(yield func(string, []string) bool) {
		for _, f := range m.files {
			if !yield(f, m.calls[f]) {
				return
			}
		}
	}
}

// Cycle is an elementary cycle: distinct nodes n0..nk-1 with an edge from each
// node to the next and from the last back to the first.
type Cycle []string

// String renders the cycle closed, e.g. "a -> b -> a".
func (c Cycle) String() string {
	if len(c) == 0 {
		return ""
	}
	return strings.Join(c, " -> ") + " -> " + c[0]
}

// Node is a graph node. File nodes stand for source files; the rest are
// called names.
type Node struct {
	Name string
	File bool
}

// Edge is a directed graph edge from a file to a called name.
type Edge struct {
	Source string
	Target string
}

// Hotspot is a called name ranked by its centrality in the graph.
type Hotspot struct {
	Name    string
	Callers int
	Rank    float64
}

// DiagnosticKind classifies a non-fatal problem encountered during a run.
type DiagnosticKind string

const (
	DiagFilesystem DiagnosticKind = "fs"
	DiagRead       DiagnosticKind = "read"
	DiagDecode     DiagnosticKind = "decode"
	DiagSyntax     DiagnosticKind = "syntax"
	DiagTooLarge   DiagnosticKind = "size"
)

// Diagnostic is a skipped entry and the reason it was skipped.
type Diagnostic struct {
	Path  string
	Kind  DiagnosticKind
	Error string
}

// Result is the complete output of one analysis run.
type Result struct {
	RunID           string
	Root            string
	Files           []string // discovered, in discovery order
	Dependencies    *DependencyMap
	Nodes           []Node // in graph order
	Edges           []Edge
	Cycles          []Cycle
	CyclesTruncated bool
	Hotspots        []Hotspot
	Diagnostics     []Diagnostic
}

var (
	// ErrDecode reports source bytes that could not be decoded to text.
	ErrDecode = errors.New("undecodable source")
	// ErrSyntax reports source text that does not parse.
	ErrSyntax = errors.New("syntax error")
)

// ParseError is returned by call extraction when a file cannot contribute
// an entry to the DependencyMap.
type ParseError struct {
	Path string
	Kind DiagnosticKind
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FSError reports a filesystem entry that discovery had to skip.
type FSError struct {
	Path string
	Err  error
}

func (e *FSError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FSError) Unwrap() error { return e.Err }

// RelPath shortens p to a forward-slash path relative to root when p lies
// under root. Anything else, including called names, is returned unchanged.
func RelPath(root, p string) string {
	if root == "" || !filepath.IsAbs(p) {
		return p
	}
	r, err := filepath.Rel(root, p)
	if err != nil || r == ".." || strings.HasPrefix(r, "../") || strings.HasPrefix(r, `..\`) {
		return p
	}
	return filepath.ToSlash(r)
}

// DiagnosticFor converts a per-file error into a Diagnostic.
func DiagnosticFor(err error) Diagnostic {
	var pe *ParseError
	if errors.As(err, &pe) {
		return Diagnostic{Path: pe.Path, Kind: pe.Kind, Error: pe.Err.Error()}
	}
	var fe *FSError
	if errors.As(err, &fe) {
		return Diagnostic{Path: fe.Path, Kind: DiagFilesystem, Error: fe.Err.Error()}
	}
	return Diagnostic{Kind: DiagFilesystem, Error: err.Error()}
}
