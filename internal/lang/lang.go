// Package lang provides a language registry mapping file extensions to
// tree-sitter grammars and the rules for naming a call's callee.
package lang

import (
	"fmt"
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// CalleeKind is the syntactic shape of the expression being called.
type CalleeKind int

const (
	// CalleeName is a bare identifier: f(...).
	CalleeName CalleeKind = iota
	// CalleeAttribute is an attribute access: a.b.c(...). Only the final
	// segment is kept.
	CalleeAttribute
	// CalleeOther is anything that has no static name: f()(...), a[0](...),
	// (lambda: x)().
	CalleeOther
)

func (k CalleeKind) String() string {
	switch k {
	case CalleeName:
		return "name"
	case CalleeAttribute:
		return "attribute"
	case CalleeOther:
		return "other"
	}
	return "unknown"
}

// Callee is a classified callee expression. Name is empty for CalleeOther.
type Callee struct {
	Kind CalleeKind
	Name string
}

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language

	// CallNode is the node type of a call expression in this grammar.
	CallNode string

	// ClassifyCallee inspects a CallNode node and reports its callee shape.
	ClassifyCallee func(call *sitter.Node, source []byte) Callee

	// Validate, when set, rejects trees the grammar accepts but the language
	// does not. It runs only on trees without ERROR nodes.
	Validate func(root *sitter.Node, source []byte) error

	// Builtins are names provided by the language itself rather than by the
	// analyzed code.
	Builtins map[string]struct{}
}

// SyntaxError is a problem found by Validate. Line is 1-based.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at line %d", e.Msg, e.Line)
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// IsBuiltin reports whether name is one of the language's builtins.
func (l *Language) IsBuiltin(name string) bool {
	_, ok := l.Builtins[name]
	return ok
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}

// Names returns the registered language names, sorted.
func Names() []string {
	names := make([]string, 0, len(Languages))
	for n := range Languages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

func builtinSet(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}
