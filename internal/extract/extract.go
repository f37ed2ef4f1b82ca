// Package extract reads source files and collects the names they call.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/pydependra/internal/lang"
	"github.com/phobologic/pydependra/internal/model"
	"github.com/phobologic/pydependra/internal/textenc"
)

// MaxDepth bounds syntax tree traversal. Deeper subtrees fail the file
// rather than exhaust memory on pathological input.
const MaxDepth = 5000

// ErrTooDeep reports a syntax tree nested beyond MaxDepth.
var ErrTooDeep = errors.New("syntax tree too deep")

// File reads, decodes and parses the file at path and returns its calls.
// Any failure is a *model.ParseError; the file must then be left out of the
// DependencyMap.
func File(ctx context.Context, l *lang.Language, parser *sitter.Parser, path string) (model.SourceFile, []string, error) {
	sf := model.SourceFile{Path: path, Language: l.Name}

	raw, err := os.ReadFile(path)
	if err != nil {
		return sf, nil, &model.ParseError{Path: path, Kind: model.DiagRead, Err: err}
	}

	text, enc, err := textenc.Decode(raw)
	sf.Encoding = enc
	if err != nil {
		return sf, nil, &model.ParseError{Path: path, Kind: model.DiagDecode, Err: err}
	}
	sf.Text = text

	calls, err := Calls(ctx, l, parser, text)
	if err != nil {
		return sf, nil, &model.ParseError{Path: path, Kind: model.DiagSyntax, Err: err}
	}
	return sf, calls, nil
}

// Calls parses UTF-8 source and returns the callee name of every call
// expression in pre-order (source order, outer call before the calls in its
// arguments). Calls whose callee has no static name contribute nothing.
// A tree containing syntax errors, or rejected by the language's Validate
// hook, yields an error wrapping model.ErrSyntax.
func Calls(ctx context.Context, l *lang.Language, parser *sitter.Parser, source []byte) ([]string, error) {
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w near line %d", model.ErrSyntax, firstErrorLine(root))
	}
	if l.Validate != nil {
		if err := l.Validate(root, source); err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrSyntax, err)
		}
	}

	type entry struct {
		node  *sitter.Node
		depth int
	}

	// Each node is pushed once by its parent and the tree is acyclic, so no
	// visited set is needed.
	calls := []string{}
	stack := []entry{{node: root}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if e.depth > MaxDepth {
			return nil, ErrTooDeep
		}

		if e.node.Type() == l.CallNode {
			callee := l.ClassifyCallee(e.node, source)
			switch callee.Kind {
			case lang.CalleeName, lang.CalleeAttribute:
				calls = append(calls, callee.Name)
			case lang.CalleeOther:
				// no static name
			}
		}

		// Push in reverse so children pop left to right.
		for i := int(e.node.ChildCount()) - 1; i >= 0; i-- {
			if child := e.node.Child(i); child != nil {
				stack = append(stack, entry{node: child, depth: e.depth + 1})
			}
		}
	}
	return calls, nil
}

// firstErrorLine returns the 1-based line of the first ERROR or missing node.
func firstErrorLine(root *sitter.Node) int {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Type() == "ERROR" || n.IsMissing() {
			return int(n.StartPoint().Row) + 1
		}
		if !n.HasError() {
			continue
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if c := n.Child(i); c != nil {
				stack = append(stack, c)
			}
		}
	}
	return int(root.StartPoint().Row) + 1
}
