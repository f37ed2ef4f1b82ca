package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

func init() {
	Languages["python"] = &Language{
		Name:           "python",
		Extensions:     []string{".py"},
		lang:           python.GetLanguage(),
		CallNode:       "call",
		ClassifyCallee: pythonClassifyCallee,
		Validate:       pythonValidate,
		Builtins: builtinSet(
			"abs", "aiter", "all", "anext", "any", "ascii", "bin", "bool",
			"breakpoint", "bytearray", "bytes", "callable", "chr", "classmethod",
			"compile", "complex", "delattr", "dict", "dir", "divmod", "enumerate",
			"eval", "exec", "filter", "float", "format", "frozenset", "getattr",
			"globals", "hasattr", "hash", "help", "hex", "id", "input", "int",
			"isinstance", "issubclass", "iter", "len", "list", "locals", "map",
			"max", "memoryview", "min", "next", "object", "oct", "open", "ord",
			"pow", "print", "property", "range", "repr", "reversed", "round",
			"set", "setattr", "slice", "sorted", "staticmethod", "str", "sum",
			"super", "tuple", "type", "vars", "zip", "__import__",
		),
	}
}

// pythonClassifyCallee reads the function field of a call node:
// identifier → name, attribute → its final attribute identifier.
func pythonClassifyCallee(call *sitter.Node, source []byte) Callee {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return Callee{Kind: CalleeOther}
	}
	switch fn.Type() {
	case "identifier":
		return Callee{Kind: CalleeName, Name: NodeText(fn, source)}
	case "attribute":
		attr := fn.ChildByFieldName("attribute")
		if attr == nil {
			return Callee{Kind: CalleeOther}
		}
		return Callee{Kind: CalleeAttribute, Name: NodeText(attr, source)}
	default:
		return Callee{Kind: CalleeOther}
	}
}

// pythonValidate rejects what the grammar tolerates but Python 3 does not:
// Python 2 print and exec statements, "except E, e:" clauses, empty or
// misindented blocks, and indented top-level statements.
func pythonValidate(root *sitter.Node, source []byte) error {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := pythonCheckNode(n); err != nil {
			return err
		}

		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if c := n.Child(i); c != nil {
				stack = append(stack, c)
			}
		}
	}
	return nil
}

func pythonCheckNode(n *sitter.Node) error {
	switch n.Type() {
	case "print_statement":
		// print >> f, x is a valid expression in Python 3.
		if first := n.NamedChild(0); first == nil || first.Type() != "chevron" {
			return syntaxErrorAt(n, "missing parentheses in call to print")
		}
	case "exec_statement":
		return syntaxErrorAt(n, "missing parentheses in call to exec")
	case "except_clause":
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); c != nil && !c.IsNamed() && c.Type() == "," {
				return syntaxErrorAt(c, "multiple exception types must be parenthesized")
			}
		}
	case "module":
		return pythonCheckStatements(n, -1)
	case "block":
		header := -1
		if p := n.Parent(); p != nil {
			header = int(p.StartPoint().Column)
		}
		return pythonCheckStatements(n, header)
	}
	return nil
}

// pythonCheckStatements checks the indentation of the statements directly in
// a module (header < 0) or a block whose header starts at column header.
// Statements sharing a line with the previous one (a; b) are not checked.
func pythonCheckStatements(n *sitter.Node, header int) error {
	var (
		col     int
		prevEnd uint32
		seen    bool
	)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil || c.Type() == "comment" || c.Type() == "line_continuation" {
			continue
		}
		start := c.StartPoint()
		switch {
		case !seen:
			col = int(start.Column)
			if header < 0 && col != 0 {
				return syntaxErrorAt(c, "unexpected indent")
			}
			if header >= 0 && col <= header {
				return syntaxErrorAt(c, "expected an indented block")
			}
		case start.Row != prevEnd && int(start.Column) > col:
			return syntaxErrorAt(c, "unexpected indent")
		case start.Row != prevEnd && int(start.Column) < col:
			return syntaxErrorAt(c, "unindent does not match any outer indentation level")
		}
		seen = true
		prevEnd = c.EndPoint().Row
	}
	if header >= 0 && !seen {
		return syntaxErrorAt(n, "expected an indented block")
	}
	return nil
}

func syntaxErrorAt(n *sitter.Node, msg string) error {
	return &SyntaxError{Line: int(n.StartPoint().Row) + 1, Msg: msg}
}
