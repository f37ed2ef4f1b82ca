package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

func init() {
	Languages["go"] = &Language{
		Name:           "go",
		Extensions:     []string{".go"},
		lang:           golang.GetLanguage(),
		CallNode:       "call_expression",
		ClassifyCallee: goClassifyCallee,
		Builtins: builtinSet(
			"append", "cap", "clear", "close", "complex", "copy", "delete",
			"imag", "len", "make", "max", "min", "new", "panic", "print",
			"println", "real", "recover",
		),
	}
}

// goClassifyCallee handles call_expression: identifier → name,
// selector_expression (pkg.F, recv.M) → its field. Conversions through
// parenthesized types, generic instantiations and func literals have no name.
func goClassifyCallee(call *sitter.Node, source []byte) Callee {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return Callee{Kind: CalleeOther}
	}
	switch fn.Type() {
	case "identifier":
		return Callee{Kind: CalleeName, Name: NodeText(fn, source)}
	case "selector_expression":
		field := fn.ChildByFieldName("field")
		if field == nil {
			return Callee{Kind: CalleeOther}
		}
		return Callee{Kind: CalleeAttribute, Name: NodeText(field, source)}
	default:
		return Callee{Kind: CalleeOther}
	}
}
