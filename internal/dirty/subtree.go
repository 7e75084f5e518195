package dirty

import "github.com/jward/freshen/internal/syntax"

// InvalidateSubtree emits n if it is a declaration, then every declaration
// nested in it: statically nested ones, those held by dynamic containers,
// and payloads of statement wrappers. Traversal is pre-order and applies no
// filtering. It returns the number of declarations emitted.
func InvalidateSubtree(n *syntax.Node, emit func(decl *syntax.Node)) int {
	if n == nil {
		return 0
	}
	count := 0
	var visit func(*syntax.Node)
	visit = func(n *syntax.Node) {
		switch n.Kind() {
		case syntax.Whitespace, syntax.Comment, syntax.DeclName:
			return
		case syntax.Declaration:
			emit(n)
			count++
		case syntax.Statement:
			// The wrapper is transparent: its payload is reached below and
			// the statement itself is never reported.
		case syntax.File, syntax.DynamicContainer, syntax.ScopeBoundary,
			syntax.ErrorMarker, syntax.Other:
		}
		for _, c := range n.Children() {
			visit(c)
		}
	}
	visit(n)
	return count
}
