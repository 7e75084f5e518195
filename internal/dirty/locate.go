package dirty

import "github.com/jward/freshen/internal/syntax"

// Location is the result of attributing an edit to a declaration.
type Location struct {
	Decl *syntax.Node
	// Subtree is set when the edit renamed Decl, which can change how every
	// lookup inside it resolves.
	Subtree bool
}

func (l Location) Found() bool { return l.Decl != nil }

// Locate finds the narrowest declaration enclosing an edit whose parent is
// editParent. The walk never continues past the first declaration, and
// gives up at scope boundaries, dynamic containers and the file root.
func Locate(editParent *syntax.Node) Location {
	if editParent == nil {
		return Location{}
	}
	if editParent.Kind() == syntax.DeclName {
		if g := editParent.Parent(); g != nil && g.Kind() == syntax.Declaration {
			return Location{Decl: g, Subtree: true}
		}
	}
	for elem := editParent; elem != nil; elem = elem.Parent() {
		switch elem.Kind() {
		case syntax.ScopeBoundary, syntax.File, syntax.DynamicContainer:
			return Location{}
		case syntax.Declaration:
			return Location{Decl: elem}
		case syntax.Other, syntax.Whitespace, syntax.Comment, syntax.ErrorMarker,
			syntax.DeclName, syntax.Statement:
		}
	}
	return Location{}
}
