package syntax

import "fmt"

// Kind is the closed set of node categories the change tracker reasons about.
// Grammar-specific node types are mapped onto these by a grammar profile.
type Kind uint8

const (
	// Other is any node with no special meaning to the tracker: expressions,
	// keywords, identifiers that do not name a declaration.
	Other Kind = iota
	Whitespace
	Comment
	// ErrorMarker is a placeholder the parser inserts during error recovery.
	ErrorMarker
	// ScopeBoundary is a lexically scoping clause (module header, import,
	// namespace command) that is not itself a declaration.
	ScopeBoundary
	// DynamicContainer holds declarations discovered as statements inside
	// another declaration's body, such as a class's inline members.
	DynamicContainer
	// DeclName is the subtree that names a declaration.
	DeclName
	// File is the tree root.
	File
	// Declaration is a named, independently analyzable unit.
	Declaration
	// Statement wraps zero or one declaration.
	Statement

	numKinds
)

var kindNames = [numKinds]string{
	Other:            "other",
	Whitespace:       "whitespace",
	Comment:          "comment",
	ErrorMarker:      "error",
	ScopeBoundary:    "scope_boundary",
	DynamicContainer: "dynamic_container",
	DeclName:         "decl_name",
	File:             "file",
	Declaration:      "declaration",
	Statement:        "statement",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return Other, false
}

// IsGroup reports whether nodes of this kind can own nested declarations.
func (k Kind) IsGroup() bool {
	switch k {
	case File, Declaration, DynamicContainer:
		return true
	default:
		return false
	}
}

// IsStopBoundary reports whether an upward walk from an edit site must stop
// at a node of this kind without attributing the edit to any declaration.
func (k Kind) IsStopBoundary() bool {
	switch k {
	case ScopeBoundary, File, DynamicContainer:
		return true
	default:
		return false
	}
}
