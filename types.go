package freshen

import "github.com/jward/freshen/internal/syntax"

// Public aliases for the syntax tree types the Engine consumes. These are
// Go type aliases (=); no conversion is needed.

type Node = syntax.Node
type Tree = syntax.Tree
type Kind = syntax.Kind
type TreeListener = syntax.Listener

const (
	KindOther            = syntax.Other
	KindWhitespace       = syntax.Whitespace
	KindComment          = syntax.Comment
	KindErrorMarker      = syntax.ErrorMarker
	KindScopeBoundary    = syntax.ScopeBoundary
	KindDynamicContainer = syntax.DynamicContainer
	KindDeclName         = syntax.DeclName
	KindFile             = syntax.File
	KindDeclaration      = syntax.Declaration
	KindStatement        = syntax.Statement
)

// Constructors for trees built outside this module.
var (
	NewLeaf = syntax.NewLeaf
	NewNode = syntax.NewNode
	NewTree = syntax.NewTree
)
