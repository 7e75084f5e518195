package syntax

import (
	"fmt"
	"strings"
	"sync/atomic"
)

var lastID atomic.Uint64

// Node is an element of a mutable syntax tree. Children are owned by their
// parent; the parent pointer is a back reference only. A node belongs to at
// most one parent at a time.
//
// Nodes are not safe for concurrent mutation. Trees are edited by a single
// writer, and readers observe them only from inside mutation callbacks or
// between edits.
type Node struct {
	id       uint64
	kind     Kind
	typ      string
	text     string
	parent   *Node
	children []*Node
}

// NewLeaf creates a childless node holding text.
func NewLeaf(kind Kind, typ, text string) *Node {
	return &Node{id: lastID.Add(1), kind: kind, typ: typ, text: text}
}

// NewNode creates an inner node owning children. It panics if a child is
// already attached elsewhere; builders construct fresh subtrees bottom-up.
func NewNode(kind Kind, typ string, children ...*Node) *Node {
	n := &Node{id: lastID.Add(1), kind: kind, typ: typ}
	for _, c := range children {
		if c == nil {
			continue
		}
		if c.parent != nil {
			panic(fmt.Sprintf("syntax: %s already attached to %s", c, c.parent))
		}
		c.parent = n
		n.children = append(n.children, c)
	}
	return n
}

// ID is unique within the process and stable for the node's lifetime.
func (n *Node) ID() uint64 { return n.id }

func (n *Node) Kind() Kind { return n.kind }

// Type is the grammar's name for the node, e.g. "value_declaration".
func (n *Node) Type() string { return n.typ }

// Parent returns nil for roots and detached nodes.
func (n *Node) Parent() *Node {
	if n == nil {
		return nil
	}
	return n.parent
}

// Children returns the node's children in order. The slice must not be
// modified; use Tree to edit.
func (n *Node) Children() []*Node { return n.children }

func (n *Node) ChildCount() int { return len(n.children) }

// Child returns the i-th child or nil when out of range.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// Text is the source text of a leaf. Inner nodes carry no text of their own;
// see Source.
func (n *Node) Text() string { return n.text }

// Len is the length in bytes of the text the node spans.
func (n *Node) Len() int {
	if n.IsLeaf() {
		return len(n.text)
	}
	total := 0
	for _, c := range n.children {
		total += c.Len()
	}
	return total
}

// Source reconstructs the text spanned by the node.
func (n *Node) Source() string {
	if n.IsLeaf() {
		return n.text
	}
	var b strings.Builder
	Walk(n, func(m *Node) bool {
		if m.IsLeaf() {
			b.WriteString(m.text)
		}
		return true
	})
	return b.String()
}

// Index returns the node's position among its parent's children, or -1.
func (n *Node) Index() int {
	if n.parent == nil {
		return -1
	}
	for i, c := range n.parent.children {
		if c == n {
			return i
		}
	}
	return -1
}

// Root follows parent pointers to the top.
func (n *Node) Root() *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// Depth counts the ancestors of n.
func (n *Node) Depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Contains reports whether m is n or one of its descendants.
func (n *Node) Contains(m *Node) bool {
	for ; m != nil; m = m.parent {
		if m == n {
			return true
		}
	}
	return false
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	if n.typ == "" {
		return fmt.Sprintf("%s#%d", n.kind, n.id)
	}
	return fmt.Sprintf("%s(%s)#%d", n.kind, n.typ, n.id)
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.children {
		Walk(c, fn)
	}
}

// Payload returns the declaration carried by a Statement wrapper, or nil.
func Payload(stmt *Node) *Node {
	if stmt == nil || stmt.kind != Statement {
		return nil
	}
	for _, c := range stmt.children {
		if c.kind == Declaration {
			return c
		}
	}
	return nil
}

// NameNode returns the DeclName child of a declaration, or nil.
func NameNode(decl *Node) *Node {
	if decl == nil {
		return nil
	}
	for _, c := range decl.children {
		if c.kind == DeclName {
			return c
		}
	}
	return nil
}

// Name returns the identifier a declaration is known by: the first
// non-whitespace leaf under its DeclName child. Declarations without a name
// subtree return "".
func Name(decl *Node) string {
	nameNode := NameNode(decl)
	if nameNode == nil {
		return ""
	}
	var name string
	Walk(nameNode, func(m *Node) bool {
		if name != "" {
			return false
		}
		if m.IsLeaf() && m.kind != Whitespace && m.kind != Comment {
			name = strings.TrimSpace(m.text)
		}
		return true
	})
	return name
}

// Declarations returns every declaration under n in pre-order, n included.
func Declarations(n *Node) []*Node {
	var decls []*Node
	Walk(n, func(m *Node) bool {
		if m.kind == Declaration {
			decls = append(decls, m)
		}
		return true
	})
	return decls
}
