package syntax

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrAttached = errors.New("syntax: node is already attached")
	ErrDetached = errors.New("syntax: node is not attached to this tree")
	ErrNotChild = errors.New("syntax: anchor is not a child of parent")
	ErrRoot     = errors.New("syntax: operation not allowed on the root")
)

// Listener receives notifications before each structural mutation of a
// Tree. Nodes passed to a listener are valid for the duration of the call
// and reflect the tree as it was before the mutation.
type Listener interface {
	BeforeInsert(parent, child *Node)
	BeforeReplace(parent, oldChild, newChild *Node)
	BeforeMove(parent, child *Node)
	// BeforeRemove is called with a nil parent when the whole tree is
	// dropped.
	BeforeRemove(parent, child *Node)
}

// Tree owns a File-rooted node hierarchy and is the only way to mutate it.
type Tree struct {
	root      *Node
	listeners []Listener
}

// NewTree wraps root, which must be a detached File node.
func NewTree(root *Node) (*Tree, error) {
	if root == nil || root.kind != File {
		return nil, fmt.Errorf("syntax: tree root must be a file node, got %s", root)
	}
	if root.parent != nil {
		return nil, fmt.Errorf("syntax: new tree root: %w", ErrAttached)
	}
	return &Tree{root: root}, nil
}

// Root returns nil once the tree has been dropped.
func (t *Tree) Root() *Node { return t.root }

// Attach registers l for mutation notifications.
func (t *Tree) Attach(l Listener) {
	t.listeners = append(t.listeners, l)
}

// Detach removes a previously attached listener.
func (t *Tree) Detach(l Listener) {
	t.listeners = slices.DeleteFunc(t.listeners, func(x Listener) bool { return x == l })
}

func (t *Tree) contains(n *Node) bool {
	return n != nil && t.root != nil && t.root.Contains(n)
}

// Insert adds child under parent before anchor; a nil anchor appends.
func (t *Tree) Insert(parent, anchor, child *Node) error {
	if !t.contains(parent) {
		return fmt.Errorf("syntax: insert parent %s: %w", parent, ErrDetached)
	}
	if child == nil || child.parent != nil || child == t.root {
		return fmt.Errorf("syntax: insert %s: %w", child, ErrAttached)
	}
	if anchor != nil && anchor.parent != parent {
		return fmt.Errorf("syntax: insert before %s: %w", anchor, ErrNotChild)
	}
	for _, l := range t.listeners {
		l.BeforeInsert(parent, child)
	}
	insertBefore(parent, anchor, child)
	return nil
}

// Replace swaps oldChild for newChild in oldChild's parent.
func (t *Tree) Replace(oldChild, newChild *Node) error {
	if oldChild == t.root {
		return fmt.Errorf("syntax: replace: %w", ErrRoot)
	}
	if !t.contains(oldChild) {
		return fmt.Errorf("syntax: replace %s: %w", oldChild, ErrDetached)
	}
	if newChild == nil || newChild.parent != nil || newChild == t.root {
		return fmt.Errorf("syntax: replace with %s: %w", newChild, ErrAttached)
	}
	parent := oldChild.parent
	for _, l := range t.listeners {
		l.BeforeReplace(parent, oldChild, newChild)
	}
	parent.children[oldChild.Index()] = newChild
	newChild.parent = parent
	oldChild.parent = nil
	return nil
}

// Move relocates child under newParent before anchor; a nil anchor appends.
// Listeners see the child's old parent.
func (t *Tree) Move(child, newParent, anchor *Node) error {
	if child == t.root {
		return fmt.Errorf("syntax: move: %w", ErrRoot)
	}
	if !t.contains(child) {
		return fmt.Errorf("syntax: move %s: %w", child, ErrDetached)
	}
	if !t.contains(newParent) || child.Contains(newParent) {
		return fmt.Errorf("syntax: move into %s: %w", newParent, ErrDetached)
	}
	if anchor != nil && (anchor.parent != newParent || anchor == child) {
		return fmt.Errorf("syntax: move before %s: %w", anchor, ErrNotChild)
	}
	for _, l := range t.listeners {
		l.BeforeMove(child.parent, child)
	}
	detach(child)
	insertBefore(newParent, anchor, child)
	return nil
}

// Remove detaches child from the tree.
func (t *Tree) Remove(child *Node) error {
	if child == t.root {
		return fmt.Errorf("syntax: remove: %w", ErrRoot)
	}
	if !t.contains(child) {
		return fmt.Errorf("syntax: remove %s: %w", child, ErrDetached)
	}
	for _, l := range t.listeners {
		l.BeforeRemove(child.parent, child)
	}
	detach(child)
	return nil
}

// Drop removes the whole file. The tree is empty afterwards.
func (t *Tree) Drop() {
	if t.root == nil {
		return
	}
	for _, l := range t.listeners {
		l.BeforeRemove(nil, t.root)
	}
	t.root = nil
}

func insertBefore(parent, anchor, child *Node) {
	i := len(parent.children)
	if anchor != nil {
		i = anchor.Index()
	}
	parent.children = slices.Insert(parent.children, i, child)
	child.parent = parent
}

func detach(n *Node) {
	p := n.parent
	p.children = slices.Delete(p.children, n.Index(), n.Index()+1)
	n.parent = nil
}

// Text reconstructs the file's source.
func (t *Tree) Text() string {
	if t.root == nil {
		return ""
	}
	return t.root.Source()
}

// Offset returns the byte offset at which n starts, or -1 if n is not in
// the tree.
func (t *Tree) Offset(n *Node) int {
	if !t.contains(n) {
		return -1
	}
	off := 0
	for m := n; m.parent != nil; m = m.parent {
		for _, sib := range m.parent.children {
			if sib == m {
				break
			}
			off += sib.Len()
		}
	}
	return off
}

// LeafAt returns the non-empty leaf spanning offset. An offset equal to the
// file length selects the last leaf. It returns nil for out-of-range offsets.
func (t *Tree) LeafAt(offset int) *Node {
	if t.root == nil || offset < 0 {
		return nil
	}
	n := t.root
	for !n.IsLeaf() {
		var next *Node
		for _, c := range n.children {
			l := c.Len()
			if l == 0 {
				continue
			}
			if offset < l {
				next = c
				break
			}
			offset -= l
		}
		if next == nil {
			// Only the end-of-file boundary may fall past every child.
			if offset != 0 {
				return nil
			}
			if next = lastNonEmpty(n); next == nil {
				return nil
			}
			offset = next.Len()
		}
		n = next
	}
	if n.Len() == 0 {
		return nil
	}
	return n
}

func lastNonEmpty(n *Node) *Node {
	for i := len(n.children) - 1; i >= 0; i-- {
		if n.children[i].Len() > 0 {
			return n.children[i]
		}
	}
	return nil
}
