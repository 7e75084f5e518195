package freshen

import (
	"fmt"

	"github.com/jward/freshen/internal/syntax"
)

// Op names the raw mutation an Event was derived from.
type Op uint8

const (
	OpInsert Op = iota
	OpReplace
	OpMove
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpReplace:
		return "replace"
	case OpMove:
		return "move"
	case OpRemove:
		return "remove"
	default:
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
}

// Event is the uniform shape every pre-mutation notification is reduced to.
type Event struct {
	Op     Op
	Parent *syntax.Node
	// Removed and Inserted are the subtrees leaving and entering Parent;
	// either may be nil.
	Removed  *syntax.Node
	Inserted *syntax.Node
	// CheckCommentStart enables the comment-delimiter heuristic. Insertions
	// and removals of a single character are how block comments get typed.
	CheckCommentStart bool
}

func insertEvent(parent, child *syntax.Node) Event {
	return Event{Op: OpInsert, Parent: parent, Inserted: child, CheckCommentStart: true}
}

func replaceEvent(parent, oldChild, newChild *syntax.Node) Event {
	return Event{Op: OpReplace, Parent: parent, Removed: oldChild, Inserted: newChild}
}

func moveEvent(parent, child *syntax.Node) Event {
	return Event{Op: OpMove, Parent: parent, Removed: child}
}

func removeEvent(parent, child *syntax.Node) Event {
	return Event{Op: OpRemove, Parent: parent, Removed: child, CheckCommentStart: true}
}
