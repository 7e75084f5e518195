package dirty

import "github.com/jward/freshen/internal/syntax"

// Significance tells whether a node can carry program meaning.
type Significance uint8

const (
	Significant Significance = iota
	Insignificant
)

func (s Significance) String() string {
	if s == Insignificant {
		return "insignificant"
	}
	return "significant"
}

// noiseClass groups insignificant kinds that may replace one another
// without changing meaning.
type noiseClass uint8

const (
	classNone noiseClass = iota
	classWhitespace
	classComment
	// classPlaceholder covers the "not yet a real declaration" shapes the
	// parser swaps between while a user is typing.
	classPlaceholder
)

func classOf(k syntax.Kind) noiseClass {
	switch k {
	case syntax.Whitespace:
		return classWhitespace
	case syntax.Comment:
		return classComment
	case syntax.ErrorMarker, syntax.ScopeBoundary, syntax.DynamicContainer:
		return classPlaceholder
	case syntax.Other, syntax.DeclName, syntax.File, syntax.Declaration, syntax.Statement:
		return classNone
	default:
		return classNone
	}
}

// Classify maps a node to its significance. A nil node is significant so
// that callers never suppress on a missing value by accident.
func Classify(n *syntax.Node) Significance {
	if n == nil || classOf(n.Kind()) == classNone {
		return Significant
	}
	return Insignificant
}

// Suppressed reports whether replacing removed with inserted (either may be
// nil) is noise for point invalidation. Both sides present: both must be
// insignificant and in the same class. One side present: it must be
// insignificant.
func Suppressed(removed, inserted *syntax.Node) bool {
	switch {
	case removed != nil && inserted != nil:
		rc, ic := classOf(removed.Kind()), classOf(inserted.Kind())
		return rc != classNone && rc == ic
	case removed != nil:
		return Classify(removed) == Insignificant
	case inserted != nil:
		return Classify(inserted) == Insignificant
	default:
		return true
	}
}
