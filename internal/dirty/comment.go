package dirty

import (
	"slices"
	"unicode/utf8"

	"github.com/jward/freshen/internal/syntax"
)

// Rules holds the grammar-dependent parts of noise detection.
type Rules struct {
	// CommentDelimiters are the single characters that, typed alone, are
	// the first half of a block comment delimiter.
	CommentDelimiters []rune
}

// DefaultRules matches grammars with {- -} nested block comments.
func DefaultRules() Rules {
	return Rules{CommentDelimiters: []rune{'-', '{', '}'}}
}

// IsCommentDelimiterNoise reports whether n is a one-character token that
// is probably the start or end of a block comment being typed. Descent goes
// only through single-child wrappers that share their child's end, so
// multi-character tokens starting with a delimiter never match.
func (r Rules) IsCommentDelimiterNoise(n *syntax.Node) bool {
	if n == nil {
		return false
	}
	for n.ChildCount() == 1 {
		c := n.Child(0)
		if c.Len() != n.Len() {
			break
		}
		n = c
	}
	if !n.IsLeaf() {
		return false
	}
	text := n.Text()
	ch, size := utf8.DecodeRuneInString(text)
	if size == 0 || size != len(text) || ch == utf8.RuneError {
		return false
	}
	return slices.Contains(r.CommentDelimiters, ch)
}
