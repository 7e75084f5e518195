package store

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/jward/freshen/internal/syntax"
)

// Fingerprint hashes a declaration's grammar type and source text.
// Position does not affect it, so a declaration that only moved keeps its
// fingerprint.
func Fingerprint(decl *syntax.Node) string {
	d := xxhash.New()
	d.WriteString(decl.Type())
	d.WriteString("\x00")
	d.WriteString(decl.Source())
	return fmt.Sprintf("%016x", d.Sum64())
}

// ContentHash hashes a whole file's text.
func ContentHash(text string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(text))
}
