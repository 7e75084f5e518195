package grammar

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/elm"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/jward/freshen/internal/syntax"
)

// langToGrammar maps language names to tree-sitter Language objects.
// Lazily initialized on first call via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"elm": elm.GetLanguage(),
			"go":  golang.GetLanguage(),
		}
	})
}

// ParserForLanguage returns the tree-sitter Language for a language name.
func ParserForLanguage(lang string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[lang]
	return l, ok
}

// Parse parses src with the profile's grammar and converts the result into
// a mutable syntax tree. Text between tree-sitter nodes (which tree-sitter
// does not represent) becomes explicit whitespace leaves, so the tree
// reproduces src exactly.
func Parse(ctx context.Context, p *Profile, src []byte) (*syntax.Tree, error) {
	lang, ok := ParserForLanguage(p.Language)
	if !ok {
		return nil, fmt.Errorf("%w: no grammar for %q", ErrUnknownLanguage, p.Language)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("grammar: tree-sitter parse failed: %w", err)
	}

	b := &builder{profile: p, src: src}
	root := tree.RootNode()
	children := b.children(root, 0, uint32(len(src)))
	return syntax.NewTree(syntax.NewNode(syntax.File, root.Type(), children...))
}

// ParseFile reads path and parses it with the builtin profile for its
// extension.
func ParseFile(ctx context.Context, path string) (*syntax.Tree, *Profile, error) {
	p, err := ProfileForFile(path)
	if err != nil {
		return nil, nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("grammar: read file: %w", err)
	}
	tree, err := Parse(ctx, p, src)
	if err != nil {
		return nil, nil, fmt.Errorf("grammar: parse %s: %w", path, err)
	}
	return tree, p, nil
}

type builder struct {
	profile *Profile
	src     []byte
}

func (b *builder) node(n *sitter.Node) *syntax.Node {
	typ := n.Type()
	kind := b.profile.KindOf(typ)
	if n.ChildCount() == 0 {
		return syntax.NewLeaf(kind, typ, string(b.src[n.StartByte():n.EndByte()]))
	}
	children := b.children(n, n.StartByte(), n.EndByte())
	if kind == syntax.Declaration {
		children = b.wrapName(typ, children)
	}
	return syntax.NewNode(kind, typ, children...)
}

// children converts n's children, filling the gaps in [start, end) that no
// child covers.
func (b *builder) children(n *sitter.Node, start, end uint32) []*syntax.Node {
	var out []*syntax.Node
	pos := start
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		c := n.Child(i)
		if c == nil || c.EndByte() <= c.StartByte() {
			// Zero-width tokens (layout markers, MISSING nodes) span no text.
			continue
		}
		if c.StartByte() > pos {
			out = append(out, b.gap(pos, c.StartByte()))
		}
		out = append(out, b.node(c))
		pos = c.EndByte()
	}
	if pos < end {
		out = append(out, b.gap(pos, end))
	}
	return out
}

func (b *builder) gap(start, end uint32) *syntax.Node {
	text := string(b.src[start:end])
	if strings.TrimSpace(text) == "" {
		return syntax.NewLeaf(syntax.Whitespace, "whitespace", text)
	}
	return syntax.NewLeaf(syntax.Other, "gap", text)
}

// wrapName gives declarations without a name node one, built around the
// first child of the configured identifier type.
func (b *builder) wrapName(declType string, children []*syntax.Node) []*syntax.Node {
	nameType, ok := b.profile.Names[declType]
	if !ok {
		return children
	}
	for i, c := range children {
		if c.Kind() == syntax.DeclName {
			return children
		}
		if c.Type() == nameType {
			children[i] = syntax.NewNode(syntax.DeclName, "name", c)
			return children
		}
	}
	return children
}
