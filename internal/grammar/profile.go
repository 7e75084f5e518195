package grammar

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/BurntSushi/toml"

	"github.com/jward/freshen/internal/dirty"
	"github.com/jward/freshen/internal/syntax"
)

var ErrUnknownLanguage = errors.New("grammar: unknown language")

// Profile maps one grammar's node types onto syntax kinds and carries the
// grammar's noise rules. Profiles are TOML documents; see profiles/*.toml.
type Profile struct {
	Language          string   `toml:"language"`
	Extensions        []string `toml:"extensions"`
	CommentDelimiters []string `toml:"comment_delimiters"`
	// CommentPrefixes classify text typed by a user as a comment leaf.
	CommentPrefixes []string `toml:"comment_prefixes"`
	// Kinds maps a kind name ("declaration", "comment", ...) to the node
	// types of that kind. Unlisted types are syntax.Other.
	Kinds map[string][]string `toml:"kinds"`
	// Names maps a declaration type to the type of the direct child that
	// names it, for grammars without a dedicated name node.
	Names map[string]string `toml:"names"`

	kindOf     map[string]syntax.Kind
	delimiters []rune
}

//go:embed profiles/*.toml
var builtinFS embed.FS

var (
	builtins     map[string]*Profile
	builtinsErr  error
	builtinsOnce sync.Once
)

func loadBuiltins() {
	builtinsOnce.Do(func() {
		builtins = make(map[string]*Profile)
		paths, err := fs.Glob(builtinFS, "profiles/*.toml")
		if err != nil {
			builtinsErr = err
			return
		}
		for _, path := range paths {
			data, err := fs.ReadFile(builtinFS, path)
			if err != nil {
				builtinsErr = fmt.Errorf("grammar: read %s: %w", path, err)
				return
			}
			p, err := ParseProfile(string(data))
			if err != nil {
				builtinsErr = fmt.Errorf("grammar: builtin %s: %w", path, err)
				return
			}
			builtins[p.Language] = p
		}
	})
}

// Languages lists the languages with a builtin profile.
func Languages() []string {
	loadBuiltins()
	langs := make([]string, 0, len(builtins))
	for lang := range builtins {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// DefaultProfile returns the builtin profile for language.
func DefaultProfile(language string) (*Profile, error) {
	loadBuiltins()
	if builtinsErr != nil {
		return nil, builtinsErr
	}
	p, ok := builtins[language]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, language)
	}
	return p, nil
}

// ProfileForFile picks a builtin profile by file extension.
func ProfileForFile(path string) (*Profile, error) {
	loadBuiltins()
	if builtinsErr != nil {
		return nil, builtinsErr
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, p := range builtins {
		for _, e := range p.Extensions {
			if e == ext {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no profile for %s", ErrUnknownLanguage, path)
}

// LoadProfile reads a profile from a TOML file on disk.
func LoadProfile(path string) (*Profile, error) {
	var p Profile
	meta, err := toml.DecodeFile(path, &p)
	if err != nil {
		return nil, fmt.Errorf("grammar: %s: failed to parse TOML: %w", path, err)
	}
	if err := p.init(meta); err != nil {
		return nil, fmt.Errorf("grammar: %s: %w", path, err)
	}
	return &p, nil
}

// ParseProfile decodes a profile from TOML text.
func ParseProfile(data string) (*Profile, error) {
	var p Profile
	meta, err := toml.Decode(data, &p)
	if err != nil {
		return nil, fmt.Errorf("grammar: failed to parse TOML: %w", err)
	}
	if err := p.init(meta); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) init(meta toml.MetaData) error {
	if !meta.IsDefined("language") || p.Language == "" {
		return errors.New("profile has no language")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown profile key %q", undecoded[0].String())
	}
	p.kindOf = make(map[string]syntax.Kind)
	for name, types := range p.Kinds {
		kind, ok := syntax.ParseKind(name)
		if !ok {
			return fmt.Errorf("unknown kind %q", name)
		}
		for _, typ := range types {
			if prev, dup := p.kindOf[typ]; dup && prev != kind {
				return fmt.Errorf("node type %q mapped to both %s and %s", typ, prev, kind)
			}
			p.kindOf[typ] = kind
		}
	}
	for decl := range p.Names {
		if p.kindOf[decl] != syntax.Declaration {
			return fmt.Errorf("names entry %q is not a declaration type", decl)
		}
	}
	p.delimiters = nil
	for _, d := range p.CommentDelimiters {
		if utf8.RuneCountInString(d) != 1 {
			return fmt.Errorf("comment delimiter %q must be a single character", d)
		}
		r, _ := utf8.DecodeRuneInString(d)
		p.delimiters = append(p.delimiters, r)
	}
	return nil
}

// KindOf maps a grammar node type to a syntax kind.
func (p *Profile) KindOf(typ string) syntax.Kind {
	return p.kindOf[typ]
}

// Rules returns the noise rules for this grammar.
func (p *Profile) Rules() dirty.Rules {
	return dirty.Rules{CommentDelimiters: append([]rune(nil), p.delimiters...)}
}

// NewLeaf builds a detached leaf for text typed by a user, classified the
// way the parser would most likely classify it.
func (p *Profile) NewLeaf(text string) *syntax.Node {
	if strings.TrimSpace(text) == "" {
		return syntax.NewLeaf(syntax.Whitespace, "whitespace", text)
	}
	for _, prefix := range p.CommentPrefixes {
		if strings.HasPrefix(text, prefix) {
			return syntax.NewLeaf(syntax.Comment, "comment", text)
		}
	}
	return syntax.NewLeaf(syntax.Other, "token", text)
}
