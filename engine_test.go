package freshen

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/freshen/internal/dirty"
	"github.com/jward/freshen/internal/syntax"
)

// collector records every invalidation it receives.
type collector struct {
	mu       sync.Mutex
	decls    []*syntax.Node
	external []bool
}

func (c *collector) Invalidate(decl *syntax.Node, external bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decls = append(c.decls, decl)
	c.external = append(c.external, external)
}

func (c *collector) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.decls))
	for i, d := range c.decls {
		names[i] = syntax.Name(d)
	}
	return names
}

func (c *collector) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decls = nil
	c.external = nil
}

// scenario is the tree
//
//	import X
//	A = x where A.1 = y ; members { M = z }
//	B = b
type scenario struct {
	tree *syntax.Tree
	file *syntax.Node

	imp, impName  *syntax.Node
	a, aName      *syntax.Node
	aIdent, aBody *syntax.Node
	a1, a1Body    *syntax.Node
	a1Token       *syntax.Node
	where         *syntax.Node
	dyn, m        *syntax.Node
	errMarker     *syntax.Node
	b             *syntax.Node
	wsBetween     *syntax.Node
}

func tok(text string) *syntax.Node { return syntax.NewLeaf(syntax.Other, "token", text) }
func ws(text string) *syntax.Node  { return syntax.NewLeaf(syntax.Whitespace, "ws", text) }

func declName(ident *syntax.Node) *syntax.Node {
	return syntax.NewNode(syntax.DeclName, "name", ident)
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	s := &scenario{}

	s.impName = tok("X")
	s.imp = syntax.NewNode(syntax.ScopeBoundary, "import", tok("import"), ws(" "), s.impName)

	s.a1Token = tok("y")
	s.a1Body = syntax.NewNode(syntax.Other, "body", s.a1Token)
	s.a1 = syntax.NewNode(syntax.Declaration, "decl", declName(tok("A.1")), ws(" "), tok("="), ws(" "), s.a1Body)
	s.where = syntax.NewNode(syntax.Statement, "where", tok("where"), ws(" "), s.a1)

	s.m = syntax.NewNode(syntax.Declaration, "decl", declName(tok("M")), tok("="), tok("z"))
	s.dyn = syntax.NewNode(syntax.DynamicContainer, "members", tok("{"), s.m, tok("}"))

	s.errMarker = syntax.NewLeaf(syntax.ErrorMarker, "ERROR", "")
	s.aBody = syntax.NewNode(syntax.Other, "body", tok("x"), s.errMarker)
	s.aIdent = tok("A")
	s.aName = declName(s.aIdent)
	s.a = syntax.NewNode(syntax.Declaration, "decl",
		s.aName, ws(" "), tok("="), ws(" "), s.aBody, ws(" "), s.where, ws(" "), s.dyn)

	s.b = syntax.NewNode(syntax.Declaration, "decl", declName(tok("B")), tok("="), tok("b"))
	s.wsBetween = ws("\n")
	s.file = syntax.NewNode(syntax.File, "file", s.imp, ws("\n"), s.a, s.wsBetween, s.b)

	tree, err := syntax.NewTree(s.file)
	require.NoError(t, err)
	s.tree = tree
	return s
}

func newTestEngine(t *testing.T, s *scenario, opts ...Option) (*Engine, *collector) {
	t.Helper()
	e := New(opts...)
	c := &collector{}
	e.Subscribe(c)
	e.Watch(s.tree)
	return e, c
}

func TestNew_Defaults(t *testing.T) {
	e := New()
	require.NotNil(t, e.Hub())
	assert.Equal(t, dirty.DefaultRules(), e.rules)
	assert.Equal(t, Stats{}, e.Stats())
}

func TestWhitespaceReplacementInvalidatesNothing(t *testing.T) {
	s := newScenario(t)
	e, c := newTestEngine(t, s)

	require.NoError(t, s.tree.Replace(s.wsBetween, ws("\n\n")))

	assert.Empty(t, c.names())
	assert.Equal(t, Stats{Events: 1, Suppressed: 1}, e.Stats())
}

func TestWhitespaceInsideDeclarationInvalidatesNothing(t *testing.T) {
	s := newScenario(t)
	_, c := newTestEngine(t, s)

	require.NoError(t, s.tree.Insert(s.a1Body, nil, ws("  ")))
	require.NoError(t, s.tree.Remove(s.a1.Child(1)))

	assert.Empty(t, c.names())
}

func TestRemovingDeclarationInvalidatesWholeSubtree(t *testing.T) {
	s := newScenario(t)
	e, c := newTestEngine(t, s)

	require.NoError(t, s.tree.Remove(s.a))

	assert.ElementsMatch(t, []string{"A", "A.1", "M"}, c.names())
	assert.Equal(t, int64(3), e.Stats().BulkInvalidations)
	assert.Equal(t, int64(0), e.Stats().PointInvalidations)
	assert.Equal(t, int64(1), e.Stats().Modifications)
}

func TestEditInNestedBodyInvalidatesOnlyNarrowest(t *testing.T) {
	s := newScenario(t)
	_, c := newTestEngine(t, s)

	require.NoError(t, s.tree.Replace(s.a1Token, tok("z")))

	assert.Equal(t, []string{"A.1"}, c.names())
	assert.Equal(t, []bool{false}, c.external)
}

func TestEditInDynamicMemberInvalidatesMember(t *testing.T) {
	s := newScenario(t)
	_, c := newTestEngine(t, s)

	require.NoError(t, s.tree.Insert(s.m, nil, tok("w")))

	assert.Equal(t, []string{"M"}, c.names())
}

func TestEditInDynamicContainerIsAttributedToNothing(t *testing.T) {
	s := newScenario(t)
	_, c := newTestEngine(t, s)

	require.NoError(t, s.tree.Insert(s.dyn, s.m, tok(";")))

	assert.Empty(t, c.names())
}

func TestRenameInvalidatesNestedDeclarations(t *testing.T) {
	s := newScenario(t)
	e, c := newTestEngine(t, s)

	require.NoError(t, s.tree.Replace(s.aIdent, tok("Renamed")))

	// Names are read after the edit, so A reports its new name.
	assert.ElementsMatch(t, []string{"Renamed", "A.1", "M"}, c.names())
	assert.Len(t, c.decls, 3, "each declaration exactly once")
	assert.Equal(t, int64(3), e.Stats().PointInvalidations)
}

func TestCommentDelimiterTypingIsIgnored(t *testing.T) {
	for _, ch := range []string{"-", "{", "}"} {
		t.Run(ch, func(t *testing.T) {
			s := newScenario(t)
			e, c := newTestEngine(t, s)

			inserted := tok(ch)
			require.NoError(t, s.tree.Insert(s.a1Body, nil, inserted))
			assert.Empty(t, c.names())

			require.NoError(t, s.tree.Remove(inserted))
			assert.Empty(t, c.names())
			assert.Equal(t, int64(2), e.Stats().Suppressed)
		})
	}
}

func TestNonDelimiterTokensInvalidate(t *testing.T) {
	for _, text := range []string{"--", "{-", "x", "-1"} {
		t.Run(text, func(t *testing.T) {
			s := newScenario(t)
			_, c := newTestEngine(t, s)

			require.NoError(t, s.tree.Insert(s.a1Body, nil, tok(text)))
			assert.Equal(t, []string{"A.1"}, c.names())
		})
	}
}

func TestWrappedDelimiterIsIgnored(t *testing.T) {
	s := newScenario(t)
	_, c := newTestEngine(t, s)

	wrapped := syntax.NewNode(syntax.Other, "operator", syntax.NewNode(syntax.Other, "op", tok("-")))
	require.NoError(t, s.tree.Insert(s.a1Body, nil, wrapped))

	assert.Empty(t, c.names())
}

func TestReplacementWithDelimiterIsNotHeuristicallyIgnored(t *testing.T) {
	s := newScenario(t)
	_, c := newTestEngine(t, s)

	require.NoError(t, s.tree.Replace(s.a1Token, tok("-")))

	assert.Equal(t, []string{"A.1"}, c.names())
}

func TestCustomRules(t *testing.T) {
	s := newScenario(t)
	_, c := newTestEngine(t, s, WithRules(dirty.Rules{CommentDelimiters: []rune{'/'}}))

	require.NoError(t, s.tree.Insert(s.a1Body, nil, tok("/")))
	assert.Empty(t, c.names())

	require.NoError(t, s.tree.Insert(s.a1Body, nil, tok("-")))
	assert.Equal(t, []string{"A.1"}, c.names())
}

func TestBoundaryStopsPointInvalidation(t *testing.T) {
	s := newScenario(t)
	_, c := newTestEngine(t, s)

	require.NoError(t, s.tree.Replace(s.impName, tok("Y")))
	assert.Empty(t, c.names(), "edit inside import")

	require.NoError(t, s.tree.Insert(s.file, s.b, tok("stray")))
	assert.Empty(t, c.names(), "edit at file scope")
}

func TestPlaceholderSwapIsSuppressed(t *testing.T) {
	s := newScenario(t)
	_, c := newTestEngine(t, s)

	placeholder := syntax.NewLeaf(syntax.ScopeBoundary, "partial_clause", "")
	require.NoError(t, s.tree.Replace(s.errMarker, placeholder))
	assert.Empty(t, c.names())

	require.NoError(t, s.tree.Replace(placeholder, tok("1")))
	assert.Equal(t, []string{"A"}, c.names())
}

func TestInsertingDeclarationInvalidatesIt(t *testing.T) {
	s := newScenario(t)
	_, c := newTestEngine(t, s)

	inner := syntax.NewNode(syntax.Declaration, "decl", declName(tok("C.1")))
	c1 := syntax.NewNode(syntax.Declaration, "decl", declName(tok("C")),
		syntax.NewNode(syntax.Statement, "where", inner))
	require.NoError(t, s.tree.Insert(s.file, nil, c1))

	assert.ElementsMatch(t, []string{"C", "C.1"}, c.names())
}

func TestInsertingNestedDeclarationAlsoInvalidatesEnclosing(t *testing.T) {
	s := newScenario(t)
	_, c := newTestEngine(t, s)

	n := syntax.NewNode(syntax.Declaration, "decl", declName(tok("B.1")))
	require.NoError(t, s.tree.Insert(s.b, nil, n))

	assert.ElementsMatch(t, []string{"B.1", "B"}, c.names())
}

func TestMoveInvalidatesMovedAndOldEnclosing(t *testing.T) {
	s := newScenario(t)
	_, c := newTestEngine(t, s)

	require.NoError(t, s.tree.Move(s.where, s.b, nil))

	assert.ElementsMatch(t, []string{"A.1", "A"}, c.names())
}

func TestMoveOfCommentDelimiterIsNotHeuristicallyIgnored(t *testing.T) {
	s := newScenario(t)
	_, c := newTestEngine(t, s)

	dash := tok("-")
	require.NoError(t, s.tree.Insert(s.a1Body, nil, dash))
	require.Empty(t, c.names())

	require.NoError(t, s.tree.Move(dash, s.aBody, nil))
	assert.Equal(t, []string{"A.1"}, c.names())
}

func TestDropFileInvalidatesEverything(t *testing.T) {
	s := newScenario(t)
	e, c := newTestEngine(t, s)

	s.tree.Drop()

	assert.ElementsMatch(t, []string{"A", "A.1", "M", "B"}, c.names())
	assert.Equal(t, Stats{Events: 1, BulkInvalidations: 4, Modifications: 1}, e.Stats())
}

func TestExampleScenario(t *testing.T) {
	// File{ A { A.1 }, B }
	build := func() (*syntax.Tree, map[string]*syntax.Node) {
		n := map[string]*syntax.Node{}
		n["a1tok"] = tok("1")
		n["a1"] = syntax.NewNode(syntax.Declaration, "decl", declName(tok("A.1")), ws(" "), n["a1tok"])
		n["aIdent"] = tok("A")
		n["a"] = syntax.NewNode(syntax.Declaration, "decl", declName(n["aIdent"]), ws(" "),
			syntax.NewNode(syntax.Statement, "where", n["a1"]))
		n["ws"] = ws(" ")
		n["b"] = syntax.NewNode(syntax.Declaration, "decl", declName(tok("B")))
		tree, err := syntax.NewTree(syntax.NewNode(syntax.File, "file", n["a"], n["ws"], n["b"]))
		require.NoError(t, err)
		return tree, n
	}

	run := func(edit func(*syntax.Tree, map[string]*syntax.Node) error) []string {
		tree, n := build()
		e := New()
		c := &collector{}
		e.Subscribe(c)
		e.Watch(tree)
		require.NoError(t, edit(tree, n))
		return c.names()
	}

	assert.Empty(t, run(func(tr *syntax.Tree, n map[string]*syntax.Node) error {
		return tr.Replace(n["ws"], ws("  "))
	}))
	assert.ElementsMatch(t, []string{"A", "A.1"}, run(func(tr *syntax.Tree, n map[string]*syntax.Node) error {
		return tr.Remove(n["a"])
	}))
	assert.Equal(t, []string{"A.1"}, run(func(tr *syntax.Tree, n map[string]*syntax.Node) error {
		return tr.Replace(n["a1tok"], tok("2"))
	}))
	assert.ElementsMatch(t, []string{"A", "A.1"}, run(func(tr *syntax.Tree, n map[string]*syntax.Node) error {
		return tr.Replace(n["aIdent"], tok("A"))
	}))
}

func TestNotifyExternal(t *testing.T) {
	s := newScenario(t)
	e, c := newTestEngine(t, s)

	e.NotifyExternal(s.b)
	require.NoError(t, s.tree.Replace(s.a1Token, tok("q")))

	assert.Equal(t, []string{"B", "A.1"}, c.names())
	assert.Equal(t, []bool{true, false}, c.external)
	assert.Equal(t, int64(1), e.Stats().Events, "external notices are not edits")
}

func TestSharedHub(t *testing.T) {
	h := NewHub()
	c := &collector{}
	h.Subscribe(c)

	s1, s2 := newScenario(t), newScenario(t)
	e1, e2 := New(WithHub(h)), New(WithHub(h))
	e1.Watch(s1.tree)
	e2.Watch(s2.tree)
	assert.Same(t, h, e1.Hub())

	require.NoError(t, s1.tree.Remove(s1.b))
	require.NoError(t, s2.tree.Replace(s2.a1Token, tok("q")))

	assert.Equal(t, []string{"B", "A.1"}, c.names())
}

func TestUnsubscribeAndUnwatch(t *testing.T) {
	s := newScenario(t)
	e, c := newTestEngine(t, s)

	e.Unsubscribe(c)
	require.NoError(t, s.tree.Remove(s.b))
	assert.Empty(t, c.names())

	e.Subscribe(c)
	e.Unwatch(s.tree)
	require.NoError(t, s.tree.Remove(s.a))
	assert.Empty(t, c.names())
	assert.Equal(t, int64(1), e.Stats().Events)
}

func TestHandle_DirectEvent(t *testing.T) {
	s := newScenario(t)
	e, c := newTestEngine(t, s)

	e.Handle(Event{Op: OpReplace, Parent: s.a1Body, Removed: tok("1"), Inserted: tok("2")})
	assert.Equal(t, []string{"A.1"}, c.names())

	c.reset()
	e.Handle(Event{Op: OpInsert, Parent: nil, Inserted: tok("x"), CheckCommentStart: true})
	assert.Empty(t, c.names(), "an event with no parent locates nothing")
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "insert", OpInsert.String())
	assert.Equal(t, "replace", OpReplace.String())
	assert.Equal(t, "move", OpMove.String())
	assert.Equal(t, "remove", OpRemove.String())
	assert.Equal(t, "Op(9)", Op(9).String())
}

func TestNormalizedEvents(t *testing.T) {
	p, a, b := tok("p"), tok("a"), tok("b")

	assert.Equal(t, Event{Op: OpInsert, Parent: p, Inserted: a, CheckCommentStart: true}, insertEvent(p, a))
	assert.Equal(t, Event{Op: OpReplace, Parent: p, Removed: a, Inserted: b}, replaceEvent(p, a, b))
	assert.Equal(t, Event{Op: OpMove, Parent: p, Removed: a}, moveEvent(p, a))
	assert.Equal(t, Event{Op: OpRemove, Parent: p, Removed: a, CheckCommentStart: true}, removeEvent(p, a))
}
