package runtime

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/risor-io/risor/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/freshen"
	"github.com/jward/freshen/internal/syntax"
)

// recorder is a Go builtin scripts call as record(...) to report what they
// saw.
type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) builtin() *object.Builtin {
	return object.NewBuiltin("record", func(ctx context.Context, args ...object.Object) object.Object {
		var call []string
		for _, a := range args {
			call = append(call, fmt.Sprint(a.Interface()))
		}
		r.mu.Lock()
		r.calls = append(r.calls, call)
		r.mu.Unlock()
		return object.Nil
	})
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func decl(name, body string) *syntax.Node {
	return syntax.NewNode(syntax.Declaration, "value_declaration",
		syntax.NewNode(syntax.DeclName, "name", syntax.NewLeaf(syntax.Other, "identifier", name)),
		syntax.NewLeaf(syntax.Whitespace, "whitespace", " "),
		syntax.NewLeaf(syntax.Other, "token", body),
	)
}

const recordScript = `record(decl_name, decl_type, decl_text, external, decl_id > 0)`

func TestHookListener_RunsPerInvalidation(t *testing.T) {
	rec := &recorder{}
	h := NewHookListenerSource(NewRuntime(""), recordScript,
		WithGlobals(map[string]any{"record": rec.builtin()}), WithSourceText())

	h.Invalidate(decl("greet", "= 1"), false)
	h.Invalidate(decl("main", "= 2"), true)
	h.Invalidate(nil, false)
	require.NoError(t, h.Flush())

	assert.Equal(t, [][]string{
		{"greet", "value_declaration", "greet = 1", "false", "true"},
		{"main", "value_declaration", "main = 2", "true", "true"},
	}, rec.snapshot())

	require.NoError(t, h.Close())
	ran, failed := h.Runs()
	assert.Equal(t, int64(2), ran)
	assert.Zero(t, failed)
}

func TestHookListener_SourceTextIsOptIn(t *testing.T) {
	rec := &recorder{}
	h := NewHookListenerSource(NewRuntime(""), recordScript,
		WithGlobals(map[string]any{"record": rec.builtin()}))

	h.Invalidate(decl("greet", "= 1"), false)
	require.NoError(t, h.Close())

	assert.Equal(t, [][]string{{"greet", "value_declaration", "", "false", "true"}}, rec.snapshot())
}

func TestHookListener_FullQueueDrops(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	block := object.NewBuiltin("block", func(ctx context.Context, args ...object.Object) object.Object {
		started <- struct{}{}
		<-release
		return object.Nil
	})

	var buf bytes.Buffer
	rt := NewRuntime("", WithLogger(debugLogger(&buf)))
	h := NewHookListenerSource(rt, `block()`,
		WithGlobals(map[string]any{"block": block}), WithBufferSize(1))

	h.Invalidate(decl("a", "=1"), false)
	<-started // the worker holds a; the queue is empty

	h.Invalidate(decl("b", "=1"), false) // queued
	h.Invalidate(decl("c", "=1"), false) // dropped
	assert.Equal(t, int64(1), h.Dropped())
	assert.Contains(t, buf.String(), "hook queue full")

	close(release)
	require.NoError(t, h.Close())
	ran, failed := h.Runs()
	assert.Equal(t, int64(2), ran)
	assert.Zero(t, failed)
}

func TestHookListener_FromFS(t *testing.T) {
	mapFS := fstest.MapFS{
		"hooks/on_invalidate.risor": &fstest.MapFile{Data: []byte(`
if external {
	record("external " + decl_name)
} else {
	record("local " + decl_name)
}
`)},
	}
	rec := &recorder{}
	rt := NewRuntime("", WithRuntimeFS(mapFS))
	h, err := NewHookListener(rt, "hooks/on_invalidate.risor",
		WithGlobals(map[string]any{"record": rec.builtin()}), WithBufferSize(2))
	require.NoError(t, err)

	h.Invalidate(decl("a", "=1"), false)
	h.Invalidate(decl("b", "=1"), true)
	require.NoError(t, h.Close())

	assert.Equal(t, [][]string{{"local a"}, {"external b"}}, rec.snapshot())
}

func TestHookListener_MissingScript(t *testing.T) {
	rt := NewRuntime("", WithRuntimeFS(fstest.MapFS{}))
	_, err := NewHookListener(rt, "nope.risor")
	require.Error(t, err)
}

func TestHookListener_ScriptFailures(t *testing.T) {
	var buf bytes.Buffer
	rt := NewRuntime("", WithLogger(debugLogger(&buf)))
	h := NewHookListenerSource(rt, `assert(decl_name != "bad", "bad declaration")`)

	h.Invalidate(decl("good", "=1"), false)
	h.Invalidate(decl("bad", "=1"), false)
	h.Invalidate(decl("bad", "=2"), false)

	err := h.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime: hook had 2 error(s)")
	assert.Contains(t, err.Error(), "bad declaration")

	ran, failed := h.Runs()
	assert.Equal(t, int64(3), ran)
	assert.Equal(t, int64(2), failed)
	assert.Contains(t, buf.String(), "hook script failed")
}

func TestHookListener_AfterClose(t *testing.T) {
	rec := &recorder{}
	h := NewHookListenerSource(NewRuntime(""), recordScript,
		WithGlobals(map[string]any{"record": rec.builtin()}))
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	h.Invalidate(decl("late", "=1"), false)
	assert.ErrorIs(t, h.Flush(), ErrClosed)
	assert.Empty(t, rec.snapshot())
}

func TestHookListener_GlobalsCannotShadowDeclaration(t *testing.T) {
	rec := &recorder{}
	h := NewHookListenerSource(NewRuntime(""), `record(decl_name)`,
		WithGlobals(map[string]any{"record": rec.builtin(), "decl_name": "shadow"}))
	h.Invalidate(decl("real", "=1"), false)
	require.NoError(t, h.Close())
	assert.Equal(t, [][]string{{"real"}}, rec.snapshot())
}

func TestHookListener_WithEngine(t *testing.T) {
	a, b := decl("A", "=1"), decl("B", "=2")
	tree, err := syntax.NewTree(syntax.NewNode(syntax.File, "file",
		a, syntax.NewLeaf(syntax.Whitespace, "whitespace", "\n"), b))
	require.NoError(t, err)

	rec := &recorder{}
	h := NewHookListenerSource(NewRuntime(""), `record(decl_name, external)`,
		WithGlobals(map[string]any{"record": rec.builtin()}))

	engine := freshen.New()
	engine.Subscribe(h)
	engine.Watch(tree)

	require.NoError(t, tree.Replace(b.Child(2), syntax.NewLeaf(syntax.Other, "token", "=3")))
	engine.NotifyExternal(a)
	require.NoError(t, h.Close())

	// The script saw the declaration as it was before the edit.
	assert.Equal(t, [][]string{{"B", "false"}, {"A", "true"}}, rec.snapshot())
}
