package freshen

import (
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/jward/freshen/internal/dirty"
	"github.com/jward/freshen/internal/syntax"
)

// Engine turns tree mutations into invalidation notices. It implements
// syntax.Listener; attach it to a Tree with Watch.
//
// Engine methods run synchronously inside the mutation callback and read
// only the pre-mutation tree. An Engine must not be driven by two trees
// concurrently; its Hub may be shared freely.
type Engine struct {
	hub    *Hub
	logger *slog.Logger
	rules  dirty.Rules

	events        atomic.Int64
	suppressed    atomic.Int64
	point         atomic.Int64
	bulk          atomic.Int64
	modifications atomic.Int64
}

// Compile-time check: *Engine satisfies syntax.Listener.
var _ syntax.Listener = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithHub makes the Engine dispatch through an existing Hub, so several
// trees can feed the same subscribers.
func WithHub(h *Hub) Option {
	return func(e *Engine) {
		e.hub = h
	}
}

// WithLogger sets the structured logger. Events are logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRules replaces the grammar-dependent noise rules.
func WithRules(r dirty.Rules) Option {
	return func(e *Engine) {
		e.rules = r
	}
}

// New creates an Engine. Without WithHub it owns a fresh Hub.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		rules:  dirty.DefaultRules(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.hub == nil {
		e.hub = NewHub(WithHubLogger(e.logger))
	}
	return e
}

// Hub returns the dispatcher the Engine notifies.
func (e *Engine) Hub() *Hub { return e.hub }

// Subscribe is shorthand for e.Hub().Subscribe.
func (e *Engine) Subscribe(l Listener) { e.hub.Subscribe(l) }

// Unsubscribe is shorthand for e.Hub().Unsubscribe.
func (e *Engine) Unsubscribe(l Listener) { e.hub.Unsubscribe(l) }

// NotifyExternal is shorthand for e.Hub().NotifyExternal.
func (e *Engine) NotifyExternal(decl *syntax.Node) { e.hub.NotifyExternal(decl) }

// Watch attaches the Engine to t.
func (e *Engine) Watch(t *syntax.Tree) { t.Attach(e) }

// Unwatch detaches the Engine from t.
func (e *Engine) Unwatch(t *syntax.Tree) { t.Detach(e) }

// BeforeInsert implements syntax.Listener.
func (e *Engine) BeforeInsert(parent, child *syntax.Node) {
	e.Handle(insertEvent(parent, child))
}

// BeforeReplace implements syntax.Listener.
func (e *Engine) BeforeReplace(parent, oldChild, newChild *syntax.Node) {
	e.Handle(replaceEvent(parent, oldChild, newChild))
}

// BeforeMove implements syntax.Listener. Moves are reported against the
// old parent.
func (e *Engine) BeforeMove(parent, child *syntax.Node) {
	e.Handle(moveEvent(parent, child))
}

// BeforeRemove implements syntax.Listener. Removing a File invalidates
// everything in it.
func (e *Engine) BeforeRemove(parent, child *syntax.Node) {
	if child != nil && child.Kind() == syntax.File {
		e.dropFile(child)
		return
	}
	e.Handle(removeEvent(parent, child))
}

// dropFile handles removal of a whole file: everything in it is stale and
// there is no enclosing declaration to look for.
func (e *Engine) dropFile(file *syntax.Node) {
	e.events.Add(1)
	b := e.newBatch()
	dirty.InvalidateSubtree(file, b.bulk)
	e.finish(b)
	e.logger.Debug("file removed", "file", file.String(), "invalidated", b.total())
}

// Handle runs one normalized event through the pipeline: bulk invalidation
// of both sides, noise filtering, then point invalidation of the narrowest
// enclosing declaration.
func (e *Engine) Handle(ev Event) {
	e.events.Add(1)
	b := e.newBatch()

	dirty.InvalidateSubtree(ev.Removed, b.bulk)
	dirty.InvalidateSubtree(ev.Inserted, b.bulk)

	if reason := e.suppression(ev); reason != "" {
		e.suppressed.Add(1)
		e.finish(b)
		e.logger.Debug("edit suppressed",
			"op", ev.Op.String(),
			"parent", ev.Parent.String(),
			"reason", reason,
			"bulk", b.bulkCount,
		)
		return
	}

	loc := dirty.Locate(ev.Parent)
	if loc.Found() {
		b.point(loc.Decl)
		if loc.Subtree {
			dirty.InvalidateSubtree(loc.Decl, b.point)
		}
	}
	e.finish(b)
	e.logger.Debug("edit",
		"op", ev.Op.String(),
		"parent", ev.Parent.String(),
		"decl", loc.Decl.String(),
		"rename", loc.Subtree,
		"bulk", b.bulkCount,
		"point", b.pointCount,
	)
}

// suppression returns why the point path should be skipped, or "".
func (e *Engine) suppression(ev Event) string {
	if dirty.Suppressed(ev.Removed, ev.Inserted) {
		return "noise"
	}
	if ev.CheckCommentStart &&
		(e.rules.IsCommentDelimiterNoise(ev.Removed) || e.rules.IsCommentDelimiterNoise(ev.Inserted)) {
		return "comment delimiter"
	}
	return ""
}

// batch dispatches the invalidations of a single event, delivering each
// declaration at most once.
type batch struct {
	hub        *Hub
	seen       map[*syntax.Node]struct{}
	bulkCount  int
	pointCount int
}

func (e *Engine) newBatch() *batch {
	return &batch{hub: e.hub, seen: make(map[*syntax.Node]struct{})}
}

func (b *batch) dispatch(decl *syntax.Node) bool {
	if _, ok := b.seen[decl]; ok {
		return false
	}
	b.seen[decl] = struct{}{}
	b.hub.Notify(decl, false)
	return true
}

func (b *batch) bulk(decl *syntax.Node) {
	if b.dispatch(decl) {
		b.bulkCount++
	}
}

func (b *batch) point(decl *syntax.Node) {
	if b.dispatch(decl) {
		b.pointCount++
	}
}

func (b *batch) total() int { return b.bulkCount + b.pointCount }

func (e *Engine) finish(b *batch) {
	e.bulk.Add(int64(b.bulkCount))
	e.point.Add(int64(b.pointCount))
	if b.total() > 0 {
		e.modifications.Add(1)
	}
}

// Stats counts what an Engine has done since it was created.
type Stats struct {
	// Events is the number of mutations handled, whole-file removals
	// included.
	Events int64
	// Suppressed counts events whose point invalidation was skipped as
	// noise.
	Suppressed int64
	// PointInvalidations counts declarations invalidated by locating the
	// enclosing declaration of an edit, renames included.
	PointInvalidations int64
	// BulkInvalidations counts declarations invalidated because they were
	// inserted or removed wholesale.
	BulkInvalidations int64
	// Modifications increases by one for every event that invalidated at
	// least one declaration. Caches keyed on it are stale when it moves.
	Modifications int64
}

// Stats returns a snapshot of the Engine's counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Events:             e.events.Load(),
		Suppressed:         e.suppressed.Load(),
		PointInvalidations: e.point.Load(),
		BulkInvalidations:  e.bulk.Load(),
		Modifications:      e.modifications.Load(),
	}
}
