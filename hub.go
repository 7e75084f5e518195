package freshen

import (
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/jward/freshen/internal/syntax"
)

// Listener receives invalidation notices. Invalidate must return promptly:
// mark the declaration dirty and post any expensive work elsewhere.
//
// external is false when a local edit caused the invalidation and true when
// it came through NotifyExternal, e.g. a dependency changed or a background
// re-verification finished. Listeners that write state which feeds back
// into the edit path use it to avoid loops.
type Listener interface {
	Invalidate(decl *syntax.Node, external bool)
}

// ListenerFunc adapts a function to Listener. Functions are not comparable:
// Hub.Subscribe accepts one but cannot remove it again, so prefer
// Hub.SubscribeFunc when the listener must be unsubscribed.
type ListenerFunc func(decl *syntax.Node, external bool)

func (f ListenerFunc) Invalidate(decl *syntax.Node, external bool) { f(decl, external) }

// Hub is the listener registry and dispatcher. Subscribe and Unsubscribe are
// safe to call concurrently with Notify and from inside a listener.
type Hub struct {
	mu        sync.RWMutex
	listeners map[Listener]struct{}
	logger    *slog.Logger
	panics    atomic.Int64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the logger used to report misbehaving listeners.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates an empty Hub. Each editing surface that needs its own set
// of subscribers constructs its own Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		listeners: make(map[Listener]struct{}),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe adds l to the set; subscribing the same listener twice has no
// effect. A listener whose type is not comparable, such as a ListenerFunc,
// is registered under a fresh identity each time and cannot be removed with
// Unsubscribe. A nil listener is ignored.
func (h *Hub) Subscribe(l Listener) {
	if l == nil {
		return
	}
	if !hashable(l) {
		l = &funcListener{fn: l.Invalidate}
	}
	h.mu.Lock()
	h.listeners[l] = struct{}{}
	h.mu.Unlock()
}

// Unsubscribe removes l. Unknown and non-comparable listeners are ignored.
func (h *Hub) Unsubscribe(l Listener) {
	if l == nil || !hashable(l) {
		return
	}
	h.mu.Lock()
	delete(h.listeners, l)
	h.mu.Unlock()
}

// hashable reports whether l can be a map key without panicking.
func hashable(l Listener) bool {
	return reflect.TypeOf(l).Comparable()
}

// funcListener gives a ListenerFunc an identity.
type funcListener struct {
	fn ListenerFunc
}

func (f *funcListener) Invalidate(decl *syntax.Node, external bool) { f.fn(decl, external) }

// SubscribeFunc registers fn and returns a function that unsubscribes it.
func (h *Hub) SubscribeFunc(fn func(decl *syntax.Node, external bool)) (unsubscribe func()) {
	l := &funcListener{fn: fn}
	h.Subscribe(l)
	return func() { h.Unsubscribe(l) }
}

// Len returns the number of subscribed listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Notify delivers an invalidation of decl to every current listener, in no
// particular order. A listener that panics is logged and skipped; the rest
// still receive the notice.
func (h *Hub) Notify(decl *syntax.Node, external bool) {
	if decl == nil {
		return
	}
	h.mu.RLock()
	snapshot := make([]Listener, 0, len(h.listeners))
	for l := range h.listeners {
		snapshot = append(snapshot, l)
	}
	h.mu.RUnlock()

	for _, l := range snapshot {
		h.deliver(l, decl, external)
	}
}

// NotifyExternal reports that decl needs re-verification for a reason other
// than a local edit.
func (h *Hub) NotifyExternal(decl *syntax.Node) {
	h.Notify(decl, true)
}

// Panics returns how many listener calls have panicked so far.
func (h *Hub) Panics() int64 {
	return h.panics.Load()
}

func (h *Hub) deliver(l Listener, decl *syntax.Node, external bool) {
	defer func() {
		if r := recover(); r != nil {
			h.panics.Add(1)
			h.logger.Warn("listener panicked",
				"decl", decl.String(),
				"external", external,
				"panic", r,
			)
		}
	}()
	l.Invalidate(decl, external)
}
