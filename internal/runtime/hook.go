package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jward/freshen/internal/syntax"
)

// ErrClosed is returned by Flush on a closed HookListener.
var ErrClosed = errors.New("runtime: hook closed")

const defaultHookBuffer = 64

// HookListener is an invalidation listener that runs a Risor script once
// per invalidated declaration. Invalidate snapshots the declaration and
// enqueues it without blocking; one worker goroutine runs the scripts in
// order. When the queue is full the invalidation is dropped and counted.
//
// Scripts see these globals:
//
//	decl_id    node ID of the declaration
//	decl_name  its name, "" if unnamed
//	decl_type  its grammar node type
//	decl_text  its source text at the time of invalidation, "" unless
//	           WithSourceText is set
//	external   true when the invalidation came from NotifyExternal
//	log        log.Debug/Info/Warn/Error
type HookListener struct {
	rt      *Runtime
	source  string
	label   string
	timeout time.Duration
	size    int
	globals map[string]any
	text    bool

	queue chan hookCall
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	errs  []error

	ran     atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

type hookCall struct {
	id       uint64
	name     string
	typ      string
	text     string
	external bool
	flushed  chan struct{}
}

// HookOption configures a HookListener.
type HookOption func(*HookListener)

// WithTimeout bounds each script run.
func WithTimeout(d time.Duration) HookOption {
	return func(h *HookListener) {
		h.timeout = d
	}
}

// WithBufferSize sets how many invalidations may be queued before
// Invalidate starts dropping them.
func WithBufferSize(n int) HookOption {
	return func(h *HookListener) {
		if n > 0 {
			h.size = n
		}
	}
}

// WithSourceText makes decl_text available to the script. Building it costs
// a walk of the declaration on the editing goroutine, so removing a large
// nested subtree walks the inner declarations once per enclosing one.
func WithSourceText() HookOption {
	return func(h *HookListener) {
		h.text = true
	}
}

// WithGlobals adds globals to every script run. They cannot override the
// per-invalidation globals.
func WithGlobals(globals map[string]any) HookOption {
	return func(h *HookListener) {
		for k, v := range globals {
			h.globals[k] = v
		}
	}
}

// NewHookListener loads scriptPath through rt and starts the worker.
func NewHookListener(rt *Runtime, scriptPath string, opts ...HookOption) (*HookListener, error) {
	src, err := rt.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	return newHookListener(rt, src, scriptPath, opts), nil
}

// NewHookListenerSource starts a hook running source directly.
func NewHookListenerSource(rt *Runtime, source string, opts ...HookOption) *HookListener {
	return newHookListener(rt, source, "<inline>", opts)
}

func newHookListener(rt *Runtime, source, label string, opts []HookOption) *HookListener {
	h := &HookListener{
		rt:      rt,
		source:  source,
		label:   label,
		size:    defaultHookBuffer,
		globals: make(map[string]any),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.queue = make(chan hookCall, h.size)
	go h.run()
	return h
}

// Invalidate queues one script run for decl.
func (h *HookListener) Invalidate(decl *syntax.Node, external bool) {
	if decl == nil {
		return
	}
	call := hookCall{
		id:       decl.ID(),
		name:     syntax.Name(decl),
		typ:      decl.Type(),
		external: external,
	}
	if h.text {
		call.text = decl.Source()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.queue <- call:
	default:
		h.dropped.Add(1)
		h.rt.logger.Warn("hook queue full, dropping invalidation", "decl", call.name, "node", call.id)
	}
}

// Flush blocks until every run queued before the call has finished.
func (h *HookListener) Flush() error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	flushed := make(chan struct{})
	h.queue <- hookCall{flushed: flushed}
	h.mu.RUnlock()
	<-flushed
	return nil
}

// Close runs what is queued, stops the worker and returns the script
// failures seen over the listener's lifetime.
func (h *HookListener) Close() error {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.queue)
	}
	h.mu.Unlock()
	<-h.done
	return h.Err()
}

// Err aggregates script failures so far.
func (h *HookListener) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	if len(h.errs) == 0 {
		return nil
	}
	return fmt.Errorf("runtime: hook had %d error(s): %w", len(h.errs), h.errs[0])
}

// Runs returns how many script runs finished, and how many of them failed.
func (h *HookListener) Runs() (ran, failed int64) {
	return h.ran.Load(), h.failed.Load()
}

// Dropped returns how many invalidations were dropped on a full queue.
func (h *HookListener) Dropped() int64 {
	return h.dropped.Load()
}

func (h *HookListener) run() {
	defer close(h.done)
	for call := range h.queue {
		if call.flushed != nil {
			close(call.flushed)
			continue
		}
		h.exec(call)
	}
}

func (h *HookListener) exec(call hookCall) {
	ctx := context.Background()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	globals := make(map[string]any, len(h.globals)+5)
	for k, v := range h.globals {
		globals[k] = v
	}
	globals["decl_id"] = int64(call.id)
	globals["decl_name"] = call.name
	globals["decl_type"] = call.typ
	globals["decl_text"] = call.text
	globals["external"] = call.external

	err := h.rt.eval(ctx, h.source, h.label, globals)
	h.ran.Add(1)
	if err != nil {
		h.failed.Add(1)
		h.rt.logger.Warn("hook script failed", "decl", call.name, "node", call.id, "error", err)
		h.errMu.Lock()
		h.errs = append(h.errs, err)
		h.errMu.Unlock()
		return
	}
	h.rt.logger.Debug("hook script ran", "decl", call.name, "external", call.external)
}
