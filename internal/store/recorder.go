package store

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jward/freshen/internal/syntax"
)

const defaultBufferSize = 256

// Recorder is an invalidation listener that persists every invalidation to
// a Store. Invalidate only enqueues; one writer goroutine does the SQL.
type Recorder struct {
	store  *Store
	logger *slog.Logger
	size   int

	queue chan record
	done  chan struct{}

	mu     sync.RWMutex // guards closed against sends on a closed queue
	closed bool

	errMu sync.Mutex
	errs  []error

	recorded atomic.Int64
	skipped  atomic.Int64
	dropped  atomic.Int64
}

type record struct {
	nodeID   uint64
	name     string
	external bool
	flushed  chan struct{}
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the recorder's logger.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithBufferSize sets how many invalidations may be queued before
// Invalidate blocks.
func WithBufferSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.size = n
		}
	}
}

// NewRecorder starts a recorder writing to s. Call Close to stop it.
func NewRecorder(s *Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:  s,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		size:   defaultBufferSize,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan record, r.size)
	go r.run()
	return r
}

// Invalidate queues decl to be marked dirty. After Close it only counts the
// dropped notice.
func (r *Recorder) Invalidate(decl *syntax.Node, external bool) {
	if decl == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	r.queue <- record{nodeID: decl.ID(), name: syntax.Name(decl), external: external}
}

// Flush blocks until every invalidation queued before the call is written.
func (r *Recorder) Flush() error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrClosed
	}
	flushed := make(chan struct{})
	r.queue <- record{flushed: flushed}
	r.mu.RUnlock()
	<-flushed
	return nil
}

// Close drains the queue, stops the writer and returns the write errors
// seen over the recorder's lifetime.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return r.Err()
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
	return r.Err()
}

// Err aggregates write errors so far.
func (r *Recorder) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("store: recorder had %d error(s): %w", len(r.errs), r.errs[0])
}

// RecorderStats counts what the writer did with queued invalidations.
type RecorderStats struct {
	Recorded int64 // written to the store
	Skipped  int64 // node was never indexed
	Dropped  int64 // arrived after Close
}

func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Recorded: r.recorded.Load(),
		Skipped:  r.skipped.Load(),
		Dropped:  r.dropped.Load(),
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		if rec.flushed != nil {
			close(rec.flushed)
			continue
		}
		declID, ok, err := r.store.RecordInvalidation(rec.nodeID, rec.external)
		switch {
		case err != nil:
			r.logger.Warn("record invalidation failed", "decl", rec.name, "node", rec.nodeID, "error", err)
			r.errMu.Lock()
			r.errs = append(r.errs, err)
			r.errMu.Unlock()
		case !ok:
			r.logger.Debug("invalidation for unindexed declaration", "decl", rec.name, "node", rec.nodeID)
			r.skipped.Add(1)
		default:
			r.logger.Debug("recorded invalidation", "decl", rec.name, "id", declID, "external", rec.external)
			r.recorded.Add(1)
		}
	}
}
