// Package async runs store writes on a bounded worker pool. Every write
// returns a Future the caller either waits on or detaches from.
package async

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("writer is closed")

const (
	StatePending = "pending"
	StateDone    = "done"
	StateFailed  = "failed"
)

const historySize = 1024

type Status struct {
	ID        string
	Name      string
	State     string
	Err       error
	Result    any
	UpdatedAt time.Time
}

// ErrorHandler receives failures of writes nobody waits for.
type ErrorHandler func(ctx context.Context, status Status)

type Future[T any] struct {
	id   string
	name string
	done chan struct{}

	mu       sync.Mutex
	val      T
	err      error
	finished bool
	detached bool
	reported bool
	ctx      context.Context
	onError  ErrorHandler
}

func (f *Future[T]) ID() string {
	return f.id
}

// Wait blocks until the write finishes or ctx ends. A ctx that ends first
// does not cancel the write.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Detach gives up on the result. A failure is handed to the writer's error
// handler, whether it already happened or happens later.
func (f *Future[T]) Detach() {
	f.mu.Lock()
	f.detached = true
	report := f.finished && f.err != nil && !f.reported
	if report {
		f.reported = true
	}
	err := f.err
	f.mu.Unlock()

	if report {
		f.report(err)
	}
}

func (f *Future[T]) complete(val T, err error) {
	f.mu.Lock()
	f.val = val
	f.err = err
	f.finished = true
	report := f.detached && err != nil && !f.reported
	if report {
		f.reported = true
	}
	f.mu.Unlock()
	close(f.done)

	if report {
		f.report(err)
	}
}

func (f *Future[T]) report(err error) {
	if f.onError == nil {
		return
	}
	f.onError(f.ctx, Status{ID: f.id, Name: f.name, State: StateFailed, Err: err, UpdatedAt: time.Now().UTC()})
}

type Writer struct {
	jobs    chan func()
	wg      sync.WaitGroup
	sending sync.WaitGroup
	onError ErrorHandler

	mu       sync.Mutex
	closed   bool
	statuses map[string]Status
	order    []string
}

func NewWriter(workers int, queue int, onError ErrorHandler) *Writer {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	w := &Writer{
		jobs:     make(chan func(), queue),
		onError:  onError,
		statuses: make(map[string]Status),
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for job := range w.jobs {
				job()
			}
		}()
	}
	return w
}

// Submit queues fn and returns its Future. fn runs with a context that keeps
// ctx's values but not its cancellation.
func Submit[T any](ctx context.Context, w *Writer, name string, fn func(ctx context.Context) (T, error)) *Future[T] {
	runCtx := context.WithoutCancel(ctx)
	f := &Future[T]{
		id:      uuid.NewString(),
		name:    name,
		done:    make(chan struct{}),
		ctx:     runCtx,
		onError: w.onError,
	}
	w.record(Status{ID: f.id, Name: name, State: StatePending, UpdatedAt: time.Now().UTC()})

	job := func() {
		val, err := fn(runCtx)
		status := Status{ID: f.id, Name: name, State: StateDone, Result: val, UpdatedAt: time.Now().UTC()}
		if err != nil {
			status.State = StateFailed
			status.Err = err
			status.Result = nil
		}
		w.record(status)
		f.complete(val, err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		var zero T
		w.record(Status{ID: f.id, Name: name, State: StateFailed, Err: ErrClosed, UpdatedAt: time.Now().UTC()})
		f.complete(zero, ErrClosed)
		return f
	}
	select {
	case w.jobs <- job:
		w.mu.Unlock()
	default:
		// Queue is full: hand the job over once a worker frees up. The
		// submitter's ctx is not consulted. Close waits for these senders
		// before closing the queue.
		w.sending.Add(1)
		w.mu.Unlock()
		go func() {
			defer w.sending.Done()
			w.jobs <- job
		}()
	}
	return f
}

func (w *Writer) record(status Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, seen := w.statuses[status.ID]; !seen {
		w.order = append(w.order, status.ID)
		if len(w.order) > historySize {
			delete(w.statuses, w.order[0])
			w.order = w.order[1:]
		}
	}
	w.statuses[status.ID] = status
}

// Status reports the last known state of a submitted write.
func (w *Writer) Status(id string) (Status, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	status, ok := w.statuses[id]
	return status, ok
}

// Close stops accepting writes and waits for queued ones to finish.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	w.sending.Wait()
	close(w.jobs)
	w.wg.Wait()
}
