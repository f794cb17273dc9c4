package store

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Result is the outcome of one unit of work.
type Result struct {
	Value any
	Err   error
}

// UnitOfWork runs with exclusive access to the store.
type UnitOfWork func(tx *Tx) (any, error)

type job struct {
	ctx    context.Context
	fn     UnitOfWork
	result chan Result
}

// Worker executes units of work one at a time, in submission order, each
// inside its own transaction. It is the only path to the store: two
// check-then-create sequences can never interleave.
type Worker struct {
	store  *Store
	logger logrus.FieldLogger

	mu     sync.Mutex
	queue  []*job
	closed bool
	wake   chan struct{}
	done   chan struct{}

	submitted atomic.Int64
}

// NewWorker attaches a worker to s and starts it.
func NewWorker(s *Store, logger logrus.FieldLogger) *Worker {
	w := &Worker{
		store:  s,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit queues fn and returns immediately. The returned channel receives
// exactly one Result.
func (w *Worker) Submit(ctx context.Context, fn UnitOfWork) <-chan Result {
	result := make(chan Result, 1)
	if w == nil {
		result <- Result{Err: ErrStoreUnavailable}
		return result
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		result <- Result{Err: ErrStoreUnavailable}
		return result
	}
	w.queue = append(w.queue, &job{ctx: ctx, fn: fn, result: result})
	w.submitted.Add(1)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return result
}

// Do submits fn and waits for its result.
func (w *Worker) Do(ctx context.Context, fn UnitOfWork) (any, error) {
	r := <-w.Submit(ctx, fn)
	return r.Value, r.Err
}

// Perform is Do with a typed result.
func Perform[T any](ctx context.Context, w *Worker, fn func(tx *Tx) (T, error)) (T, error) {
	v, err := w.Do(ctx, func(tx *Tx) (any, error) {
		return fn(tx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// Submitted returns the number of units of work accepted so far.
func (w *Worker) Submitted() int64 {
	if w == nil {
		return 0
	}
	return w.submitted.Load()
}

// Store returns the store the worker is attached to.
func (w *Worker) Store() *Store {
	if w == nil {
		return nil
	}
	return w.store
}

// Close stops accepting work, waits for queued units to finish and stops
// the worker. The store itself stays open.
func (w *Worker) Close() error {
	if w == nil {
		return ErrStoreUnavailable
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	<-w.done
	return nil
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			closed := w.closed
			w.mu.Unlock()
			if closed {
				return
			}
			<-w.wake
			continue
		}
		j := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.mu.Unlock()

		v, err := w.execute(j)
		j.result <- Result{Value: v, Err: err}
	}
}

func (w *Worker) execute(j *job) (v any, err error) {
	if err := j.ctx.Err(); err != nil {
		return nil, err
	}

	sqlTx, err := w.store.db.BeginTx(j.ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", ErrSaveFailed, err)
	}
	tx := &Tx{ctx: j.ctx, tx: sqlTx}

	defer func() {
		if r := recover(); r != nil {
			w.logger.WithField("panic", r).Errorf("unit of work panicked: %s", debug.Stack())
			sqlTx.Rollback()
			v, err = nil, fmt.Errorf("unit of work panicked: %v", r)
		}
	}()

	v, err = j.fn(tx)
	if err != nil {
		sqlTx.Rollback()
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", ErrSaveFailed, err)
	}
	w.store.writes.Add(tx.writes)
	return v, nil
}
