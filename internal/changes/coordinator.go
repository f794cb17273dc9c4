// Package changes accumulates small per-document edits and commits them to
// the store in debounced batches.
package changes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/slug"
	"github.com/pbaille/folio/internal/store"
	"github.com/sirupsen/logrus"
)

// DefaultQuietPeriod is how long a document must go without edits before
// its pending change is committed.
const DefaultQuietPeriod = 500 * time.Millisecond

// Config configures a Coordinator
type Config struct {
	QuietPeriod time.Duration
	Normalize   slug.Func
	Logger      logrus.FieldLogger
}

type debounce struct {
	timer *time.Timer
	gen   uint64
}

// Coordinator is the entry point for document edits. Callers are expected
// to serialize their own calls per document; the mutex only protects the
// bookkeeping shared with timer callbacks.
type Coordinator struct {
	worker    *store.Worker
	quiet     time.Duration
	normalize slug.Func
	logger    logrus.FieldLogger

	mu      sync.Mutex
	closed  bool
	gen     uint64
	pending map[string]*PendingChange
	timers  map[string]*debounce
	retries map[string]backoff.BackOff

	background sync.WaitGroup
}

// New creates a Coordinator committing through w
func New(w *store.Worker, cfg Config) *Coordinator {
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = DefaultQuietPeriod
	}
	if cfg.Normalize == nil {
		cfg.Normalize = slug.Normalize
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Coordinator{
		worker:    w,
		quiet:     cfg.QuietPeriod,
		normalize: cfg.Normalize,
		logger:    cfg.Logger,
		pending:   make(map[string]*PendingChange),
		timers:    make(map[string]*debounce),
		retries:   make(map[string]backoff.BackOff),
	}
}

// EnqueueSingleton records a new value for a singleton field. Visibility
// values are parsed as booleans; term fields take a display name, "" clears.
func (c *Coordinator) EnqueueSingleton(docID string, field domain.Field, value string) error {
	switch field {
	case domain.FieldTitle:
		return c.EnqueueTitle(docID, value)
	case domain.FieldVisibility:
		visible, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("visibility %q: %w", value, err)
		}
		return c.EnqueueVisibility(docID, visible)
	}
	if kind := field.Kind(); kind != "" {
		return c.EnqueueTerm(docID, kind, value)
	}
	return fmt.Errorf("unknown field %q", field)
}

// EnqueueTitle records a new title.
func (c *Coordinator) EnqueueTitle(docID, title string) error {
	return c.update(docID, func(p *PendingChange) { p.Title = &title })
}

// EnqueueVisibility records a new visibility flag.
func (c *Coordinator) EnqueueVisibility(docID string, visible bool) error {
	return c.update(docID, func(p *PendingChange) { p.Visible = &visible })
}

// EnqueueTerm records the term name for a singleton kind; "" clears it.
func (c *Coordinator) EnqueueTerm(docID string, kind domain.Kind, name string) error {
	if kind.MultiValued() {
		return fmt.Errorf("%s is multi-valued", kind)
	}
	if _, err := domain.ParseKind(string(kind)); err != nil {
		return err
	}
	return c.update(docID, func(p *PendingChange) { p.Singletons[kind] = &name })
}

// EnqueueMultiValued accumulates added and removed names for kind. Removed
// names are also detached from the stored document right away, and any
// term left unreferenced is deleted.
func (c *Coordinator) EnqueueMultiValued(docID string, kind domain.Kind, added, removed []string) error {
	if !kind.MultiValued() {
		return fmt.Errorf("%s is not multi-valued", kind)
	}
	err := c.update(docID, func(p *PendingChange) {
		d := p.delta(kind)
		d.Added = append(d.Added, added...)
		d.Removed = append(d.Removed, removed...)
	})
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		c.detach(docID, kind, append([]string(nil), removed...))
	}
	return nil
}

// update applies fn to the document's pending change and restarts its
// debounce window.
func (c *Coordinator) update(docID string, fn func(*PendingChange)) error {
	if c.worker == nil {
		return store.ErrStoreUnavailable
	}
	if docID == "" {
		return errors.New("document id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("coordinator closed: %w", store.ErrStoreUnavailable)
	}

	p, ok := c.pending[docID]
	if !ok {
		p = newPendingChange()
		c.pending[docID] = p
	}
	fn(p)

	c.arm(docID, c.quiet)
	return nil
}

// arm (re)starts the document's timer. c.mu must be held.
func (c *Coordinator) arm(docID string, delay time.Duration) {
	if d, ok := c.timers[docID]; ok {
		d.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.timers[docID] = &debounce{
		gen:   gen,
		timer: time.AfterFunc(delay, func() { c.fire(docID, gen) }),
	}
}

// fire runs when a debounce window elapses.
func (c *Coordinator) fire(docID string, gen uint64) {
	c.mu.Lock()
	d, ok := c.timers[docID]
	if !ok || d.gen != gen || c.closed {
		// restarted, flushed or closed since this timer was armed
		c.mu.Unlock()
		return
	}
	delete(c.timers, docID)
	p := c.take(docID)
	if p.Empty() {
		c.mu.Unlock()
		return
	}
	// submitted under c.mu so commits reach the worker in the order
	// their changes were taken
	c.background.Add(1)
	result := c.worker.Submit(context.Background(), c.commit(docID, p))
	c.mu.Unlock()

	go func() {
		defer c.background.Done()
		r := <-result

		c.mu.Lock()
		defer c.mu.Unlock()
		if r.Err == nil {
			delete(c.retries, docID)
			return
		}

		c.restore(docID, p)
		log := c.logger.WithError(r.Err).WithField("doc_id", docID)
		if _, armed := c.timers[docID]; armed || c.closed {
			log.Error("debounced commit failed")
			return
		}
		delay := c.retrySchedule(docID).NextBackOff()
		c.arm(docID, delay)
		log.WithField("retry_in", delay).Error("debounced commit failed")
	}()
}

// retrySchedule returns the backoff of docID. c.mu must be held.
func (c *Coordinator) retrySchedule(docID string) backoff.BackOff {
	b, ok := c.retries[docID]
	if !ok {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = c.quiet
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
		c.retries[docID] = b
	}
	return b
}

// take removes and returns the pending change of docID. c.mu must be held.
func (c *Coordinator) take(docID string) *PendingChange {
	p := c.pending[docID]
	delete(c.pending, docID)
	return p
}

// restore puts back a change whose commit failed. Values enqueued since it
// was taken win over the restored ones; restored deltas go first. c.mu
// must be held.
func (c *Coordinator) restore(docID string, p *PendingChange) {
	cur, ok := c.pending[docID]
	if !ok {
		c.pending[docID] = p
		return
	}
	cur.merge(p)
}

// Flush commits the document's pending change now and reports the outcome.
// A document with nothing pending is a successful no-op. The commit runs to
// completion even if ctx is cancelled; on failure the change stays pending.
func (c *Coordinator) Flush(ctx context.Context, docID string) error {
	if c.worker == nil {
		return store.ErrStoreUnavailable
	}

	c.mu.Lock()
	if d, ok := c.timers[docID]; ok {
		d.timer.Stop()
		delete(c.timers, docID)
	}
	p := c.take(docID)
	if p.Empty() {
		c.mu.Unlock()
		return nil
	}
	result := c.worker.Submit(context.WithoutCancel(ctx), c.commit(docID, p))
	c.mu.Unlock()

	err := (<-result).Err

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.restore(docID, p)
		return fmt.Errorf("flush %s: %w", docID, err)
	}
	delete(c.retries, docID)
	return nil
}

// FlushAll flushes every document with pending edits.
func (c *Coordinator) FlushAll(ctx context.Context) error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := c.Flush(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending reports whether docID has uncommitted edits.
func (c *Coordinator) Pending(docID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.pending[docID].Empty()
}

// Wait blocks until background commits and detaches already handed to the
// worker have finished. It must not be called concurrently with enqueues;
// Close is the safe way to wait while timers may still fire.
func (c *Coordinator) Wait() {
	c.background.Wait()
}

// Close stops accepting edits and timers, waits for background work and
// flushes whatever is still pending.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	for id, d := range c.timers {
		d.timer.Stop()
		delete(c.timers, id)
	}
	c.mu.Unlock()

	c.background.Wait()
	return c.FlushAll(ctx)
}
