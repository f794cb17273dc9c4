// Package catalog wires the store, the reconciler and the change
// coordinator together for the CLI and the HTTP API.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pbaille/folio/internal/changes"
	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/reconcile"
	"github.com/pbaille/folio/internal/slug"
	"github.com/pbaille/folio/internal/store"
	"github.com/pbaille/folio/internal/taxonomy"
	"github.com/sirupsen/logrus"
)

// Options configures a Catalog
type Options struct {
	DBPath      string
	QuietPeriod time.Duration
	Normalize   slug.Func
	Logger      logrus.FieldLogger
}

// Catalog is the document classification service
type Catalog struct {
	*changes.Coordinator

	store      *store.Store
	worker     *store.Worker
	reconciler *reconcile.Reconciler
	normalize  slug.Func
	logger     logrus.FieldLogger
}

// Open opens the database and starts the store worker
func Open(opts Options) (*Catalog, error) {
	if opts.Normalize == nil {
		opts.Normalize = slug.Normalize
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	s, err := store.New(opts.DBPath)
	if err != nil {
		return nil, err
	}
	w := store.NewWorker(s, opts.Logger.WithField("component", "store"))

	return &Catalog{
		Coordinator: changes.New(w, changes.Config{
			QuietPeriod: opts.QuietPeriod,
			Normalize:   opts.Normalize,
			Logger:      opts.Logger.WithField("component", "changes"),
		}),
		store:      s,
		worker:     w,
		reconciler: reconcile.New(w, opts.Normalize),
		normalize:  opts.Normalize,
		logger:     opts.Logger,
	}, nil
}

// Close flushes pending edits, then stops the worker and closes the database.
func (c *Catalog) Close(ctx context.Context) error {
	flushErr := c.Coordinator.Close(ctx)
	if flushErr != nil {
		c.logger.WithError(flushErr).Error("flush on close failed")
	}
	return errors.Join(flushErr, c.worker.Close(), c.store.Close())
}

// Reconcile resolves a document's full classification on open.
func (c *Catalog) Reconcile(ctx context.Context, src domain.Source) (reconcile.Outcome, error) {
	return c.reconciler.Reconcile(ctx, src)
}

// CreateOrUpdate records a document without resolving its classification.
func (c *Catalog) CreateOrUpdate(ctx context.Context, src domain.Source) (reconcile.Outcome, error) {
	return c.reconciler.CreateOrUpdate(ctx, src)
}

// Document retrieves a stored document with its terms
func (c *Catalog) Document(ctx context.Context, id string) (*domain.Document, error) {
	return store.Perform(ctx, c.worker, func(tx *store.Tx) (*domain.Document, error) {
		return tx.GetDocument(id)
	})
}

// Documents lists stored documents, most recently updated first
func (c *Catalog) Documents(ctx context.Context, limit, offset int) ([]domain.Document, error) {
	return store.Perform(ctx, c.worker, func(tx *store.Tx) ([]domain.Document, error) {
		return tx.ListDocuments(limit, offset)
	})
}

// Terms lists the terms of a kind, or all terms when kind is empty
func (c *Catalog) Terms(ctx context.Context, kind domain.Kind) ([]domain.Term, error) {
	return store.Perform(ctx, c.worker, func(tx *store.Tx) ([]domain.Term, error) {
		return tx.ListTerms(kind)
	})
}

// RenameTerm renames a term, keeping slugs unique within its scope
func (c *Catalog) RenameTerm(ctx context.Context, id, name string) (*domain.Term, error) {
	return store.Perform(ctx, c.worker, func(tx *store.Tx) (*domain.Term, error) {
		return taxonomy.New(tx, c.normalize).Rename(id, name)
	})
}

// DeleteTerm explicitly deletes a term of any kind
func (c *Catalog) DeleteTerm(ctx context.Context, id string) error {
	_, err := store.Perform(ctx, c.worker, func(tx *store.Tx) (bool, error) {
		ok, err := taxonomy.New(tx, c.normalize).Delete(id)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("term %s: %w", id, store.ErrNotFound)
		}
		return true, nil
	})
	return err
}

// Seed creates system-provided terms of a root kind
func (c *Catalog) Seed(ctx context.Context, kind domain.Kind, names []string) ([]domain.Term, error) {
	return store.Perform(ctx, c.worker, func(tx *store.Tx) ([]domain.Term, error) {
		return taxonomy.New(tx, c.normalize).Seed(kind, names)
	})
}

// Writes reports the number of committed mutating statements.
func (c *Catalog) Writes() int64 {
	return c.store.Writes()
}
