// Package reconcile brings a stored document's classification in line with
// what the document layer reports when a document is opened.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/slug"
	"github.com/pbaille/folio/internal/store"
	"github.com/pbaille/folio/internal/taxonomy"
)

// Outcome describes what a reconcile did to the stored record
type Outcome string

const (
	Created   Outcome = "created"
	Updated   Outcome = "updated"
	Unchanged Outcome = "unchanged"
)

// Reconciler resolves document sources against the store
type Reconciler struct {
	worker    *store.Worker
	normalize slug.Func
}

// New creates a Reconciler submitting its work to w
func New(w *store.Worker, normalize slug.Func) *Reconciler {
	return &Reconciler{worker: w, normalize: normalize}
}

// Reconcile resolves every name in src, creating terms as needed, and
// writes the document only when it is new or differs from the stored record.
func (r *Reconciler) Reconcile(ctx context.Context, src domain.Source) (Outcome, error) {
	if src.ID == "" {
		return "", errors.New("reconcile: document id is required")
	}
	return store.Perform(ctx, r.worker, func(tx *store.Tx) (Outcome, error) {
		res := taxonomy.New(tx, r.normalize)

		resolved, err := resolve(res, src)
		if err != nil {
			return "", fmt.Errorf("reconcile %s: %w", src.ID, err)
		}

		stored, err := tx.GetDocument(src.ID)
		if errors.Is(err, store.ErrNotFound) {
			if err := tx.InsertDocument(resolved); err != nil {
				return "", fmt.Errorf("reconcile %s: %w", src.ID, err)
			}
			return Created, nil
		}
		if err != nil {
			return "", fmt.Errorf("reconcile %s: %w", src.ID, err)
		}

		kinds, changed := merge(stored, resolved)
		if !changed {
			return Unchanged, nil
		}
		if err := tx.SaveDocument(stored, kinds); err != nil {
			return "", fmt.Errorf("reconcile %s: %w", src.ID, err)
		}
		return Updated, nil
	})
}

// CreateOrUpdate records a document's title, path and visibility without
// resolving any of its classification.
func (r *Reconciler) CreateOrUpdate(ctx context.Context, src domain.Source) (Outcome, error) {
	if src.ID == "" {
		return "", errors.New("create document: id is required")
	}
	return store.Perform(ctx, r.worker, func(tx *store.Tx) (Outcome, error) {
		stored, err := tx.GetDocument(src.ID)
		if errors.Is(err, store.ErrNotFound) {
			doc := &domain.Document{ID: src.ID, Title: src.Title, Path: src.Path, Visible: src.Visible}
			if err := tx.InsertDocument(doc); err != nil {
				return "", fmt.Errorf("create document %s: %w", src.ID, err)
			}
			return Created, nil
		}
		if err != nil {
			return "", fmt.Errorf("create document %s: %w", src.ID, err)
		}

		if stored.Title == src.Title && stored.Path == src.Path && stored.Visible == src.Visible {
			return Unchanged, nil
		}
		stored.Title, stored.Path, stored.Visible = src.Title, src.Path, src.Visible
		if err := tx.SaveDocument(stored, nil); err != nil {
			return "", fmt.Errorf("update document %s: %w", src.ID, err)
		}
		return Updated, nil
	})
}

// resolve builds the document src describes, with every name resolved to a term.
func resolve(res *taxonomy.Resolver, src domain.Source) (*domain.Document, error) {
	doc := &domain.Document{
		ID:      src.ID,
		Title:   src.Title,
		Path:    src.Path,
		Visible: src.Visible,
		Terms:   make(map[domain.Kind][]domain.Term),
	}

	for _, kind := range domain.SingletonKinds {
		name := src.SingletonName(kind)
		if name == "" {
			continue
		}
		parentID := ""
		if parent := doc.Singleton(kind.Parent()); parent != nil {
			parentID = parent.ID
		}
		term, err := res.Upsert(kind, name, parentID, domain.ProvenanceImported)
		if err != nil {
			return nil, err
		}
		doc.SetSingleton(kind, term)
	}

	for _, kind := range domain.MultiValuedKinds {
		seen := make(map[string]bool)
		for _, name := range src.Names[kind] {
			term, err := res.Upsert(kind, name, "", domain.ProvenanceImported)
			if err != nil {
				return nil, err
			}
			if seen[term.ID] {
				continue
			}
			seen[term.ID] = true
			doc.Terms[kind] = append(doc.Terms[kind], *term)
		}
	}

	return doc, nil
}

// merge copies every field of resolved that differs into stored and
// reports which multi-valued kinds changed and whether anything did.
func merge(stored, resolved *domain.Document) ([]domain.Kind, bool) {
	changed := false
	if stored.Title != resolved.Title {
		stored.Title = resolved.Title
		changed = true
	}
	if stored.Path != resolved.Path {
		stored.Path = resolved.Path
		changed = true
	}
	if stored.Visible != resolved.Visible {
		stored.Visible = resolved.Visible
		changed = true
	}

	for _, kind := range domain.SingletonKinds {
		if !domain.SameTerm(stored.Singleton(kind), resolved.Singleton(kind)) {
			stored.SetSingleton(kind, resolved.Singleton(kind))
			changed = true
		}
	}

	var kinds []domain.Kind
	if stored.Terms == nil {
		stored.Terms = make(map[domain.Kind][]domain.Term)
	}
	for _, kind := range domain.MultiValuedKinds {
		if !domain.SameSequence(stored.Terms[kind], resolved.Terms[kind]) {
			stored.Terms[kind] = resolved.Terms[kind]
			kinds = append(kinds, kind)
			changed = true
		}
	}

	return kinds, changed
}
