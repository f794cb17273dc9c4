// Package taxonomy resolves display names to shared terms. A Resolver is
// bound to one store transaction and must only be used inside a unit of
// work; serialization comes from the store worker, not from here.
package taxonomy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/slug"
	"github.com/pbaille/folio/internal/store"
)

// Uncategorized is the display name of the sentinel parent used for
// categories and phases created without one.
const Uncategorized = "Uncategorized"

// ErrInvalidParent is returned when a parent does not match the kind's parent kind.
var ErrInvalidParent = errors.New("invalid parent")

// Resolver upserts and fetches terms within one unit of work
type Resolver struct {
	tx        *store.Tx
	normalize slug.Func
}

// New creates a Resolver for tx. A nil normalize uses slug.Normalize.
func New(tx *store.Tx, normalize slug.Func) *Resolver {
	if normalize == nil {
		normalize = slug.Normalize
	}
	return &Resolver{tx: tx, normalize: normalize}
}

// Slug returns the normalized identifier for name.
func (r *Resolver) Slug(name string) string {
	return r.normalize(name)
}

// Upsert returns the live term of kind whose slug matches name within the
// parent's scope, creating it when missing. Kinds with a parent kind fall
// back to the Uncategorized parent when parentID is empty.
func (r *Resolver) Upsert(kind domain.Kind, name, parentID string, prov domain.Provenance) (*domain.Term, error) {
	parentID, err := r.scope(kind, parentID)
	if err != nil {
		return nil, err
	}

	base := r.normalize(name)
	term, err := r.tx.FindTerm(kind, base, parentID)
	if err != nil {
		return nil, err
	}
	if term != nil {
		return term, nil
	}

	s, err := r.uniqueSlug(kind, base, parentID)
	if err != nil {
		return nil, err
	}

	term = &domain.Term{
		ID:         uuid.New().String(),
		Kind:       kind,
		Slug:       s,
		Name:       strings.TrimSpace(name),
		Provenance: prov,
		CreatedAt:  time.Now().UTC(),
	}
	if parentID != "" {
		term.ParentID = &parentID
	}
	if err := r.tx.InsertTerm(term); err != nil {
		return nil, fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	return term, nil
}

// uniqueSlug appends -2, -3, ... to base until no live term in scope holds it.
func (r *Resolver) uniqueSlug(kind domain.Kind, base, parentID string) (string, error) {
	candidate := base
	for n := 2; ; n++ {
		held, err := r.tx.FindTerm(kind, candidate, parentID)
		if err != nil {
			return "", err
		}
		if held == nil {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}

// scope validates parentID for kind and substitutes the sentinel parent
// where one is required but missing.
func (r *Resolver) scope(kind domain.Kind, parentID string) (string, error) {
	parentKind := kind.Parent()
	if parentKind == "" {
		if parentID != "" {
			return "", fmt.Errorf("%s takes no parent: %w", kind, ErrInvalidParent)
		}
		return "", nil
	}

	if parentID == "" {
		parent, err := r.Upsert(parentKind, Uncategorized, "", domain.ProvenanceSeeded)
		if err != nil {
			return "", err
		}
		return parent.ID, nil
	}

	parent, err := r.tx.GetTerm(parentID)
	if err != nil {
		return "", err
	}
	if parent.Kind != parentKind {
		return "", fmt.Errorf("%s parent must be a %s, got %s: %w", kind, parentKind, parent.Kind, ErrInvalidParent)
	}
	return parentID, nil
}

// Fetch looks up a term by slug without creating it. It returns nil when
// there is none. For kinds with a parent, an empty parentID means the
// Uncategorized parent; if that does not exist either, nothing is found.
func (r *Resolver) Fetch(kind domain.Kind, s, parentID string) (*domain.Term, error) {
	if kind.Parent() != "" && parentID == "" {
		parent, err := r.tx.FindTerm(kind.Parent(), r.normalize(Uncategorized), "")
		if err != nil || parent == nil {
			return nil, err
		}
		parentID = parent.ID
	}
	return r.tx.FindTerm(kind, s, parentID)
}

// FetchByName is Fetch for a display name.
func (r *Resolver) FetchByName(kind domain.Kind, name, parentID string) (*domain.Term, error) {
	return r.Fetch(kind, r.normalize(name), parentID)
}

func (r *Resolver) Tag(name string) (*domain.Term, error) {
	return r.Upsert(domain.KindTag, name, "", domain.ProvenanceManual)
}

func (r *Resolver) Medium(name string) (*domain.Term, error) {
	return r.Upsert(domain.KindMedium, name, "", domain.ProvenanceManual)
}

func (r *Resolver) Genre(name string) (*domain.Term, error) {
	return r.Upsert(domain.KindGenre, name, "", domain.ProvenanceManual)
}

func (r *Resolver) Topic(name string) (*domain.Term, error) {
	return r.Upsert(domain.KindTopic, name, "", domain.ProvenanceManual)
}

func (r *Resolver) Subject(name string) (*domain.Term, error) {
	return r.Upsert(domain.KindSubject, name, "", domain.ProvenanceManual)
}

func (r *Resolver) Domain(name string) (*domain.Term, error) {
	return r.Upsert(domain.KindDomain, name, "", domain.ProvenanceManual)
}

// Category upserts a category under domainID, or under Uncategorized when empty.
func (r *Resolver) Category(name, domainID string) (*domain.Term, error) {
	return r.Upsert(domain.KindCategory, name, domainID, domain.ProvenanceManual)
}

func (r *Resolver) Status(name string) (*domain.Term, error) {
	return r.Upsert(domain.KindStatus, name, "", domain.ProvenanceManual)
}

// Phase upserts a phase under statusID, or under Uncategorized when empty.
func (r *Resolver) Phase(name, statusID string) (*domain.Term, error) {
	return r.Upsert(domain.KindPhase, name, statusID, domain.ProvenanceManual)
}

// Seed upserts names as system-provided terms of a root kind.
func (r *Resolver) Seed(kind domain.Kind, names []string) ([]domain.Term, error) {
	terms := make([]domain.Term, 0, len(names))
	for _, name := range names {
		term, err := r.Upsert(kind, name, "", domain.ProvenanceSeeded)
		if err != nil {
			return nil, err
		}
		terms = append(terms, *term)
	}
	return terms, nil
}

// Rename changes a term's display name and regenerates its slug. It fails
// with store.ErrSlugTaken when another term in the same scope holds the new slug.
func (r *Resolver) Rename(id, name string) (*domain.Term, error) {
	term, err := r.tx.GetTerm(id)
	if err != nil {
		return nil, err
	}

	s := r.normalize(name)
	if s != term.Slug {
		parentID := ""
		if term.ParentID != nil {
			parentID = *term.ParentID
		}
		held, err := r.tx.FindTerm(term.Kind, s, parentID)
		if err != nil {
			return nil, err
		}
		if held != nil {
			return nil, fmt.Errorf("rename %s %q to %q: %w", term.Kind, term.Name, name, store.ErrSlugTaken)
		}
	}

	term.Name = strings.TrimSpace(name)
	term.Slug = s
	if err := r.tx.RenameTerm(term.ID, term.Name, term.Slug); err != nil {
		return nil, err
	}
	return term, nil
}

// Delete removes a term of any kind. It reports whether the term existed.
func (r *Resolver) Delete(id string) (bool, error) {
	return r.tx.DeleteTerm(id)
}

// CollectOrphan deletes a multi-valued term once no document references it.
// Hierarchical kinds are never collected.
func (r *Resolver) CollectOrphan(term *domain.Term) (bool, error) {
	if term == nil || !term.Kind.MultiValued() {
		return false, nil
	}
	refs, err := r.tx.TermReferences(term.ID)
	if err != nil {
		return false, err
	}
	if refs > 0 {
		return false, nil
	}
	return r.tx.DeleteTerm(term.ID)
}
