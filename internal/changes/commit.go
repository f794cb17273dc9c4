package changes

import (
	"context"

	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/store"
	"github.com/pbaille/folio/internal/taxonomy"
)

// commit builds the unit of work applying p to the stored document.
// Removals are applied before additions, and removing an absent
// reference is a no-op, so replaying a removal the immediate detach
// already performed is harmless.
func (c *Coordinator) commit(docID string, p *PendingChange) store.UnitOfWork {
	return func(tx *store.Tx) (any, error) {
		res := taxonomy.New(tx, c.normalize)

		doc, err := tx.GetDocument(docID)
		if err != nil {
			return nil, err
		}

		changed := false
		if p.Title != nil && *p.Title != doc.Title {
			doc.Title = *p.Title
			changed = true
		}
		if p.Visible != nil && *p.Visible != doc.Visible {
			doc.Visible = *p.Visible
			changed = true
		}

		// a category or phase whose domain or status changed moves under
		// the new parent by name, unless it was edited itself
		moved := make(map[domain.Kind]bool)
		for _, kind := range domain.SingletonKinds {
			name, ok := p.Singletons[kind]
			if !ok {
				current := doc.Singleton(kind)
				if !moved[kind.Parent()] || current == nil {
					continue
				}
				name = &current.Name
			}
			var term *domain.Term
			if *name != "" {
				parentID := ""
				if parent := doc.Singleton(kind.Parent()); parent != nil {
					parentID = parent.ID
				}
				term, err = res.Upsert(kind, *name, parentID, domain.ProvenanceManual)
				if err != nil {
					return nil, err
				}
			}
			if !domain.SameTerm(doc.Singleton(kind), term) {
				doc.SetSingleton(kind, term)
				moved[kind] = true
				changed = true
			}
		}

		if doc.Terms == nil {
			doc.Terms = make(map[domain.Kind][]domain.Term)
		}
		var kinds []domain.Kind
		var removed []*domain.Term
		for _, kind := range domain.MultiValuedKinds {
			d, ok := p.Multi[kind]
			if !ok {
				continue
			}
			before := doc.Terms[kind]
			terms := append([]domain.Term(nil), before...)

			for _, name := range d.Removed {
				term, err := res.FetchByName(kind, name, "")
				if err != nil {
					return nil, err
				}
				if term == nil {
					continue
				}
				terms = without(terms, term.ID)
				removed = append(removed, term)
			}
			for _, name := range d.Added {
				term, err := res.Upsert(kind, name, "", domain.ProvenanceManual)
				if err != nil {
					return nil, err
				}
				if !contains(terms, term.ID) {
					terms = append(terms, *term)
				}
			}

			if !domain.SameSequence(before, terms) {
				doc.Terms[kind] = terms
				kinds = append(kinds, kind)
				changed = true
			}
		}

		if changed {
			if err := tx.SaveDocument(doc, kinds); err != nil {
				return nil, err
			}
		}

		for _, term := range removed {
			if _, err := res.CollectOrphan(term); err != nil {
				return nil, err
			}
		}
		return changed, nil
	}
}

// detach submits the immediate removal of names from the stored document,
// deleting terms nobody references any more. Failures are logged only; the
// reference and the candidate orphan stay for a later pass.
func (c *Coordinator) detach(docID string, kind domain.Kind, names []string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.background.Add(1)
	defer c.mu.Unlock()

	result := c.worker.Submit(context.Background(), func(tx *store.Tx) (any, error) {
		res := taxonomy.New(tx, c.normalize)
		collected := 0
		for _, name := range names {
			term, err := res.FetchByName(kind, name, "")
			if err != nil {
				return nil, err
			}
			if term == nil {
				continue
			}
			if _, err := tx.UnlinkTerm(docID, term.ID); err != nil {
				return nil, err
			}
			ok, err := res.CollectOrphan(term)
			if err != nil {
				return nil, err
			}
			if ok {
				collected++
			}
		}
		return collected, nil
	})

	go func() {
		defer c.background.Done()
		r := <-result
		log := c.logger.WithField("doc_id", docID).WithField("kind", kind)
		if r.Err != nil {
			log.WithError(r.Err).Warn("detach failed")
			return
		}
		if n, _ := r.Value.(int); n > 0 {
			log.WithField("collected", n).Debug("collected orphaned terms")
		}
	}()
}

func without(terms []domain.Term, id string) []domain.Term {
	out := terms[:0]
	for _, t := range terms {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func contains(terms []domain.Term, id string) bool {
	for _, t := range terms {
		if t.ID == id {
			return true
		}
	}
	return false
}
