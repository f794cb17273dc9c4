package store

import (
	"context"
	"testing"

	"github.com/pbaille/folio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugUniqueWithinScope(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	_, err := w.Do(ctx, func(tx *Tx) (any, error) {
		return nil, tx.InsertTerm(newTerm(domain.KindTag, "swift", nil))
	})
	require.NoError(t, err)

	_, err = w.Do(ctx, func(tx *Tx) (any, error) {
		return nil, tx.InsertTerm(newTerm(domain.KindTag, "swift", nil))
	})
	assert.ErrorIs(t, err, ErrSlugTaken)

	// same slug, other kind or other parent: allowed
	_, err = w.Do(ctx, func(tx *Tx) (any, error) {
		if err := tx.InsertTerm(newTerm(domain.KindGenre, "swift", nil)); err != nil {
			return nil, err
		}
		a := newTerm(domain.KindDomain, "apple", nil)
		b := newTerm(domain.KindDomain, "birds", nil)
		for _, d := range []*domain.Term{a, b} {
			if err := tx.InsertTerm(d); err != nil {
				return nil, err
			}
		}
		if err := tx.InsertTerm(newTerm(domain.KindCategory, "swift", &a.ID)); err != nil {
			return nil, err
		}
		return nil, tx.InsertTerm(newTerm(domain.KindCategory, "swift", &b.ID))
	})
	assert.NoError(t, err)
}

func TestDocumentRoundTrip(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	swift := newTerm(domain.KindTag, "swift", nil)
	actors := newTerm(domain.KindTag, "actors", nil)
	book := newTerm(domain.KindMedium, "book", nil)
	prog := newTerm(domain.KindDomain, "programming", nil)

	_, err := w.Do(ctx, func(tx *Tx) (any, error) {
		for _, term := range []*domain.Term{swift, actors, book, prog} {
			if err := tx.InsertTerm(term); err != nil {
				return nil, err
			}
		}
		return nil, tx.InsertDocument(&domain.Document{
			ID:      "doc-1",
			Title:   "Swift notes",
			Path:    "/docs/swift.html",
			Visible: true,
			Domain:  prog,
			Terms: map[domain.Kind][]domain.Term{
				domain.KindTag:    {*swift, *actors},
				domain.KindMedium: {*book},
			},
		})
	})
	require.NoError(t, err)

	doc, err := Perform(ctx, w, func(tx *Tx) (*domain.Document, error) {
		return tx.GetDocument("doc-1")
	})
	require.NoError(t, err)
	assert.Equal(t, "Swift notes", doc.Title)
	assert.True(t, doc.Visible)
	require.NotNil(t, doc.Domain)
	assert.Equal(t, prog.ID, doc.Domain.ID)
	assert.Nil(t, doc.Category)
	assert.True(t, domain.SameSequence([]domain.Term{*swift, *actors}, doc.Terms[domain.KindTag]))
	assert.True(t, domain.SameSequence([]domain.Term{*book}, doc.Terms[domain.KindMedium]))

	// reorder tags only; mediums stay
	doc.Terms[domain.KindTag] = []domain.Term{*actors, *swift}
	doc.Terms[domain.KindMedium] = nil
	doc.Visible = false
	_, err = w.Do(ctx, func(tx *Tx) (any, error) {
		return nil, tx.SaveDocument(doc, []domain.Kind{domain.KindTag})
	})
	require.NoError(t, err)

	doc, err = Perform(ctx, w, func(tx *Tx) (*domain.Document, error) {
		return tx.GetDocument("doc-1")
	})
	require.NoError(t, err)
	assert.False(t, doc.Visible)
	assert.True(t, domain.SameSequence([]domain.Term{*actors, *swift}, doc.Terms[domain.KindTag]))
	assert.True(t, domain.SameSequence([]domain.Term{*book}, doc.Terms[domain.KindMedium]))
}

func TestGetDocumentNotFound(t *testing.T) {
	w := newTestWorker(t)
	_, err := Perform(context.Background(), w, func(tx *Tx) (*domain.Document, error) {
		return tx.GetDocument("missing")
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTermReferencesAndDelete(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	swift := newTerm(domain.KindTag, "swift", nil)
	prog := newTerm(domain.KindDomain, "programming", nil)
	lang := newTerm(domain.KindCategory, "languages", &prog.ID)

	_, err := w.Do(ctx, func(tx *Tx) (any, error) {
		for _, term := range []*domain.Term{swift, prog, lang} {
			if err := tx.InsertTerm(term); err != nil {
				return nil, err
			}
		}
		for _, id := range []string{"a", "b"} {
			if err := tx.InsertDocument(&domain.Document{
				ID:       id,
				Domain:   prog,
				Category: lang,
				Terms:    map[domain.Kind][]domain.Term{domain.KindTag: {*swift}},
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	require.NoError(t, err)

	refs := func(id string) int {
		n, err := Perform(ctx, w, func(tx *Tx) (int, error) { return tx.TermReferences(id) })
		require.NoError(t, err)
		return n
	}
	assert.Equal(t, 2, refs(swift.ID))
	assert.Equal(t, 2, refs(prog.ID))

	unlinked, err := Perform(ctx, w, func(tx *Tx) (bool, error) { return tx.UnlinkTerm("a", swift.ID) })
	require.NoError(t, err)
	assert.True(t, unlinked)
	unlinked, err = Perform(ctx, w, func(tx *Tx) (bool, error) { return tx.UnlinkTerm("a", swift.ID) })
	require.NoError(t, err)
	assert.False(t, unlinked)
	assert.Equal(t, 1, refs(swift.ID))

	// deleting a domain takes its categories along and clears references
	deleted, err := Perform(ctx, w, func(tx *Tx) (bool, error) { return tx.DeleteTerm(prog.ID) })
	require.NoError(t, err)
	assert.True(t, deleted)

	doc, err := Perform(ctx, w, func(tx *Tx) (*domain.Document, error) { return tx.GetDocument("b") })
	require.NoError(t, err)
	assert.Nil(t, doc.Domain)
	assert.Nil(t, doc.Category)

	terms, err := Perform(ctx, w, func(tx *Tx) ([]domain.Term, error) { return tx.ListTerms("") })
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, swift.ID, terms[0].ID)
}

func TestWritesCountsCommittedStatements(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	_, err := w.Do(ctx, func(tx *Tx) (any, error) {
		return nil, tx.InsertDocument(&domain.Document{ID: "doc-1", Title: "t"})
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, w.Store().Writes())

	_, err = w.Do(ctx, func(tx *Tx) (any, error) { return tx.GetDocument("doc-1") })
	require.NoError(t, err)
	assert.EqualValues(t, 1, w.Store().Writes())
}
