package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pbaille/folio/internal/domain"
)

// Tx is the exclusive read/write context of one unit of work. It is only
// valid inside the function passed to the Worker.
type Tx struct {
	ctx    context.Context
	tx     *sql.Tx
	writes int64
}

func (t *Tx) exec(op, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(t.ctx, query, args...)
	if err != nil {
		return nil, saveError(op, err)
	}
	t.writes++
	return res, nil
}

const termColumns = "id, kind, slug, name, provenance, parent_id, created_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanTerm(row scanner) (*domain.Term, error) {
	var term domain.Term
	if err := row.Scan(&term.ID, &term.Kind, &term.Slug, &term.Name, &term.Provenance, &term.ParentID, &term.CreatedAt); err != nil {
		return nil, err
	}
	return &term, nil
}

// FindTerm looks up the live term holding slug within (kind, parentID).
// It returns nil when there is none.
func (t *Tx) FindTerm(kind domain.Kind, slug, parentID string) (*domain.Term, error) {
	term, err := scanTerm(t.tx.QueryRowContext(t.ctx,
		"SELECT "+termColumns+" FROM terms WHERE kind = ? AND IFNULL(parent_id, '') = ? AND slug = ?",
		kind, parentID, slug,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find term: %w", err)
	}
	return term, nil
}

// GetTerm retrieves a term by ID
func (t *Tx) GetTerm(id string) (*domain.Term, error) {
	term, err := scanTerm(t.tx.QueryRowContext(t.ctx, "SELECT "+termColumns+" FROM terms WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("term %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get term: %w", err)
	}
	return term, nil
}

// InsertTerm stores a new term
func (t *Tx) InsertTerm(term *domain.Term) error {
	_, err := t.exec("insert term",
		"INSERT INTO terms ("+termColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		term.ID, term.Kind, term.Slug, term.Name, term.Provenance, term.ParentID, term.CreatedAt,
	)
	return err
}

// RenameTerm changes a term's display name and slug
func (t *Tx) RenameTerm(id, name, slug string) error {
	res, err := t.exec("rename term", "UPDATE terms SET name = ?, slug = ? WHERE id = ?", name, slug, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("term %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteTerm removes a term. Document links and child terms go with it;
// singleton references are cleared.
func (t *Tx) DeleteTerm(id string) (bool, error) {
	res, err := t.exec("delete term", "DELETE FROM terms WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// TermReferences counts the documents referencing a term
func (t *Tx) TermReferences(id string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT
			(SELECT COUNT(*) FROM document_terms WHERE term_id = ?1) +
			(SELECT COUNT(*) FROM documents
				WHERE domain_id = ?1 OR category_id = ?1 OR status_id = ?1 OR phase_id = ?1)
	`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count term references: %w", err)
	}
	return n, nil
}

// ListTerms returns all terms of a kind ordered by name, or every term when kind is empty
func (t *Tx) ListTerms(kind domain.Kind) ([]domain.Term, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		"SELECT "+termColumns+" FROM terms WHERE ?1 = '' OR kind = ?1 ORDER BY kind, name",
		kind,
	)
	if err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	defer rows.Close()

	var terms []domain.Term
	for rows.Next() {
		term, err := scanTerm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		terms = append(terms, *term)
	}

	return terms, rows.Err()
}
