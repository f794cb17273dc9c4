package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pbaille/folio/internal/domain"
)

// GetDocument retrieves a document with all of its terms
func (t *Tx) GetDocument(id string) (*domain.Document, error) {
	var doc domain.Document
	var domainID, categoryID, statusID, phaseID sql.NullString
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT id, title, path, updated_at, visible, domain_id, category_id, status_id, phase_id
		FROM documents WHERE id = ?
	`, id).Scan(&doc.ID, &doc.Title, &doc.Path, &doc.UpdatedAt, &doc.Visible,
		&domainID, &categoryID, &statusID, &phaseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	refs := map[domain.Kind]sql.NullString{
		domain.KindDomain:   domainID,
		domain.KindCategory: categoryID,
		domain.KindStatus:   statusID,
		domain.KindPhase:    phaseID,
	}
	for kind, ref := range refs {
		if !ref.Valid {
			continue
		}
		term, err := t.GetTerm(ref.String)
		if err != nil {
			return nil, fmt.Errorf("get document %s: %w", kind, err)
		}
		doc.SetSingleton(kind, term)
	}

	terms, err := t.documentTerms(id)
	if err != nil {
		return nil, err
	}
	doc.Terms = terms

	return &doc, nil
}

func (t *Tx) documentTerms(documentID string) (map[domain.Kind][]domain.Term, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT t.id, t.kind, t.slug, t.name, t.provenance, t.parent_id, t.created_at
		FROM terms t
		JOIN document_terms dt ON t.id = dt.term_id
		WHERE dt.document_id = ?
		ORDER BY t.kind, dt.position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document terms: %w", err)
	}
	defer rows.Close()

	terms := make(map[domain.Kind][]domain.Term)
	for rows.Next() {
		term, err := scanTerm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		terms[term.Kind] = append(terms[term.Kind], *term)
	}

	return terms, rows.Err()
}

func termID(t *domain.Term) *string {
	if t == nil {
		return nil
	}
	return &t.ID
}

// InsertDocument stores a new document together with its term links
func (t *Tx) InsertDocument(doc *domain.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	_, err := t.exec("insert document", `
		INSERT INTO documents (id, title, path, updated_at, visible, domain_id, category_id, status_id, phase_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Title, doc.Path, doc.UpdatedAt, doc.Visible,
		termID(doc.Domain), termID(doc.Category), termID(doc.Status), termID(doc.Phase))
	if err != nil {
		return err
	}

	for _, kind := range domain.MultiValuedKinds {
		if err := t.linkTerms(doc.ID, doc.Terms[kind]); err != nil {
			return err
		}
	}
	return nil
}

// SaveDocument writes the document row and replaces the term links of the
// given kinds. Links of other kinds are left untouched.
func (t *Tx) SaveDocument(doc *domain.Document, kinds []domain.Kind) error {
	doc.UpdatedAt = time.Now().UTC()
	res, err := t.exec("update document", `
		UPDATE documents
		SET title = ?, path = ?, updated_at = ?, visible = ?,
			domain_id = ?, category_id = ?, status_id = ?, phase_id = ?
		WHERE id = ?
	`, doc.Title, doc.Path, doc.UpdatedAt, doc.Visible,
		termID(doc.Domain), termID(doc.Category), termID(doc.Status), termID(doc.Phase), doc.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, ErrNotFound)
	}

	for _, kind := range kinds {
		if _, err := t.exec("clear document terms", `
			DELETE FROM document_terms
			WHERE document_id = ? AND term_id IN (SELECT id FROM terms WHERE kind = ?)
		`, doc.ID, kind); err != nil {
			return err
		}
		if err := t.linkTerms(doc.ID, doc.Terms[kind]); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) linkTerms(documentID string, terms []domain.Term) error {
	for i, term := range terms {
		if _, err := t.exec("link document term",
			"INSERT INTO document_terms (document_id, term_id, position) VALUES (?, ?, ?)",
			documentID, term.ID, i,
		); err != nil {
			return err
		}
	}
	return nil
}

// UnlinkTerm removes a multi-valued term from a document. It reports
// whether a link existed.
func (t *Tx) UnlinkTerm(documentID, termID string) (bool, error) {
	res, err := t.exec("unlink document term",
		"DELETE FROM document_terms WHERE document_id = ? AND term_id = ?",
		documentID, termID,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListDocuments returns recently updated documents without their terms
func (t *Tx) ListDocuments(limit, offset int) ([]domain.Document, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		"SELECT id, title, path, updated_at, visible FROM documents ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Path, &d.UpdatedAt, &d.Visible); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}

	return docs, rows.Err()
}
