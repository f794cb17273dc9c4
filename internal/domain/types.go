package domain

import (
	"fmt"
	"time"
)

// Kind identifies a family of shared classification terms
type Kind string

const (
	KindTag      Kind = "tag"
	KindMedium   Kind = "medium"
	KindGenre    Kind = "genre"
	KindTopic    Kind = "topic"
	KindSubject  Kind = "subject"
	KindDomain   Kind = "domain"
	KindCategory Kind = "category"
	KindStatus   Kind = "status"
	KindPhase    Kind = "phase"
)

// MultiValuedKinds lists the kinds a document holds as ordered collections,
// in the order they are stored and compared.
var MultiValuedKinds = []Kind{KindTag, KindMedium, KindGenre, KindTopic, KindSubject}

// SingletonKinds lists the kinds a document holds at most one of.
var SingletonKinds = []Kind{KindDomain, KindCategory, KindStatus, KindPhase}

// ParseKind validates a kind name
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindTag, KindMedium, KindGenre, KindTopic, KindSubject,
		KindDomain, KindCategory, KindStatus, KindPhase:
		return k, nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// Parent returns the kind that owns terms of kind k, or "" for root kinds.
func (k Kind) Parent() Kind {
	switch k {
	case KindCategory:
		return KindDomain
	case KindPhase:
		return KindStatus
	}
	return ""
}

// MultiValued reports whether documents hold a list of terms of this kind.
// Only multi-valued terms are orphan-collected.
func (k Kind) MultiValued() bool {
	switch k {
	case KindTag, KindMedium, KindGenre, KindTopic, KindSubject:
		return true
	}
	return false
}

// Provenance records how a term came to exist
type Provenance string

const (
	ProvenanceManual   Provenance = "manual"
	ProvenanceImported Provenance = "imported"
	ProvenanceSeeded   Provenance = "seeded"
)

// Term is a shared classification entity referenced by documents
type Term struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	Slug       string     `json:"slug"`
	Name       string     `json:"name"`
	Provenance Provenance `json:"provenance"`
	ParentID   *string    `json:"parent_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Document is the stored record of an edited document and its classification
type Document struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Path      string          `json:"path"`
	UpdatedAt time.Time       `json:"updated_at"`
	Visible   bool            `json:"visible"`
	Domain    *Term           `json:"domain,omitempty"`
	Category  *Term           `json:"category,omitempty"`
	Status    *Term           `json:"status,omitempty"`
	Phase     *Term           `json:"phase,omitempty"`
	Terms     map[Kind][]Term `json:"terms,omitempty"`
}

// Singleton returns the document's term of a singleton kind.
func (d *Document) Singleton(k Kind) *Term {
	switch k {
	case KindDomain:
		return d.Domain
	case KindCategory:
		return d.Category
	case KindStatus:
		return d.Status
	case KindPhase:
		return d.Phase
	}
	return nil
}

// SetSingleton replaces the document's term of a singleton kind.
func (d *Document) SetSingleton(k Kind, t *Term) {
	switch k {
	case KindDomain:
		d.Domain = t
	case KindCategory:
		d.Category = t
	case KindStatus:
		d.Status = t
	case KindPhase:
		d.Phase = t
	}
}

// Source is the document layer's view of a document at the moment it is
// opened: one name per singleton kind ("" for none) and an ordered list of
// names per multi-valued kind.
type Source struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Path     string            `json:"path"`
	Visible  bool              `json:"visible"`
	Domain   string            `json:"domain,omitempty"`
	Category string            `json:"category,omitempty"`
	Status   string            `json:"status,omitempty"`
	Phase    string            `json:"phase,omitempty"`
	Names    map[Kind][]string `json:"names,omitempty"`
}

// SingletonName returns the source's name for a singleton kind.
func (s *Source) SingletonName(k Kind) string {
	switch k {
	case KindDomain:
		return s.Domain
	case KindCategory:
		return s.Category
	case KindStatus:
		return s.Status
	case KindPhase:
		return s.Phase
	}
	return ""
}

// Field names a singleton field of a document
type Field string

const (
	FieldTitle      Field = "title"
	FieldVisibility Field = "visibility"
	FieldDomain     Field = "domain"
	FieldCategory   Field = "category"
	FieldStatus     Field = "status"
	FieldPhase      Field = "phase"
)

// ParseField validates a singleton field name
func ParseField(s string) (Field, error) {
	f := Field(s)
	switch f {
	case FieldTitle, FieldVisibility, FieldDomain, FieldCategory, FieldStatus, FieldPhase:
		return f, nil
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// Kind returns the term kind a field refers to, or "" for plain fields.
func (f Field) Kind() Kind {
	switch f {
	case FieldDomain:
		return KindDomain
	case FieldCategory:
		return KindCategory
	case FieldStatus:
		return KindStatus
	case FieldPhase:
		return KindPhase
	}
	return ""
}

// SameTerm reports whether a and b refer to the same term (or both to none).
func SameTerm(a, b *Term) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

// SameSequence compares two term lists by ID, in order.
func SameSequence(a, b []Term) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
