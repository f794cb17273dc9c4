package changes

import "github.com/pbaille/folio/internal/domain"

// Delta accumulates names added to and removed from one multi-valued kind.
type Delta struct {
	Added   []string
	Removed []string
}

// PendingChange holds the uncommitted edits of one document. Nil singleton
// pointers mean "leave as stored"; a pointer to "" clears a term reference.
type PendingChange struct {
	Title      *string
	Visible    *bool
	Singletons map[domain.Kind]*string
	Multi      map[domain.Kind]*Delta
}

func newPendingChange() *PendingChange {
	return &PendingChange{
		Singletons: make(map[domain.Kind]*string),
		Multi:      make(map[domain.Kind]*Delta),
	}
}

// Empty reports whether committing the change could not alter anything.
func (p *PendingChange) Empty() bool {
	if p == nil {
		return true
	}
	if p.Title != nil || p.Visible != nil || len(p.Singletons) > 0 {
		return false
	}
	for _, d := range p.Multi {
		if len(d.Added) > 0 || len(d.Removed) > 0 {
			return false
		}
	}
	return true
}

// merge folds an older change into p. Fields p already sets are kept;
// older deltas are placed before p's own.
func (p *PendingChange) merge(older *PendingChange) {
	if older == nil {
		return
	}
	if p.Title == nil {
		p.Title = older.Title
	}
	if p.Visible == nil {
		p.Visible = older.Visible
	}
	for kind, name := range older.Singletons {
		if _, ok := p.Singletons[kind]; !ok {
			p.Singletons[kind] = name
		}
	}
	for kind, od := range older.Multi {
		d := p.delta(kind)
		d.Added = append(append([]string(nil), od.Added...), d.Added...)
		d.Removed = append(append([]string(nil), od.Removed...), d.Removed...)
	}
}

func (p *PendingChange) delta(kind domain.Kind) *Delta {
	d, ok := p.Multi[kind]
	if !ok {
		d = &Delta{}
		p.Multi[kind] = d
	}
	return d
}
