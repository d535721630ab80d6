package action

import (
	"sort"
	"time"
)

// ProfileState is the action state of one profile: at most one running
// action per duration category plus finished actions, newest first.
type ProfileState struct {
	Active  map[Category]Snapshot `json:"active"`
	History []Snapshot            `json:"history"`
}

// NewProfileState returns an empty state.
func NewProfileState() ProfileState {
	return ProfileState{Active: map[Category]Snapshot{}}
}

// FromSnapshots builds a state from a flat list such as persisted rows.
//
// Running duration actions become active. When two run in the same
// category the older one is closed at the newer one's start without
// bumping its UpdatedAt, so rebuilding the same rows is deterministic.
func FromSnapshots(list []Snapshot) ProfileState {
	st := NewProfileState()
	for _, s := range list {
		st.place(s.WithValidatedDates())
	}
	st.sortHistory()
	return st
}

func (p *ProfileState) place(s Snapshot) {
	if p.Active == nil {
		p.Active = map[Category]Snapshot{}
	}
	if !s.IsRunning() || s.Category.IsInstant() {
		p.History = append(p.History, s)
		return
	}
	cur, ok := p.Active[s.Category]
	if !ok || cur.ID == s.ID {
		p.Active[s.Category] = s
		return
	}

	older, newer := cur, s
	if newer.StartDate.Before(older.StartDate) || (newer.StartDate.Equal(older.StartDate) && newer.ID < older.ID) {
		older, newer = newer, older
	}
	end := newer.StartDate
	older.EndDate = &end
	p.Active[s.Category] = newer
	p.History = append(p.History, older)
}

func (p *ProfileState) sortHistory() {
	sort.SliceStable(p.History, func(i, j int) bool {
		a, b := p.History[i], p.History[j]
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.After(b.StartDate)
		}
		return a.ID < b.ID
	})
}

// Clone returns a deep copy.
func (p ProfileState) Clone() ProfileState {
	out := ProfileState{Active: make(map[Category]Snapshot, len(p.Active))}
	for c, s := range p.Active {
		out.Active[c] = s.Clone()
	}
	if p.History != nil {
		out.History = make([]Snapshot, len(p.History))
		for i, s := range p.History {
			out.History[i] = s.Clone()
		}
	}
	return out
}

// All returns active actions followed by history.
func (p ProfileState) All() []Snapshot {
	out := make([]Snapshot, 0, len(p.Active)+len(p.History))
	for _, c := range Categories {
		if s, ok := p.Active[c]; ok {
			out = append(out, s.Clone())
		}
	}
	for _, s := range p.History {
		out = append(out, s.Clone())
	}
	return out
}

// Find locates an action by id in either the active map or history.
func (p ProfileState) Find(id string) (Snapshot, bool) {
	for _, s := range p.Active {
		if s.ID == id {
			return s.Clone(), true
		}
	}
	for _, s := range p.History {
		if s.ID == id {
			return s.Clone(), true
		}
	}
	return Snapshot{}, false
}

// IsEmpty reports whether the state holds no actions.
func (p ProfileState) IsEmpty() bool {
	return len(p.Active) == 0 && len(p.History) == 0
}

// ContentEqual compares two states ignoring UpdatedAt on each action.
func (p ProfileState) ContentEqual(other ProfileState) bool {
	return p.equal(other, Snapshot.ContentEqual)
}

// Equal compares two states including UpdatedAt on each action.
func (p ProfileState) Equal(other ProfileState) bool {
	return p.equal(other, Snapshot.Equal)
}

func (p ProfileState) equal(other ProfileState, eq func(Snapshot, Snapshot) bool) bool {
	if len(p.Active) != len(other.Active) || len(p.History) != len(other.History) {
		return false
	}
	for c, s := range p.Active {
		o, ok := other.Active[c]
		if !ok || !eq(s, o) {
			return false
		}
	}
	for i := range p.History {
		if !eq(p.History[i], other.History[i]) {
			return false
		}
	}
	return true
}

// LastStarted returns the most recently started action of a category.
func (p ProfileState) LastStarted(c Category) (Snapshot, bool) {
	if s, ok := p.Active[c]; ok {
		return s.Clone(), true
	}
	for _, s := range p.History {
		if s.Category == c {
			return s.Clone(), true
		}
	}
	return Snapshot{}, false
}

func (p *ProfileState) removeFromHistory(id string) (Snapshot, bool) {
	for i, s := range p.History {
		if s.ID == id {
			p.History = append(p.History[:i:i], p.History[i+1:]...)
			return s, true
		}
	}
	return Snapshot{}, false
}

func (p *ProfileState) stopActive(c Category, at time.Time, now time.Time) bool {
	cur, ok := p.Active[c]
	if !ok {
		return false
	}
	end := at
	if end.Before(cur.StartDate) {
		end = cur.StartDate
	}
	cur.EndDate = &end
	cur.UpdatedAt = now
	delete(p.Active, c)
	p.History = append(p.History, cur)
	return true
}
