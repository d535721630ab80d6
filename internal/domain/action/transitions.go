package action

import "time"

// Rules holds configurable transition policy.
type Rules struct {
	exclusive map[Category]bool
}

// DefaultExclusive is the exclusive category set used when none is configured.
var DefaultExclusive = []Category{CategorySleep, CategoryFeeding}

// NewRules builds rules from the set of mutually exclusive duration
// categories. Instant categories in the list are ignored.
func NewRules(exclusive []Category) Rules {
	r := Rules{exclusive: map[Category]bool{}}
	for _, c := range exclusive {
		if c.Valid() && !c.IsInstant() {
			r.exclusive[c] = true
		}
	}
	return r
}

// IsExclusive reports whether starting c stops other exclusive categories.
func (r Rules) IsExclusive(c Category) bool {
	return r.exclusive[c]
}

// StartRequest describes a new action.
type StartRequest struct {
	ID           string
	Category     Category
	StartDate    *time.Time
	DiaperType   DiaperType
	FeedingType  FeedingType
	BottleType   BottleType
	BottleVolume *int
	Location     *Location
}

// Start applies a start or instant log. The returned snapshot is the action
// as stored.
func (r Rules) Start(state ProfileState, profileID string, req StartRequest, now time.Time) (ProfileState, Snapshot) {
	next := state.Clone()

	start := now
	if req.StartDate != nil {
		start = *req.StartDate
	}

	snap := Snapshot{
		ID:           req.ID,
		ProfileID:    profileID,
		Category:     req.Category,
		StartDate:    start,
		DiaperType:   req.DiaperType,
		FeedingType:  req.FeedingType,
		BottleType:   req.BottleType,
		BottleVolume: req.BottleVolume,
		Location:     req.Location,
		UpdatedAt:    now,
	}

	if req.Category.IsInstant() {
		next.stopActive(req.Category, start, now)
		snap = snap.WithValidatedDates()
		next.History = append(next.History, snap)
		next.sortHistory()
		return next, snap.Clone()
	}

	if r.IsExclusive(req.Category) {
		for c := range next.Active {
			if c != req.Category && r.IsExclusive(c) {
				next.stopActive(c, start, now)
			}
		}
	}
	next.stopActive(req.Category, start, now)

	snap = Clamp(snap.WithValidatedDates(), next.History)
	next.Active[req.Category] = snap
	next.sortHistory()
	return next, snap.Clone()
}

// Stop ends the running action of a category.
func Stop(state ProfileState, c Category, now time.Time) (ProfileState, bool) {
	next := state.Clone()
	if !next.stopActive(c, now, now) {
		return state, false
	}
	next.sortHistory()
	return next, true
}

// StopByID ends the running action with the given id.
func StopByID(state ProfileState, id string, now time.Time) (ProfileState, bool) {
	for c, s := range state.Active {
		if s.ID == id {
			return Stop(state, c, now)
		}
	}
	return state, false
}

// Update replaces an existing action's attributes. The category and profile
// of the stored action are kept. A finished action cannot be reopened here;
// use Continue for that.
func Update(state ProfileState, edited Snapshot, now time.Time) (ProfileState, bool) {
	existing, ok := state.Find(edited.ID)
	if !ok {
		return state, false
	}

	candidate := edited.Clone()
	candidate.ProfileID = existing.ProfileID
	candidate.Category = existing.Category
	if candidate.EndDate == nil && existing.EndDate != nil {
		end := *existing.EndDate
		candidate.EndDate = &end
	}
	candidate = candidate.WithValidatedDates()
	if candidate.ContentEqual(existing) {
		return state, false
	}
	candidate.UpdatedAt = now

	next := state.Clone()
	if cur, running := next.Active[existing.Category]; running && cur.ID == existing.ID {
		delete(next.Active, existing.Category)
	} else {
		next.removeFromHistory(existing.ID)
	}
	if candidate.IsRunning() {
		next.Active[candidate.Category] = candidate
	} else {
		next.History = append(next.History, candidate)
	}
	next.sortHistory()
	return next, true
}

// Continue reopens a finished action. It does nothing when another action
// of the same category is already running.
func (r Rules) Continue(state ProfileState, id string, now time.Time) (ProfileState, bool) {
	existing, ok := state.Find(id)
	if !ok || existing.IsRunning() || existing.Category.IsInstant() {
		return state, false
	}
	if _, busy := state.Active[existing.Category]; busy {
		return state, false
	}

	next := state.Clone()
	next.removeFromHistory(id)
	if r.IsExclusive(existing.Category) {
		for c := range next.Active {
			if r.IsExclusive(c) {
				next.stopActive(c, now, now)
			}
		}
	}

	existing.EndDate = nil
	existing.UpdatedAt = now
	existing = Clamp(existing, next.History)
	next.Active[existing.Category] = existing
	next.sortHistory()
	return next, true
}

// Delete removes an action wherever it lives.
func Delete(state ProfileState, id string) (ProfileState, bool) {
	next := state.Clone()
	for c, s := range next.Active {
		if s.ID == id {
			delete(next.Active, c)
			return next, true
		}
	}
	if _, ok := next.removeFromHistory(id); ok {
		return next, true
	}
	return state, false
}

// Merge folds imported actions into state, resolving shared ids with
// Resolve. Applying the same import twice changes nothing the second time.
func Merge(state ProfileState, imported []Snapshot) (ProfileState, MergeSummary) {
	var summary MergeSummary
	byID := make(map[string]Snapshot)
	order := make([]string, 0)
	for _, s := range state.All() {
		byID[s.ID] = s
		order = append(order, s.ID)
	}

	for _, in := range imported {
		in = in.WithValidatedDates()
		local, ok := byID[in.ID]
		if !ok {
			byID[in.ID] = in
			order = append(order, in.ID)
			summary.Added++
			continue
		}
		in.ProfileID = local.ProfileID
		winner := Resolve(local, in)
		if !winner.Equal(local) {
			byID[in.ID] = winner
			summary.Updated++
		}
	}

	if !summary.Changed() {
		return state, summary
	}

	list := make([]Snapshot, 0, len(order))
	for _, id := range order {
		list = append(list, byID[id])
	}
	return FromSnapshots(list), summary
}
