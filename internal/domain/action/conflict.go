package action

// Resolve picks the surviving version of one logical action.
//
// The newer UpdatedAt wins. On an exact tie a finished action beats a
// running one, and after that local wins.
func Resolve(local, remote Snapshot) Snapshot {
	switch {
	case remote.UpdatedAt.After(local.UpdatedAt):
		return remote
	case local.UpdatedAt.After(remote.UpdatedAt):
		return local
	}
	if local.EndDate == nil && remote.EndDate != nil {
		return remote
	}
	return local
}

// Clamp pulls a running action's start forward past any same-category
// history entry that covers it. It repeats until no history entry overlaps
// the start, so chained intervals are skipped in one call.
func Clamp(s Snapshot, history []Snapshot) Snapshot {
	out := s.Clone()
	for moved := true; moved; {
		moved = false
		for _, h := range history {
			if h.ID == out.ID || h.Category != out.Category || h.EndDate == nil {
				continue
			}
			if h.EndDate.After(out.StartDate) && !h.StartDate.After(out.StartDate) {
				out.StartDate = *h.EndDate
				moved = true
			}
		}
	}
	return out
}
