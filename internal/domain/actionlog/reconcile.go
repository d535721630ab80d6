package actionlog

import (
	"time"

	"github.com/rpggio/lullaby/internal/domain/action"
)

// Reconcile plans the writes that bring persisted rows in line with desired.
//
// Each desired action is resolved against its persisted copy; only winners
// that differ are written. Persisted rows missing from desired are deleted
// when previous held them. Rows previous never saw were written by someone
// else after the cache was filled, so they are kept and folded into the
// returned state.
func Reconcile(previous, desired action.ProfileState, persisted []action.Snapshot, now time.Time) (action.ProfileState, ChangeSet) {
	changes := ChangeSet{DeletedAt: now}

	stored := make(map[string]action.Snapshot, len(persisted))
	for _, p := range persisted {
		stored[p.ID] = p
	}
	known := make(map[string]bool)
	for _, s := range previous.All() {
		known[s.ID] = true
	}

	wanted := desired.All()
	result := make([]action.Snapshot, 0, len(wanted)+len(persisted))
	seen := make(map[string]bool, len(wanted))
	diverged := false
	for _, d := range wanted {
		seen[d.ID] = true
		p, ok := stored[d.ID]
		if !ok {
			changes.Inserts = append(changes.Inserts, d)
			result = append(result, d)
			continue
		}
		winner := action.Resolve(d, p)
		if !winner.Equal(p) && !winner.UpdatedAt.Before(p.UpdatedAt) {
			changes.Updates = append(changes.Updates, winner)
		}
		if !winner.Equal(d) {
			diverged = true
		}
		result = append(result, winner)
	}

	for _, p := range persisted {
		if seen[p.ID] {
			continue
		}
		if known[p.ID] {
			changes.Deletes = append(changes.Deletes, p.ID)
			continue
		}
		result = append(result, p)
		diverged = true
	}

	if !diverged {
		return desired, changes
	}
	return action.FromSnapshots(result), changes
}
