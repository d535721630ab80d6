package actionlog_test

import (
	"testing"
	"time"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/actionlog"
	"github.com/stretchr/testify/require"
)

func finished(id string, c action.Category, start time.Time, d, age time.Duration) action.Snapshot {
	end := start.Add(d)
	return action.Snapshot{ID: id, ProfileID: "p1", Category: c, StartDate: start, EndDate: &end, UpdatedAt: end.Add(age)}
}

func TestReconcile_InsertsUpdatesAndDeletes(t *testing.T) {
	kept := finished("kept", action.CategorySleep, epoch, time.Hour, 0)
	gone := finished("gone", action.CategoryFeeding, epoch.Add(2*time.Hour), 10*time.Minute, 0)
	edited := kept
	edited.UpdatedAt = kept.UpdatedAt.Add(time.Minute)
	later := edited.StartDate.Add(-time.Minute)
	edited.StartDate = later
	added := finished("added", action.CategoryDiaper, epoch.Add(3*time.Hour), 0, 0)

	previous := action.FromSnapshots([]action.Snapshot{kept, gone})
	desired := action.FromSnapshots([]action.Snapshot{edited, added})

	result, changes := actionlog.Reconcile(previous, desired, []action.Snapshot{kept, gone}, epoch)

	require.Len(t, changes.Inserts, 1)
	require.Equal(t, "added", changes.Inserts[0].ID)
	require.Len(t, changes.Updates, 1)
	require.Equal(t, "kept", changes.Updates[0].ID)
	require.Equal(t, []string{"gone"}, changes.Deletes)
	require.True(t, result.Equal(desired))
}

func TestReconcile_NewerPersistedCopyWins(t *testing.T) {
	local := finished("a", action.CategorySleep, epoch, time.Hour, 0)
	stored := local
	stored.UpdatedAt = local.UpdatedAt.Add(time.Minute)
	end := stored.EndDate.Add(30 * time.Minute)
	stored.EndDate = &end

	state := action.FromSnapshots([]action.Snapshot{local})
	result, changes := actionlog.Reconcile(state, state, []action.Snapshot{stored}, epoch)

	require.True(t, changes.IsEmpty())
	got, ok := result.Find("a")
	require.True(t, ok)
	require.True(t, got.Equal(stored))
}

func TestReconcile_UnknownPersistedRowKept(t *testing.T) {
	foreign := finished("foreign", action.CategoryDiaper, epoch, 0, 0)
	mine := finished("mine", action.CategorySleep, epoch.Add(time.Hour), time.Hour, 0)

	result, changes := actionlog.Reconcile(action.NewProfileState(), action.FromSnapshots([]action.Snapshot{mine}), []action.Snapshot{foreign}, epoch)

	require.Empty(t, changes.Deletes)
	require.Len(t, changes.Inserts, 1)
	_, ok := result.Find("foreign")
	require.True(t, ok)
}

func TestReconcile_NothingToWrite(t *testing.T) {
	a := finished("a", action.CategorySleep, epoch, time.Hour, 0)
	state := action.FromSnapshots([]action.Snapshot{a})

	result, changes := actionlog.Reconcile(state, state, []action.Snapshot{a}, epoch)
	require.True(t, changes.IsEmpty())
	require.True(t, result.Equal(state))
}
