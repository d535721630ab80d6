package action_test

import (
	"testing"
	"time"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func at(offset time.Duration) time.Time { return t0.Add(offset) }

func ptr[T any](v T) *T { return &v }

func defaultRules() action.Rules { return action.NewRules(action.DefaultExclusive) }

func TestValidatedDates_SwapsInvertedRange(t *testing.T) {
	s := action.Snapshot{ID: "a", Category: action.CategorySleep, StartDate: at(time.Hour), EndDate: ptr(at(0)), UpdatedAt: at(0)}

	out, fixed := s.Normalize()
	require.Equal(t, at(0), out.StartDate)
	require.Equal(t, at(time.Hour), *out.EndDate)
	require.Equal(t, action.CorrectedSwappedDates, fixed)
	require.Equal(t, "a", out.ID)
	require.Equal(t, at(0), out.UpdatedAt)
}

func TestValidatedDates_InstantGetsEnd(t *testing.T) {
	s := action.Snapshot{ID: "d", Category: action.CategoryDiaper, StartDate: at(0)}

	out := s.WithValidatedDates()
	require.NotNil(t, out.EndDate)
	require.Equal(t, out.StartDate, *out.EndDate)
	require.Nil(t, s.EndDate, "input must not be mutated")
}

func TestValidatedDates_InstantInvertedRangeKeepsEarlierTime(t *testing.T) {
	s := action.Snapshot{ID: "d", Category: action.CategoryDiaper, StartDate: at(time.Hour), EndDate: ptr(at(0))}

	out, fixed := s.Normalize()
	require.Equal(t, at(0), out.StartDate)
	require.Equal(t, at(0), *out.EndDate)
	require.Equal(t, action.CorrectedSwappedDates|action.CorrectedInstantEnd, fixed)
}

func TestValidatedDates_DropsCorruptValues(t *testing.T) {
	s := action.Snapshot{
		ID:           "f",
		Category:     action.CategoryFeeding,
		StartDate:    at(0),
		BottleVolume: ptr(-20),
		Location:     &action.Location{Latitude: 120, Longitude: 10},
	}

	out, fixed := s.Normalize()
	require.Nil(t, out.BottleVolume)
	require.Nil(t, out.Location)
	require.Equal(t, "bottle_volume,location", fixed.String())
}

func TestValidatedDates_CleanInputUntouched(t *testing.T) {
	s := action.Snapshot{ID: "s", Category: action.CategorySleep, StartDate: at(0)}
	out, fixed := s.Normalize()
	require.Equal(t, action.Correction(0), fixed)
	require.True(t, out.Equal(s))
}

func TestResolve_NewerWins(t *testing.T) {
	local := action.Snapshot{ID: "x", Category: action.CategorySleep, StartDate: at(0), UpdatedAt: at(time.Minute)}
	remote := action.Snapshot{ID: "x", Category: action.CategorySleep, StartDate: at(0), EndDate: ptr(at(time.Hour)), UpdatedAt: at(2 * time.Minute)}

	require.True(t, action.Resolve(local, remote).Equal(remote))
	require.True(t, action.Resolve(remote, local).Equal(remote))
}

func TestResolve_TiePrefersFinished(t *testing.T) {
	// local running, remote finished, same audit time
	local := action.Snapshot{ID: "x", Category: action.CategorySleep, StartDate: at(0), UpdatedAt: at(5 * time.Minute)}
	remote := action.Snapshot{ID: "x", Category: action.CategorySleep, StartDate: at(0), EndDate: ptr(at(6 * time.Minute)), UpdatedAt: at(5 * time.Minute)}

	require.True(t, action.Resolve(local, remote).Equal(remote))
	require.True(t, action.Resolve(remote, local).Equal(remote))
}

func TestResolve_FullTiePrefersLocal(t *testing.T) {
	local := action.Snapshot{ID: "x", Category: action.CategoryFeeding, StartDate: at(0), FeedingType: action.FeedingBottle, UpdatedAt: at(0)}
	remote := local
	remote.FeedingType = action.FeedingSolids

	require.Equal(t, action.FeedingBottle, action.Resolve(local, remote).FeedingType)
	require.Equal(t, action.FeedingSolids, action.Resolve(remote, local).FeedingType)
}

func TestResolve_Idempotent(t *testing.T) {
	variants := []action.Snapshot{
		{ID: "x", Category: action.CategorySleep, StartDate: at(0), UpdatedAt: at(0)},
		{ID: "x", Category: action.CategorySleep, StartDate: at(0), EndDate: ptr(at(time.Hour)), UpdatedAt: at(0)},
		{ID: "x", Category: action.CategorySleep, StartDate: at(time.Minute), UpdatedAt: at(time.Second)},
		{ID: "x", Category: action.CategorySleep, StartDate: at(0), EndDate: ptr(at(2 * time.Hour)), UpdatedAt: at(time.Second)},
	}
	for _, a := range variants {
		for _, b := range variants {
			once := action.Resolve(a, b)
			twice := action.Resolve(a, once)
			assert.True(t, twice.ContentEqual(once))
			assert.True(t, once.UpdatedAt.Equal(action.Resolve(b, a).UpdatedAt))
		}
	}
}

func TestClamp_PullsStartPastChainedHistory(t *testing.T) {
	history := []action.Snapshot{
		{ID: "h1", Category: action.CategorySleep, StartDate: at(0), EndDate: ptr(at(30 * time.Minute))},
		{ID: "h2", Category: action.CategorySleep, StartDate: at(20 * time.Minute), EndDate: ptr(at(50 * time.Minute))},
		{ID: "h3", Category: action.CategoryFeeding, StartDate: at(0), EndDate: ptr(at(3 * time.Hour))},
	}
	n := action.Snapshot{ID: "n", Category: action.CategorySleep, StartDate: at(10 * time.Minute)}

	out := action.Clamp(n, history)
	require.Equal(t, at(50*time.Minute), out.StartDate)
	for _, h := range history {
		if h.Category == n.Category && h.EndDate.After(n.StartDate) && !h.StartDate.After(n.StartDate) {
			require.False(t, out.StartDate.Before(*h.EndDate))
		}
	}
}

func TestClamp_NoOverlapKeepsStart(t *testing.T) {
	history := []action.Snapshot{
		{ID: "h1", Category: action.CategorySleep, StartDate: at(0), EndDate: ptr(at(10 * time.Minute))},
	}
	n := action.Snapshot{ID: "n", Category: action.CategorySleep, StartDate: at(10 * time.Minute)}
	require.Equal(t, at(10*time.Minute), action.Clamp(n, history).StartDate)
}

func TestStart_DurationBecomesActive(t *testing.T) {
	rules := defaultRules()
	st, snap := rules.Start(action.NewProfileState(), "p1", action.StartRequest{ID: "s1", Category: action.CategorySleep}, at(0))

	require.Equal(t, at(0), st.Active[action.CategorySleep].StartDate)
	require.Nil(t, snap.EndDate)
	require.Empty(t, st.History)
	require.Equal(t, "p1", snap.ProfileID)
}

func TestStop_MovesToHistoryHead(t *testing.T) {
	rules := defaultRules()
	st, _ := rules.Start(action.NewProfileState(), "p1", action.StartRequest{ID: "s1", Category: action.CategorySleep}, at(0))

	st, changed := action.Stop(st, action.CategorySleep, at(time.Hour))
	require.True(t, changed)
	require.Empty(t, st.Active)
	require.Len(t, st.History, 1)
	require.Equal(t, action.CategorySleep, st.History[0].Category)
	require.Equal(t, at(0), st.History[0].StartDate)
	require.Equal(t, at(time.Hour), *st.History[0].EndDate)

	_, changed = action.Stop(st, action.CategorySleep, at(2*time.Hour))
	require.False(t, changed)
}

func TestStart_ExclusiveStopsOther(t *testing.T) {
	rules := defaultRules()
	st, _ := rules.Start(action.NewProfileState(), "p1", action.StartRequest{ID: "s1", Category: action.CategorySleep}, at(0))

	t1 := at(40 * time.Minute)
	st, _ = rules.Start(st, "p1", action.StartRequest{ID: "f1", Category: action.CategoryFeeding}, t1)

	_, sleeping := st.Active[action.CategorySleep]
	require.False(t, sleeping)
	require.Equal(t, t1, st.Active[action.CategoryFeeding].StartDate)
	require.Len(t, st.History, 1)
	require.Equal(t, "s1", st.History[0].ID)
	require.Equal(t, t1, *st.History[0].EndDate)
}

func TestStart_NonExclusiveLeavesOthers(t *testing.T) {
	rules := action.NewRules(nil)
	st, _ := rules.Start(action.NewProfileState(), "p1", action.StartRequest{ID: "s1", Category: action.CategorySleep}, at(0))
	st, _ = rules.Start(st, "p1", action.StartRequest{ID: "f1", Category: action.CategoryFeeding}, at(time.Minute))

	require.Len(t, st.Active, 2)
}

func TestStart_SameCategoryKeepsSingleActive(t *testing.T) {
	rules := defaultRules()
	st := action.NewProfileState()
	for i, id := range []string{"a", "b", "c", "d"} {
		st, _ = rules.Start(st, "p1", action.StartRequest{ID: id, Category: action.CategorySleep}, at(time.Duration(i)*time.Minute))
		count := 0
		for c := range st.Active {
			if c == action.CategorySleep {
				count++
			}
		}
		require.Equal(t, 1, count)
		require.Equal(t, id, st.Active[action.CategorySleep].ID)
	}
	require.Len(t, st.History, 3)
}

func TestStart_InstantGoesToHistory(t *testing.T) {
	rules := defaultRules()
	st, _ := rules.Start(action.NewProfileState(), "p1", action.StartRequest{ID: "s1", Category: action.CategorySleep}, at(0))

	t2 := at(time.Hour)
	st, snap := rules.Start(st, "p1", action.StartRequest{ID: "d1", Category: action.CategoryDiaper, DiaperType: action.DiaperPee}, t2)

	require.Equal(t, "d1", st.History[0].ID)
	require.Equal(t, t2, st.History[0].StartDate)
	require.Equal(t, t2, *st.History[0].EndDate)
	_, active := st.Active[action.CategoryDiaper]
	require.False(t, active)
	require.Equal(t, action.DiaperPee, snap.DiaperType)
	require.Contains(t, st.Active, action.CategorySleep, "instant logs do not stop running actions")
}

func TestStart_BackdatedIsClamped(t *testing.T) {
	rules := defaultRules()
	st := action.ProfileState{
		Active: map[action.Category]action.Snapshot{},
		History: []action.Snapshot{
			{ID: "h", ProfileID: "p1", Category: action.CategorySleep, StartDate: at(0), EndDate: ptr(at(time.Hour))},
		},
	}

	st, snap := rules.Start(st, "p1", action.StartRequest{ID: "n", Category: action.CategorySleep, StartDate: ptr(at(30 * time.Minute))}, at(2*time.Hour))
	require.Equal(t, at(time.Hour), snap.StartDate)
	require.Equal(t, at(time.Hour), st.Active[action.CategorySleep].StartDate)
}

func TestContinue_ReopensFinished(t *testing.T) {
	rules := defaultRules()
	st, _ := rules.Start(action.NewProfileState(), "p1", action.StartRequest{ID: "s1", Category: action.CategorySleep}, at(0))
	st, _ = action.Stop(st, action.CategorySleep, at(time.Hour))

	st, changed := rules.Continue(st, "s1", at(2*time.Hour))
	require.True(t, changed)
	require.Empty(t, st.History)
	cont := st.Active[action.CategorySleep]
	require.Nil(t, cont.EndDate)
	require.Equal(t, at(0), cont.StartDate)
	require.Equal(t, at(2*time.Hour), cont.UpdatedAt)
}

func TestContinue_NoOpWhenCategoryBusy(t *testing.T) {
	rules := defaultRules()
	st, _ := rules.Start(action.NewProfileState(), "p1", action.StartRequest{ID: "s1", Category: action.CategorySleep}, at(0))
	st, _ = action.Stop(st, action.CategorySleep, at(time.Hour))
	st, _ = rules.Start(st, "p1", action.StartRequest{ID: "s2", Category: action.CategorySleep}, at(2*time.Hour))

	out, changed := rules.Continue(st, "s1", at(3*time.Hour))
	require.False(t, changed)
	require.Equal(t, "s2", out.Active[action.CategorySleep].ID)
	require.True(t, out.Equal(st))
}

func TestContinue_ClampsAgainstLaterHistory(t *testing.T) {
	rules := defaultRules()
	st := action.FromSnapshots([]action.Snapshot{
		{ID: "old", ProfileID: "p1", Category: action.CategorySleep, StartDate: at(0), EndDate: ptr(at(time.Hour))},
		{ID: "cover", ProfileID: "p1", Category: action.CategorySleep, StartDate: at(-time.Hour), EndDate: ptr(at(90 * time.Minute))},
	})

	st, changed := rules.Continue(st, "old", at(3*time.Hour))
	require.True(t, changed)
	require.Equal(t, at(90*time.Minute), st.Active[action.CategorySleep].StartDate)
}

func TestUpdate(t *testing.T) {
	rules := defaultRules()
	st, snap := rules.Start(action.NewProfileState(), "p1", action.StartRequest{ID: "f1", Category: action.CategoryFeeding, FeedingType: action.FeedingBottle}, at(0))

	t.Run("unchanged is a no-op", func(t *testing.T) {
		_, changed := action.Update(st, snap, at(time.Minute))
		require.False(t, changed)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		other := snap
		other.ID = "missing"
		_, changed := action.Update(st, other, at(time.Minute))
		require.False(t, changed)
	})

	t.Run("edit bumps updated at", func(t *testing.T) {
		edited := snap
		edited.BottleVolume = ptr(120)
		next, changed := action.Update(st, edited, at(time.Minute))
		require.True(t, changed)
		got := next.Active[action.CategoryFeeding]
		require.Equal(t, 120, *got.BottleVolume)
		require.Equal(t, at(time.Minute), got.UpdatedAt)
	})

	t.Run("setting end moves to history", func(t *testing.T) {
		edited := snap
		edited.EndDate = ptr(at(20 * time.Minute))
		next, changed := action.Update(st, edited, at(time.Minute))
		require.True(t, changed)
		require.Empty(t, next.Active)
		require.Equal(t, "f1", next.History[0].ID)
	})

	t.Run("history entry is re-sorted", func(t *testing.T) {
		a, _ := rules.Start(action.NewProfileState(), "p1", action.StartRequest{ID: "d1", Category: action.CategoryDiaper}, at(0))
		a, _ = rules.Start(a, "p1", action.StartRequest{ID: "d2", Category: action.CategoryDiaper}, at(time.Hour))
		require.Equal(t, "d2", a.History[0].ID)

		moved, _ := a.Find("d1")
		moved.StartDate = at(2 * time.Hour)
		a, changed := action.Update(a, moved, at(3*time.Hour))
		require.True(t, changed)
		require.Equal(t, "d1", a.History[0].ID)
		require.Equal(t, at(2*time.Hour), *a.History[0].EndDate)
	})
}

func TestDelete(t *testing.T) {
	rules := defaultRules()
	st, _ := rules.Start(action.NewProfileState(), "p1", action.StartRequest{ID: "s1", Category: action.CategorySleep}, at(0))
	st, _ = rules.Start(st, "p1", action.StartRequest{ID: "d1", Category: action.CategoryDiaper}, at(time.Minute))

	st, changed := action.Delete(st, "s1")
	require.True(t, changed)
	require.Empty(t, st.Active)

	st, changed = action.Delete(st, "d1")
	require.True(t, changed)
	require.True(t, st.IsEmpty())

	_, changed = action.Delete(st, "d1")
	require.False(t, changed)
}

func TestMerge_AddsAndResolves(t *testing.T) {
	rules := defaultRules()
	st, _ := rules.Start(action.NewProfileState(), "p1", action.StartRequest{ID: "s1", Category: action.CategorySleep}, at(0))

	imported := []action.Snapshot{
		{ID: "s1", ProfileID: "p1", Category: action.CategorySleep, StartDate: at(0), EndDate: ptr(at(time.Hour)), UpdatedAt: at(time.Hour)},
		{ID: "d9", ProfileID: "p1", Category: action.CategoryDiaper, StartDate: at(30 * time.Minute), UpdatedAt: at(30 * time.Minute)},
	}

	merged, summary := action.Merge(st, imported)
	require.Equal(t, action.MergeSummary{Added: 1, Updated: 1}, summary)
	require.Empty(t, merged.Active)
	require.Len(t, merged.History, 2)
	require.Equal(t, "d9", merged.History[0].ID)

	again, summary := action.Merge(merged, imported)
	require.False(t, summary.Changed())
	require.True(t, again.Equal(merged))
}

func TestMerge_IdempotentWithCompetingRunningActions(t *testing.T) {
	rules := defaultRules()
	st, _ := rules.Start(action.NewProfileState(), "p1", action.StartRequest{ID: "local", Category: action.CategorySleep}, at(time.Hour))

	imported := []action.Snapshot{
		{ID: "remote", ProfileID: "p1", Category: action.CategorySleep, StartDate: at(0), UpdatedAt: at(0)},
	}

	once, summary := action.Merge(st, imported)
	require.Equal(t, 1, summary.Added)
	require.Equal(t, "local", once.Active[action.CategorySleep].ID)
	require.Equal(t, at(time.Hour), *once.History[0].EndDate)

	twice, summary := action.Merge(once, imported)
	require.False(t, summary.Changed())
	require.True(t, twice.Equal(once))
}

func TestMerge_OlderImportIgnored(t *testing.T) {
	rules := defaultRules()
	st, _ := rules.Start(action.NewProfileState(), "p1", action.StartRequest{ID: "f1", Category: action.CategoryFeeding}, at(time.Hour))

	stale := []action.Snapshot{
		{ID: "f1", ProfileID: "p1", Category: action.CategoryFeeding, StartDate: at(0), EndDate: ptr(at(time.Minute)), UpdatedAt: at(0)},
	}
	out, summary := action.Merge(st, stale)
	require.False(t, summary.Changed())
	require.True(t, out.Equal(st))
}

func TestFromSnapshots_RoundTripsState(t *testing.T) {
	rules := defaultRules()
	st, _ := rules.Start(action.NewProfileState(), "p1", action.StartRequest{ID: "s1", Category: action.CategorySleep}, at(0))
	st, _ = action.Stop(st, action.CategorySleep, at(time.Hour))
	st, _ = rules.Start(st, "p1", action.StartRequest{ID: "f1", Category: action.CategoryFeeding}, at(2*time.Hour))
	st, _ = rules.Start(st, "p1", action.StartRequest{ID: "d1", Category: action.CategoryDiaper}, at(90*time.Minute))

	rebuilt := action.FromSnapshots(st.All())
	require.True(t, rebuilt.Equal(st))
}

func TestParseCategory(t *testing.T) {
	c, err := action.ParseCategory("feeding")
	require.NoError(t, err)
	require.Equal(t, action.CategoryFeeding, c)

	_, err = action.ParseCategory("bath")
	require.ErrorIs(t, err, action.ErrUnknownCategory)
}
