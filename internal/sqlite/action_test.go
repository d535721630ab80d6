package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/lullaby/internal/changefeed"
	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/actionlog"
	"github.com/rpggio/lullaby/internal/repository"
	"github.com/stretchr/testify/require"
)

func sampleActions(profileID string) []action.Snapshot {
	base := time.Date(2026, 3, 1, 20, 0, 0, 123456789, time.UTC)
	end := base.Add(time.Hour)
	volume := 90
	diaperAt := base.Add(30 * time.Minute)
	return []action.Snapshot{
		{ID: "s1", ProfileID: profileID, Category: action.CategorySleep, StartDate: base, EndDate: &end, UpdatedAt: end},
		{
			ID:           "f1",
			ProfileID:    profileID,
			Category:     action.CategoryFeeding,
			StartDate:    end,
			FeedingType:  action.FeedingBottle,
			BottleType:   action.BottleFormula,
			BottleVolume: &volume,
			Location:     &action.Location{Latitude: 52.52, Longitude: 13.405, PlaceName: "Home"},
			UpdatedAt:    end,
		},
		{ID: "d1", ProfileID: profileID, Category: action.CategoryDiaper, StartDate: diaperAt, EndDate: &diaperAt, DiaperType: action.DiaperBoth, UpdatedAt: diaperAt},
	}
}

func TestActionRepository_ApplyAndList(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProfile(t, db, "p1")
	repo := NewActionRepository(db)

	snaps := sampleActions("p1")
	require.NoError(t, repo.Apply(ctx, "p1", actionlog.ChangeSet{Inserts: snaps}))

	got, err := repo.ListByProfile(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "f1", got[0].ID, "ordered by start descending")

	byID := map[string]action.Snapshot{}
	for _, s := range got {
		byID[s.ID] = s
	}
	for _, want := range snaps {
		require.True(t, want.Equal(byID[want.ID]), "round trip of %s", want.ID)
	}
	require.Nil(t, byID["f1"].EndDate)
}

func TestActionRepository_UpdateAndDeleteWithTombstones(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProfile(t, db, "p1")
	repo := NewActionRepository(db)

	snaps := sampleActions("p1")
	require.NoError(t, repo.Apply(ctx, "p1", actionlog.ChangeSet{Inserts: snaps}))

	edited := snaps[1]
	end := edited.StartDate.Add(20 * time.Minute)
	edited.EndDate = &end
	edited.UpdatedAt = end
	deletedAt := end.Add(time.Minute)

	require.NoError(t, repo.Apply(ctx, "p1", actionlog.ChangeSet{
		Updates:   []action.Snapshot{edited},
		Deletes:   []string{"d1"},
		DeletedAt: deletedAt,
	}))

	got, err := repo.ListByProfile(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, edited.Equal(got[0]))

	tombstones, err := repo.ListTombstones(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, tombstones, 1)
	require.Equal(t, "d1", tombstones[0].ActionID)
	require.True(t, deletedAt.Equal(tombstones[0].DeletedAt))

	require.NoError(t, repo.ClearTombstones(ctx, "p1", []string{"d1"}))
	tombstones, err = repo.ListTombstones(ctx, "p1")
	require.NoError(t, err)
	require.Empty(t, tombstones)
}

func TestActionRepository_ReinsertClearsTombstone(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProfile(t, db, "p1")
	repo := NewActionRepository(db)

	snaps := sampleActions("p1")
	require.NoError(t, repo.Apply(ctx, "p1", actionlog.ChangeSet{Inserts: snaps[:1]}))
	require.NoError(t, repo.Apply(ctx, "p1", actionlog.ChangeSet{Deletes: []string{"s1"}}))
	require.NoError(t, repo.Apply(ctx, "p1", actionlog.ChangeSet{Inserts: snaps[:1]}))

	tombstones, err := repo.ListTombstones(ctx, "p1")
	require.NoError(t, err)
	require.Empty(t, tombstones)
}

func TestActionRepository_InsertMovesActionBetweenProfiles(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProfile(t, db, "p1")
	insertProfile(t, db, "p2")
	repo := NewActionRepository(db)

	snaps := sampleActions("p1")
	require.NoError(t, repo.Apply(ctx, "p1", actionlog.ChangeSet{Inserts: snaps}))

	moved := snaps[2]
	moved.ProfileID = "p2"
	require.NoError(t, repo.Apply(ctx, "p2", actionlog.ChangeSet{Inserts: []action.Snapshot{moved}}))

	p1, err := repo.ListByProfile(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, p1, 2)

	p2, err := repo.ListByProfile(ctx, "p2")
	require.NoError(t, err)
	require.Len(t, p2, 1)
	require.Equal(t, moved.ID, p2[0].ID)
	require.Equal(t, "p2", p2[0].ProfileID)
}

func TestActionRepository_Errors(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewActionRepository(db)

	err := repo.Apply(ctx, "missing", actionlog.ChangeSet{Inserts: sampleActions("missing")[:1]})
	require.ErrorIs(t, err, repository.ErrForeignKeyViolation)

	insertProfile(t, db, "p1")
	err = repo.Apply(ctx, "p1", actionlog.ChangeSet{Updates: sampleActions("p1")[:1]})
	require.ErrorIs(t, err, repository.ErrNotFound)

	got, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, got, "failed transactions leave nothing behind")
}

type capture struct{ events []changefeed.Event }

func (c *capture) Publish(e changefeed.Event) { c.events = append(c.events, e) }

func TestActionRepository_PublishesAfterCommit(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProfile(t, db, "p1")

	pub := &capture{}
	db.SetPublisher(pub)
	repo := NewActionRepository(db)

	require.NoError(t, repo.Apply(ctx, "p1", actionlog.ChangeSet{Inserts: sampleActions("p1")}))
	require.NoError(t, repo.Apply(ctx, "p1", actionlog.ChangeSet{}))

	require.Len(t, pub.events, 1)
	e := pub.events[0]
	require.Equal(t, changefeed.SourceLocal, e.Source)
	require.Equal(t, db.Identity().ContextID, e.ContextID)
	require.Equal(t, "actions", e.Entity)
}
