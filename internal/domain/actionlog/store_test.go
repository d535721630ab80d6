package actionlog_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rpggio/lullaby/internal/changefeed"
	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/actionlog"
	"github.com/rpggio/lullaby/internal/domain/activity"
	"github.com/rpggio/lullaby/internal/domain/profile"
	"github.com/rpggio/lullaby/internal/repository/mocks"
	"github.com/rpggio/lullaby/internal/sqlite"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

// stepClock advances one second per reading so every mutation gets a
// distinct timestamp.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingPusher struct {
	mu      sync.Mutex
	upserts map[string]int
	deletes []string
}

func (p *recordingPusher) PushActions(_ context.Context, _ string, upserts []action.Snapshot, deleted []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.upserts == nil {
		p.upserts = map[string]int{}
	}
	for _, u := range upserts {
		p.upserts[u.ID]++
	}
	p.deletes = append(p.deletes, deleted...)
	return nil
}

func (p *recordingPusher) pushed(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.upserts[id]
}

func (p *recordingPusher) deleted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.deletes...)
}

type recordingRefresher struct {
	mu    sync.Mutex
	calls map[string]action.ProfileState
}

func (r *recordingRefresher) Refresh(_ context.Context, profileID string, state action.ProfileState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]action.ProfileState{}
	}
	r.calls[profileID] = state
	return nil
}

func (r *recordingRefresher) last(profileID string) (action.ProfileState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.calls[profileID]
	return st, ok
}

type recordingActivity struct {
	mu      sync.Mutex
	entries []activity.ActivityEntry
}

func (a *recordingActivity) LogActivity(_ context.Context, e *activity.ActivityEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *e)
	return nil
}

type fixture struct {
	db    *sqlite.DB
	repo  *sqlite.ActionRepository
	store *actionlog.Store
	clock *stepClock
}

func newFixture(t *testing.T, mutate ...func(*actionlog.Config)) *fixture {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	require.NoError(t, sqlite.NewProfileRepository(db).Create(context.Background(), &profile.Profile{
		ID: "p1", Name: "Ada", CreatedAt: epoch, EditedAt: epoch,
	}))

	clock := &stepClock{t: epoch}
	ids := 0
	cfg := actionlog.Config{
		Rules:          action.NewRules(action.DefaultExclusive),
		Identity:       db.Identity(),
		ReloadDebounce: time.Millisecond,
		Now:            clock.Now,
		NewID: func() string {
			ids++
			return fmt.Sprintf("a%d", ids)
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	repo := sqlite.NewActionRepository(db)
	store := actionlog.NewStore(repo, nil, cfg)
	t.Cleanup(store.Close)

	return &fixture{db: db, repo: repo, store: store, clock: clock}
}

func TestStore_ExclusiveStartStopsRunningSleep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sleep, err := f.store.StartAction(ctx, "p1", action.StartRequest{Category: action.CategorySleep})
	require.NoError(t, err)
	feeding, err := f.store.StartAction(ctx, "p1", action.StartRequest{Category: action.CategoryFeeding, FeedingType: action.FeedingBreastLeft})
	require.NoError(t, err)

	st, err := f.store.State(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, st.Active, 1)
	require.Equal(t, feeding.ID, st.Active[action.CategoryFeeding].ID)

	stopped, ok := st.Find(sleep.ID)
	require.True(t, ok)
	require.NotNil(t, stopped.EndDate)
	require.True(t, stopped.EndDate.Equal(feeding.StartDate))
}

func TestStore_PersistedStateRoundTrips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sleep, err := f.store.StartAction(ctx, "p1", action.StartRequest{Category: action.CategorySleep})
	require.NoError(t, err)
	_, err = f.store.StartAction(ctx, "p1", action.StartRequest{Category: action.CategoryDiaper, DiaperType: action.DiaperPee})
	require.NoError(t, err)
	changed, err := f.store.StopAction(ctx, "p1", action.CategorySleep)
	require.NoError(t, err)
	require.True(t, changed)
	_, err = f.store.StartAction(ctx, "p1", action.StartRequest{Category: action.CategoryFeeding, FeedingType: action.FeedingBottle})
	require.NoError(t, err)

	want, err := f.store.State(ctx, "p1")
	require.NoError(t, err)

	fresh := actionlog.NewStore(f.repo, nil, actionlog.Config{Rules: action.NewRules(action.DefaultExclusive)})
	t.Cleanup(fresh.Close)
	got, err := fresh.State(ctx, "p1")
	require.NoError(t, err)
	require.True(t, want.Equal(got), "reloaded state differs: want %+v got %+v", want, got)

	_, ok := got.Find(sleep.ID)
	require.True(t, ok)
}

func TestStore_ContinueReopensFinishedAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sleep, err := f.store.StartAction(ctx, "p1", action.StartRequest{Category: action.CategorySleep})
	require.NoError(t, err)
	_, err = f.store.StopAction(ctx, "p1", action.CategorySleep)
	require.NoError(t, err)

	changed, err := f.store.ContinueAction(ctx, "p1", sleep.ID)
	require.NoError(t, err)
	require.True(t, changed)

	st, err := f.store.State(ctx, "p1")
	require.NoError(t, err)
	running, ok := st.Active[action.CategorySleep]
	require.True(t, ok)
	require.Equal(t, sleep.ID, running.ID)
	require.Nil(t, running.EndDate)

	persisted, err := f.repo.ListByProfile(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	require.Nil(t, persisted[0].EndDate)
}

func TestStore_NoOpMutationsReportUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	changed, err := f.store.StopAction(ctx, "p1", action.CategorySleep)
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = f.store.DeleteAction(ctx, "p1", "missing")
	require.NoError(t, err)
	require.False(t, changed)
}

func TestStore_UnknownCategoryRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.StartAction(context.Background(), "p1", action.StartRequest{Category: "bath"})
	require.ErrorIs(t, err, action.ErrUnknownCategory)
}

func TestStore_DeleteWritesTombstoneAndPushes(t *testing.T) {
	f := newFixture(t)
	pusher := &recordingPusher{}
	f.store.SetPusher(pusher)
	ctx := context.Background()

	diaper, err := f.store.StartAction(ctx, "p1", action.StartRequest{Category: action.CategoryDiaper, DiaperType: action.DiaperPoo})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return pusher.pushed(diaper.ID) == 1 }, time.Second, 5*time.Millisecond)

	changed, err := f.store.DeleteAction(ctx, "p1", diaper.ID)
	require.NoError(t, err)
	require.True(t, changed)
	require.Eventually(t, func() bool { return len(pusher.deleted()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{diaper.ID}, pusher.deleted())

	tombstones, err := f.repo.ListTombstones(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, tombstones, 1)
	require.Equal(t, diaper.ID, tombstones[0].ActionID)
}

func TestStore_ApplyRemoteDoesNotPushBack(t *testing.T) {
	f := newFixture(t)
	pusher := &recordingPusher{}
	f.store.SetPusher(pusher)
	ctx := context.Background()

	end := epoch.Add(time.Hour)
	remote := []action.Snapshot{
		{ID: "r1", Category: action.CategorySleep, StartDate: epoch, EndDate: &end, UpdatedAt: end},
	}
	summary, err := f.store.ApplyRemote(ctx, "p1", remote)
	require.NoError(t, err)
	require.Equal(t, action.MergeSummary{Added: 1}, summary)

	// a second identical apply changes nothing
	summary, err = f.store.ApplyRemote(ctx, "p1", remote)
	require.NoError(t, err)
	require.False(t, summary.Changed())

	persisted, err := f.repo.ListByProfile(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	require.Equal(t, "p1", persisted[0].ProfileID)

	f.store.Close()
	require.Zero(t, pusher.pushed("r1"))
}

func TestStore_MergeProfileStatePushes(t *testing.T) {
	f := newFixture(t)
	pusher := &recordingPusher{}
	f.store.SetPusher(pusher)
	ctx := context.Background()

	end := epoch.Add(20 * time.Minute)
	imported := action.FromSnapshots([]action.Snapshot{
		{ID: "m1", ProfileID: "p1", Category: action.CategoryFeeding, StartDate: epoch, EndDate: &end, FeedingType: action.FeedingBreastRight, UpdatedAt: end},
	})
	summary, err := f.store.MergeProfileState(ctx, "p1", imported)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Added)
	require.Eventually(t, func() bool { return pusher.pushed("m1") == 1 }, time.Second, 5*time.Millisecond)
}

func TestStore_MergeMovesActionsAcrossProfiles(t *testing.T) {
	refresher := &recordingRefresher{}
	f := newFixture(t, func(cfg *actionlog.Config) { cfg.LiveActivity = refresher })
	ctx := context.Background()
	require.NoError(t, sqlite.NewProfileRepository(f.db).Create(ctx, &profile.Profile{
		ID: "p2", Name: "Grace", CreatedAt: epoch, EditedAt: epoch,
	}))

	diaper, err := f.store.StartAction(ctx, "p1", action.StartRequest{Category: action.CategoryDiaper, DiaperType: action.DiaperPee})
	require.NoError(t, err)
	exported, err := f.store.State(ctx, "p1")
	require.NoError(t, err)

	summary, err := f.store.MergeProfileState(ctx, "p2", exported)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Added)

	p2, err := f.store.State(ctx, "p2")
	require.NoError(t, err)
	got, ok := p2.Find(diaper.ID)
	require.True(t, ok)
	require.Equal(t, "p2", got.ProfileID)

	p1, err := f.store.State(ctx, "p1")
	require.NoError(t, err)
	require.True(t, p1.IsEmpty())

	persisted, err := f.repo.ListByProfile(ctx, "p2")
	require.NoError(t, err)
	require.Len(t, persisted, 1)

	require.Eventually(t, func() bool {
		st, ok := refresher.last("p1")
		return ok && st.IsEmpty()
	}, time.Second, 5*time.Millisecond)
}

func TestStore_SideEffectsFollowCommit(t *testing.T) {
	refresher := &recordingRefresher{}
	audit := &recordingActivity{}
	f := newFixture(t, func(cfg *actionlog.Config) {
		cfg.LiveActivity = refresher
		cfg.Activity = audit
	})
	ctx := actionlog.WithActor(context.Background(), "caregiver-1")

	sleep, err := f.store.StartAction(ctx, "p1", action.StartRequest{Category: action.CategorySleep})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, ok := refresher.last("p1")
		if !ok {
			return false
		}
		_, running := st.Active[action.CategorySleep]
		return running
	}, time.Second, 5*time.Millisecond)

	audit.mu.Lock()
	defer audit.mu.Unlock()
	require.Len(t, audit.entries, 1)
	require.Equal(t, activity.TypeActionStarted, audit.entries[0].ActivityType)
	require.Equal(t, "caregiver-1", audit.entries[0].Actor)
	require.Equal(t, sleep.ID, *audit.entries[0].ActionID)
}

func TestStore_ChangesSignalsAfterCommit(t *testing.T) {
	f := newFixture(t)
	changes, cancel := f.store.Changes()
	defer cancel()

	_, err := f.store.StartAction(context.Background(), "p1", action.StartRequest{Category: action.CategorySleep})
	require.NoError(t, err)

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}
}

func TestStore_CrossContextEventReloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.store.State(ctx, "p1")
	require.NoError(t, err)
	require.True(t, st.IsEmpty())

	// another writer commits behind the store's back
	end := epoch.Add(time.Minute)
	require.NoError(t, f.repo.Apply(ctx, "p1", actionlog.ChangeSet{Inserts: []action.Snapshot{
		{ID: "x1", ProfileID: "p1", Category: action.CategoryDiaper, StartDate: end, EndDate: &end, DiaperType: action.DiaperPee, UpdatedAt: end},
	}}))

	id := f.db.Identity()
	f.store.HandleEvent(changefeed.Event{
		Source:      changefeed.SourceCrossContext,
		ContainerID: id.ContainerID,
		ContextID:   "file-watcher",
		Entity:      "actions",
	})

	require.Eventually(t, func() bool {
		st, err := f.store.State(ctx, "p1")
		if err != nil {
			return false
		}
		_, ok := st.Find("x1")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestStore_ObserveReloadsOnBusEvents(t *testing.T) {
	f := newFixture(t)
	bus := changefeed.NewBus(nil)
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.store.Observe(ctx, bus)

	_, err := f.store.State(ctx, "p1")
	require.NoError(t, err)

	end := epoch.Add(time.Minute)
	require.NoError(t, f.repo.Apply(ctx, "p1", actionlog.ChangeSet{Inserts: []action.Snapshot{
		{ID: "r1", ProfileID: "p1", Category: action.CategorySleep, StartDate: epoch, EndDate: &end, UpdatedAt: end},
	}}))

	require.Eventually(t, func() bool {
		bus.Publish(changefeed.Event{Source: changefeed.SourceRemote, Entity: "actions"})
		st, err := f.store.State(ctx, "p1")
		if err != nil {
			return false
		}
		_, ok := st.Find("r1")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestStore_CommitKeepsConcurrentInsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.State(ctx, "p1")
	require.NoError(t, err)

	end := epoch.Add(time.Minute)
	require.NoError(t, f.repo.Apply(ctx, "p1", actionlog.ChangeSet{Inserts: []action.Snapshot{
		{ID: "other", ProfileID: "p1", Category: action.CategoryDiaper, StartDate: end, EndDate: &end, DiaperType: action.DiaperBoth, UpdatedAt: end},
	}}))

	_, err = f.store.StartAction(ctx, "p1", action.StartRequest{Category: action.CategorySleep})
	require.NoError(t, err)

	persisted, err := f.repo.ListByProfile(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, persisted, 2)

	st, err := f.store.State(ctx, "p1")
	require.NoError(t, err)
	_, ok := st.Find("other")
	require.True(t, ok)
}

func TestStore_OwnCommitEventIgnored(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.ActionRepository{}
	repo.On("ListByProfile", mock.Anything, "p1").Return([]action.Snapshot{}, nil)
	repo.On("Apply", mock.Anything, "p1", mock.Anything).Return(nil)

	self := changefeed.Identity{ContainerID: "c1", ContextID: "ctx1"}
	store := actionlog.NewStore(repo, nil, actionlog.Config{
		Rules:          action.NewRules(action.DefaultExclusive),
		Identity:       self,
		ReloadDebounce: time.Millisecond,
	})
	defer store.Close()

	_, err := store.StartAction(ctx, "p1", action.StartRequest{Category: action.CategorySleep})
	require.NoError(t, err)

	store.HandleEvent(changefeed.Event{Source: changefeed.SourceLocal, ContainerID: self.ContainerID, ContextID: self.ContextID})
	time.Sleep(20 * time.Millisecond)
	repo.AssertNotCalled(t, "ListAll", mock.Anything)
}

func TestStore_PersistFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.ActionRepository{}
	repo.On("ListByProfile", mock.Anything, "p1").Return([]action.Snapshot{}, nil)
	repo.On("Apply", mock.Anything, "p1", mock.Anything).Return(errors.New("disk full"))

	store := actionlog.NewStore(repo, nil, actionlog.Config{Rules: action.NewRules(action.DefaultExclusive)})
	defer store.Close()

	_, err := store.StartAction(ctx, "p1", action.StartRequest{Category: action.CategorySleep})
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")

	st, err := store.State(ctx, "p1")
	require.NoError(t, err)
	require.True(t, st.IsEmpty())
}

// gatedRefresher holds its first Refresh until gate closes.
type gatedRefresher struct {
	gate chan struct{}

	mu     sync.Mutex
	calls  int
	states []action.ProfileState
}

func (r *gatedRefresher) Refresh(ctx context.Context, _ string, state action.ProfileState) error {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()
	if first {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return nil
}

func (r *gatedRefresher) finished() []action.ProfileState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]action.ProfileState(nil), r.states...)
}

func TestStore_LiveActivityRefreshesKeepCommitOrder(t *testing.T) {
	refresher := &gatedRefresher{gate: make(chan struct{})}
	f := newFixture(t, func(cfg *actionlog.Config) { cfg.LiveActivity = refresher })
	ctx := context.Background()

	_, err := f.store.StartAction(ctx, "p1", action.StartRequest{Category: action.CategorySleep})
	require.NoError(t, err)
	stopped, err := f.store.StopAction(ctx, "p1", action.CategorySleep)
	require.NoError(t, err)
	require.True(t, stopped)

	// The newer refresh must wait for the older one.
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, refresher.finished())
	close(refresher.gate)

	require.Eventually(t, func() bool { return len(refresher.finished()) == 2 }, time.Second, 5*time.Millisecond)
	states := refresher.finished()
	_, running := states[0].Active[action.CategorySleep]
	require.True(t, running)
	require.Empty(t, states[1].Active)
}

func newMockStore(t *testing.T, repo *mocks.ActionRepository, debounce time.Duration) (*actionlog.Store, changefeed.Event) {
	t.Helper()
	self := changefeed.Identity{ContainerID: "c1", ContextID: "ctx1"}
	store := actionlog.NewStore(repo, nil, actionlog.Config{
		Rules:          action.NewRules(action.DefaultExclusive),
		Identity:       self,
		ReloadDebounce: debounce,
		NewID:          func() string { return "a1" },
	})
	t.Cleanup(store.Close)
	external := changefeed.Event{Source: changefeed.SourceCrossContext, ContainerID: self.ContainerID, ContextID: "file-watcher", Entity: "database"}
	return store, external
}

func diaperAt(id string, at time.Time) action.Snapshot {
	return action.Snapshot{ID: id, ProfileID: "p1", Category: action.CategoryDiaper, StartDate: at, EndDate: &at, DiaperType: action.DiaperPee, UpdatedAt: at}
}

func TestStore_ReloadOverlappingCommitIsDiscarded(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	gate := make(chan struct{})

	repo := &mocks.ActionRepository{}
	repo.On("ListByProfile", mock.Anything, "p1").Return([]action.Snapshot{}, nil)
	repo.On("Apply", mock.Anything, "p1", mock.Anything).Return(nil)
	repo.On("ListAll", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-gate
	}).Return([]action.Snapshot{diaperAt("stale", epoch)}, nil).Once()
	fresh := diaperAt("fresh", epoch.Add(time.Minute))
	repo.On("ListAll", mock.Anything).Return([]action.Snapshot{fresh}, nil)

	store, external := newMockStore(t, repo, time.Millisecond)
	_, err := store.State(ctx, "p1")
	require.NoError(t, err)

	store.HandleEvent(external)
	<-entered

	// Commit while the reload is reading.
	_, err = store.StartAction(ctx, "p1", action.StartRequest{Category: action.CategorySleep})
	require.NoError(t, err)
	close(gate)

	require.Eventually(t, func() bool {
		st, err := store.State(ctx, "p1")
		if err != nil {
			return false
		}
		_, ok := st.Find("fresh")
		return ok
	}, time.Second, 5*time.Millisecond)

	st, err := store.State(ctx, "p1")
	require.NoError(t, err)
	_, ok := st.Find("stale")
	require.False(t, ok)
	repo.AssertNumberOfCalls(t, "ListAll", 2)
}

func TestStore_CancelledReloadNeverOverwritesCache(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	gate := make(chan struct{})

	repo := &mocks.ActionRepository{}
	repo.On("ListByProfile", mock.Anything, "p1").Return([]action.Snapshot{}, nil)
	repo.On("ListAll", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-gate
	}).Return([]action.Snapshot{diaperAt("stale", epoch)}, nil).Once()
	fresh := diaperAt("fresh", epoch.Add(time.Minute))
	repo.On("ListAll", mock.Anything).Return([]action.Snapshot{fresh}, nil)

	store, external := newMockStore(t, repo, time.Millisecond)
	_, err := store.State(ctx, "p1")
	require.NoError(t, err)

	store.HandleEvent(external)
	<-entered
	// A newer request cancels the one blocked in ListAll.
	store.HandleEvent(external)

	require.Eventually(t, func() bool {
		st, err := store.State(ctx, "p1")
		if err != nil {
			return false
		}
		_, ok := st.Find("fresh")
		return ok
	}, time.Second, 5*time.Millisecond)

	// Let the cancelled reload finish reading, then wait for it.
	close(gate)
	store.Close()

	st, err := store.State(ctx, "p1")
	require.NoError(t, err)
	_, ok := st.Find("stale")
	require.False(t, ok)
	_, ok = st.Find("fresh")
	require.True(t, ok)
}

func TestStore_EventsWithinDebounceCollapse(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.ActionRepository{}
	repo.On("ListByProfile", mock.Anything, "p1").Return([]action.Snapshot{}, nil)
	repo.On("ListAll", mock.Anything).Return([]action.Snapshot{diaperAt("x1", epoch)}, nil)

	store, external := newMockStore(t, repo, 50*time.Millisecond)
	_, err := store.State(ctx, "p1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		store.HandleEvent(external)
	}

	require.Eventually(t, func() bool {
		st, err := store.State(ctx, "p1")
		if err != nil {
			return false
		}
		_, ok := st.Find("x1")
		return ok
	}, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	repo.AssertNumberOfCalls(t, "ListAll", 1)
}
