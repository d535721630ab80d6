package actionlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/lullaby/internal/changefeed"
	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/activity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultReloadDebounce = 250 * time.Millisecond
	defaultJobTimeout     = 30 * time.Second
)

// Config wires the store's policy and collaborators. Every collaborator is
// optional.
type Config struct {
	Rules          action.Rules
	Identity       changefeed.Identity
	ReloadDebounce time.Duration
	JobTimeout     time.Duration
	Now            func() time.Time
	NewID          func() string

	LiveActivity LiveActivityRefresher
	Reminders    ReminderScheduler
	Activity     ActivityLogger
	Meter        metric.Meter
}

// Store owns the per-profile action state cache and is the only writer of
// action rows. All mutations are serialized on one mutex; downstream
// effects run as background jobs after the mutation returns.
type Store struct {
	repo   Repository
	logger *slog.Logger
	rules  action.Rules
	self   changefeed.Identity
	now    func() time.Time
	newID  func() string

	mu        sync.Mutex
	cache     map[string]action.ProfileState
	loadedAll bool
	version   uint64

	ownWrites atomic.Int64

	liveActivity LiveActivityRefresher
	reminders    ReminderScheduler
	activity     ActivityLogger
	pusher       atomic.Pointer[pusherBox]

	baseCtx    context.Context
	cancelBase context.CancelFunc
	jobsMu     sync.Mutex
	closing    bool
	jobs       sync.WaitGroup
	queues     map[string]*jobQueue
	jobTimeout time.Duration

	reloadMu       sync.Mutex
	reloadCancel   context.CancelFunc
	reloadDebounce time.Duration

	subsMu  sync.Mutex
	subs    map[int]chan struct{}
	nextSub int

	metrics *storeMetrics
}

type pusherBox struct{ RemotePusher }

// NewStore creates a store over repo.
func NewStore(repo Repository, logger *slog.Logger, cfg Config) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	if cfg.ReloadDebounce <= 0 {
		cfg.ReloadDebounce = defaultReloadDebounce
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if cfg.Meter == nil {
		cfg.Meter = otel.GetMeterProvider().Meter("github.com/rpggio/lullaby/actionlog")
	}

	base, cancel := context.WithCancel(context.Background())
	return &Store{
		repo:           repo,
		logger:         logger,
		rules:          cfg.Rules,
		self:           cfg.Identity,
		now:            cfg.Now,
		newID:          cfg.NewID,
		cache:          map[string]action.ProfileState{},
		liveActivity:   cfg.LiveActivity,
		reminders:      cfg.Reminders,
		activity:       cfg.Activity,
		baseCtx:        base,
		cancelBase:     cancel,
		queues:         map[string]*jobQueue{},
		jobTimeout:     cfg.JobTimeout,
		reloadDebounce: cfg.ReloadDebounce,
		subs:           map[int]chan struct{}{},
		metrics:        newStoreMetrics(cfg.Meter),
	}
}

// SetPusher installs the remote pusher. Passing nil disables remote pushes.
func (s *Store) SetPusher(p RemotePusher) {
	if p == nil {
		s.pusher.Store(nil)
		return
	}
	s.pusher.Store(&pusherBox{p})
}

// Close cancels background work and waits for it to stop.
func (s *Store) Close() {
	s.jobsMu.Lock()
	s.closing = true
	s.jobsMu.Unlock()

	s.cancelBase()
	s.reloadMu.Lock()
	if s.reloadCancel != nil {
		s.reloadCancel()
	}
	s.reloadMu.Unlock()
	s.jobs.Wait()

	s.subsMu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subsMu.Unlock()
}

// State returns a copy of a profile's state, loading it on first use.
func (s *Store) State(ctx context.Context, profileID string) (action.ProfileState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.stateLocked(ctx, profileID)
	if err != nil {
		return action.ProfileState{}, err
	}
	return st.Clone(), nil
}

// States returns copies of every profile state that has actions.
func (s *Store) States(ctx context.Context) (map[string]action.ProfileState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loadedAll {
		list, err := s.repo.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading action states: %w", err)
		}
		for id, st := range groupByProfile(list) {
			if _, ok := s.cache[id]; !ok {
				s.cache[id] = st
			}
		}
		s.loadedAll = true
	}
	return s.copyCacheLocked(), nil
}

// StartAction starts a duration action or logs an instant one.
func (s *Store) StartAction(ctx context.Context, profileID string, req action.StartRequest) (action.Snapshot, error) {
	if !req.Category.Valid() {
		return action.Snapshot{}, action.ErrUnknownCategory
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.stateLocked(ctx, profileID)
	if err != nil {
		return action.Snapshot{}, err
	}
	if req.ID == "" {
		req.ID = s.newID()
	}

	next, snap := s.rules.Start(prev, profileID, req, s.now())
	if err := s.commitLocked(ctx, profileID, prev, next, "start", true); err != nil {
		return action.Snapshot{}, err
	}
	s.record(ctx, profileID, snap.ID, activity.TypeActionStarted, fmt.Sprintf("started %s", snap.Category))
	return snap, nil
}

// StopAction stops the running action of a category. It reports false when
// nothing was running.
func (s *Store) StopAction(ctx context.Context, profileID string, category action.Category) (bool, error) {
	return s.mutate(ctx, profileID, "stop", activity.TypeActionStopped, func(prev action.ProfileState, now time.Time) (action.ProfileState, string, bool) {
		cur, ok := prev.Active[category]
		next, changed := action.Stop(prev, category, now)
		if !ok {
			return next, "", changed
		}
		return next, cur.ID, changed
	})
}

// StopActionByID stops a running action located by id.
func (s *Store) StopActionByID(ctx context.Context, profileID, id string) (bool, error) {
	return s.mutate(ctx, profileID, "stop", activity.TypeActionStopped, func(prev action.ProfileState, now time.Time) (action.ProfileState, string, bool) {
		next, changed := action.StopByID(prev, id, now)
		return next, id, changed
	})
}

// UpdateAction replaces an action's attributes.
func (s *Store) UpdateAction(ctx context.Context, profileID string, edited action.Snapshot) (bool, error) {
	if _, fixed := edited.Normalize(); fixed != 0 {
		s.logger.Debug("action input auto-corrected", "action_id", edited.ID, "corrections", fixed.String())
	}
	return s.mutate(ctx, profileID, "update", activity.TypeActionUpdated, func(prev action.ProfileState, now time.Time) (action.ProfileState, string, bool) {
		next, changed := action.Update(prev, edited, now)
		return next, edited.ID, changed
	})
}

// ContinueAction reopens a finished action when its category is idle.
func (s *Store) ContinueAction(ctx context.Context, profileID, id string) (bool, error) {
	return s.mutate(ctx, profileID, "continue", activity.TypeActionContinued, func(prev action.ProfileState, now time.Time) (action.ProfileState, string, bool) {
		next, changed := s.rules.Continue(prev, id, now)
		return next, id, changed
	})
}

// DeleteAction removes an action.
func (s *Store) DeleteAction(ctx context.Context, profileID, id string) (bool, error) {
	return s.mutate(ctx, profileID, "delete", activity.TypeActionDeleted, func(prev action.ProfileState, _ time.Time) (action.ProfileState, string, bool) {
		next, changed := action.Delete(prev, id)
		return next, id, changed
	})
}

// MergeProfileState folds an imported state into the profile and pushes
// the result to the remote backend.
func (s *Store) MergeProfileState(ctx context.Context, profileID string, imported action.ProfileState) (action.MergeSummary, error) {
	return s.merge(ctx, profileID, imported.All(), "merge", activity.TypeStateMerged, true)
}

// ApplyRemote merges remote winners without triggering another push.
func (s *Store) ApplyRemote(ctx context.Context, profileID string, remote []action.Snapshot) (action.MergeSummary, error) {
	return s.merge(ctx, profileID, remote, "remote_apply", activity.TypeRemoteApplied, false)
}

func (s *Store) merge(ctx context.Context, profileID string, incoming []action.Snapshot, op string, kind activity.ActivityType, push bool) (action.MergeSummary, error) {
	list := make([]action.Snapshot, 0, len(incoming))
	for _, in := range incoming {
		in.ProfileID = profileID
		if _, fixed := in.Normalize(); fixed != 0 {
			s.logger.Debug("action input auto-corrected", "action_id", in.ID, "corrections", fixed.String())
		}
		list = append(list, in)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.stateLocked(ctx, profileID)
	if err != nil {
		return action.MergeSummary{}, err
	}
	next, summary := action.Merge(prev, list)
	if !summary.Changed() {
		return summary, nil
	}
	if err := s.commitLocked(ctx, profileID, prev, next, op, push); err != nil {
		return action.MergeSummary{}, err
	}
	s.record(ctx, profileID, "", kind, fmt.Sprintf("%d added, %d updated", summary.Added, summary.Updated))
	return summary, nil
}

type transition func(prev action.ProfileState, now time.Time) (next action.ProfileState, actionID string, changed bool)

func (s *Store) mutate(ctx context.Context, profileID, op string, kind activity.ActivityType, fn transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.stateLocked(ctx, profileID)
	if err != nil {
		return false, err
	}
	next, actionID, changed := fn(prev, s.now())
	if !changed {
		return false, nil
	}
	if err := s.commitLocked(ctx, profileID, prev, next, op, true); err != nil {
		return false, err
	}
	s.record(ctx, profileID, actionID, kind, op)
	return true, nil
}

// commitLocked persists next by reconciliation and installs the result.
func (s *Store) commitLocked(ctx context.Context, profileID string, prev, next action.ProfileState, op string, push bool) error {
	persisted, err := s.repo.ListByProfile(ctx, profileID)
	if err != nil {
		return fmt.Errorf("reading persisted actions: %w", err)
	}

	result, changes := Reconcile(prev, next, persisted, s.now())
	if !changes.IsEmpty() {
		s.ownWrites.Add(1)
		if err := s.repo.Apply(ctx, profileID, changes); err != nil {
			s.ownWrites.Add(-1)
			return fmt.Errorf("persisting %s: %w", op, err)
		}
	}

	s.cache[profileID] = result
	s.evictMovedLocked(profileID, changes.Inserts)
	s.version++
	s.metrics.mutation(ctx, op)
	s.broadcast()
	s.dispatch(profileID, result, changes, push)
	return nil
}

// evictMovedLocked drops inserted ids from every other cached profile. The
// repository reassigns an inserted id that another profile held.
func (s *Store) evictMovedLocked(profileID string, inserted []action.Snapshot) {
	if len(inserted) == 0 {
		return
	}
	for other, st := range s.cache {
		if other == profileID {
			continue
		}
		next, moved := st, false
		for _, in := range inserted {
			if n, ok := action.Delete(next, in.ID); ok {
				next, moved = n, true
			}
		}
		if moved {
			s.cache[other] = next
			s.logger.Debug("actions moved between profiles", "from", other, "to", profileID)
			s.dispatch(other, next, ChangeSet{}, false)
		}
	}
}

func (s *Store) stateLocked(ctx context.Context, profileID string) (action.ProfileState, error) {
	if st, ok := s.cache[profileID]; ok {
		return st, nil
	}
	list, err := s.repo.ListByProfile(ctx, profileID)
	if err != nil {
		return action.ProfileState{}, fmt.Errorf("loading profile %s: %w", profileID, err)
	}
	st := action.FromSnapshots(list)
	s.cache[profileID] = st
	return st, nil
}

func (s *Store) copyCacheLocked() map[string]action.ProfileState {
	out := make(map[string]action.ProfileState, len(s.cache))
	for id, st := range s.cache {
		out[id] = st.Clone()
	}
	return out
}

func (s *Store) record(ctx context.Context, profileID, actionID string, kind activity.ActivityType, summary string) {
	if s.activity == nil {
		return
	}
	entry := &activity.ActivityEntry{
		ProfileID:    profileID,
		Actor:        ActorFromContext(ctx),
		ActivityType: kind,
		Summary:      summary,
		CreatedAt:    s.now(),
	}
	if actionID != "" {
		entry.ActionID = &actionID
	}
	if err := s.activity.LogActivity(ctx, entry); err != nil {
		s.logger.Warn("failed to log activity", "profile_id", profileID, "type", kind, "error", err)
	}
}

func groupByProfile(list []action.Snapshot) map[string]action.ProfileState {
	byProfile := map[string][]action.Snapshot{}
	for _, s := range list {
		byProfile[s.ProfileID] = append(byProfile[s.ProfileID], s)
	}
	out := make(map[string]action.ProfileState, len(byProfile))
	for id, snaps := range byProfile {
		out[id] = action.FromSnapshots(snaps)
	}
	return out
}
