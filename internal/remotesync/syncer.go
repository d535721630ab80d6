package remotesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rpggio/lullaby/internal/changefeed"
	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/actionlog"
	"github.com/rpggio/lullaby/internal/domain/profile"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/rpggio/lullaby/remotesync"

// ActionStore is the local action log as seen by the syncer.
type ActionStore interface {
	States(ctx context.Context) (map[string]action.ProfileState, error)
	ApplyRemote(ctx context.Context, profileID string, remote []action.Snapshot) (action.MergeSummary, error)
}

// ProfileStore is the local profile service as seen by the syncer.
type ProfileStore interface {
	List(ctx context.Context) ([]profile.Profile, error)
	ApplyRemote(ctx context.Context, remote []profile.Profile) (int, error)
}

// Tombstones tracks local deletions awaiting the backend.
type Tombstones interface {
	ListTombstones(ctx context.Context, profileID string) ([]action.Tombstone, error)
	ClearTombstones(ctx context.Context, profileID string, actionIDs []string) error
}

// Config holds optional collaborators.
type Config struct {
	Publisher changefeed.Publisher
	Now       func() time.Time
	Tracer    trace.Tracer
	Meter     metric.Meter
}

// Syncer runs synchronization passes. At most one pass runs at a time; a
// pass requested meanwhile is skipped.
type Syncer struct {
	backend    Backend
	actions    ActionStore
	profiles   ProfileStore
	tombstones Tombstones
	publisher  changefeed.Publisher
	logger     *slog.Logger
	now        func() time.Time
	tracer     trace.Tracer
	passes     metric.Int64Counter

	running atomic.Bool
	status  statusBox
	trigger chan struct{}
}

var _ actionlog.RemotePusher = (*Syncer)(nil)

// NewSyncer creates a Syncer.
func NewSyncer(backend Backend, actions ActionStore, profiles ProfileStore, tombstones Tombstones, logger *slog.Logger, cfg Config) *Syncer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(instrumentationName)
	}
	if cfg.Meter == nil {
		cfg.Meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	passes, err := cfg.Meter.Int64Counter("lullaby.sync.passes", metric.WithDescription("Remote sync passes by outcome"))
	if err != nil {
		logger.Warn("sync pass counter unavailable", "error", err)
	}
	return &Syncer{
		backend:    backend,
		actions:    actions,
		profiles:   profiles,
		tombstones: tombstones,
		publisher:  cfg.Publisher,
		logger:     logger,
		now:        cfg.Now,
		tracer:     cfg.Tracer,
		passes:     passes,
		trigger:    make(chan struct{}, 1),
	}
}

// Status returns the latest sync outcome.
func (s *Syncer) Status() Status {
	return s.status.get()
}

// SyncOnce runs one full pass: profiles first, then actions per profile.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("sync pass skipped, one is already running")
		return ErrSyncInProgress
	}
	defer s.running.Store(false)

	ctx, span := s.tracer.Start(ctx, "remotesync.pass")
	defer span.End()

	s.status.begin(s.now())
	err := s.pass(ctx)
	s.status.finish(s.now(), err)

	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("sync pass failed", "error", err)
	} else {
		s.logger.Debug("sync pass completed")
	}
	if s.passes != nil {
		s.passes.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("result", result)))
	}
	return err
}

func (s *Syncer) pass(ctx context.Context) error {
	var (
		remoteProfiles []RemoteProfile
		remoteActions  []RemoteAction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.backend.FetchProfiles(gctx)
		if err != nil {
			return fmt.Errorf("fetching remote profiles: %w", err)
		}
		remoteProfiles = list
		return nil
	})
	g.Go(func() error {
		list, err := s.backend.FetchActions(gctx)
		if err != nil {
			return fmt.Errorf("fetching remote actions: %w", err)
		}
		remoteActions = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	localIDs, applied, err := s.syncProfiles(ctx, remoteProfiles)
	if err != nil {
		return err
	}
	changed, err := s.syncActions(ctx, localIDs, remoteActions)
	if (applied > 0 || changed) && s.publisher != nil {
		s.publisher.Publish(changefeed.Event{Source: changefeed.SourceRemote, Entity: "sync", At: s.now()})
	}
	return err
}

func (s *Syncer) syncProfiles(ctx context.Context, remote []RemoteProfile) ([]string, int, error) {
	ctx, span := s.tracer.Start(ctx, "remotesync.profiles")
	defer span.End()

	local, err := s.profiles.List(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("listing local profiles: %w", err)
	}

	remoteByID := make(map[string]profile.Profile, len(remote))
	for _, r := range remote {
		remoteByID[r.ID] = profileFromRemote(r)
	}
	localByID := make(map[string]profile.Profile, len(local))
	ids := make([]string, 0, len(local))
	var upserts []RemoteProfile
	for _, p := range local {
		localByID[p.ID] = p
		ids = append(ids, p.ID)
		if r, ok := remoteByID[p.ID]; !ok || profile.Newer(p, r) {
			upserts = append(upserts, profileToRemote(p))
		}
	}
	var incoming []profile.Profile
	for _, r := range remote {
		if l, ok := localByID[r.ID]; !ok || profile.Newer(remoteByID[r.ID], l) {
			incoming = append(incoming, remoteByID[r.ID])
		}
	}

	if err := s.backend.SyncProfiles(ctx, upserts); err != nil {
		return nil, 0, fmt.Errorf("pushing profiles: %w", err)
	}
	applied, err := s.profiles.ApplyRemote(ctx, incoming)
	if err != nil {
		return nil, applied, fmt.Errorf("applying remote profiles: %w", err)
	}
	span.SetAttributes(attribute.Int("profiles.pushed", len(upserts)), attribute.Int("profiles.applied", applied))
	return ids, applied, nil
}

func (s *Syncer) syncActions(ctx context.Context, localProfileIDs []string, remote []RemoteAction) (bool, error) {
	states, err := s.actions.States(ctx)
	if err != nil {
		return false, fmt.Errorf("loading local actions: %w", err)
	}

	byProfile := map[string][]action.Snapshot{}
	for _, r := range remote {
		snap, ok := r.Snapshot()
		if !ok {
			s.logger.Warn("skipping remote action with unknown category", "action_id", r.ID, "category", r.Category)
			continue
		}
		byProfile[snap.ProfileID] = append(byProfile[snap.ProfileID], snap)
	}

	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range localProfileIDs {
		add(id)
	}
	for id := range states {
		add(id)
	}
	for id := range byProfile {
		add(id)
	}
	sort.Strings(ids)

	changed := false
	var errs []error
	for _, id := range ids {
		st, ok := states[id]
		if !ok {
			st = action.NewProfileState()
		}
		moved, err := s.syncProfileActions(ctx, id, st, byProfile[id])
		if err != nil {
			errs = append(errs, fmt.Errorf("profile %s: %w", id, err))
		}
		changed = changed || moved
	}
	return changed, errors.Join(errs...)
}

func (s *Syncer) syncProfileActions(ctx context.Context, profileID string, local action.ProfileState, remote []action.Snapshot) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "remotesync.actions", trace.WithAttributes(attribute.String("profile.id", profileID)))
	defer span.End()

	tombs, err := s.tombstones.ListTombstones(ctx, profileID)
	if err != nil {
		return false, fmt.Errorf("listing tombstones: %w", err)
	}
	deletedAt := make(map[string]time.Time, len(tombs))
	for _, t := range tombs {
		deletedAt[t.ActionID] = t.DeletedAt
	}

	remoteByID := make(map[string]action.Snapshot, len(remote))
	resurrected := map[string]bool{}
	var incoming []action.Snapshot
	for _, r := range remote {
		remoteByID[r.ID] = r
		if l, ok := local.Find(r.ID); ok {
			if !action.Resolve(l, r).Equal(l) {
				incoming = append(incoming, r)
			}
			continue
		}
		if at, gone := deletedAt[r.ID]; gone {
			if !r.UpdatedAt.After(at) {
				continue
			}
			// edited remotely after the local delete
			resurrected[r.ID] = true
		}
		incoming = append(incoming, r)
	}

	var deletes []string
	for id := range deletedAt {
		if !resurrected[id] {
			deletes = append(deletes, id)
		}
	}
	sort.Strings(deletes)

	var upserts []action.Snapshot
	for _, l := range local.All() {
		r, ok := remoteByID[l.ID]
		if !ok || (!l.Equal(r) && action.Resolve(l, r).Equal(l)) {
			upserts = append(upserts, l)
		}
	}

	changed := false
	if len(incoming) > 0 {
		summary, err := s.actions.ApplyRemote(ctx, profileID, incoming)
		if err != nil {
			return false, fmt.Errorf("applying remote actions: %w", err)
		}
		changed = summary.Changed()
	}

	if len(upserts) > 0 || len(deletes) > 0 {
		if err := s.backend.SyncActions(ctx, profileID, actionsToRemote(upserts), deletes); err != nil {
			return changed, fmt.Errorf("pushing actions: %w", err)
		}
		if err := s.tombstones.ClearTombstones(ctx, profileID, deletes); err != nil {
			return changed, fmt.Errorf("clearing tombstones: %w", err)
		}
	}

	span.SetAttributes(
		attribute.Int("actions.applied", len(incoming)),
		attribute.Int("actions.pushed", len(upserts)),
		attribute.Int("actions.deleted", len(deletes)),
	)
	return changed, nil
}

// PushActions sends one committed change set. Failures land on Status; the
// next full pass retries them.
func (s *Syncer) PushActions(ctx context.Context, profileID string, upserts []action.Snapshot, deletedIDs []string) error {
	ctx, span := s.tracer.Start(ctx, "remotesync.push", trace.WithAttributes(attribute.String("profile.id", profileID)))
	defer span.End()

	if err := s.backend.SyncActions(ctx, profileID, actionsToRemote(upserts), deletedIDs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.status.pushFailed(err)
		return fmt.Errorf("pushing actions: %w", err)
	}
	if len(deletedIDs) > 0 {
		if err := s.tombstones.ClearTombstones(ctx, profileID, deletedIDs); err != nil {
			return fmt.Errorf("clearing tombstones: %w", err)
		}
	}
	return nil
}

// Trigger asks Run for an immediate pass. Requests coalesce.
func (s *Syncer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run performs a pass now and then every interval, scaled by a random
// factor in [1-jitter, 1+jitter], until ctx is done. Each pass is bounded
// by timeout.
func (s *Syncer) Run(ctx context.Context, interval time.Duration, jitter float64, timeout time.Duration) {
	run := func() {
		passCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		_ = s.SyncOnce(passCtx)
	}

	run()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	timer := time.NewTimer(JitteredInterval(interval, jitter, rng.Float64()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync loop stopping", "reason", ctx.Err())
			return
		case <-s.trigger:
			run()
		case <-timer.C:
			run()
			timer.Reset(JitteredInterval(interval, jitter, rng.Float64()))
		}
	}
}

// JitteredInterval scales base by 1 + (2*sample-1)*ratio. The ratio is
// clamped to [0, 1] and the result is at least a millisecond.
func JitteredInterval(base time.Duration, ratio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	ratio = min(max(ratio, 0), 1)
	if ratio == 0 {
		return base
	}
	sample = min(max(sample, 0), 1)
	factor := max(1+((sample*2)-1)*ratio, 0)
	return max(time.Duration(float64(base)*factor), time.Millisecond)
}
