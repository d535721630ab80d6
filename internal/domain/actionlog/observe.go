package actionlog

import (
	"context"
	"time"

	"github.com/rpggio/lullaby/internal/changefeed"
	"github.com/rpggio/lullaby/internal/domain/action"
)

// Observe consumes change events until ctx is done or the stream closes,
// requesting a reload for every event that makes the cache stale.
func (s *Store) Observe(ctx context.Context, sub Subscriber) {
	events, cancel := sub.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.HandleEvent(e)
		}
	}
}

// HandleEvent classifies one change event.
func (s *Store) HandleEvent(e changefeed.Event) {
	own := e.Source == changefeed.SourceLocal && e.ContextID == s.self.ContextID && e.ContainerID == s.self.ContainerID
	mutating := own && s.consumeOwnWrite()

	decision := changefeed.Classify(e, s.self, mutating)
	s.logger.Debug("change event", "source", e.Source, "entity", e.Entity, "context_id", e.ContextID, "decision", decision.String())
	if decision == changefeed.Reload {
		s.RequestReload()
	}
}

// consumeOwnWrite claims one pending notification for a commit made by
// this store.
func (s *Store) consumeOwnWrite() bool {
	for {
		n := s.ownWrites.Load()
		if n <= 0 {
			return false
		}
		if s.ownWrites.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// RequestReload schedules a debounced full reload. A newer request cancels
// the one in flight.
func (s *Store) RequestReload() {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.reloadCancel != nil {
		s.reloadCancel()
	}
	if !s.addJob() {
		s.reloadCancel = nil
		return
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.reloadCancel = cancel
	go func() {
		defer s.jobs.Done()
		defer cancel()
		s.runReload(ctx)
	}()
}

func (s *Store) runReload(ctx context.Context) {
	timer := time.NewTimer(s.reloadDebounce)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		s.metrics.reload(ctx, "cancelled")
		return
	case <-timer.C:
	}

	s.mu.Lock()
	startVersion := s.version
	s.mu.Unlock()

	list, err := s.repo.ListAll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.metrics.reload(ctx, "cancelled")
			return
		}
		s.metrics.reload(ctx, "error")
		s.logger.Error("cache reload failed", "error", err)
		return
	}
	states := groupByProfile(list)

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		s.metrics.reload(ctx, "cancelled")
		return
	}
	if s.version != startVersion {
		// A mutation landed while loading; this read may predate it.
		s.mu.Unlock()
		s.metrics.reload(ctx, "stale")
		s.RequestReload()
		return
	}
	changed := s.swapLocked(states)
	s.mu.Unlock()

	s.metrics.reload(ctx, "ok")
	s.logger.Debug("cache reloaded", "profiles", len(states), "changed", len(changed))
	s.afterReload(changed)
}

// swapLocked installs states and returns the profiles whose state moved.
func (s *Store) swapLocked(states map[string]action.ProfileState) map[string]action.ProfileState {
	changed := map[string]action.ProfileState{}
	for id, old := range s.cache {
		if _, ok := states[id]; !ok && !old.IsEmpty() {
			changed[id] = action.NewProfileState()
		}
	}
	for id, st := range states {
		if old, ok := s.cache[id]; !ok || !old.Equal(st) {
			changed[id] = st.Clone()
		}
	}
	s.cache = states
	s.loadedAll = true
	s.version++
	return changed
}

func (s *Store) afterReload(changed map[string]action.ProfileState) {
	s.broadcast()
	if len(changed) == 0 {
		return
	}
	if s.liveActivity != nil {
		for id, st := range changed {
			profileID, state := id, st
			s.goJob("live_activity", profileID, func(ctx context.Context) error {
				return s.liveActivity.Refresh(ctx, profileID, state)
			})
		}
	}
	s.scheduleReminders()
}
