package actionlog

import (
	"context"

	"github.com/rpggio/lullaby/internal/domain/action"
)

// dispatch schedules downstream effects of a committed change. Callers hold
// s.mu; the jobs themselves run after it is released.
func (s *Store) dispatch(profileID string, state action.ProfileState, changes ChangeSet, push bool) {
	if s.liveActivity != nil {
		snapshot := state.Clone()
		s.goJob("live_activity", profileID, func(ctx context.Context) error {
			return s.liveActivity.Refresh(ctx, profileID, snapshot)
		})
	}
	s.scheduleReminders()

	if !push || changes.IsEmpty() {
		return
	}
	box := s.pusher.Load()
	if box == nil {
		return
	}
	upserts := changes.Upserts()
	deletes := append([]string(nil), changes.Deletes...)
	s.goJob("remote_push", profileID, func(ctx context.Context) error {
		return box.PushActions(ctx, profileID, upserts, deletes)
	})
}

func (s *Store) scheduleReminders() {
	if s.reminders == nil {
		return
	}
	s.goJob("reminders", "", func(ctx context.Context) error {
		s.mu.Lock()
		states := s.copyCacheLocked()
		s.mu.Unlock()
		return s.reminders.Reschedule(ctx, states)
	})
}

// jobQueue runs the jobs of one kind for one profile in submission order.
type jobQueue struct {
	pending []func(ctx context.Context) error
	running bool
}

// goJob queues fn behind earlier jobs with the same name and profile, so a
// job carrying an older state never finishes after a newer one.
func (s *Store) goJob(name, profileID string, fn func(ctx context.Context) error) {
	key := name + "/" + profileID

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if s.closing {
		return
	}
	s.jobs.Add(1)
	q, ok := s.queues[key]
	if !ok {
		q = &jobQueue{}
		s.queues[key] = q
	}
	q.pending = append(q.pending, fn)
	if q.running {
		return
	}
	q.running = true
	go s.drain(key, name, profileID, q)
}

func (s *Store) drain(key, name, profileID string, q *jobQueue) {
	for {
		s.jobsMu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			delete(s.queues, key)
			s.jobsMu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending = q.pending[1:]
		s.jobsMu.Unlock()

		s.runJob(name, profileID, fn)
		s.jobs.Done()
	}
}

func (s *Store) runJob(name, profileID string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.jobTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.logger.Warn("background job failed", "job", name, "profile_id", profileID, "error", err)
	}
}

func (s *Store) addJob() bool {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if s.closing {
		return false
	}
	s.jobs.Add(1)
	return true
}

// Changes returns a channel that receives a signal after every cache
// change. Signals coalesce; a slow reader sees one pending signal.
func (s *Store) Changes() (<-chan struct{}, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	ch := make(chan struct{}, 1)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

func (s *Store) broadcast() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
