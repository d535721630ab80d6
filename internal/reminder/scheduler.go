// Package reminder plans caregiver reminders from the action log.
package reminder

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/actionlog"
)

const (
	DefaultFeedingInterval = 3 * time.Hour
	DefaultDiaperInterval  = 4 * time.Hour
)

// Kind names what a reminder is for.
type Kind string

const (
	KindFeeding Kind = "feeding"
	KindDiaper  Kind = "diaper"
)

// Reminder is one planned notification.
type Reminder struct {
	ProfileID string    `json:"profile_id"`
	Kind      Kind      `json:"kind"`
	DueAt     time.Time `json:"due_at"`
	ActionID  string    `json:"action_id"`
}

// IntervalScheduler schedules a reminder a fixed interval after the last
// feeding start and the last diaper change of each profile.
type IntervalScheduler struct {
	feedingEvery time.Duration
	diaperEvery  time.Duration
	logger       *slog.Logger

	mu   sync.RWMutex
	plan []Reminder
}

var _ actionlog.ReminderScheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler creates a scheduler. Non-positive intervals fall
// back to the defaults.
func NewIntervalScheduler(feedingEvery, diaperEvery time.Duration, logger *slog.Logger) *IntervalScheduler {
	if feedingEvery <= 0 {
		feedingEvery = DefaultFeedingInterval
	}
	if diaperEvery <= 0 {
		diaperEvery = DefaultDiaperInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &IntervalScheduler{feedingEvery: feedingEvery, diaperEvery: diaperEvery, logger: logger}
}

// Reschedule replaces the plan with one computed from states.
func (s *IntervalScheduler) Reschedule(ctx context.Context, states map[string]action.ProfileState) error {
	var plan []Reminder
	for profileID, st := range states {
		if err := ctx.Err(); err != nil {
			return err
		}
		plan = append(plan, s.planProfile(profileID, st)...)
	}
	sort.Slice(plan, func(i, j int) bool {
		if !plan[i].DueAt.Equal(plan[j].DueAt) {
			return plan[i].DueAt.Before(plan[j].DueAt)
		}
		if plan[i].ProfileID != plan[j].ProfileID {
			return plan[i].ProfileID < plan[j].ProfileID
		}
		return plan[i].Kind < plan[j].Kind
	})

	s.mu.Lock()
	s.plan = plan
	s.mu.Unlock()

	s.logger.Debug("reminders rescheduled", "count", len(plan))
	return nil
}

func (s *IntervalScheduler) planProfile(profileID string, st action.ProfileState) []Reminder {
	var out []Reminder

	// no feeding reminder while one is in progress
	if _, feeding := st.Active[action.CategoryFeeding]; !feeding {
		if last, ok := st.LastStarted(action.CategoryFeeding); ok {
			out = append(out, Reminder{
				ProfileID: profileID,
				Kind:      KindFeeding,
				DueAt:     last.StartDate.Add(s.feedingEvery),
				ActionID:  last.ID,
			})
		}
	}
	if last, ok := st.LastStarted(action.CategoryDiaper); ok {
		out = append(out, Reminder{
			ProfileID: profileID,
			Kind:      KindDiaper,
			DueAt:     last.StartDate.Add(s.diaperEvery),
			ActionID:  last.ID,
		})
	}
	return out
}

// Upcoming returns a copy of the plan ordered by due time.
func (s *IntervalScheduler) Upcoming() []Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Reminder(nil), s.plan...)
}

// Due returns reminders whose time has come.
func (s *IntervalScheduler) Due(now time.Time) []Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Reminder
	for _, r := range s.plan {
		if r.DueAt.After(now) {
			break
		}
		out = append(out, r)
	}
	return out
}
