package actionlog

import (
	"context"
	"time"

	"github.com/rpggio/lullaby/internal/changefeed"
	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/activity"
)

// ChangeSet is the write plan produced by reconciling a desired state
// against persisted rows. Apply it in one transaction.
type ChangeSet struct {
	Inserts   []action.Snapshot
	Updates   []action.Snapshot
	Deletes   []string
	DeletedAt time.Time
}

// IsEmpty reports whether there is nothing to write.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Inserts) == 0 && len(c.Updates) == 0 && len(c.Deletes) == 0
}

// Upserts returns inserts followed by updates.
func (c ChangeSet) Upserts() []action.Snapshot {
	out := make([]action.Snapshot, 0, len(c.Inserts)+len(c.Updates))
	out = append(out, c.Inserts...)
	return append(out, c.Updates...)
}

// Repository provides persistence for actions.
type Repository interface {
	ListByProfile(ctx context.Context, profileID string) ([]action.Snapshot, error)
	ListAll(ctx context.Context) ([]action.Snapshot, error)
	Apply(ctx context.Context, profileID string, changes ChangeSet) error
}

// LiveActivityRefresher receives the running actions of a profile.
type LiveActivityRefresher interface {
	Refresh(ctx context.Context, profileID string, state action.ProfileState) error
}

// ReminderScheduler recomputes reminders from every known profile state.
type ReminderScheduler interface {
	Reschedule(ctx context.Context, states map[string]action.ProfileState) error
}

// RemotePusher sends local changes to the remote backend.
type RemotePusher interface {
	PushActions(ctx context.Context, profileID string, upserts []action.Snapshot, deletedIDs []string) error
}

// ActivityLogger records audit entries.
type ActivityLogger interface {
	LogActivity(ctx context.Context, entry *activity.ActivityEntry) error
}

// Subscriber hands out change event streams.
type Subscriber interface {
	Subscribe() (<-chan changefeed.Event, func())
}
