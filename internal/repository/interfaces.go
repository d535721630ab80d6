package repository

import (
	"context"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/actionlog"
	"github.com/rpggio/lullaby/internal/domain/activity"
)

// ActionRepository manages action persistence and deletion tombstones
type ActionRepository interface {
	ListByProfile(ctx context.Context, profileID string) ([]action.Snapshot, error)
	ListAll(ctx context.Context) ([]action.Snapshot, error)
	Apply(ctx context.Context, profileID string, changes actionlog.ChangeSet) error
	ListTombstones(ctx context.Context, profileID string) ([]action.Tombstone, error)
	ClearTombstones(ctx context.Context, profileID string, actionIDs []string) error
}

// ActivityRepository manages activity log persistence
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
	List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// APIKeyRepository resolves hashed bearer tokens to caregiver identities
type APIKeyRepository interface {
	CaregiverForKey(ctx context.Context, keyHash string) (string, error)
	Create(ctx context.Context, keyHash, caregiverID, description string) error
}
