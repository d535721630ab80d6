package mocks

import (
	"context"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/actionlog"
	"github.com/rpggio/lullaby/internal/domain/activity"
	"github.com/rpggio/lullaby/internal/domain/profile"
	"github.com/stretchr/testify/mock"
)

// ProfileRepository is a mock for profile.Repository.
type ProfileRepository struct {
	mock.Mock
}

func (m *ProfileRepository) Create(ctx context.Context, p *profile.Profile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *ProfileRepository) Get(ctx context.Context, id string) (*profile.Profile, error) {
	args := m.Called(ctx, id)
	if p, ok := args.Get(0).(*profile.Profile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProfileRepository) List(ctx context.Context) ([]profile.Profile, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]profile.Profile); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProfileRepository) Update(ctx context.Context, p *profile.Profile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

// ActionRepository is a mock for repository.ActionRepository.
type ActionRepository struct {
	mock.Mock
}

func (m *ActionRepository) ListByProfile(ctx context.Context, profileID string) ([]action.Snapshot, error) {
	args := m.Called(ctx, profileID)
	if list, ok := args.Get(0).([]action.Snapshot); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ActionRepository) ListAll(ctx context.Context) ([]action.Snapshot, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]action.Snapshot); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ActionRepository) Apply(ctx context.Context, profileID string, changes actionlog.ChangeSet) error {
	args := m.Called(ctx, profileID, changes)
	return args.Error(0)
}

func (m *ActionRepository) ListTombstones(ctx context.Context, profileID string) ([]action.Tombstone, error) {
	args := m.Called(ctx, profileID)
	if list, ok := args.Get(0).([]action.Tombstone); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ActionRepository) ClearTombstones(ctx context.Context, profileID string, actionIDs []string) error {
	args := m.Called(ctx, profileID, actionIDs)
	return args.Error(0)
}

// ActivityRepository is a mock for repository.ActivityRepository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, entry *activity.ActivityEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]activity.ActivityEntry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// APIKeyRepository is a mock for repository.APIKeyRepository.
type APIKeyRepository struct {
	mock.Mock
}

func (m *APIKeyRepository) CaregiverForKey(ctx context.Context, keyHash string) (string, error) {
	args := m.Called(ctx, keyHash)
	return args.String(0), args.Error(1)
}

func (m *APIKeyRepository) Create(ctx context.Context, keyHash, caregiverID, description string) error {
	args := m.Called(ctx, keyHash, caregiverID, description)
	return args.Error(0)
}
