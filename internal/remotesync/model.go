// Package remotesync keeps the local action log and profiles in step with a
// remote backend using last-writer-wins.
package remotesync

import (
	"context"
	"time"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/profile"
)

// RemoteProfile is a profile as stored by the backend.
type RemoteProfile struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  time.Time  `json:"edited_at"`
}

// RemoteAction is an action as stored by the backend.
type RemoteAction struct {
	ID           string     `json:"id"`
	ProfileID    string     `json:"profile_id"`
	Category     string     `json:"category"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	DiaperType   string     `json:"diaper_type,omitempty"`
	FeedingType  string     `json:"feeding_type,omitempty"`
	BottleType   string     `json:"bottle_type,omitempty"`
	BottleVolume *int       `json:"bottle_volume_ml,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	PlaceName    string     `json:"place_name,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Backend is the remote side of synchronization.
type Backend interface {
	FetchProfiles(ctx context.Context) ([]RemoteProfile, error)
	FetchActions(ctx context.Context) ([]RemoteAction, error)
	SyncProfiles(ctx context.Context, upserts []RemoteProfile) error
	SyncActions(ctx context.Context, profileID string, upserts []RemoteAction, deleteIDs []string) error
}

func profileToRemote(p profile.Profile) RemoteProfile {
	return RemoteProfile{ID: p.ID, Name: p.Name, BirthDate: p.BirthDate, CreatedAt: p.CreatedAt, EditedAt: p.EditedAt}
}

func profileFromRemote(r RemoteProfile) profile.Profile {
	return profile.Profile{ID: r.ID, Name: r.Name, BirthDate: r.BirthDate, CreatedAt: r.CreatedAt, EditedAt: r.EditedAt}
}

// ActionToRemote converts a local snapshot.
func ActionToRemote(s action.Snapshot) RemoteAction {
	r := RemoteAction{
		ID:           s.ID,
		ProfileID:    s.ProfileID,
		Category:     string(s.Category),
		StartDate:    s.StartDate,
		EndDate:      s.EndDate,
		DiaperType:   string(s.DiaperType),
		FeedingType:  string(s.FeedingType),
		BottleType:   string(s.BottleType),
		BottleVolume: s.BottleVolume,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.Location != nil {
		lat, lon := s.Location.Latitude, s.Location.Longitude
		r.Latitude, r.Longitude = &lat, &lon
		r.PlaceName = s.Location.PlaceName
	}
	return r
}

// Snapshot converts a remote action. Unknown categories are reported as not
// ok and skipped by the syncer.
func (r RemoteAction) Snapshot() (action.Snapshot, bool) {
	c, err := action.ParseCategory(r.Category)
	if err != nil {
		return action.Snapshot{}, false
	}
	s := action.Snapshot{
		ID:           r.ID,
		ProfileID:    r.ProfileID,
		Category:     c,
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		DiaperType:   action.DiaperType(r.DiaperType),
		FeedingType:  action.FeedingType(r.FeedingType),
		BottleType:   action.BottleType(r.BottleType),
		BottleVolume: r.BottleVolume,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.Latitude != nil && r.Longitude != nil {
		s.Location = &action.Location{Latitude: *r.Latitude, Longitude: *r.Longitude, PlaceName: r.PlaceName}
	}
	return s, true
}

func actionsToRemote(list []action.Snapshot) []RemoteAction {
	out := make([]RemoteAction, 0, len(list))
	for _, s := range list {
		out = append(out, ActionToRemote(s))
	}
	return out
}
