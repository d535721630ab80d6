package mcp

import (
	"time"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/activity"
	"github.com/rpggio/lullaby/internal/domain/profile"
	"github.com/rpggio/lullaby/internal/reminder"
)

type ListProfilesParams struct{}

type CreateProfileParams struct {
	ID        string `json:"id,omitempty" jsonschema:"profile identifier, generated when omitted"`
	Name      string `json:"name" jsonschema:"child's display name"`
	BirthDate string `json:"birth_date,omitempty" jsonschema:"birth date as YYYY-MM-DD"`
}

type RenameProfileParams struct {
	ProfileID string `json:"profile_id"`
	Name      string `json:"name"`
}

type ProfileParams struct {
	ProfileID string `json:"profile_id"`
}

type StartActionParams struct {
	ProfileID    string   `json:"profile_id"`
	Category     string   `json:"category" jsonschema:"sleep, feeding or diaper"`
	StartDate    string   `json:"start_date,omitempty" jsonschema:"RFC 3339 start time, defaults to now"`
	DiaperType   string   `json:"diaper_type,omitempty" jsonschema:"pee, poo or both"`
	FeedingType  string   `json:"feeding_type,omitempty" jsonschema:"breast_left, breast_right, bottle or solids"`
	BottleType   string   `json:"bottle_type,omitempty" jsonschema:"formula, breast_milk or cow_milk"`
	BottleVolume *int     `json:"bottle_volume_ml,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	PlaceName    string   `json:"place_name,omitempty"`
}

type StopActionParams struct {
	ProfileID string `json:"profile_id"`
	Category  string `json:"category,omitempty" jsonschema:"stop the running action of this category"`
	ID        string `json:"id,omitempty" jsonschema:"stop the running action with this id"`
}

type UpdateActionParams struct {
	ProfileID    string `json:"profile_id"`
	ID           string `json:"id"`
	StartDate    string `json:"start_date,omitempty" jsonschema:"RFC 3339"`
	EndDate      string `json:"end_date,omitempty" jsonschema:"RFC 3339"`
	DiaperType   string `json:"diaper_type,omitempty"`
	FeedingType  string `json:"feeding_type,omitempty"`
	BottleType   string `json:"bottle_type,omitempty"`
	BottleVolume *int   `json:"bottle_volume_ml,omitempty"`
}

type ActionRefParams struct {
	ProfileID string `json:"profile_id"`
	ID        string `json:"id"`
}

type MergeStateParams struct {
	ProfileID string         `json:"profile_id" jsonschema:"profile to merge into"`
	Document  map[string]any `json:"document" jsonschema:"document produced by export_state"`
}

type GetRecentActivityParams struct {
	ProfileID string `json:"profile_id,omitempty"`
	ActionID  string `json:"action_id,omitempty"`
	Type      string `json:"type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

type SyncParams struct{}

type RemindersParams struct {
	ProfileID string `json:"profile_id,omitempty" jsonschema:"only reminders for this profile"`
	DueOnly   bool   `json:"due_only,omitempty" jsonschema:"only reminders whose time has come"`
}

type ProfilesResponse struct {
	Profiles []profile.Profile `json:"profiles"`
}

type StateResponse struct {
	ProfileID string            `json:"profile_id"`
	Active    []ActiveResponse  `json:"active"`
	History   []action.Snapshot `json:"history"`
}

type ActiveResponse struct {
	action.Snapshot
	ElapsedSeconds int64 `json:"elapsed_seconds"`
}

type StartActionResponse struct {
	Action action.Snapshot `json:"action"`
}

type ChangedResponse struct {
	Changed bool `json:"changed"`
}

type MergeResponse struct {
	action.MergeSummary
}

type ActivityResponse struct {
	Entries []activity.ActivityEntry `json:"entries"`
}

type RemindersResponse struct {
	Reminders []reminder.Reminder `json:"reminders"`
}

func stateResponse(profileID string, state action.ProfileState, now time.Time) StateResponse {
	resp := StateResponse{
		ProfileID: profileID,
		Active:    []ActiveResponse{},
		History:   state.History,
	}
	if resp.History == nil {
		resp.History = []action.Snapshot{}
	}
	for _, c := range action.Categories {
		snap, ok := state.Active[c]
		if !ok {
			continue
		}
		resp.Active = append(resp.Active, ActiveResponse{
			Snapshot:       snap,
			ElapsedSeconds: int64(snap.Duration(now) / time.Second),
		})
	}
	return resp
}
