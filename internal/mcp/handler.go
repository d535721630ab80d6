package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/activity"
	"github.com/rpggio/lullaby/internal/domain/profile"
	"github.com/rpggio/lullaby/internal/exchange"
	"github.com/rpggio/lullaby/internal/reminder"
	"github.com/rpggio/lullaby/internal/remotesync"
)

// ProfileService defines profile operations needed by MCP.
type ProfileService interface {
	Create(ctx context.Context, req profile.CreateRequest) (*profile.Profile, error)
	Get(ctx context.Context, id string) (*profile.Profile, error)
	List(ctx context.Context) ([]profile.Profile, error)
	Rename(ctx context.Context, id, name string) (*profile.Profile, error)
}

// ActionStore defines action log operations needed by MCP.
type ActionStore interface {
	State(ctx context.Context, profileID string) (action.ProfileState, error)
	StartAction(ctx context.Context, profileID string, req action.StartRequest) (action.Snapshot, error)
	StopAction(ctx context.Context, profileID string, category action.Category) (bool, error)
	StopActionByID(ctx context.Context, profileID, id string) (bool, error)
	UpdateAction(ctx context.Context, profileID string, edited action.Snapshot) (bool, error)
	ContinueAction(ctx context.Context, profileID, id string) (bool, error)
	DeleteAction(ctx context.Context, profileID, id string) (bool, error)
	MergeProfileState(ctx context.Context, profileID string, imported action.ProfileState) (action.MergeSummary, error)
}

// ActivityService defines activity operations needed by MCP.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Syncer defines remote sync operations needed by MCP.
type Syncer interface {
	SyncOnce(ctx context.Context) error
	Status() remotesync.Status
}

// ReminderPlanner exposes the current reminder plan.
type ReminderPlanner interface {
	Upcoming() []reminder.Reminder
	Due(now time.Time) []reminder.Reminder
}

// Handler implements the MCP tools over the domain services.
type Handler struct {
	profiles  ProfileService
	actions   ActionStore
	activity  ActivityService
	syncer    Syncer
	reminders ReminderPlanner
	now       func() time.Time
}

// NewHandler creates a new MCP handler. Sync and Reminders may be nil.
func NewHandler(s Services) *Handler {
	return &Handler{
		profiles:  s.Profiles,
		actions:   s.Actions,
		activity:  s.Activity,
		syncer:    s.Sync,
		reminders: s.Reminders,
		now:       time.Now,
	}
}

func (h *Handler) ListProfiles(ctx context.Context) (ProfilesResponse, error) {
	list, err := h.profiles.List(ctx)
	if err != nil {
		return ProfilesResponse{}, MapError(err)
	}
	if list == nil {
		list = []profile.Profile{}
	}
	return ProfilesResponse{Profiles: list}, nil
}

func (h *Handler) CreateProfile(ctx context.Context, p CreateProfileParams) (*profile.Profile, error) {
	req := profile.CreateRequest{ID: p.ID, Name: p.Name}
	if p.BirthDate != "" {
		birth, err := time.Parse(time.DateOnly, p.BirthDate)
		if err != nil {
			return nil, invalidInput("birth_date must be YYYY-MM-DD")
		}
		req.BirthDate = &birth
	}
	created, err := h.profiles.Create(ctx, req)
	return created, MapError(err)
}

func (h *Handler) RenameProfile(ctx context.Context, p RenameProfileParams) (*profile.Profile, error) {
	renamed, err := h.profiles.Rename(ctx, p.ProfileID, p.Name)
	return renamed, MapError(err)
}

func (h *Handler) GetState(ctx context.Context, p ProfileParams) (StateResponse, error) {
	state, err := h.profileState(ctx, p.ProfileID)
	if err != nil {
		return StateResponse{}, err
	}
	return stateResponse(p.ProfileID, state, h.now()), nil
}

func (h *Handler) StartAction(ctx context.Context, p StartActionParams) (StartActionResponse, error) {
	if err := h.requireProfile(ctx, p.ProfileID); err != nil {
		return StartActionResponse{}, err
	}
	category, err := action.ParseCategory(p.Category)
	if err != nil {
		return StartActionResponse{}, MapError(err)
	}
	req := action.StartRequest{
		Category:     category,
		DiaperType:   action.DiaperType(p.DiaperType),
		FeedingType:  action.FeedingType(p.FeedingType),
		BottleType:   action.BottleType(p.BottleType),
		BottleVolume: p.BottleVolume,
	}
	if req.StartDate, err = parseOptionalTime("start_date", p.StartDate); err != nil {
		return StartActionResponse{}, err
	}
	if p.Latitude != nil || p.Longitude != nil {
		if p.Latitude == nil || p.Longitude == nil {
			return StartActionResponse{}, invalidInput("latitude and longitude must be set together")
		}
		req.Location = &action.Location{Latitude: *p.Latitude, Longitude: *p.Longitude, PlaceName: p.PlaceName}
	}

	snap, err := h.actions.StartAction(ctx, p.ProfileID, req)
	if err != nil {
		return StartActionResponse{}, MapError(err)
	}
	return StartActionResponse{Action: snap}, nil
}

func (h *Handler) StopAction(ctx context.Context, p StopActionParams) (ChangedResponse, error) {
	if err := h.requireProfile(ctx, p.ProfileID); err != nil {
		return ChangedResponse{}, err
	}
	var (
		changed bool
		err     error
	)
	switch {
	case p.ID != "":
		changed, err = h.actions.StopActionByID(ctx, p.ProfileID, p.ID)
	case p.Category != "":
		category, perr := action.ParseCategory(p.Category)
		if perr != nil {
			return ChangedResponse{}, MapError(perr)
		}
		changed, err = h.actions.StopAction(ctx, p.ProfileID, category)
	default:
		return ChangedResponse{}, invalidInput("either category or id is required")
	}
	return ChangedResponse{Changed: changed}, MapError(err)
}

func (h *Handler) UpdateAction(ctx context.Context, p UpdateActionParams) (ChangedResponse, error) {
	state, err := h.profileState(ctx, p.ProfileID)
	if err != nil {
		return ChangedResponse{}, err
	}
	edited, ok := state.Find(p.ID)
	if !ok {
		return ChangedResponse{}, errActionNotFound
	}

	if start, err := parseOptionalTime("start_date", p.StartDate); err != nil {
		return ChangedResponse{}, err
	} else if start != nil {
		edited.StartDate = *start
	}
	if end, err := parseOptionalTime("end_date", p.EndDate); err != nil {
		return ChangedResponse{}, err
	} else if end != nil {
		edited.EndDate = end
	}
	if p.DiaperType != "" {
		edited.DiaperType = action.DiaperType(p.DiaperType)
	}
	if p.FeedingType != "" {
		edited.FeedingType = action.FeedingType(p.FeedingType)
	}
	if p.BottleType != "" {
		edited.BottleType = action.BottleType(p.BottleType)
	}
	if p.BottleVolume != nil {
		edited.BottleVolume = p.BottleVolume
	}

	changed, err := h.actions.UpdateAction(ctx, p.ProfileID, edited)
	return ChangedResponse{Changed: changed}, MapError(err)
}

func (h *Handler) ContinueAction(ctx context.Context, p ActionRefParams) (ChangedResponse, error) {
	if err := h.requireProfile(ctx, p.ProfileID); err != nil {
		return ChangedResponse{}, err
	}
	changed, err := h.actions.ContinueAction(ctx, p.ProfileID, p.ID)
	return ChangedResponse{Changed: changed}, MapError(err)
}

func (h *Handler) DeleteAction(ctx context.Context, p ActionRefParams) (ChangedResponse, error) {
	if err := h.requireProfile(ctx, p.ProfileID); err != nil {
		return ChangedResponse{}, err
	}
	changed, err := h.actions.DeleteAction(ctx, p.ProfileID, p.ID)
	return ChangedResponse{Changed: changed}, MapError(err)
}

func (h *Handler) MergeState(ctx context.Context, p MergeStateParams) (MergeResponse, error) {
	if err := h.requireProfile(ctx, p.ProfileID); err != nil {
		return MergeResponse{}, err
	}
	if p.Document == nil {
		return MergeResponse{}, invalidInput("document is required")
	}
	raw, err := json.Marshal(p.Document)
	if err != nil {
		return MergeResponse{}, invalidInput("document: %v", err)
	}
	doc, err := exchange.Decode(bytes.NewReader(raw))
	if err != nil {
		return MergeResponse{}, MapError(err)
	}
	summary, err := h.actions.MergeProfileState(ctx, p.ProfileID, doc.State())
	if err != nil {
		return MergeResponse{}, MapError(err)
	}
	return MergeResponse{MergeSummary: summary}, nil
}

func (h *Handler) ExportState(ctx context.Context, p ProfileParams) (exchange.Document, error) {
	state, err := h.profileState(ctx, p.ProfileID)
	if err != nil {
		return exchange.Document{}, err
	}
	return exchange.Export(p.ProfileID, state, h.now()), nil
}

func (h *Handler) GetRecentActivity(ctx context.Context, p GetRecentActivityParams) (ActivityResponse, error) {
	opts := activity.ListActivityOptions{
		ProfileID: p.ProfileID,
		Limit:     p.Limit,
		Offset:    p.Offset,
	}
	if p.ActionID != "" {
		opts.ActionID = &p.ActionID
	}
	if p.Type != "" {
		kind := activity.ActivityType(strings.TrimSpace(p.Type))
		opts.ActivityType = &kind
	}
	entries, err := h.activity.GetRecentActivity(ctx, opts)
	if err != nil {
		return ActivityResponse{}, MapError(err)
	}
	if entries == nil {
		entries = []activity.ActivityEntry{}
	}
	return ActivityResponse{Entries: entries}, nil
}

func (h *Handler) SyncNow(ctx context.Context) (remotesync.Status, error) {
	if h.syncer == nil {
		return remotesync.Status{}, errSyncDisabled
	}
	if err := h.syncer.SyncOnce(ctx); err != nil {
		return h.syncer.Status(), MapError(err)
	}
	return h.syncer.Status(), nil
}

func (h *Handler) SyncStatus(context.Context) (remotesync.Status, error) {
	if h.syncer == nil {
		return remotesync.Status{}, errSyncDisabled
	}
	return h.syncer.Status(), nil
}

func (h *Handler) UpcomingReminders(ctx context.Context, p RemindersParams) (RemindersResponse, error) {
	out := []reminder.Reminder{}
	if p.ProfileID != "" {
		if err := h.requireProfile(ctx, p.ProfileID); err != nil {
			return RemindersResponse{}, err
		}
	}
	if h.reminders == nil {
		return RemindersResponse{Reminders: out}, nil
	}

	plan := h.reminders.Upcoming()
	if p.DueOnly {
		plan = h.reminders.Due(h.now())
	}
	for _, r := range plan {
		if p.ProfileID == "" || r.ProfileID == p.ProfileID {
			out = append(out, r)
		}
	}
	return RemindersResponse{Reminders: out}, nil
}

func (h *Handler) requireProfile(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalidInput("profile_id is required")
	}
	if _, err := h.profiles.Get(ctx, id); err != nil {
		return MapError(err)
	}
	return nil
}

func (h *Handler) profileState(ctx context.Context, id string) (action.ProfileState, error) {
	if err := h.requireProfile(ctx, id); err != nil {
		return action.ProfileState{}, err
	}
	state, err := h.actions.State(ctx, id)
	if err != nil {
		return action.ProfileState{}, MapError(err)
	}
	return state, nil
}

func parseOptionalTime(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, invalidInput("%s must be RFC 3339", field)
	}
	return &t, nil
}
