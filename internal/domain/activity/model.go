package activity

import "time"

// ActivityType represents the type of activity event
type ActivityType string

const (
	TypeActionStarted   ActivityType = "action_started"
	TypeActionStopped   ActivityType = "action_stopped"
	TypeActionUpdated   ActivityType = "action_updated"
	TypeActionContinued ActivityType = "action_continued"
	TypeActionDeleted   ActivityType = "action_deleted"
	TypeStateMerged     ActivityType = "state_merged"
	TypeRemoteApplied   ActivityType = "remote_applied"
)

// ActivityEntry represents an event in the activity log
type ActivityEntry struct {
	ID           int64        `json:"id"`
	ProfileID    string       `json:"profile_id"`
	ActionID     *string      `json:"action_id,omitempty"`
	Actor        string       `json:"actor,omitempty"`
	ActivityType ActivityType `json:"type"`
	Summary      string       `json:"summary"`
	Details      string       `json:"details,omitempty"` // JSON string
	CreatedAt    time.Time    `json:"created_at"`
}
