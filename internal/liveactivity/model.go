// Package liveactivity projects the running actions of a profile into the
// small read-only view shown on lock screens and widgets.
package liveactivity

import (
	"time"

	"github.com/rpggio/lullaby/internal/domain/action"
)

// ActiveAction is one running action as displayed.
type ActiveAction struct {
	ID          string          `json:"id"`
	Category    action.Category `json:"category"`
	Title       string          `json:"title"`
	SubtypeWord string          `json:"subtype_word,omitempty"`
	StartDate   time.Time       `json:"start_date"`
	Icon        string          `json:"icon"`
}

// Update is the full projection for one profile. An update with no actions
// ends the live activity.
type Update struct {
	ProfileID   string         `json:"profile_id"`
	ProfileName string         `json:"profile_name"`
	Actions     []ActiveAction `json:"actions"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Ended reports whether nothing is running.
func (u Update) Ended() bool {
	return len(u.Actions) == 0
}

// sameContent compares everything but GeneratedAt.
func (u Update) sameContent(other Update) bool {
	if u.ProfileID != other.ProfileID || u.ProfileName != other.ProfileName || len(u.Actions) != len(other.Actions) {
		return false
	}
	for i := range u.Actions {
		a, b := u.Actions[i], other.Actions[i]
		if a.ID != b.ID || a.Category != b.Category || a.Title != b.Title ||
			a.SubtypeWord != b.SubtypeWord || a.Icon != b.Icon || !a.StartDate.Equal(b.StartDate) {
			return false
		}
	}
	return true
}

// Project builds the update for a profile state. Actions follow the fixed
// category order.
func Project(profileID, profileName string, state action.ProfileState, now time.Time) Update {
	u := Update{ProfileID: profileID, ProfileName: profileName, Actions: []ActiveAction{}, GeneratedAt: now}
	for _, c := range action.Categories {
		s, ok := state.Active[c]
		if !ok {
			continue
		}
		u.Actions = append(u.Actions, ActiveAction{
			ID:          s.ID,
			Category:    s.Category,
			Title:       Title(s.Category),
			SubtypeWord: SubtypeWord(s),
			StartDate:   s.StartDate,
			Icon:        Icon(s),
		})
	}
	return u
}

// Title is the display name of a category.
func Title(c action.Category) string {
	switch c {
	case action.CategorySleep:
		return "Sleep"
	case action.CategoryFeeding:
		return "Feeding"
	case action.CategoryDiaper:
		return "Diaper"
	}
	return string(c)
}

// SubtypeWord is the short qualifier shown next to the title.
func SubtypeWord(s action.Snapshot) string {
	switch s.FeedingType {
	case action.FeedingBreastLeft:
		return "Left"
	case action.FeedingBreastRight:
		return "Right"
	case action.FeedingSolids:
		return "Solids"
	case action.FeedingBottle:
		switch s.BottleType {
		case action.BottleFormula:
			return "Formula"
		case action.BottleBreastMilk:
			return "Breast milk"
		case action.BottleCowMilk:
			return "Milk"
		}
		return "Bottle"
	}
	return ""
}

// Icon returns a stable icon identifier.
func Icon(s action.Snapshot) string {
	switch s.Category {
	case action.CategorySleep:
		return "moon.zzz"
	case action.CategoryDiaper:
		return "drop"
	case action.CategoryFeeding:
		switch s.FeedingType {
		case action.FeedingBottle:
			return "bottle"
		case action.FeedingSolids:
			return "spoon"
		}
		return "breast"
	}
	return "circle"
}
