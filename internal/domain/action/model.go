package action

import "time"

// Category identifies the kind of caregiving event an action records.
type Category string

const (
	CategorySleep   Category = "sleep"
	CategoryDiaper  Category = "diaper"
	CategoryFeeding Category = "feeding"
)

// Categories lists every known category in display order.
var Categories = []Category{CategorySleep, CategoryFeeding, CategoryDiaper}

// IsInstant reports whether actions of this category are logged as a single
// point in time rather than a running interval.
func (c Category) IsInstant() bool {
	return c == CategoryDiaper
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategorySleep, CategoryDiaper, CategoryFeeding:
		return true
	}
	return false
}

// ParseCategory converts user input into a Category.
func ParseCategory(value string) (Category, error) {
	c := Category(value)
	if !c.Valid() {
		return "", ErrUnknownCategory
	}
	return c, nil
}

// DiaperType describes the contents of a diaper change.
type DiaperType string

const (
	DiaperPee  DiaperType = "pee"
	DiaperPoo  DiaperType = "poo"
	DiaperBoth DiaperType = "both"
)

// FeedingType describes how a feeding was given.
type FeedingType string

const (
	FeedingBreastLeft  FeedingType = "breast_left"
	FeedingBreastRight FeedingType = "breast_right"
	FeedingBottle      FeedingType = "bottle"
	FeedingSolids      FeedingType = "solids"
)

// BottleType describes what a bottle contained.
type BottleType string

const (
	BottleFormula    BottleType = "formula"
	BottleBreastMilk BottleType = "breast_milk"
	BottleCowMilk    BottleType = "cow_milk"
)

// Location is where an action was logged.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	PlaceName string  `json:"place_name,omitempty"`
}

// Snapshot is one logged caregiving action.
//
// EndDate is nil only while a duration action is running. UpdatedAt is the
// audit timestamp the conflict resolver orders versions by.
type Snapshot struct {
	ID           string      `json:"id"`
	ProfileID    string      `json:"profile_id"`
	Category     Category    `json:"category"`
	StartDate    time.Time   `json:"start_date"`
	EndDate      *time.Time  `json:"end_date,omitempty"`
	DiaperType   DiaperType  `json:"diaper_type,omitempty"`
	FeedingType  FeedingType `json:"feeding_type,omitempty"`
	BottleType   BottleType  `json:"bottle_type,omitempty"`
	BottleVolume *int        `json:"bottle_volume_ml,omitempty"`
	Location     *Location   `json:"location,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// IsRunning reports whether the action has no end yet.
func (s Snapshot) IsRunning() bool {
	return s.EndDate == nil
}

// Duration returns the elapsed time of a finished action, or the time since
// start measured at now for a running one.
func (s Snapshot) Duration(now time.Time) time.Duration {
	if s.EndDate != nil {
		return s.EndDate.Sub(s.StartDate)
	}
	return now.Sub(s.StartDate)
}

// Clone returns a deep copy so callers never share pointer fields.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.EndDate != nil {
		end := *s.EndDate
		out.EndDate = &end
	}
	if s.BottleVolume != nil {
		v := *s.BottleVolume
		out.BottleVolume = &v
	}
	if s.Location != nil {
		loc := *s.Location
		out.Location = &loc
	}
	return out
}

// ContentEqual compares every attribute except UpdatedAt.
func (s Snapshot) ContentEqual(other Snapshot) bool {
	if s.ID != other.ID || s.ProfileID != other.ProfileID || s.Category != other.Category {
		return false
	}
	if !s.StartDate.Equal(other.StartDate) || !timePtrEqual(s.EndDate, other.EndDate) {
		return false
	}
	if s.DiaperType != other.DiaperType || s.FeedingType != other.FeedingType || s.BottleType != other.BottleType {
		return false
	}
	if !intPtrEqual(s.BottleVolume, other.BottleVolume) {
		return false
	}
	return locationEqual(s.Location, other.Location)
}

// Equal compares every attribute including UpdatedAt.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.ContentEqual(other) && s.UpdatedAt.Equal(other.UpdatedAt)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func locationEqual(a, b *Location) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// MergeSummary counts what an import changed.
type MergeSummary struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// Changed reports whether the merge touched anything.
func (m MergeSummary) Changed() bool {
	return m.Added > 0 || m.Updated > 0
}

// Tombstone records that a persisted action was deleted locally, so the
// deletion can be sent to the remote backend.
type Tombstone struct {
	ActionID  string    `json:"action_id"`
	ProfileID string    `json:"profile_id"`
	DeletedAt time.Time `json:"deleted_at"`
}
