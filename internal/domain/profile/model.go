package profile

import "time"

// Profile is a tracked child. All action state is partitioned by profile.
type Profile struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  time.Time  `json:"edited_at"`
}
