package activity

// ListActivityOptions provides filtering options for listing activity.
type ListActivityOptions struct {
	ProfileID    string
	ActionID     *string
	ActivityType *ActivityType
	Limit        int
	Offset       int
}
