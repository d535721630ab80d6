package action

import "errors"

var (
	// ErrUnknownCategory indicates a category outside sleep, diaper and feeding.
	ErrUnknownCategory = errors.New("unknown action category")
	// ErrInvalidInput indicates a malformed action request.
	ErrInvalidInput = errors.New("invalid action input")
)
