package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/profile"
	"github.com/rpggio/lullaby/internal/exchange"
	"github.com/rpggio/lullaby/internal/remotesync"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var (
	errSyncDisabled   = &APIError{Code: "SYNC_DISABLED", Message: "remote sync is not configured", RecoveryHint: "Set LULLABY_SYNC_ENABLED"}
	errActionNotFound = &APIError{Code: "ACTION_NOT_FOUND", Message: "action not found", RecoveryHint: "Call get_state for current ids"}
)

func invalidInput(format string, args ...any) *APIError {
	return &APIError{Code: "INVALID_INPUT", Message: fmt.Sprintf(format, args...)}
}

// MapError maps domain errors to MCP error codes. Unknown errors are
// returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, profile.ErrProfileNotFound):
		return &APIError{Code: "PROFILE_NOT_FOUND", Message: "profile not found", RecoveryHint: "Call list_profiles"}
	case errors.Is(err, profile.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, action.ErrUnknownCategory):
		return &APIError{Code: "UNKNOWN_CATEGORY", Message: "unknown action category", RecoveryHint: "Use sleep, feeding or diaper"}
	case errors.Is(err, action.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, exchange.ErrInvalidDocument):
		return &APIError{Code: "INVALID_DOCUMENT", Message: err.Error(), RecoveryHint: "Pass a document produced by export_state"}
	case errors.Is(err, remotesync.ErrSyncInProgress):
		return &APIError{Code: "SYNC_IN_PROGRESS", Message: "a sync pass is already running", RecoveryHint: "Check sync_status"}
	case errors.Is(err, remotesync.ErrConflict):
		return &APIError{Code: "CONFLICT", Message: "remote rejected the batch", RecoveryHint: "Retry sync_now"}
	default:
		return err
	}
}
