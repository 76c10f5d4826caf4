package shared

import (
	"fmt"

	"github.com/sentinel-ops/sentinel/internal/platform/db"
	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = fmt.Errorf("record %w", httpx.ErrNotFound)
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", httpx.ErrUnauthorized)
	// ErrForbidden indicates the principal lacks the role or scope for an action.
	ErrForbidden = fmt.Errorf("action not permitted: %w", httpx.ErrForbidden)
	// ErrConflict indicates a concurrent modification.
	ErrConflict = fmt.Errorf("record changed concurrently: %w", httpx.ErrConflict)
)

// ConflictOnRace turns a Postgres serialization failure into ErrConflict so a
// write that lost a race reports 409. Other errors pass through unchanged.
func ConflictOnRace(err error) error {
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// ValidationError carries a message that is safe to show to end users.
type ValidationError struct {
	Message string
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Message
}

// UserMessage returns the message without the error prefix.
func (e *ValidationError) UserMessage() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return httpx.ErrValidation
}
