package chat

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRoomNotApproved signals the room is unknown, still pending, or
	// was denied. Surfaced as a not-found-style response.
	ErrRoomNotApproved = errors.New("room not approved")

	// ErrNotFound signals a message id with no row behind it.
	ErrNotFound = errors.New("message not found")

	// ErrForbidden signals a failed delete authorization.
	ErrForbidden = errors.New("forbidden")

	// ErrRequestNotFound signals an approval or denial token referring
	// to a room with no pending record.
	ErrRequestNotFound = errors.New("room request not found")

	// ErrTokenInvalid covers both expired and corrupted capability
	// tokens. The underlying cause is logged, never returned.
	ErrTokenInvalid = errors.New("invalid or expired token")
)

// ValidationError reports the required fields missing from a request.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// VerificationRequiredError is returned when a message arrives from an
// unverified device. It is a distinguishable outcome, not a failure:
// the client retries after the user confirms via the emailed link.
type VerificationRequiredError struct {
	DeviceId string
}

func (e *VerificationRequiredError) Error() string {
	return fmt.Sprintf("device %q requires email verification", e.DeviceId)
}
