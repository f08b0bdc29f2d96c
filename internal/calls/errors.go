package calls

import "errors"

var (
	// ErrInvalidTransition is returned when the requested status is not
	// reachable from the session's current status. Surfaced as a conflict.
	ErrInvalidTransition = errors.New("calls: invalid transition")

	ErrUnauthorized = errors.New("calls: not a participant")
	ErrNotFound     = errors.New("calls: not found")

	ErrCallerBusy    = errors.New("calls: caller busy")
	ErrRecipientBusy = errors.New("calls: recipient busy")

	// ErrCallInfrastructure covers room/token creation and recorder failures.
	ErrCallInfrastructure = errors.New("calls: call infrastructure error")

	ErrInvalidArgument = errors.New("calls: invalid argument")
	ErrCallNotActive   = errors.New("calls: call not active")
)
