package calls

import (
	"context"
	"time"

	"voice-platform/internal/events"
)

// Store is the durable record store. It is the single source of truth for
// session status.
type Store interface {
	Get(ctx context.Context, callID string) (CallSession, error)

	// Create persists a new session and claims both participants.
	// Returns ErrCallerBusy / ErrRecipientBusy if a participant already
	// has a non-terminal session.
	Create(ctx context.Context, s CallSession) error

	// CompareAndSetStatus writes next only if the stored status is one of
	// expected. Returns false (and no error) when the guard did not match.
	// A terminal next releases both participants in the same write.
	CompareAndSetStatus(ctx context.Context, callID string, expected []Status, next CallSession) (bool, error)

	FindActiveByParticipant(ctx context.Context, userID string) ([]CallSession, error)

	// FindStale returns non-terminal sessions last updated before cutoff,
	// plus initiated/ringing sessions whose ring deadline is at or before now.
	FindStale(ctx context.Context, cutoff, now time.Time, limit int) ([]CallSession, error)

	// Touch bumps updated_at on a non-terminal session.
	Touch(ctx context.Context, callID string, now time.Time) error

	ListByParticipant(ctx context.Context, userID string, from, to time.Time) ([]CallSession, error)
}

// Cache is the ephemeral session cache. Never authoritative.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	// DeleteIfEquals removes key only while it still holds value.
	DeleteIfEquals(ctx context.Context, key string, value []byte) (bool, error)
}

// Directory resolves dialed numbers to registered users.
type Directory interface {
	LookupByPhone(ctx context.Context, phoneNumber string) (userID string, ok bool, err error)
	DisplayName(ctx context.Context, userID string) (string, error)
}

// TokenProvider creates the media room for a call. Opaque to this package.
type TokenProvider interface {
	CreateRoom(ctx context.Context, callID, callerID, calleeID string) (Room, error)
}

type RecordingOptions struct {
	CallType    CallType
	RequestedBy string
}

// Recorder starts and stops cloud recordings for a call.
type Recorder interface {
	Start(ctx context.Context, callID, channelName string, opts RecordingOptions) (string, error)
	StopByCallID(ctx context.Context, callID string) error
	Active(ctx context.Context, callID string) (RecordingHandle, bool, error)
}

// Notifier delivers an event to one user. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, userID string, e events.Event) error
}

// Timers arms and disarms per-call ring timers. Both operations are
// idempotent: re-arming replaces, disarming an unknown id is a no-op.
type Timers interface {
	Arm(callID string, d time.Duration, fn func())
	Disarm(callID string) bool
}

// Auditor records committed transitions. Best-effort.
type Auditor interface {
	LogTransition(ctx context.Context, callID, actorUserID, from, to, reason string) error
}
