package audit

import "time"

// Event is an immutable, append-only record of one call status transition.
//
// Invariants:
// - Events are never updated or deleted.
// - call_id and to_status are required.
// - Capture is best-effort; call flows never block on audit failures.
type Event struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	// ActorUserID is the participant who caused the transition. Empty for
	// system-driven transitions (ring timeout, sweep).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`

	// FromStatus is empty for the creation record.
	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status" db:"to_status"`
	Reason     string `json:"reason,omitempty" db:"reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// System reports whether the transition had no user actor.
func (e Event) System() bool { return e.ActorUserID == "" }
