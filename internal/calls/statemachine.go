package calls

import (
	"fmt"
	"time"
)

// transitions lists the legal successors of each non-terminal status.
// Terminal statuses have no entry.
//
// initiated/ringing -> ended covers the caller hanging up before an answer.
// initiated -> rejected/missed covers a callee whose device never acked the ring.
var transitions = map[Status][]Status{
	StatusInitiated: {StatusRinging, StatusActive, StatusRejected, StatusMissed, StatusFailed, StatusEnded},
	StatusRinging:   {StatusActive, StatusRejected, StatusMissed, StatusFailed, StatusEnded},
	StatusActive:    {StatusEnded},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition applies a status change to a copy of s and returns it.
// It performs no I/O; callers persist the result with a compare-and-set
// guarded by s.Status.
//
// Side effects bound to the status write:
// - entering active sets ConnectedAt if unset
// - entering a terminal status sets EndTime if unset and clears RingDeadline
// - entering ended with ConnectedAt and EndTime computes DurationSeconds once
func Transition(s CallSession, to Status, now time.Time) (CallSession, error) {
	if s.Status.IsTerminal() {
		return CallSession{}, fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, s.Status)
	}
	if !CanTransition(s.Status, to) {
		return CallSession{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}

	now = now.UTC()
	next := s
	next.Metadata = cloneMetadata(s.Metadata)
	next.Status = to
	next.UpdatedAt = now

	if to == StatusActive {
		if next.ConnectedAt == nil {
			t := now
			next.ConnectedAt = &t
		}
		next.RingDeadline = nil
	}

	if to.IsTerminal() {
		if next.EndTime == nil {
			t := now
			next.EndTime = &t
		}
		next.RingDeadline = nil
	}

	if to == StatusEnded && next.ConnectedAt != nil && next.EndTime != nil && next.DurationSeconds == nil {
		d := durationSeconds(*next.ConnectedAt, *next.EndTime)
		next.DurationSeconds = &d
	}

	return next, nil
}

// ValidQualityScore reports whether score is within the 1..5 rating scale.
func ValidQualityScore(score int) bool {
	return score >= 1 && score <= 5
}

func durationSeconds(connectedAt, endTime time.Time) int {
	d := endTime.Sub(connectedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
