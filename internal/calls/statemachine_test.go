package calls

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	legal := map[Status][]Status{
		StatusInitiated: {StatusRinging, StatusActive, StatusRejected, StatusMissed, StatusFailed, StatusEnded},
		StatusRinging:   {StatusActive, StatusRejected, StatusMissed, StatusFailed, StatusEnded},
		StatusActive:    {StatusEnded},
	}
	all := []Status{StatusInitiated, StatusRinging, StatusActive, StatusEnded, StatusMissed, StatusRejected, StatusFailed}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range legal[from] {
				if s == to {
					want = true
				}
			}
			if got := CanTransition(from, to); got != want {
				t.Fatalf("%s -> %s: got %v want %v", from, to, got, want)
			}
		}
	}
}

func TestTransition_TerminalIsFinal(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	for _, st := range []Status{StatusEnded, StatusMissed, StatusRejected, StatusFailed} {
		_, err := Transition(CallSession{CallID: "c1", Status: st}, StatusEnded, now)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s: expected ErrInvalidTransition, got %v", st, err)
		}
	}
}

func TestTransition_ActiveThenEndedComputesDurationOnce(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	s := CallSession{CallID: "c1", Status: StatusRinging, RingDeadline: ptrTime(start.Add(time.Minute))}

	active, err := Transition(s, StatusActive, start.Add(2*time.Second))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if active.ConnectedAt == nil || !active.ConnectedAt.Equal(start.Add(2*time.Second)) {
		t.Fatalf("expected connectedAt set, got %v", active.ConnectedAt)
	}
	if active.RingDeadline != nil {
		t.Fatalf("expected ring deadline cleared")
	}
	if active.DurationSeconds != nil {
		t.Fatalf("expected no duration while active")
	}

	ended, err := Transition(active, StatusEnded, start.Add(32*time.Second+900*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ended.DurationSeconds == nil || *ended.DurationSeconds != 30 {
		t.Fatalf("expected floor duration 30, got %v", ended.DurationSeconds)
	}
	if ended.EndTime == nil {
		t.Fatalf("expected endTime")
	}

	if _, err := Transition(ended, StatusEnded, start.Add(time.Hour)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected repeated end to be rejected, got %v", err)
	}
}

func TestTransition_UnansweredEndHasNoDuration(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	for _, to := range []Status{StatusMissed, StatusRejected, StatusFailed, StatusEnded} {
		out, err := Transition(CallSession{CallID: "c1", Status: StatusRinging}, to, now)
		if err != nil {
			t.Fatalf("%s: unexpected err: %v", to, err)
		}
		if out.DurationSeconds != nil {
			t.Fatalf("%s: expected no duration", to)
		}
		if out.EndTime == nil || !out.EndTime.Equal(now) {
			t.Fatalf("%s: expected endTime set", to)
		}
	}
}

func TestTransition_NegativeClockSkewClampsToZero(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := CallSession{CallID: "c1", Status: StatusActive, ConnectedAt: ptrTime(now.Add(5 * time.Second))}
	out, err := Transition(s, StatusEnded, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.DurationSeconds == nil || *out.DurationSeconds != 0 {
		t.Fatalf("expected 0, got %v", out.DurationSeconds)
	}
}

func TestTransition_DoesNotAliasMetadata(t *testing.T) {
	s := CallSession{CallID: "c1", Status: StatusInitiated, Metadata: map[string]any{"a": 1}}
	out, err := Transition(s, StatusRinging, time.Now())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	out.Metadata["b"] = 2
	if _, ok := s.Metadata["b"]; ok {
		t.Fatalf("expected metadata copy")
	}
}

func TestValidQualityScore(t *testing.T) {
	for _, q := range []int{1, 3, 5} {
		if !ValidQualityScore(q) {
			t.Fatalf("expected %d valid", q)
		}
	}
	for _, q := range []int{0, 6, -1} {
		if ValidQualityScore(q) {
			t.Fatalf("expected %d invalid", q)
		}
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
