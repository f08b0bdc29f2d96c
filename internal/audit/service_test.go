package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestService_AppendRequiresCallAndStatus(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{ToStatus: "ringing"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{CallID: "c1"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestService_LogTransitionStampsEvent(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	now := time.Unix(1700000000, 0)
	svc.clock = func() time.Time { return now }

	if err := svc.LogTransition(context.Background(), "c1", "u1", "ringing", "active", ""); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.LogTransition(context.Background(), "c1", "", "active", "ended", "inactive"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].ID == "" || evs[0].ID == evs[1].ID {
		t.Fatalf("expected unique ids")
	}
	if !evs[0].CreatedAt.Equal(now) || evs[0].CreatedAt.Location() != time.UTC {
		t.Fatalf("expected utc clock time, got %v", evs[0].CreatedAt)
	}
	if evs[0].System() || !evs[1].System() {
		t.Fatalf("unexpected actor classification")
	}
	if evs[1].Reason != "inactive" {
		t.Fatalf("expected reason captured")
	}
}

func TestService_History(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_ = svc.LogTransition(ctx, "c1", "u1", "", "initiated", "")
	_ = svc.LogTransition(ctx, "c2", "u2", "", "initiated", "")
	_ = svc.LogTransition(ctx, "c1", "u2", "initiated", "ringing", "")

	hist, err := svc.History(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(hist) != 2 || hist[1].ToStatus != "ringing" {
		t.Fatalf("unexpected history %+v", hist)
	}
	if _, err := svc.History(ctx, ""); err == nil {
		t.Fatalf("expected error for empty call id")
	}
}
