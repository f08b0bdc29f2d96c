package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"voice-platform/internal/events"
)

type fakeChannel struct {
	connected map[string]bool
	sent      []string
}

func (c *fakeChannel) IsConnected(userID string) bool { return c.connected[userID] }

func (c *fakeChannel) Send(userID string, e events.Event) bool {
	if !c.connected[userID] {
		return false
	}
	c.sent = append(c.sent, userID)
	return true
}

type fakePush struct {
	res   PushResult
	err   error
	calls int
}

func (p *fakePush) Send(ctx context.Context, userID string, e events.Event) (PushResult, error) {
	p.calls++
	return p.res, p.err
}

type fakeTargets struct {
	mu      sync.Mutex
	tokens  map[string][]string
	failErr error
}

func (f *fakeTargets) RemovePushTargets(ctx context.Context, userID string, tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	drop := map[string]bool{}
	for _, t := range tokens {
		drop[t] = true
	}
	var keep []string
	for _, t := range f.tokens[userID] {
		if !drop[t] {
			keep = append(keep, t)
		}
	}
	f.tokens[userID] = keep
	return nil
}

func incoming() events.Event {
	return events.Event{Type: events.TypeIncomingCall, CallID: "c1", FromUserID: "u1", CallType: "voice"}
}

func TestDeliver_PrefersRealtime(t *testing.T) {
	ch := &fakeChannel{connected: map[string]bool{"u2": true}}
	push := &fakePush{}
	d := NewDispatcher(ch, push, nil, Config{PushEnabled: true}, nil)

	res, err := d.Deliver(context.Background(), "u2", incoming())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Via != ViaRealtime || !res.Delivered {
		t.Fatalf("unexpected result %+v", res)
	}
	if push.calls != 0 {
		t.Fatalf("push must not be used for connected users")
	}
}

func TestDeliver_FallsBackToPushAndRemovesInvalidTargets(t *testing.T) {
	ch := &fakeChannel{connected: map[string]bool{}}
	push := &fakePush{res: PushResult{Delivered: true, InvalidTargets: []string{"stale"}}}
	targets := &fakeTargets{tokens: map[string][]string{"u2": {"good", "stale"}}}
	d := NewDispatcher(ch, push, targets, Config{PushEnabled: true}, nil)

	res, err := d.Deliver(context.Background(), "u2", incoming())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Via != ViaPush || !res.Delivered || res.RemovedTargets != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := targets.tokens["u2"]; len(got) != 1 || got[0] != "good" {
		t.Fatalf("expected stale target removed, got %v", got)
	}
}

func TestNotify_CleanupFailureDoesNotFailNotify(t *testing.T) {
	ch := &fakeChannel{connected: map[string]bool{}}
	push := &fakePush{res: PushResult{InvalidTargets: []string{"stale"}}}
	targets := &fakeTargets{tokens: map[string][]string{}, failErr: errors.New("db down")}
	d := NewDispatcher(ch, push, targets, Config{PushEnabled: true}, nil)

	if err := d.Notify(context.Background(), "u2", incoming()); err != nil {
		t.Fatalf("expected notify to succeed, got %v", err)
	}
}

func TestDeliver_PushDisabled(t *testing.T) {
	push := &fakePush{}
	d := NewDispatcher(&fakeChannel{}, push, nil, Config{PushEnabled: false}, nil)

	res, err := d.Deliver(context.Background(), "u2", incoming())
	if err != nil || res.Via != ViaNone || res.Delivered {
		t.Fatalf("unexpected %+v %v", res, err)
	}
	if push.calls != 0 {
		t.Fatalf("push disabled")
	}
}

func TestDeliver_PushErrorIsReturned(t *testing.T) {
	push := &fakePush{err: errors.New("fcm unavailable")}
	d := NewDispatcher(&fakeChannel{}, push, nil, Config{PushEnabled: true}, nil)
	if err := d.Notify(context.Background(), "u2", incoming()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDeliver_ThrottlesPushPerUser(t *testing.T) {
	push := &fakePush{res: PushResult{Delivered: true}}
	d := NewDispatcher(&fakeChannel{}, push, nil, Config{PushEnabled: true, PushRatePerMinute: 6}, nil)

	ctx := context.Background()
	first, _ := d.Deliver(ctx, "u2", incoming())
	second, _ := d.Deliver(ctx, "u2", incoming())
	other, _ := d.Deliver(ctx, "u3", incoming())

	if first.Throttled || !second.Throttled || other.Throttled {
		t.Fatalf("unexpected throttling %+v %+v %+v", first, second, other)
	}
	if push.calls != 2 {
		t.Fatalf("expected 2 pushes, got %d", push.calls)
	}
}

func TestDeliver_EmptyUser(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, Config{}, nil)
	if _, err := d.Deliver(context.Background(), "", incoming()); err == nil {
		t.Fatalf("expected error")
	}
}
