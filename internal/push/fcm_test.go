package push

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"voice-platform/internal/events"

	"firebase.google.com/go/v4/messaging"
)

var errUnregistered = errors.New("unregistered")

type fakeMulticast struct {
	failing map[string]error
	calls   int
	last    *messaging.MulticastMessage
	err     error
}

func (f *fakeMulticast) SendEachForMulticast(ctx context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.calls++
	f.last = m
	if f.err != nil {
		return nil, f.err
	}
	resp := &messaging.BatchResponse{}
	for _, tok := range m.Tokens {
		if err, ok := f.failing[tok]; ok {
			resp.FailureCount++
			resp.Responses = append(resp.Responses, &messaging.SendResponse{Error: err})
			continue
		}
		resp.SuccessCount++
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true, MessageID: "m-" + tok})
	}
	return resp, nil
}

type staticTokens map[string][]string

func (s staticTokens) PushTokens(ctx context.Context, userID string) ([]string, error) {
	return s[userID], nil
}

func newTestProvider(client MulticastClient, tokens TokenSource) *FCMProvider {
	p := NewFCMProvider(client, tokens, 0, nil)
	p.invalid = func(err error) bool { return errors.Is(err, errUnregistered) }
	return p
}

func TestFCMProvider_ReportsInvalidTargets(t *testing.T) {
	client := &fakeMulticast{failing: map[string]error{
		"stale": errUnregistered,
		"flaky": errors.New("quota"),
	}}
	p := newTestProvider(client, staticTokens{"u2": {"good", "stale", "flaky"}})

	evt := events.Event{Type: events.TypeIncomingCall, CallID: "c1", FromUserID: "u1", CallType: "voice"}
	res, err := p.Send(context.Background(), "u2", evt)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !res.Delivered {
		t.Fatalf("expected delivered")
	}
	if len(res.InvalidTargets) != 1 || res.InvalidTargets[0] != "stale" {
		t.Fatalf("expected only stale flagged, got %v", res.InvalidTargets)
	}
	if client.last.Data["call_id"] != "c1" || client.last.Data["type"] != "incoming_call" {
		t.Fatalf("unexpected data %v", client.last.Data)
	}
	if client.last.Android == nil || client.last.Android.Priority != "high" {
		t.Fatalf("expected high priority android config")
	}
}

func TestFCMProvider_AllInvalidIsNotAnError(t *testing.T) {
	client := &fakeMulticast{failing: map[string]error{"a": errUnregistered}}
	p := newTestProvider(client, staticTokens{"u2": {"a"}})

	res, err := p.Send(context.Background(), "u2", events.Event{Type: events.TypeCallStatusChange, CallID: "c1"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Delivered || len(res.InvalidTargets) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestFCMProvider_NoTokens(t *testing.T) {
	client := &fakeMulticast{}
	p := newTestProvider(client, staticTokens{})
	res, err := p.Send(context.Background(), "u2", events.Event{CallID: "c1"})
	if err != nil || res.Delivered || client.calls != 0 {
		t.Fatalf("expected no-op, got %+v %v calls=%d", res, err, client.calls)
	}
}

func TestFCMProvider_BatchesLargeTokenLists(t *testing.T) {
	var toks []string
	for i := 0; i < fcmMaxTokens+3; i++ {
		toks = append(toks, fmt.Sprintf("t%d", i))
	}
	client := &fakeMulticast{}
	p := newTestProvider(client, staticTokens{"u2": toks})

	if _, err := p.Send(context.Background(), "u2", events.Event{CallID: "c1"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("expected 2 batches, got %d", client.calls)
	}
}

func TestFCMProvider_TransportError(t *testing.T) {
	client := &fakeMulticast{err: errors.New("fcm unavailable")}
	p := newTestProvider(client, staticTokens{"u2": {"a"}})
	if _, err := p.Send(context.Background(), "u2", events.Event{CallID: "c1"}); err == nil {
		t.Fatalf("expected error")
	}
}
