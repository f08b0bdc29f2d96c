package recording

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_Start(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/recordings" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("authorization = %q", got)
		}
		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.CallID != "c1" || req.ChannelName != "call_c1" || req.CallType != "video" {
			t.Errorf("unexpected body %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"recording_id":"r-42"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key-1", time.Second)
	id, err := c.Start(context.Background(), StartRequest{CallID: "c1", ChannelName: "call_c1", CallType: "video"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if id != "r-42" {
		t.Fatalf("expected r-42, got %q", id)
	}
}

func TestClient_StartServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"capacity exhausted"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).Start(context.Background(), StartRequest{CallID: "c1"})
	if err == nil || !strings.Contains(err.Error(), "capacity exhausted") {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestClient_StartEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, "", time.Second).Start(context.Background(), StartRequest{CallID: "c1"}); err == nil {
		t.Fatalf("expected error for empty recording id")
	}
}

func TestClient_Stop(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, "", time.Second).Stop(context.Background(), "r-42"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if gotPath != "/v1/recordings/r-42/stop" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient("", "", 0)
	if c.Configured() {
		t.Fatalf("expected unconfigured client")
	}
	if err := c.Stop(context.Background(), "r1"); err == nil {
		t.Fatalf("expected error")
	}
}
