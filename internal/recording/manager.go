package recording

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voice-platform/internal/calls"

	"go.uber.org/multierr"
)

// Backend starts and stops recordings by recording id.
type Backend interface {
	Start(ctx context.Context, req StartRequest) (string, error)
	Stop(ctx context.Context, recordingID string) error
}

// Manager adapts a Backend to the per-call Recorder the call service uses.
// The active handle lives in the call's cache scope, so it is dropped with
// every other per-call entry when the call goes terminal.
type Manager struct {
	backend Backend
	cache   calls.Cache
	ttl     time.Duration
	clock   func() time.Time
}

func NewManager(backend Backend, cache calls.Cache, maxDuration time.Duration) *Manager {
	if maxDuration <= 0 {
		maxDuration = 4 * time.Hour
	}
	return &Manager{backend: backend, cache: cache, ttl: maxDuration, clock: time.Now}
}

func handleKey(callID string) string {
	return calls.ScopePrefix(callID) + "recording"
}

// Start is idempotent: a call already being recorded returns the existing id.
func (m *Manager) Start(ctx context.Context, callID, channelName string, opts calls.RecordingOptions) (string, error) {
	if h, ok, err := m.Active(ctx, callID); err != nil {
		return "", err
	} else if ok {
		return h.RecordingID, nil
	}

	id, err := m.backend.Start(ctx, StartRequest{
		CallID:      callID,
		ChannelName: channelName,
		CallType:    string(opts.CallType),
		RequestedBy: opts.RequestedBy,
	})
	if err != nil {
		return "", err
	}

	h := calls.RecordingHandle{
		RecordingID: id,
		CallID:      callID,
		Status:      calls.RecordingStatusRecording,
		StartedAt:   m.clock().UTC(),
	}
	b, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	if err := m.cache.Set(ctx, handleKey(callID), b, m.ttl); err != nil {
		// The recording is running but untracked; stop it rather than leak it.
		err = fmt.Errorf("recording: store handle: %w", err)
		if serr := m.backend.Stop(ctx, id); serr != nil {
			err = multierr.Append(err, fmt.Errorf("recording: stop untracked %s: %w", id, serr))
		}
		return "", err
	}
	return id, nil
}

// StopByCallID stops the call's recording. No active recording is a no-op.
func (m *Manager) StopByCallID(ctx context.Context, callID string) error {
	h, ok, err := m.Active(ctx, callID)
	if err != nil || !ok {
		return err
	}
	if err := m.backend.Stop(ctx, h.RecordingID); err != nil {
		return err
	}
	return m.cache.Delete(ctx, handleKey(callID))
}

func (m *Manager) Active(ctx context.Context, callID string) (calls.RecordingHandle, bool, error) {
	if callID == "" {
		return calls.RecordingHandle{}, false, errors.New("recording: call id is required")
	}
	b, ok, err := m.cache.Get(ctx, handleKey(callID))
	if err != nil || !ok {
		return calls.RecordingHandle{}, false, err
	}
	var h calls.RecordingHandle
	if err := json.Unmarshal(b, &h); err != nil {
		return calls.RecordingHandle{}, false, fmt.Errorf("recording: decode handle: %w", err)
	}
	return h, h.Status == calls.RecordingStatusRecording, nil
}
