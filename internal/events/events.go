package events

import (
	"strconv"
	"time"
)

// Type names a call event delivered to a participant.
// Keep these stable; mobile and web clients switch on them.
type Type string

const (
	TypeIncomingCall     Type = "incoming_call"
	TypeCallStatusChange Type = "call_status_change"
	TypeRecordingStarted Type = "recording_started"
	TypeRecordingStopped Type = "recording_stopped"
)

// Event is the transport-agnostic payload shared by the real-time channel
// and the push provider. Status is the call status string so this package
// stays a leaf.
type Event struct {
	Type   Type   `json:"type"`
	CallID string `json:"call_id"`

	FromUserID string `json:"from_user_id,omitempty"`
	CallerName string `json:"caller_name,omitempty"`
	CallType   string `json:"call_type,omitempty"`

	Status          string `json:"status,omitempty"`
	Reason          string `json:"reason,omitempty"`
	DurationSeconds *int   `json:"duration_seconds,omitempty"`

	RecordingID string `json:"recording_id,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Data flattens the event into string pairs for push payloads, which only
// carry string values.
func (e Event) Data() map[string]string {
	out := map[string]string{
		"type":    string(e.Type),
		"call_id": e.CallID,
	}
	if e.FromUserID != "" {
		out["from_user_id"] = e.FromUserID
	}
	if e.CallerName != "" {
		out["caller_name"] = e.CallerName
	}
	if e.CallType != "" {
		out["call_type"] = e.CallType
	}
	if e.Status != "" {
		out["status"] = e.Status
	}
	if e.Reason != "" {
		out["reason"] = e.Reason
	}
	if e.DurationSeconds != nil {
		out["duration_seconds"] = strconv.Itoa(*e.DurationSeconds)
	}
	if e.RecordingID != "" {
		out["recording_id"] = e.RecordingID
	}
	if !e.OccurredAt.IsZero() {
		out["occurred_at"] = e.OccurredAt.UTC().Format(time.RFC3339)
	}
	return out
}
