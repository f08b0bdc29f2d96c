package calls

import "time"

// CallSession is a single call attempt between two parties, from initiation
// to a terminal outcome.
//
// The record store row is authoritative. The session cache only holds a
// time-limited shadow of it and may be rebuilt from the store at any time.
//
// Invariants:
// - CallID is immutable after creation.
// - EndTime is set exactly once, on the first terminal transition.
// - DurationSeconds is set iff the session reached active and then ended.
// - A user participates in at most one non-terminal session.
type CallSession struct {
	CallID string `json:"call_id" db:"call_id"`

	FromUserID string `json:"from_user_id" db:"from_user_id"`
	// ToUserID stays empty until the dialed number resolves to a registered user.
	ToUserID      string `json:"to_user_id,omitempty" db:"to_user_id"`
	ToPhoneNumber string `json:"to_phone_number" db:"to_phone_number"`

	CallType CallType `json:"call_type" db:"call_type"`
	Status   Status   `json:"status" db:"status"`

	StartTime   time.Time  `json:"start_time" db:"start_time"`
	ConnectedAt *time.Time `json:"connected_at,omitempty" db:"connected_at"`
	EndTime     *time.Time `json:"end_time,omitempty" db:"end_time"`

	// DurationSeconds is derived from EndTime - ConnectedAt, computed once.
	DurationSeconds *int `json:"duration_seconds,omitempty" db:"duration_seconds"`

	QualityScore *int   `json:"quality_score,omitempty" db:"quality_score"`
	EndReason    string `json:"end_reason,omitempty" db:"end_reason"`

	// RingDeadline is the durable copy of the in-process ring timer.
	// Cleared once the session leaves initiated/ringing.
	RingDeadline *time.Time `json:"ring_deadline,omitempty" db:"ring_deadline"`

	// Metadata carries caller/callee device info. Not interpreted here.
	Metadata map[string]any `json:"metadata,omitempty" db:"metadata"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ChannelName is the media channel bound to this session. It is always
// derived from CallID and never stored on its own.
func (s CallSession) ChannelName() string {
	return ChannelName(s.CallID)
}

// ChannelName derives the media channel name for a call id.
func ChannelName(callID string) string {
	return "call_" + callID
}

// IsParticipant reports whether userID is the caller or the callee.
func (s CallSession) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return s.FromUserID == userID || s.ToUserID == userID
}

// Peer returns the other participant's user id, or "" if unknown.
func (s CallSession) Peer(userID string) string {
	switch userID {
	case s.FromUserID:
		return s.ToUserID
	case s.ToUserID:
		return s.FromUserID
	default:
		return ""
	}
}

// Participants returns the registered user ids on this session.
func (s CallSession) Participants() []string {
	out := []string{s.FromUserID}
	if s.ToUserID != "" {
		out = append(out, s.ToUserID)
	}
	return out
}

type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallTypeVoice || t == CallTypeVideo
}

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusRinging   Status = "ringing"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusMissed    Status = "missed"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// NonTerminalStatuses are the statuses that occupy a participant.
var NonTerminalStatuses = []Status{StatusInitiated, StatusRinging, StatusActive}

// RingingStatuses are the statuses a ring timer can still act on.
var RingingStatuses = []Status{StatusInitiated, StatusRinging}

// IsTerminal reports whether no further transition is permitted.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusEnded, StatusMissed, StatusRejected, StatusFailed:
		return true
	default:
		return false
	}
}

// RecordingHandle references a recording owned by the recording service.
type RecordingHandle struct {
	RecordingID string          `json:"recording_id"`
	CallID      string          `json:"call_id"`
	Status      RecordingStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
}

type RecordingStatus string

const (
	RecordingStatusRecording RecordingStatus = "recording"
	RecordingStatusStopped   RecordingStatus = "stopped"
)

// Room is what the token provider hands back for a call's media channel.
type Room struct {
	ChannelName string `json:"channel_name"`
	// Tokens maps user id to a media join token.
	Tokens map[string]string `json:"-"`
}

// TokenFor returns the join token for userID, if one was issued.
func (r Room) TokenFor(userID string) string {
	if r.Tokens == nil {
		return ""
	}
	return r.Tokens[userID]
}
