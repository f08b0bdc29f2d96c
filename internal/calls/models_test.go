package calls

import "testing"

func TestCallSession_Participants(t *testing.T) {
	s := CallSession{CallID: "abc", FromUserID: "u1", ToUserID: "u2"}
	if s.ChannelName() != "call_abc" {
		t.Fatalf("unexpected channel %q", s.ChannelName())
	}
	if !s.IsParticipant("u1") || !s.IsParticipant("u2") || s.IsParticipant("u3") || s.IsParticipant("") {
		t.Fatalf("unexpected participant check")
	}
	if s.Peer("u1") != "u2" || s.Peer("u2") != "u1" || s.Peer("u3") != "" {
		t.Fatalf("unexpected peer")
	}
	if got := s.Participants(); len(got) != 2 {
		t.Fatalf("expected 2 participants, got %v", got)
	}
}

func TestCallSession_UnresolvedCallee(t *testing.T) {
	s := CallSession{CallID: "abc", FromUserID: "u1", ToPhoneNumber: "+1555"}
	if s.IsParticipant("") {
		t.Fatalf("empty user must never be a participant")
	}
	if got := s.Participants(); len(got) != 1 || got[0] != "u1" {
		t.Fatalf("expected caller only, got %v", got)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	for _, s := range NonTerminalStatuses {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	for _, s := range []Status{StatusEnded, StatusMissed, StatusRejected, StatusFailed} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
}
