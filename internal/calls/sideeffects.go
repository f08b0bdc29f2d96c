package calls

import (
	"context"

	"voice-platform/internal/events"
	"voice-platform/pkg/metrics"
)

// sideEffectContext bounds a best-effort step. It is detached from the
// caller's cancellation so a client hanging up mid-request does not abort
// cleanup of an already committed transition.
func (s *Service) sideEffectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opts.SideEffectTimeout)
}

func (s *Service) bestEffort(ctx context.Context, step, callID string, err error) {
	if err == nil {
		return
	}
	metrics.SideEffectFailures.WithLabelValues(step).Inc()
	s.log.WarnContext(ctx, "call side effect failed", "step", step, "call_id", callID, "err", err)
}

func (s *Service) notify(ctx context.Context, userID string, e events.Event) {
	if s.notifier == nil || userID == "" {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now()
	}
	ctx, cancel := s.sideEffectContext(ctx)
	defer cancel()
	s.bestEffort(ctx, "notify", e.CallID, s.notifier.Notify(ctx, userID, e))
}

// displayName labels an incoming call. A failed lookup leaves it blank.
func (s *Service) displayName(ctx context.Context, callID, userID string) string {
	if s.directory == nil {
		return ""
	}
	ctx, cancel := s.sideEffectContext(ctx)
	defer cancel()
	name, err := s.directory.DisplayName(ctx, userID)
	s.bestEffort(ctx, "directory", callID, err)
	return name
}

func (s *Service) armRingTimer(callID string) {
	if s.timers == nil {
		return
	}
	s.timers.Arm(callID, s.opts.RingTimeout, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.JobTimeout)
		defer cancel()
		if _, err := s.HandleRingTimeout(ctx, callID); err != nil {
			s.log.Error("ring timeout failed", "call_id", callID, "err", err)
		}
	})
}

func (s *Service) disarmRingTimer(callID string) {
	if s.timers == nil {
		return
	}
	s.timers.Disarm(callID)
}

func (s *Service) recordTransition(ctx context.Context, sess CallSession, from Status, actorUserID string) {
	if s.audit == nil {
		return
	}
	ctx, cancel := s.sideEffectContext(ctx)
	defer cancel()
	err := s.audit.LogTransition(ctx, sess.CallID, actorUserID, string(from), string(sess.Status), sess.EndReason)
	s.bestEffort(ctx, "audit", sess.CallID, err)
}

func (s *Service) startRecordingBestEffort(ctx context.Context, sess CallSession, userID string) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := s.sideEffectContext(ctx)
	defer cancel()
	id, err := s.recorder.Start(ctx, sess.CallID, sess.ChannelName(), RecordingOptions{CallType: sess.CallType, RequestedBy: userID})
	if err != nil {
		s.bestEffort(ctx, "recording", sess.CallID, err)
		return
	}
	evt := events.Event{Type: events.TypeRecordingStarted, CallID: sess.CallID, RecordingID: id}
	for _, uid := range sess.Participants() {
		s.notify(ctx, uid, evt)
	}
}

// stopRecordingBestEffort runs after the terminal commit. A recording left
// running by a failure here is reaped by the recording service's own limit.
func (s *Service) stopRecordingBestEffort(ctx context.Context, callID string) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := s.sideEffectContext(ctx)
	defer cancel()
	_, ok, err := s.recorder.Active(ctx, callID)
	if err != nil {
		s.bestEffort(ctx, "recording", callID, err)
		return
	}
	if !ok {
		return
	}
	s.bestEffort(ctx, "recording", callID, s.recorder.StopByCallID(ctx, callID))
}
