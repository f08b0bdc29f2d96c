package calls

import (
	"context"
	"errors"
	"time"

	"voice-platform/pkg/metrics"

	"go.uber.org/multierr"
)

// HandleRingTimeout moves an unanswered call to missed. It reports false if
// the call had already moved on, which is the normal outcome of a timer
// racing an accept or reject.
func (s *Service) HandleRingTimeout(ctx context.Context, callID string) (bool, error) {
	cur, err := s.load(ctx, callID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cur.Status != StatusInitiated && cur.Status != StatusRinging {
		return false, nil
	}

	next, err := s.commit(ctx, cur, RingingStatuses, StatusMissed, "", func(n *CallSession) {
		n.EndReason = "no_answer"
	})
	if errors.Is(err, ErrInvalidTransition) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	metrics.RingTimeouts.Inc()
	s.finish(ctx, cur, next, "no_answer", "")
	s.log.Info("call missed", "call_id", callID)
	return true, nil
}

// SweepReport summarises one pass of the stale session sweep.
type SweepReport struct {
	Scanned int `json:"scanned"`
	Missed  int `json:"missed"`
	Failed  int `json:"failed"`
	Ended   int `json:"ended"`
	Skipped int `json:"skipped"`
}

// Sweep forces stale non-terminal sessions to a terminal status. It
// recovers ring timers lost to a restart and sessions abandoned by both
// clients. Every move goes through the same guarded commit as a user action.
func (s *Service) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	if err := s.ready(); err != nil {
		return rep, err
	}
	now := s.now()
	cutoff := now.Add(-s.opts.InactivityThreshold)

	stale, err := s.store.FindStale(ctx, cutoff, now, s.opts.SweepBatchSize)
	if err != nil {
		return rep, err
	}

	var errs error
	for _, cur := range stale {
		if err := ctx.Err(); err != nil {
			return rep, multierr.Append(errs, err)
		}
		rep.Scanned++

		to, reason := sweepOutcome(cur, now, cur.UpdatedAt.Before(cutoff))
		if to == "" {
			rep.Skipped++
			continue
		}

		next, err := s.commit(ctx, cur, []Status{cur.Status}, to, "", func(n *CallSession) {
			n.EndReason = reason
		})
		if errors.Is(err, ErrInvalidTransition) {
			rep.Skipped++
			metrics.SweepActions.WithLabelValues("skipped").Inc()
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		switch to {
		case StatusMissed:
			rep.Missed++
		case StatusFailed:
			rep.Failed++
		case StatusEnded:
			rep.Ended++
		}
		metrics.SweepActions.WithLabelValues(string(to)).Inc()
		s.finish(ctx, cur, next, reason, "")
	}

	if rep.Scanned > 0 {
		s.log.Info("stale call sweep",
			"scanned", rep.Scanned, "missed", rep.Missed, "failed", rep.Failed,
			"ended", rep.Ended, "skipped", rep.Skipped)
	}
	return rep, errs
}

// sweepOutcome picks the terminal status for a stale session. A ringing
// session past the inactivity threshold is failed even if its deadline also
// passed: its timer was lost, not merely slow.
func sweepOutcome(s CallSession, now time.Time, inactive bool) (Status, string) {
	switch s.Status {
	case StatusActive:
		if inactive {
			return StatusEnded, "inactive"
		}
	case StatusInitiated, StatusRinging:
		if inactive {
			return StatusFailed, "timeout"
		}
		if s.RingDeadline != nil && !s.RingDeadline.After(now) {
			return StatusMissed, "no_answer"
		}
	}
	return "", ""
}
