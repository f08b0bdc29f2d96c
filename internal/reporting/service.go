package reporting

import (
	"context"
	"errors"
	"time"

	"voice-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// MaxRange bounds a single summary query.
const MaxRange = 366 * 24 * time.Hour

// Repository is the read side reporting needs. calls.Store satisfies it.
type Repository interface {
	ListByParticipant(ctx context.Context, userID string, from, to time.Time) ([]calls.CallSession, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.UserID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.To.Sub(req.Range.From) > MaxRange {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListByParticipant(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{UserID: req.UserID, Range: req.Range}
	qualitySum := 0
	for _, c := range rows {
		if !c.IsParticipant(req.UserID) {
			continue
		}
		out.TotalCalls++
		if c.FromUserID == req.UserID {
			out.OutgoingCalls++
		} else {
			out.IncomingCalls++
		}
		if c.CallType == calls.CallTypeVideo {
			out.VideoCalls++
		}
		if c.DurationSeconds != nil {
			out.TotalDurationSeconds += *c.DurationSeconds
		}
		if c.QualityScore != nil {
			out.RatedCalls++
			qualitySum += *c.QualityScore
		}

		switch c.Status {
		case calls.StatusEnded:
			if c.ConnectedAt != nil {
				out.CompletedCalls++
			} else {
				out.CancelledCalls++
			}
		case calls.StatusMissed:
			out.MissedCalls++
		case calls.StatusRejected:
			out.RejectedCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		case calls.StatusInitiated, calls.StatusRinging, calls.StatusActive:
			out.InProgressCalls++
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
	}
	if out.RatedCalls > 0 {
		out.AverageQuality = float64(qualitySum) / float64(out.RatedCalls)
	}
	return out, nil
}
