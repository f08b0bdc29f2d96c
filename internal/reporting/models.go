package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics for one user.
// Only calls the user took part in are counted.
type CallsSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type CallsSummary struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`

	TotalCalls    int `json:"total_calls"`
	OutgoingCalls int `json:"outgoing_calls"`
	IncomingCalls int `json:"incoming_calls"`

	CompletedCalls  int `json:"completed_calls"`
	CancelledCalls  int `json:"cancelled_calls"`
	MissedCalls     int `json:"missed_calls"`
	RejectedCalls   int `json:"rejected_calls"`
	FailedCalls     int `json:"failed_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	VideoCalls int `json:"video_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// AverageQuality is 0 when no call was rated.
	AverageQuality float64 `json:"average_quality"`
	RatedCalls     int     `json:"rated_calls"`
}
