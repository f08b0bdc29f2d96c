package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voice-platform/internal/events"
	"voice-platform/pkg/metrics"

	"github.com/google/uuid"
)

// Service is the call orchestrator: the single entry point for every call
// state change.
//
// Every mutating operation follows the same order:
//  1. validate against the persisted status
//  2. compute the next state with Transition
//  3. persist it with a compare-and-set
//  4. update cache shadow and participant indices
//  5. arm/disarm the ring timer
//  6. dispatch notifications
//
// Steps 4-6 are best-effort: failures are logged and counted, never
// returned, and never roll back step 3.
type Service struct {
	store     Store
	cache     Cache
	directory Directory
	tokens    TokenProvider
	recorder  Recorder
	notifier  Notifier
	timers    Timers
	audit     Auditor

	opts Options
	log  *slog.Logger
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

// Dependencies are the collaborators the orchestrator is built from.
// Store and Tokens are required; the rest are skipped when nil.
type Dependencies struct {
	Store     Store
	Cache     Cache
	Directory Directory
	Tokens    TokenProvider
	Recorder  Recorder
	Notifier  Notifier
	Timers    Timers
	Audit     Auditor
	Logger    *slog.Logger
	Clock     func() time.Time
}

type Options struct {
	// RingTimeout is how long a call may ring before it is marked missed.
	RingTimeout time.Duration
	// InactivityThreshold is how long a non-terminal session may go without
	// an update before the sweep forces it terminal.
	InactivityThreshold time.Duration
	// CacheTTL bounds the session shadow and participant index entries.
	CacheTTL time.Duration
	// ActiveListTTL bounds the cached per-user active call list.
	ActiveListTTL time.Duration
	// SideEffectTimeout bounds each best-effort step.
	SideEffectTimeout time.Duration
	// JobTimeout bounds timer-triggered and sweep work.
	JobTimeout time.Duration
	// SweepBatchSize caps sessions handled per sweep pass.
	SweepBatchSize int
}

func (o Options) withDefaults() Options {
	out := o
	if out.RingTimeout <= 0 {
		out.RingTimeout = 60 * time.Second
	}
	if out.InactivityThreshold <= 0 {
		out.InactivityThreshold = 5 * time.Minute
	}
	if out.CacheTTL <= 0 {
		out.CacheTTL = time.Hour
	}
	if out.ActiveListTTL <= 0 {
		out.ActiveListTTL = 30 * time.Second
	}
	if out.SideEffectTimeout <= 0 {
		out.SideEffectTimeout = 5 * time.Second
	}
	if out.JobTimeout <= 0 {
		out.JobTimeout = 30 * time.Second
	}
	if out.SweepBatchSize <= 0 {
		out.SweepBatchSize = 500
	}
	return out
}

func NewService(d Dependencies, opts Options) *Service {
	s := &Service{
		store:     d.Store,
		cache:     d.Cache,
		directory: d.Directory,
		tokens:    d.Tokens,
		recorder:  d.Recorder,
		notifier:  d.Notifier,
		timers:    d.Timers,
		audit:     d.Audit,
		opts:      opts.withDefaults(),
		log:       d.Logger,
		clock:     d.Clock,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// Join is handed to the participant that is about to enter the media channel.
type Join struct {
	Session     CallSession `json:"session"`
	ChannelName string      `json:"channel_name"`
	Token       string      `json:"token,omitempty"`
}

type InitiateRequest struct {
	FromUserID    string
	ToPhoneNumber string
	CallType      CallType
	Metadata      map[string]any
}

// Initiate creates a session in initiated state and rings the callee.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (Join, error) {
	if err := s.ready(); err != nil {
		return Join{}, err
	}
	req.ToPhoneNumber = strings.TrimSpace(req.ToPhoneNumber)
	if req.FromUserID == "" || req.ToPhoneNumber == "" || !req.CallType.Valid() {
		return Join{}, ErrInvalidArgument
	}

	if _, busy, err := s.busyWith(ctx, req.FromUserID); err != nil {
		return Join{}, err
	} else if busy {
		return Join{}, ErrCallerBusy
	}

	toUserID := ""
	if s.directory != nil {
		id, ok, err := s.directory.LookupByPhone(ctx, req.ToPhoneNumber)
		if err != nil {
			return Join{}, fmt.Errorf("calls: resolve callee: %w", err)
		}
		if ok {
			toUserID = id
		}
	}
	if toUserID == req.FromUserID {
		return Join{}, ErrInvalidArgument
	}
	if toUserID != "" {
		if _, busy, err := s.busyWith(ctx, toUserID); err != nil {
			return Join{}, err
		} else if busy {
			return Join{}, ErrRecipientBusy
		}
	}

	now := s.now()
	deadline := now.Add(s.opts.RingTimeout)
	sess := CallSession{
		CallID:        uuid.NewString(),
		FromUserID:    req.FromUserID,
		ToUserID:      toUserID,
		ToPhoneNumber: req.ToPhoneNumber,
		CallType:      req.CallType,
		Status:        StatusInitiated,
		StartTime:     now,
		RingDeadline:  &deadline,
		UpdatedAt:     now,
	}
	if len(req.Metadata) > 0 {
		sess.Metadata = map[string]any{"caller": req.Metadata}
	}

	// The store's participant claim is the authoritative busy check; the
	// index lookups above are advisory.
	if err := s.store.Create(ctx, sess); err != nil {
		return Join{}, err
	}
	metrics.CallTransitions.WithLabelValues(string(StatusInitiated)).Inc()
	s.recordTransition(ctx, sess, "", req.FromUserID)

	room, err := s.tokens.CreateRoom(ctx, sess.CallID, sess.FromUserID, sess.ToUserID)
	if err != nil {
		// The callee was never rung, so nobody is told.
		if next, ok := s.failSetup(ctx, sess, []Status{StatusInitiated}, err); ok {
			s.refreshCache(ctx, next)
		}
		return Join{}, fmt.Errorf("%w: create room: %w", ErrCallInfrastructure, err)
	}

	s.refreshCache(ctx, sess)
	s.armRingTimer(sess.CallID)
	if sess.ToUserID != "" {
		s.notify(ctx, sess.ToUserID, events.Event{
			Type:       events.TypeIncomingCall,
			CallID:     sess.CallID,
			FromUserID: sess.FromUserID,
			CallerName: s.displayName(ctx, sess.CallID, sess.FromUserID),
			CallType:   string(sess.CallType),
		})
	}

	s.log.Info("call initiated", "call_id", sess.CallID, "from_user_id", sess.FromUserID, "to_user_id", sess.ToUserID, "call_type", sess.CallType)
	return Join{Session: sess, ChannelName: room.ChannelName, Token: room.TokenFor(sess.FromUserID)}, nil
}

// Ring records that the callee's device is alerting. Repeating it is a no-op.
func (s *Service) Ring(ctx context.Context, callID, userID string) (CallSession, error) {
	cur, err := s.load(ctx, callID)
	if err != nil {
		return CallSession{}, err
	}
	if cur.ToUserID == "" || cur.ToUserID != userID {
		return CallSession{}, ErrUnauthorized
	}
	if cur.Status == StatusRinging {
		return cur, nil
	}

	next, err := s.commit(ctx, cur, []Status{StatusInitiated}, StatusRinging, userID, nil)
	if err != nil {
		return CallSession{}, err
	}

	s.refreshCache(ctx, next)
	s.notify(ctx, next.FromUserID, statusEvent(next, ""))
	return next, nil
}

// Accept connects the call. Only the recorded callee may accept.
func (s *Service) Accept(ctx context.Context, callID, userID string, metadata map[string]any) (Join, error) {
	cur, err := s.load(ctx, callID)
	if err != nil {
		return Join{}, err
	}
	if cur.ToUserID == "" || cur.ToUserID != userID {
		return Join{}, ErrUnauthorized
	}
	if cur.Status.IsTerminal() || !CanTransition(cur.Status, StatusActive) {
		return Join{}, fmt.Errorf("%w: cannot accept %s call", ErrInvalidTransition, cur.Status)
	}

	room, err := s.tokens.CreateRoom(ctx, cur.CallID, cur.FromUserID, cur.ToUserID)
	if err != nil {
		if next, ok := s.failSetup(ctx, cur, RingingStatuses, err); ok {
			s.finish(ctx, cur, next, reasonInfrastructure, userID)
		}
		return Join{}, fmt.Errorf("%w: create room: %w", ErrCallInfrastructure, err)
	}

	next, err := s.commit(ctx, cur, RingingStatuses, StatusActive, userID, func(n *CallSession) {
		if len(metadata) > 0 {
			if n.Metadata == nil {
				n.Metadata = map[string]any{}
			}
			n.Metadata["callee"] = metadata
		}
	})
	if err != nil {
		return Join{}, err
	}

	s.refreshCache(ctx, next)
	s.disarmRingTimer(next.CallID)
	s.notify(ctx, next.FromUserID, statusEvent(next, ""))

	if wantsRecording(metadata) {
		s.startRecordingBestEffort(ctx, next, userID)
	}

	s.log.Info("call accepted", "call_id", next.CallID, "user_id", userID)
	return Join{Session: next, ChannelName: room.ChannelName, Token: room.TokenFor(userID)}, nil
}

// Reject declines a ringing call. Only the recorded callee may reject.
func (s *Service) Reject(ctx context.Context, callID, userID, reason string) (CallSession, error) {
	cur, err := s.load(ctx, callID)
	if err != nil {
		return CallSession{}, err
	}
	if cur.ToUserID == "" || cur.ToUserID != userID {
		return CallSession{}, ErrUnauthorized
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "declined"
	}

	next, err := s.commit(ctx, cur, RingingStatuses, StatusRejected, userID, func(n *CallSession) {
		n.EndReason = reason
	})
	if err != nil {
		return CallSession{}, err
	}

	s.refreshCache(ctx, next)
	s.disarmRingTimer(next.CallID)
	s.notify(ctx, next.FromUserID, statusEvent(next, reason))
	return next, nil
}

const maxEndAttempts = 3

// End hangs up a call from either side. On a call that was never answered
// it acts as a cancel and no duration is recorded.
func (s *Service) End(ctx context.Context, callID, userID string, qualityScore *int) (CallSession, error) {
	if qualityScore != nil && !ValidQualityScore(*qualityScore) {
		return CallSession{}, ErrInvalidArgument
	}

	for attempt := 1; ; attempt++ {
		cur, err := s.load(ctx, callID)
		if err != nil {
			return CallSession{}, err
		}
		if !cur.IsParticipant(userID) {
			return CallSession{}, ErrUnauthorized
		}

		// Guard on the exact status we computed from so an accept racing
		// this hang-up cannot be overwritten without its connectedAt.
		next, err := s.commit(ctx, cur, []Status{cur.Status}, StatusEnded, userID, func(n *CallSession) {
			if qualityScore != nil {
				q := *qualityScore
				n.QualityScore = &q
			}
			if n.EndReason == "" {
				n.EndReason = "hangup"
				if n.ConnectedAt == nil {
					n.EndReason = "cancelled"
				}
			}
		})
		if errors.Is(err, errStatusChanged) && attempt < maxEndAttempts {
			continue
		}
		if err != nil {
			return CallSession{}, err
		}

		s.finish(ctx, cur, next, "", userID)
		return next, nil
	}
}

// RecordingResult reports the recording state after a toggle.
type RecordingResult struct {
	CallID      string `json:"call_id"`
	Recording   bool   `json:"recording"`
	RecordingID string `json:"recording_id,omitempty"`
}

// ToggleRecording starts or stops the cloud recording of an active call.
// It does not change the session status.
func (s *Service) ToggleRecording(ctx context.Context, callID, userID string, enable bool) (RecordingResult, error) {
	cur, err := s.load(ctx, callID)
	if err != nil {
		return RecordingResult{}, err
	}
	if !cur.IsParticipant(userID) {
		return RecordingResult{}, ErrUnauthorized
	}
	if cur.Status != StatusActive {
		return RecordingResult{}, ErrCallNotActive
	}
	if s.recorder == nil {
		return RecordingResult{}, fmt.Errorf("%w: recorder not configured", ErrCallInfrastructure)
	}

	out := RecordingResult{CallID: cur.CallID, Recording: enable}
	evt := events.Event{CallID: cur.CallID}
	if enable {
		id, err := s.recorder.Start(ctx, cur.CallID, cur.ChannelName(), RecordingOptions{CallType: cur.CallType, RequestedBy: userID})
		if err != nil {
			return RecordingResult{}, fmt.Errorf("%w: start recording: %w", ErrCallInfrastructure, err)
		}
		out.RecordingID = id
		evt.Type = events.TypeRecordingStarted
		evt.RecordingID = id
	} else {
		if err := s.recorder.StopByCallID(ctx, cur.CallID); err != nil {
			return RecordingResult{}, fmt.Errorf("%w: stop recording: %w", ErrCallInfrastructure, err)
		}
		evt.Type = events.TypeRecordingStopped
	}

	s.bestEffort(ctx, "touch", cur.CallID, s.store.Touch(ctx, cur.CallID, s.now()))
	if peer := cur.Peer(userID); peer != "" {
		s.notify(ctx, peer, evt)
	}
	return out, nil
}

// GetActiveCalls lists the user's non-terminal sessions. Served from a
// short-lived cache entry, repopulated from the store on a miss.
func (s *Service) GetActiveCalls(ctx context.Context, userID string) ([]CallSession, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if list, ok := s.cachedActiveList(ctx, userID); ok {
		return list, nil
	}

	list, err := s.store.FindActiveByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheActiveList(ctx, userID, list)
	return list, nil
}

// GetCall returns a session to one of its participants, shadow first.
func (s *Service) GetCall(ctx context.Context, callID, userID string) (CallSession, error) {
	if callID == "" {
		return CallSession{}, ErrInvalidArgument
	}
	sess, ok := s.cachedSession(ctx, callID)
	if !ok {
		var err error
		sess, err = s.load(ctx, callID)
		if err != nil {
			return CallSession{}, err
		}
		s.bestEffort(ctx, "cache", callID, s.writeShadow(ctx, sess))
	}
	if !sess.IsParticipant(userID) {
		return CallSession{}, ErrUnauthorized
	}
	return sess, nil
}

// Heartbeat marks a live session as still in use so the sweep leaves it alone.
func (s *Service) Heartbeat(ctx context.Context, callID, userID string) error {
	cur, err := s.load(ctx, callID)
	if err != nil {
		return err
	}
	if !cur.IsParticipant(userID) {
		return ErrUnauthorized
	}
	if cur.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, cur.Status)
	}
	return s.store.Touch(ctx, cur.CallID, s.now())
}

// errStatusChanged means the compare-and-set guard did not match: another
// writer moved the session first.
var errStatusChanged = fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)

// commit runs steps 2 and 3: compute the next state and persist it guarded
// by expected.
func (s *Service) commit(ctx context.Context, cur CallSession, expected []Status, to Status, actorUserID string, mutate func(*CallSession)) (CallSession, error) {
	next, err := Transition(cur, to, s.now())
	if err != nil {
		return CallSession{}, err
	}
	if mutate != nil {
		mutate(&next)
	}

	ok, err := s.store.CompareAndSetStatus(ctx, cur.CallID, expected, next)
	if err != nil {
		return CallSession{}, err
	}
	if !ok {
		return CallSession{}, errStatusChanged
	}

	metrics.CallTransitions.WithLabelValues(string(to)).Inc()
	s.recordTransition(ctx, next, cur.Status, actorUserID)
	return next, nil
}

// finish runs the best-effort tail of a terminal transition. With no actor
// (timer or sweep) both participants are told, otherwise only the peer.
func (s *Service) finish(ctx context.Context, prev, next CallSession, reason, actorUserID string) {
	if prev.Status == StatusActive {
		s.stopRecordingBestEffort(ctx, next.CallID)
	}
	s.refreshCache(ctx, next)
	s.disarmRingTimer(next.CallID)

	evt := statusEvent(next, reason)
	if actorUserID == "" {
		for _, uid := range next.Participants() {
			s.notify(ctx, uid, evt)
		}
		return
	}
	if peer := next.Peer(actorUserID); peer != "" {
		s.notify(ctx, peer, evt)
	}
}

const reasonInfrastructure = "infrastructure_error"

// failSetup drives a session whose media room could not be created to
// failed, releasing both participants. The write is detached from the
// request so a cancelled caller cannot leave the session holding them.
// It returns false when the session was already moved by another writer
// or the write failed.
func (s *Service) failSetup(ctx context.Context, cur CallSession, expected []Status, cause error) (CallSession, bool) {
	s.log.Error("call setup failed", "call_id", cur.CallID, "status", cur.Status, "err", cause)
	ctx, cancel := s.sideEffectContext(ctx)
	defer cancel()
	next, err := s.commit(ctx, cur, expected, StatusFailed, "", func(n *CallSession) {
		n.EndReason = reasonInfrastructure
	})
	if err != nil {
		s.log.Error("call setup cleanup failed", "call_id", cur.CallID, "err", err)
		return CallSession{}, false
	}
	return next, true
}

func (s *Service) load(ctx context.Context, callID string) (CallSession, error) {
	if callID == "" {
		return CallSession{}, ErrInvalidArgument
	}
	if err := s.ready(); err != nil {
		return CallSession{}, err
	}
	return s.store.Get(ctx, callID)
}

// busyWith is the advisory busy check: participant index first, then the
// store. A stale index entry is dropped rather than trusted.
func (s *Service) busyWith(ctx context.Context, userID string) (string, bool, error) {
	if callID, ok := s.cachedActiveCallID(ctx, userID); ok {
		sess, err := s.store.Get(ctx, callID)
		switch {
		case err == nil && !sess.Status.IsTerminal() && sess.IsParticipant(userID):
			return callID, true, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return "", false, err
		}
		s.dropActiveIndex(ctx, userID, callID)
	}

	active, err := s.store.FindActiveByParticipant(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if len(active) == 0 {
		return "", false, nil
	}
	s.indexParticipant(ctx, userID, active[0].CallID)
	return active[0].CallID, true, nil
}

func (s *Service) ready() error {
	if s.store == nil {
		return errors.New("calls: store not configured")
	}
	if s.tokens == nil {
		return errors.New("calls: token provider not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func statusEvent(sess CallSession, reason string) events.Event {
	return events.Event{
		Type:            events.TypeCallStatusChange,
		CallID:          sess.CallID,
		Status:          string(sess.Status),
		Reason:          reason,
		DurationSeconds: sess.DurationSeconds,
	}
}

func wantsRecording(metadata map[string]any) bool {
	v, ok := metadata["record"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
