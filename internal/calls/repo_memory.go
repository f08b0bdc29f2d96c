package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store useful for tests and single-process
// development. It enforces the same participant uniqueness as PostgresStore.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]CallSession
	// active maps a user id to the non-terminal call it is claimed by.
	active map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]CallSession{},
		active:   map[string]string{},
	}
}

func (r *MemoryStore) Get(ctx context.Context, callID string) (CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return copySession(s), nil
}

func (r *MemoryStore) Create(ctx context.Context, s CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[s.FromUserID]; ok {
		return ErrCallerBusy
	}
	if s.ToUserID != "" {
		if _, ok := r.active[s.ToUserID]; ok {
			return ErrRecipientBusy
		}
	}
	r.sessions[s.CallID] = copySession(s)
	if !s.Status.IsTerminal() {
		for _, uid := range s.Participants() {
			r.active[uid] = s.CallID
		}
	}
	return nil
}

func (r *MemoryStore) CompareAndSetStatus(ctx context.Context, callID string, expected []Status, next CallSession) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[callID]
	if !ok {
		return false, ErrNotFound
	}
	if !containsStatus(expected, cur.Status) {
		return false, nil
	}

	next.CallID = cur.CallID
	r.sessions[callID] = copySession(next)
	if next.Status.IsTerminal() {
		for _, uid := range cur.Participants() {
			if r.active[uid] == callID {
				delete(r.active, uid)
			}
		}
	}
	return true, nil
}

func (r *MemoryStore) FindActiveByParticipant(ctx context.Context, userID string) ([]CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []CallSession
	for _, s := range r.sessions {
		if s.IsParticipant(userID) && !s.Status.IsTerminal() {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (r *MemoryStore) FindStale(ctx context.Context, cutoff, now time.Time, limit int) ([]CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []CallSession
	for _, s := range r.sessions {
		if s.Status.IsTerminal() {
			continue
		}
		inactive := s.UpdatedAt.Before(cutoff)
		overdue := containsStatus(RingingStatuses, s.Status) && s.RingDeadline != nil && !s.RingDeadline.After(now)
		if inactive || overdue {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryStore) Touch(ctx context.Context, callID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[callID]
	if !ok || s.Status.IsTerminal() {
		return ErrNotFound
	}
	s.UpdatedAt = now
	r.sessions[callID] = s
	return nil
}

func (r *MemoryStore) ListByParticipant(ctx context.Context, userID string, from, to time.Time) ([]CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []CallSession
	for _, s := range r.sessions {
		if !s.IsParticipant(userID) {
			continue
		}
		if s.StartTime.Before(from) || !s.StartTime.Before(to) {
			continue
		}
		out = append(out, copySession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func containsStatus(set []Status, s Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func copySession(s CallSession) CallSession {
	out := s
	out.Metadata = cloneMetadata(s.Metadata)
	out.ConnectedAt = copyTime(s.ConnectedAt)
	out.EndTime = copyTime(s.EndTime)
	out.RingDeadline = copyTime(s.RingDeadline)
	if s.DurationSeconds != nil {
		v := *s.DurationSeconds
		out.DurationSeconds = &v
	}
	if s.QualityScore != nil {
		v := *s.QualityScore
		out.QualityScore = &v
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
