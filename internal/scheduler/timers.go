package scheduler

import (
	"sync"
	"time"
)

// RingTimers holds one in-process timer per call. It is a latency
// optimisation only: the durable ring deadline plus the sweep remain the
// source of truth, so losing these on restart is harmless.
//
// Arm on an already armed call replaces the previous timer. Disarm on an
// unknown call is a no-op. A disarmed timer never runs its callback, even
// if it had already expired and was waiting for the lock.
type RingTimers struct {
	mu     sync.Mutex
	timers map[string]*ringTimer
}

type ringTimer struct {
	t *time.Timer
}

func NewRingTimers() *RingTimers {
	return &RingTimers{timers: map[string]*ringTimer{}}
}

func (r *RingTimers) Arm(callID string, d time.Duration, fn func()) {
	if callID == "" || fn == nil {
		return
	}
	rt := &ringTimer{}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.timers[callID]; ok {
		prev.t.Stop()
	}
	r.timers[callID] = rt
	rt.t = time.AfterFunc(d, func() {
		if r.release(callID, rt) {
			fn()
		}
	})
}

// release removes rt if it is still the armed timer for callID and reports
// whether the caller owns the expiry.
func (r *RingTimers) release(callID string, rt *ringTimer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.timers[callID]; !ok || cur != rt {
		return false
	}
	delete(r.timers, callID)
	return true
}

func (r *RingTimers) Disarm(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.timers[callID]
	if !ok {
		return false
	}
	rt.t.Stop()
	delete(r.timers, callID)
	return true
}

func (r *RingTimers) pending(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[callID]
	return ok
}

func (r *RingTimers) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// StopAll disarms every timer. Used on shutdown.
func (r *RingTimers) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rt := range r.timers {
		rt.t.Stop()
		delete(r.timers, id)
	}
}
