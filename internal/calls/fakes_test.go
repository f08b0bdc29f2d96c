package calls

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"voice-platform/internal/events"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeDirectory map[string]string

func (d fakeDirectory) LookupByPhone(ctx context.Context, phone string) (string, bool, error) {
	id, ok := d[phone]
	return id, ok, nil
}

func (d fakeDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	if userID == alice {
		return "Alice", nil
	}
	return "", nil
}

type fakeTokens struct {
	err   error
	calls int
	// before runs ahead of the result, e.g. to cancel the request context.
	before func()
}

func (f *fakeTokens) CreateRoom(ctx context.Context, callID, callerID, calleeID string) (Room, error) {
	f.calls++
	if f.before != nil {
		f.before()
	}
	if f.err != nil {
		return Room{}, f.err
	}
	toks := map[string]string{callerID: "tok-" + callerID}
	if calleeID != "" {
		toks[calleeID] = "tok-" + calleeID
	}
	return Room{ChannelName: ChannelName(callID), Tokens: toks}, nil
}

type sentEvent struct {
	UserID string
	Event  events.Event
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentEvent
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, userID string, e events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{UserID: userID, Event: e})
	return f.err
}

func (f *fakeNotifier) For(userID string) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, s := range f.sent {
		if s.UserID == userID {
			out = append(out, s.Event)
		}
	}
	return out
}

// manualTimers never fires on its own; tests call Fire.
type manualTimers struct {
	mu       sync.Mutex
	armed    map[string]func()
	disarmed int
}

func newManualTimers() *manualTimers {
	return &manualTimers{armed: map[string]func(){}}
}

func (m *manualTimers) Arm(callID string, d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed[callID] = fn
}

func (m *manualTimers) Disarm(callID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.armed[callID]
	delete(m.armed, callID)
	if ok {
		m.disarmed++
	}
	return ok
}

func (m *manualTimers) Armed(callID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.armed[callID]
	return ok
}

func (m *manualTimers) Fire(callID string) bool {
	m.mu.Lock()
	fn, ok := m.armed[callID]
	delete(m.armed, callID)
	m.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = append([]byte(nil), value...)
	return nil
}

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *mapCache) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	n := 0
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
			n++
		}
	}
	return n, nil
}

func (c *mapCache) DeleteIfEquals(ctx context.Context, key string, value []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if v, ok := c.data[key]; ok && string(v) == string(value) {
		delete(c.data, key)
		return true, nil
	}
	return false, nil
}

func (c *mapCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

type fakeRecorder struct {
	mu       sync.Mutex
	active   map[string]string
	startErr error
	stops    int
}

func newFakeRecorder() *fakeRecorder { return &fakeRecorder{active: map[string]string{}} }

func (r *fakeRecorder) Start(ctx context.Context, callID, channelName string, opts RecordingOptions) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return "", r.startErr
	}
	id := "rec-" + callID
	r.active[callID] = id
	return id, nil
}

func (r *fakeRecorder) StopByCallID(ctx context.Context, callID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[callID]; !ok {
		return errors.New("no recording")
	}
	delete(r.active, callID)
	r.stops++
	return nil
}

func (r *fakeRecorder) Active(ctx context.Context, callID string) (RecordingHandle, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[callID]
	if !ok {
		return RecordingHandle{}, false, nil
	}
	return RecordingHandle{RecordingID: id, CallID: callID, Status: RecordingStatusRecording}, true, nil
}

type auditEntry struct {
	CallID, Actor, From, To, Reason string
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *fakeAuditor) LogTransition(ctx context.Context, callID, actorUserID, from, to, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{callID, actorUserID, from, to, reason})
	return nil
}

// cancelAwareStore fails status writes made on a cancelled context, the way
// a database driver does.
type cancelAwareStore struct {
	*MemoryStore
}

func (c cancelAwareStore) CompareAndSetStatus(ctx context.Context, callID string, expected []Status, next CallSession) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.MemoryStore.CompareAndSetStatus(ctx, callID, expected, next)
}

type harness struct {
	svc      *Service
	deps     Dependencies
	store    *MemoryStore
	cache    *mapCache
	clock    *fakeClock
	tokens   *fakeTokens
	notifier *fakeNotifier
	timers   *manualTimers
	recorder *fakeRecorder
	audit    *fakeAuditor
}

const (
	alice      = "u-alice"
	bob        = "u-bob"
	carol      = "u-carol"
	bobPhone   = "+15551234567"
	carolPhone = "+15559999999"
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    NewMemoryStore(),
		cache:    newMapCache(),
		clock:    newFakeClock(),
		tokens:   &fakeTokens{},
		notifier: &fakeNotifier{},
		timers:   newManualTimers(),
		recorder: newFakeRecorder(),
		audit:    &fakeAuditor{},
	}
	h.deps = Dependencies{
		Store:     h.store,
		Cache:     h.cache,
		Directory: fakeDirectory{bobPhone: bob, carolPhone: carol, "+15550000001": alice},
		Tokens:    h.tokens,
		Recorder:  h.recorder,
		Notifier:  h.notifier,
		Timers:    h.timers,
		Audit:     h.audit,
		Clock:     h.clock.Now,
	}
	h.svc = NewService(h.deps, Options{})
	return h
}

// wrapStore rebuilds the service over st, which should delegate to h.store.
func (h *harness) wrapStore(st Store) {
	h.deps.Store = st
	h.svc = NewService(h.deps, Options{})
}

func (h *harness) initiate(t *testing.T, from, phone string) Join {
	t.Helper()
	j, err := h.svc.Initiate(context.Background(), InitiateRequest{FromUserID: from, ToPhoneNumber: phone, CallType: CallTypeVoice})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return j
}
