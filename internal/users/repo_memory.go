package users

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryDirectory is an in-memory directory useful for tests and local runs.
type MemoryDirectory struct {
	mu      sync.Mutex
	users   map[string]User
	byPhone map[string]string
	targets map[string][]PushTarget
	clock   func() time.Time
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:   map[string]User{},
		byPhone: map[string]string{},
		targets: map[string][]PushTarget{},
		clock:   time.Now,
	}
}

// Add registers u, replacing any user with the same id.
func (d *MemoryDirectory) Add(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = d.clock().UTC()
	}
	d.users[u.ID] = u
	d.byPhone[normalizePhone(u.PhoneNumber)] = u.ID
}

func (d *MemoryDirectory) LookupByPhone(ctx context.Context, phone string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byPhone[normalizePhone(phone)]
	return id, ok, nil
}

func (d *MemoryDirectory) Get(ctx context.Context, userID string) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (d *MemoryDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	u, err := d.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.DisplayName, nil
}

func (d *MemoryDirectory) RegisterPushTarget(ctx context.Context, t PushTarget) error {
	if t.UserID == "" || strings.TrimSpace(t.Token) == "" || !t.Platform.Valid() {
		return ErrInvalidArgument
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[t.UserID]; !ok {
		return ErrNotFound
	}
	for _, existing := range d.targets[t.UserID] {
		if existing.Token == t.Token {
			return nil
		}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = d.clock().UTC()
	}
	d.targets[t.UserID] = append(d.targets[t.UserID], t)
	return nil
}

func (d *MemoryDirectory) PushTokens(ctx context.Context, userID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.targets[userID]))
	for _, t := range d.targets[userID] {
		out = append(out, t.Token)
	}
	return out, nil
}

func (d *MemoryDirectory) RemovePushTargets(ctx context.Context, userID string, tokens []string) error {
	drop := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		drop[t] = struct{}{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.targets[userID][:0]
	for _, t := range d.targets[userID] {
		if _, ok := drop[t.Token]; !ok {
			kept = append(kept, t)
		}
	}
	d.targets[userID] = kept
	return nil
}
