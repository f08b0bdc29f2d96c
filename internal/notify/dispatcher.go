package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"voice-platform/internal/events"
	"voice-platform/pkg/metrics"
)

// Channel is the real-time connection registry.
type Channel interface {
	IsConnected(userID string) bool
	// Send reports false if the user is not connected.
	Send(userID string, e events.Event) bool
}

// PushResult is the outcome of one push fan-out to a user's devices.
type PushResult struct {
	Delivered bool
	// InvalidTargets are device tokens the provider rejected permanently.
	InvalidTargets []string
}

// PushProvider delivers an event to a user's registered devices.
type PushProvider interface {
	Send(ctx context.Context, userID string, e events.Event) (PushResult, error)
}

// TargetCleaner removes stale device tokens from a user's registered list.
type TargetCleaner interface {
	RemovePushTargets(ctx context.Context, userID string, tokens []string) error
}

type Via string

const (
	ViaRealtime Via = "realtime"
	ViaPush     Via = "push"
	ViaNone     Via = "none"
)

type Result struct {
	Via            Via
	Delivered      bool
	Throttled      bool
	RemovedTargets int
}

type Config struct {
	// PushEnabled turns the push fallback on.
	PushEnabled bool
	// PushRatePerMinute caps fallback pushes per user. Zero disables the cap.
	PushRatePerMinute int
}

// Dispatcher delivers call events: real-time channel first, push second.
type Dispatcher struct {
	channel Channel
	push    PushProvider
	targets TargetCleaner
	cfg     Config
	limiter *userLimiter
	log     *slog.Logger
}

func NewDispatcher(channel Channel, push PushProvider, targets TargetCleaner, cfg Config, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		channel: channel,
		push:    push,
		targets: targets,
		cfg:     cfg,
		log:     log,
	}
	if cfg.PushRatePerMinute > 0 {
		d.limiter = newUserLimiter(cfg.PushRatePerMinute, time.Now)
	}
	return d
}

// Notify delivers e to userID. Stale-target cleanup never fails it.
func (d *Dispatcher) Notify(ctx context.Context, userID string, e events.Event) error {
	_, err := d.Deliver(ctx, userID, e)
	return err
}

// Deliver is Notify with the delivery outcome.
func (d *Dispatcher) Deliver(ctx context.Context, userID string, e events.Event) (Result, error) {
	if userID == "" {
		return Result{Via: ViaNone}, errors.New("notify: empty user id")
	}
	log := d.log.With("user_id", userID, "event", string(e.Type), "call_id", e.CallID)

	if d.channel != nil && d.channel.IsConnected(userID) && d.channel.Send(userID, e) {
		metrics.Notifications.WithLabelValues(string(ViaRealtime), "delivered").Inc()
		return Result{Via: ViaRealtime, Delivered: true}, nil
	}

	if !d.cfg.PushEnabled || d.push == nil {
		metrics.Notifications.WithLabelValues(string(ViaNone), "undelivered").Inc()
		log.Debug("user offline and push disabled")
		return Result{Via: ViaNone}, nil
	}

	if d.limiter != nil && !d.limiter.Allow(userID) {
		metrics.Notifications.WithLabelValues(string(ViaPush), "throttled").Inc()
		log.Warn("push throttled")
		return Result{Via: ViaPush, Throttled: true}, nil
	}

	res, err := d.push.Send(ctx, userID, e)
	out := Result{Via: ViaPush, Delivered: res.Delivered}

	if len(res.InvalidTargets) > 0 && d.targets != nil {
		if cerr := d.targets.RemovePushTargets(ctx, userID, res.InvalidTargets); cerr != nil {
			log.Warn("stale push target cleanup failed", "count", len(res.InvalidTargets), "err", cerr)
		} else {
			out.RemovedTargets = len(res.InvalidTargets)
			log.Info("removed stale push targets", "count", out.RemovedTargets)
		}
	}

	if err != nil {
		metrics.Notifications.WithLabelValues(string(ViaPush), "error").Inc()
		return out, err
	}
	result := "delivered"
	if !res.Delivered {
		result = "undelivered"
	}
	metrics.Notifications.WithLabelValues(string(ViaPush), result).Inc()
	return out, nil
}
