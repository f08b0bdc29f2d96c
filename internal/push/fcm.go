package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voice-platform/internal/events"
	"voice-platform/internal/notify"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// fcmMaxTokens is the per-request limit of SendEachForMulticast.
const fcmMaxTokens = 500

// MulticastClient is the slice of the FCM messaging client used here.
type MulticastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// TokenSource lists a user's registered device tokens.
type TokenSource interface {
	PushTokens(ctx context.Context, userID string) ([]string, error)
}

// FCMProvider fans an event out to every device a user has registered.
type FCMProvider struct {
	client  MulticastClient
	tokens  TokenSource
	ttl     time.Duration
	log     *slog.Logger
	invalid func(error) bool
}

// NewFCMClient initialises a Firebase app from the service-account JSON
// file at credentialsFile. If credentialsFile is empty, the SDK falls back
// to GOOGLE_APPLICATION_CREDENTIALS or the default service account.
func NewFCMClient(ctx context.Context, credentialsFile string) (*messaging.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining messaging client: %w", err)
	}
	return client, nil
}

func NewFCMProvider(client MulticastClient, tokens TokenSource, ttl time.Duration, log *slog.Logger) *FCMProvider {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &FCMProvider{
		client:  client,
		tokens:  tokens,
		ttl:     ttl,
		log:     log,
		invalid: isPermanentTokenError,
	}
}

// Send pushes e to all of userID's devices. Tokens FCM rejects as
// unregistered come back in InvalidTargets; they are not an error.
func (p *FCMProvider) Send(ctx context.Context, userID string, e events.Event) (notify.PushResult, error) {
	if p.client == nil || p.tokens == nil {
		return notify.PushResult{}, errors.New("push: fcm not configured")
	}
	tokens, err := p.tokens.PushTokens(ctx, userID)
	if err != nil {
		return notify.PushResult{}, fmt.Errorf("push: list targets: %w", err)
	}
	if len(tokens) == 0 {
		return notify.PushResult{}, nil
	}

	var out notify.PushResult
	data := e.Data()
	for start := 0; start < len(tokens); start += fcmMaxTokens {
		end := min(start+fcmMaxTokens, len(tokens))
		batch := tokens[start:end]

		resp, err := p.client.SendEachForMulticast(ctx, p.message(batch, data))
		if err != nil {
			return out, fmt.Errorf("push: fcm send: %w", err)
		}
		if resp.SuccessCount > 0 {
			out.Delivered = true
		}
		for i, r := range resp.Responses {
			if r == nil || r.Success || i >= len(batch) {
				continue
			}
			if p.invalid(r.Error) {
				out.InvalidTargets = append(out.InvalidTargets, batch[i])
				continue
			}
			p.log.Warn("fcm send to device failed", "user_id", userID, "call_id", e.CallID, "err", r.Error)
		}
	}

	p.log.Debug("fcm push sent", "user_id", userID, "call_id", e.CallID, "devices", len(tokens), "delivered", out.Delivered)
	return out, nil
}

func (p *FCMProvider) message(tokens []string, data map[string]string) *messaging.MulticastMessage {
	ttl := p.ttl
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			TTL:      &ttl,
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10"},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{ContentAvailable: true},
			},
		},
	}
}

func isPermanentTokenError(err error) bool {
	if err == nil {
		return false
	}
	return messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err)
}
