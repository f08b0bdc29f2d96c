package telephony

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-platform/internal/calls"
	"voice-platform/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MediaClaims authorise one user to join one media channel.
type MediaClaims struct {
	jwt.RegisteredClaims

	AppID   string `json:"app_id"`
	Channel string `json:"channel"`
	UID     string `json:"uid"`
}

var ErrInvalidMediaToken = errors.New("telephony: invalid media token")

// MediaRooms issues join tokens for call media channels. The media server
// verifies them with the shared secret; no round trip is needed to create
// a room.
type MediaRooms struct {
	appID  string
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

func NewMediaRooms(cfg config.MediaConfig) (*MediaRooms, error) {
	if cfg.TokenSecret == "" {
		return nil, errors.New("MEDIA_TOKEN_SECRET is required")
	}
	if cfg.AppID == "" {
		return nil, errors.New("MEDIA_APP_ID is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &MediaRooms{
		appID:  cfg.AppID,
		secret: []byte(cfg.TokenSecret),
		ttl:    ttl,
		clock:  time.Now,
	}, nil
}

// CreateRoom returns the channel for callID with a token per registered
// participant. calleeID may be empty for an unresolved number.
func (m *MediaRooms) CreateRoom(ctx context.Context, callID, callerID, calleeID string) (calls.Room, error) {
	if callID == "" || callerID == "" {
		return calls.Room{}, errors.New("telephony: call id and caller are required")
	}
	if err := ctx.Err(); err != nil {
		return calls.Room{}, err
	}

	channel := calls.ChannelName(callID)
	now := m.clock().UTC()
	room := calls.Room{ChannelName: channel, Tokens: map[string]string{}}

	for _, uid := range []string{callerID, calleeID} {
		if uid == "" {
			continue
		}
		tok, err := m.issue(now, channel, uid)
		if err != nil {
			return calls.Room{}, fmt.Errorf("telephony: sign media token: %w", err)
		}
		room.Tokens[uid] = tok
	}
	return room, nil
}

// verify parses a media token and checks it was issued for channel.
func (m *MediaRooms) verify(token, channel string) (MediaClaims, error) {
	var claims MediaClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.clock),
		jwt.WithLeeway(30*time.Second),
	)
	if _, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return MediaClaims{}, fmt.Errorf("%w: %w", ErrInvalidMediaToken, err)
	}
	if claims.AppID != m.appID || claims.Channel != channel || claims.UID == "" {
		return MediaClaims{}, ErrInvalidMediaToken
	}
	return claims, nil
}

func (m *MediaRooms) issue(now time.Time, channel, uid string) (string, error) {
	claims := MediaClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.appID,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
		AppID:   m.appID,
		Channel: channel,
		UID:     uid,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}
