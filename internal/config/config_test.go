package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voice"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		Media: MediaConfig{AppID: "app", TokenSecret: "media-secret"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected error for production without DB_SSLMODE, got %v", err)
	}
}

func TestValidate_LocalAppliesDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Calls.RingTimeout != 60*time.Second || c.Calls.SweepInterval != 60*time.Second {
		t.Fatalf("unexpected call timer defaults %+v", c.Calls)
	}
	if c.Calls.InactivityThreshold != 5*time.Minute || c.Calls.ActiveListTTL != 30*time.Second {
		t.Fatalf("unexpected call timer defaults %+v", c.Calls)
	}
	if c.Media.TokenTTL != 2*time.Hour {
		t.Fatalf("expected media token ttl default")
	}
	if c.Push.RatePerMinute != 30 {
		t.Fatalf("expected push rate default")
	}
	if c.RecordingEnabled() {
		t.Fatalf("recording should be off without base url")
	}
}

func TestValidate_InactivityMustExceedRing(t *testing.T) {
	c := validLocal()
	c.Calls.RingTimeout = 10 * time.Minute
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "CALL_INACTIVITY_THRESHOLD") {
		t.Fatalf("expected inactivity error, got %v", err)
	}
}

func TestValidate_RecordingURL(t *testing.T) {
	c := validLocal()
	c.Recording.BaseURL = "not a url"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected url error")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	env := map[string]string{
		"APP_ENV":              "dev",
		"APP_PORT":             "8080",
		"DB_HOST":              "db",
		"DB_PORT":              "5432",
		"DB_USER":              "u",
		"DB_NAME":              "voice",
		"REDIS_HOST":           "cache",
		"REDIS_PORT":           "6379",
		"REDIS_DB":             "2",
		"JWT_SECRET":           "s",
		"MEDIA_APP_ID":         "app",
		"MEDIA_TOKEN_SECRET":   "m",
		"CALL_RING_TIMEOUT":    "45s",
		"PUSH_ENABLED":         "true",
		"PUSH_RATE_PER_MINUTE": "12",
		"RECORDING_BASE_URL":   "https://rec.example.com",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Calls.RingTimeout != 45*time.Second || c.Redis.DB != 2 || !c.Push.Enabled || c.Push.RatePerMinute != 12 {
		t.Fatalf("unexpected config %+v", c)
	}
	if !c.RecordingEnabled() {
		t.Fatalf("expected recording enabled")
	}
	if c.RedisAddr() != "cache:6379" || c.HTTPAddr() != ":8080" {
		t.Fatalf("unexpected addrs")
	}
}

func TestLoad_BadDurationIsReported(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("CALL_RING_TIMEOUT", "sixty")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "CALL_RING_TIMEOUT") {
		t.Fatalf("expected duration parse error, got %v", err)
	}
}
