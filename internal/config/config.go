package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Calls     CallsConfig
	Media     MediaConfig
	Recording RecordingConfig
	Push      PushConfig
}

type AppConfig struct {
	Env  string
	Port int

	ShutdownTimeout time.Duration
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	// KeyPrefix namespaces every cache key.
	KeyPrefix string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// CallsConfig tunes the call lifecycle timers.
type CallsConfig struct {
	RingTimeout         time.Duration
	SweepInterval       time.Duration
	InactivityThreshold time.Duration
	CacheTTL            time.Duration
	ActiveListTTL       time.Duration
	SideEffectTimeout   time.Duration
}

// MediaConfig is used to sign media channel join tokens.
type MediaConfig struct {
	AppID       string
	TokenSecret string
	TokenTTL    time.Duration
}

type RecordingConfig struct {
	// BaseURL of the recording service. Empty disables recording.
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type PushConfig struct {
	Enabled            bool
	FCMCredentialsFile string
	RatePerMinute      int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.ShutdownTimeout, parseErrs = appendDuration(parseErrs, "APP_SHUTDOWN_TIMEOUT")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	{
		n, err := optionalInt("REDIS_DB")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.DB = n
	}
	c.Redis.KeyPrefix = strings.TrimSpace(os.Getenv("REDIS_KEY_PREFIX"))

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL, parseErrs = appendDuration(parseErrs, "JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL, parseErrs = appendDuration(parseErrs, "JWT_REFRESH_TTL")

	c.Calls.RingTimeout, parseErrs = appendDuration(parseErrs, "CALL_RING_TIMEOUT")
	c.Calls.SweepInterval, parseErrs = appendDuration(parseErrs, "CALL_SWEEP_INTERVAL")
	c.Calls.InactivityThreshold, parseErrs = appendDuration(parseErrs, "CALL_INACTIVITY_THRESHOLD")
	c.Calls.CacheTTL, parseErrs = appendDuration(parseErrs, "CALL_CACHE_TTL")
	c.Calls.ActiveListTTL, parseErrs = appendDuration(parseErrs, "CALL_ACTIVE_LIST_TTL")
	c.Calls.SideEffectTimeout, parseErrs = appendDuration(parseErrs, "CALL_SIDE_EFFECT_TIMEOUT")

	c.Media.AppID = strings.TrimSpace(os.Getenv("MEDIA_APP_ID"))
	c.Media.TokenSecret = os.Getenv("MEDIA_TOKEN_SECRET")
	c.Media.TokenTTL, parseErrs = appendDuration(parseErrs, "MEDIA_TOKEN_TTL")

	c.Recording.BaseURL = strings.TrimSpace(os.Getenv("RECORDING_BASE_URL"))
	c.Recording.APIKey = os.Getenv("RECORDING_API_KEY")
	c.Recording.Timeout, parseErrs = appendDuration(parseErrs, "RECORDING_TIMEOUT")

	{
		b, err := optionalBool("PUSH_ENABLED")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Push.Enabled = b
	}
	c.Push.FCMCredentialsFile = strings.TrimSpace(os.Getenv("FCM_CREDENTIALS_FILE"))
	{
		n, err := optionalInt("PUSH_RATE_PER_MINUTE")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Push.RatePerMinute = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.ShutdownTimeout <= 0 {
		c.App.ShutdownTimeout = 15 * time.Second
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be >= 0, got %d", c.Redis.DB))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	c.Calls.applyDefaults()
	if c.Calls.InactivityThreshold <= c.Calls.RingTimeout {
		errs = append(errs, errors.New("CALL_INACTIVITY_THRESHOLD must be greater than CALL_RING_TIMEOUT"))
	}

	if c.Media.TokenSecret == "" {
		errs = append(errs, errors.New("MEDIA_TOKEN_SECRET is required"))
	}
	if c.Media.AppID == "" {
		errs = append(errs, errors.New("MEDIA_APP_ID is required"))
	}
	if c.Media.TokenTTL <= 0 {
		c.Media.TokenTTL = 2 * time.Hour
	}

	if c.Recording.BaseURL != "" {
		if u, err := url.Parse(c.Recording.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("RECORDING_BASE_URL must be an absolute URL, got %q", c.Recording.BaseURL))
		}
		if c.IsProduction() && c.Recording.APIKey == "" {
			errs = append(errs, errors.New("RECORDING_API_KEY is required in production when recording is enabled"))
		}
	}
	if c.Recording.Timeout <= 0 {
		c.Recording.Timeout = 10 * time.Second
	}

	if c.Push.RatePerMinute < 0 {
		errs = append(errs, fmt.Errorf("PUSH_RATE_PER_MINUTE must be >= 0, got %d", c.Push.RatePerMinute))
	}
	if c.Push.RatePerMinute == 0 {
		c.Push.RatePerMinute = 30
	}

	return joinErrors(errs)
}

func (c *CallsConfig) applyDefaults() {
	if c.RingTimeout <= 0 {
		c.RingTimeout = 60 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 60 * time.Second
	}
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = 5 * time.Minute
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.ActiveListTTL <= 0 {
		c.ActiveListTTL = 30 * time.Second
	}
	if c.SideEffectTimeout <= 0 {
		c.SideEffectTimeout = 5 * time.Second
	}
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) RecordingEnabled() bool {
	return c.Recording.BaseURL != ""
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

// optionalDuration returns 0 for an unset key so Validate can apply defaults.
func optionalDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}

func appendDuration(errs []error, key string) (time.Duration, []error) {
	d, err := optionalDuration(key)
	if err != nil {
		errs = append(errs, err)
	}
	return d, errs
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
