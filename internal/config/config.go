package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAppName          = "WalletLedger"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultAccessTokenTTL   = 24 * time.Hour
	defaultLockTimeout      = 5 * time.Second
	defaultGatewayTimeout   = 30 * time.Second
	defaultReconcileEvery   = 5 * time.Minute
	defaultReconcileAfter   = 15 * time.Minute
	defaultAPIKeyPrefix     = "sk_live"
	defaultMaxActiveKeys    = 5
	defaultAuthFailuresRate = 10
	defaultCurrency         = "NGN"
	defaultPaystackBaseURL  = "https://api.paystack.co"
)

// Config captures application runtime configuration. It is built once at
// startup and passed by value to the components that need it.
type Config struct {
	AppName   string
	Env       string
	Port      string
	LogLevel  string
	LogFormat string

	DatabaseURL string
	RedisURL    string
	Migrate     bool

	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	LockTimeout    time.Duration

	JWTSecret      string
	AccessTokenTTL time.Duration

	APIKeyPrefix          string
	APIKeyHashCost        int
	MaxActiveAPIKeys      int
	AuthFailuresPerMinute int

	PaystackSecretKey     string
	PaystackWebhookSecret string
	PaystackBaseURL       string
	PaystackCallbackURL   string
	GatewayTimeout        time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	ReconcileInterval time.Duration
	ReconcileAfter    time.Duration

	Currency string
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		AppName:   getEnv("APP_NAME", defaultAppName),
		Env:       strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:      getEnv("PORT", defaultPort),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		APIKeyPrefix: getEnv("API_KEY_PREFIX", defaultAPIKeyPrefix),

		PaystackSecretKey:     os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackWebhookSecret: os.Getenv("PAYSTACK_WEBHOOK_SECRET"),
		PaystackBaseURL:       strings.TrimRight(getEnv("PAYSTACK_BASE_URL", defaultPaystackBaseURL), "/"),
		PaystackCallbackURL:   os.Getenv("PAYSTACK_CALLBACK_URL"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURI:  os.Getenv("GOOGLE_REDIRECT_URI"),

		Currency: strings.ToUpper(getEnv("CURRENCY", defaultCurrency)),
	}

	var err error
	if cfg.Migrate, err = boolEnv("APP_MIGRATE", false); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.LockTimeout, err = durationEnv("LOCK_TIMEOUT", defaultLockTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", defaultAccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.GatewayTimeout, err = durationEnv("GATEWAY_TIMEOUT", defaultGatewayTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileInterval, err = durationEnv("RECONCILE_INTERVAL", defaultReconcileEvery); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileAfter, err = durationEnv("RECONCILE_AFTER", defaultReconcileAfter); err != nil {
		return Config{}, err
	}
	if cfg.APIKeyHashCost, err = intEnv("API_KEY_HASH_COST", bcrypt.DefaultCost); err != nil {
		return Config{}, err
	}
	if cfg.MaxActiveAPIKeys, err = intEnv("API_KEY_MAX_ACTIVE", defaultMaxActiveKeys); err != nil {
		return Config{}, err
	}
	if cfg.AuthFailuresPerMinute, err = intEnv("AUTH_FAILURES_PER_MINUTE", defaultAuthFailuresRate); err != nil {
		return Config{}, err
	}

	if cfg.PaystackWebhookSecret == "" {
		cfg.PaystackWebhookSecret = cfg.PaystackSecretKey
	}

	if cfg.APIKeyHashCost < bcrypt.MinCost || cfg.APIKeyHashCost > bcrypt.MaxCost {
		return Config{}, fmt.Errorf("API_KEY_HASH_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	if !cfg.IsDev() && cfg.PaystackWebhookSecret == "" {
		return Config{}, fmt.Errorf("PAYSTACK_WEBHOOK_SECRET or PAYSTACK_SECRET_KEY must be set when APP_ENV=%s", cfg.Env)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch c.Env {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURI != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads <name>_SECONDS as integer seconds, falling back to <name>
// as a Go duration string.
func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(name + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", name, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(name); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", name, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func boolEnv(name string, fallback bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return b, nil
}
