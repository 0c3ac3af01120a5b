package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const defaultPort = "8585"

type Config struct {
	Port         string `envconfig:"PORT" default:"8585"`
	DBPath       string `envconfig:"DB_PATH" default:"./sekuwa.db"`
	CookieDomain string `envconfig:"COOKIE_DOMAIN" default:""`
	CookieSecure bool   `envconfig:"COOKIE_SECURE" default:"false"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	UploadDir    string `envconfig:"UPLOAD_DIR" default:"./uploads"`

	// Base64 encoded; see decodeKey.
	CSRFKeyRaw    string `envconfig:"CSRF_KEY"`
	SessionKeyRaw string `envconfig:"SESSION_KEY"`
	CSRFKey       []byte `ignored:"true"`
	SessionKey    []byte `ignored:"true"`

	StateBackend  string        `envconfig:"STATE_BACKEND" default:"memory"`
	StateTTL      time.Duration `envconfig:"STATE_TTL" default:"24h"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`

	DeliveryFee           decimal.Decimal `envconfig:"DELIVERY_FEE" default:"50"`
	FreeDeliveryThreshold decimal.Decimal `envconfig:"FREE_DELIVERY_THRESHOLD" default:"500"`
	OrderRateWindow       time.Duration   `envconfig:"ORDER_RATE_WINDOW" default:"3s"`
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	cfg.CSRFKey = decodeKey("CSRF_KEY", cfg.CSRFKeyRaw)
	cfg.SessionKey = decodeKey("SESSION_KEY", cfg.SessionKeyRaw)

	// Make sure port is valid
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		slog.Error("Invalid PORT environment variable. Falling back to default.", "PORT", cfg.Port)
		cfg.Port = defaultPort
	}

	cfg.StateBackend = strings.ToLower(strings.TrimSpace(cfg.StateBackend))
	if cfg.StateBackend != "memory" && cfg.StateBackend != "redis" {
		return nil, fmt.Errorf("STATE_BACKEND must be memory or redis, got %q", cfg.StateBackend)
	}
	if cfg.StateTTL <= 0 {
		return nil, fmt.Errorf("STATE_TTL must be positive, got %s", cfg.StateTTL)
	}
	if cfg.DeliveryFee.IsNegative() || cfg.FreeDeliveryThreshold.IsNegative() {
		return nil, fmt.Errorf("DELIVERY_FEE and FREE_DELIVERY_THRESHOLD must not be negative")
	}

	return &cfg, nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// decodeKey returns the decoded key, or a random one with a warning when the
// variable is unset or shorter than 32 bytes. Random keys change on restart.
func decodeKey(name, raw string) []byte {
	if raw == "" {
		slog.Warn(name + " environment variable not set. Generating a random key for development. This key will change on each restart. PLEASE SET " + name + " IN PRODUCTION!")
		return generateRandomBytes(32)
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(decoded) < 32 {
		slog.Warn(name + " is invalid or too short (min 32 bytes recommended). Generating a random key for development. PLEASE SET A SECURE " + name + " IN PRODUCTION!")
		return generateRandomBytes(32)
	}
	return decoded
}

func generateRandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return b
}
