// Package config reads service configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/switchboardhq/switchboard/internal/errs"
)

// Config holds everything the server needs. Secrets stay in the process
// environment and are read by the packages that use them (the vault key) or
// copied here (provider credentials).
type Config struct {
	DBPath      string
	APIPort     int
	HTTPSPort   int
	Domain      string
	ACME        bool
	ACMEEmail   string
	ACMEStaging bool

	RedisURL          string
	RateLimit         int
	RateWindow        time.Duration
	RateSweepInterval time.Duration

	TwilioAuthToken         string
	WebhookURL              string
	RequireWebhookSignature bool
	StatusCallbackURL       string

	NATSURL string

	FacebookAppID      string
	FacebookAppSecret  string
	TikTokClientKey    string
	TikTokClientSecret string
	GoogleClientID     string
	GoogleClientSecret string

	HTTPTimeout time.Duration
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DBPath:                  "switchboard.db",
		APIPort:                 8081,
		HTTPSPort:               8443,
		RateLimit:               10,
		RateWindow:              60 * time.Second,
		RequireWebhookSignature: true,
		HTTPTimeout:             30 * time.Second,
	}
}

// LoadEnvFiles loads the given files, or .env, into the process environment.
// Variables already set are not overridden. Missing files are skipped.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: load %s: %v", errs.ErrConfiguration, f, err)
		}
	}
	return nil
}

// Load loads .env and reads the environment on top of Default.
func Load() (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}
	return FromEnv()
}

// FromEnv reads the environment on top of Default. Malformed values are
// configuration errors.
func FromEnv() (*Config, error) {
	cfg := Default()
	p := parser{}

	cfg.DBPath = getEnv("SWITCHBOARD_DB", cfg.DBPath)
	cfg.APIPort = p.int("SWITCHBOARD_API_PORT", cfg.APIPort)
	cfg.HTTPSPort = p.int("SWITCHBOARD_HTTPS_PORT", cfg.HTTPSPort)
	cfg.Domain = os.Getenv("SWITCHBOARD_DOMAIN")
	cfg.ACME = p.bool("SWITCHBOARD_ACME", cfg.ACME)
	cfg.ACMEEmail = os.Getenv("SWITCHBOARD_ACME_EMAIL")
	cfg.ACMEStaging = p.bool("SWITCHBOARD_ACME_STAGING", cfg.ACMEStaging)

	cfg.RedisURL = os.Getenv("SWITCHBOARD_REDIS_URL")
	cfg.RateLimit = p.int("SWITCHBOARD_RATE_LIMIT", cfg.RateLimit)
	cfg.RateWindow = p.duration("SWITCHBOARD_RATE_WINDOW", cfg.RateWindow)
	cfg.RateSweepInterval = p.duration("SWITCHBOARD_RATE_LIMIT_SWEEP_INTERVAL", cfg.RateSweepInterval)

	cfg.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.WebhookURL = os.Getenv("SWITCHBOARD_WEBHOOK_URL")
	cfg.RequireWebhookSignature = p.bool("SWITCHBOARD_WEBHOOK_REQUIRE_SIGNATURE", cfg.RequireWebhookSignature)
	cfg.StatusCallbackURL = os.Getenv("SWITCHBOARD_STATUS_CALLBACK_URL")

	cfg.NATSURL = os.Getenv("SWITCHBOARD_NATS_URL")

	cfg.FacebookAppID = os.Getenv("FACEBOOK_APP_ID")
	cfg.FacebookAppSecret = os.Getenv("FACEBOOK_APP_SECRET")
	cfg.TikTokClientKey = os.Getenv("TIKTOK_CLIENT_KEY")
	cfg.TikTokClientSecret = os.Getenv("TIKTOK_CLIENT_SECRET")
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")

	cfg.HTTPTimeout = p.duration("SWITCHBOARD_HTTP_TIMEOUT", cfg.HTTPTimeout)

	if p.err != nil {
		return nil, p.err
	}
	if cfg.RateLimit <= 0 || cfg.RateWindow <= 0 {
		return nil, fmt.Errorf("%w: rate limit and window must be positive", errs.ErrConfiguration)
	}
	return cfg, nil
}

// parser records the first malformed variable.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s=%q: %v", errs.ErrConfiguration, key, value, err)
	}
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
