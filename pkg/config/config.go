// Package config holds the client configuration surface: transport
// timeout, retry policy knobs, API version, and the login environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultBackoff     = 10 * time.Second
	DefaultPageSize    = 100
	DefaultAPIVersion  = "v36.0"
	ProductionLoginURL = "https://login.salesforce.com"
	SandboxLoginURL    = "https://test.salesforce.com"
)

type Config struct {
	// Timeout is the per-HTTP-call socket timeout. There is no
	// deadline across a whole retry sequence.
	Timeout time.Duration
	// DefaultBackoff is the constant wait between retry attempts.
	DefaultBackoff time.Duration
	// DefaultPageSize is reserved for paginated endpoints; the core
	// does not consume it yet.
	DefaultPageSize int
	// RetryOnStatus lists the HTTP statuses treated as transient.
	RetryOnStatus []int
	// MaxTries caps attempts per request; 0 means unlimited.
	MaxTries uint
	// MaxElapsed bounds the total time spent retrying one request;
	// 0 means no bound.
	MaxElapsed time.Duration
	// Sandbox selects the test login host for the token exchange.
	Sandbox bool
	// APIVersion is the REST API version segment, e.g. "v36.0".
	APIVersion string
	// LoginURL overrides the login host entirely (custom domains).
	LoginURL string
	// CredentialsFile is the path to the stored credential record.
	CredentialsFile string
}

// Default returns a Config with the stock values.
func Default() *Config {
	return &Config{
		Timeout:         DefaultTimeout,
		DefaultBackoff:  DefaultBackoff,
		DefaultPageSize: DefaultPageSize,
		RetryOnStatus:   []int{429, 500, 502, 503, 504},
		APIVersion:      DefaultAPIVersion,
	}
}

// Load builds a Config from the environment, reading a .env file first
// if one exists.
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := Default()
	cfg.CredentialsFile = os.Getenv("SF_CREDENTIALS_FILE")
	cfg.LoginURL = os.Getenv("SF_LOGIN_URL")

	if v := os.Getenv("SF_API_VERSION"); v != "" {
		cfg.APIVersion = v
	}
	if v := os.Getenv("SF_SANDBOX"); v != "" {
		sandbox, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("SF_SANDBOX must be a boolean: %w", err)
		}
		cfg.Sandbox = sandbox
	}

	var err error
	if cfg.Timeout, err = secondsEnv("SF_TIMEOUT", cfg.Timeout); err != nil {
		return nil, err
	}
	if cfg.DefaultBackoff, err = secondsEnv("SF_DEFAULT_BACKOFF", cfg.DefaultBackoff); err != nil {
		return nil, err
	}
	if cfg.MaxElapsed, err = secondsEnv("SF_MAX_ELAPSED", cfg.MaxElapsed); err != nil {
		return nil, err
	}

	if v := os.Getenv("SF_MAX_TRIES"); v != "" {
		tries, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("SF_MAX_TRIES must be a non-negative integer: %w", err)
		}
		cfg.MaxTries = uint(tries)
	}
	if v := os.Getenv("SF_PAGE_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("SF_PAGE_SIZE must be a positive integer")
		}
		cfg.DefaultPageSize = size
	}
	if v := os.Getenv("SF_RETRY_ON_STATUS"); v != "" {
		statuses, err := parseStatusList(v)
		if err != nil {
			return nil, err
		}
		cfg.RetryOnStatus = statuses
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.DefaultBackoff < 0 {
		return fmt.Errorf("default backoff must not be negative")
	}
	if c.APIVersion == "" {
		return fmt.Errorf("api version is required")
	}
	return nil
}

// LoginBase returns the host the token exchange is issued against:
// the explicit override when set, otherwise the production or sandbox
// login host.
func (c *Config) LoginBase() string {
	if c.LoginURL != "" {
		return c.LoginURL
	}
	if c.Sandbox {
		return SandboxLoginURL
	}
	return ProductionLoginURL
}

func secondsEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("%s must be a non-negative number of seconds", key)
	}
	return time.Duration(secs) * time.Second, nil
}

func parseStatusList(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	statuses := make([]int, 0, len(parts))
	for _, part := range parts {
		code, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || code < 100 || code > 599 {
			return nil, fmt.Errorf("SF_RETRY_ON_STATUS contains an invalid status code: %q", part)
		}
		statuses = append(statuses, code)
	}
	return statuses, nil
}
