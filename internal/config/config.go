// Package config handles client configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the connection and tuning settings for the job-execution
// service client.
type Config struct {
	APIURL   string // base URL of the jobs API (required)
	AuthURL  string // base URL of the token service (required unless Token is set)
	User     string // basic-auth user for token acquisition
	Password string // basic-auth password for token acquisition
	Token    string // static bearer token; skips token acquisition entirely

	PollInterval   time.Duration // run-status poll interval (default 30s)
	JobTimeout     time.Duration // polling ceiling (default 900s)
	LogSettleDelay time.Duration // wait before fetching logs (default 40s)

	HistoryPath string // SQLite run-history file; empty disables history
	LogLevel    string // debug, info, warn, error (default "info")

	// Rate limiting of API calls.
	RateLimitRPS   float64 // sustained calls per second (default 10)
	RateLimitBurst int     // burst capacity (default 20)
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		APIURL:      os.Getenv("CDE_API_URL"),
		AuthURL:     os.Getenv("CDE_AUTH_URL"),
		User:        os.Getenv("CDE_USER"),
		Password:    os.Getenv("CDE_PASSWORD"),
		Token:       os.Getenv("CDE_TOKEN"),
		HistoryPath: os.Getenv("CDE_HISTORY_PATH"),
		LogLevel:    os.Getenv("CDE_LOG_LEVEL"),
	}

	var err error
	if cfg.PollInterval, err = DurationEnv("CDE_POLL_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.JobTimeout, err = DurationEnv("CDE_JOB_TIMEOUT", 900*time.Second); err != nil {
		return nil, err
	}
	if cfg.LogSettleDelay, err = DurationEnv("CDE_LOG_SETTLE_DELAY", 40*time.Second); err != nil {
		return nil, err
	}

	if v := os.Getenv("CDE_RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid CDE_RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = f
	}
	if v := os.Getenv("CDE_RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CDE_RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimitBurst = n
	}

	// Defaults
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 10
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 20
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("CDE_API_URL is required")
	}
	if c.Token == "" {
		if c.AuthURL == "" {
			return fmt.Errorf("CDE_AUTH_URL is required when CDE_TOKEN is not set")
		}
		if c.User == "" {
			return fmt.Errorf("CDE_USER is required when CDE_TOKEN is not set")
		}
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("CDE_POLL_INTERVAL must be positive")
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("CDE_JOB_TIMEOUT must be positive")
	}
	return nil
}

// DurationEnv reads a duration from the environment, accepting both bare
// seconds ("30") and Go duration syntax ("30s", "2m").
func DurationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Env vars take precedence over the .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
