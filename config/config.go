// Package config loads smoke run settings from defaults, an optional YAML file and the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/st-keller/galacash-smoke/types"
)

// Config holds all smoke run settings.
type Config struct {
	BaseURL   string            `yaml:"base_url"`
	User      types.Credentials `yaml:"user"`
	Bendahara types.Credentials `yaml:"bendahara"`

	SaveDir         string `yaml:"save_dir"`
	Verbose         bool   `yaml:"verbose"`
	WaitBeforeStart bool   `yaml:"wait_before_start"`
	KeepGoing       bool   `yaml:"keep_going"`
	Extended        bool   `yaml:"extended"`
	CheckMe         bool   `yaml:"check_me"`
	HistoryDB       string `yaml:"history_db"`

	// Year used for cash bill year/month filters.
	CurrentYear int `yaml:"current_year"`

	HTTP   HTTPConfig   `yaml:"http"`
	Pacing PacingConfig `yaml:"pacing"`
}

// HTTPConfig configures the HTTP client.
type HTTPConfig struct {
	Timeout string `yaml:"timeout"`
	CACert  string `yaml:"ca_cert"` // PEM bundle; empty = system roots
}

// PacingConfig holds the pauses that keep a run under the API's rate limits.
type PacingConfig struct {
	RequestDelay    string `yaml:"request_delay"`
	LoginGap        string `yaml:"login_gap"`
	RateLimitReset  string `yaml:"rate_limit_reset"`
	LoginRetryDelay string `yaml:"login_retry_delay"`
	LoginRetryStep  string `yaml:"login_retry_step"`
	LoginAttempts   int    `yaml:"login_attempts"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:3000/api",
		User: types.Credentials{
			NIM:      "1313600001",
			Password: "password123",
		},
		Bendahara: types.Credentials{
			NIM:      "1313699999",
			Password: "password123",
		},
		CurrentYear: 2026,
		HTTP: HTTPConfig{
			Timeout: "30s",
		},
		Pacing: PacingConfig{
			RequestDelay:    "300ms",
			LoginGap:        "20s",
			RateLimitReset:  "60s",
			LoginRetryDelay: "15s",
			LoginRetryStep:  "10s",
			LoginAttempts:   3,
		},
	}
}

// Load loads configuration from a YAML file, then applies environment overrides.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
			// defaults
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("USER_NIM"); v != "" {
		c.User.NIM = v
	}
	if v := os.Getenv("USER_PASSWORD"); v != "" {
		c.User.Password = v
	}
	if v := os.Getenv("BENDAHARA_NIM"); v != "" {
		c.Bendahara.NIM = v
	}
	if v := os.Getenv("BENDAHARA_PASSWORD"); v != "" {
		c.Bendahara.Password = v
	}
	if v := os.Getenv("SMOKE_SAVE_DIR"); v != "" {
		c.SaveDir = v
	}
	if v := os.Getenv("SMOKE_HISTORY_DB"); v != "" {
		c.HistoryDB = v
	}
	if v := os.Getenv("SMOKE_TIMEOUT"); v != "" {
		c.HTTP.Timeout = v
	}
	if v := os.Getenv("SMOKE_CA_CERT"); v != "" {
		c.HTTP.CACert = v
	}
	if v := os.Getenv("SMOKE_REQUEST_DELAY"); v != "" {
		c.Pacing.RequestDelay = v
	}
	if v := os.Getenv("SMOKE_LOGIN_GAP"); v != "" {
		c.Pacing.LoginGap = v
	}
	if v := os.Getenv("SMOKE_RATE_LIMIT_RESET"); v != "" {
		c.Pacing.RateLimitReset = v
	}

	// Flags are "1" = on; any other non-empty value turns them off.
	applyFlag(&c.Verbose, "VERBOSE")
	applyFlag(&c.WaitBeforeStart, "WAIT_BEFORE_START")
	applyFlag(&c.KeepGoing, "SMOKE_KEEP_GOING")
	applyFlag(&c.Extended, "SMOKE_EXTENDED")
	applyFlag(&c.CheckMe, "SMOKE_CHECK_ME")
}

func applyFlag(dst *bool, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v == "1"
	}
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid BaseURL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("BaseURL must be http or https, got %q", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("BaseURL host required")
	}
	if c.User.NIM == "" || c.User.Password == "" {
		return fmt.Errorf("user credentials required")
	}
	if c.Bendahara.NIM == "" || c.Bendahara.Password == "" {
		return fmt.Errorf("bendahara credentials required")
	}
	if c.Pacing.LoginAttempts < 1 {
		return fmt.Errorf("pacing.login_attempts must be >= 1")
	}
	if c.CurrentYear < 2000 {
		return fmt.Errorf("current_year %d out of range", c.CurrentYear)
	}

	durations := map[string]string{
		"http.timeout":             c.HTTP.Timeout,
		"pacing.request_delay":     c.Pacing.RequestDelay,
		"pacing.login_gap":         c.Pacing.LoginGap,
		"pacing.rate_limit_reset":  c.Pacing.RateLimitReset,
		"pacing.login_retry_delay": c.Pacing.LoginRetryDelay,
		"pacing.login_retry_step":  c.Pacing.LoginRetryStep,
	}
	for name, raw := range durations {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	return nil
}

// SameAccount reports whether both roles log in with the same NIM.
func (c *Config) SameAccount() bool {
	return c.User.NIM == c.Bendahara.NIM
}

// GetTimeout returns the HTTP timeout as a Duration.
func (c *Config) GetTimeout() time.Duration {
	return parseDuration(c.HTTP.Timeout, 30*time.Second)
}

// GetRequestDelay returns the pause before each request.
func (c *Config) GetRequestDelay() time.Duration {
	return parseDuration(c.Pacing.RequestDelay, 300*time.Millisecond)
}

// GetLoginGap returns the pause between the two logins.
func (c *Config) GetLoginGap() time.Duration {
	return parseDuration(c.Pacing.LoginGap, 20*time.Second)
}

// GetRateLimitReset returns the pause between authentication and the flows.
func (c *Config) GetRateLimitReset() time.Duration {
	return parseDuration(c.Pacing.RateLimitReset, 60*time.Second)
}

// GetLoginRetryDelay returns the first wait after a rate-limited login.
func (c *Config) GetLoginRetryDelay() time.Duration {
	return parseDuration(c.Pacing.LoginRetryDelay, 15*time.Second)
}

// GetLoginRetryStep returns how much each further login retry waits longer.
func (c *Config) GetLoginRetryStep() time.Duration {
	return parseDuration(c.Pacing.LoginRetryStep, 10*time.Second)
}

// String renders the configuration for debug logs with passwords masked.
func (c *Config) String() string {
	return "BaseURL=" + c.BaseURL +
		" User=" + c.User.NIM +
		" Bendahara=" + c.Bendahara.NIM +
		" Verbose=" + strconv.FormatBool(c.Verbose) +
		" SaveDir=" + c.SaveDir
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
