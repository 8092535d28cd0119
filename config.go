package ucp

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Session timeout bounds in minutes. Values outside the range are clamped at
// load time.
const (
	minSessionTimeout     = 5
	maxSessionTimeout     = 120
	defaultSessionTimeout = 30
)

// Config is the typed protocol configuration, constructed once at process
// start.
type Config struct {
	// Enabled switches the whole protocol surface on or off. Disabled
	// stores answer every operation with 503.
	Enabled bool `env:"UCP_ENABLED" envDefault:"true"`

	// SessionTimeoutMinutes bounds how long an idle session stays
	// completable. Clamped to [5, 120].
	SessionTimeoutMinutes int `env:"UCP_SESSION_TIMEOUT_MINUTES" envDefault:"30"`

	// WhitelistEnabled turns on agent allow-listing by profile host.
	WhitelistEnabled bool `env:"UCP_WHITELIST_ENABLED" envDefault:"false"`

	// WhitelistPatterns lists allowed hosts; *.domain patterns match
	// subdomains. Empty falls back to the built-in default set.
	WhitelistPatterns []string `env:"UCP_AGENT_WHITELIST" envSeparator:","`

	// RequireSignature demands a verified Request-Signature on every
	// protocol operation.
	RequireSignature bool `env:"UCP_REQUIRE_SIGNATURE" envDefault:"false"`

	// Debug enables diagnostic logging for webhook delivery.
	Debug bool `env:"UCP_DEBUG" envDefault:"false"`

	// Consistency selects the store's concurrent-save behavior.
	Consistency ConsistencyLevel `env:"UCP_CONSISTENCY" envDefault:"last_writer_wins"`
}

// LoadConfig parses configuration from the environment and normalizes it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	cfg := Config{
		Enabled:               true,
		SessionTimeoutMinutes: defaultSessionTimeout,
		Consistency:           ConsistencyLastWriterWins,
	}
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	if c.SessionTimeoutMinutes < minSessionTimeout {
		c.SessionTimeoutMinutes = minSessionTimeout
	}
	if c.SessionTimeoutMinutes > maxSessionTimeout {
		c.SessionTimeoutMinutes = maxSessionTimeout
	}
	if c.Consistency != ConsistencyVersioned {
		c.Consistency = ConsistencyLastWriterWins
	}
}

// SessionTimeout returns the clamped timeout as a duration.
func (c Config) SessionTimeout() time.Duration {
	minutes := c.SessionTimeoutMinutes
	if minutes < minSessionTimeout || minutes > maxSessionTimeout {
		minutes = defaultSessionTimeout
	}
	return time.Duration(minutes) * time.Minute
}
