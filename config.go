package goGate

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/MrEthical07/goGate/ratelimit"
	"github.com/MrEthical07/goGate/token"
)

// Config is the full plane configuration. Zero values are not usable; start from
// DefaultConfig or LoadConfigFromEnv.
type Config struct {
	Token       TokenConfig       `envPrefix:"TOKEN_"`
	Session     SessionConfig     `envPrefix:"SESSION_"`
	RateLimit   RateLimitConfig   `envPrefix:"RATELIMIT_"`
	Store       StoreConfig       `envPrefix:"STORE_"`
	Metrics     MetricsConfig     `envPrefix:"METRICS_"`
	Maintenance MaintenanceConfig `envPrefix:"MAINTENANCE_"`
	Audit       AuditConfig       `envPrefix:"AUDIT_"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the token lifecycle manager. Expiries use the
// "30s" / "15m" / "2h" / "7d" syntax.
type TokenConfig struct {
	AccessTokenSecret  string        `env:"ACCESS_SECRET"`
	RefreshTokenSecret string        `env:"REFRESH_SECRET"`
	AccessTokenExpiry  string        `env:"ACCESS_EXPIRY"`
	RefreshTokenExpiry string        `env:"REFRESH_EXPIRY"`
	Issuer             string        `env:"ISSUER"`
	Audience           string        `env:"AUDIENCE"`
	Leeway             time.Duration `env:"LEEWAY"`

	CleanupScanCount        int64   `env:"CLEANUP_SCAN_COUNT"`
	CleanupBatchesPerSecond float64 `env:"CLEANUP_BATCHES_PER_SECOND"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the session manager.
type SessionConfig struct {
	MaxSessionsPerPrincipal  int   `env:"MAX_PER_PRINCIPAL"`
	SessionTTLSeconds        int64 `env:"TTL_SECONDS"`
	ExtendOnActivity         bool  `env:"EXTEND_ON_ACTIVITY"`
	RequireDeviceFingerprint bool  `env:"REQUIRE_FINGERPRINT"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig configures the limiter. Rules themselves are code, supplied
// through Builder.WithRules. When DefaultMaxRequests is positive a catch-all rule
// named "default" is appended after them.
type RateLimitConfig struct {
	TierOrder []string `env:"TIER_ORDER" envSeparator:","`

	DefaultWindow      time.Duration `env:"DEFAULT_WINDOW"`
	DefaultMaxRequests int           `env:"DEFAULT_MAX_REQUESTS"`
	StandardHeaders    bool          `env:"STANDARD_HEADERS"`
}

func (c RateLimitConfig) effectiveRules(custom []ratelimit.Rule) []ratelimit.Rule {
	rules := append([]ratelimit.Rule(nil), custom...)
	if c.DefaultMaxRequests > 0 {
		rules = append(rules, ratelimit.Rule{
			Name:            "default",
			Pattern:         "/**",
			Window:          c.DefaultWindow,
			MaxRequests:     c.DefaultMaxRequests,
			StandardHeaders: c.StandardHeaders,
		})
	}
	return rules
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig configures the shared store. Addrs is only used when the Builder
// is not given a client.
type StoreConfig struct {
	Addrs            []string      `env:"ADDRS" envSeparator:","`
	Password         string        `env:"PASSWORD"`
	DB               int           `env:"DB"`
	KeyPrefix        string        `env:"KEY_PREFIX"`
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT"`
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

// MaintenanceConfig configures the background cleanup loop.
type MaintenanceConfig struct {
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL"`
}

// AuditConfig configures the asynchronous audit trail.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	// DropIfFull keeps callers from blocking on a slow sink at the cost of
	// dropping events, counted by Plane.AuditDropped.
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// DefaultConfig returns the baseline configuration. Secrets are left empty and
// must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTokenExpiry:       "15m",
			RefreshTokenExpiry:      "7d",
			Issuer:                  "gogate",
			CleanupScanCount:        100,
			CleanupBatchesPerSecond: 20,
		},
		Session: SessionConfig{
			MaxSessionsPerPrincipal: 5,
			SessionTTLSeconds:       86400,
			ExtendOnActivity:        true,
		},
		RateLimit: RateLimitConfig{
			DefaultWindow: time.Minute,
		},
		Store: StoreConfig{
			Addrs:            []string{"localhost:6379"},
			KeyPrefix:        "gg",
			OperationTimeout: 250 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Maintenance: MaintenanceConfig{
			CleanupInterval: 10 * time.Minute,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

// LoadConfigFromEnv overlays GOGATE_* environment variables on the defaults, for
// example GOGATE_TOKEN_ACCESS_SECRET or GOGATE_SESSION_MAX_PER_PRINCIPAL.
func LoadConfigFromEnv() (Config, error) {
	return loadConfig(env.Options{Prefix: "GOGATE_"})
}

func loadConfig(opts env.Options) (Config, error) {
	cfg := defaultConfig()
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("%w: parse environment: %v", ErrConfiguration, err)
	}
	return cfg, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.RateLimit.TierOrder = append([]string(nil), cfg.RateLimit.TierOrder...)
	out.Store.Addrs = append([]string(nil), cfg.Store.Addrs...)
	return out
}

// Validate performs the checks that do not need a store. Managers repeat their
// own checks at Build time. Every problem is reported, joined, under
// ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error

	// Token
	if c.Token.AccessTokenSecret == "" || c.Token.RefreshTokenSecret == "" {
		errs = append(errs, errors.New("token secrets are required"))
	}
	if _, err := token.ParseExpiry(c.Token.AccessTokenExpiry); err != nil {
		errs = append(errs, fmt.Errorf("access token expiry: %v", err))
	}
	if _, err := token.ParseExpiry(c.Token.RefreshTokenExpiry); err != nil {
		errs = append(errs, fmt.Errorf("refresh token expiry: %v", err))
	}
	if c.Token.CleanupBatchesPerSecond < 0 {
		errs = append(errs, errors.New("cleanup batches per second must be >= 0"))
	}

	// Session
	if c.Session.MaxSessionsPerPrincipal < 1 {
		errs = append(errs, errors.New("max sessions per principal must be >= 1"))
	}
	if c.Session.SessionTTLSeconds <= 0 {
		errs = append(errs, errors.New("session ttl must be > 0"))
	}

	// Rate limit
	if c.RateLimit.DefaultMaxRequests > 0 && c.RateLimit.DefaultWindow < time.Millisecond {
		errs = append(errs, errors.New("default rate limit window must be at least 1ms"))
	}

	// Store
	if c.Store.KeyPrefix == "" {
		errs = append(errs, errors.New("store key prefix is required"))
	}
	if c.Store.OperationTimeout < 0 {
		errs = append(errs, errors.New("store operation timeout must be >= 0"))
	}

	if c.Maintenance.CleanupInterval < 0 {
		errs = append(errs, errors.New("cleanup interval must be >= 0"))
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		errs = append(errs, errors.New("audit buffer size must be >= 1"))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrConfiguration}, errs...)...)
}
