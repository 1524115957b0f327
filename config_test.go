package goGate

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.AccessTokenSecret = strings.Repeat("a", 32)
	cfg.Token.RefreshTokenSecret = strings.Repeat("r", 32)
	return cfg
}

func TestDefaultConfigNeedsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration without secrets, got %v", err)
	}

	cfg = validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "access expiry unit", mutate: func(c *Config) { c.Token.AccessTokenExpiry = "15x" }},
		{name: "refresh expiry empty", mutate: func(c *Config) { c.Token.RefreshTokenExpiry = "" }},
		{name: "negative cleanup pace", mutate: func(c *Config) { c.Token.CleanupBatchesPerSecond = -1 }},
		{name: "zero max sessions", mutate: func(c *Config) { c.Session.MaxSessionsPerPrincipal = 0 }},
		{name: "zero session ttl", mutate: func(c *Config) { c.Session.SessionTTLSeconds = 0 }},
		{name: "default rule without window", mutate: func(c *Config) {
			c.RateLimit.DefaultMaxRequests = 10
			c.RateLimit.DefaultWindow = 0
		}},
		{name: "default rule with sub-ms window", mutate: func(c *Config) {
			c.RateLimit.DefaultMaxRequests = 10
			c.RateLimit.DefaultWindow = time.Microsecond
		}},
		{name: "default rule with window", mutate: func(c *Config) { c.RateLimit.DefaultMaxRequests = 10 }, wantValid: true},
		{name: "empty key prefix", mutate: func(c *Config) { c.Store.KeyPrefix = "" }},
		{name: "negative timeout", mutate: func(c *Config) { c.Store.OperationTimeout = -time.Second }},
		{name: "zero timeout", mutate: func(c *Config) { c.Store.OperationTimeout = 0 }, wantValid: true},
		{name: "negative cleanup interval", mutate: func(c *Config) { c.Maintenance.CleanupInterval = -time.Second }},
		{name: "audit without buffer", mutate: func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}},
		{name: "audit enabled", mutate: func(c *Config) { c.Audit.Enabled = true }, wantValid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestConfigValidateReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Session.MaxSessionsPerPrincipal = 0
	cfg.Store.KeyPrefix = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"max sessions", "key prefix"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("GOGATE_TOKEN_ACCESS_SECRET", strings.Repeat("a", 32))
	t.Setenv("GOGATE_TOKEN_REFRESH_SECRET", strings.Repeat("r", 32))
	t.Setenv("GOGATE_TOKEN_ACCESS_EXPIRY", "5m")
	t.Setenv("GOGATE_SESSION_MAX_PER_PRINCIPAL", "3")
	t.Setenv("GOGATE_RATELIMIT_TIER_ORDER", "free,pro,enterprise")
	t.Setenv("GOGATE_STORE_ADDRS", "redis-a:6379,redis-b:6379")
	t.Setenv("GOGATE_STORE_OPERATION_TIMEOUT", "1s")
	t.Setenv("GOGATE_AUDIT_ENABLED", "true")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.Token.AccessTokenExpiry != "5m" || cfg.Session.MaxSessionsPerPrincipal != 3 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if got := strings.Join(cfg.RateLimit.TierOrder, ","); got != "free,pro,enterprise" {
		t.Fatalf("unexpected tier order %q", got)
	}
	if len(cfg.Store.Addrs) != 2 || cfg.Store.OperationTimeout != time.Second {
		t.Fatalf("unexpected store config %+v", cfg.Store)
	}
	if !cfg.Audit.Enabled || cfg.Audit.BufferSize != 1024 {
		t.Fatalf("unexpected audit config %+v", cfg.Audit)
	}

	// Untouched fields keep their defaults.
	if cfg.Token.RefreshTokenExpiry != "7d" || cfg.Store.KeyPrefix != "gg" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadConfigFromEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("GOGATE_SESSION_MAX_PER_PRINCIPAL", "many")

	if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestCloneConfigDetachesSlices(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.TierOrder = []string{"free"}

	cp := cloneConfig(cfg)
	cp.RateLimit.TierOrder[0] = "pro"
	cp.Store.Addrs[0] = "elsewhere:6379"

	if cfg.RateLimit.TierOrder[0] != "free" || cfg.Store.Addrs[0] != "localhost:6379" {
		t.Fatal("clone shares slices with the original")
	}
}
