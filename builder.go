package goGate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goGate/internal/audit"
	"github.com/MrEthical07/goGate/ratelimit"
	"github.com/MrEthical07/goGate/session"
	"github.com/MrEthical07/goGate/token"
)

// Builder assembles a Plane. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger *slog.Logger
	now    func() time.Time
	rules  []ratelimit.Rule
	sink   AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared store client. Without it Build dials
// Config.Store.Addrs and the Plane owns the connection.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger handed to every manager.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides the time source of every manager.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRules appends rate-limit rules. Order is evaluation order.
func (b *Builder) WithRules(rules ...ratelimit.Rule) *Builder {
	b.rules = append(b.rules, rules...)
	return b
}

// WithAuditSink sets where audit events go. Events are only produced when
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and constructs every manager. Any
// configuration problem is reported as ErrConfiguration.
func (b *Builder) Build() (*Plane, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	client := b.redis
	ownsClient := false
	if client == nil {
		if len(cfg.Store.Addrs) == 0 {
			return nil, fmt.Errorf("%w: store client or addresses required", ErrConfiguration)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Store.Addrs,
			Password: cfg.Store.Password,
			DB:       cfg.Store.DB,
		})
		ownsClient = true
	}

	p := &Plane{
		config:     cfg,
		redis:      client,
		ownsClient: ownsClient,
		logger:     logger,
		metrics:    NewMetrics(cfg.Metrics),
		now:        time.Now,
	}
	if b.now != nil {
		p.now = b.now
	}
	sink := b.sink
	if sink == nil {
		sink = LogAuditSink{Logger: logger.With("component", "audit")}
	}
	p.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	// -------- TOKENS --------
	tokenOpts := []token.Option{token.WithLogger(logger.With("component", "token"))}
	if b.now != nil {
		tokenOpts = append(tokenOpts, token.WithClock(b.now))
	}
	tokens, err := token.NewManager(client, token.Config{
		AccessTokenSecret:       cfg.Token.AccessTokenSecret,
		RefreshTokenSecret:      cfg.Token.RefreshTokenSecret,
		AccessTokenExpiry:       cfg.Token.AccessTokenExpiry,
		RefreshTokenExpiry:      cfg.Token.RefreshTokenExpiry,
		Issuer:                  cfg.Token.Issuer,
		Audience:                cfg.Token.Audience,
		Leeway:                  cfg.Token.Leeway,
		KeyPrefix:               cfg.Store.KeyPrefix,
		OperationTimeout:        cfg.Store.OperationTimeout,
		CleanupScanCount:        cfg.Token.CleanupScanCount,
		CleanupBatchesPerSecond: cfg.Token.CleanupBatchesPerSecond,
	}, tokenOpts...)
	if err != nil {
		return nil, p.abort(err)
	}
	p.tokens = tokens

	// -------- SESSIONS --------
	sessionOpts := []session.Option{
		session.WithLogger(logger.With("component", "session")),
		session.WithEvictionHook(func(rec *session.Record) {
			p.metrics.Inc(MetricSessionEvicted)
			p.emit(context.Background(), AuditEvent{
				Type:        AuditSessionEvicted,
				PrincipalID: rec.PrincipalID,
				SessionID:   rec.ID,
				Success:     true,
			})
		}),
	}
	if b.now != nil {
		sessionOpts = append(sessionOpts, session.WithClock(b.now))
	}
	sessions, err := session.NewManager(client, session.Config{
		MaxSessionsPerPrincipal:  cfg.Session.MaxSessionsPerPrincipal,
		SessionTTLSeconds:        cfg.Session.SessionTTLSeconds,
		ExtendOnActivity:         cfg.Session.ExtendOnActivity,
		RequireDeviceFingerprint: cfg.Session.RequireDeviceFingerprint,
		KeyPrefix:                cfg.Store.KeyPrefix,
		OperationTimeout:         cfg.Store.OperationTimeout,
	}, sessionOpts...)
	if err != nil {
		return nil, p.abort(err)
	}
	p.sessions = sessions

	// -------- RATE LIMITER --------
	limiterOpts := []ratelimit.Option{ratelimit.WithLogger(logger.With("component", "ratelimit"))}
	if b.now != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithClock(b.now))
	}
	limiter, err := ratelimit.NewLimiter(client, ratelimit.Config{
		Rules:            cfg.RateLimit.effectiveRules(b.rules),
		TierOrder:        cfg.RateLimit.TierOrder,
		KeyPrefix:        cfg.Store.KeyPrefix + ":rl",
		OperationTimeout: cfg.Store.OperationTimeout,
	}, limiterOpts...)
	if err != nil {
		return nil, p.abort(err)
	}
	p.limiter = limiter

	return p, nil
}
