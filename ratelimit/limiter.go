package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goGate/internal"
)

// Config configures a Limiter.
type Config struct {
	Rules []Rule
	// TierOrder ranks tiers from lowest to highest for Rule.MinTier.
	TierOrder []string
	// KeyPrefix namespaces window keys. Defaults to "gg:rl".
	KeyPrefix        string
	OperationTimeout time.Duration
}

// Result is the outcome of one check.
type Result struct {
	Rule string
	Key  string
	// Limit is the rule maximum.
	Limit int
	// Total counts requests in the window including this one.
	Total     int
	Remaining int
	// Reset is when the oldest request in the window leaves it.
	Reset   time.Time
	Limited bool
	// RetryAfter is the wait before the next request can be admitted. Zero unless
	// Limited.
	RetryAfter time.Duration
	// FailedOpen marks results admitted because the store was unavailable.
	FailedOpen      bool
	StandardHeaders bool

	resetAfter time.Duration
}

// Err returns ErrRateLimited for limited results and nil otherwise.
func (r Result) Err() error {
	if r.Limited {
		return ErrRateLimited
	}
	return nil
}

// Headers renders quota headers. standard selects the RateLimit-* field names;
// otherwise X-RateLimit-* is used with an absolute reset timestamp. Retry-After is
// set for limited results.
func (r Result) Headers(standard bool) http.Header {
	h := make(http.Header, 4)
	if standard {
		h.Set("RateLimit-Limit", strconv.Itoa(r.Limit))
		h.Set("RateLimit-Remaining", strconv.Itoa(r.Remaining))
		h.Set("RateLimit-Reset", strconv.FormatInt(ceilSeconds(r.resetAfter), 10))
	} else {
		h.Set("X-RateLimit-Limit", strconv.Itoa(r.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(r.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(r.Reset.Unix(), 10))
	}
	if r.Limited {
		secs := ceilSeconds(r.RetryAfter)
		if secs < 1 {
			secs = 1
		}
		h.Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	return h
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// Limiter is the sliding-window rate limiter. It is safe for concurrent use.
type Limiter struct {
	store     *windowStore
	rules     *RuleSet
	logger    *slog.Logger
	now       func() time.Time
	timeout   time.Duration
	newMember func() string
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(lim *Limiter) {
		if l != nil {
			lim.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(lim *Limiter) {
		if now != nil {
			lim.now = now
		}
	}
}

// NewLimiter compiles cfg.Rules and builds a Limiter over client.
func NewLimiter(client redis.UniversalClient, cfg Config, opts ...Option) (*Limiter, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: store client required", ErrConfiguration)
	}
	if cfg.OperationTimeout < 0 {
		return nil, fmt.Errorf("%w: negative operation timeout", ErrConfiguration)
	}
	rules, err := NewRuleSet(cfg.TierOrder, cfg.Rules...)
	if err != nil {
		return nil, err
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "gg:rl"
	}

	lim := &Limiter{
		store:     &windowStore{redis: client, prefix: prefix},
		rules:     rules,
		logger:    slog.Default(),
		now:       time.Now,
		timeout:   cfg.OperationTimeout,
		newMember: uuid.NewString,
	}
	for _, opt := range opts {
		opt(lim)
	}
	return lim, nil
}

// Rules returns the compiled rule set.
func (l *Limiter) Rules() *RuleSet {
	return l.rules
}

// CheckRequest applies the first matching rule to req. Requests no rule matches
// are admitted and reported with matched == false.
func (l *Limiter) CheckRequest(ctx context.Context, req RequestContext) (res Result, matched bool) {
	rule, ok := l.rules.Match(req)
	if !ok {
		return Result{}, false
	}
	return l.Check(ctx, req, rule), true
}

// Check counts req against rule and records it. Store failures admit the request.
func (l *Limiter) Check(ctx context.Context, req RequestContext, rule Rule) Result {
	return l.CheckKey(ctx, rule.key(req), rule)
}

// CheckKey is Check with a precomputed counter key.
func (l *Limiter) CheckKey(ctx context.Context, key string, rule Rule) Result {
	now := l.now()
	res := Result{
		Rule:            rule.Name,
		Key:             key,
		Limit:           rule.MaxRequests,
		StandardHeaders: rule.StandardHeaders,
	}

	ctx, cancel := internal.WithTimeout(ctx, l.timeout)
	defer cancel()

	member := strconv.FormatInt(now.UnixMilli(), 10) + "-" + l.newMember()
	st, err := l.store.record(ctx, l.store.key(rule.Name, key), now, rule.Window, member)
	if err != nil {
		l.logger.Error("rate limit check failed open", "rule", rule.Name, "key", key, "error", err)
		res.FailedOpen = true
		res.Total = 1
		res.Remaining = max(0, rule.MaxRequests-1)
		res.Reset = now.Add(rule.Window)
		res.resetAfter = rule.Window
		return res
	}

	before := int(st.countBefore)
	res.Total = before + 1
	res.Limited = before >= rule.MaxRequests
	res.Remaining = max(0, rule.MaxRequests-before-1)
	if st.hasOldest {
		res.Reset = st.oldest.Add(rule.Window)
	} else {
		res.Reset = now.Add(rule.Window)
	}
	res.resetAfter = max(0, res.Reset.Sub(now))
	if res.Limited {
		res.RetryAfter = res.resetAfter
		l.logger.Debug("rate limited", "rule", rule.Name, "key", key, "total", res.Total)
	}
	return res
}

// Reset deletes the counters for key under every rule.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	keys := make([]string, 0, l.rules.Len()+1)
	keys = append(keys, l.store.key("", key))
	for _, r := range l.rules.rules {
		if r.Name != "" {
			keys = append(keys, l.store.key(r.Name, key))
		}
	}

	ctx, cancel := internal.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := l.store.delete(ctx, keys...); err != nil {
		return err
	}
	l.logger.Info("rate limit counters reset", "key", key)
	return nil
}

// ResetRule deletes the counter for key under one rule.
func (l *Limiter) ResetRule(ctx context.Context, rule Rule, key string) error {
	ctx, cancel := internal.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.store.delete(ctx, l.store.key(rule.Name, key))
}
