package goGate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goGate/internal/audit"
	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/ratelimit"
	"github.com/MrEthical07/goGate/session"
	"github.com/MrEthical07/goGate/token"
)

// Plane bundles the token, session and rate-limit managers over one store client
// and records metrics for every call. A Plane is safe for concurrent use.
type Plane struct {
	config     Config
	redis      redis.UniversalClient
	ownsClient bool
	logger     *slog.Logger
	metrics    *Metrics
	audit      *audit.Dispatcher
	now        func() time.Time

	tokens   *token.Manager
	sessions *session.Manager
	limiter  *ratelimit.Limiter
}

func (p *Plane) abort(err error) error {
	p.audit.Close()
	if p.ownsClient {
		_ = p.redis.Close()
	}
	if errors.Is(err, ErrConfiguration) {
		return err
	}
	return errors.Join(ErrConfiguration, err)
}

// Tokens returns the token lifecycle manager.
func (p *Plane) Tokens() *token.Manager { return p.tokens }

// Sessions returns the session manager.
func (p *Plane) Sessions() *session.Manager { return p.sessions }

// Limiter returns the rate limiter.
func (p *Plane) Limiter() *ratelimit.Limiter { return p.limiter }

// MetricsSnapshot returns a copy of the plane counters.
func (p *Plane) MetricsSnapshot() MetricsSnapshot { return p.metrics.Snapshot() }

// Metrics returns the live counter set.
func (p *Plane) Metrics() *Metrics { return p.metrics }

func (p *Plane) noteStoreError(err error) {
	if errors.Is(err, ErrStoreUnavailable) {
		p.metrics.Inc(MetricStoreUnavailable)
	}
}

// GenerateTokenPair mints an access/refresh pair for principalID.
func (p *Plane) GenerateTokenPair(ctx context.Context, principalID string, claims token.Claims) (*token.Pair, error) {
	pair, err := p.tokens.GenerateTokenPair(ctx, principalID, claims)
	if err != nil {
		p.noteStoreError(err)
		return nil, err
	}
	p.metrics.Inc(MetricTokenIssued)
	return pair, nil
}

// VerifyAccessToken validates an access token without touching the store.
func (p *Plane) VerifyAccessToken(accessToken string) (*jwt.AccessClaims, error) {
	claims, err := p.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		p.metrics.Inc(MetricAccessTokenRejected)
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken validates a refresh token against the store.
func (p *Plane) VerifyRefreshToken(ctx context.Context, refreshToken string) (*jwt.RefreshClaims, error) {
	claims, err := p.tokens.VerifyRefreshToken(ctx, refreshToken)
	if err != nil {
		p.noteStoreError(err)
		p.metrics.Inc(MetricRefreshRejected)
		return nil, err
	}
	return claims, nil
}

// RefreshTokenPair rotates refreshToken. On any error the caller must treat the
// session as logged out and must not retry with the same token.
func (p *Plane) RefreshTokenPair(ctx context.Context, refreshToken string, claims token.Claims) (*token.Pair, error) {
	start := time.Now()
	pair, err := p.tokens.RefreshTokenPair(ctx, refreshToken, claims)
	p.metrics.Observe(MetricRefreshLatency, time.Since(start))
	if err != nil {
		p.noteStoreError(err)
		p.metrics.Inc(MetricRefreshRejected)
		p.emit(ctx, AuditEvent{Type: AuditRefreshRejected, Error: errString(err)})
		return nil, err
	}
	p.metrics.Inc(MetricTokenRefreshed)
	p.emit(ctx, AuditEvent{Type: AuditTokenRefreshed, Success: true})
	return pair, nil
}

// RevokeRefreshToken revokes one refresh token. It is idempotent.
func (p *Plane) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	if err := p.tokens.RevokeRefreshToken(ctx, refreshToken); err != nil {
		p.noteStoreError(err)
		return err
	}
	p.metrics.Inc(MetricTokenRevoked)
	return nil
}

// RevokeAllForPrincipal revokes every refresh token of principalID.
func (p *Plane) RevokeAllForPrincipal(ctx context.Context, principalID string) (int, error) {
	n, err := p.tokens.RevokeAllForPrincipal(ctx, principalID)
	if err != nil {
		p.noteStoreError(err)
		return 0, err
	}
	p.metrics.Add(MetricPrincipalTokensRevoked, uint64(n))
	p.emit(ctx, AuditEvent{
		Type:        AuditPrincipalRevoked,
		PrincipalID: principalID,
		Success:     true,
		Metadata:    map[string]string{"count": strconv.Itoa(n)},
	})
	return n, nil
}

// CleanupExpired prunes refresh-token index entries whose records have expired.
func (p *Plane) CleanupExpired(ctx context.Context) (int, error) {
	n, err := p.tokens.CleanupExpired(ctx)
	p.metrics.Add(MetricCleanupRemoved, uint64(n))
	if err != nil {
		p.noteStoreError(err)
		return n, err
	}
	return n, nil
}

// CreateSession records a session for principalID, evicting the least recently
// active ones beyond the cap.
func (p *Plane) CreateSession(ctx context.Context, principalID string, sc session.Context) (*session.Record, error) {
	rec, err := p.sessions.CreateSession(ctx, principalID, sc)
	if err != nil {
		if errors.Is(err, ErrFingerprintRequired) {
			p.metrics.Inc(MetricFingerprintRejected)
		}
		p.noteStoreError(err)
		return nil, err
	}
	p.metrics.Inc(MetricSessionCreated)
	p.emit(ctx, AuditEvent{Type: AuditSessionCreated, PrincipalID: principalID, SessionID: rec.ID, Success: true})
	return rec, nil
}

// GetSession returns a live session or ErrSessionNotFound.
func (p *Plane) GetSession(ctx context.Context, id string) (*session.Record, error) {
	rec, err := p.sessions.GetSession(ctx, id)
	if err != nil {
		p.metrics.Inc(MetricSessionNotFound)
		return nil, err
	}
	return rec, nil
}

// IsValidSession reports whether id names a live session.
func (p *Plane) IsValidSession(ctx context.Context, id string) bool {
	_, err := p.GetSession(ctx, id)
	return err == nil
}

// InvalidateSession removes a session. It is idempotent.
func (p *Plane) InvalidateSession(ctx context.Context, id string) error {
	if err := p.sessions.InvalidateSession(ctx, id); err != nil {
		p.noteStoreError(err)
		return err
	}
	p.metrics.Inc(MetricSessionInvalidated)
	p.emit(ctx, AuditEvent{Type: AuditSessionInvalidated, SessionID: id, Success: true})
	return nil
}

// InvalidateAllForPrincipal removes every session of principalID.
func (p *Plane) InvalidateAllForPrincipal(ctx context.Context, principalID string) (int, error) {
	n, err := p.sessions.InvalidateAllForPrincipal(ctx, principalID)
	if err != nil {
		p.noteStoreError(err)
		return n, err
	}
	p.metrics.Add(MetricSessionInvalidated, uint64(n))
	p.emit(ctx, AuditEvent{
		Type:        AuditSessionInvalidated,
		PrincipalID: principalID,
		Success:     true,
		Metadata:    map[string]string{"count": strconv.Itoa(n)},
	})
	return n, nil
}

// GetSessionsForPrincipal lists the principal's sessions, least recently active
// first.
func (p *Plane) GetSessionsForPrincipal(ctx context.Context, principalID string) ([]*session.Record, error) {
	return p.sessions.GetSessionsForPrincipal(ctx, principalID)
}

// SessionsForDevice lists the sessions created from one device fingerprint.
func (p *Plane) SessionsForDevice(ctx context.Context, fingerprint string) ([]*session.Record, error) {
	return p.sessions.SessionsForDevice(ctx, fingerprint)
}

// LogoutAll revokes every refresh token and session of principalID. Both sweeps
// run even if the first fails; errors are joined.
func (p *Plane) LogoutAll(ctx context.Context, principalID string) (tokens, sessions int, err error) {
	tokens, tokErr := p.RevokeAllForPrincipal(ctx, principalID)
	sessions, sessErr := p.InvalidateAllForPrincipal(ctx, principalID)
	return tokens, sessions, errors.Join(tokErr, sessErr)
}

// CheckRateLimit applies the first matching rule to req. Unmatched requests are
// admitted with matched == false.
func (p *Plane) CheckRateLimit(ctx context.Context, req ratelimit.RequestContext) (ratelimit.Result, bool) {
	start := time.Now()
	res, matched := p.limiter.CheckRequest(ctx, req)
	p.metrics.Observe(MetricRateLimitLatency, time.Since(start))
	if !matched {
		p.metrics.Inc(MetricRateLimitUnmatched)
		return res, false
	}
	p.recordRateLimit(ctx, res)
	return res, true
}

// CheckRateLimitRule counts req against rule directly.
func (p *Plane) CheckRateLimitRule(ctx context.Context, req ratelimit.RequestContext, rule ratelimit.Rule) ratelimit.Result {
	start := time.Now()
	res := p.limiter.Check(ctx, req, rule)
	p.metrics.Observe(MetricRateLimitLatency, time.Since(start))
	p.recordRateLimit(ctx, res)
	return res
}

func (p *Plane) recordRateLimit(ctx context.Context, res ratelimit.Result) {
	switch {
	case res.FailedOpen:
		p.metrics.Inc(MetricRateLimitFailedOpen)
		p.metrics.Inc(MetricStoreUnavailable)
		p.emit(ctx, AuditEvent{Type: AuditRateLimitFailOpen, Rule: res.Rule, Key: res.Key, Success: true})
	case res.Limited:
		p.metrics.Inc(MetricRateLimitHit)
		p.emit(ctx, AuditEvent{Type: AuditRateLimited, Rule: res.Rule, Key: res.Key})
	default:
		p.metrics.Inc(MetricRateLimitAllowed)
	}
}

// ResetRateLimit deletes the counters for key under every rule.
func (p *Plane) ResetRateLimit(ctx context.Context, key string) error {
	if err := p.limiter.Reset(ctx, key); err != nil {
		p.noteStoreError(err)
		return err
	}
	return nil
}

// Ping checks that the store answers within the operation timeout.
func (p *Plane) Ping(ctx context.Context) error {
	if d := p.config.Store.OperationTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	if err := p.redis.Ping(ctx).Err(); err != nil {
		p.metrics.Inc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// StartMaintenance runs CleanupExpired every interval until ctx is cancelled. A
// non-positive interval uses Config.Maintenance.CleanupInterval. The returned
// channel is closed once the loop has exited.
func (p *Plane) StartMaintenance(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = p.config.Maintenance.CleanupInterval
	}
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := p.CleanupExpired(ctx)
				if err != nil && ctx.Err() == nil {
					p.logger.Warn("refresh index cleanup failed", "removed", n, "error", err)
				}
			}
		}
	}()
	return done
}

// Close flushes the audit buffer and releases the store client when the Plane
// dialled it itself.
func (p *Plane) Close() error {
	p.audit.Close()
	if p.ownsClient {
		return p.redis.Close()
	}
	return nil
}
