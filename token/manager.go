package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/goGate/internal"
	"github.com/MrEthical07/goGate/jwt"
)

// Config configures a Manager. Expiry strings use the ParseExpiry unit table.
type Config struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenExpiry  string
	RefreshTokenExpiry string
	Issuer             string
	Audience           string
	Leeway             time.Duration

	// KeyPrefix namespaces every store key owned by the manager.
	KeyPrefix string
	// OperationTimeout bounds each store round trip. Zero disables the bound.
	OperationTimeout time.Duration
	// CleanupScanCount is the SCAN COUNT hint used by CleanupExpired.
	CleanupScanCount int64
	// CleanupBatchesPerSecond paces CleanupExpired. Zero disables pacing.
	CleanupBatchesPerSecond float64
}

// Claims are the caller-supplied, opaque identity attributes embedded in the
// access token.
type Claims struct {
	Name        string
	Tier        string
	Permissions []string
}

// Pair is a freshly minted access/refresh pair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Manager is the token lifecycle manager. It is safe for concurrent use; all shared
// state lives in the store.
type Manager struct {
	codec   *jwt.Manager
	store   *refreshStore
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration

	scanCount   int64
	cleanupPace rate.Limit
	newJTI      func() string
	refreshTTL  time.Duration
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source for issuance and verification.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager validates cfg and builds a Manager over client. Every configuration
// problem is reported as ErrConfiguration.
func NewManager(client redis.UniversalClient, cfg Config, opts ...Option) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: store client required", ErrConfiguration)
	}
	accessTTL, err := ParseExpiryDuration(cfg.AccessTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("access token expiry: %w", err)
	}
	refreshTTL, err := ParseExpiryDuration(cfg.RefreshTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("refresh token expiry: %w", err)
	}
	if refreshTTL <= accessTTL {
		return nil, fmt.Errorf("%w: refresh expiry must exceed access expiry", ErrConfiguration)
	}
	if cfg.CleanupBatchesPerSecond < 0 || cfg.OperationTimeout < 0 {
		return nil, fmt.Errorf("%w: negative timing configuration", ErrConfiguration)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "gg"
	}
	scanCount := cfg.CleanupScanCount
	if scanCount <= 0 {
		scanCount = 100
	}

	m := &Manager{
		store:      &refreshStore{redis: client, prefix: prefix},
		logger:     slog.Default(),
		now:        time.Now,
		timeout:    cfg.OperationTimeout,
		scanCount:  scanCount,
		newJTI:     uuid.NewString,
		refreshTTL: refreshTTL,
	}
	if cfg.CleanupBatchesPerSecond > 0 {
		m.cleanupPace = rate.Limit(cfg.CleanupBatchesPerSecond)
	} else {
		m.cleanupPace = rate.Inf
	}
	for _, opt := range opts {
		opt(m)
	}

	codec, err := jwt.NewManager(jwt.Config{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		Leeway:        cfg.Leeway,
	}, jwt.WithClock(m.now))
	if err != nil {
		return nil, errors.Join(ErrConfiguration, err)
	}
	m.codec = codec

	return m, nil
}

// GenerateTokenPair mints an access/refresh pair for principalID and records the
// refresh token's hash in the store. Each token gets its own fresh jti.
func (m *Manager) GenerateTokenPair(ctx context.Context, principalID string, claims Claims) (*Pair, error) {
	if principalID == "" {
		return nil, ErrInvalidPrincipal
	}

	access, accessExp, err := m.codec.SignAccess(principalID, m.newJTI(), jwt.AccessClaims{
		Name:        claims.Name,
		Tier:        claims.Tier,
		Permissions: claims.Permissions,
	})
	if err != nil {
		return nil, err
	}

	refreshJTI := m.newJTI()
	refresh, refreshExp, err := m.codec.SignRefresh(principalID, refreshJTI)
	if err != nil {
		return nil, err
	}

	hash, err := internal.HashToken(refresh)
	if err != nil {
		return nil, err
	}

	ctx, cancel := internal.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.store.save(ctx, hash, refreshRecord{PrincipalID: principalID, JTI: refreshJTI}, m.refreshTTL); err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccessToken checks an access token without consulting the store.
func (m *Manager) VerifyAccessToken(token string) (*jwt.AccessClaims, error) {
	return m.codec.ParseAccess(token)
}

// VerifyRefreshToken checks the token cryptographically and then requires a live
// store record that belongs to the same principal and jti.
func (m *Manager) VerifyRefreshToken(ctx context.Context, token string) (*jwt.RefreshClaims, error) {
	claims, _, err := m.verifyRefresh(ctx, token)
	return claims, err
}

func (m *Manager) verifyRefresh(ctx context.Context, token string) (*jwt.RefreshClaims, string, error) {
	claims, err := m.codec.ParseRefresh(token)
	if err != nil {
		return nil, "", err
	}
	hash, err := internal.HashToken(token)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	ctx, cancel := internal.WithTimeout(ctx, m.timeout)
	defer cancel()

	rec, err := m.store.load(ctx, hash)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", ErrTokenRevoked
		}
		m.logger.Error("refresh verification failed closed", "error", err)
		return nil, "", err
	}
	if rec.PrincipalID != claims.Subject || rec.JTI != claims.ID {
		m.logger.Warn("refresh record does not match token claims", "principal", claims.Subject)
		return nil, "", ErrTokenRevoked
	}

	return claims, hash, nil
}

// RefreshTokenPair rotates a refresh token: it is verified, revoked, and only then
// is a replacement pair minted. A token can win rotation at most once; concurrent
// or later attempts with the same token fail with ErrTokenRevoked.
func (m *Manager) RefreshTokenPair(ctx context.Context, refreshToken string, claims Claims) (*Pair, error) {
	rc, hash, err := m.verifyRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	revokeCtx, cancel := internal.WithTimeout(ctx, m.timeout)
	status, err := m.store.revoke(revokeCtx, hash, refreshRecord{PrincipalID: rc.Subject, JTI: rc.ID})
	cancel()
	if err != nil {
		return nil, err
	}
	if status != revokeStatusRevoked {
		return nil, ErrTokenRevoked
	}

	pair, err := m.GenerateTokenPair(ctx, rc.Subject, claims)
	if err != nil {
		m.logger.Error("refresh token revoked but replacement was not issued", "principal", rc.Subject, "error", err)
		return nil, err
	}
	return pair, nil
}

// RevokeRefreshToken removes the token's record and its principal-set membership.
// Revoking an absent or already revoked token is not an error. Expired tokens are
// accepted as long as their signature is valid.
func (m *Manager) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	claims, err := m.codec.ParseRefreshIgnoringExpiry(refreshToken)
	if err != nil {
		return err
	}
	hash, err := internal.HashToken(refreshToken)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	ctx, cancel := internal.WithTimeout(ctx, m.timeout)
	defer cancel()

	status, err := m.store.revoke(ctx, hash, refreshRecord{PrincipalID: claims.Subject, JTI: claims.ID})
	if err != nil {
		return err
	}
	switch status {
	case revokeStatusMissing:
		m.logger.Debug("refresh token already revoked", "principal", claims.Subject)
	case revokeStatusMismatch:
		m.logger.Warn("refresh record does not match token claims", "principal", claims.Subject)
	}
	return nil
}

// RevokeAllForPrincipal revokes every refresh token registered for principalID and
// returns how many live records were removed.
func (m *Manager) RevokeAllForPrincipal(ctx context.Context, principalID string) (int, error) {
	if principalID == "" {
		return 0, ErrInvalidPrincipal
	}

	ctx, cancel := internal.WithTimeout(ctx, m.timeout)
	defer cancel()

	n, err := m.store.revokeAll(ctx, principalID)
	if err != nil {
		return 0, err
	}
	m.logger.Info("revoked refresh tokens for principal", "principal", principalID, "count", n)
	return n, nil
}

// CleanupExpired sweeps principal sets for hashes whose record has already expired
// and returns how many dangling members were removed. SCAN batches are paced by
// the configured rate so the sweep never competes with request traffic.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	pace := rate.NewLimiter(m.cleanupPace, 1)

	var (
		cursor  uint64
		removed int
	)
	for {
		if err := pace.Wait(ctx); err != nil {
			return removed, err
		}

		scanCtx, cancel := internal.WithTimeout(ctx, m.timeout)
		keys, next, err := m.store.scanPrincipalSets(scanCtx, cursor, m.scanCount)
		cancel()
		if err != nil {
			return removed, err
		}

		for _, key := range keys {
			pruneCtx, cancel := internal.WithTimeout(ctx, m.timeout)
			n, err := m.store.pruneSet(pruneCtx, key)
			cancel()
			if err != nil {
				return removed, err
			}
			removed += n
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if removed > 0 {
		m.logger.Info("refresh index cleanup completed", "removed", removed)
	}
	return removed, nil
}
