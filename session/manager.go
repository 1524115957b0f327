package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goGate/internal"
)

// Config configures a Manager.
type Config struct {
	// MaxSessionsPerPrincipal caps concurrently active sessions. Must be at least 1.
	MaxSessionsPerPrincipal int
	// SessionTTLSeconds is the idle lifetime of a record in the store.
	SessionTTLSeconds int64
	// ExtendOnActivity makes GetSession bump LastActivity and renew the TTL.
	ExtendOnActivity bool
	// RequireDeviceFingerprint rejects CreateSession calls without client hints.
	RequireDeviceFingerprint bool

	KeyPrefix        string
	OperationTimeout time.Duration
}

// Manager is the session manager. It is safe for concurrent use; all shared
// state lives in the store.
type Manager struct {
	store   *sessionStore
	cfg     Config
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
	newID   func() (string, error)
	onEvict func(*Record)
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

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithEvictionHook registers fn to be called for every session evicted by the
// concurrency cap. fn runs synchronously on the CreateSession path.
func WithEvictionHook(fn func(*Record)) Option {
	return func(m *Manager) {
		m.onEvict = fn
	}
}

// NewManager validates cfg and builds a Manager over client.
func NewManager(client redis.UniversalClient, cfg Config, opts ...Option) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: store client required", ErrConfiguration)
	}
	if cfg.MaxSessionsPerPrincipal < 1 {
		return nil, fmt.Errorf("%w: max sessions per principal must be at least 1", ErrConfiguration)
	}
	if cfg.SessionTTLSeconds <= 0 {
		return nil, fmt.Errorf("%w: session ttl must be positive", ErrConfiguration)
	}
	if cfg.OperationTimeout < 0 {
		return nil, fmt.Errorf("%w: negative operation timeout", ErrConfiguration)
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "gg"
	}

	m := &Manager{
		store:  &sessionStore{redis: client, prefix: cfg.KeyPrefix},
		cfg:    cfg,
		ttl:    time.Duration(cfg.SessionTTLSeconds) * time.Second,
		logger: slog.Default(),
		now:    time.Now,
		newID:  internal.NewSessionID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CreateSession records a new session for principalID. When the principal already
// holds MaxSessionsPerPrincipal-1 or more sessions, the least recently active ones
// are evicted first so the new session lands exactly at the cap. Concurrent
// creations for one principal converge back to the cap afterwards, which may evict
// a session another caller has just received.
func (m *Manager) CreateSession(ctx context.Context, principalID string, sc Context) (*Record, error) {
	if principalID == "" {
		return nil, ErrInvalidPrincipal
	}
	fingerprint := internal.Fingerprint(sc.ClientHints...)
	if fingerprint == "" && m.cfg.RequireDeviceFingerprint {
		return nil, ErrFingerprintRequired
	}

	id, err := m.newID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	now := m.now()
	rec := &Record{
		ID:                id,
		PrincipalID:       principalID,
		CreatedAt:         now,
		LastActivity:      now,
		Active:            true,
		DeviceFingerprint: fingerprint,
		IPHash:            internal.HashBindingValue(sc.IP),
		Tier:              sc.Tier,
		Permissions:       sc.Permissions,
		Metadata:          sc.Metadata,
	}

	ctx, cancel := internal.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	if err := m.enforceCap(ctx, principalID, m.cfg.MaxSessionsPerPrincipal-1, ""); err != nil {
		return nil, err
	}
	if err := m.store.save(ctx, rec, m.ttl); err != nil {
		return nil, err
	}
	// A concurrent CreateSession on another instance may have inserted between our
	// eviction and save; converge back to the cap without touching the new record.
	if err := m.enforceCap(ctx, principalID, m.cfg.MaxSessionsPerPrincipal, rec.ID); err != nil {
		m.logger.Warn("session cap convergence failed", "principal", principalID, "error", err)
	}

	return rec.clone(), nil
}

// enforceCap evicts the least recently active sessions of principalID until at
// most limit remain. keep is never evicted.
func (m *Manager) enforceCap(ctx context.Context, principalID string, limit int, keep string) error {
	sessions, err := m.listSessions(ctx, principalID)
	if err != nil {
		return err
	}
	excess := len(sessions) - limit
	for _, rec := range sessions {
		if excess <= 0 {
			break
		}
		if rec.ID == keep {
			continue
		}
		removed, err := m.store.remove(ctx, rec)
		if err != nil {
			return err
		}
		excess--
		if !removed {
			continue
		}
		m.logger.Info("session evicted", "principal", principalID, "last_activity", rec.LastActivity)
		if m.onEvict != nil {
			m.onEvict(rec.clone())
		}
	}
	return nil
}

// listSessions returns the principal's live records ordered by LastActivity, then
// ID. Index members whose record has expired are pruned.
func (m *Manager) listSessions(ctx context.Context, principalID string) ([]*Record, error) {
	ids, err := m.store.principalSessionIDs(ctx, principalID)
	if err != nil {
		return nil, err
	}
	records, missing, err := m.store.loadMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		if err := m.store.prunePrincipal(ctx, principalID, missing); err != nil {
			m.logger.Warn("session index prune failed", "principal", principalID, "error", err)
		}
	}

	active := records[:0]
	for _, r := range records {
		if r.Active && r.PrincipalID == principalID {
			active = append(active, r)
		}
	}
	sortByActivity(active)
	return active, nil
}

func sortByActivity(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.Before(b.LastActivity)
		}
		return a.ID < b.ID
	})
}

// GetSession returns the session with id. Absent sessions and store failures both
// yield ErrSessionNotFound. With ExtendOnActivity the record's LastActivity and TTL
// are renewed.
func (m *Manager) GetSession(ctx context.Context, id string) (*Record, error) {
	if !internal.ValidSessionID(id) {
		return nil, ErrSessionNotFound
	}

	ctx, cancel := internal.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	rec, err := m.store.load(ctx, id)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			m.logger.Error("session lookup failed closed", "error", err)
		}
		return nil, ErrSessionNotFound
	}
	if !rec.Active {
		return nil, ErrSessionNotFound
	}

	if m.cfg.ExtendOnActivity {
		rec.LastActivity = m.now()
		if err := m.store.touch(ctx, rec, m.ttl); err != nil {
			if errors.Is(err, redis.Nil) {
				m.logger.Debug("session removed before extension", "principal", rec.PrincipalID)
			} else {
				m.logger.Error("session extension failed closed", "principal", rec.PrincipalID, "error", err)
			}
			return nil, ErrSessionNotFound
		}
	}
	return rec, nil
}

// IsValidSession reports whether id names a live session.
func (m *Manager) IsValidSession(ctx context.Context, id string) bool {
	_, err := m.GetSession(ctx, id)
	return err == nil
}

// InvalidateSession removes the session and all of its index memberships.
// Invalidating an absent session is not an error.
func (m *Manager) InvalidateSession(ctx context.Context, id string) error {
	if !internal.ValidSessionID(id) {
		return nil
	}

	ctx, cancel := internal.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	rec, err := m.store.load(ctx, id)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			m.logger.Debug("session already invalidated")
			return nil
		}
		if errors.Is(err, ErrCorruptRecord) {
			return m.dropCorrupt(ctx, id)
		}
		return err
	}
	_, err = m.store.remove(ctx, rec)
	return err
}

func (m *Manager) dropCorrupt(ctx context.Context, id string) error {
	m.logger.Warn("dropping corrupt session record")
	if err := m.store.redis.Del(ctx, m.store.recordKey(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// InvalidateAllForPrincipal removes every session of principalID and returns how
// many live sessions were removed.
func (m *Manager) InvalidateAllForPrincipal(ctx context.Context, principalID string) (int, error) {
	if principalID == "" {
		return 0, ErrInvalidPrincipal
	}

	ctx, cancel := internal.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	sessions, err := m.listSessions(ctx, principalID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range sessions {
		removed, err := m.store.remove(ctx, rec)
		if err != nil {
			return n, err
		}
		if removed {
			n++
		}
	}
	if err := m.store.dropPrincipal(ctx, principalID); err != nil {
		return n, err
	}
	m.logger.Info("invalidated sessions for principal", "principal", principalID, "count", n)
	return n, nil
}

// GetSessionsForPrincipal returns the principal's active sessions, least recently
// active first. Ties on LastActivity are ordered by ID.
func (m *Manager) GetSessionsForPrincipal(ctx context.Context, principalID string) ([]*Record, error) {
	if principalID == "" {
		return nil, ErrInvalidPrincipal
	}

	ctx, cancel := internal.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	return m.listSessions(ctx, principalID)
}

// SessionsForDevice returns the active sessions created from one device
// fingerprint, least recently active first.
func (m *Manager) SessionsForDevice(ctx context.Context, fingerprint string) ([]*Record, error) {
	if fingerprint == "" {
		return nil, nil
	}

	ctx, cancel := internal.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	ids, err := m.store.deviceSessionIDs(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	records, missing, err := m.store.loadMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := m.store.pruneDevice(ctx, fingerprint, missing); err != nil {
		m.logger.Warn("device index prune failed", "error", err)
	}

	active := records[:0]
	for _, r := range records {
		if r.Active {
			active = append(active, r)
		}
	}
	sortByActivity(active)
	return active, nil
}
