package token

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goGate/internal"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// sweepHook runs fn once, right after the first successful command that reads or
// sweeps a principal set.
type sweepHook struct {
	once sync.Once
	fn   func()
}

func (h *sweepHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *sweepHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		switch cmd.Name() {
		case "smembers", "evalsha", "eval":
			if err == nil {
				h.once.Do(h.fn)
			}
		}
		return err
	}
}

func (h *sweepHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func testConfig() Config {
	return Config{
		AccessTokenSecret:  strings.Repeat("A", 32),
		RefreshTokenSecret: strings.Repeat("R", 32),
		AccessTokenExpiry:  "15m",
		RefreshTokenExpiry: "7d",
		Issuer:             "gogate",
		Audience:           "api",
		KeyPrefix:          "t",
	}
}

func newTestManager(t *testing.T) (*Manager, *redis.Client, *miniredis.Miniredis, *testClock) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := &testClock{t: time.Now()}

	m, err := NewManager(rdb, testConfig(), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return m, rdb, mr, clock
}

func TestNewManagerConfigurationErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	mutate := map[string]func(*Config){
		"short secret":      func(c *Config) { c.AccessTokenSecret = "short" },
		"shared secret":     func(c *Config) { c.RefreshTokenSecret = c.AccessTokenSecret },
		"bad expiry":        func(c *Config) { c.AccessTokenExpiry = "15x" },
		"empty expiry":      func(c *Config) { c.RefreshTokenExpiry = "" },
		"refresh <= access": func(c *Config) { c.RefreshTokenExpiry = "10m" },
	}
	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			fn(&cfg)
			if _, err := NewManager(rdb, cfg); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}

	if _, err := NewManager(nil, testConfig()); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for nil client, got %v", err)
	}
}

func TestGenerateAndVerify(t *testing.T) {
	m, rdb, _, clock := newTestManager(t)
	ctx := context.Background()

	pair, err := m.GenerateTokenPair(ctx, "u1", Claims{Name: "alice", Tier: "pro", Permissions: []string{"quiz:read"}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	access, err := m.VerifyAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if access.Subject != "u1" || access.Name != "alice" || access.Tier != "pro" {
		t.Fatalf("unexpected access claims %+v", access)
	}

	refresh, err := m.VerifyRefreshToken(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if refresh.ID == access.ID {
		t.Fatal("access and refresh tokens must not share a jti")
	}

	members, err := rdb.SMembers(ctx, m.store.principalKey("u1")).Result()
	if err != nil || len(members) != 1 {
		t.Fatalf("expected one principal set member, got %v (%v)", members, err)
	}

	clock.Advance(15*time.Minute + time.Second)
	if _, err := m.VerifyAccessToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired access token to be invalid, got %v", err)
	}
}

func TestGenerateNeverReusesJTI(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		pair, err := m.GenerateTokenPair(ctx, "u1", Claims{})
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		a, _ := m.VerifyAccessToken(pair.AccessToken)
		r, _ := m.VerifyRefreshToken(ctx, pair.RefreshToken)
		for _, id := range []string{a.ID, r.ID} {
			if _, dup := seen[id]; dup {
				t.Fatalf("jti %s reused", id)
			}
			seen[id] = struct{}{}
		}
	}
}

func TestRefreshRotationRejectsReplay(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.GenerateTokenPair(ctx, "u1", Claims{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := m.RefreshTokenPair(ctx, first.RefreshToken, Claims{Tier: "free"})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := m.VerifyRefreshToken(ctx, first.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("old refresh token must be revoked, got %v", err)
	}
	if _, err := m.RefreshTokenPair(ctx, first.RefreshToken, Claims{}); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("replay must be rejected, got %v", err)
	}
	if _, err := m.VerifyRefreshToken(ctx, second.RefreshToken); err != nil {
		t.Fatalf("new refresh token must verify: %v", err)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	pair, err := m.GenerateTokenPair(ctx, "u1", Claims{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.RefreshTokenPair(ctx, pair.RefreshToken, Claims{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrTokenRevoked):
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d", success)
	}
}

func TestRevokeRefreshTokenIdempotent(t *testing.T) {
	m, rdb, _, _ := newTestManager(t)
	ctx := context.Background()

	pair, err := m.GenerateTokenPair(ctx, "u1", Claims{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := m.RevokeRefreshToken(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	before := rdb.DBSize(ctx).Val()
	if err := m.RevokeRefreshToken(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if after := rdb.DBSize(ctx).Val(); after != before {
		t.Fatalf("second revoke changed store size %d -> %d", before, after)
	}
	if _, err := m.VerifyRefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked, got %v", err)
	}
	if err := m.RevokeRefreshToken(ctx, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected malformed token to be invalid, got %v", err)
	}
}

func TestRevokeAllForPrincipal(t *testing.T) {
	m, rdb, _, _ := newTestManager(t)
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		pair, err := m.GenerateTokenPair(ctx, "u1", Claims{})
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		tokens = append(tokens, pair.RefreshToken)
	}
	other, err := m.GenerateTokenPair(ctx, "u2", Claims{})
	if err != nil {
		t.Fatalf("generate other: %v", err)
	}

	n, err := m.RevokeAllForPrincipal(ctx, "u1")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 revoked, got %d", n)
	}
	for _, tok := range tokens {
		if _, err := m.VerifyRefreshToken(ctx, tok); !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("expected revoked token, got %v", err)
		}
	}
	if exists := rdb.Exists(ctx, m.store.principalKey("u1")).Val(); exists != 0 {
		t.Fatal("principal set must be cleared")
	}
	if _, err := m.VerifyRefreshToken(ctx, other.RefreshToken); err != nil {
		t.Fatalf("other principal must be unaffected: %v", err)
	}
}

func TestRevokeAllReachesTokenIssuedDuringSweep(t *testing.T) {
	m, rdb, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.GenerateTokenPair(ctx, "u1", Claims{}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	var late *Pair
	rdb.AddHook(&sweepHook{fn: func() {
		pair, err := m.GenerateTokenPair(ctx, "u1", Claims{})
		if err != nil {
			t.Errorf("generate during sweep: %v", err)
			return
		}
		late = pair
	}})

	first, err := m.RevokeAllForPrincipal(ctx, "u1")
	if err != nil {
		t.Fatalf("first revoke all: %v", err)
	}
	if late == nil {
		t.Fatal("no token was issued during the sweep")
	}
	second, err := m.RevokeAllForPrincipal(ctx, "u1")
	if err != nil {
		t.Fatalf("second revoke all: %v", err)
	}

	if first+second != 2 {
		t.Fatalf("expected 2 records revoked across both sweeps, got %d and %d", first, second)
	}
	if _, err := m.VerifyRefreshToken(ctx, late.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("token issued during the sweep must be revoked, got %v", err)
	}
	if n := rdb.DBSize(ctx).Val(); n != 0 {
		t.Fatalf("expected no refresh keys left, got %d", n)
	}
}

func TestVerifyRefreshFailsClosedWhenStoreDown(t *testing.T) {
	m, _, mr, _ := newTestManager(t)
	ctx := context.Background()

	pair, err := m.GenerateTokenPair(ctx, "u1", Claims{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	mr.Close()

	if _, err := m.VerifyRefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected fail-closed store error, got %v", err)
	}
	if _, err := m.RefreshTokenPair(ctx, pair.RefreshToken, Claims{}); err == nil {
		t.Fatal("rotation must not succeed without the store")
	}
}

func TestCleanupExpiredRemovesDanglingMembers(t *testing.T) {
	m, rdb, mr, _ := newTestManager(t)
	ctx := context.Background()

	keep, err := m.GenerateTokenPair(ctx, "u1", Claims{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := m.GenerateTokenPair(ctx, "u1", Claims{}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	// Simulate one record lapsing while the principal set survives.
	keepHash, err := internal.HashToken(keep.RefreshToken)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	for _, h := range rdb.SMembers(ctx, m.store.principalKey("u1")).Val() {
		if h != keepHash {
			mr.Del(m.store.recordKey(h))
		}
	}

	removed, err := m.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	left := rdb.SMembers(ctx, m.store.principalKey("u1")).Val()
	if len(left) != 1 || left[0] != keepHash {
		t.Fatalf("unexpected remaining members %v", left)
	}

	removed, err = m.CleanupExpired(ctx)
	if err != nil || removed != 0 {
		t.Fatalf("second sweep should be a no-op, got %d (%v)", removed, err)
	}
}

func TestStoreFailurePolicyIsClosed(t *testing.T) {
	if StoreFailurePolicy.String() != "fail-closed" {
		t.Fatalf("token manager must fail closed, got %s", StoreFailurePolicy)
	}
}
