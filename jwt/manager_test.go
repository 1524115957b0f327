package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	testAccessSecret  = []byte(strings.Repeat("a", 32))
	testRefreshSecret = []byte(strings.Repeat("r", 32))
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "gogate",
		Audience:      "api",
	}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerRejectsWeakOrSharedSecrets(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"short access", Config{AccessSecret: []byte("short"), RefreshSecret: testRefreshSecret, AccessTTL: time.Minute, RefreshTTL: time.Hour}},
		{"short refresh", Config{AccessSecret: testAccessSecret, RefreshSecret: []byte("short"), AccessTTL: time.Minute, RefreshTTL: time.Hour}},
		{"shared", Config{AccessSecret: testAccessSecret, RefreshSecret: testAccessSecret, AccessTTL: time.Minute, RefreshTTL: time.Hour}},
		{"zero ttl", Config{AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret, RefreshTTL: time.Hour}},
		{"leeway", Config{AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret, AccessTTL: time.Minute, RefreshTTL: time.Hour, Leeway: time.Hour}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestAccessRoundTripAndExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	tok, exp, err := m.SignAccess("u1", "jti-1", AccessClaims{Name: "alice", Tier: "pro", Permissions: []string{"read"}})
	if err != nil {
		t.Fatalf("sign access: %v", err)
	}
	if !exp.Equal(clock.t.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.ParseAccess(tok)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "u1" || claims.ID != "jti-1" || claims.Name != "alice" || claims.Tier != "pro" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	clock.t = clock.t.Add(15*time.Minute + time.Second)
	if _, err := m.ParseAccess(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be invalid, got %v", err)
	}
}

func TestKindsDoNotCrossVerify(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestManager(t, clock)

	access, _, err := m.SignAccess("u1", "a", AccessClaims{})
	if err != nil {
		t.Fatalf("sign access: %v", err)
	}
	refresh, _, err := m.SignRefresh("u1", "r")
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}

	if _, err := m.ParseRefresh(access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token must not verify as refresh: %v", err)
	}
	if _, err := m.ParseAccess(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not verify as access: %v", err)
	}
}

func TestParseAccessRejectsKindForgedWithAccessSecret(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestManager(t, clock)

	forged := RefreshClaims{Kind: KindRefresh, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "gogate",
		Audience:  gjwt.ClaimStrings{"api"},
		IssuedAt:  gjwt.NewNumericDate(clock.t),
		ExpiresAt: gjwt.NewNumericDate(clock.t.Add(time.Minute)),
	}}
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, forged).SignedString(testAccessSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ParseAccess(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected kind mismatch rejection, got %v", err)
	}
}

func TestParseRejectsIssuerAudienceAndAlgorithm(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestManager(t, clock)

	base := func(iss, aud string) AccessClaims {
		return AccessClaims{Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    iss,
			Audience:  gjwt.ClaimStrings{aud},
			IssuedAt:  gjwt.NewNumericDate(clock.t),
			ExpiresAt: gjwt.NewNumericDate(clock.t.Add(time.Minute)),
		}}
	}

	badIssuer, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, base("other", "api")).SignedString(testAccessSecret)
	if _, err := m.ParseAccess(badIssuer); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer mismatch, got %v", err)
	}

	badAudience, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, base("gogate", "other")).SignedString(testAccessSecret)
	if _, err := m.ParseAccess(badAudience); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected audience mismatch, got %v", err)
	}

	hs512, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS512, base("gogate", "api")).SignedString(testAccessSecret)
	if _, err := m.ParseAccess(hs512); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected algorithm rejection, got %v", err)
	}

	if _, err := m.ParseAccess(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected empty token rejection, got %v", err)
	}
}

func TestParseRefreshIgnoringExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestManager(t, clock)

	tok, _, err := m.SignRefresh("u1", "r1")
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}
	clock.t = clock.t.Add(8 * 24 * time.Hour)

	if _, err := m.ParseRefresh(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired refresh to fail strict parse, got %v", err)
	}
	claims, err := m.ParseRefreshIgnoringExpiry(tok)
	if err != nil {
		t.Fatalf("lenient parse: %v", err)
	}
	if claims.ID != "r1" || claims.Subject != "u1" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	tampered := tok[:len(tok)-2] + "xx"
	if _, err := m.ParseRefreshIgnoringExpiry(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected tampered signature rejection, got %v", err)
	}
}
