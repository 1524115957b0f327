package jwt

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum accepted HMAC secret size in bytes.
const MinSecretLength = 32

// Kind identifies which of the two token kinds a JWT carries in its `typ` claim.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	// ErrInvalidConfig is returned by NewManager for weak, shared or missing secrets
	// and non-positive lifetimes.
	ErrInvalidConfig = errors.New("invalid jwt configuration")
	// ErrInvalidToken is returned for any signature, format, expiry, issuer,
	// audience or kind failure.
	ErrInvalidToken = errors.New("invalid token")
)

// Config holds the signing material and validation parameters.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Manager signs and parses access and refresh tokens.
//
// Manager holds no mutable state after construction and is safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	Name        string   `json:"name,omitempty"`
	Tier        string   `json:"tier,omitempty"`
	Permissions []string `json:"perms,omitempty"`
	Kind        Kind     `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. It carries only what is needed
// to locate the stored record.
type RefreshClaims struct {
	Kind Kind `json:"typ"`
	jwt.RegisteredClaims
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if len(cfg.AccessSecret) < MinSecretLength {
		return nil, fmt.Errorf("%w: access secret must be at least %d bytes", ErrInvalidConfig, MinSecretLength)
	}
	if len(cfg.RefreshSecret) < MinSecretLength {
		return nil, fmt.Errorf("%w: refresh secret must be at least %d bytes", ErrInvalidConfig, MinSecretLength)
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", ErrInvalidConfig)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token lifetimes must be positive", ErrInvalidConfig)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, fmt.Errorf("%w: leeway out of range", ErrInvalidConfig)
	}

	m := &Manager{config: cfg, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// SignAccess signs an access token for subject with the given jti.
func (m *Manager) SignAccess(subject, jti string, claims AccessClaims) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.config.AccessTTL)

	claims.Kind = KindAccess
	claims.RegisteredClaims = m.registered(subject, jti, now, expiresAt)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.AccessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// SignRefresh signs a refresh token for subject with the given jti.
func (m *Manager) SignRefresh(subject, jti string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.config.RefreshTTL)

	claims := RefreshClaims{
		Kind:             KindRefresh,
		RegisteredClaims: m.registered(subject, jti, now, expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.RefreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAccess verifies signature, issuer, audience, expiry and kind.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims, m.config.AccessSecret, true); err != nil {
		return nil, err
	}
	if claims.Kind != KindAccess {
		return nil, fmt.Errorf("%w: unexpected token kind %q", ErrInvalidToken, claims.Kind)
	}
	return claims, nil
}

// ParseRefresh verifies signature, issuer, audience, expiry and kind.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	return m.parseRefresh(tokenStr, true)
}

// ParseRefreshIgnoringExpiry verifies everything ParseRefresh does except expiry.
// Revocation accepts tokens that have already lapsed.
func (m *Manager) ParseRefreshIgnoringExpiry(tokenStr string) (*RefreshClaims, error) {
	return m.parseRefresh(tokenStr, false)
}

func (m *Manager) parseRefresh(tokenStr string, checkExpiry bool) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims, m.config.RefreshSecret, checkExpiry); err != nil {
		return nil, err
	}
	if claims.Kind != KindRefresh {
		return nil, fmt.Errorf("%w: unexpected token kind %q", ErrInvalidToken, claims.Kind)
	}
	return claims, nil
}

func (m *Manager) registered(subject, jti string, now, expiresAt time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        jti,
		Issuer:    m.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if m.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return rc
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, secret []byte, checkExpiry bool) error {
	if tokenStr == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithIssuedAt(),
	}
	if checkExpiry {
		options = append(options, jwt.WithExpirationRequired())
	} else {
		options = append(options, jwt.WithoutClaimsValidation())
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}

	if !checkExpiry {
		// Claims validation was skipped wholesale; issuer and audience still apply.
		if err := m.checkIssuerAudience(claims); err != nil {
			return err
		}
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return nil
}

func (m *Manager) checkIssuerAudience(claims jwt.Claims) error {
	if m.config.Issuer != "" {
		iss, err := claims.GetIssuer()
		if err != nil || iss != m.config.Issuer {
			return fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
		}
	}
	if m.config.Audience != "" {
		aud, err := claims.GetAudience()
		if err != nil {
			return fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
		}
		for _, a := range aud {
			if a == m.config.Audience {
				return nil
			}
		}
		return fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	return nil
}
