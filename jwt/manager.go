// Package jwt issues and validates the HS256 access tokens that prove full
// password-plus-TOTP authentication.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned when a token fails signature or claim checks.
var ErrTokenInvalid = errors.New("invalid token")

// Config holds signing parameters. SigningKey is process-wide secret
// configuration loaded at startup, never derived from request data.
type Config struct {
	SigningKey []byte
	AccessTTL  time.Duration
	Issuer     string
	Leeway     time.Duration
}

// Manager signs and parses access tokens. Safe for concurrent use.
type Manager struct {
	config Config
}

// AccessClaims is the token payload: the username as subject plus the
// registered issued-at/expiry claims.
type AccessClaims struct {
	jwt.RegisteredClaims
}

// Username returns the identity reference the token asserts.
func (c *AccessClaims) Username() string {
	return c.Subject
}

// NewManager validates cfg and returns a token manager. A missing or short
// signing key is rejected here so hosts fail at startup, not at first issue.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("signing key required")
	}
	if len(cfg.SigningKey) < 32 {
		return nil, errors.New("signing key must be >= 256 bits")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{config: cfg}, nil
}

// Issue signs a token asserting username, valid from now until now+AccessTTL.
func (j *Manager) Issue(username string, now time.Time) (string, time.Time, error) {
	if j == nil {
		return "", time.Time{}, errors.New("manager not initialized")
	}

	expiresAt := now.Add(j.config.AccessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.config.SigningKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// Parse validates signature, algorithm, issuer, and expiry, returning the
// claims on success.
func (j *Manager) Parse(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return j.config.SigningKey, nil
	})
	if err != nil {
		return nil, errors.Join(ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
