package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/devfurlan/cuidly-sub007/pkg/config"
)

var (
	ErrNotConfigured = errors.New("jwt secret and issuer are required")

	signingMethod = jwt.SigningMethodHS256
)

// Tokens verifies bearer tokens against the shared HMAC secret. Mint exists
// for tests and operator tooling; production tokens come from identity.
type Tokens struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

func NewTokens(cfg config.JWTConfig) *Tokens {
	return &Tokens{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(cfg.Leeway),
		),
	}
}

func (t *Tokens) configured() bool {
	return len(t.secret) > 0 && t.issuer != ""
}

// Verify checks signature, issuer, expiry and Claims.Validate.
func (t *Tokens) Verify(raw string) (*Claims, error) {
	if !t.configured() {
		return nil, ErrNotConfigured
	}
	claims := &Claims{}
	if _, err := t.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}

// Mint fills issuer, iat, exp and a random jti when empty.
func (t *Tokens) Mint(claims Claims, now time.Time, ttl time.Duration) (string, error) {
	if !t.configured() {
		return "", ErrNotConfigured
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}
	claims.Issuer = t.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
