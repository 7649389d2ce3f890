package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type claims struct {
	Scope Scope `json:"scope"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens for every purpose.
type Signer struct {
	secret []byte
	clock  clockwork.Clock
	ttls   map[Scope]time.Duration
}

type SignerOption func(*Signer)

func WithClock(c clockwork.Clock) SignerOption {
	return func(s *Signer) { s.clock = c }
}

func WithTTL(scope Scope, ttl time.Duration) SignerOption {
	return func(s *Signer) {
		if ttl > 0 {
			s.ttls[scope] = ttl
		}
	}
}

func NewSigner(secret string, opts ...SignerOption) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	s := &Signer{
		secret: []byte(secret),
		clock:  clockwork.NewRealClock(),
		ttls: map[Scope]time.Duration{
			ScopeAccess:        time.Hour,
			ScopeRefresh:       7 * 24 * time.Hour,
			ScopePasswordReset: 15 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Signer) Now() time.Time { return s.clock.Now() }

// Issue signs a fresh token of purpose P for userID.
func Issue[P Purpose](s *Signer, userID string) (string, Token[P], error) {
	var p P
	if strings.TrimSpace(userID) == "" {
		return "", Token[P]{}, fmt.Errorf("issue %s: empty subject", p.Scope())
	}
	now := s.clock.Now().Truncate(time.Second)
	tok := Token[P]{
		ID:        uuid.NewString(),
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttls[p.Scope()]),
	}
	c := claims{
		Scope: p.Scope(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tok.ID,
			Subject:   tok.UserID,
			IssuedAt:  jwt.NewNumericDate(tok.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(tok.ExpiresAt),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", Token[P]{}, fmt.Errorf("sign %s: %w", p.Scope(), err)
	}
	return raw, tok, nil
}

// Verify checks signature, expiry and scope. It never consults the
// revocation store; see Authorize.
func Verify[P Purpose](s *Signer, raw string) (Token[P], error) {
	var p P
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Token[P]{}, reject(ReasonMalformed, fmt.Errorf("%w: empty", ErrInvalidToken))
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Token[P]{}, classifyParseError(err)
	}

	if c.Scope != p.Scope() {
		return Token[P]{}, reject(ReasonScope, fmt.Errorf("%w: required %s, got %q", ErrScopeMismatch, p.Scope(), c.Scope))
	}
	if strings.TrimSpace(c.Subject) == "" {
		return Token[P]{}, reject(ReasonSubject, fmt.Errorf("%w: no subject", ErrInvalidToken))
	}
	if p.revocable() && strings.TrimSpace(c.ID) == "" {
		return Token[P]{}, reject(ReasonTokenID, fmt.Errorf("%w: no jti", ErrInvalidToken))
	}

	tok := Token[P]{ID: c.ID, UserID: c.Subject}
	if c.IssuedAt != nil {
		tok.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		tok.ExpiresAt = c.ExpiresAt.Time
	}
	return tok, nil
}

func classifyParseError(err error) *Error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return reject(ReasonExpired, fmt.Errorf("%w: %v", ErrExpired, err))
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return reject(ReasonSignature, fmt.Errorf("%w: %v", ErrInvalidToken, err))
	case errors.Is(err, jwt.ErrTokenMalformed):
		return reject(ReasonMalformed, fmt.Errorf("%w: %v", ErrInvalidToken, err))
	default:
		return reject(ReasonSignature, fmt.Errorf("%w: %v", ErrInvalidToken, err))
	}
}
