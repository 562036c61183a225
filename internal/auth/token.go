// Package auth implements the identity-token authority for the gateway.
//
// Tokens are HS256-signed JWTs carrying only registered claims
// ({sub, iat, exp, iss}). A token is valid iff the signature verifies and
// the check time is strictly before the expiry instant; there is no
// revocation in this design; tokens age out.
//
// The clock is injectable so expiry behavior can be tested without
// sleeping. The zero-value Authenticator is not usable; construct via New.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Errors distinguishing verification outcomes. Callers surface all of them
// to clients as a single generic auth failure; the distinction exists for
// logging only.
var (
	// ErrInvalidToken covers malformed tokens and bad signatures.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned when the token verified but its expiry
	// instant has passed.
	ErrExpiredToken = errors.New("token expired")

	// ErrEmptyUserID rejects issuance for a blank identity.
	ErrEmptyUserID = errors.New("user id must not be empty")
)

// Claims is the resolved identity carried by a verified token.
type Claims struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Authenticator issues and validates signed, time-limited identity tokens.
// It is immutable after construction and safe for concurrent use; a single
// instance is constructed at process start and shared by reference.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option customizes an Authenticator.
type Option func(*Authenticator)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// New constructs an Authenticator signing with the given HMAC secret and
// stamping the given issuer.
func New(secret, issuer string, opts ...Option) *Authenticator {
	a := &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Issue creates a signed token for userID valid for ttl from now.
// It returns the compact token and its expiry instant.
func (a *Authenticator) Issue(userID string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, ErrEmptyUserID
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("ttl must be positive, got %v", ttl)
	}
	now := a.now().UTC()
	exp := now.Add(ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses and validates a compact token, returning the resolved
// identity. Failure modes collapse to ErrInvalidToken except expiry, which
// is reported as ErrExpiredToken so logs can tell the two apart.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	rc := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &rc,
		func(t *jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || rc.Subject == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{UserID: rc.Subject}
	if rc.IssuedAt != nil {
		claims.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		claims.ExpiresAt = rc.ExpiresAt.Time
	}
	return claims, nil
}
