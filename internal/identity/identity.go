// Package identity resolves the party acting on a request.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrNoIdentity is returned when no caller identity can be resolved.
var ErrNoIdentity = errors.New("identity: no current identity")

// Provider returns the id of the party making the current call.
type Provider interface {
	CurrentIdentity(ctx context.Context) (string, error)
}

// Static is a Provider that always returns the same party id.
type Static string

// CurrentIdentity implements Provider.
func (s Static) CurrentIdentity(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoIdentity
	}
	return string(s), nil
}

type ctxKey struct{}

// WithParty returns a context carrying party id.
func WithParty(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the party id stored by WithParty.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Context is a Provider that reads the party id stored by WithParty.
type Context struct{}

// CurrentIdentity implements Provider.
func (Context) CurrentIdentity(ctx context.Context) (string, error) {
	if id, ok := FromContext(ctx); ok {
		return id, nil
	}
	return "", ErrNoIdentity
}

// Claims is the bearer token payload. The party id is the subject.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier issues and validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for secret. An empty secret is rejected.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("identity: jwt secret is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Issue signs a token for party id valid for ttl. ttl <= 0 means no expiry.
func (v *Verifier) Issue(id string, ttl time.Duration) (string, error) {
	if id == "" {
		return "", fmt.Errorf("identity: party id is required")
	}
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  id,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return tok, nil
}

// Verify validates tok and returns its subject.
func (v *Verifier) Verify(tok string) (string, error) {
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("identity: verify token: %w", err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return "", fmt.Errorf("identity: invalid token")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("identity: token has no subject")
	}
	return c.Subject, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}
