package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ErrUnauthorized is returned for any missing, invalid, expired or
// non-admin credential.
var ErrUnauthorized = errors.New("unauthorized")

// Verifier checks a raw bearer token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Gate admits only requests carrying a verified admin token.
type Gate struct {
	verifier Verifier
}

// NewGate returns a gate delegating token checks to v.
func NewGate(v Verifier) *Gate {
	return &Gate{verifier: v}
}

// Authorize checks an Authorization header value of the form
// "Bearer <token>". The verified subject must be AdminSubject.
func (g *Gate) Authorize(ctx context.Context, header string) (*Claims, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, ErrUnauthorized
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthorized
	}

	claims, err := g.verifier.Verify(ctx, token)
	if err != nil {
		slog.Debug("token rejected", "error", err)
		return nil, ErrUnauthorized
	}
	if claims == nil || claims.Subject != AdminSubject {
		return nil, ErrUnauthorized
	}
	return claims, nil
}
