package store

import (
	"context"
	"errors"
	"time"
)

// ErrNoTokens is returned by Load when nothing is stored for a scope.
var ErrNoTokens = errors.New("store: no tokens for scope")

// ErrUnavailable wraps backend failures.
var ErrUnavailable = errors.New("store: backend unavailable")

// DefaultScope is used when a caller passes an empty scope.
const DefaultScope = "0"

// Pair is one access/refresh token pair. Expiry is the access token expiry
// reported by the issuer; zero means unknown.
type Pair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

// TokenStore persists token pairs per scope. Implementations are safe for
// concurrent use.
type TokenStore interface {
	Load(ctx context.Context, scope string) (Pair, error)
	Save(ctx context.Context, scope string, pair Pair) error
	Clear(ctx context.Context, scope string) error
}

func normalizeScope(scope string) string {
	if scope == "" {
		return DefaultScope
	}
	return scope
}
