package tokenflow

import (
	"context"

	"github.com/MrEthical07/tokenflow/store"
)

type scopeContextKey struct{}

// WithScope attaches a token scope to ctx. The store helpers use it to pick
// which pair to read and write, so several accounts or tenants can share one
// [store.TokenStore]. Without a scope, [store.DefaultScope] is used.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext returns the scope attached by [WithScope].
func ScopeFromContext(ctx context.Context) string {
	if ctx == nil {
		return store.DefaultScope
	}

	scope, _ := ctx.Value(scopeContextKey{}).(string)
	if scope == "" {
		return store.DefaultScope
	}

	return scope
}

func scopeFromContextExplicit(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	scope, _ := ctx.Value(scopeContextKey{}).(string)
	if scope == "" {
		return "", false
	}

	return scope, true
}
