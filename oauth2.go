package tokenflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/MrEthical07/tokenflow/store"
)

// ErrNoRefreshToken is returned by an OAuth2 refresh when the stored pair has
// no refresh token.
var ErrNoRefreshToken = errors.New("no refresh token stored")

// RefreshFunc performs one token refresh. Its methods adapt it to the handler
// shape of each refresh descriptor.
type RefreshFunc func(ctx context.Context) error

func (f RefreshFunc) ForRequest() RequestHandler {
	return func(ctx context.Context, _ *Method) error { return f(ctx) }
}

func (f RefreshFunc) ForResponse() ResponseHandler {
	return func(ctx context.Context, _ *http.Response, _ *Method) error { return f(ctx) }
}

func (f RefreshFunc) ForError() ErrorHandler {
	return func(ctx context.Context, _ error, _ *Method) error { return f(ctx) }
}

// OAuth2Refresh exchanges the stored refresh token at cfg's token endpoint
// and writes the rotated pair back to st under the context scope. A provider
// that does not rotate keeps the previous refresh token. Attach a custom HTTP
// client with context.WithValue(ctx, oauth2.HTTPClient, c).
func OAuth2Refresh(cfg *oauth2.Config, st store.TokenStore) RefreshFunc {
	return func(ctx context.Context) error {
		scope := ScopeFromContext(ctx)
		pair, err := st.Load(ctx, scope)
		if err != nil {
			return err
		}
		if pair.RefreshToken == "" {
			return ErrNoRefreshToken
		}

		// An already-expired token forces the source to hit the endpoint.
		stale := &oauth2.Token{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			TokenType:    pair.TokenType,
			Expiry:       time.Unix(1, 0),
		}
		tok, err := cfg.TokenSource(ctx, stale).Token()
		if err != nil {
			return fmt.Errorf("oauth2 refresh: %w", err)
		}

		next := store.Pair{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			TokenType:    tok.Type(),
			Expiry:       tok.Expiry,
		}
		if next.RefreshToken == "" {
			next.RefreshToken = pair.RefreshToken
		}
		return st.Save(ctx, scope, next)
	}
}
