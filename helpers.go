package tokenflow

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/tokenflow/jwt"
	"github.com/MrEthical07/tokenflow/store"
)

// BearerAssigner returns an AssignTokenFunc that sets the Authorization header
// from the pair stored for the context scope. A scope with no tokens leaves the
// header untouched so the server decides how to treat the request.
func BearerAssigner(st store.TokenStore) AssignTokenFunc {
	return func(ctx context.Context, m *Method) error {
		pair, err := st.Load(ctx, ScopeFromContext(ctx))
		if errors.Is(err, store.ErrNoTokens) {
			return nil
		}
		if err != nil {
			return err
		}
		if pair.AccessToken == "" {
			return nil
		}

		tokenType := pair.TokenType
		if tokenType == "" {
			tokenType = "Bearer"
		}
		m.SetHeader("Authorization", tokenType+" "+pair.AccessToken)
		return nil
	}
}

// StoreExpiry returns a RequestPredicate over the stored access token. A JWT
// access token is judged by its exp claim; an opaque one by Pair.Expiry. The
// token counts as expired leeway before the deadline. Missing tokens and
// unknown expiry are reported as not expired.
func StoreExpiry(st store.TokenStore, leeway time.Duration) RequestPredicate {
	return storeExpiry(st, leeway, time.Now)
}

func storeExpiry(st store.TokenStore, leeway time.Duration, now func() time.Time) RequestPredicate {
	return func(ctx context.Context, _ *Method) (bool, error) {
		pair, err := st.Load(ctx, ScopeFromContext(ctx))
		if errors.Is(err, store.ErrNoTokens) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		expired, err := jwt.Expired(pair.AccessToken, leeway, now())
		if err == nil {
			return expired, nil
		}
		if !errors.Is(err, jwt.ErrMalformed) {
			return false, err
		}
		if pair.Expiry.IsZero() {
			return false, nil
		}
		return !now().Add(leeway).Before(pair.Expiry), nil
	}
}

// StatusPredicate returns an ErrorPredicate matching a [*StatusError] with one
// of codes. With no codes it matches 401.
func StatusPredicate(codes ...int) ErrorPredicate {
	set := statusSet(codes)
	return func(_ context.Context, err error, _ *Method) (bool, error) {
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			return false, nil
		}
		_, ok := set[statusErr.Code]
		return ok, nil
	}
}

// ResponseStatusPredicate is the ResponsePredicate counterpart of
// StatusPredicate, for clients whose error status floor lets the expiry
// status through the success channel.
func ResponseStatusPredicate(codes ...int) ResponsePredicate {
	set := statusSet(codes)
	return func(_ context.Context, resp *http.Response, _ *Method) (bool, error) {
		if resp == nil {
			return false, nil
		}
		_, ok := set[resp.StatusCode]
		return ok, nil
	}
}

func statusSet(codes []int) map[int]struct{} {
	if len(codes) == 0 {
		codes = []int{http.StatusUnauthorized}
	}
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}
