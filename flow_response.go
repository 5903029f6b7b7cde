package tokenflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrEthical07/tokenflow/refresh"
)

// OnResponseRefreshToken wraps the completion hooks.
//
// In the server variant a protected or logout method whose response or error
// satisfies RefreshTokenOnSuccess.IsExpired or RefreshTokenOnError.IsExpired is
// refreshed through the coordinator and replayed; the replay result is
// returned instead of calling next. Otherwise next runs, and for login and
// logout methods the configured Interceptor observes the exchange afterwards
// without altering next's result unless the interceptor itself fails.
func (a *Authenticator) OnResponseRefreshToken(next Responded) Responded {
	return Responded{
		OnSuccess: func(ctx context.Context, resp *http.Response, m *Method) (*http.Response, error) {
			role := a.Role(m)
			if a.variant == variantServer {
				out, handled, err := a.expiredOnSuccess(ctx, resp, m, role)
				if handled {
					return out, err
				}
				resp = out
			}
			return a.observeSuccess(ctx, next, resp, m, role)
		},
		OnError: func(ctx context.Context, err error, m *Method) (*http.Response, error) {
			role := a.Role(m)
			if a.variant == variantServer {
				out, handled, rerr := a.expiredOnError(ctx, err, m, role)
				if handled {
					return out, rerr
				}
			}
			return a.observeError(ctx, next, err, m, role)
		},
	}
}

// expiryChecked reports whether role is subject to server-side expiry checks.
func expiryChecked(role Role) bool {
	return role == RoleProtected || role == RoleLogout
}

// expiredOnSuccess returns handled=false with a rewound response when the
// exchange should continue to next.
func (a *Authenticator) expiredOnSuccess(ctx context.Context, resp *http.Response, m *Method, role Role) (*http.Response, bool, error) {
	rt := a.cfg.RefreshTokenOnSuccess
	if rt == nil || !expiryChecked(role) {
		return resp, false, nil
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, true, err
	}
	expired, err := rt.IsExpired(ctx, withBody(resp, body), m)
	if err != nil {
		return nil, true, err
	}
	if !expired {
		return withBody(resp, body), false, nil
	}

	out, err := a.refreshAndReplay(ctx, m, role, nil, func(hctx context.Context) error {
		return rt.Handler(hctx, withBody(resp, body), m)
	})
	return out, true, err
}

func (a *Authenticator) expiredOnError(ctx context.Context, cause error, m *Method, role Role) (*http.Response, bool, error) {
	rt := a.cfg.RefreshTokenOnError
	if rt == nil || !expiryChecked(role) {
		return nil, false, nil
	}

	expired, err := rt.IsExpired(ctx, cause, m)
	if err != nil {
		return nil, true, errors.Join(err, cause)
	}
	if !expired {
		return nil, false, nil
	}

	out, err := a.refreshAndReplay(ctx, m, role, cause, func(hctx context.Context) error {
		return rt.Handler(hctx, cause, m)
	})
	return out, true, err
}

// refreshAndReplay refreshes through the coordinator, as owner or waiter, and
// re-issues m. The replay ceiling is checked before refreshing so an exchange
// that keeps reporting expiry stops without another refresh.
func (a *Authenticator) refreshAndReplay(
	ctx context.Context,
	m *Method,
	role Role,
	cause error,
	handler func(context.Context) error,
) (*http.Response, error) {
	if n := m.Replays(); n >= a.cfg.Replay.MaxReplays {
		a.metrics.Inc(MetricReplayExhausted)
		err := fmt.Errorf("%w: method %s still expired after %d replays", ErrAuthenticationUnavailable, m.ID(), n)
		a.logger.Debug("replay exhausted", "method_id", m.ID(), "error", err)
		a.emit(ctx, EventReplayExhausted, m, role, "", 0, err)
		if cause != nil {
			err = errors.Join(err, cause)
		}
		return nil, err
	}

	// A nil check means the caller already decided the token expired.
	outcome, err := a.coordinator.Run(ctx, a.key(m), nil, handler)
	if err != nil {
		if outcome == refresh.Refreshed {
			return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}
		return nil, err
	}

	replay := m.replays.Add(1)
	a.metrics.Inc(MetricReplay)
	a.logger.Debug("replaying method", "method_id", m.ID(), "outcome", outcome.String(), "replay", replay)
	a.emit(ctx, EventReplay, m, role, outcome.String(), 0, nil)
	return m.Send(ctx)
}

func (a *Authenticator) interceptorFor(role Role) *Interceptor {
	switch role {
	case RoleLogin:
		return a.cfg.Login
	case RoleLogout:
		return a.cfg.Logout
	default:
		return nil
	}
}

func (a *Authenticator) observeSuccess(ctx context.Context, next Responded, resp *http.Response, m *Method, role Role) (*http.Response, error) {
	ic := a.interceptorFor(role)
	if ic == nil || ic.Handler == nil {
		return next.success(ctx, resp, m)
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	out, nextErr := next.success(ctx, withBody(resp, body), m)
	herr := ic.Handler(ctx, withBody(resp, body), m)
	a.observed(ctx, m, role, herr)
	return mergeObserved(out, nextErr, herr)
}

func (a *Authenticator) observeError(ctx context.Context, next Responded, cause error, m *Method, role Role) (*http.Response, error) {
	ic := a.interceptorFor(role)
	if ic == nil || ic.ErrorHandler == nil {
		return next.failure(ctx, cause, m)
	}

	out, nextErr := next.failure(ctx, cause, m)
	herr := ic.ErrorHandler(ctx, cause, m)
	a.observed(ctx, m, role, herr)
	return mergeObserved(out, nextErr, herr)
}

func (a *Authenticator) observed(ctx context.Context, m *Method, role Role, err error) {
	eventType := EventLoginObserved
	id := MetricLoginObserved
	if role == RoleLogout {
		eventType = EventLogoutObserved
		id = MetricLogoutObserved
	}
	a.metrics.Inc(id)
	if err != nil {
		a.metrics.Inc(MetricAssignTokenFailure)
	}
	a.logger.Debug("auth exchange observed", "method_id", m.ID(), "role", role.String(), "error", err)
	a.emit(ctx, eventType, m, role, "", 0, err)
}

// mergeObserved keeps next's result unless the interceptor failed. An
// interceptor error replaces a successful result, closing its body, and is
// joined with an existing error.
func mergeObserved(out *http.Response, err, herr error) (*http.Response, error) {
	if herr == nil {
		return out, err
	}
	herr = fmt.Errorf("%w: %w", ErrAssignToken, herr)
	if err != nil {
		return out, errors.Join(err, herr)
	}
	if out != nil && out.Body != nil {
		_ = out.Body.Close()
	}
	return nil, herr
}

func readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// withBody returns a shallow copy of resp reading from body.
func withBody(resp *http.Response, body []byte) *http.Response {
	if resp == nil {
		return nil
	}
	out := *resp
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.ContentLength = int64(len(body))
	return &out
}
