package tokenflow

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// RequestPredicate decides from the outgoing method whether the token is expired.
type RequestPredicate func(ctx context.Context, m *Method) (bool, error)

// RequestHandler refreshes the token before a method is sent.
type RequestHandler func(ctx context.Context, m *Method) error

// ResponsePredicate decides from a completed response whether the token expired.
type ResponsePredicate func(ctx context.Context, resp *http.Response, m *Method) (bool, error)

// ResponseHandler reacts to a completed response.
type ResponseHandler func(ctx context.Context, resp *http.Response, m *Method) error

// ErrorPredicate decides from a failed exchange whether the token expired.
type ErrorPredicate func(ctx context.Context, err error, m *Method) (bool, error)

// ErrorHandler reacts to a failed exchange.
type ErrorHandler func(ctx context.Context, err error, m *Method) error

// AssignTokenFunc attaches the current token to a method before it is sent.
type AssignTokenFunc func(ctx context.Context, m *Method) error

// Interceptor observes login or logout exchanges. Handler runs on success,
// ErrorHandler on failure; both run after the client's own completion hook.
type Interceptor struct {
	Handler      ResponseHandler
	ErrorHandler ErrorHandler
	// MetaMatches defaults to DefaultLoginMeta or DefaultLogoutMeta.
	MetaMatches Meta
}

// RefreshToken is the refresh descriptor of the client variant.
type RefreshToken struct {
	IsExpired RequestPredicate
	Handler   RequestHandler
	// MetaMatches marks the methods that perform the refresh; defaults to
	// DefaultRefreshMeta.
	MetaMatches Meta
}

// RefreshTokenOnSuccess is the server variant descriptor for expiry reported
// through a successful response.
type RefreshTokenOnSuccess struct {
	IsExpired   ResponsePredicate
	Handler     ResponseHandler
	MetaMatches Meta
}

// RefreshTokenOnError is the server variant descriptor for expiry reported
// through a failed exchange.
type RefreshTokenOnError struct {
	IsExpired   ErrorPredicate
	Handler     ErrorHandler
	MetaMatches Meta
}

// Config holds the role patterns, callbacks and operational settings of an
// [Authenticator]. Start from [DefaultConfig].
type Config struct {
	// VisitorMeta marks requests that bypass authentication. Nil means none.
	VisitorMeta Meta
	Login       *Interceptor
	Logout      *Interceptor
	AssignToken AssignTokenFunc

	// Client variant.
	RefreshToken *RefreshToken

	// Server variant.
	RefreshTokenOnSuccess *RefreshTokenOnSuccess
	RefreshTokenOnError   *RefreshTokenOnError

	Replay  ReplayConfig
	Refresh RefreshConfig
	Metrics MetricsConfig
	Events  EventsConfig
}

/*
====================================
OPERATIONAL CONFIG
====================================
*/

// ReplayConfig bounds server variant replays.
type ReplayConfig struct {
	// MaxReplays is the number of replays one exchange may perform before it
	// fails with ErrAuthenticationUnavailable.
	MaxReplays int
}

// RefreshConfig controls the coordinator built for an Authenticator.
type RefreshConfig struct {
	// Timeout bounds each refresh handler invocation.
	Timeout time.Duration
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// EventsConfig controls asynchronous lifecycle event delivery.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

const (
	maxReplaysLimit   = 8
	maxRefreshTimeout = 5 * time.Minute
	maxEventBuffer    = 1 << 20
)

// DefaultConfig returns a Config with one replay, a 30s refresh bound and
// metrics enabled. Role callbacks are left unset.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Replay: ReplayConfig{
			MaxReplays: 1,
		},
		Refresh: RefreshConfig{
			Timeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Events: EventsConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.VisitorMeta = cloneMeta(cfg.VisitorMeta)
	if cfg.Login != nil {
		login := *cfg.Login
		login.MetaMatches = cloneMeta(login.MetaMatches)
		out.Login = &login
	}
	if cfg.Logout != nil {
		logout := *cfg.Logout
		logout.MetaMatches = cloneMeta(logout.MetaMatches)
		out.Logout = &logout
	}
	if cfg.RefreshToken != nil {
		rt := *cfg.RefreshToken
		rt.MetaMatches = cloneMeta(rt.MetaMatches)
		out.RefreshToken = &rt
	}
	if cfg.RefreshTokenOnSuccess != nil {
		rt := *cfg.RefreshTokenOnSuccess
		rt.MetaMatches = cloneMeta(rt.MetaMatches)
		out.RefreshTokenOnSuccess = &rt
	}
	if cfg.RefreshTokenOnError != nil {
		rt := *cfg.RefreshTokenOnError
		rt.MetaMatches = cloneMeta(rt.MetaMatches)
		out.RefreshTokenOnError = &rt
	}
	return out
}

func cloneMeta(m Meta) Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks settings shared by both variants. Variant-specific rules are
// applied by BuildClient and BuildServer.
func (c *Config) Validate() error {
	if c.Replay.MaxReplays < 1 || c.Replay.MaxReplays > maxReplaysLimit {
		return invalidf("Replay MaxReplays must be in [1, %d]", maxReplaysLimit)
	}
	if c.Refresh.Timeout <= 0 || c.Refresh.Timeout > maxRefreshTimeout {
		return invalidf("Refresh Timeout must be in (0, %s]", maxRefreshTimeout)
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return invalidf("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	if c.Events.Enabled && (c.Events.BufferSize <= 0 || c.Events.BufferSize > maxEventBuffer) {
		return invalidf("Events BufferSize must be in [1, %d] when Events is enabled", maxEventBuffer)
	}
	if c.VisitorMeta != nil && len(c.VisitorMeta) == 0 {
		return invalidf("VisitorMeta must be nil or non-empty")
	}
	if err := validateInterceptor("Login", c.Login); err != nil {
		return err
	}
	if err := validateInterceptor("Logout", c.Logout); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateClient() error {
	if c.RefreshTokenOnSuccess != nil || c.RefreshTokenOnError != nil {
		return invalidf("client variant does not use RefreshTokenOnSuccess or RefreshTokenOnError")
	}
	if rt := c.RefreshToken; rt != nil {
		if rt.IsExpired == nil || rt.Handler == nil {
			return invalidf("RefreshToken requires IsExpired and Handler")
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.RefreshToken != nil {
		return invalidf("server variant does not use RefreshToken")
	}
	if rt := c.RefreshTokenOnSuccess; rt != nil {
		if rt.IsExpired == nil || rt.Handler == nil {
			return invalidf("RefreshTokenOnSuccess requires IsExpired and Handler")
		}
	}
	if rt := c.RefreshTokenOnError; rt != nil {
		if rt.IsExpired == nil || rt.Handler == nil {
			return invalidf("RefreshTokenOnError requires IsExpired and Handler")
		}
	}
	return nil
}

func validateInterceptor(name string, ic *Interceptor) error {
	if ic == nil {
		return nil
	}
	if ic.Handler == nil && ic.ErrorHandler == nil {
		return invalidf("%s requires Handler or ErrorHandler", name)
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
