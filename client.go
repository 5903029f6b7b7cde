package tokenflow

import (
	"context"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultErrorStatusFloor is the first status code a [Client] reports as a
// [*StatusError].
const DefaultErrorStatusFloor = http.StatusBadRequest

const maxErrorBody = 1 << 20

// BeforeRequestFunc runs before every send. An error aborts the send and is
// returned to the caller as is.
type BeforeRequestFunc func(ctx context.Context, m *Method) error

// SuccessFunc handles a completed exchange.
type SuccessFunc func(ctx context.Context, resp *http.Response, m *Method) (*http.Response, error)

// ErrorFunc handles a failed exchange: a transport error or a [*StatusError].
type ErrorFunc func(ctx context.Context, err error, m *Method) (*http.Response, error)

// Responded holds the completion hooks of a [Client]. Nil hooks pass the
// result through.
type Responded struct {
	OnSuccess SuccessFunc
	OnError   ErrorFunc
}

func (r Responded) success(ctx context.Context, resp *http.Response, m *Method) (*http.Response, error) {
	if r.OnSuccess == nil {
		return resp, nil
	}
	return r.OnSuccess(ctx, resp, m)
}

func (r Responded) failure(ctx context.Context, err error, m *Method) (*http.Response, error) {
	if r.OnError == nil {
		return nil, err
	}
	return r.OnError(ctx, err, m)
}

// ClientConfig configures a [Client].
type ClientConfig struct {
	// Transport defaults to http.DefaultTransport.
	Transport     http.RoundTripper
	BeforeRequest BeforeRequestFunc
	Responded     Responded
	// ErrorStatusFloor defaults to DefaultErrorStatusFloor.
	ErrorStatusFloor int
	// Tracing wraps Transport with OpenTelemetry client instrumentation.
	Tracing bool
}

// Client is a minimal request engine exposing a before-request hook and
// success/error completion hooks. It is safe for concurrent use.
type Client struct {
	http      *http.Client
	before    BeforeRequestFunc
	responded Responded
	floor     int
}

func NewClient(cfg ClientConfig) *Client {
	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	if cfg.Tracing {
		rt = otelhttp.NewTransport(rt)
	}
	floor := cfg.ErrorStatusFloor
	if floor <= 0 {
		floor = DefaultErrorStatusFloor
	}
	return &Client{
		http:      &http.Client{Transport: rt},
		before:    cfg.BeforeRequest,
		responded: cfg.Responded,
		floor:     floor,
	}
}

// Send starts a new exchange for m, resetting its replay count, and binds m to
// c so later replays go through the same hooks.
//
// Errors returned by Responded.OnSuccess are final; they do not re-enter
// Responded.OnError.
func (c *Client) Send(ctx context.Context, m *Method) (*http.Response, error) {
	if m == nil {
		return nil, ErrNilMethod
	}
	m.replays.Store(0)
	m.client.Store(c)
	return c.send(ctx, m)
}

func (c *Client) send(ctx context.Context, m *Method) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.before != nil {
		if err := c.before(ctx, m); err != nil {
			return nil, err
		}
	}

	resp, err := c.http.Do(m.request(ctx))
	if err != nil {
		return c.responded.failure(ctx, err, m)
	}
	if resp.StatusCode >= c.floor {
		return c.responded.failure(ctx, statusError(resp), m)
	}
	return c.responded.success(ctx, resp, m)
}

func statusError(resp *http.Response) *StatusError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Code:   resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}
}
