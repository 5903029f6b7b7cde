package tokenflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Method describes one logical exchange. Its pointer identity is stable across
// replays; hooks may mutate the template request headers.
type Method struct {
	id   uuid.UUID
	meta Meta

	mu   sync.Mutex
	req  *http.Request
	body []byte

	replays atomic.Int32
	client  atomic.Pointer[Client]
}

// NewMethod takes ownership of req. The body, if any, is read fully and closed
// so the request can be replayed.
func NewMethod(req *http.Request, meta Meta) (*Method, error) {
	if req == nil {
		return nil, ErrNilMethod
	}

	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		b, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = b
	}
	req.Body = nil
	req.GetBody = nil
	if req.Header == nil {
		req.Header = make(http.Header)
	}

	return &Method{
		id:   uuid.New(),
		meta: meta,
		req:  req,
		body: body,
	}, nil
}

// NewRequest builds a [Method] from its parts.
func NewRequest(method, url string, body []byte, meta Meta) (*Method, error) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}
	m, err := NewMethod(req, meta)
	if err != nil {
		return nil, err
	}
	m.body = bytes.Clone(body)
	return m, nil
}

func (m *Method) ID() string { return m.id.String() }

func (m *Method) Meta() Meta { return m.meta }

// Header returns the template headers. Changes apply to every later send.
func (m *Method) Header() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.req.Header
}

// SetHeader sets one template header under the method lock.
func (m *Method) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.req.Header.Set(key, value)
}

// Replays returns how many times the current exchange has been replayed.
func (m *Method) Replays() int { return int(m.replays.Load()) }

// Send re-issues the method through the client that last sent it, running the
// full hook chain again. It does not reset the replay count.
func (m *Method) Send(ctx context.Context) (*http.Response, error) {
	c := m.client.Load()
	if c == nil {
		return nil, ErrNotBound
	}
	return c.send(ctx, m)
}

func (m *Method) request(ctx context.Context) *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	req := m.req.Clone(ctx)
	if m.body != nil {
		body := m.body
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		req.ContentLength = int64(len(body))
	}
	return req
}
