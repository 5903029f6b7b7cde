package refresh

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout bounds a refresh handler when no explicit timeout is configured.
const DefaultTimeout = 30 * time.Second

var (
	// ErrDuplicateWaiter is returned when a key is already suspended on the coordinator.
	ErrDuplicateWaiter = errors.New("refresh: key already waiting")
	// ErrHandlerPanic wraps a recovered panic raised by a refresh handler.
	ErrHandlerPanic = errors.New("refresh: handler panicked")
	// ErrNilHandler is returned by Run when a refresh is needed but no handler was supplied.
	ErrNilHandler = errors.New("refresh: nil handler")
	// ErrReentrant is returned when the owner's own key tries to wait on its refresh.
	ErrReentrant = errors.New("refresh: owner cannot wait on its own refresh")
)

// Outcome describes how a Run call resolved.
type Outcome uint8

const (
	// NotNeeded means isExpired reported false; nothing changed.
	NotNeeded Outcome = iota
	// Refreshed means the caller owned the refresh and ran the handler.
	Refreshed
	// Waited means the caller was suspended behind another owner's refresh.
	Waited
)

func (o Outcome) String() string {
	switch o {
	case NotNeeded:
		return "not_needed"
	case Refreshed:
		return "refreshed"
	case Waited:
		return "waited"
	default:
		return "unknown"
	}
}

// Observer receives coordinator lifecycle callbacks. Callbacks run outside the
// coordinator lock and must not block for long.
type Observer interface {
	RefreshStarted(key any)
	RefreshFinished(key any, elapsed time.Duration, err error)
	Enqueued(key any)
	Released(key any)
	Cancelled(key any)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout bounds every handler invocation. Non-positive values disable the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithObserver attaches lifecycle callbacks.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

type waiter struct {
	key  any
	done chan struct{}
	elem *list.Element
}

// Coordinator is the single-flight refresh state machine. The zero value is not
// usable; construct with New. A Coordinator is safe for concurrent use.
type Coordinator struct {
	mu         sync.Mutex
	refreshing bool
	owner      any
	waiters    *list.List
	queued     map[any]*waiter

	timeout   time.Duration
	observers []Observer
}

// New returns an idle Coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		waiters: list.New(),
		queued:  make(map[any]*waiter),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// AddObserver attaches o to a running Coordinator. Callbacks already in flight
// do not see it.
func (c *Coordinator) AddObserver(o Observer) {
	if o == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers[:len(c.observers):len(c.observers)], o)
}

func (c *Coordinator) observersSnapshot() []Observer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observers
}

// Refreshing reports whether a handler invocation is outstanding.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Waiting returns the keys of suspended callers in arrival order.
func (c *Coordinator) Waiting() []any {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]any, 0, c.waiters.Len())
	for e := c.waiters.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*waiter).key)
	}
	return out
}

// Run evaluates isExpired and, when it reports true, either performs the refresh
// as owner or suspends behind the outstanding one.
//
// key identifies the caller for queueing; it must be comparable and must not be
// queued twice at the same time. Only the owner sees a handler error. A waiter
// whose ctx ends while suspended is removed from the queue and gets ctx.Err().
func (c *Coordinator) Run(
	ctx context.Context,
	key any,
	isExpired func(context.Context) (bool, error),
	handler func(context.Context) error,
) (Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if isExpired != nil {
		expired, err := isExpired(ctx)
		if err != nil {
			return NotNeeded, err
		}
		if !expired {
			return NotNeeded, nil
		}
	}
	if handler == nil {
		return NotNeeded, ErrNilHandler
	}

	c.mu.Lock()
	if c.refreshing {
		w, err := c.enqueueLocked(key)
		c.mu.Unlock()
		if err != nil {
			return NotNeeded, err
		}
		c.notifyEnqueued(key)
		if err := c.await(ctx, w); err != nil {
			return NotNeeded, err
		}
		return Waited, nil
	}
	c.refreshing = true
	c.owner = key
	c.mu.Unlock()

	return Refreshed, c.own(ctx, key, handler)
}

// Wait suspends the caller while a refresh is outstanding and returns
// immediately when the coordinator is idle. The boolean reports whether the
// caller actually waited.
func (c *Coordinator) Wait(ctx context.Context, key any) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if !c.refreshing {
		c.mu.Unlock()
		return false, nil
	}
	w, err := c.enqueueLocked(key)
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	c.notifyEnqueued(key)
	if err := c.await(ctx, w); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Coordinator) enqueueLocked(key any) (*waiter, error) {
	if key == c.owner {
		return nil, ErrReentrant
	}
	if _, dup := c.queued[key]; dup {
		return nil, ErrDuplicateWaiter
	}
	w := &waiter{key: key, done: make(chan struct{})}
	w.elem = c.waiters.PushBack(w)
	c.queued[key] = w
	return w, nil
}

func (c *Coordinator) await(ctx context.Context, w *waiter) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
	}

	c.mu.Lock()
	if w.elem == nil {
		// Drained between ctx.Done and the lock; the slot is already gone.
		c.mu.Unlock()
		return ctx.Err()
	}
	c.waiters.Remove(w.elem)
	w.elem = nil
	delete(c.queued, w.key)
	observers := c.observers
	c.mu.Unlock()

	for _, o := range observers {
		o.Cancelled(w.key)
	}
	return ctx.Err()
}

func (c *Coordinator) own(ctx context.Context, key any, handler func(context.Context) error) (err error) {
	observers := c.observersSnapshot()
	for _, o := range observers {
		o.RefreshStarted(key)
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
		released := c.drain()
		elapsed := time.Since(start)
		for _, o := range observers {
			o.RefreshFinished(key, elapsed, err)
			for _, k := range released {
				o.Released(k)
			}
		}
	}()

	// The refresh serves every queued caller, so the owner's cancellation does
	// not abort it; the timeout is the only bound.
	hctx := context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(hctx, c.timeout)
		defer cancel()
	}
	return handler(hctx)
}

// drain releases every waiter in FIFO order and returns to idle in one
// critical section.
func (c *Coordinator) drain() []any {
	c.mu.Lock()
	defer c.mu.Unlock()

	released := make([]any, 0, c.waiters.Len())
	for e := c.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter)
		w.elem = nil
		close(w.done)
		released = append(released, w.key)
	}
	c.waiters.Init()
	clear(c.queued)
	c.refreshing = false
	c.owner = nil
	return released
}

func (c *Coordinator) notifyEnqueued(key any) {
	for _, o := range c.observersSnapshot() {
		o.Enqueued(key)
	}
}
