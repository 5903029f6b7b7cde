package tokenflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/tokenflow/internal/events"
	"github.com/MrEthical07/tokenflow/internal/match"
	"github.com/MrEthical07/tokenflow/refresh"
)

type variant uint8

const (
	variantClient variant = iota
	variantServer
)

func (v variant) String() string {
	if v == variantServer {
		return "server"
	}
	return "client"
}

// Authenticator produces the hooks that wrap a [Client]. It is safe for
// concurrent use once built.
type Authenticator struct {
	cfg         Config
	variant     variant
	patterns    match.Patterns
	coordinator *refresh.Coordinator
	logger      *slog.Logger
	metrics     *Metrics
	events      *events.Dispatcher
}

// waitKey scopes coordinator keys to one Authenticator so a shared
// coordinator can tell its observers apart.
type waitKey struct {
	auth *Authenticator
	m    *Method
}

func (a *Authenticator) key(m *Method) waitKey {
	return waitKey{auth: a, m: m}
}

// Role classifies m. Precedence is visitor, login, logout, refresh-self, then
// protected.
func (a *Authenticator) Role(m *Method) Role {
	if m == nil {
		return RoleProtected
	}
	return match.Classify(m.meta, a.patterns)
}

// WaitingList returns the methods of this Authenticator currently suspended
// behind an in-flight refresh, in arrival order.
func (a *Authenticator) WaitingList() []*Method {
	keys := a.coordinator.Waiting()
	out := make([]*Method, 0, len(keys))
	for _, k := range keys {
		if wk, ok := k.(waitKey); ok && wk.auth == a {
			out = append(out, wk.m)
		}
	}
	return out
}

// WaitingCount returns len(WaitingList()) without building the slice.
func (a *Authenticator) WaitingCount() int {
	n := 0
	for _, k := range a.coordinator.Waiting() {
		if wk, ok := k.(waitKey); ok && wk.auth == a {
			n++
		}
	}
	return n
}

// Refreshing reports whether the coordinator has a refresh in flight.
func (a *Authenticator) Refreshing() bool {
	return a.coordinator.Refreshing()
}

// Coordinator returns the coordinator this Authenticator refreshes through.
func (a *Authenticator) Coordinator() *refresh.Coordinator {
	return a.coordinator
}

// Attach returns cfg with its hooks wrapped by a.
func (a *Authenticator) Attach(cfg ClientConfig) ClientConfig {
	cfg.BeforeRequest = a.OnAuthRequired(cfg.BeforeRequest)
	cfg.Responded = a.OnResponseRefreshToken(cfg.Responded)
	return cfg
}

func (a *Authenticator) MetricsSnapshot() MetricsSnapshot {
	return a.metrics.Snapshot()
}

// EventsDropped returns how many events the dispatcher dropped on a full buffer.
func (a *Authenticator) EventsDropped() uint64 {
	return a.events.Dropped()
}

// Close flushes pending events. Hooks keep working afterwards without events.
func (a *Authenticator) Close() {
	a.events.Close()
}

func patternsFor(cfg Config) match.Patterns {
	p := match.Patterns{
		Visitor: cfg.VisitorMeta,
	}
	if cfg.Login != nil {
		p.Login = orDefault(cfg.Login.MetaMatches, DefaultLoginMeta)
	}
	if cfg.Logout != nil {
		p.Logout = orDefault(cfg.Logout.MetaMatches, DefaultLogoutMeta)
	}
	if cfg.RefreshToken != nil {
		p.Refresh = append(p.Refresh, orDefault(cfg.RefreshToken.MetaMatches, DefaultRefreshMeta))
	}
	if cfg.RefreshTokenOnSuccess != nil {
		p.Refresh = append(p.Refresh, orDefault(cfg.RefreshTokenOnSuccess.MetaMatches, DefaultRefreshMeta))
	}
	if cfg.RefreshTokenOnError != nil {
		p.Refresh = append(p.Refresh, orDefault(cfg.RefreshTokenOnError.MetaMatches, DefaultRefreshMeta))
	}
	return p
}

func orDefault(m, def Meta) Meta {
	if len(m) == 0 {
		return def
	}
	return m
}

// coordinatorObserver feeds coordinator lifecycle callbacks for this
// Authenticator's methods into metrics, events and the debug log.
type coordinatorObserver struct {
	a *Authenticator
}

func (o coordinatorObserver) own(key any) (*Method, bool) {
	wk, ok := key.(waitKey)
	if !ok || wk.auth != o.a {
		return nil, false
	}
	return wk.m, true
}

func (o coordinatorObserver) RefreshStarted(key any) {
	m, ok := o.own(key)
	if !ok {
		return
	}
	o.a.logger.Debug("refresh started", "method_id", m.ID())
	o.a.emit(context.Background(), EventRefreshStarted, m, o.a.Role(m), "", 0, nil)
}

func (o coordinatorObserver) RefreshFinished(key any, elapsed time.Duration, err error) {
	m, ok := o.own(key)
	if !ok {
		return
	}
	o.a.metrics.Observe(MetricRefreshLatency, elapsed)
	if err != nil {
		o.a.metrics.Inc(MetricRefreshFailure)
		o.a.logger.Debug("refresh failed", "method_id", m.ID(), "duration", elapsed, "error", err)
		o.a.emit(context.Background(), EventRefreshFailed, m, o.a.Role(m), refresh.Refreshed.String(), elapsed, err)
		return
	}
	o.a.metrics.Inc(MetricRefreshSuccess)
	o.a.logger.Debug("refresh finished", "method_id", m.ID(), "duration", elapsed)
	o.a.emit(context.Background(), EventRefreshSucceeded, m, o.a.Role(m), refresh.Refreshed.String(), elapsed, nil)
}

func (o coordinatorObserver) Enqueued(key any) {
	m, ok := o.own(key)
	if !ok {
		return
	}
	o.a.metrics.Inc(MetricWaiterEnqueued)
	o.a.logger.Debug("waiter enqueued", "method_id", m.ID())
	o.a.emit(context.Background(), EventWaiterEnqueued, m, o.a.Role(m), "", 0, nil)
}

func (o coordinatorObserver) Released(key any) {
	m, ok := o.own(key)
	if !ok {
		return
	}
	o.a.metrics.Inc(MetricWaiterReleased)
	o.a.logger.Debug("waiter released", "method_id", m.ID(), "outcome", refresh.Waited.String())
	o.a.emit(context.Background(), EventWaiterReleased, m, o.a.Role(m), refresh.Waited.String(), 0, nil)
}

func (o coordinatorObserver) Cancelled(key any) {
	m, ok := o.own(key)
	if !ok {
		return
	}
	o.a.metrics.Inc(MetricWaiterCancelled)
	o.a.logger.Debug("waiter cancelled", "method_id", m.ID())
	o.a.emit(context.Background(), EventWaiterCancelled, m, o.a.Role(m), "", 0, context.Canceled)
}
