package tokenflow

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/tokenflow/internal/events"
	"github.com/MrEthical07/tokenflow/refresh"
)

// Event is one lifecycle record. Events are additive to the error paths: a
// dropped or undelivered event never changes a request's outcome.
type Event = events.Event

// EventSink receives events from the asynchronous dispatcher.
type EventSink = events.Sink

type NoOpSink = events.NoOpSink

type ChannelSink = events.ChannelSink

type JSONWriterSink = events.JSONWriterSink

func NewChannelSink(buffer int) *ChannelSink { return events.NewChannelSink(buffer) }

func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return events.NewJSONWriterSink(w) }

const (
	EventRefreshStarted   = events.TypeRefreshStarted
	EventRefreshSucceeded = events.TypeRefreshSucceeded
	EventRefreshFailed    = events.TypeRefreshFailed
	EventWaiterEnqueued   = events.TypeWaiterEnqueued
	EventWaiterReleased   = events.TypeWaiterReleased
	EventWaiterCancelled  = events.TypeWaiterCancelled
	EventReplay           = events.TypeReplay
	EventReplayExhausted  = events.TypeReplayExhausted
	EventLoginObserved    = events.TypeLoginObserved
	EventLogoutObserved   = events.TypeLogoutObserved
	EventAssignFailed     = events.TypeAssignFailed
)

// EventErrorCode is the stable error classification carried in Event.Error.
type EventErrorCode string

const (
	eventErrRefreshFailed EventErrorCode = "refresh_failed"
	eventErrHandlerPanic  EventErrorCode = "handler_panic"
	eventErrUnavailable   EventErrorCode = "authentication_unavailable"
	eventErrAssignToken   EventErrorCode = "assign_token"
	eventErrCanceled      EventErrorCode = "canceled"
	eventErrTimeout       EventErrorCode = "timeout"
	eventErrStatus        EventErrorCode = "status"
	eventErrInternal      EventErrorCode = "internal_error"
)

func eventErrorCode(err error) EventErrorCode {
	if err == nil {
		return ""
	}

	var statusErr *StatusError
	switch {
	case errors.Is(err, refresh.ErrHandlerPanic):
		return eventErrHandlerPanic
	case errors.Is(err, ErrAuthenticationUnavailable):
		return eventErrUnavailable
	case errors.Is(err, ErrAssignToken):
		return eventErrAssignToken
	case errors.Is(err, context.Canceled):
		return eventErrCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return eventErrTimeout
	case errors.Is(err, ErrRefreshFailed):
		return eventErrRefreshFailed
	case errors.As(err, &statusErr):
		return eventErrStatus
	default:
		return eventErrInternal
	}
}

func (a *Authenticator) emit(
	ctx context.Context,
	eventType string,
	m *Method,
	role Role,
	outcome string,
	d time.Duration,
	err error,
) {
	if a == nil || a.events == nil {
		return
	}

	event := Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Outcome:   outcome,
		Duration:  d,
		Error:     string(eventErrorCode(err)),
	}
	if scope, ok := scopeFromContextExplicit(ctx); ok {
		event.Metadata = map[string]string{"scope": scope}
	}
	if m != nil {
		event.MethodID = m.ID()
		event.Role = role.String()
	}

	a.events.Emit(ctx, event)
}
