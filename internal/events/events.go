package events

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the flows.
const (
	TypeRefreshStarted   = "refresh_started"
	TypeRefreshSucceeded = "refresh_succeeded"
	TypeRefreshFailed    = "refresh_failed"
	TypeWaiterEnqueued   = "waiter_enqueued"
	TypeWaiterReleased   = "waiter_released"
	TypeWaiterCancelled  = "waiter_cancelled"
	TypeReplay           = "replay"
	TypeReplayExhausted  = "replay_exhausted"
	TypeLoginObserved    = "login_observed"
	TypeLogoutObserved   = "logout_observed"
	TypeAssignFailed     = "assign_token_failed"
)

// Event is the lifecycle record delivered to sinks.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	MethodID  string            `json:"method_id,omitempty"`
	Role      string            `json:"role,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(append(data, '\n'))
}
