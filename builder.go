package tokenflow

import (
	"log/slog"

	"github.com/MrEthical07/tokenflow/internal/events"
	"github.com/MrEthical07/tokenflow/refresh"
)

// Builder assembles an [Authenticator]. It is single use: configure during
// initialization, then call BuildClient or BuildServer once.
type Builder struct {
	config      Config
	coordinator *refresh.Coordinator
	logger      *slog.Logger
	eventSink   EventSink

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Start from DefaultConfig to
// keep the operational defaults.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCoordinator shares c between several Authenticators so they serialize
// refreshes for one authentication scope. Refresh.Timeout is ignored for a
// shared coordinator; it keeps the timeout it was created with.
func (b *Builder) WithCoordinator(c *refresh.Coordinator) *Builder {
	b.coordinator = c
	return b
}

// WithLogger sets the debug logger. The default discards everything.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithEventSink enables asynchronous lifecycle events delivered to sink.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	b.config.Events.Enabled = sink != nil
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// BuildClient returns the eager variant: protected methods refresh before
// they are sent.
func (b *Builder) BuildClient() (*Authenticator, error) {
	return b.build(variantClient)
}

// BuildServer returns the reactive variant: protected methods refresh after a
// response or error signals expiry and are then replayed.
func (b *Builder) BuildServer() (*Authenticator, error) {
	return b.build(variantServer)
}

func (b *Builder) build(v variant) (*Authenticator, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch v {
	case variantClient:
		if err := cfg.validateClient(); err != nil {
			return nil, err
		}
	case variantServer:
		if err := cfg.validateServer(); err != nil {
			return nil, err
		}
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	coordinator := b.coordinator
	if coordinator == nil {
		coordinator = refresh.New(refresh.WithTimeout(cfg.Refresh.Timeout))
	}

	a := &Authenticator{
		cfg:         cfg,
		variant:     v,
		patterns:    patternsFor(cfg),
		coordinator: coordinator,
		logger:      logger.With("component", "tokenflow", "variant", v.String()),
		metrics:     NewMetrics(cfg.Metrics),
		events: events.NewDispatcher(events.Config{
			Enabled:    cfg.Events.Enabled,
			BufferSize: cfg.Events.BufferSize,
			DropIfFull: cfg.Events.DropIfFull,
		}, b.eventSink),
	}
	coordinator.AddObserver(coordinatorObserver{a: a})

	b.built = true
	return a, nil
}
