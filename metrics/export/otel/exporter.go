package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/tokenflow"
	"github.com/MrEthical07/tokenflow/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() tokenflow.MetricsSnapshot
	EventsDropped() uint64
}

// stateSource is optionally implemented by sources that report live
// coordinator state.
type stateSource interface {
	Refreshing() bool
	WaitingCount() int
}

type observedCounter struct {
	id         tokenflow.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      tokenflow.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	sum     metric.Float64ObservableCounter
}

// OTelExporter publishes tokenflow metrics as observable instruments read on
// each collection.
type OTelExporter struct {
	source        metricsSource
	state         stateSource
	registration  metric.Registration
	counters      []observedCounter
	histograms    []observedHistogram
	eventsDropped metric.Int64ObservableCounter
	inFlight      metric.Int64ObservableGauge
	waiters       metric.Int64ObservableGauge
}

func NewOTelExporter(meter metric.Meter, auth *tokenflow.Authenticator) (*OTelExporter, error) {
	if auth == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, auth)
}

// NewOTelExporterFromSource registers instruments for source. State gauges are
// registered only when source also reports coordinator state.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		source:     source,
		counters:   make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histograms: make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
	}
	exporter.state, _ = source.(stateSource)

	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*10+3)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h, ins, err := newObservedHistogram(meter, def)
		if err != nil {
			return nil, err
		}
		exporter.histograms = append(exporter.histograms, h)
		observables = append(observables, ins...)
	}

	eventsDropped, err := meter.Int64ObservableCounter(
		internaldefs.EventsDroppedName,
		metric.WithDescription(internaldefs.EventsDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create events dropped counter: %w", err)
	}
	exporter.eventsDropped = eventsDropped
	observables = append(observables, eventsDropped)

	if exporter.state != nil {
		if exporter.inFlight, err = meter.Int64ObservableGauge(
			internaldefs.RefreshInFlightName,
			metric.WithDescription(internaldefs.RefreshInFlightHelp),
		); err != nil {
			return nil, fmt.Errorf("create refresh in-flight gauge: %w", err)
		}
		if exporter.waiters, err = meter.Int64ObservableGauge(
			internaldefs.WaitersName,
			metric.WithDescription(internaldefs.WaitersHelp),
		); err != nil {
			return nil, fmt.Errorf("create waiters gauge: %w", err)
		}
		observables = append(observables, exporter.inFlight, exporter.waiters)
	}

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

func newObservedHistogram(meter metric.Meter, def internaldefs.HistogramDef) (observedHistogram, []metric.Observable, error) {
	h := observedHistogram{id: def.ID}
	observables := make([]metric.Observable, 0, len(h.buckets)+2)

	for i := 0; i < len(internaldefs.HistogramBoundSuffix); i++ {
		name := def.Name + "_bucket_le_" + internaldefs.HistogramBoundSuffix[i]
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
		if err != nil {
			return h, nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
		}
		h.buckets[i] = ins
		observables = append(observables, ins)
	}

	countName := def.Name + "_count"
	count, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
	if err != nil {
		return h, nil, fmt.Errorf("create histogram count gauge %s: %w", countName, err)
	}
	h.count = count

	sumName := def.Name + "_sum"
	sum, err := meter.Float64ObservableCounter(sumName, metric.WithDescription(def.Help), metric.WithUnit("s"))
	if err != nil {
		return h, nil, fmt.Errorf("create histogram sum counter %s: %w", sumName, err)
	}
	h.sum = sum

	return h, append(observables, count, sum), nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i := 0; i < len(cumulative); i++ {
			observer.ObserveInt64(h.buckets[i], int64(cumulative[i]))
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
		observer.ObserveFloat64(h.sum, snapshot.HistogramSums[h.id].Seconds())
	}
	observer.ObserveInt64(e.eventsDropped, int64(e.source.EventsDropped()))

	if e.state != nil {
		var inFlight int64
		if e.state.Refreshing() {
			inFlight = 1
		}
		observer.ObserveInt64(e.inFlight, inFlight)
		observer.ObserveInt64(e.waiters, int64(e.state.WaitingCount()))
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
