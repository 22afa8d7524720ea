package pagecache

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the instruments this package reports against, created
// from a pkg/telemetry.Telemetry's Meter. Registering them here (rather
// than in pkg/telemetry) keeps the instrument names and units coupled to
// what the page layer actually does.
type Metrics struct {
	loadedBytes metric.Int64Counter
	loadedPages metric.Int64Counter
}

// NewMetrics registers the page-cache instruments against meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	loadedBytes, err := meter.Int64Counter(
		"pagecache.load.bytes",
		metric.WithDescription("Bytes committed to pages by completed loads."),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}
	loadedPages, err := meter.Int64Counter(
		"pagecache.load.count",
		metric.WithDescription("Number of loads that committed bytes to a page."),
	)
	if err != nil {
		return nil, err
	}
	return &Metrics{loadedBytes: loadedBytes, loadedPages: loadedPages}, nil
}

// NewNoopMetrics returns a Metrics backed by the no-op meter provider,
// for callers that don't want telemetry wired up (e.g. most tests).
func NewNoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("pagecache"))
	return m
}

func (m *Metrics) recordLoad(size uint32) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.loadedBytes.Add(ctx, int64(size))
	m.loadedPages.Add(ctx, 1)
}
