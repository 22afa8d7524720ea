package evicter

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

func bagAttr(b bag) attribute.KeyValue {
	names := map[bag]string{
		bagNotYetLoaded:        "not_yet_loaded",
		bagEvictableUnbacked:   "evictable_unbacked",
		bagUnevictable:         "unevictable",
		bagFailed:              "failed",
		bagEvictableDiskBacked: "evictable_disk_backed",
	}
	name, ok := names[b]
	if !ok {
		name = "unknown"
	}
	return attribute.String("bag", name)
}

// Metrics holds the gauges LRUEvicter reports bag occupancy and
// resident-byte totals through.
type Metrics struct {
	bagSize       metric.Int64Gauge
	residentBytes metric.Int64Gauge
}

// NewMetrics registers the evicter's instruments against meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	bagSize, err := meter.Int64Gauge(
		"pagecache.evicter.bag_size",
		metric.WithDescription("Number of pages currently in each eviction bag."),
	)
	if err != nil {
		return nil, err
	}
	residentBytes, err := meter.Int64Gauge(
		"pagecache.evicter.resident_bytes",
		metric.WithDescription("Total bytes made resident by completed loads; evictions and page removals are not subtracted."),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}
	return &Metrics{bagSize: bagSize, residentBytes: residentBytes}, nil
}

// NewNoopMetrics returns a Metrics backed by the no-op meter provider.
func NewNoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("pagecache.evicter"))
	return m
}

func (m *Metrics) setBagSize(b bag, n int) {
	if m == nil {
		return
	}
	m.bagSize.Record(context.Background(), int64(n), metric.WithAttributes(bagAttr(b)))
}

func (m *Metrics) setResidentBytes(n int64) {
	if m == nil {
		return
	}
	m.residentBytes.Record(context.Background(), n)
}
