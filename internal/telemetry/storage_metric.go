package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// BufferPoolMetrics holds the metric instruments reported by the buffer pool manager.
type BufferPoolMetrics struct {
	HitsCounter          metric.Int64Counter
	MissesCounter        metric.Int64Counter
	EvictionsCounter     metric.Int64Counter
	FlushesCounter       metric.Int64Counter
	PinnedFramesUpDown   metric.Int64UpDownCounter
	FullPoolErrorCounter metric.Int64Counter
}

// NewBufferPoolMetrics creates and registers all the metrics for the buffer pool.
func NewBufferPoolMetrics(meter metric.Meter) (*BufferPoolMetrics, error) {
	hits, err := meter.Int64Counter(
		"minisql.bufferpool.hits_total",
		metric.WithDescription("Page fetches served from a resident frame."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	misses, err := meter.Int64Counter(
		"minisql.bufferpool.misses_total",
		metric.WithDescription("Page fetches that had to read from disk."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter(
		"minisql.bufferpool.evictions_total",
		metric.WithDescription("Frames reclaimed from the replacer."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	flushes, err := meter.Int64Counter(
		"minisql.bufferpool.flushes_total",
		metric.WithDescription("Pages written back to disk."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pinned, err := meter.Int64UpDownCounter(
		"minisql.bufferpool.pinned_frames",
		metric.WithDescription("Frames with a non-zero pin count."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	full, err := meter.Int64Counter(
		"minisql.bufferpool.full_total",
		metric.WithDescription("Requests refused because every frame was pinned."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &BufferPoolMetrics{
		HitsCounter:          hits,
		MissesCounter:        misses,
		EvictionsCounter:     evictions,
		FlushesCounter:       flushes,
		PinnedFramesUpDown:   pinned,
		FullPoolErrorCounter: full,
	}, nil
}

// IndexMetrics holds the metric instruments reported by index operations.
type IndexMetrics struct {
	OperationsCounter      metric.Int64Counter
	LatencyHistogram       metric.Int64Histogram
	ActiveOperationsUpDown metric.Int64UpDownCounter
}

// NewIndexMetrics creates and registers all the metrics for indexes.
func NewIndexMetrics(meter metric.Meter) (*IndexMetrics, error) {
	ops, err := meter.Int64Counter(
		"minisql.index.operations_total",
		metric.WithDescription("Total number of index operations."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Int64Histogram(
		"minisql.index.duration",
		metric.WithDescription("The latency of index operations."),
		metric.WithUnit("us"),
	)
	if err != nil {
		return nil, err
	}

	active, err := meter.Int64UpDownCounter(
		"minisql.index.active_operations",
		metric.WithDescription("Index operations currently in flight."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &IndexMetrics{
		OperationsCounter:      ops,
		LatencyHistogram:       latency,
		ActiveOperationsUpDown: active,
	}, nil
}
