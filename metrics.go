package ivfgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordInsert is called after each insert batch.
	// count is the number of records attempted, err is nil if successful.
	RecordInsert(count int, duration time.Duration, err error)

	// RecordFlush is called after each flush.
	// count is the number of records made visible.
	RecordFlush(count int, duration time.Duration)

	// RecordBuildIndex is called after each index build.
	// indexed is the number of rows covered, err is nil if successful.
	RecordBuildIndex(indexed int, duration time.Duration, err error)

	// RecordSearch is called after each search operation.
	// k is the number of results requested, duration is the time taken,
	// err is nil if successful.
	RecordSearch(k int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordFlush(int, time.Duration)             {}
func (NoopMetricsCollector) RecordBuildIndex(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InsertCount      atomic.Int64
	InsertRecords    atomic.Int64
	InsertErrors     atomic.Int64
	FlushCount       atomic.Int64
	FlushRecords     atomic.Int64
	BuildCount       atomic.Int64
	BuildErrors      atomic.Int64
	BuildTotalNanos  atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(count int, duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertRecords.Add(int64(count))
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(count int, duration time.Duration) {
	b.FlushCount.Add(1)
	b.FlushRecords.Add(int64(count))
}

// RecordBuildIndex implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuildIndex(indexed int, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}
