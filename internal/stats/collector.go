// Package stats provides a unified interface for collecting metrics.
package stats

// Metric names used throughout the library.
const (
	// Stream metrics.
	MetricRecordsRead    = "flowfile_records_read_total"
	MetricRecordsWritten = "flowfile_records_written_total"
	MetricRecordsDropped = "flowfile_records_dropped_total"
	MetricBytesRead      = "flowfile_bytes_read_total"
	MetricBytesWritten   = "flowfile_bytes_written_total"
	MetricOpenStreams    = "flowfile_open_streams"

	// Transport metrics.
	MetricBlocksFlushed    = "flowfile_blocks_flushed_total"
	MetricCompressionRatio = "flowfile_block_compression_ratio"
)

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncCounter increments a counter metric by delta.
	IncCounter(name string, delta int64)

	// SetGauge sets a gauge metric to value.
	SetGauge(name string, value int64)

	// ObserveHistogram records a value in a histogram metric.
	ObserveHistogram(name string, value float64)
}
