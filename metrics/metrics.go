// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to various parts of the pipeline.
//
// When defining new operations or metrics, these are helpful values to track:
//   - things coming into or go out of the system: flows, files, dumps.
//   - the success or error status of any of the above.
//   - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FlowCount counts flow records read from input files.
	FlowCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowreport_flow_total",
			Help: "Number of flow records read.",
		},
	)

	// IgnoredFlowCount counts flows that contributed to totals but not
	// to rate aggregates (zero duration or zero packets).
	IgnoredFlowCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowreport_ignored_flow_total",
			Help: "Number of flows excluded from rate accounting.",
		},
	)

	// ErrorCount measures the number of errors.
	// Example usage:
	//   metrics.ErrorCount.With(prometheus.Labels{"type": "accum"}).Inc()
	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowreport_error_total",
			Help: "The total number of errors encountered.",
		}, []string{"type"})

	// IntervalCount counts time-series interval roll-overs, per
	// definition.
	IntervalCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowreport_interval_total",
			Help: "Number of time-series interval resets.",
		}, []string{"definition"})

	// SinkFileCount counts report sink files opened.
	SinkFileCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowreport_sink_file_total",
			Help: "Number of sink files or pipelines opened.",
		},
	)

	// DumpTimeHistogram tracks how long one report dump takes.
	DumpTimeHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "flowreport_dump_time_histogram",
			Help: "report dump latency distribution (seconds)",
			Buckets: []float64{
				0.001, 0.0025, 0.0063, 0.016, 0.04, 0.1,
				0.25, 0.63, 1.6, 4, 10, 25, 63,
			},
		},
	)

	// EntryCountHistogram tracks the number of aggregate buckets a
	// report held at dump time.
	EntryCountHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "flowreport_entry_count_histogram",
			Help: "report entry count histogram",
			Buckets: []float64{
				1, 3, 10, 32, 100, 316,
				1000, 3160, 10000, 31600, 100000, 316000, 1000000,
			},
		},
	)
)

// init() prints a log message to let the user know that the package has been
// loaded and the metrics registered. The metrics are auto-registered, which
// means they are registered as soon as this package is loaded, and the exact
// time this occurs (and whether this occurs at all in a given context) can be
// opaque.
func init() {
	log.Println("Prometheus metrics in flow-report.metrics are registered.")
}
