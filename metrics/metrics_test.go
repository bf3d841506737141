package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/m-lab/flow-report/metrics"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(metrics.FlowCount)
	metrics.FlowCount.Inc()
	if testutil.ToFloat64(metrics.FlowCount) != before+1 {
		t.Error("FlowCount did not increment")
	}

	before = testutil.ToFloat64(metrics.IgnoredFlowCount)
	metrics.IgnoredFlowCount.Inc()
	if testutil.ToFloat64(metrics.IgnoredFlowCount) != before+1 {
		t.Error("IgnoredFlowCount did not increment")
	}

	metrics.SinkFileCount.Inc()
	if testutil.ToFloat64(metrics.SinkFileCount) < 1 {
		t.Error("SinkFileCount did not increment")
	}
}

func TestLabeledCounters(t *testing.T) {
	c := metrics.ErrorCount.With(prometheus.Labels{"type": "test"})
	before := testutil.ToFloat64(c)
	c.Inc()
	if testutil.ToFloat64(c) != before+1 {
		t.Error("ErrorCount did not increment")
	}

	i := metrics.IntervalCount.WithLabelValues("test-definition")
	i.Inc()
	i.Inc()
	if testutil.ToFloat64(i) != 2 {
		t.Error("IntervalCount", testutil.ToFloat64(i))
	}
	// Another definition's counter is independent.
	if testutil.ToFloat64(metrics.IntervalCount.WithLabelValues("other")) != 0 {
		t.Error("IntervalCount labels should be independent")
	}
}

func TestHistogramsCollect(t *testing.T) {
	metrics.DumpTimeHistogram.Observe(0.01)
	if testutil.CollectAndCount(metrics.DumpTimeHistogram) != 1 {
		t.Error("DumpTimeHistogram did not collect")
	}
	metrics.EntryCountHistogram.Observe(42)
	if testutil.CollectAndCount(metrics.EntryCountHistogram) != 1 {
		t.Error("EntryCountHistogram did not collect")
	}
}
