package rate_test

import (
	"testing"

	"github.com/m-lab/flow-report/rate"
)

func TestPPSBPS(t *testing.T) {
	pps, bps := rate.PPSBPS(4, 400, 2000)
	if pps != 2 {
		t.Error("pps", pps)
	}
	if bps != 1600 {
		t.Error("bps", bps)
	}
}

func TestMinSentinel(t *testing.T) {
	var s rate.Stats
	s.Add(10, 100)
	if s.MinPPS != 10 || s.MinBPS != 100 {
		t.Error("first sample should set min", s)
	}
	s.Add(5, 200)
	if s.MinPPS != 5 {
		t.Error("min pps should drop to 5", s.MinPPS)
	}
	if s.MinBPS != 100 {
		t.Error("min bps should stay 100", s.MinBPS)
	}
	if s.MaxPPS != 10 || s.MaxBPS != 200 {
		t.Error("max tracking", s)
	}
}

func TestFinalize(t *testing.T) {
	var s rate.Stats
	s.Add(10, 100)
	s.Add(20, 300)
	s.Finalize(2)
	if s.AvgPPS != 15 || s.AvgBPS != 200 {
		t.Error("averages", s)
	}

	var zero rate.Stats
	zero.Finalize(0)
	if zero.AvgPPS != 0 {
		t.Error("finalize with no recs should be a no-op")
	}
}
