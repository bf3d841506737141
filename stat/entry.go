package stat

import (
	"github.com/m-lab/flow-report/rate"
)

// Key is the fixed-width key extracted from a flow: up to six numeric
// parts plus the in-key mask lengths used by prefix-mask display
// mode. Extractors leave M zero in the other display modes so mask
// differences do not split buckets.
type Key struct {
	A [6]uint32
	M [2]uint8
}

func (k *Key) hash() uint32 {
	h := k.A[0] ^ k.A[1] ^ k.A[2] ^ k.A[3] ^ k.A[4] ^ k.A[5]
	h ^= uint32(k.M[0])<<8 | uint32(k.M[1])
	h ^= h >> 16
	return h
}

// Entry is one aggregate bucket of a hash-backed report.
type Entry struct {
	Flows    uint64
	Octets   uint64
	Packets  uint64
	Duration uint64

	// Recs counts flows with positive duration; the rate averages
	// divide by it.
	Recs uint64
	Rate rate.Stats

	// FirstSeen/LastSeen are the earliest and latest wallclock
	// seconds of contributing flows.
	FirstSeen uint32
	LastSeen  uint32

	// Masks holds the displayed prefix lengths for up to two address
	// key parts.
	Masks [2]uint8
}

// add folds one flow's scaled counters into the entry.
func (e *Entry) add(flows, octets, packets uint64, durationMS uint32, first, last uint32) {
	e.Flows += flows
	e.Octets += octets
	e.Packets += packets
	e.Duration += uint64(durationMS)
	if e.FirstSeen == 0 || first < e.FirstSeen {
		e.FirstSeen = first
	}
	if last > e.LastSeen {
		e.LastSeen = last
	}
}

// Totals are the report-wide accumulations used by percent output
// and the totals block.
type Totals struct {
	Flows    uint64
	Octets   uint64
	Packets  uint64
	Duration uint64

	// Recs counts rate-contributing flows, Ignores the rest.
	Recs    uint64
	Ignores uint64

	// Count is the distinct-count total for the two-level kinds.
	Count uint64

	Rate rate.Stats

	// TimeStart/TimeEnd span the wallclock seconds observed this
	// interval. TimeStart uses the all-ones sentinel before the
	// first flow.
	TimeStart uint32
	TimeEnd   uint32
}

const timeStartSentinel = ^uint32(0)

func newTotals() Totals {
	return Totals{TimeStart: timeStartSentinel}
}

// observe updates the interval time span and overall counters from
// one flow.
func (t *Totals) observe(flows, octets, packets uint64, durationMS uint32, first, last uint32) {
	t.Flows += flows
	t.Octets += octets
	t.Packets += packets
	t.Duration += uint64(durationMS)
	if first < t.TimeStart {
		t.TimeStart = first
	}
	if last > t.TimeEnd {
		t.TimeEnd = last
	}
}
