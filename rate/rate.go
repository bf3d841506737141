// Package rate accumulates per-flow packet and bit rates into
// min/avg/max aggregates. A flow only contributes when its duration
// is strictly positive; zero is the uninitialized sentinel for the
// minimum fields.
package rate

// PPSBPS returns the packets-per-second and bits-per-second of one
// flow. durationMS must be > 0.
func PPSBPS(packets, octets uint64, durationMS uint32) (pps, bps float64) {
	secs := float64(durationMS) / 1000.0
	return float64(packets) / secs, float64(octets) * 8 / secs
}

// Stats holds one bucket's rate aggregates. AvgPPS and AvgBPS hold
// running sums until Finalize divides by the contributing record
// count.
type Stats struct {
	AvgPPS float64
	MinPPS float64
	MaxPPS float64
	AvgBPS float64
	MinBPS float64
	MaxBPS float64
}

// Add folds one flow's rates into s.
func (s *Stats) Add(pps, bps float64) {
	if pps > s.MaxPPS {
		s.MaxPPS = pps
	}
	if s.MinPPS == 0 || pps < s.MinPPS {
		s.MinPPS = pps
	}
	s.AvgPPS += pps

	if bps > s.MaxBPS {
		s.MaxBPS = bps
	}
	if s.MinBPS == 0 || bps < s.MinBPS {
		s.MinBPS = bps
	}
	s.AvgBPS += bps
}

// Finalize converts the running sums into averages over recs flows.
func (s *Stats) Finalize(recs uint64) {
	if recs == 0 {
		return
	}
	s.AvgPPS /= float64(recs)
	s.AvgBPS /= float64(recs)
}
