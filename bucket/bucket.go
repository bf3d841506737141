// Package bucket implements the dense accumulator used by report
// kinds whose key is a small integer (ports, protocols, interfaces).
// Counters live in parallel arrays indexed by the key; sorted output
// is an index permutation, the arrays never move.
package bucket

import (
	"sort"

	"github.com/m-lab/flow-report/rate"
)

// Array is a fixed-index accumulator over the key domain [0, n).
type Array struct {
	Flows    []uint64
	Octets   []uint64
	Packets  []uint64
	Duration []uint64
	Recs     []uint64

	// Rates is nil unless the report kind carries rate columns.
	Rates []rate.Stats

	index  []int
	sorted bool
}

// New creates an array over keys [0, n).
func New(n int, withRates bool) *Array {
	a := &Array{
		Flows:    make([]uint64, n),
		Octets:   make([]uint64, n),
		Packets:  make([]uint64, n),
		Duration: make([]uint64, n),
		Recs:     make([]uint64, n),
	}
	if withRates {
		a.Rates = make([]rate.Stats, n)
	}
	return a
}

// Len returns the key domain size.
func (a *Array) Len() int {
	return len(a.Flows)
}

// Add folds one flow's counters into bucket i.
func (a *Array) Add(i int, flows, octets, packets, duration uint64) {
	a.Flows[i] += flows
	a.Octets[i] += octets
	a.Packets[i] += packets
	a.Duration[i] += duration
	a.sorted = false
}

// AddRate folds one flow's rates into bucket i and counts it as a
// rate-contributing record.
func (a *Array) AddRate(i int, pps, bps float64) {
	a.Recs[i]++
	if a.Rates != nil {
		a.Rates[i].Add(pps, bps)
	}
}

// Finalize converts rate sums to averages.
func (a *Array) Finalize() {
	if a.Rates == nil {
		return
	}
	for i := range a.Rates {
		a.Rates[i].Finalize(a.Recs[i])
	}
}

// Sort builds the output permutation ordered by less over bucket
// indices. Only non-empty buckets are permuted into the output.
func (a *Array) Sort(less func(i, j int) bool) {
	a.buildIndex()
	sort.Slice(a.index, func(x, y int) bool {
		return less(a.index[x], a.index[y])
	})
	a.sorted = true
}

func (a *Array) buildIndex() {
	a.index = a.index[:0]
	for i := range a.Flows {
		if a.Flows[i] != 0 || a.Octets[i] != 0 || a.Packets[i] != 0 {
			a.index = append(a.index, i)
		}
	}
}

// Do calls fn for every non-empty bucket, in sorted order when Sort
// has run, else in key order. fn returning false stops early.
func (a *Array) Do(fn func(i int) bool) {
	if !a.sorted {
		a.buildIndex()
	}
	for _, i := range a.index {
		if !fn(i) {
			return
		}
	}
}
