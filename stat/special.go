package stat

import (
	"strconv"

	"github.com/m-lab/flow-report/chash"
	"github.com/m-lab/flow-report/flow"
)

// distinctAgg implements the two-level "distinct X per Y" kinds: an
// outer hash keyed by one endpoint and, per outer entry, an inner
// hash of the distinct opposite endpoints.
type distinctAgg struct {
	tbl *chash.Table[Key, *distinctVal]
	// bySource selects srcaddr as the outer key.
	bySource bool
}

type distinctVal struct {
	Entry
	inner *chash.Table[uint32, struct{}]
	count uint64
}

func newDistinctAgg(bySource bool) *distinctAgg {
	return &distinctAgg{
		tbl:      chash.New[Key, *distinctVal](65536, 4096),
		bySource: bySource,
	}
}

func (a *distinctAgg) accum(r *flow.Record, rpt *Report, fx *flowCtx) {
	outer, other := r.SrcAddr, r.DstAddr
	if !a.bySource {
		outer, other = r.DstAddr, r.SrcAddr
	}
	key := Key{A: [6]uint32{outer}}
	rec := a.tbl.Update(key, key.hash())
	if rec.Val == nil {
		rec.Val = &distinctVal{inner: chash.New[uint32, struct{}](256, 256)}
	}
	rec.Val.add(fx.flows, fx.octets, fx.packets, fx.durMS, fx.firstSec, fx.lastSec)
	if fx.hasRate {
		rec.Val.Recs++
		rec.Val.Rate.Add(fx.pps, fx.bps)
	}

	// The inner table collapses its hash into an 8-bit domain.
	h := mix32(other)
	h = (h >> 8) ^ (h & 0xff)
	before := rec.Val.inner.Entries()
	rec.Val.inner.Update(other, h)
	if rec.Val.inner.Entries() > before {
		rec.Val.count++
		rpt.Totals.Count++
	}
	rpt.addTotals(fx)
}

func (a *distinctAgg) calc(rpt *Report) {
	a.tbl.Do(func(rec *chash.Rec[Key, *distinctVal]) bool {
		rec.Val.Rate.Finalize(rec.Val.Recs)
		return true
	})
}

func (a *distinctAgg) entries() int {
	return a.tbl.Entries()
}

func (a *distinctAgg) sortFor(rpt *Report, snk *Sink) error {
	cmp, err := a.compare(snk.SortKey)
	if err != nil {
		return err
	}
	if snk.SortAsc {
		a.tbl.Sort(func(x, y *chash.Rec[Key, *distinctVal]) bool { return cmp(x, y) < 0 })
	} else {
		a.tbl.Sort(func(x, y *chash.Rec[Key, *distinctVal]) bool { return cmp(x, y) > 0 })
	}
	return nil
}

func (a *distinctAgg) compare(field string) (func(x, y *chash.Rec[Key, *distinctVal]) int, error) {
	switch field {
	case "key", "key1":
		return func(x, y *chash.Rec[Key, *distinctVal]) int {
			return cmpU64(uint64(x.Key.A[0]), uint64(y.Key.A[0]))
		}, nil
	case "flows":
		return func(x, y *chash.Rec[Key, *distinctVal]) int { return cmpU64(x.Val.Flows, y.Val.Flows) }, nil
	case "octets":
		return func(x, y *chash.Rec[Key, *distinctVal]) int { return cmpU64(x.Val.Octets, y.Val.Octets) }, nil
	case "packets":
		return func(x, y *chash.Rec[Key, *distinctVal]) int { return cmpU64(x.Val.Packets, y.Val.Packets) }, nil
	case "count":
		return func(x, y *chash.Rec[Key, *distinctVal]) int { return cmpU64(x.Val.count, y.Val.count) }, nil
	}
	return nil, errBadSortField
}

func (a *distinctAgg) emit(em *emitter, rpt *Report, snk *Sink) error {
	var err error
	a.tbl.Do(func(rec *chash.Rec[Key, *distinctVal]) bool {
		keys := []string{ipString(rec.Key.A[0])}
		err = em.entryRow(keys, &rec.Val.Entry, rec.Val.count)
		return err == nil && !em.stopped
	})
	return err
}

// linEntry is one per-second slice of the linear interpolation kind.
// Counters are fractional because a flow spreads evenly across its
// lifetime.
type linEntry struct {
	Flows   float64
	Octets  float64
	Packets float64
}

// linearAgg splits each flow into one-second increments between its
// first and last wallclock seconds.
type linearAgg struct {
	tbl *chash.Table[uint32, linEntry]
}

func newLinearAgg() *linearAgg {
	return &linearAgg{tbl: chash.New[uint32, linEntry](65536, 4096)}
}

func (a *linearAgg) accum(r *flow.Record, rpt *Report, fx *flowCtx) {
	first, last := fx.firstSec, fx.lastSec
	if last < first {
		last = first
	}
	n := float64(last-first) + 1
	for sec := first; ; sec++ {
		rec := a.tbl.Update(sec, mix32(sec))
		rec.Val.Flows += float64(fx.flows) / n
		rec.Val.Octets += float64(fx.octets) / n
		rec.Val.Packets += float64(fx.packets) / n
		if sec == last {
			break
		}
	}
	rpt.addTotals(fx)
}

func (a *linearAgg) calc(rpt *Report) {}

func (a *linearAgg) entries() int {
	return a.tbl.Entries()
}

func (a *linearAgg) sortFor(rpt *Report, snk *Sink) error {
	cmp, err := a.compare(snk.SortKey)
	if err != nil {
		return err
	}
	if snk.SortAsc {
		a.tbl.Sort(func(x, y *chash.Rec[uint32, linEntry]) bool { return cmp(x, y) < 0 })
	} else {
		a.tbl.Sort(func(x, y *chash.Rec[uint32, linEntry]) bool { return cmp(x, y) > 0 })
	}
	return nil
}

func (a *linearAgg) compare(field string) (func(x, y *chash.Rec[uint32, linEntry]) int, error) {
	switch field {
	case "key", "key1":
		return func(x, y *chash.Rec[uint32, linEntry]) int { return cmpU64(uint64(x.Key), uint64(y.Key)) }, nil
	case "flows":
		return func(x, y *chash.Rec[uint32, linEntry]) int { return cmpF64(x.Val.Flows, y.Val.Flows) }, nil
	case "octets":
		return func(x, y *chash.Rec[uint32, linEntry]) int { return cmpF64(x.Val.Octets, y.Val.Octets) }, nil
	case "packets":
		return func(x, y *chash.Rec[uint32, linEntry]) int { return cmpF64(x.Val.Packets, y.Val.Packets) }, nil
	}
	return nil, errBadSortField
}

func (a *linearAgg) emit(em *emitter, rpt *Report, snk *Sink) error {
	var err error
	a.tbl.Do(func(rec *chash.Rec[uint32, linEntry]) bool {
		cols := make([]string, 0, 4)
		sel := snk.Fields
		if sel&FIndex != 0 {
			cols = append(cols, strconv.FormatUint(em.rows, 10))
		}
		if sel&FKey != 0 {
			cols = append(cols, strconv.FormatUint(uint64(rec.Key), 10))
		}
		if sel&FFlows != 0 {
			cols = append(cols, em.percentOrFloat(rec.Val.Flows, float64(rpt.Totals.Flows)))
		}
		if sel&FOctets != 0 {
			cols = append(cols, em.percentOrFloat(rec.Val.Octets, float64(rpt.Totals.Octets)))
		}
		if sel&FPackets != 0 {
			cols = append(cols, em.percentOrFloat(rec.Val.Packets, float64(rpt.Totals.Packets)))
		}
		err = em.data(cols, rec.Val.Flows, rec.Val.Octets, rec.Val.Packets, 0)
		return err == nil && !em.stopped
	})
	return err
}

// histogram bin edges for the summary-detail size and duration
// distributions.
var (
	sizeBins = []uint64{64, 128, 256, 512, 1024, 1518, 4096, 9216}
	durBins  = []uint64{10, 50, 100, 500, 1000, 5000, 10000, 60000, 600000}
)

func binIndex(edges []uint64, v uint64) int {
	for i, e := range edges {
		if v <= e {
			return i
		}
	}
	return len(edges)
}

// summaryAgg backs summary-counters and, with detail set,
// summary-detail's size/duration distributions.
type summaryAgg struct {
	detail   bool
	sizeHist []uint64
	durHist  []uint64
}

func newSummaryAgg(detail bool) *summaryAgg {
	return &summaryAgg{
		detail:   detail,
		sizeHist: make([]uint64, len(sizeBins)+1),
		durHist:  make([]uint64, len(durBins)+1),
	}
}

func (a *summaryAgg) accum(r *flow.Record, rpt *Report, fx *flowCtx) {
	if a.detail && fx.packets > 0 {
		a.sizeHist[binIndex(sizeBins, fx.octets/fx.packets)] += fx.flows
		a.durHist[binIndex(durBins, uint64(fx.durMS))] += fx.flows
	}
	rpt.addTotals(fx)
}

func (a *summaryAgg) calc(rpt *Report) {}

func (a *summaryAgg) entries() int {
	return 1
}

func (a *summaryAgg) sortFor(rpt *Report, snk *Sink) error {
	// A single-row report has nothing to sort.
	return nil
}

func (a *summaryAgg) emit(em *emitter, rpt *Report, snk *Sink) error {
	if a.detail {
		if err := em.comment("packet size distribution (octets/packet, flows):"); err != nil {
			return err
		}
		if err := em.histogram(sizeBins, a.sizeHist); err != nil {
			return err
		}
		if err := em.comment("duration distribution (ms, flows):"); err != nil {
			return err
		}
		if err := em.histogram(durBins, a.durHist); err != nil {
			return err
		}
	}
	t := rpt.Totals
	e := Entry{
		Flows: t.Flows, Octets: t.Octets, Packets: t.Packets,
		Duration: t.Duration, Recs: t.Recs, Rate: t.Rate,
		FirstSeen: t.TimeStart, LastSeen: t.TimeEnd,
	}
	return em.entryRow(nil, &e, 0)
}
