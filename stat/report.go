package stat

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/m-lab/flow-report/bucket"
	"github.com/m-lab/flow-report/chash"
	"github.com/m-lab/flow-report/flow"
	"github.com/m-lab/flow-report/metrics"
	"github.com/m-lab/flow-report/policy"
	"github.com/m-lab/flow-report/rate"
)

// AddrMode selects how address key parts are keyed and displayed.
type AddrMode int

// Address display modes.
const (
	AddrAddress AddrMode = iota
	AddrPrefixLen
	AddrPrefixMask
)

// ParseAddrMode resolves a config token.
func ParseAddrMode(s string) (AddrMode, error) {
	switch s {
	case "address":
		return AddrAddress, nil
	case "prefix-len":
		return AddrPrefixLen, nil
	case "prefix-mask":
		return AddrPrefixMask, nil
	}
	return 0, fmt.Errorf("unknown address format %q", s)
}

// SinkFormat selects ASCII CSV or TLV binary rows.
type SinkFormat int

// Sink formats.
const (
	FormatASCII SinkFormat = iota
	FormatBinary
)

// TimeAnchor selects the time seeding a sink's path expansion.
type TimeAnchor int

// Time anchors.
const (
	TimeNow TimeAnchor = iota
	TimeStart
	TimeEnd
	TimeMid
)

// Sink is one output destination of a report.
type Sink struct {
	Format  SinkFormat
	SortKey string // "" means unsorted: insertion order, or key order for bucket kinds
	SortAsc bool
	Fields  FieldSet
	Options OptionSet
	Records uint64
	Tally   uint64
	Path    string // "" stdout, "|cmd" pipeline, else strftime file path
	Time    TimeAnchor

	// Stdout substitutes the empty path; a test hook.
	Stdout io.Writer
}

// Report is one configured report: a kind, its aggregator state, and
// output sinks.
type Report struct {
	Name       string
	Kind       *Kind
	FilterName string
	Filter     policy.Filter
	Scale      uint64
	TagMask    bool
	TagMaskSrc uint32
	TagMaskDst uint32
	SrcFormat  AddrMode
	DstFormat  AddrMode
	Sinks      []*Sink

	// Syms are the symbol tables consumed by the names option.
	Syms *SymTables

	// XHeader prints the flow container header for the xheader
	// option; the driver wires it to the input reader.
	XHeader func(w io.Writer) error

	Totals   Totals
	agg      aggregator
	calcDone bool
	interval int
}

// Init allocates the aggregator for a fresh interval.
func (rpt *Report) Init() {
	rpt.agg = rpt.Kind.newAgg(rpt)
	rpt.Totals = newTotals()
	rpt.calcDone = false
}

// Reset discards the interval's state, keeping configuration, and
// advances the interval counter.
func (rpt *Report) Reset() {
	rpt.Init()
	rpt.interval++
}

// Interval returns the current time-series interval ordinal.
func (rpt *Report) Interval() int {
	return rpt.interval
}

// flowCtx carries one flow's derived values through an accumulate.
type flowCtx struct {
	flows, octets, packets uint64
	durMS                  uint32
	firstSec, lastSec      uint32
	pps, bps               float64
	hasRate                bool
}

// Accum folds one flow into the report.
func (rpt *Report) Accum(r *flow.Record) error {
	if rpt.agg == nil {
		rpt.Init()
	}
	fx := flowCtx{
		flows:   r.Flows,
		octets:  r.Octets,
		packets: r.Packets,
		durMS:   r.DurationMS(),
	}
	if rpt.Scale > 1 {
		fx.octets *= rpt.Scale
		fx.packets *= rpt.Scale
	}
	fx.firstSec = uint32(r.FirstTime().Unix())
	fx.lastSec = uint32(r.LastTime().Unix())
	if fx.durMS > 0 && fx.packets > 0 {
		fx.pps, fx.bps = rate.PPSBPS(fx.packets, fx.octets, fx.durMS)
		fx.hasRate = true
	}
	rpt.agg.accum(r, rpt, &fx)
	return nil
}

// addTotals accounts one inserted key's contribution to the report
// totals. Kinds that insert both endpoints call it once per key so
// the sum-of-entries invariant holds.
func (rpt *Report) addTotals(fx *flowCtx) {
	rpt.Totals.observe(fx.flows, fx.octets, fx.packets, fx.durMS, fx.firstSec, fx.lastSec)
	if fx.hasRate {
		rpt.Totals.Recs++
		rpt.Totals.Rate.Add(fx.pps, fx.bps)
	} else {
		rpt.Totals.Ignores++
		metrics.IgnoredFlowCount.Inc()
	}
}

// Calc computes derived metrics. Idempotent so multiple sinks can
// dump the same interval.
func (rpt *Report) Calc() {
	if rpt.calcDone || rpt.agg == nil {
		return
	}
	rpt.agg.calc(rpt)
	rpt.Totals.Rate.Finalize(rpt.Totals.Recs)
	rpt.calcDone = true
}

// Dump writes the report to every sink. A failing sink does not
// cancel the others; the first error is returned after all sinks ran.
func (rpt *Report) Dump() error {
	if rpt.agg == nil {
		rpt.Init()
	}
	rpt.Calc()
	start := time.Now()
	defer func() {
		metrics.DumpTimeHistogram.Observe(time.Since(start).Seconds())
		metrics.EntryCountHistogram.Observe(float64(rpt.agg.entries()))
	}()

	var firstErr error
	for _, snk := range rpt.Sinks {
		if err := rpt.dumpSink(snk); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (rpt *Report) dumpSink(snk *Sink) error {
	w, closer, err := snk.open(rpt)
	if err != nil {
		return err
	}
	em := newEmitter(w, rpt, snk)
	err = em.headers()
	if err == nil {
		if snk.SortKey != "" {
			err = rpt.agg.sortFor(rpt, snk)
		}
	}
	if err == nil {
		err = rpt.agg.emit(em, rpt, snk)
	}
	if ferr := em.flush(); err == nil {
		err = ferr
	}
	if cerr := closer(); err == nil {
		err = cerr
	}
	return err
}

// errBadSortField reports a sort field the kind cannot provide.
var errBadSortField = errors.New("sort field not allowed for report type")

// aggregator is the per-kind accumulate/calc/dump state. A fresh one
// is allocated per interval; free is the collector's job.
type aggregator interface {
	accum(r *flow.Record, rpt *Report, fx *flowCtx)
	calc(rpt *Report)
	entries() int
	sortFor(rpt *Report, snk *Sink) error
	emit(em *emitter, rpt *Report, snk *Sink) error
}

// keyExt is one extracted key plus the prefix lengths displayed for
// its address parts.
type keyExt struct {
	key  Key
	disp [2]uint8
}

// extractFn fills out with 1 or 2 keys for one flow.
type extractFn func(r *flow.Record, rpt *Report, out *[2]keyExt) int

// hashAgg is the generic chained-hash aggregator shared by every
// sparse-key kind.
type hashAgg struct {
	tbl     *chash.Table[Key, Entry]
	extract extractFn
}

func newHashAgg(extract extractFn) *hashAgg {
	return &hashAgg{
		tbl:     chash.New[Key, Entry](65536, 4096),
		extract: extract,
	}
}

func (a *hashAgg) accum(r *flow.Record, rpt *Report, fx *flowCtx) {
	var out [2]keyExt
	n := a.extract(r, rpt, &out)
	for i := 0; i < n; i++ {
		rec := a.tbl.Update(out[i].key, out[i].key.hash())
		rec.Val.Masks = out[i].disp
		rec.Val.add(fx.flows, fx.octets, fx.packets, fx.durMS, fx.firstSec, fx.lastSec)
		if fx.hasRate {
			rec.Val.Recs++
			rec.Val.Rate.Add(fx.pps, fx.bps)
		}
		rpt.addTotals(fx)
	}
}

func (a *hashAgg) calc(rpt *Report) {
	a.tbl.Do(func(rec *chash.Rec[Key, Entry]) bool {
		rec.Val.Rate.Finalize(rec.Val.Recs)
		return true
	})
}

func (a *hashAgg) entries() int {
	return a.tbl.Entries()
}

func (a *hashAgg) sortFor(rpt *Report, snk *Sink) error {
	less, err := entryLess(snk.SortKey, snk.SortAsc)
	if err != nil {
		return err
	}
	a.tbl.Sort(less)
	return nil
}

// entryLess builds the sink's comparator over hash records.
func entryLess(field string, asc bool) (func(a, b *chash.Rec[Key, Entry]) bool, error) {
	cmp, err := entryCompare(field)
	if err != nil {
		return nil, err
	}
	if asc {
		return func(a, b *chash.Rec[Key, Entry]) bool { return cmp(a, b) < 0 }, nil
	}
	return func(a, b *chash.Rec[Key, Entry]) bool { return cmp(a, b) > 0 }, nil
}

func entryCompare(field string) (func(a, b *chash.Rec[Key, Entry]) int, error) {
	switch field {
	case "key", "key1", "key2", "key3", "key4", "key5", "key6":
		slot := 0
		if field != "key" {
			slot = int(field[3] - '1')
		}
		if field == "key" {
			// Whole-key compare: parts in order, then in-key masks.
			return func(a, b *chash.Rec[Key, Entry]) int {
				for i := 0; i < len(a.Key.A); i++ {
					if c := cmpU64(uint64(a.Key.A[i]), uint64(b.Key.A[i])); c != 0 {
						return c
					}
				}
				for i := 0; i < len(a.Key.M); i++ {
					if c := cmpU64(uint64(a.Key.M[i]), uint64(b.Key.M[i])); c != 0 {
						return c
					}
				}
				return 0
			}, nil
		}
		return func(a, b *chash.Rec[Key, Entry]) int {
			return cmpU64(uint64(a.Key.A[slot]), uint64(b.Key.A[slot]))
		}, nil
	case "flows":
		return func(a, b *chash.Rec[Key, Entry]) int { return cmpU64(a.Val.Flows, b.Val.Flows) }, nil
	case "octets":
		return func(a, b *chash.Rec[Key, Entry]) int { return cmpU64(a.Val.Octets, b.Val.Octets) }, nil
	case "packets":
		return func(a, b *chash.Rec[Key, Entry]) int { return cmpU64(a.Val.Packets, b.Val.Packets) }, nil
	case "duration":
		return func(a, b *chash.Rec[Key, Entry]) int { return cmpU64(a.Val.Duration, b.Val.Duration) }, nil
	case "avg-pps":
		return func(a, b *chash.Rec[Key, Entry]) int { return cmpF64(a.Val.Rate.AvgPPS, b.Val.Rate.AvgPPS) }, nil
	case "min-pps":
		return func(a, b *chash.Rec[Key, Entry]) int { return cmpF64(a.Val.Rate.MinPPS, b.Val.Rate.MinPPS) }, nil
	case "max-pps":
		return func(a, b *chash.Rec[Key, Entry]) int { return cmpF64(a.Val.Rate.MaxPPS, b.Val.Rate.MaxPPS) }, nil
	case "avg-bps":
		return func(a, b *chash.Rec[Key, Entry]) int { return cmpF64(a.Val.Rate.AvgBPS, b.Val.Rate.AvgBPS) }, nil
	case "min-bps":
		return func(a, b *chash.Rec[Key, Entry]) int { return cmpF64(a.Val.Rate.MinBPS, b.Val.Rate.MinBPS) }, nil
	case "max-bps":
		return func(a, b *chash.Rec[Key, Entry]) int { return cmpF64(a.Val.Rate.MaxBPS, b.Val.Rate.MaxBPS) }, nil
	case "first":
		return func(a, b *chash.Rec[Key, Entry]) int { return cmpU64(uint64(a.Val.FirstSeen), uint64(b.Val.FirstSeen)) }, nil
	case "last":
		return func(a, b *chash.Rec[Key, Entry]) int { return cmpU64(uint64(a.Val.LastSeen), uint64(b.Val.LastSeen)) }, nil
	}
	return nil, errBadSortField
}

func cmpU64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpF64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (a *hashAgg) emit(em *emitter, rpt *Report, snk *Sink) error {
	var err error
	a.tbl.Do(func(rec *chash.Rec[Key, Entry]) bool {
		keys := rpt.Kind.formatKey(rpt, snk, &rec.Key, &rec.Val)
		err = em.entryRow(keys, &rec.Val, 0)
		return err == nil && !em.stopped
	})
	return err
}

// bucketAgg is the dense fixed-index aggregator for small integer
// domains.
type bucketAgg struct {
	arr *bucket.Array
	// idx returns 1 or 2 bucket indices for a flow.
	idx func(r *flow.Record, out *[2]int) int
}

func newBucketAgg(n int, idx func(r *flow.Record, out *[2]int) int) *bucketAgg {
	return &bucketAgg{arr: bucket.New(n, true), idx: idx}
}

func (a *bucketAgg) accum(r *flow.Record, rpt *Report, fx *flowCtx) {
	var out [2]int
	n := a.idx(r, &out)
	for i := 0; i < n; i++ {
		a.arr.Add(out[i], fx.flows, fx.octets, fx.packets, uint64(fx.durMS))
		if fx.hasRate {
			a.arr.AddRate(out[i], fx.pps, fx.bps)
		}
		rpt.addTotals(fx)
	}
}

func (a *bucketAgg) calc(rpt *Report) {
	a.arr.Finalize()
}

func (a *bucketAgg) entries() int {
	n := 0
	a.arr.Do(func(int) bool { n++; return true })
	return n
}

func (a *bucketAgg) sortFor(rpt *Report, snk *Sink) error {
	cmp, err := a.bucketCompare(snk.SortKey)
	if err != nil {
		return err
	}
	if snk.SortAsc {
		a.arr.Sort(func(i, j int) bool { return cmp(i, j) < 0 })
	} else {
		a.arr.Sort(func(i, j int) bool { return cmp(i, j) > 0 })
	}
	return nil
}

func (a *bucketAgg) bucketCompare(field string) (func(i, j int) int, error) {
	arr := a.arr
	switch field {
	case "key", "key1":
		return func(i, j int) int { return cmpU64(uint64(i), uint64(j)) }, nil
	case "flows":
		return func(i, j int) int { return cmpU64(arr.Flows[i], arr.Flows[j]) }, nil
	case "octets":
		return func(i, j int) int { return cmpU64(arr.Octets[i], arr.Octets[j]) }, nil
	case "packets":
		return func(i, j int) int { return cmpU64(arr.Packets[i], arr.Packets[j]) }, nil
	case "duration":
		return func(i, j int) int { return cmpU64(arr.Duration[i], arr.Duration[j]) }, nil
	case "avg-pps":
		return func(i, j int) int { return cmpF64(arr.Rates[i].AvgPPS, arr.Rates[j].AvgPPS) }, nil
	case "min-pps":
		return func(i, j int) int { return cmpF64(arr.Rates[i].MinPPS, arr.Rates[j].MinPPS) }, nil
	case "max-pps":
		return func(i, j int) int { return cmpF64(arr.Rates[i].MaxPPS, arr.Rates[j].MaxPPS) }, nil
	case "avg-bps":
		return func(i, j int) int { return cmpF64(arr.Rates[i].AvgBPS, arr.Rates[j].AvgBPS) }, nil
	case "min-bps":
		return func(i, j int) int { return cmpF64(arr.Rates[i].MinBPS, arr.Rates[j].MinBPS) }, nil
	case "max-bps":
		return func(i, j int) int { return cmpF64(arr.Rates[i].MaxBPS, arr.Rates[j].MaxBPS) }, nil
	}
	return nil, errBadSortField
}

func (a *bucketAgg) emit(em *emitter, rpt *Report, snk *Sink) error {
	var err error
	a.arr.Do(func(i int) bool {
		e := Entry{
			Flows:    a.arr.Flows[i],
			Octets:   a.arr.Octets[i],
			Packets:  a.arr.Packets[i],
			Duration: a.arr.Duration[i],
			Recs:     a.arr.Recs[i],
		}
		if a.arr.Rates != nil {
			e.Rate = a.arr.Rates[i]
		}
		keys := rpt.Kind.formatBucket(rpt, snk, i)
		err = em.entryRow(keys, &e, 0)
		return err == nil && !em.stopped
	})
	return err
}
