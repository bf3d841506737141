package stat

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/m-lab/flow-report/metrics"
)

// BuildVersion appears in the report header block.
const BuildVersion = "flow-report 0.1.0"

// anchor returns the time seeding this sink's path expansion.
func (s *Sink) anchor(rpt *Report) time.Time {
	start, end := rpt.Totals.TimeStart, rpt.Totals.TimeEnd
	if start == timeStartSentinel {
		start = 0
	}
	switch s.Time {
	case TimeStart:
		return time.Unix(int64(start), 0)
	case TimeEnd:
		return time.Unix(int64(end), 0)
	case TimeMid:
		return time.Unix((int64(start)+int64(end))/2, 0)
	default:
		return time.Now()
	}
}

// open resolves the sink's writer: stdout for an empty path, a shell
// pipeline for "|cmd", else a strftime-expanded file path. Files are
// truncated on the first interval and appended afterwards.
func (s *Sink) open(rpt *Report) (io.Writer, func() error, error) {
	noop := func() error { return nil }
	if s.Path == "" {
		if s.Stdout != nil {
			return s.Stdout, noop, nil
		}
		return os.Stdout, noop, nil
	}
	path, err := strftime.Format(s.Path, s.anchor(rpt))
	if err != nil {
		return nil, nil, err
	}
	if strings.HasPrefix(path, "|") {
		return openPipeline(strings.TrimPrefix(path, "|"))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, err
		}
	}
	flags := os.O_WRONLY | os.O_CREATE
	if rpt.interval == 0 {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, nil, err
	}
	metrics.SinkFileCount.Inc()
	return f, f.Close, nil
}

// openPipeline starts cmdline under the shell with the write end of
// its stdin returned. A non-zero exit is a warning, not an error.
func openPipeline(cmdline string) (io.Writer, func() error, error) {
	cmd := exec.Command("/bin/sh", "-c", cmdline)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, nil, err
	}
	metrics.SinkFileCount.Inc()
	closer := func() error {
		if err := stdin.Close(); err != nil {
			return err
		}
		if err := cmd.Wait(); err != nil {
			log.Printf("pipeline %q: %v", cmdline, err)
		}
		return nil
	}
	return stdin, closer, nil
}

// emitter writes one sink's rows, tracking tallies, the record cap,
// and percent rendering.
type emitter struct {
	w    *bufio.Writer
	rpt  *Report
	sink *Sink

	rows    uint64
	stopped bool

	tRecs, tFlows, tOctets, tPackets float64
}

func newEmitter(w io.Writer, rpt *Report, snk *Sink) *emitter {
	return &emitter{w: bufio.NewWriter(w), rpt: rpt, sink: snk}
}

func (em *emitter) flush() error {
	return em.w.Flush()
}

func (em *emitter) comment(format string, args ...interface{}) error {
	if em.sink.Format == FormatBinary {
		return nil
	}
	_, err := fmt.Fprintf(em.w, "# "+format+"\n", args...)
	return err
}

func (em *emitter) histogram(edges, counts []uint64) error {
	for i, c := range counts {
		if c == 0 {
			continue
		}
		var label string
		if i < len(edges) {
			label = "<=" + strconv.FormatUint(edges[i], 10)
		} else {
			label = ">" + strconv.FormatUint(edges[len(edges)-1], 10)
		}
		if err := em.comment("  %s: %d", label, c); err != nil {
			return err
		}
	}
	return nil
}

// headers writes the optional metadata, extended header, totals, and
// column-name blocks before the first data row.
func (em *emitter) headers() error {
	rpt, snk := em.rpt, em.sink
	first := rpt.interval == 0
	if snk.Options&OptHeader != 0 && first {
		if err := em.metaBlock(); err != nil {
			return err
		}
	}
	if snk.Options&OptXHeader != 0 && first && rpt.XHeader != nil && snk.Format == FormatASCII {
		if err := rpt.XHeader(em.w); err != nil {
			return err
		}
	}
	if snk.Options&OptTotals != 0 {
		t := rpt.Totals
		if err := em.comment("rec1: t_flows,t_octets,t_packets,t_duration,t_recs,t_ignores"); err != nil {
			return err
		}
		if snk.Format == FormatASCII {
			_, err := fmt.Fprintf(em.w, "%d,%d,%d,%d,%d,%d\n",
				t.Flows, t.Octets, t.Packets, t.Duration, t.Recs, t.Ignores)
			if err != nil {
				return err
			}
		}
	}
	if snk.Options&OptHeader != 0 {
		if err := em.comment("recn: %s", em.columnNames()); err != nil {
			return err
		}
	}
	return nil
}

func (em *emitter) metaBlock() error {
	rpt, snk := em.rpt, em.sink
	lines := []string{
		"", "build-version: " + BuildVersion,
		"name: " + rpt.Name,
		"type: " + rpt.Kind.Name,
	}
	if rpt.Scale > 1 {
		lines = append(lines, "scale: "+strconv.FormatUint(rpt.Scale, 10))
	}
	lines = append(lines,
		"ip-source-address-format: "+addrModeString(rpt.SrcFormat),
		"ip-destination-address-format: "+addrModeString(rpt.DstFormat))
	if snk.SortKey != "" {
		sign := "-"
		if snk.SortAsc {
			sign = "+"
		}
		lines = append(lines, "sort-field: "+sign+snk.SortKey)
	}
	lines = append(lines, "fields: "+fieldString(snk.Fields))
	if snk.Options != 0 {
		lines = append(lines, "options: "+optionString(snk.Options))
	}
	if snk.Records > 0 {
		lines = append(lines, "records: "+strconv.FormatUint(snk.Records, 10))
	}
	if snk.Tally > 0 {
		lines = append(lines, "tally: "+strconv.FormatUint(snk.Tally, 10))
	}
	if rpt.FilterName != "" {
		lines = append(lines, "filter: "+rpt.FilterName)
	}
	if rpt.TagMask {
		lines = append(lines, fmt.Sprintf("tag-mask: 0x%08x 0x%08x", rpt.TagMaskSrc, rpt.TagMaskDst))
	}
	lines = append(lines, "")
	for _, l := range lines {
		var err error
		if l == "" {
			err = em.comment("")
		} else {
			err = em.comment("%s", l)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func addrModeString(m AddrMode) string {
	switch m {
	case AddrPrefixLen:
		return "prefix-len"
	case AddrPrefixMask:
		return "prefix-mask"
	}
	return "address"
}

// columnNames lists the selected columns in emission order.
func (em *emitter) columnNames() string {
	sel := em.sink.Fields
	var names []string
	add := func(bit FieldSet, name string) {
		if sel&bit != 0 {
			names = append(names, name)
		}
	}
	add(FIndex, "index")
	add(FFirst, "first")
	add(FLast, "last")
	keyNames := []FieldSet{FKey, FKey2, FKey3, FKey4, FKey5, FKey6}
	for i, bit := range keyNames {
		if sel&bit != 0 {
			if i < len(em.rpt.Kind.parts) {
				names = append(names, em.rpt.Kind.parts[i].label)
			} else {
				names = append(names, "key"+strconv.Itoa(i+1))
			}
		}
	}
	add(FFlows, "flows")
	add(FOctets, "octets")
	add(FPackets, "packets")
	add(FDuration, "duration")
	add(FCount, "count")
	add(FAvgBPS, "avg-bps")
	add(FMinBPS, "min-bps")
	add(FMaxBPS, "max-bps")
	add(FAvgPPS, "avg-pps")
	add(FMinPPS, "min-pps")
	add(FMaxPPS, "max-pps")
	add(FFRecs, "frecs")
	return strings.Join(names, ",")
}

func ffmt(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// percentOrUint renders a counter column, as percent of total when
// the percent option is set.
func (em *emitter) percentOrUint(v, total uint64) string {
	if em.sink.Options&OptPercent != 0 {
		if total == 0 {
			return ffmt(0)
		}
		return ffmt(float64(v) * 100 / float64(total))
	}
	return strconv.FormatUint(v, 10)
}

// percentOrFloat renders a fractional counter column.
func (em *emitter) percentOrFloat(v, total float64) string {
	if em.sink.Options&OptPercent != 0 {
		if total == 0 {
			return ffmt(0)
		}
		return ffmt(v * 100 / total)
	}
	return ffmt(v)
}

// entryRow emits one Entry-backed data row. keys holds the formatted
// key parts in slot order; count is used by the distinct kinds.
func (em *emitter) entryRow(keys []string, e *Entry, count uint64) error {
	if em.stopped {
		return nil
	}
	sel := em.sink.Fields
	t := &em.rpt.Totals
	cols := make([]string, 0, 16)
	if sel&FIndex != 0 {
		cols = append(cols, strconv.FormatUint(em.rows, 10))
	}
	if sel&FFirst != 0 {
		cols = append(cols, strconv.FormatUint(uint64(e.FirstSeen), 10))
	}
	if sel&FLast != 0 {
		cols = append(cols, strconv.FormatUint(uint64(e.LastSeen), 10))
	}
	keyBitList := []FieldSet{FKey, FKey2, FKey3, FKey4, FKey5, FKey6}
	for i := range keys {
		if i < len(keyBitList) && sel&keyBitList[i] != 0 {
			cols = append(cols, keys[i])
		}
	}
	if sel&FFlows != 0 {
		cols = append(cols, em.percentOrUint(e.Flows, t.Flows))
	}
	if sel&FOctets != 0 {
		cols = append(cols, em.percentOrUint(e.Octets, t.Octets))
	}
	if sel&FPackets != 0 {
		cols = append(cols, em.percentOrUint(e.Packets, t.Packets))
	}
	if sel&FDuration != 0 {
		cols = append(cols, em.percentOrUint(e.Duration, t.Duration))
	}
	if sel&FCount != 0 {
		cols = append(cols, strconv.FormatUint(count, 10))
	}
	if sel&FAvgBPS != 0 {
		cols = append(cols, ffmt(e.Rate.AvgBPS))
	}
	if sel&FMinBPS != 0 {
		cols = append(cols, ffmt(e.Rate.MinBPS))
	}
	if sel&FMaxBPS != 0 {
		cols = append(cols, ffmt(e.Rate.MaxBPS))
	}
	if sel&FAvgPPS != 0 {
		cols = append(cols, ffmt(e.Rate.AvgPPS))
	}
	if sel&FMinPPS != 0 {
		cols = append(cols, ffmt(e.Rate.MinPPS))
	}
	if sel&FMaxPPS != 0 {
		cols = append(cols, ffmt(e.Rate.MaxPPS))
	}
	if sel&FFRecs != 0 {
		cols = append(cols, strconv.FormatUint(e.Recs, 10))
	}
	return em.data(cols, float64(e.Flows), float64(e.Octets), float64(e.Packets), float64(e.Recs))
}

// data writes one row and handles tallies and the record cap. The
// counter arguments feed the running tally totals.
func (em *emitter) data(cols []string, flows, octets, packets, recs float64) error {
	if em.stopped {
		return nil
	}
	var err error
	if em.sink.Format == FormatBinary {
		err = tlvPutString(em.w, tlvTypeRow, strings.Join(cols, ","))
	} else {
		_, err = em.w.WriteString(strings.Join(cols, ",") + "\n")
	}
	if err != nil {
		return err
	}
	em.rows++
	em.tRecs += recs
	em.tFlows += flows
	em.tOctets += octets
	em.tPackets += packets

	if em.sink.Tally > 0 && em.rows%em.sink.Tally == 0 && em.sink.Format == FormatASCII {
		tally := fmt.Sprintf("#TALLY %%recs=%.0f %%flows=%.0f %%octets=%.0f %%packets=%.0f",
			em.tRecs, em.tFlows, em.tOctets, em.tPackets)
		if em.rpt.Kind.Allowed&FRates != 0 {
			tally += fmt.Sprintf(" %%avg-bps=%s %%avg-pps=%s",
				ffmt(em.rpt.Totals.Rate.AvgBPS), ffmt(em.rpt.Totals.Rate.AvgPPS))
		}
		if _, err := em.w.WriteString(tally + "\n"); err != nil {
			return err
		}
	}
	if em.sink.Records > 0 && em.rows >= em.sink.Records {
		em.stopped = true
		return em.comment("stop, hit record limit.")
	}
	return nil
}
