package stat_test

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/m-lab/flow-report/flow"
	"github.com/m-lab/flow-report/stat"
)

// v5Flow returns a baseline record: exporter clock at unix 1000 with
// zero uptime, one flow of one packet and 100 octets over 1 second.
func v5Flow() flow.Record {
	return flow.Record{
		XFields:  flow.V5.XFields,
		UnixSecs: 1000,
		First:    0,
		Last:     1000,
		Packets:  1,
		Octets:   100,
		Flows:    1,
	}
}

func newReport(name, kind string, snk *stat.Sink) *stat.Report {
	k := stat.Kinds[kind]
	if k == nil {
		panic("unknown kind " + kind)
	}
	if snk.Fields == 0 {
		snk.Fields = k.Default
	}
	return &stat.Report{Name: name, Kind: k, Sinks: []*stat.Sink{snk}}
}

// dataRows strips comments and tallies from sink output.
func dataRows(buf *bytes.Buffer) [][]string {
	var rows [][]string
	for _, line := range strings.Split(buf.String(), "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rows = append(rows, strings.Split(line, ","))
	}
	return rows
}

func TestSourcePortBucket(t *testing.T) {
	var buf bytes.Buffer
	rpt := newReport("t1", "ip-source-port",
		&stat.Sink{SortKey: "flows", SortAsc: false, Stdout: &buf})

	for _, port := range []uint16{80, 80, 443, 22} {
		r := v5Flow()
		r.SrcPort = port
		if err := rpt.Accum(&r); err != nil {
			t.Fatal(err)
		}
	}
	rpt.Calc()
	if err := rpt.Dump(); err != nil {
		t.Fatal(err)
	}

	rows := dataRows(&buf)
	if len(rows) != 3 {
		t.Fatal("expected 3 rows, got", rows)
	}
	if rows[0][0] != "80" || rows[0][1] != "2" {
		t.Error("top row should be port 80 with 2 flows:", rows[0])
	}
	rest := map[string]bool{rows[1][0]: true, rows[2][0]: true}
	if !rest["443"] || !rest["22"] {
		t.Error("remaining rows should be 443 and 22:", rows)
	}
	for _, row := range rows[1:] {
		if row[1] != "1" {
			t.Error("single flow expected:", row)
		}
	}
	if rpt.Totals.Flows != 4 {
		t.Error("t_flows", rpt.Totals.Flows)
	}
}

func TestSourcePortPercent(t *testing.T) {
	var buf bytes.Buffer
	rpt := newReport("t1", "ip-source-port",
		&stat.Sink{SortKey: "flows", SortAsc: false, Options: stat.OptPercent, Stdout: &buf})

	for _, port := range []uint16{80, 80, 443, 22} {
		r := v5Flow()
		r.SrcPort = port
		rpt.Accum(&r)
	}
	rpt.Calc()
	if err := rpt.Dump(); err != nil {
		t.Fatal(err)
	}

	rows := dataRows(&buf)
	if rows[0][1] != "50.000000" {
		t.Error("port 80 percent:", rows[0])
	}
	for _, row := range rows[1:] {
		if row[1] != "25.000000" {
			t.Error("percent:", row)
		}
	}
}

func TestPrefixMaskKeying(t *testing.T) {
	var buf bytes.Buffer
	rpt := newReport("t1", "ip-source-address", &stat.Sink{Stdout: &buf})
	rpt.SrcFormat = stat.AddrPrefixMask

	a := v5Flow()
	a.SrcAddr = 0x0a010203 // 10.1.2.3/16
	a.SrcMask = 16
	b := v5Flow()
	b.SrcAddr = 0x0a016363 // 10.1.99.99/16
	b.SrcMask = 16
	rpt.Accum(&a)
	rpt.Accum(&b)
	rpt.Calc()
	if err := rpt.Dump(); err != nil {
		t.Fatal(err)
	}

	rows := dataRows(&buf)
	if len(rows) != 1 {
		t.Fatal("both flows should share one bucket:", rows)
	}
	if rows[0][0] != "10.1.0.0/16" {
		t.Error("key should be the cleared prefix:", rows[0])
	}
	if rows[0][1] != "2" {
		t.Error("flows", rows[0])
	}
}

func TestDistinctDestinationCount(t *testing.T) {
	var buf bytes.Buffer
	rpt := newReport("t1", "ip-source-address-destination-count",
		&stat.Sink{SortKey: "count", SortAsc: false, Stdout: &buf})

	flows := []struct{ src, dst uint32 }{
		{0x01010101, 0x02020202}, // A -> B
		{0x01010101, 0x03030303}, // A -> C
		{0x01010101, 0x03030303}, // A -> C again
		{0x04040404, 0x02020202}, // D -> B
	}
	for _, f := range flows {
		r := v5Flow()
		r.SrcAddr, r.DstAddr = f.src, f.dst
		rpt.Accum(&r)
	}
	rpt.Calc()
	if err := rpt.Dump(); err != nil {
		t.Fatal(err)
	}

	rows := dataRows(&buf)
	if len(rows) != 2 {
		t.Fatal("expected entries for A and D:", rows)
	}
	// Default columns: key,flows,octets,packets,duration,count.
	if rows[0][0] != "1.1.1.1" || rows[0][5] != "2" {
		t.Error("A should count 2 distinct destinations:", rows[0])
	}
	if rows[1][0] != "4.4.4.4" || rows[1][5] != "1" {
		t.Error("D should count 1 distinct destination:", rows[1])
	}
	if rpt.Totals.Count != 3 {
		t.Error("t_count", rpt.Totals.Count)
	}
}

func TestLinearInterpolation(t *testing.T) {
	var buf bytes.Buffer
	rpt := newReport("t1", "linear-interpolated-flows-octets-packets",
		&stat.Sink{SortKey: "key", SortAsc: true, Stdout: &buf})

	r := v5Flow()
	r.First = 100000 // wallclock 1100
	r.Last = 103000  // wallclock 1103
	r.Octets = 400
	r.Packets = 4
	rpt.Accum(&r)
	rpt.Calc()
	if err := rpt.Dump(); err != nil {
		t.Fatal(err)
	}

	rows := dataRows(&buf)
	if len(rows) != 4 {
		t.Fatal("expected 4 per-second rows:", rows)
	}
	for i, row := range rows {
		if row[0] != strconv.Itoa(1100+i) {
			t.Error("key sequence:", row)
		}
		if row[1] != "0.250000" || row[2] != "100.000000" || row[3] != "1.000000" {
			t.Error("interpolated values:", row)
		}
	}
}

func TestRateAccounting(t *testing.T) {
	var buf bytes.Buffer
	k := stat.Kinds["ip-source-port"]
	rpt := newReport("t1", "ip-source-port",
		&stat.Sink{Fields: k.Default | stat.FAvgPPS | stat.FMinPPS | stat.FMaxPPS | stat.FFRecs, Stdout: &buf})

	// 2 pps over 1s, then 4 pps over 1s, and one zero-duration flow
	// that must not contribute to rates.
	a := v5Flow()
	a.SrcPort = 80
	a.Packets = 2
	b := v5Flow()
	b.SrcPort = 80
	b.Packets = 4
	c := v5Flow()
	c.SrcPort = 80
	c.Last = c.First
	rpt.Accum(&a)
	rpt.Accum(&b)
	rpt.Accum(&c)
	rpt.Calc()
	if err := rpt.Dump(); err != nil {
		t.Fatal(err)
	}

	rows := dataRows(&buf)
	if len(rows) != 1 {
		t.Fatal(rows)
	}
	// key,flows,octets,packets,duration,avg-pps,min-pps,max-pps,frecs
	row := rows[0]
	if row[5] != "3.000000" || row[6] != "2.000000" || row[7] != "4.000000" {
		t.Error("pps columns:", row)
	}
	if row[8] != "2" {
		t.Error("frecs should exclude the zero-duration flow:", row)
	}
	if rpt.Totals.Recs != 2 || rpt.Totals.Ignores != 1 {
		t.Error("recs/ignores", rpt.Totals.Recs, rpt.Totals.Ignores)
	}
}

func TestTotalsInvariant(t *testing.T) {
	var buf bytes.Buffer
	rpt := newReport("t1", "ip-source/destination-port", &stat.Sink{Stdout: &buf})

	ports := []struct{ s, d uint16 }{{80, 1024}, {80, 1025}, {443, 1024}, {80, 1024}}
	for _, p := range ports {
		r := v5Flow()
		r.SrcPort, r.DstPort = p.s, p.d
		rpt.Accum(&r)
	}
	rpt.Calc()
	if err := rpt.Dump(); err != nil {
		t.Fatal(err)
	}

	var flowSum, octetSum uint64
	for _, row := range dataRows(&buf) {
		// key,key2,flows,octets,packets,duration
		f, _ := strconv.ParseUint(row[2], 10, 64)
		o, _ := strconv.ParseUint(row[3], 10, 64)
		flowSum += f
		octetSum += o
	}
	if flowSum != rpt.Totals.Flows {
		t.Error("sum(flows)", flowSum, "t_flows", rpt.Totals.Flows)
	}
	if octetSum != rpt.Totals.Octets {
		t.Error("sum(octets)", octetSum, "t_octets", rpt.Totals.Octets)
	}
}

func TestSortAscendingOrder(t *testing.T) {
	var buf bytes.Buffer
	rpt := newReport("t1", "ip-source-port",
		&stat.Sink{SortKey: "octets", SortAsc: true, Stdout: &buf})

	for i, port := range []uint16{7, 5, 9} {
		r := v5Flow()
		r.SrcPort = port
		r.Octets = uint64(100 * (i + 1))
		rpt.Accum(&r)
	}
	rpt.Calc()
	if err := rpt.Dump(); err != nil {
		t.Fatal(err)
	}

	var prev uint64
	for _, row := range dataRows(&buf) {
		o, _ := strconv.ParseUint(row[2], 10, 64)
		if o < prev {
			t.Fatal("not ascending:", row)
		}
		prev = o
	}
}

func TestRecordCapAndTally(t *testing.T) {
	var buf bytes.Buffer
	rpt := newReport("t1", "ip-source-port",
		&stat.Sink{SortKey: "key", SortAsc: true, Records: 3, Tally: 2, Stdout: &buf})

	for port := uint16(1); port <= 5; port++ {
		r := v5Flow()
		r.SrcPort = port
		rpt.Accum(&r)
	}
	rpt.Calc()
	if err := rpt.Dump(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	var data, tally, stop int
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "#TALLY"):
			tally++
		case strings.Contains(line, "record limit"):
			stop++
		case !strings.HasPrefix(line, "#"):
			data++
		}
	}
	if data != 3 {
		t.Error("record cap not honored:", data, lines)
	}
	if tally != 1 {
		t.Error("expected one tally after the second row:", lines)
	}
	if stop != 1 {
		t.Error("expected the stop comment:", lines)
	}
	if !strings.HasPrefix(lines[2], "#TALLY %recs=") {
		t.Error("tally should follow the second data row:", lines)
	}
}

func TestHeaderAndTotalsBlocks(t *testing.T) {
	var buf bytes.Buffer
	rpt := newReport("web", "ip-source-port",
		&stat.Sink{Options: stat.OptHeader | stat.OptTotals, Stdout: &buf})

	r := v5Flow()
	r.SrcPort = 80
	rpt.Accum(&r)
	rpt.Calc()
	if err := rpt.Dump(); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{
		"# build-version:",
		"# name: web",
		"# type: ip-source-port",
		"# rec1: t_flows",
		"# recn: ip-source-port,flows,octets,packets,duration",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestScaleAppliesToCounters(t *testing.T) {
	var buf bytes.Buffer
	rpt := newReport("t1", "ip-source-port", &stat.Sink{Stdout: &buf})
	rpt.Scale = 10

	r := v5Flow()
	r.SrcPort = 80
	rpt.Accum(&r)
	rpt.Calc()
	if err := rpt.Dump(); err != nil {
		t.Fatal(err)
	}

	rows := dataRows(&buf)
	// key,flows,octets,packets,duration
	if rows[0][2] != "1000" || rows[0][3] != "10" {
		t.Error("scaled counters:", rows[0])
	}
}

func TestKindTable(t *testing.T) {
	if len(stat.Kinds) != 78 {
		t.Error("kind table size", len(stat.Kinds))
	}
	for _, name := range []string{
		"summary-detail", "summary-counters", "packet-size", "octets",
		"packets", "ip-source-port", "ip-address", "ip-port",
		"ip-source-address-destination-count",
		"ip-destination-address-source-count",
		"ip-source/destination-address/ip-protocol/ip-tos/ip-source/destination-port",
		"linear-interpolated-flows-octets-packets",
		"first", "last", "duration",
	} {
		if stat.Kinds[name] == nil {
			t.Error("missing kind", name)
		}
	}
}

func TestIPAddressBothEndpoints(t *testing.T) {
	var buf bytes.Buffer
	rpt := newReport("t1", "ip-address", &stat.Sink{SortKey: "key", SortAsc: true, Stdout: &buf})

	r := v5Flow()
	r.SrcAddr = 0x01010101
	r.DstAddr = 0x02020202
	rpt.Accum(&r)
	rpt.Calc()
	if err := rpt.Dump(); err != nil {
		t.Fatal(err)
	}

	rows := dataRows(&buf)
	if len(rows) != 2 {
		t.Fatal("both endpoints should appear:", rows)
	}
	if rows[0][0] != "1.1.1.1" || rows[1][0] != "2.2.2.2" {
		t.Error("keys:", rows)
	}
	// Totals count one contribution per inserted endpoint.
	if rpt.Totals.Flows != 2 {
		t.Error("t_flows", rpt.Totals.Flows)
	}
}

func TestBinarySink(t *testing.T) {
	var buf bytes.Buffer
	rpt := newReport("t1", "ip-source-port",
		&stat.Sink{Format: stat.FormatBinary, Stdout: &buf})

	r := v5Flow()
	r.SrcPort = 80
	rpt.Accum(&r)
	rpt.Calc()
	if err := rpt.Dump(); err != nil {
		t.Fatal(err)
	}

	raw := buf.Bytes()
	if len(raw) < 4 {
		t.Fatal("no TLV output")
	}
	typ := uint16(raw[0])<<8 | uint16(raw[1])
	length := int(raw[2])<<8 | int(raw[3])
	if typ != 1 {
		t.Error("tlv type", typ)
	}
	if len(raw) != 4+length {
		t.Error("tlv length", length, "buffer", len(raw))
	}
	if string(raw[4:]) != "80,1,100,1,1000" {
		t.Error("tlv row:", string(raw[4:]))
	}
}
