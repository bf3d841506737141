package stat_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-lab/flow-report/flow"
	"github.com/m-lab/flow-report/policy"
	"github.com/m-lab/flow-report/stat"
)

func v1005Flow() flow.Record {
	r := v5Flow()
	r.XFields = flow.V1005.XFields
	return r
}

func TestTagMaskScoping(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	rpt1 := newReport("masked", "source-tag", &stat.Sink{Stdout: &buf1})
	rpt1.TagMask = true
	rpt1.TagMaskSrc = 0x0000ff00
	rpt1.TagMaskDst = 0x000000ff
	rpt2 := newReport("plain", "source-tag", &stat.Sink{Stdout: &buf2})

	def := &stat.Definition{Name: "d", Reports: []*stat.Report{rpt1, rpt2}}
	def.Required = rpt1.Kind.Required | rpt2.Kind.Required

	r := v1005Flow()
	r.SrcTag = 0x12345678
	r.DstTag = 0x87654321
	if err := def.Process(&r); err != nil {
		t.Fatal(err)
	}
	// The mask must not leak past the report's accumulate.
	if r.SrcTag != 0x12345678 || r.DstTag != 0x87654321 {
		t.Errorf("tags not restored: %#x %#x", r.SrcTag, r.DstTag)
	}
	if err := def.CalcDump(); err != nil {
		t.Fatal(err)
	}

	rows1 := dataRows(&buf1)
	rows2 := dataRows(&buf2)
	if rows1[0][0] != "22016" { // 0x00005600
		t.Error("masked report key:", rows1)
	}
	if rows2[0][0] != "305419896" { // 0x12345678
		t.Error("plain report key:", rows2)
	}
}

func TestTimeSeriesReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	rpt := newReport("ts", "ip-source-port", &stat.Sink{Path: path})
	def := &stat.Definition{Name: "d", MaxTime: 60, Reports: []*stat.Report{rpt}}
	def.Required = rpt.Kind.Required

	base := uint32(1000000)
	for _, off := range []uint32{0, 10, 59, 60, 61} {
		r := v5Flow()
		r.SrcPort = 80
		r.UnixSecs = base + off
		if err := def.Process(&r); err != nil {
			t.Fatal(err)
		}
	}
	if def.Interval() != 1 {
		t.Error("interval counter", def.Interval())
	}
	if err := def.CalcDump(); err != nil {
		t.Fatal(err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rows []string
	for _, line := range strings.Split(string(out), "\n") {
		if line != "" && !strings.HasPrefix(line, "#") {
			rows = append(rows, line)
		}
	}
	if len(rows) != 2 {
		t.Fatal("expected one row per interval:\n", string(out))
	}
	if !strings.HasPrefix(rows[0], "80,3,") {
		t.Error("interval 0 should hold three flows:", rows[0])
	}
	if !strings.HasPrefix(rows[1], "80,2,") {
		t.Error("interval 1 should hold the t=60 and t=61 flows:", rows[1])
	}
}

func TestDefinitionFilter(t *testing.T) {
	var buf bytes.Buffer
	rpt := newReport("t1", "ip-source-port", &stat.Sink{Stdout: &buf})
	def := &stat.Definition{
		Name:    "d",
		Reports: []*stat.Report{rpt},
		Filter: policy.FilterFunc(func(r *flow.Record) policy.Mode {
			if r.SrcPort == 23 {
				return policy.Deny
			}
			return policy.Permit
		}),
	}
	def.Required = rpt.Kind.Required

	for _, port := range []uint16{23, 80} {
		r := v5Flow()
		r.SrcPort = port
		if err := def.Process(&r); err != nil {
			t.Fatal(err)
		}
	}
	if err := def.CalcDump(); err != nil {
		t.Fatal(err)
	}

	rows := dataRows(&buf)
	if len(rows) != 1 || rows[0][0] != "80" {
		t.Error("filtered flow leaked:", rows)
	}
}

func TestReportFilterRestoresTags(t *testing.T) {
	var buf bytes.Buffer
	rpt := newReport("t1", "source-tag", &stat.Sink{Stdout: &buf})
	rpt.TagMask = true
	rpt.TagMaskSrc = 0
	rpt.TagMaskDst = 0
	rpt.Filter = policy.FilterFunc(func(r *flow.Record) policy.Mode {
		return policy.Deny
	})
	def := &stat.Definition{Name: "d", Reports: []*stat.Report{rpt}}
	def.Required = rpt.Kind.Required

	r := v1005Flow()
	r.SrcTag = 0xabc
	if err := def.Process(&r); err != nil {
		t.Fatal(err)
	}
	if r.SrcTag != 0xabc {
		t.Errorf("tag not restored on filter deny: %#x", r.SrcTag)
	}
	if rpt.Totals.Flows != 0 {
		t.Error("denied flow accumulated")
	}
}

func TestFieldCheck(t *testing.T) {
	rpt := newReport("t1", "source-tag", &stat.Sink{})
	def := &stat.Definition{Name: "d", Reports: []*stat.Report{rpt}}
	def.Required = rpt.Kind.Required

	// A v5 stream has no tag fields.
	if err := def.Check(flow.V5.XFields); err == nil {
		t.Error("v5 stream should fail the field check for a tag report")
	}
	if err := def.Check(flow.V1005.XFields); err != nil {
		t.Error("v1005 stream should pass:", err)
	}

	// A tag policy synthesizes the tag fields, so v5 passes.
	def2 := &stat.Definition{
		Name:    "d2",
		Reports: []*stat.Report{rpt},
		Tagger:  tagFunc(func(r *flow.Record) {}),
	}
	def2.Required = rpt.Kind.Required
	if err := def2.Check(flow.V5.XFields); err != nil {
		t.Error("tagged definition should accept v5:", err)
	}
}

type tagFunc func(r *flow.Record)

func (f tagFunc) Apply(r *flow.Record) { f(r) }
