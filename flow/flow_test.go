package flow_test

import (
	"testing"
	"time"

	"github.com/go-test/deep"

	"github.com/m-lab/flow-report/flow"
)

func TestMaskLookup(t *testing.T) {
	if flow.MaskLookup[0] != 0 {
		t.Error("mask 0 should be 0")
	}
	if flow.MaskLookup[16] != 0xffff0000 {
		t.Errorf("mask 16 = %#x", flow.MaskLookup[16])
	}
	if flow.MaskLookup[32] != 0xffffffff {
		t.Errorf("mask 32 = %#x", flow.MaskLookup[32])
	}
	if flow.MaskLookup[1] != 0x80000000 {
		t.Errorf("mask 1 = %#x", flow.MaskLookup[1])
	}
}

func TestWallclock(t *testing.T) {
	// Exporter clock: uptime 10s at unix time 1000.
	got := flow.Wallclock(10000, 1000, 0, 12000)
	want := time.Unix(1002, 0)
	if !got.Equal(want) {
		t.Errorf("Wallclock = %v, want %v", got, want)
	}
}

func TestDurationMS(t *testing.T) {
	r := flow.Record{First: 100, Last: 350}
	if r.DurationMS() != 250 {
		t.Error("duration", r.DurationMS())
	}
	r = flow.Record{First: 350, Last: 350}
	if r.DurationMS() != 0 {
		t.Error("zero duration expected")
	}
	r = flow.Record{First: 400, Last: 350}
	if r.DurationMS() != 0 {
		t.Error("negative duration should clamp to zero")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := flow.Record{
		XFields: flow.V1005.XFields,
		SrcAddr: 0x0a010203, DstAddr: 0xc0a80001,
		NextHop: 0x0a0000fe, ExAddr: 0x7f000001,
		Input: 3, Output: 7,
		SrcPort: 443, DstPort: 51515,
		SrcAS: 65000, DstAS: 15169,
		Prot: 6, TOS: 0xb8, TCPFlags: 0x1b,
		SrcMask: 24, DstMask: 16,
		EngineType: 1, EngineID: 2,
		First: 1000, Last: 4000,
		SysUpTime: 50000, UnixSecs: 1600000000, UnixNsecs: 12345,
		Packets: 42, Octets: 61234, Flows: 1,
		SrcTag: 0xdeadbeef, DstTag: 0x00c0ffee,
	}
	buf := make([]byte, flow.V1005.Size)
	if err := flow.V1005.Encode(&in, buf); err != nil {
		t.Fatal(err)
	}
	var out flow.Record
	if err := flow.V1005.Decode(buf, &out); err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(in, out); diff != nil {
		t.Error(diff)
	}
}

func TestDecodeV5DropsTags(t *testing.T) {
	in := flow.Record{SrcAddr: 1, SrcTag: 99, Flows: 5}
	buf := make([]byte, flow.V5.Size)
	if err := flow.V5.Encode(&in, buf); err != nil {
		t.Fatal(err)
	}
	var out flow.Record
	if err := flow.V5.Decode(buf, &out); err != nil {
		t.Fatal(err)
	}
	if out.SrcTag != 0 {
		t.Error("v5 should not carry tags")
	}
	if out.XFields.Has(flow.SrcTag.Bit()) {
		t.Error("v5 xfields should not include src_tag")
	}
	if out.Flows != 5 {
		t.Error("flows", out.Flows)
	}
}

func TestUpcast(t *testing.T) {
	r := flow.Record{XFields: flow.V5.XFields}
	flow.Upcast(&r)
	if !r.XFields.Has(flow.SrcTag.Bit() | flow.DstTag.Bit()) {
		t.Error("upcast should add tag fields")
	}
}

func TestShortBuffer(t *testing.T) {
	var r flow.Record
	if err := flow.V5.Decode(make([]byte, 10), &r); err != flow.ErrShortRecord {
		t.Error("expected ErrShortRecord, got", err)
	}
	if err := flow.V5.Encode(&r, make([]byte, 10)); err != flow.ErrShortRecord {
		t.Error("expected ErrShortRecord, got", err)
	}
}
