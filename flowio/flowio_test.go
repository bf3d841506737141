package flowio_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/go-test/deep"

	"github.com/m-lab/flow-report/flow"
	"github.com/m-lab/flow-report/flowio"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := flowio.NewWriter(&buf, flowio.Header{FlowVersion: 5, CaptureStart: 1600000000})
	if err != nil {
		t.Fatal(err)
	}
	recs := []flow.Record{
		{XFields: flow.V5.XFields, SrcAddr: 0x0a010203, SrcPort: 80, Packets: 10, Octets: 1000, Flows: 1},
		{XFields: flow.V5.XFields, SrcAddr: 0x0a010204, SrcPort: 443, Packets: 2, Octets: 120, Flows: 1},
	}
	for i := range recs {
		if err := w.Write(&recs[i]); err != nil {
			t.Fatal(err)
		}
	}

	r, err := flowio.NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if r.Header().FlowVersion != 5 || r.Header().CaptureStart != 1600000000 {
		t.Error("header", r.Header())
	}
	var got flow.Record
	for i := range recs {
		if err := r.Read(&got); err != nil {
			t.Fatal(err)
		}
		if diff := deep.Equal(recs[i], got); diff != nil {
			t.Error(diff)
		}
	}
	if err := r.Read(&got); err != io.EOF {
		t.Error("expected EOF, got", err)
	}
}

func TestBadMagic(t *testing.T) {
	_, err := flowio.NewReader(bytes.NewReader(make([]byte, 32)))
	if err != flowio.ErrBadMagic {
		t.Error("expected ErrBadMagic, got", err)
	}
}

func TestUnknownFlowVersion(t *testing.T) {
	var buf bytes.Buffer
	_, err := flowio.NewWriter(&buf, flowio.Header{FlowVersion: 9})
	if err != flowio.ErrUnknownFlowVer {
		t.Error("expected ErrUnknownFlowVer, got", err)
	}
}

func TestHeaderPrint(t *testing.T) {
	var buf bytes.Buffer
	w, err := flowio.NewWriter(&buf, flowio.Header{FlowVersion: 1005, CaptureStart: 1600000000})
	if err != nil {
		t.Fatal(err)
	}
	_ = w

	r, err := flowio.NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	var out strings.Builder
	if err := r.HeaderPrint(&out, '#'); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	if !strings.Contains(s, "# flow version: 1005") {
		t.Error("missing flow version line:\n", s)
	}
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if !strings.HasPrefix(line, "#") {
			t.Error("uncommented header line:", line)
		}
	}
}
