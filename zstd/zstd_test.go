package zstd_test

import (
	"io"
	"testing"

	"github.com/m-lab/flow-report/zstd"
)

func TestRoundTrip(t *testing.T) {
	tmpdir := t.TempDir()

	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte((i * 37) % 256)
	}

	w, err := zstd.NewWriter(tmpdir + "/test.zst")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := zstd.NewReader(tmpdir + "/test.zst")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	read := make([]byte, 20000)
	// Decompressed output may arrive across several reads.
	n, err := io.ReadAtLeast(r, read, len(data))
	if err != nil {
		t.Error(err)
	}
	if n != len(data) {
		t.Error("Wrong number of bytes", n)
	}
	for i := range data {
		if data[i] != read[i] {
			t.Fatal("Data mismatch at", i)
		}
	}
}
