package zstd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func brokenPipe() (*os.File, *os.File, error) {
	return nil, nil, errors.New("pipe error for testing")
}

func TestNewReaderErrorOnOsPipe(t *testing.T) {
	osPipe = brokenPipe
	defer func() { osPipe = os.Pipe }()

	// The input flow file must exist so the failure is the pipe's.
	path := filepath.Join(t.TempDir(), "in.flows.zst")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewReader(path); err == nil {
		t.Error("Should have had a failure when Pipe fails")
	}
}

func TestNewReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "no-such.flows.zst")); err == nil {
		t.Error("Should have had an error for a missing flow file")
	}
}

func TestNewReaderBadCommand(t *testing.T) {
	zstdCommand = "/this/binary/is/nonexistent"
	defer func() { zstdCommand = "zstd" }()

	path := filepath.Join(t.TempDir(), "in.flows.zst")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewReader(path); err == nil {
		t.Error("Should have had an error when zstd cannot start")
	}
}

func TestNewWriterErrorOnOsPipe(t *testing.T) {
	osPipe = brokenPipe
	defer func() { osPipe = os.Pipe }()

	if _, err := NewWriter("file"); err == nil {
		t.Error("Should have had a failure when Pipe fails")
	}
}

func TestNewWriterErrorOnUncreatableFile(t *testing.T) {
	if _, err := NewWriter("/this/file/is/uncreateable"); err == nil {
		t.Error("Should have had an error on an uncreateable file")
	}
}

func TestWriterCloseReportsZstdFailure(t *testing.T) {
	zstdCommand = "/this/binary/is/nonexistent"
	defer func() { zstdCommand = "zstd" }()

	wc, err := NewWriter(filepath.Join(t.TempDir(), "out.flows.zst"))
	if err != nil {
		t.Fatal(err)
	}
	if err := wc.Close(); err == nil {
		t.Error("Close should report the failed zstd process")
	}
	// A second Close must not block on the drained done channel.
	if err := wc.Close(); err == nil {
		t.Error("Closing the pipe twice is not a failure?")
	}
}
