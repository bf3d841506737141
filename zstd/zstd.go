// Package zstd shells out to an external zstd process to compress
// and decompress flow files. Flow archives are large and append-only;
// delegating compression keeps the report engine single-threaded and
// synchronous.
package zstd

import (
	"io"
	"os"
	"os/exec"
)

// Variables to allow whitebox mocking for testing error conditions.
var (
	osPipe      = os.Pipe
	zstdCommand = "zstd"
)

// NewReader returns a reader piped to an external zstd process
// decompressing filename. A decompression failure surfaces as a
// short read on the returned pipe.
func NewReader(filename string) (io.ReadCloser, error) {
	// Catch missing files here rather than as a mid-stream zstd
	// failure.
	if _, err := os.Stat(filename); err != nil {
		return nil, err
	}
	pipeR, pipeW, err := osPipe()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(zstdCommand, "-d", "-c", filename)
	cmd.Stdout = pipeW
	if err := cmd.Start(); err != nil {
		pipeR.Close()
		pipeW.Close()
		return nil, err
	}
	go func() {
		// The exit status is unobservable by the reader; EOF on the
		// pipe is the signal either way.
		cmd.Wait()
		pipeW.Close()
	}()
	return pipeR, nil
}

// procWriteCloser is the write end of a zstd pipeline. Close waits
// for the process and reports its exit status, so a failed
// compression does not pass silently.
type procWriteCloser struct {
	io.WriteCloser
	done chan error
}

func (w *procWriteCloser) Close() error {
	err := w.WriteCloser.Close()
	if w.done != nil {
		werr := <-w.done
		w.done = nil
		if err == nil {
			err = werr
		}
	}
	return err
}

// NewWriter returns a writer piped to an external zstd process
// writing to filename. Close flushes, waits for the process to
// finish writing to disk, and returns its exit error if any.
func NewWriter(filename string) (io.WriteCloser, error) {
	pipeR, pipeW, err := osPipe()
	if err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		pipeR.Close()
		pipeW.Close()
		return nil, err
	}
	cmd := exec.Command(zstdCommand)
	cmd.Stdin = pipeR
	cmd.Stdout = f

	done := make(chan error, 1)
	go func() {
		err := cmd.Run()
		pipeR.Close()
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		done <- err
	}()
	return &procWriteCloser{pipeW, done}, nil
}
