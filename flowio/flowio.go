// Package flowio reads and writes flow files: a 16-byte container
// header followed by fixed-width big-endian flow records. Files whose
// name ends in .zst are transparently piped through zstd.
package flowio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/m-lab/flow-report/flow"
	"github.com/m-lab/flow-report/zstd"
)

// Container format errors.
var (
	ErrBadMagic       = errors.New("not a flow file")
	ErrBadVersion     = errors.New("unsupported flow file version")
	ErrUnknownFlowVer = errors.New("unknown flow record version")
)

var magic = [4]byte{'f', 'l', 'r', '1'}

const headerSize = 16

// Header is the flow file container header.
type Header struct {
	FlowVersion uint16
	// CaptureStart is the unix time of the first record's export.
	CaptureStart uint32
}

// Reader decodes flow records from one flow file.
type Reader struct {
	r   io.Reader
	hdr Header
	ver *flow.Version
	buf []byte
}

// NewReader reads the container header and prepares record decoding.
func NewReader(r io.Reader) (*Reader, error) {
	var raw [headerSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, err
	}
	if raw[0] != magic[0] || raw[1] != magic[1] || raw[2] != magic[2] || raw[3] != magic[3] {
		return nil, ErrBadMagic
	}
	if binary.BigEndian.Uint16(raw[4:6]) != 1 {
		return nil, ErrBadVersion
	}
	hdr := Header{
		FlowVersion:  binary.BigEndian.Uint16(raw[6:8]),
		CaptureStart: binary.BigEndian.Uint32(raw[8:12]),
	}
	ver := flow.ByID(hdr.FlowVersion)
	if ver == nil {
		return nil, ErrUnknownFlowVer
	}
	return &Reader{r: r, hdr: hdr, ver: ver, buf: make([]byte, ver.Size)}, nil
}

// Header returns the container header.
func (r *Reader) Header() Header {
	return r.hdr
}

// Version returns the record version descriptor for this file.
func (r *Reader) Version() *flow.Version {
	return r.ver
}

// Read decodes the next record into rec. It returns io.EOF cleanly at
// end of file.
func (r *Reader) Read(rec *flow.Record) error {
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return io.EOF
		}
		return err
	}
	return r.ver.Decode(r.buf, rec)
}

// HeaderPrint emits the container header block, each line prefixed
// with cc, as used by the extended report header.
func (r *Reader) HeaderPrint(w io.Writer, cc byte) error {
	start := time.Unix(int64(r.hdr.CaptureStart), 0).UTC()
	_, err := fmt.Fprintf(w, "%c\n%c mode: normal\n%c flow version: %d\n%c capture start: %s\n%c\n",
		cc, cc, cc, r.hdr.FlowVersion, cc, start.Format(time.RFC3339), cc)
	return err
}

// Writer encodes flow records into one flow file.
type Writer struct {
	w   io.Writer
	ver *flow.Version
	buf []byte
}

// NewWriter writes the container header and prepares record encoding.
func NewWriter(w io.Writer, hdr Header) (*Writer, error) {
	ver := flow.ByID(hdr.FlowVersion)
	if ver == nil {
		return nil, ErrUnknownFlowVer
	}
	var raw [headerSize]byte
	copy(raw[0:4], magic[:])
	binary.BigEndian.PutUint16(raw[4:6], 1)
	binary.BigEndian.PutUint16(raw[6:8], hdr.FlowVersion)
	binary.BigEndian.PutUint32(raw[8:12], hdr.CaptureStart)
	if _, err := w.Write(raw[:]); err != nil {
		return nil, err
	}
	return &Writer{w: w, ver: ver, buf: make([]byte, ver.Size)}, nil
}

// Write encodes one record.
func (w *Writer) Write(rec *flow.Record) error {
	if err := w.ver.Encode(rec, w.buf); err != nil {
		return err
	}
	_, err := w.w.Write(w.buf)
	return err
}

// Open opens a flow file for reading, decompressing .zst files
// through an external zstd process. "-" reads standard input.
func Open(fname string) (io.ReadCloser, error) {
	if fname == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	if strings.HasSuffix(fname, ".zst") {
		return zstd.NewReader(fname)
	}
	return os.Open(fname)
}

// Create opens a flow file for writing, compressing .zst files
// through an external zstd process. "-" writes standard output.
func Create(fname string) (io.WriteCloser, error) {
	if fname == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	if strings.HasSuffix(fname, ".zst") {
		return zstd.NewWriter(fname)
	}
	return os.Create(fname)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}
