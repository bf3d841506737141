package stat

import (
	"encoding/binary"
	"errors"
	"io"
)

// Binary sinks encode rows as type/length/value triples: 16-bit type,
// 16-bit length, then the value bytes, all big-endian.

// TLV types used by binary sinks.
const (
	tlvTypeRow uint16 = 1
)

var errTLVTooLong = errors.New("tlv value exceeds 16-bit length")

func tlvPut(w io.Writer, t uint16, v []byte) error {
	if len(v) > 0xffff {
		return errTLVTooLong
	}
	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[0:2], t)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(v)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(v)
	return err
}

func tlvPutString(w io.Writer, t uint16, s string) error {
	return tlvPut(w, t, []byte(s))
}
