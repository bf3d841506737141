package flow

import (
	"encoding/binary"
	"errors"
)

// Absent marks a field the version does not carry.
const Absent = -1

// ErrShortRecord is returned when a buffer is smaller than the
// version's record size.
var ErrShortRecord = errors.New("flow record buffer too short")

// Version describes one fixed-width record layout: which logical
// fields are present and at what byte offset. All multi-byte fields
// are big-endian on disk.
type Version struct {
	ID      uint16
	Size    int
	XFields FieldSet

	offsets [numFields]int
}

// Offset returns the byte offset of f, or Absent.
func (v *Version) Offset(f Field) int {
	return v.offsets[f]
}

// Has reports whether the version carries field f.
func (v *Version) Has(f Field) bool {
	return v.offsets[f] != Absent
}

// Uint8 reads an 8-bit field from rec.
func (v *Version) Uint8(rec []byte, f Field) uint8 {
	return rec[v.offsets[f]]
}

// Uint16 reads a 16-bit field from rec.
func (v *Version) Uint16(rec []byte, f Field) uint16 {
	o := v.offsets[f]
	return binary.BigEndian.Uint16(rec[o : o+2])
}

// Uint32 reads a 32-bit field from rec.
func (v *Version) Uint32(rec []byte, f Field) uint32 {
	o := v.offsets[f]
	return binary.BigEndian.Uint32(rec[o : o+4])
}

// Uint64 reads a 64-bit field from rec.
func (v *Version) Uint64(rec []byte, f Field) uint64 {
	o := v.offsets[f]
	return binary.BigEndian.Uint64(rec[o : o+8])
}

// Decode parses one on-disk record into r. Fields the version does
// not carry are left zero, except Flows which defaults to 1.
func (v *Version) Decode(rec []byte, r *Record) error {
	if len(rec) < v.Size {
		return ErrShortRecord
	}
	*r = Record{XFields: v.XFields}
	r.SrcAddr = v.Uint32(rec, SrcAddr)
	r.DstAddr = v.Uint32(rec, DstAddr)
	r.NextHop = v.Uint32(rec, NextHop)
	r.ExAddr = v.Uint32(rec, ExAddr)
	r.Input = v.Uint16(rec, Input)
	r.Output = v.Uint16(rec, Output)
	r.SrcPort = v.Uint16(rec, SrcPort)
	r.DstPort = v.Uint16(rec, DstPort)
	r.SrcAS = v.Uint16(rec, SrcAS)
	r.DstAS = v.Uint16(rec, DstAS)
	r.Prot = v.Uint8(rec, Prot)
	r.TOS = v.Uint8(rec, TOS)
	r.TCPFlags = v.Uint8(rec, TCPFlags)
	r.SrcMask = v.Uint8(rec, SrcMask)
	r.DstMask = v.Uint8(rec, DstMask)
	r.EngineType = v.Uint8(rec, EngineType)
	r.EngineID = v.Uint8(rec, EngineID)
	r.First = v.Uint32(rec, First)
	r.Last = v.Uint32(rec, Last)
	r.SysUpTime = v.Uint32(rec, SysUpTime)
	r.UnixSecs = v.Uint32(rec, UnixSecs)
	r.UnixNsecs = v.Uint32(rec, UnixNsecs)
	r.Packets = v.Uint64(rec, Packets)
	r.Octets = v.Uint64(rec, Octets)
	if v.Has(Flows) {
		r.Flows = v.Uint64(rec, Flows)
	} else {
		r.Flows = 1
	}
	if v.Has(SrcTag) {
		r.SrcTag = v.Uint32(rec, SrcTag)
		r.DstTag = v.Uint32(rec, DstTag)
	}
	return nil
}

// Encode writes r into rec in this version's layout. Fields the
// version does not carry are dropped.
func (v *Version) Encode(r *Record, rec []byte) error {
	if len(rec) < v.Size {
		return ErrShortRecord
	}
	be := binary.BigEndian
	put32 := func(f Field, x uint32) {
		if o := v.offsets[f]; o != Absent {
			be.PutUint32(rec[o:o+4], x)
		}
	}
	put16 := func(f Field, x uint16) {
		if o := v.offsets[f]; o != Absent {
			be.PutUint16(rec[o:o+2], x)
		}
	}
	put8 := func(f Field, x uint8) {
		if o := v.offsets[f]; o != Absent {
			rec[o] = x
		}
	}
	put64 := func(f Field, x uint64) {
		if o := v.offsets[f]; o != Absent {
			be.PutUint64(rec[o:o+8], x)
		}
	}
	put32(SrcAddr, r.SrcAddr)
	put32(DstAddr, r.DstAddr)
	put32(NextHop, r.NextHop)
	put32(ExAddr, r.ExAddr)
	put16(Input, r.Input)
	put16(Output, r.Output)
	put16(SrcPort, r.SrcPort)
	put16(DstPort, r.DstPort)
	put16(SrcAS, r.SrcAS)
	put16(DstAS, r.DstAS)
	put8(Prot, r.Prot)
	put8(TOS, r.TOS)
	put8(TCPFlags, r.TCPFlags)
	put8(SrcMask, r.SrcMask)
	put8(DstMask, r.DstMask)
	put8(EngineType, r.EngineType)
	put8(EngineID, r.EngineID)
	put32(First, r.First)
	put32(Last, r.Last)
	put32(SysUpTime, r.SysUpTime)
	put32(UnixSecs, r.UnixSecs)
	put32(UnixNsecs, r.UnixNsecs)
	put64(Packets, r.Packets)
	put64(Octets, r.Octets)
	put64(Flows, r.Flows)
	put32(SrcTag, r.SrcTag)
	put32(DstTag, r.DstTag)
	return nil
}

func mkVersion(id uint16, size int, layout map[Field]int) *Version {
	v := &Version{ID: id, Size: size}
	for i := range v.offsets {
		v.offsets[i] = Absent
	}
	for f, o := range layout {
		v.offsets[f] = o
		v.XFields |= f.Bit()
	}
	return v
}

var v5Layout = map[Field]int{
	SrcAddr: 0, DstAddr: 4, NextHop: 8, ExAddr: 12,
	Input: 16, Output: 18, SrcPort: 20, DstPort: 22,
	SrcAS: 24, DstAS: 26,
	Prot: 28, TOS: 29, TCPFlags: 30, SrcMask: 31, DstMask: 32,
	EngineType: 33, EngineID: 34,
	First: 36, Last: 40, SysUpTime: 44, UnixSecs: 48, UnixNsecs: 52,
	Packets: 56, Octets: 64, Flows: 72,
}

func v1005Layout() map[Field]int {
	m := make(map[Field]int, len(v5Layout)+2)
	for f, o := range v5Layout {
		m[f] = o
	}
	m[SrcTag] = 80
	m[DstTag] = 84
	return m
}

// V5 is the tagless record layout.
var V5 = mkVersion(5, 80, v5Layout)

// V1005 extends V5 with the operator-assigned source and destination
// tags. Definitions that apply a tag policy upcast records to V1005.
var V1005 = mkVersion(1005, 88, v1005Layout())

// ByID returns the version descriptor for id, or nil.
func ByID(id uint16) *Version {
	switch id {
	case 5:
		return V5
	case 1005:
		return V1005
	default:
		return nil
	}
}

// Upcast widens r to V1005 so the tag fields become writable. Existing
// tag values are preserved if already present.
func Upcast(r *Record) {
	r.XFields |= SrcTag.Bit() | DstTag.Bit()
}
