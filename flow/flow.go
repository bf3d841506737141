// Package flow defines the flow record consumed by the report engine,
// the bitset describing which logical fields a record carries, and the
// version descriptors that map logical fields onto byte offsets in the
// fixed-width on-disk representation.
package flow

import (
	"time"
)

// Field identifies one logical flow record field.
type Field int

// Logical fields, in on-disk order.
const (
	SrcAddr Field = iota
	DstAddr
	NextHop
	ExAddr
	Input
	Output
	SrcPort
	DstPort
	SrcAS
	DstAS
	Prot
	TOS
	TCPFlags
	SrcMask
	DstMask
	EngineType
	EngineID
	First
	Last
	SysUpTime
	UnixSecs
	UnixNsecs
	Packets
	Octets
	Flows
	SrcTag
	DstTag

	numFields
)

var fieldNames = [numFields]string{
	"srcaddr", "dstaddr", "nexthop", "exaddr",
	"input", "output", "srcport", "dstport",
	"src_as", "dst_as", "prot", "tos", "tcp_flags",
	"src_mask", "dst_mask", "engine_type", "engine_id",
	"first", "last", "sysuptime", "unix_secs", "unix_nsecs",
	"dPkts64", "dOctets64", "dFlows64", "src_tag", "dst_tag",
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return "unknown"
	}
	return fieldNames[f]
}

// Bit returns the FieldSet bit for f.
func (f Field) Bit() FieldSet {
	return 1 << uint(f)
}

// FieldSet is a bitset of logical fields.
type FieldSet uint32

// Has reports whether all bits of sub are present in fs.
func (fs FieldSet) Has(sub FieldSet) bool {
	return fs&sub == sub
}

// Record is one flow record with all logical fields in host form.
// XFields says which fields actually carry data for this record's
// version; the engine never reads a field whose bit is clear.
type Record struct {
	XFields FieldSet

	SrcAddr uint32
	DstAddr uint32
	NextHop uint32
	ExAddr  uint32

	Input  uint16
	Output uint16

	SrcPort uint16
	DstPort uint16

	SrcAS uint16
	DstAS uint16

	Prot     uint8
	TOS      uint8
	TCPFlags uint8
	SrcMask  uint8
	DstMask  uint8

	EngineType uint8
	EngineID   uint8

	// Milliseconds of device uptime at the first and last packet.
	First uint32
	Last  uint32

	// Exporter clock at export time.
	SysUpTime uint32
	UnixSecs  uint32
	UnixNsecs uint32

	Packets uint64
	Octets  uint64
	Flows   uint64

	SrcTag uint32
	DstTag uint32
}

// DurationMS returns the flow duration in milliseconds. Flows with
// Last <= First have zero duration and contribute to totals only.
func (r *Record) DurationMS() uint32 {
	if r.Last <= r.First {
		return 0
	}
	return r.Last - r.First
}

// FirstTime returns the wallclock time of the first packet.
func (r *Record) FirstTime() time.Time {
	return Wallclock(r.SysUpTime, r.UnixSecs, r.UnixNsecs, r.First)
}

// LastTime returns the wallclock time of the last packet.
func (r *Record) LastTime() time.Time {
	return Wallclock(r.SysUpTime, r.UnixSecs, r.UnixNsecs, r.Last)
}

// Wallclock converts a millisecond uptime offset to absolute time,
// given the exporter's sysUpTime/unix_secs/unix_nsecs clock sample.
func Wallclock(sysUpTime, unixSecs, unixNsecs, offsetMS uint32) time.Time {
	boot := time.Unix(int64(unixSecs), int64(unixNsecs)).
		Add(-time.Duration(sysUpTime) * time.Millisecond)
	return boot.Add(time.Duration(offsetMS) * time.Millisecond)
}

// MaskLookup maps a prefix length 0..32 to the 32-bit netmask.
var MaskLookup [33]uint32

func init() {
	for n := 1; n <= 32; n++ {
		MaskLookup[n] = uint32((uint64(1)<<uint(n) - 1) << uint(32-n))
	}
}

// AllFields is the set of every logical field.
const AllFields = FieldSet(1<<uint(numFields)) - 1
