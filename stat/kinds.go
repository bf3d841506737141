package stat

import (
	"strconv"

	"github.com/m-lab/flow-report/flow"
	"github.com/m-lab/flow-report/sym"
)

// mix32 is the key mixer for single-word hash keys.
func mix32(v uint32) uint32 {
	v ^= v >> 16
	return v
}

func ipString(v uint32) string {
	var b []byte
	b = strconv.AppendUint(b, uint64(v>>24), 10)
	b = append(b, '.')
	b = strconv.AppendUint(b, uint64(v>>16&0xff), 10)
	b = append(b, '.')
	b = strconv.AppendUint(b, uint64(v>>8&0xff), 10)
	b = append(b, '.')
	b = strconv.AppendUint(b, uint64(v&0xff), 10)
	return string(b)
}

// symSel names the symbol table a key part can be rendered from.
type symSel int

// Symbol table selectors.
const (
	symNone symSel = iota
	symPort
	symProto
	symASN
	symTag
)

// SymTables holds the loaded symbol tables consumed by the names
// output option. Any table may be nil.
type SymTables struct {
	Ports     *sym.Table
	Protocols *sym.Table
	ASNs      *sym.Table
	Tags      *sym.Table
}

func (s *SymTables) table(sel symSel) *sym.Table {
	if s == nil {
		return nil
	}
	switch sel {
	case symPort:
		return s.Ports
	case symProto:
		return s.Protocols
	case symASN:
		return s.ASNs
	case symTag:
		return s.Tags
	}
	return nil
}

type partFmt int

const (
	pfInt partFmt = iota
	pfAddr      // endpoint address, display-mode aware
	pfAddrPlain // address with no prefix modes (next-hop, exporter)
	pfAddrType  // unicast/multicast
)

// partDesc describes one key part: where it sits in the Key, how to
// extract it from a flow, and how to render it.
type partDesc struct {
	label    string
	slot     int
	fmt      partFmt
	sym      symSel
	src      bool // address parts: src or dst display format
	maskSlot int  // address parts: which Masks slot
	get      func(r *flow.Record) uint32
	getMask  func(r *flow.Record) uint8
}

func intPart(label string, slot int, s symSel, get func(r *flow.Record) uint32) partDesc {
	return partDesc{label: label, slot: slot, fmt: pfInt, sym: s, get: get}
}

func plainAddrPart(label string, slot int, get func(r *flow.Record) uint32) partDesc {
	return partDesc{label: label, slot: slot, fmt: pfAddrPlain, get: get}
}

func srcAddrPart(slot, maskSlot int) partDesc {
	return partDesc{
		label: "ip-source-address", slot: slot, fmt: pfAddr, src: true, maskSlot: maskSlot,
		get:     func(r *flow.Record) uint32 { return r.SrcAddr },
		getMask: func(r *flow.Record) uint8 { return r.SrcMask },
	}
}

func dstAddrPart(slot, maskSlot int) partDesc {
	return partDesc{
		label: "ip-destination-address", slot: slot, fmt: pfAddr, maskSlot: maskSlot,
		get:     func(r *flow.Record) uint32 { return r.DstAddr },
		getMask: func(r *flow.Record) uint8 { return r.DstMask },
	}
}

// Common field getters.
func getSrcPort(r *flow.Record) uint32 { return uint32(r.SrcPort) }
func getDstPort(r *flow.Record) uint32 { return uint32(r.DstPort) }
func getProt(r *flow.Record) uint32    { return uint32(r.Prot) }
func getTOS(r *flow.Record) uint32     { return uint32(r.TOS) }
func getInput(r *flow.Record) uint32   { return uint32(r.Input) }
func getOutput(r *flow.Record) uint32  { return uint32(r.Output) }
func getSrcAS(r *flow.Record) uint32   { return uint32(r.SrcAS) }
func getDstAS(r *flow.Record) uint32   { return uint32(r.DstAS) }
func getSrcTag(r *flow.Record) uint32  { return r.SrcTag }
func getDstTag(r *flow.Record) uint32  { return r.DstTag }

// partsExtract builds the generic single-key extractor from parts.
func partsExtract(parts []partDesc) extractFn {
	return func(r *flow.Record, rpt *Report, out *[2]keyExt) int {
		ke := &out[0]
		*ke = keyExt{}
		for i := range parts {
			p := &parts[i]
			v := p.get(r)
			if p.fmt == pfAddr {
				m := p.getMask(r)
				mode := rpt.SrcFormat
				if !p.src {
					mode = rpt.DstFormat
				}
				switch mode {
				case AddrPrefixLen:
					ke.disp[p.maskSlot] = m
				case AddrPrefixMask:
					v &= flow.MaskLookup[m]
					ke.key.M[p.maskSlot] = m
					ke.disp[p.maskSlot] = m
				}
			}
			ke.key.A[p.slot] = v
		}
		return 1
	}
}

// Kind is one report kind: key schema, storage backend, allowed
// columns, and the aggregator constructor.
type Kind struct {
	Name        string
	Required    flow.FieldSet
	Allowed     FieldSet
	AllowedOpts OptionSet
	Default     FieldSet

	parts  []partDesc
	newAgg func(rpt *Report) aggregator
}

// formatKey renders a hash entry's key parts for output.
func (k *Kind) formatKey(rpt *Report, snk *Sink, key *Key, e *Entry) []string {
	out := make([]string, len(k.parts))
	for i := range k.parts {
		p := &k.parts[i]
		out[i] = k.formatPart(rpt, snk, p, key.A[p.slot], e)
	}
	return out
}

// formatBucket renders a bucket index as the single key column.
func (k *Kind) formatBucket(rpt *Report, snk *Sink, i int) []string {
	return []string{k.formatPart(rpt, snk, &k.parts[0], uint32(i), nil)}
}

func (k *Kind) formatPart(rpt *Report, snk *Sink, p *partDesc, v uint32, e *Entry) string {
	switch p.fmt {
	case pfAddr:
		mode := rpt.SrcFormat
		if !p.src {
			mode = rpt.DstFormat
		}
		s := ipString(v)
		if mode != AddrAddress && e != nil {
			s += "/" + strconv.Itoa(int(e.Masks[p.maskSlot]))
		}
		return s
	case pfAddrPlain:
		return ipString(v)
	case pfAddrType:
		if v == 1 {
			return "multicast"
		}
		return "unicast"
	default:
		if snk.Options&OptNames != 0 {
			if t := rpt.Syms.table(p.sym); t != nil {
				return t.Format(v)
			}
		}
		return strconv.FormatUint(uint64(v), 10)
	}
}

// baseRequired are the flow fields every kind consumes.
var baseRequired = flow.Packets.Bit() | flow.Octets.Bit() | flow.Flows.Bit() |
	flow.First.Bit() | flow.Last.Bit() |
	flow.SysUpTime.Bit() | flow.UnixSecs.Bit() | flow.UnixNsecs.Bit()

func keyBits(n int) FieldSet {
	fs := FieldSet(0)
	bits := []FieldSet{FKey, FKey2, FKey3, FKey4, FKey5, FKey6}
	for i := 0; i < n && i < len(bits); i++ {
		fs |= bits[i]
	}
	return fs
}

func optsFor(parts []partDesc) OptionSet {
	opts := OptPercent | OptHeader | OptXHeader | OptTotals
	for i := range parts {
		if parts[i].sym != symNone {
			opts |= OptNames
		}
	}
	return opts
}

func hashKind(name string, required flow.FieldSet, parts ...partDesc) *Kind {
	k := &Kind{
		Name:        name,
		Required:    baseRequired | required,
		Allowed:     FIndex | FFirst | FLast | keyBits(len(parts)) | FFlows | FOctets | FPackets | FDuration | FRates | FFRecs,
		AllowedOpts: optsFor(parts),
		Default:     keyBits(len(parts)) | FFlows | FOctets | FPackets | FDuration,
		parts:       parts,
	}
	k.newAgg = func(rpt *Report) aggregator { return newHashAgg(partsExtract(k.parts)) }
	return k
}

func bucketKind(name string, required flow.FieldSet, n int, part partDesc,
	idx func(r *flow.Record, out *[2]int) int) *Kind {
	k := &Kind{
		Name:        name,
		Required:    baseRequired | required,
		Allowed:     FIndex | FKey | FFlows | FOctets | FPackets | FDuration | FRates | FFRecs,
		AllowedOpts: optsFor([]partDesc{part}),
		Default:     FKey | FFlows | FOctets | FPackets | FDuration,
		parts:       []partDesc{part},
	}
	k.newAgg = func(rpt *Report) aggregator { return newBucketAgg(n, idx) }
	return k
}

func oneIdx(f func(r *flow.Record) int) func(r *flow.Record, out *[2]int) int {
	return func(r *flow.Record, out *[2]int) int {
		out[0] = f(r)
		return 1
	}
}

func distinctKind(name string, bySource bool) *Kind {
	label := "ip-source-address"
	req := flow.SrcAddr.Bit() | flow.DstAddr.Bit()
	if !bySource {
		label = "ip-destination-address"
	}
	k := &Kind{
		Name:        name,
		Required:    baseRequired | req,
		Allowed:     FIndex | FKey | FFlows | FOctets | FPackets | FDuration | FCount,
		AllowedOpts: OptPercent | OptHeader | OptXHeader | OptTotals,
		Default:     FKey | FFlows | FOctets | FPackets | FDuration | FCount,
		parts:       []partDesc{plainAddrPart(label, 0, nil)},
	}
	k.newAgg = func(rpt *Report) aggregator { return newDistinctAgg(bySource) }
	return k
}

// dstAddrType maps a destination address to the unicast/multicast
// bucket index.
func dstAddrType(r *flow.Record) int {
	if r.DstAddr>>28 == 0xe {
		return 1
	}
	return 0
}

func packetSizeIdx(r *flow.Record) int {
	if r.Packets == 0 {
		return 0
	}
	n := r.Octets / r.Packets
	if n > 65535 {
		n = 65535
	}
	return int(n)
}

func boundedIdx(get func(r *flow.Record) uint32, n int) func(r *flow.Record) int {
	return func(r *flow.Record) int {
		v := get(r)
		if int(v) >= n {
			v = uint32(n - 1)
		}
		return int(v)
	}
}

func clamp32(v uint64) uint32 {
	if v > 0xffffffff {
		return 0xffffffff
	}
	return uint32(v)
}

// kindList is the full report kind table. Each entry collapses one of
// the per-report accumulate/dump function families into a descriptor.
var kindList = []*Kind{
	// Dense bucket kinds.
	bucketKind("ip-source-port", flow.SrcPort.Bit(), 65536,
		intPart("ip-source-port", 0, symPort, getSrcPort),
		oneIdx(func(r *flow.Record) int { return int(r.SrcPort) })),
	bucketKind("ip-destination-port", flow.DstPort.Bit(), 65536,
		intPart("ip-destination-port", 0, symPort, getDstPort),
		oneIdx(func(r *flow.Record) int { return int(r.DstPort) })),
	bucketKind("ip-protocol", flow.Prot.Bit(), 256,
		intPart("ip-protocol", 0, symProto, getProt),
		oneIdx(func(r *flow.Record) int { return int(r.Prot) })),
	bucketKind("ip-tos", flow.TOS.Bit(), 256,
		intPart("ip-tos", 0, symNone, getTOS),
		oneIdx(func(r *flow.Record) int { return int(r.TOS) })),
	bucketKind("input-interface", flow.Input.Bit(), 65536,
		intPart("input-interface", 0, symNone, getInput),
		oneIdx(func(r *flow.Record) int { return int(r.Input) })),
	bucketKind("output-interface", flow.Output.Bit(), 65536,
		intPart("output-interface", 0, symNone, getOutput),
		oneIdx(func(r *flow.Record) int { return int(r.Output) })),
	bucketKind("engine-id", flow.EngineID.Bit(), 256,
		intPart("engine-id", 0, symNone, func(r *flow.Record) uint32 { return uint32(r.EngineID) }),
		oneIdx(func(r *flow.Record) int { return int(r.EngineID) })),
	bucketKind("engine-type", flow.EngineType.Bit(), 256,
		intPart("engine-type", 0, symNone, func(r *flow.Record) uint32 { return uint32(r.EngineType) }),
		oneIdx(func(r *flow.Record) int { return int(r.EngineType) })),
	bucketKind("source-as", flow.SrcAS.Bit(), 65536,
		intPart("source-as", 0, symASN, getSrcAS),
		oneIdx(func(r *flow.Record) int { return int(r.SrcAS) })),
	bucketKind("destination-as", flow.DstAS.Bit(), 65536,
		intPart("destination-as", 0, symASN, getDstAS),
		oneIdx(func(r *flow.Record) int { return int(r.DstAS) })),
	bucketKind("ip-destination-address-type", flow.DstAddr.Bit(), 2,
		partDesc{label: "ip-destination-address-type", slot: 0, fmt: pfAddrType},
		oneIdx(dstAddrType)),
	bucketKind("packet-size", flow.Packets.Bit()|flow.Octets.Bit(), 65536,
		intPart("packet-size", 0, symNone, func(r *flow.Record) uint32 { return uint32(packetSizeIdx(r)) }),
		oneIdx(packetSizeIdx)),
	// Both endpoint ports land in the same table.
	bucketKind("ip-port", flow.SrcPort.Bit()|flow.DstPort.Bit(), 65536,
		intPart("ip-port", 0, symPort, getSrcPort),
		func(r *flow.Record, out *[2]int) int {
			out[0] = int(r.SrcPort)
			out[1] = int(r.DstPort)
			return 2
		}),

	// Hash kinds over computed or wide scalar keys.
	hashKind("octets", 0,
		intPart("octets", 0, symNone, func(r *flow.Record) uint32 { return clamp32(r.Octets) })),
	hashKind("packets", 0,
		intPart("packets", 0, symNone, func(r *flow.Record) uint32 { return clamp32(r.Packets) })),
	hashKind("bps", 0,
		intPart("bps", 0, symNone, func(r *flow.Record) uint32 {
			d := r.DurationMS()
			if d == 0 {
				return 0
			}
			return clamp32(r.Octets * 8 * 1000 / uint64(d))
		})),
	hashKind("pps", 0,
		intPart("pps", 0, symNone, func(r *flow.Record) uint32 {
			d := r.DurationMS()
			if d == 0 {
				return 0
			}
			return clamp32(r.Packets * 1000 / uint64(d))
		})),
	hashKind("first", 0,
		intPart("first", 0, symNone, func(r *flow.Record) uint32 { return r.First })),
	hashKind("last", 0,
		intPart("last", 0, symNone, func(r *flow.Record) uint32 { return r.Last })),
	hashKind("duration", 0,
		intPart("duration", 0, symNone, func(r *flow.Record) uint32 { return r.DurationMS() })),
	hashKind("source-tag", flow.SrcTag.Bit(),
		intPart("source-tag", 0, symTag, getSrcTag)),
	hashKind("destination-tag", flow.DstTag.Bit(),
		intPart("destination-tag", 0, symTag, getDstTag)),
	hashKind("source/destination-tag", flow.SrcTag.Bit()|flow.DstTag.Bit(),
		intPart("source-tag", 0, symTag, getSrcTag),
		intPart("destination-tag", 1, symTag, getDstTag)),
	hashKind("input/output-interface", flow.Input.Bit()|flow.Output.Bit(),
		intPart("input-interface", 0, symNone, getInput),
		intPart("output-interface", 1, symNone, getOutput)),
	hashKind("ip-source/destination-port", flow.SrcPort.Bit()|flow.DstPort.Bit(),
		intPart("ip-source-port", 0, symPort, getSrcPort),
		intPart("ip-destination-port", 1, symPort, getDstPort)),
	hashKind("source/destination-as", flow.SrcAS.Bit()|flow.DstAS.Bit(),
		intPart("source-as", 0, symASN, getSrcAS),
		intPart("destination-as", 1, symASN, getDstAS)),

	// Address kinds.
	hashKind("ip-source-address", flow.SrcAddr.Bit()|flow.SrcMask.Bit(),
		srcAddrPart(0, 0)),
	hashKind("ip-destination-address", flow.DstAddr.Bit()|flow.DstMask.Bit(),
		dstAddrPart(0, 0)),
	hashKind("ip-source/destination-address",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.DstAddr.Bit()|flow.DstMask.Bit(),
		srcAddrPart(0, 0), dstAddrPart(1, 1)),
	hashKind("ip-next-hop-address", flow.NextHop.Bit(),
		plainAddrPart("ip-next-hop-address", 0, func(r *flow.Record) uint32 { return r.NextHop })),
	hashKind("ip-exporter-address", flow.ExAddr.Bit(),
		plainAddrPart("ip-exporter-address", 0, func(r *flow.Record) uint32 { return r.ExAddr })),
	ipAddressKind(),

	// Address x port.
	hashKind("ip-source-address/ip-source-port",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.SrcPort.Bit(),
		srcAddrPart(0, 0), intPart("ip-source-port", 1, symPort, getSrcPort)),
	hashKind("ip-source-address/ip-destination-port",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.DstPort.Bit(),
		srcAddrPart(0, 0), intPart("ip-destination-port", 1, symPort, getDstPort)),
	hashKind("ip-destination-address/ip-source-port",
		flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.SrcPort.Bit(),
		dstAddrPart(0, 0), intPart("ip-source-port", 1, symPort, getSrcPort)),
	hashKind("ip-destination-address/ip-destination-port",
		flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.DstPort.Bit(),
		dstAddrPart(0, 0), intPart("ip-destination-port", 1, symPort, getDstPort)),
	hashKind("ip-source-address/ip-source/destination-port",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.SrcPort.Bit()|flow.DstPort.Bit(),
		srcAddrPart(0, 0),
		intPart("ip-source-port", 1, symPort, getSrcPort),
		intPart("ip-destination-port", 2, symPort, getDstPort)),
	hashKind("ip-destination-address/ip-source/destination-port",
		flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.SrcPort.Bit()|flow.DstPort.Bit(),
		dstAddrPart(0, 0),
		intPart("ip-source-port", 1, symPort, getSrcPort),
		intPart("ip-destination-port", 2, symPort, getDstPort)),
	hashKind("ip-source/destination-address/ip-source-port",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.SrcPort.Bit(),
		srcAddrPart(0, 0), dstAddrPart(1, 1),
		intPart("ip-source-port", 2, symPort, getSrcPort)),
	hashKind("ip-source/destination-address/ip-destination-port",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.DstPort.Bit(),
		srcAddrPart(0, 0), dstAddrPart(1, 1),
		intPart("ip-destination-port", 2, symPort, getDstPort)),
	hashKind("ip-source/destination-address/ip-source/destination-port",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.SrcPort.Bit()|flow.DstPort.Bit(),
		srcAddrPart(0, 0), dstAddrPart(1, 1),
		intPart("ip-source-port", 2, symPort, getSrcPort),
		intPart("ip-destination-port", 3, symPort, getDstPort)),

	// Address x AS.
	hashKind("ip-source-address/source-as",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.SrcAS.Bit(),
		srcAddrPart(0, 0), intPart("source-as", 1, symASN, getSrcAS)),
	hashKind("ip-source-address/destination-as",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.DstAS.Bit(),
		srcAddrPart(0, 0), intPart("destination-as", 1, symASN, getDstAS)),
	hashKind("ip-destination-address/source-as",
		flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.SrcAS.Bit(),
		dstAddrPart(0, 0), intPart("source-as", 1, symASN, getSrcAS)),
	hashKind("ip-destination-address/destination-as",
		flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.DstAS.Bit(),
		dstAddrPart(0, 0), intPart("destination-as", 1, symASN, getDstAS)),
	hashKind("ip-source/destination-address/source/destination-as",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.SrcAS.Bit()|flow.DstAS.Bit(),
		srcAddrPart(0, 0), dstAddrPart(1, 1),
		intPart("source-as", 2, symASN, getSrcAS),
		intPart("destination-as", 3, symASN, getDstAS)),

	// Address x protocol / TOS.
	hashKind("ip-source-address/ip-protocol",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.Prot.Bit(),
		srcAddrPart(0, 0), intPart("ip-protocol", 1, symProto, getProt)),
	hashKind("ip-destination-address/ip-protocol",
		flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.Prot.Bit(),
		dstAddrPart(0, 0), intPart("ip-protocol", 1, symProto, getProt)),
	hashKind("ip-source/destination-address/ip-protocol",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.Prot.Bit(),
		srcAddrPart(0, 0), dstAddrPart(1, 1),
		intPart("ip-protocol", 2, symProto, getProt)),
	hashKind("ip-source-address/ip-tos",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.TOS.Bit(),
		srcAddrPart(0, 0), intPart("ip-tos", 1, symNone, getTOS)),
	hashKind("ip-destination-address/ip-tos",
		flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.TOS.Bit(),
		dstAddrPart(0, 0), intPart("ip-tos", 1, symNone, getTOS)),
	hashKind("ip-source/destination-address/ip-tos",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.TOS.Bit(),
		srcAddrPart(0, 0), dstAddrPart(1, 1),
		intPart("ip-tos", 2, symNone, getTOS)),
	hashKind("ip-source-address/ip-protocol/ip-tos",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.Prot.Bit()|flow.TOS.Bit(),
		srcAddrPart(0, 0),
		intPart("ip-protocol", 1, symProto, getProt),
		intPart("ip-tos", 2, symNone, getTOS)),
	hashKind("ip-destination-address/ip-protocol/ip-tos",
		flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.Prot.Bit()|flow.TOS.Bit(),
		dstAddrPart(0, 0),
		intPart("ip-protocol", 1, symProto, getProt),
		intPart("ip-tos", 2, symNone, getTOS)),
	hashKind("ip-source/destination-address/ip-protocol/ip-tos",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.Prot.Bit()|flow.TOS.Bit(),
		srcAddrPart(0, 0), dstAddrPart(1, 1),
		intPart("ip-protocol", 2, symProto, getProt),
		intPart("ip-tos", 3, symNone, getTOS)),

	// The full flow key.
	hashKind("ip-source/destination-address/ip-protocol/ip-tos/ip-source/destination-port",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.DstAddr.Bit()|flow.DstMask.Bit()|
			flow.Prot.Bit()|flow.TOS.Bit()|flow.SrcPort.Bit()|flow.DstPort.Bit(),
		srcAddrPart(0, 0), dstAddrPart(1, 1),
		intPart("ip-protocol", 2, symProto, getProt),
		intPart("ip-tos", 3, symNone, getTOS),
		intPart("ip-source-port", 4, symPort, getSrcPort),
		intPart("ip-destination-port", 5, symPort, getDstPort)),

	// Protocol crosses.
	hashKind("ip-protocol/ip-source-port", flow.Prot.Bit()|flow.SrcPort.Bit(),
		intPart("ip-protocol", 0, symProto, getProt),
		intPart("ip-source-port", 1, symPort, getSrcPort)),
	hashKind("ip-protocol/ip-destination-port", flow.Prot.Bit()|flow.DstPort.Bit(),
		intPart("ip-protocol", 0, symProto, getProt),
		intPart("ip-destination-port", 1, symPort, getDstPort)),
	hashKind("ip-protocol/ip-source/destination-port",
		flow.Prot.Bit()|flow.SrcPort.Bit()|flow.DstPort.Bit(),
		intPart("ip-protocol", 0, symProto, getProt),
		intPart("ip-source-port", 1, symPort, getSrcPort),
		intPart("ip-destination-port", 2, symPort, getDstPort)),
	hashKind("ip-protocol/ip-tos", flow.Prot.Bit()|flow.TOS.Bit(),
		intPart("ip-protocol", 0, symProto, getProt),
		intPart("ip-tos", 1, symNone, getTOS)),

	// Address x interface.
	hashKind("ip-source-address/input-interface",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.Input.Bit(),
		srcAddrPart(0, 0), intPart("input-interface", 1, symNone, getInput)),
	hashKind("ip-destination-address/output-interface",
		flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.Output.Bit(),
		dstAddrPart(0, 0), intPart("output-interface", 1, symNone, getOutput)),
	hashKind("ip-source/destination-address/input/output-interface",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.Input.Bit()|flow.Output.Bit(),
		srcAddrPart(0, 0), dstAddrPart(1, 1),
		intPart("input-interface", 2, symNone, getInput),
		intPart("output-interface", 3, symNone, getOutput)),

	// Address x tag.
	hashKind("ip-source-address/source-tag",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.SrcTag.Bit(),
		srcAddrPart(0, 0), intPart("source-tag", 1, symTag, getSrcTag)),
	hashKind("ip-source-address/destination-tag",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.DstTag.Bit(),
		srcAddrPart(0, 0), intPart("destination-tag", 1, symTag, getDstTag)),
	hashKind("ip-destination-address/source-tag",
		flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.SrcTag.Bit(),
		dstAddrPart(0, 0), intPart("source-tag", 1, symTag, getSrcTag)),
	hashKind("ip-destination-address/destination-tag",
		flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.DstTag.Bit(),
		dstAddrPart(0, 0), intPart("destination-tag", 1, symTag, getDstTag)),
	hashKind("ip-source/destination-address/source/destination-tag",
		flow.SrcAddr.Bit()|flow.SrcMask.Bit()|flow.DstAddr.Bit()|flow.DstMask.Bit()|flow.SrcTag.Bit()|flow.DstTag.Bit(),
		srcAddrPart(0, 0), dstAddrPart(1, 1),
		intPart("source-tag", 2, symTag, getSrcTag),
		intPart("destination-tag", 3, symTag, getDstTag)),

	// AS x interface.
	hashKind("source-as/input-interface", flow.SrcAS.Bit()|flow.Input.Bit(),
		intPart("source-as", 0, symASN, getSrcAS),
		intPart("input-interface", 1, symNone, getInput)),
	hashKind("destination-as/output-interface", flow.DstAS.Bit()|flow.Output.Bit(),
		intPart("destination-as", 0, symASN, getDstAS),
		intPart("output-interface", 1, symNone, getOutput)),

	// Exporter crosses.
	hashKind("ip-exporter-address/engine-id", flow.ExAddr.Bit()|flow.EngineID.Bit(),
		plainAddrPart("ip-exporter-address", 0, func(r *flow.Record) uint32 { return r.ExAddr }),
		intPart("engine-id", 1, symNone, func(r *flow.Record) uint32 { return uint32(r.EngineID) })),
	hashKind("ip-exporter-address/engine-type", flow.ExAddr.Bit()|flow.EngineType.Bit(),
		plainAddrPart("ip-exporter-address", 0, func(r *flow.Record) uint32 { return r.ExAddr }),
		intPart("engine-type", 1, symNone, func(r *flow.Record) uint32 { return uint32(r.EngineType) })),

	// Next-hop routing cross.
	hashKind("ip-next-hop-address/input/output-interface",
		flow.NextHop.Bit()|flow.Input.Bit()|flow.Output.Bit(),
		plainAddrPart("ip-next-hop-address", 0, func(r *flow.Record) uint32 { return r.NextHop }),
		intPart("input-interface", 1, symNone, getInput),
		intPart("output-interface", 2, symNone, getOutput)),

	// Summaries, distinct counts, interpolation.
	summaryKind("summary-detail", true),
	summaryKind("summary-counters", false),
	distinctKind("ip-source-address-destination-count", true),
	distinctKind("ip-destination-address-source-count", false),
	linearKind(),
}

func ipAddressKind() *Kind {
	// Both endpoints are inserted into the same table; the source
	// display format governs both.
	k := &Kind{
		Name:        "ip-address",
		Required:    baseRequired | flow.SrcAddr.Bit() | flow.DstAddr.Bit() | flow.SrcMask.Bit() | flow.DstMask.Bit(),
		Allowed:     FIndex | FFirst | FLast | FKey | FFlows | FOctets | FPackets | FDuration | FRates | FFRecs,
		AllowedOpts: OptPercent | OptHeader | OptXHeader | OptTotals,
		Default:     FKey | FFlows | FOctets | FPackets | FDuration,
		parts:       []partDesc{srcAddrPart(0, 0)},
	}
	k.newAgg = func(rpt *Report) aggregator {
		return newHashAgg(func(r *flow.Record, rpt *Report, out *[2]keyExt) int {
			out[0], out[1] = keyExt{}, keyExt{}
			src, dst := r.SrcAddr, r.DstAddr
			sm, dm := r.SrcMask, r.DstMask
			switch rpt.SrcFormat {
			case AddrPrefixLen:
				out[0].disp[0], out[1].disp[0] = sm, dm
			case AddrPrefixMask:
				src &= flow.MaskLookup[sm]
				dst &= flow.MaskLookup[dm]
				out[0].key.M[0], out[1].key.M[0] = sm, dm
				out[0].disp[0], out[1].disp[0] = sm, dm
			}
			out[0].key.A[0], out[1].key.A[0] = src, dst
			return 2
		})
	}
	return k
}

func summaryKind(name string, detail bool) *Kind {
	k := &Kind{
		Name:        name,
		Required:    baseRequired,
		Allowed:     FFirst | FLast | FFlows | FOctets | FPackets | FDuration | FRates | FFRecs,
		AllowedOpts: OptHeader | OptXHeader,
		Default:     FFlows | FOctets | FPackets | FDuration,
	}
	k.newAgg = func(rpt *Report) aggregator { return newSummaryAgg(detail) }
	return k
}

func linearKind() *Kind {
	k := &Kind{
		Name:        "linear-interpolated-flows-octets-packets",
		Required:    baseRequired,
		Allowed:     FIndex | FKey | FFlows | FOctets | FPackets,
		AllowedOpts: OptPercent | OptHeader | OptXHeader | OptTotals,
		Default:     FKey | FFlows | FOctets | FPackets,
		parts:       []partDesc{intPart("unix-secs", 0, symNone, nil)},
	}
	k.newAgg = func(rpt *Report) aggregator { return newLinearAgg() }
	return k
}

// Kinds maps every report kind label to its descriptor.
var Kinds = func() map[string]*Kind {
	m := make(map[string]*Kind, len(kindList))
	for _, k := range kindList {
		m[k.Name] = k
	}
	return m
}()
