package policy

import (
	"errors"
	"net"
	"strconv"

	"github.com/yl2chen/cidranger"

	"github.com/m-lab/flow-report/flow"
)

// ErrNotFound is returned when a named definition does not exist.
var ErrNotFound = errors.New("definition not found")

// MaskDef is one named mask policy: prefix -> replacement mask
// length, longest match wins.
type MaskDef struct {
	Name   string
	ranger cidranger.Ranger
}

type maskEntry struct {
	network net.IPNet
	newMask uint8
}

func (e *maskEntry) Network() net.IPNet {
	return e.network
}

func ipv4(addr uint32) net.IP {
	return net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr)).To4()
}

// lpm returns the longest containing entry for addr, or nil.
func lpm(r cidranger.Ranger, addr uint32) cidranger.RangerEntry {
	entries, err := r.ContainingNetworks(ipv4(addr))
	if err != nil || len(entries) == 0 {
		return nil
	}
	best := entries[0]
	bestLen, _ := best.Network().Mask.Size()
	for _, e := range entries[1:] {
		n, _ := e.Network().Mask.Size()
		if n > bestLen {
			best, bestLen = e, n
		}
	}
	return best
}

// Apply overwrites src_mask/dst_mask for addresses covered by the
// definition. Fields the record does not carry are left alone.
func (d *MaskDef) Apply(r *flow.Record) {
	if r.XFields.Has(flow.SrcAddr.Bit() | flow.SrcMask.Bit()) {
		if e := lpm(d.ranger, r.SrcAddr); e != nil {
			r.SrcMask = e.(*maskEntry).newMask
		}
	}
	if r.XFields.Has(flow.DstAddr.Bit() | flow.DstMask.Bit()) {
		if e := lpm(d.ranger, r.DstAddr); e != nil {
			r.DstMask = e.(*maskEntry).newMask
		}
	}
}

// MaskSet is the mask policies loaded from one file.
type MaskSet struct {
	defs map[string]*MaskDef
}

// Find returns the named definition.
func (s *MaskSet) Find(name string) (*MaskDef, error) {
	if d, ok := s.defs[name]; ok {
		return d, nil
	}
	return nil, ErrNotFound
}

// LoadMasks reads mask definitions from fname:
//
//	mask-definition <name>
//	 prefix <cidr> <new-mask-len>
func LoadMasks(fname string) (*MaskSet, error) {
	s := &MaskSet{defs: make(map[string]*MaskDef)}
	var cur *MaskDef

	err := eachLine(fname, func(lp *lineParser, words []string) error {
		switch words[0] {
		case "mask-definition":
			if len(words) != 2 {
				return lp.errorf("expecting name")
			}
			if _, dup := s.defs[words[1]]; dup {
				return lp.errorf("name (%s) previously defined", words[1])
			}
			cur = &MaskDef{Name: words[1], ranger: cidranger.NewPCTrieRanger()}
			s.defs[cur.Name] = cur
			return nil
		case "prefix":
			if cur == nil {
				return lp.errorf("not in definition mode")
			}
			if len(words) != 3 {
				return lp.errorf("expecting prefix and mask")
			}
			_, network, err := net.ParseCIDR(words[1])
			if err != nil {
				return lp.errorf("invalid prefix %q", words[1])
			}
			n, err := strconv.ParseUint(words[2], 10, 8)
			if err != nil || n > 32 {
				return lp.errorf("invalid mask %q", words[2])
			}
			return cur.ranger.Insert(&maskEntry{network: *network, newMask: uint8(n)})
		default:
			return lp.errorf("unexpected %q", words[0])
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
