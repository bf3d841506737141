package policy

import (
	"net"
	"strconv"

	"github.com/yl2chen/cidranger"

	"github.com/m-lab/flow-report/flow"
)

// TagDef is one named tag policy: prefix -> 32-bit tag, longest match
// wins, applied to both endpoints independently.
type TagDef struct {
	Name   string
	ranger cidranger.Ranger
}

type tagEntry struct {
	network net.IPNet
	tag     uint32
}

func (e *tagEntry) Network() net.IPNet {
	return e.network
}

// Apply rewrites src_tag/dst_tag from the endpoint addresses. The
// record must already carry tag fields; the engine upcasts first.
func (d *TagDef) Apply(r *flow.Record) {
	if r.XFields.Has(flow.SrcAddr.Bit()) {
		if e := lpm(d.ranger, r.SrcAddr); e != nil {
			r.SrcTag = e.(*tagEntry).tag
		}
	}
	if r.XFields.Has(flow.DstAddr.Bit()) {
		if e := lpm(d.ranger, r.DstAddr); e != nil {
			r.DstTag = e.(*tagEntry).tag
		}
	}
}

// TagSet is the tag policies loaded from one file.
type TagSet struct {
	defs map[string]*TagDef
}

// Find returns the named definition.
func (s *TagSet) Find(name string) (*TagDef, error) {
	if d, ok := s.defs[name]; ok {
		return d, nil
	}
	return nil, ErrNotFound
}

// LoadTags reads tag definitions from fname:
//
//	tag-definition <name>
//	 prefix <cidr> <tag>
//
// Tags parse as decimal or 0x hex.
func LoadTags(fname string) (*TagSet, error) {
	s := &TagSet{defs: make(map[string]*TagDef)}
	var cur *TagDef

	err := eachLine(fname, func(lp *lineParser, words []string) error {
		switch words[0] {
		case "tag-definition":
			if len(words) != 2 {
				return lp.errorf("expecting name")
			}
			if _, dup := s.defs[words[1]]; dup {
				return lp.errorf("name (%s) previously defined", words[1])
			}
			cur = &TagDef{Name: words[1], ranger: cidranger.NewPCTrieRanger()}
			s.defs[cur.Name] = cur
			return nil
		case "prefix":
			if cur == nil {
				return lp.errorf("not in definition mode")
			}
			if len(words) != 3 {
				return lp.errorf("expecting prefix and tag")
			}
			_, network, err := net.ParseCIDR(words[1])
			if err != nil {
				return lp.errorf("invalid prefix %q", words[1])
			}
			tag, err := strconv.ParseUint(words[2], 0, 32)
			if err != nil {
				return lp.errorf("invalid tag %q", words[2])
			}
			return cur.ranger.Insert(&tagEntry{network: *network, tag: uint32(tag)})
		default:
			return lp.errorf("unexpected %q", words[0])
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
