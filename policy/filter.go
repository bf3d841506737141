package policy

import (
	"net"
	"strconv"

	"github.com/m-lab/flow-report/flow"
)

// FilterDef is one named filter: an ordered list of permit/deny
// terms, first match wins, with a default verdict.
type FilterDef struct {
	Name    string
	Default Mode
	terms   []filterTerm
}

type filterTerm struct {
	mode  Mode
	match func(r *flow.Record) bool
}

// Eval implements Filter.
func (d *FilterDef) Eval(r *flow.Record) Mode {
	for _, t := range d.terms {
		if t.match(r) {
			return t.mode
		}
	}
	return d.Default
}

// FilterSet is the filters loaded from one file.
type FilterSet struct {
	defs map[string]*FilterDef
}

// Find returns the named definition.
func (s *FilterSet) Find(name string) (*FilterDef, error) {
	if d, ok := s.defs[name]; ok {
		return d, nil
	}
	return nil, ErrNotFound
}

func matchPrefix(cidr string, src bool) (func(r *flow.Record) bool, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	return func(r *flow.Record) bool {
		if src {
			return network.Contains(ipv4(r.SrcAddr))
		}
		return network.Contains(ipv4(r.DstAddr))
	}, nil
}

// LoadFilters reads filter definitions from fname:
//
//	filter-definition <name>
//	 permit|deny ip-protocol <n>
//	 permit|deny ip-source-port <n>
//	 permit|deny ip-destination-port <n>
//	 permit|deny ip-source-prefix <cidr>
//	 permit|deny ip-destination-prefix <cidr>
//	 permit|deny source-tag <n>
//	 permit|deny destination-tag <n>
//	 default permit|deny
//
// The default verdict when no term matches is permit.
func LoadFilters(fname string) (*FilterSet, error) {
	s := &FilterSet{defs: make(map[string]*FilterDef)}
	var cur *FilterDef

	err := eachLine(fname, func(lp *lineParser, words []string) error {
		switch words[0] {
		case "filter-definition":
			if len(words) != 2 {
				return lp.errorf("expecting name")
			}
			if _, dup := s.defs[words[1]]; dup {
				return lp.errorf("name (%s) previously defined", words[1])
			}
			cur = &FilterDef{Name: words[1], Default: Permit}
			s.defs[cur.Name] = cur
			return nil
		case "default":
			if cur == nil {
				return lp.errorf("not in definition mode")
			}
			if len(words) != 2 {
				return lp.errorf("expecting verdict")
			}
			mode, err := parseMode(words[1])
			if err != nil {
				return lp.errorf("invalid verdict %q", words[1])
			}
			cur.Default = mode
			return nil
		case "permit", "deny":
			if cur == nil {
				return lp.errorf("not in definition mode")
			}
			if len(words) != 3 {
				return lp.errorf("expecting primitive and value")
			}
			mode, _ := parseMode(words[0])
			match, err := parsePrimitive(words[1], words[2])
			if err != nil {
				return lp.errorf("%v", err)
			}
			cur.terms = append(cur.terms, filterTerm{mode: mode, match: match})
			return nil
		default:
			return lp.errorf("unexpected %q", words[0])
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func parseMode(s string) (Mode, error) {
	switch s {
	case "permit":
		return Permit, nil
	case "deny":
		return Deny, nil
	}
	return Permit, ErrNotFound
}

func parsePrimitive(prim, val string) (func(r *flow.Record) bool, error) {
	switch prim {
	case "ip-source-prefix":
		return matchPrefix(val, true)
	case "ip-destination-prefix":
		return matchPrefix(val, false)
	}
	n, err := strconv.ParseUint(val, 0, 32)
	if err != nil {
		return nil, err
	}
	switch prim {
	case "ip-protocol":
		return func(r *flow.Record) bool { return uint64(r.Prot) == n }, nil
	case "ip-source-port":
		return func(r *flow.Record) bool { return uint64(r.SrcPort) == n }, nil
	case "ip-destination-port":
		return func(r *flow.Record) bool { return uint64(r.DstPort) == n }, nil
	case "source-tag":
		return func(r *flow.Record) bool { return uint64(r.SrcTag) == n }, nil
	case "destination-tag":
		return func(r *flow.Record) bool { return uint64(r.DstTag) == n }, nil
	}
	return nil, &unknownPrimitiveError{prim}
}

type unknownPrimitiveError struct {
	prim string
}

func (e *unknownPrimitiveError) Error() string {
	return "unknown filter primitive " + strconv.Quote(e.prim)
}
