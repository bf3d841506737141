package stat

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/m-lab/flow-report/policy"
)

// Config is one loaded report configuration: reports, definitions,
// and the collaborator include paths.
type Config struct {
	Reports     []*Report
	Definitions []*Definition

	FilterPath string
	TagPath    string
	MaskPath   string

	// Syms are handed to every report for the names option.
	Syms *SymTables

	reportByName map[string]*Report
	defByName    map[string]*Definition

	filters *policy.FilterSet
	tags    *policy.TagSet
	masks   *policy.MaskSet
}

// Report returns the named report, or nil.
func (c *Config) Report(name string) *Report {
	return c.reportByName[name]
}

// Definition returns the named definition, or nil.
func (c *Config) Definition(name string) *Definition {
	return c.defByName[name]
}

// pstate tracks which block the parser is inside.
type pstate uint8

const (
	stTop pstate = 1 << iota
	stReport
	stOutput
	stDefinition
)

const stAny = stTop | stReport | stOutput | stDefinition

type loader struct {
	cfg    *Config
	fname  string
	lineno int
	state  pstate
	expand func(string) string

	curReport *Report
	curSink   *Sink
	curDef    *Definition
}

func (l *loader) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%s:%d: %s", l.fname, l.lineno, fmt.Sprintf(format, args...))
}

type jump struct {
	name   string
	states pstate
	fn     func(l *loader, words []string) error
}

// pjump dispatches (keyword, state) to a handler. Report-scoped
// directives accept stOutput too: seeing one implicitly closes the
// open sink block.
var pjump = []jump{
	{"stat-report", stAny, (*loader).statReport},
	{"stat-definition", stAny, (*loader).statDefinition},
	{"include-filter", stAny, (*loader).includeFilter},
	{"include-tag", stAny, (*loader).includeTag},
	{"include-mask", stAny, (*loader).includeMask},

	{"type", stReport | stOutput, (*loader).reportType},
	{"filter", stReport | stOutput, (*loader).reportFilter},
	{"scale", stReport | stOutput, (*loader).reportScale},
	{"tag-mask", stReport | stOutput, (*loader).reportTagMask},
	{"ip-source-address-format", stReport | stOutput, (*loader).reportSrcFormat},
	{"ip-destination-address-format", stReport | stOutput, (*loader).reportDstFormat},
	{"output", stReport | stOutput, (*loader).reportOutput},

	{"format", stOutput, (*loader).sinkFormat},
	{"sort", stOutput, (*loader).sinkSort},
	{"records", stOutput, (*loader).sinkRecords},
	{"tally", stOutput, (*loader).sinkTally},
	{"fields", stOutput, (*loader).sinkFields},
	{"options", stOutput, (*loader).sinkOptions},
	{"path", stOutput, (*loader).sinkPath},
	{"time", stOutput, (*loader).sinkTime},

	{"filter", stDefinition, (*loader).defFilter},
	{"tag", stDefinition, (*loader).defTag},
	{"mask", stDefinition, (*loader).defMask},
	{"time-series", stDefinition, (*loader).defTimeSeries},
	{"report", stDefinition, (*loader).defReport},
}

// LoadOption adjusts the loader.
type LoadOption func(*loader)

// WithExpander substitutes the variable expander run over each line
// before tokenization. The default expands ${name} from the
// environment.
func WithExpander(f func(string) string) LoadOption {
	return func(l *loader) { l.expand = f }
}

// WithSyms provides the symbol tables for the names option.
func WithSyms(s *SymTables) LoadOption {
	return func(l *loader) { l.cfg.Syms = s }
}

// Load parses a report configuration file and resolves all forward
// and collaborator references.
func Load(fname string, opts ...LoadOption) (*Config, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := &Config{
		reportByName: make(map[string]*Report),
		defByName:    make(map[string]*Definition),
	}
	l := &loader{
		cfg:   cfg,
		fname: fname,
		state: stTop,
		expand: func(s string) string {
			return os.Expand(s, os.Getenv)
		},
	}
	for _, o := range opts {
		o(l)
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		l.lineno++
		line := strings.TrimSpace(l.expand(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words := strings.Fields(line)
		found := false
		for i := range pjump {
			jmp := &pjump[i]
			if jmp.name == words[0] && jmp.states&l.state != 0 {
				if err := jmp.fn(l, words); err != nil {
					return nil, err
				}
				found = true
				break
			}
		}
		if !found {
			return nil, l.errorf("unexpected %q", words[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := l.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *loader) statReport(words []string) error {
	if len(words) != 2 {
		return l.errorf("expecting report name")
	}
	name := words[1]
	if _, dup := l.cfg.reportByName[name]; dup {
		return l.errorf("report %s previously defined", name)
	}
	rpt := &Report{Name: name}
	l.cfg.reportByName[name] = rpt
	l.cfg.Reports = append(l.cfg.Reports, rpt)
	l.curReport = rpt
	l.curSink = nil
	l.curDef = nil
	l.state = stReport
	return nil
}

func (l *loader) statDefinition(words []string) error {
	if len(words) != 2 {
		return l.errorf("expecting definition name")
	}
	name := words[1]
	if _, dup := l.cfg.defByName[name]; dup {
		return l.errorf("definition %s previously defined", name)
	}
	def := &Definition{Name: name}
	l.cfg.defByName[name] = def
	l.cfg.Definitions = append(l.cfg.Definitions, def)
	l.curDef = def
	l.curReport = nil
	l.curSink = nil
	l.state = stDefinition
	return nil
}

func (l *loader) includePath(words []string, dst *string) error {
	if len(words) != 2 {
		return l.errorf("expecting path")
	}
	*dst = words[1]
	return nil
}

func (l *loader) includeFilter(words []string) error {
	return l.includePath(words, &l.cfg.FilterPath)
}

func (l *loader) includeTag(words []string) error {
	return l.includePath(words, &l.cfg.TagPath)
}

func (l *loader) includeMask(words []string) error {
	return l.includePath(words, &l.cfg.MaskPath)
}

func (l *loader) reportType(words []string) error {
	l.state = stReport
	if len(words) != 2 {
		return l.errorf("expecting report type")
	}
	kind, ok := Kinds[words[1]]
	if !ok {
		return l.errorf("unknown report type %q", words[1])
	}
	l.curReport.Kind = kind
	return nil
}

func (l *loader) reportFilter(words []string) error {
	l.state = stReport
	if len(words) != 2 {
		return l.errorf("expecting filter name")
	}
	l.curReport.FilterName = words[1]
	return nil
}

func (l *loader) reportScale(words []string) error {
	l.state = stReport
	if len(words) != 2 {
		return l.errorf("expecting scale")
	}
	n, err := strconv.ParseUint(words[1], 10, 32)
	if err != nil {
		return l.errorf("invalid scale %q", words[1])
	}
	l.curReport.Scale = n
	return nil
}

func (l *loader) reportTagMask(words []string) error {
	l.state = stReport
	if len(words) != 3 {
		return l.errorf("expecting source and destination tag mask")
	}
	src, err := strconv.ParseUint(words[1], 0, 32)
	if err != nil {
		return l.errorf("invalid tag mask %q", words[1])
	}
	dst, err := strconv.ParseUint(words[2], 0, 32)
	if err != nil {
		return l.errorf("invalid tag mask %q", words[2])
	}
	l.curReport.TagMask = true
	l.curReport.TagMaskSrc = uint32(src)
	l.curReport.TagMaskDst = uint32(dst)
	return nil
}

func (l *loader) addrFormat(words []string, dst *AddrMode) error {
	l.state = stReport
	if len(words) != 2 {
		return l.errorf("expecting address format")
	}
	m, err := ParseAddrMode(words[1])
	if err != nil {
		return l.errorf("%v", err)
	}
	*dst = m
	return nil
}

func (l *loader) reportSrcFormat(words []string) error {
	return l.addrFormat(words, &l.curReport.SrcFormat)
}

func (l *loader) reportDstFormat(words []string) error {
	return l.addrFormat(words, &l.curReport.DstFormat)
}

func (l *loader) reportOutput(words []string) error {
	if l.curReport.Kind == nil {
		return l.errorf("output before type")
	}
	snk := &Sink{Fields: l.curReport.Kind.Default}
	l.curReport.Sinks = append(l.curReport.Sinks, snk)
	l.curSink = snk
	l.state = stOutput
	return nil
}

func (l *loader) sinkFormat(words []string) error {
	if len(words) != 2 {
		return l.errorf("expecting format")
	}
	switch words[1] {
	case "ascii":
		l.curSink.Format = FormatASCII
	case "binary":
		l.curSink.Format = FormatBinary
	default:
		return l.errorf("unknown format %q", words[1])
	}
	return nil
}

func (l *loader) sinkSort(words []string) error {
	if len(words) != 2 || len(words[1]) < 2 {
		return l.errorf("expecting +field or -field")
	}
	sign, name := words[1][0], words[1][1:]
	if sign != '+' && sign != '-' {
		return l.errorf("sort field must begin with + or -")
	}
	bits, err := ParseField(name)
	if err != nil {
		return l.errorf("%v", err)
	}
	if bits&(bits-1) != 0 {
		return l.errorf("cannot sort on column group %q", name)
	}
	if !fieldAllowed(bits, l.curReport.Kind) {
		return l.errorf("sort field %q not valid for type %s", name, l.curReport.Kind.Name)
	}
	l.curSink.SortKey = name
	l.curSink.SortAsc = sign == '+'
	return nil
}

func (l *loader) sinkRecords(words []string) error {
	return l.sinkUint(words, &l.curSink.Records)
}

func (l *loader) sinkTally(words []string) error {
	return l.sinkUint(words, &l.curSink.Tally)
}

func (l *loader) sinkUint(words []string, dst *uint64) error {
	if len(words) != 2 {
		return l.errorf("expecting count")
	}
	n, err := strconv.ParseUint(words[1], 10, 64)
	if err != nil {
		return l.errorf("invalid count %q", words[1])
	}
	*dst = n
	return nil
}

// signedList splits "+a,+b -c" style lists into signed names.
func signedList(words []string) ([]string, error) {
	var items []string
	for _, w := range words {
		for _, item := range strings.Split(w, ",") {
			if item == "" {
				continue
			}
			if item[0] != '+' && item[0] != '-' {
				return nil, fmt.Errorf("item %q must begin with + or -", item)
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func (l *loader) sinkFields(words []string) error {
	items, err := signedList(words[1:])
	if err != nil {
		return l.errorf("%v", err)
	}
	kind := l.curReport.Kind
	fs := l.curSink.Fields
	for _, item := range items {
		name := item[1:]
		if name == "generic" {
			if item[0] == '+' {
				fs |= kind.Default
			} else {
				fs &^= kind.Default
			}
			continue
		}
		bits, err := ParseField(name)
		if err != nil {
			return l.errorf("%v", err)
		}
		if item[0] == '+' {
			if !fieldAllowed(bits, kind) {
				return l.errorf("field %q not valid for type %s", name, kind.Name)
			}
			fs |= bits
		} else {
			fs &^= bits
		}
	}
	l.curSink.Fields = fs
	return nil
}

func (l *loader) sinkOptions(words []string) error {
	items, err := signedList(words[1:])
	if err != nil {
		return l.errorf("%v", err)
	}
	os := l.curSink.Options
	for _, item := range items {
		bits, err := ParseOption(item[1:])
		if err != nil {
			return l.errorf("%v", err)
		}
		if item[0] == '+' {
			if bits&^l.curReport.Kind.AllowedOpts != 0 {
				return l.errorf("option %q not valid for type %s", item[1:], l.curReport.Kind.Name)
			}
			os |= bits
		} else {
			os &^= bits
		}
	}
	l.curSink.Options = os
	return nil
}

func (l *loader) sinkPath(words []string) error {
	if len(words) < 2 {
		return l.errorf("expecting path")
	}
	l.curSink.Path = strings.Join(words[1:], " ")
	return nil
}

func (l *loader) sinkTime(words []string) error {
	if len(words) != 2 {
		return l.errorf("expecting time anchor")
	}
	switch words[1] {
	case "now":
		l.curSink.Time = TimeNow
	case "start":
		l.curSink.Time = TimeStart
	case "end":
		l.curSink.Time = TimeEnd
	case "mid":
		l.curSink.Time = TimeMid
	default:
		return l.errorf("unknown time anchor %q", words[1])
	}
	return nil
}

func (l *loader) defFilter(words []string) error {
	if len(words) != 2 {
		return l.errorf("expecting filter name")
	}
	l.curDef.FilterName = words[1]
	return nil
}

func (l *loader) defTag(words []string) error {
	if len(words) != 2 {
		return l.errorf("expecting tag name")
	}
	l.curDef.TagName = words[1]
	return nil
}

func (l *loader) defMask(words []string) error {
	if len(words) != 2 {
		return l.errorf("expecting mask name")
	}
	l.curDef.MaskName = words[1]
	return nil
}

func (l *loader) defTimeSeries(words []string) error {
	if len(words) != 2 {
		return l.errorf("expecting seconds")
	}
	n, err := strconv.ParseUint(words[1], 10, 32)
	if err != nil {
		return l.errorf("invalid time-series %q", words[1])
	}
	l.curDef.MaxTime = uint32(n)
	return nil
}

func (l *loader) defReport(words []string) error {
	if len(words) != 2 {
		return l.errorf("expecting report name")
	}
	l.curDef.reportNames = append(l.curDef.reportNames, words[1])
	return nil
}

func fieldAllowed(bits FieldSet, kind *Kind) bool {
	return bits&^kind.Allowed == 0
}

// Resolution errors.
var (
	ErrNoType = errors.New("report has no type")
)

// resolve runs the end-of-parse pass: forward report references,
// collaborator lookups, and per-definition required field sets.
func (l *loader) resolve() error {
	cfg := l.cfg
	for _, rpt := range cfg.Reports {
		if rpt.Kind == nil {
			return fmt.Errorf("%s: report %s: %w", l.fname, rpt.Name, ErrNoType)
		}
		rpt.Syms = cfg.Syms
		if len(rpt.Sinks) == 0 {
			rpt.Sinks = []*Sink{{Fields: rpt.Kind.Default}}
		}
		if rpt.FilterName != "" {
			f, err := l.findFilter(rpt.FilterName)
			if err != nil {
				return fmt.Errorf("%s: report %s: filter %s: %w", l.fname, rpt.Name, rpt.FilterName, err)
			}
			rpt.Filter = f
		}
	}
	for _, def := range cfg.Definitions {
		if def.FilterName != "" {
			f, err := l.findFilter(def.FilterName)
			if err != nil {
				return fmt.Errorf("%s: definition %s: filter %s: %w", l.fname, def.Name, def.FilterName, err)
			}
			def.Filter = f
		}
		if def.TagName != "" {
			if cfg.tags == nil {
				if cfg.TagPath == "" {
					return fmt.Errorf("%s: definition %s: no include-tag for %q", l.fname, def.Name, def.TagName)
				}
				t, err := policy.LoadTags(cfg.TagPath)
				if err != nil {
					return err
				}
				cfg.tags = t
			}
			t, err := cfg.tags.Find(def.TagName)
			if err != nil {
				return fmt.Errorf("%s: definition %s: tag %s: %w", l.fname, def.Name, def.TagName, err)
			}
			def.Tagger = t
		}
		if def.MaskName != "" {
			if cfg.masks == nil {
				if cfg.MaskPath == "" {
					return fmt.Errorf("%s: definition %s: no include-mask for %q", l.fname, def.Name, def.MaskName)
				}
				m, err := policy.LoadMasks(cfg.MaskPath)
				if err != nil {
					return err
				}
				cfg.masks = m
			}
			m, err := cfg.masks.Find(def.MaskName)
			if err != nil {
				return fmt.Errorf("%s: definition %s: mask %s: %w", l.fname, def.Name, def.MaskName, err)
			}
			def.Masker = m
		}
		for _, name := range def.reportNames {
			rpt, ok := cfg.reportByName[name]
			if !ok {
				return fmt.Errorf("%s: definition %s: unresolved report %q", l.fname, def.Name, name)
			}
			def.Reports = append(def.Reports, rpt)
			def.Required |= rpt.Kind.Required
		}
	}
	return nil
}

func (l *loader) findFilter(name string) (policy.Filter, error) {
	cfg := l.cfg
	if cfg.filters == nil {
		if cfg.FilterPath == "" {
			return nil, errors.New("no include-filter directive")
		}
		f, err := policy.LoadFilters(cfg.FilterPath)
		if err != nil {
			return nil, err
		}
		cfg.filters = f
	}
	return cfg.filters.Find(name)
}
