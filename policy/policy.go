// Package policy implements the collaborator engines the report core
// composes with: mask policies that overwrite a flow's prefix-length
// fields, tag policies that assign operator tags to endpoints, and
// filters that permit or deny flows. Mask and tag definitions are
// longest-prefix-match lookups over a patricia trie.
package policy

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/m-lab/flow-report/flow"
)

// Mode is a filter verdict.
type Mode int

// Filter verdicts.
const (
	Permit Mode = iota
	Deny
)

// Filter decides whether a flow participates in a definition or
// report.
type Filter interface {
	Eval(r *flow.Record) Mode
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(r *flow.Record) Mode

// Eval implements Filter.
func (f FilterFunc) Eval(r *flow.Record) Mode {
	return f(r)
}

// Tagger rewrites a flow's src_tag/dst_tag fields in place. The
// caller upcasts the record to a tag-carrying version first.
type Tagger interface {
	Apply(r *flow.Record)
}

// Masker rewrites a flow's src_mask/dst_mask fields in place.
type Masker interface {
	Apply(r *flow.Record)
}

// lineParser walks a definition file: one directive per line, '#'
// comments, blank lines skipped. The first token selects the handler.
type lineParser struct {
	fname  string
	lineno int
}

func (lp *lineParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%s:%d: %s", lp.fname, lp.lineno, fmt.Sprintf(format, args...))
}

// eachLine runs fn over every meaningful line of fname.
func eachLine(fname string, fn func(lp *lineParser, words []string) error) error {
	f, err := os.Open(fname)
	if err != nil {
		return err
	}
	defer f.Close()

	lp := &lineParser{fname: fname}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lp.lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(lp, strings.Fields(line)); err != nil {
			return err
		}
	}
	return scanner.Err()
}
