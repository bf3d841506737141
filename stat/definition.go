package stat

import (
	"fmt"
	"time"

	"github.com/m-lab/go/logx"

	"github.com/m-lab/flow-report/flow"
	"github.com/m-lab/flow-report/metrics"
	"github.com/m-lab/flow-report/policy"
)

var rollLog = logx.NewLogEvery(nil, 10*time.Second)

// Definition is one stat-definition: a filter, tag and mask policy,
// a time-series interval, and an ordered list of reports.
type Definition struct {
	Name       string
	FilterName string
	TagName    string
	MaskName   string
	MaxTime    uint32
	Reports    []*Report

	Filter policy.Filter
	Tagger policy.Tagger
	Masker policy.Masker

	// Required is the union of the report kinds' required flow
	// fields, collected at resolve time.
	Required flow.FieldSet

	StartTime uint32
	interval  int

	// reportNames holds forward references until resolve.
	reportNames []string

	checked bool
}

// Interval returns the current time-series interval ordinal.
func (d *Definition) Interval() int {
	return d.interval
}

// Check verifies the reports' required fields against one flow
// stream's field set. Process calls it before its first flow unless
// it has already passed; a mismatch refuses the whole stream.
func (d *Definition) Check(xfields flow.FieldSet) error {
	required := d.Required
	if d.Tagger != nil {
		// The tag policy synthesizes the tag fields.
		required &^= flow.SrcTag.Bit() | flow.DstTag.Bit()
	}
	if !xfields.Has(required) {
		return fmt.Errorf("definition %s: flow stream missing required fields %#x",
			d.Name, uint32(required&^xfields))
	}
	d.checked = true
	return nil
}

// Process routes one flow through the definition: time-series
// boundary first, then mask and tag rewriting, the definition
// filter, and every report in configuration order.
func (d *Definition) Process(r *flow.Record) error {
	if !d.checked {
		if err := d.Check(r.XFields); err != nil {
			return err
		}
	}
	if d.StartTime == 0 {
		d.StartTime = r.UnixSecs
	}
	if d.MaxTime > 0 && r.UnixSecs >= d.StartTime+d.MaxTime {
		if err := d.CalcDump(); err != nil {
			return err
		}
		d.Reset(r.UnixSecs)
	}

	if d.Masker != nil {
		d.Masker.Apply(r)
	}
	if d.Tagger != nil {
		flow.Upcast(r)
		d.Tagger.Apply(r)
	}
	if d.Filter != nil && d.Filter.Eval(r) == policy.Deny {
		return nil
	}

	for _, rpt := range d.Reports {
		saveSrc, saveDst := r.SrcTag, r.DstTag
		if rpt.TagMask {
			r.SrcTag &= rpt.TagMaskSrc
			r.DstTag &= rpt.TagMaskDst
		}
		if rpt.Filter != nil && rpt.Filter.Eval(r) == policy.Deny {
			r.SrcTag, r.DstTag = saveSrc, saveDst
			continue
		}
		err := rpt.Accum(r)
		r.SrcTag, r.DstTag = saveSrc, saveDst
		if err != nil {
			return err
		}
	}
	return nil
}

// CalcDump computes derived metrics and writes every report to its
// sinks. Safe to call once more after the last flow.
func (d *Definition) CalcDump() error {
	var firstErr error
	for _, rpt := range d.Reports {
		rpt.Calc()
		if err := rpt.Dump(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Reset starts a fresh time-series interval. The triggering flow's
// export time becomes the new interval origin.
func (d *Definition) Reset(startTime uint32) {
	for _, rpt := range d.Reports {
		rpt.Reset()
	}
	d.interval++
	d.StartTime = startTime
	metrics.IntervalCount.WithLabelValues(d.Name).Inc()
	rollLog.Printf("definition %s: starting interval %d at %d", d.Name, d.interval, startTime)
}
