// Package stat is the statistical report engine: report kinds and
// their aggregators, the output formatter, stat-definition runtime,
// and the configuration parser.
package stat

import (
	"fmt"
	"sort"
	"strings"
)

// FieldSet is a bitset of output columns.
type FieldSet uint32

// Output columns, in emission order. Key1 aliases Key.
const (
	FIndex FieldSet = 1 << iota
	FFirst
	FLast
	FKey
	FKey2
	FKey3
	FKey4
	FKey5
	FKey6
	FFlows
	FOctets
	FPackets
	FDuration
	FCount
	FAvgBPS
	FMinBPS
	FMaxBPS
	FAvgPPS
	FMinPPS
	FMaxPPS
	FFRecs
	FOther
)

// FBPS and FPPS select the rate column trios.
const (
	FBPS   = FAvgBPS | FMinBPS | FMaxBPS
	FPPS   = FAvgPPS | FMinPPS | FMaxPPS
	FRates = FBPS | FPPS
	FKeys  = FKey | FKey2 | FKey3 | FKey4 | FKey5 | FKey6
)

var fieldNames = map[string]FieldSet{
	"index":    FIndex,
	"first":    FFirst,
	"last":     FLast,
	"key":      FKey,
	"key1":     FKey,
	"key2":     FKey2,
	"key3":     FKey3,
	"key4":     FKey4,
	"key5":     FKey5,
	"key6":     FKey6,
	"flows":    FFlows,
	"octets":   FOctets,
	"packets":  FPackets,
	"duration": FDuration,
	"count":    FCount,
	"avg-bps":  FAvgBPS,
	"min-bps":  FMinBPS,
	"max-bps":  FMaxBPS,
	"avg-pps":  FAvgPPS,
	"min-pps":  FMinPPS,
	"max-pps":  FMaxPPS,
	"frecs":    FFRecs,
	"other":    FOther,
	// Aliases expanding to column groups.
	"bps": FBPS,
	"pps": FPPS,
}

// ParseField resolves one field name to its column bits. "generic"
// is handled by the caller (it expands to the kind's default set).
func ParseField(name string) (FieldSet, error) {
	if f, ok := fieldNames[name]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("unknown field %q", name)
}

// fieldString renders a FieldSet as +name,+name in emission order.
func fieldString(fs FieldSet) string {
	order := []struct {
		name string
		bit  FieldSet
	}{
		{"index", FIndex}, {"first", FFirst}, {"last", FLast},
		{"key", FKey}, {"key2", FKey2}, {"key3", FKey3},
		{"key4", FKey4}, {"key5", FKey5}, {"key6", FKey6},
		{"flows", FFlows}, {"octets", FOctets}, {"packets", FPackets},
		{"duration", FDuration}, {"count", FCount},
		{"avg-bps", FAvgBPS}, {"min-bps", FMinBPS}, {"max-bps", FMaxBPS},
		{"avg-pps", FAvgPPS}, {"min-pps", FMinPPS}, {"max-pps", FMaxPPS},
		{"frecs", FFRecs}, {"other", FOther},
	}
	var names []string
	for _, o := range order {
		if fs&o.bit != 0 {
			names = append(names, "+"+o.name)
		}
	}
	return strings.Join(names, ",")
}

// OptionSet is a bitset of output options.
type OptionSet uint32

// Output options.
const (
	OptPercent OptionSet = 1 << iota
	OptNames
	OptHeader
	OptXHeader
	OptTotals
)

var optionNames = map[string]OptionSet{
	"percent-total": OptPercent,
	"names":         OptNames,
	"header":        OptHeader,
	"xheader":       OptXHeader,
	"totals":        OptTotals,
}

// AllOptions is every defined option bit.
const AllOptions = OptPercent | OptNames | OptHeader | OptXHeader | OptTotals

// ParseOption resolves one option name.
func ParseOption(name string) (OptionSet, error) {
	if o, ok := optionNames[name]; ok {
		return o, nil
	}
	return 0, fmt.Errorf("unknown option %q", name)
}

func optionString(os OptionSet) string {
	var names []string
	for name, bit := range optionNames {
		if os&bit != 0 {
			names = append(names, "+"+name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, "")
}
