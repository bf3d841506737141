// The flowcsv command converts flow files to CSV for spreadsheet or
// ad-hoc analysis. Reads the files named on the command line, or
// standard input, and writes CSV to standard output.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/flow-report/flow"
	"github.com/m-lab/flow-report/flowio"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

// csvRecord flattens a flow record for gocsv.
type csvRecord struct {
	SrcAddr   string `csv:"srcaddr"`
	DstAddr   string `csv:"dstaddr"`
	NextHop   string `csv:"nexthop"`
	ExAddr    string `csv:"exaddr"`
	Input     uint16 `csv:"input"`
	Output    uint16 `csv:"output"`
	SrcPort   uint16 `csv:"srcport"`
	DstPort   uint16 `csv:"dstport"`
	SrcAS     uint16 `csv:"src_as"`
	DstAS     uint16 `csv:"dst_as"`
	Prot      uint8  `csv:"prot"`
	TOS       uint8  `csv:"tos"`
	TCPFlags  uint8  `csv:"tcp_flags"`
	SrcMask   uint8  `csv:"src_mask"`
	DstMask   uint8  `csv:"dst_mask"`
	Packets   uint64 `csv:"dPkts"`
	Octets    uint64 `csv:"dOctets"`
	Flows     uint64 `csv:"dFlows"`
	First     uint32 `csv:"first"`
	Last      uint32 `csv:"last"`
	UnixSecs  uint32 `csv:"unix_secs"`
	UnixNsecs uint32 `csv:"unix_nsecs"`
	SrcTag    uint32 `csv:"src_tag"`
	DstTag    uint32 `csv:"dst_tag"`
}

func ipString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func convert(r *flow.Record) *csvRecord {
	return &csvRecord{
		SrcAddr: ipString(r.SrcAddr), DstAddr: ipString(r.DstAddr),
		NextHop: ipString(r.NextHop), ExAddr: ipString(r.ExAddr),
		Input: r.Input, Output: r.Output,
		SrcPort: r.SrcPort, DstPort: r.DstPort,
		SrcAS: r.SrcAS, DstAS: r.DstAS,
		Prot: r.Prot, TOS: r.TOS, TCPFlags: r.TCPFlags,
		SrcMask: r.SrcMask, DstMask: r.DstMask,
		Packets: r.Packets, Octets: r.Octets, Flows: r.Flows,
		First: r.First, Last: r.Last,
		UnixSecs: r.UnixSecs, UnixNsecs: r.UnixNsecs,
		SrcTag: r.SrcTag, DstTag: r.DstTag,
	}
}

func readAll(fname string) []*csvRecord {
	rc, err := flowio.Open(fname)
	rtx.Must(err, "Could not open %s", fname)
	defer rc.Close()

	rdr, err := flowio.NewReader(rc)
	rtx.Must(err, "Could not read flow header from %s", fname)

	var out []*csvRecord
	var rec flow.Record
	for {
		err := rdr.Read(&rec)
		if err == io.EOF {
			return out
		}
		rtx.Must(err, "Could not read flow record from %s", fname)
		out = append(out, convert(&rec))
	}
}

func main() {
	files := os.Args[1:]
	if len(files) == 0 {
		files = []string{"-"}
	}
	var all []*csvRecord
	for _, fname := range files {
		all = append(all, readAll(fname)...)
	}
	rtx.Must(gocsv.Marshal(all, os.Stdout), "Could not marshal CSV")
}
