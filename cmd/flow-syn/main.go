// The flow-syn command copies only TCP flows with the SYN flag set,
// a quick way to pull connection attempts out of a flow archive.
package main

import (
	"flag"
	"io"
	"log"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/flow-report/flow"
	"github.com/m-lab/flow-report/flowio"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

const (
	protoTCP = 6
	flagSYN  = 0x02
)

var output = flag.String("o", "-", "Output flow file")

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	in := "-"
	if flag.NArg() > 0 {
		in = flag.Arg(0)
	}
	rc, err := flowio.Open(in)
	rtx.Must(err, "Could not open %s", in)
	defer rc.Close()
	rdr, err := flowio.NewReader(rc)
	rtx.Must(err, "Could not read flow header from %s", in)

	wc, err := flowio.Create(*output)
	rtx.Must(err, "Could not create %s", *output)
	defer wc.Close()
	wtr, err := flowio.NewWriter(wc, rdr.Header())
	rtx.Must(err, "Could not write flow header to %s", *output)

	var rec flow.Record
	var total, syn uint64
	for {
		err := rdr.Read(&rec)
		if err == io.EOF {
			break
		}
		rtx.Must(err, "Could not read flow record from %s", in)
		total++
		if rec.Prot != protoTCP || rec.TCPFlags&flagSYN == 0 {
			continue
		}
		rtx.Must(wtr.Write(&rec), "Could not write flow record")
		syn++
	}
	log.Printf("flow-syn: %d flows read, %d SYN flows written", total, syn)
}
