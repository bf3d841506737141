// The flow-divide command splits one flow stream into several files,
// routing each flow by its destination (or, with -s, source) address
// against per-file prefix lists.
//
// The divide specification names one output file per line, followed
// by the prefixes it receives:
//
//	peering.flows 192.0.2.0/24 198.51.100.0/24
//	transit.flows 0.0.0.0/0
//
// Longest prefix match decides the file; unmatched flows are dropped.
package main

import (
	"bufio"
	"flag"
	"io"
	"log"
	"net"
	"os"
	"strings"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"
	"github.com/yl2chen/cidranger"

	"github.com/m-lab/flow-report/flow"
	"github.com/m-lab/flow-report/flowio"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	divideFile = flag.String("f", "", "Divide specification file (required)")
	bySource   = flag.Bool("s", false, "Divide by source address instead of destination")
)

type divideEntry struct {
	network net.IPNet
	out     *flowio.Writer
}

func (e *divideEntry) Network() net.IPNet {
	return e.network
}

// loadDivide parses the divide specification and opens one writer per
// named file.
func loadDivide(fname string, hdr flowio.Header) (cidranger.Ranger, []io.Closer) {
	f, err := os.Open(fname)
	rtx.Must(err, "Could not open %s", fname)
	defer f.Close()

	ranger := cidranger.NewPCTrieRanger()
	writers := make(map[string]*flowio.Writer)
	var closers []io.Closer

	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words := strings.Fields(line)
		if len(words) < 2 {
			log.Fatalf("%s:%d: expecting filename and prefixes", fname, lineno)
		}
		w, ok := writers[words[0]]
		if !ok {
			wc, err := flowio.Create(words[0])
			rtx.Must(err, "Could not create %s", words[0])
			w, err = flowio.NewWriter(wc, hdr)
			rtx.Must(err, "Could not write flow header to %s", words[0])
			writers[words[0]] = w
			closers = append(closers, wc)
		}
		for _, p := range words[1:] {
			_, network, err := net.ParseCIDR(p)
			if err != nil {
				log.Fatalf("%s:%d: invalid prefix %q", fname, lineno, p)
			}
			rtx.Must(ranger.Insert(&divideEntry{network: *network, out: w}),
				"Could not add prefix %s", p)
		}
	}
	rtx.Must(scanner.Err(), "Could not read %s", fname)
	return ranger, closers
}

func lookupIP(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v)).To4()
}

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)
	if *divideFile == "" {
		log.Fatal("-f divide specification is required")
	}

	in := "-"
	if flag.NArg() > 0 {
		in = flag.Arg(0)
	}
	rc, err := flowio.Open(in)
	rtx.Must(err, "Could not open %s", in)
	defer rc.Close()
	rdr, err := flowio.NewReader(rc)
	rtx.Must(err, "Could not read flow header from %s", in)

	ranger, closers := loadDivide(*divideFile, rdr.Header())
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	var rec flow.Record
	var total, matched uint64
	for {
		err := rdr.Read(&rec)
		if err == io.EOF {
			break
		}
		rtx.Must(err, "Could not read flow record from %s", in)
		total++
		addr := rec.DstAddr
		if *bySource {
			addr = rec.SrcAddr
		}
		entries, err := ranger.ContainingNetworks(lookupIP(addr))
		rtx.Must(err, "Prefix lookup failed")
		if len(entries) == 0 {
			continue
		}
		best := entries[0]
		bestLen, _ := best.Network().Mask.Size()
		for _, e := range entries[1:] {
			if n, _ := e.Network().Mask.Size(); n > bestLen {
				best, bestLen = e, n
			}
		}
		rtx.Must(best.(*divideEntry).out.Write(&rec), "Could not write flow record")
		matched++
	}
	log.Printf("flow-divide: %d flows read, %d matched", total, matched)
}
