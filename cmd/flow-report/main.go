// The flow-report command runs a report configuration over one or
// more flow files and writes each report to its configured sinks.
package main

import (
	"flag"
	"io"
	"log"
	"strings"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/m-lab/flow-report/flow"
	"github.com/m-lab/flow-report/flowio"
	"github.com/m-lab/flow-report/metrics"
	"github.com/m-lab/flow-report/stat"
	"github.com/m-lab/flow-report/sym"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	configFile  = flag.String("config", "stat.cfg", "Report configuration file")
	definitions = flag.String("definitions", "", "Comma-separated stat-definition names to run. Default is all.")
	promPort    = flag.String("prom", "", "Prometheus metrics export address and port, e.g. ':9090'. Empty disables the listener.")
	symPorts    = flag.String("sym-ports", "", "Port symbol table for the names option")
	symProtos   = flag.String("sym-protocols", "", "Protocol symbol table for the names option")
	symASNs     = flag.String("sym-asns", "", "AS symbol table for the names option")
	symTags     = flag.String("sym-tags", "", "Tag symbol table for the names option")
)

func loadSym(path string) *sym.Table {
	if path == "" {
		return nil
	}
	t, err := sym.Open(path)
	rtx.Must(err, "Could not load symbol table %s", path)
	return t
}

func selectDefinitions(cfg *stat.Config, names string) []*stat.Definition {
	if names == "" {
		return cfg.Definitions
	}
	var defs []*stat.Definition
	for _, name := range strings.Split(names, ",") {
		d := cfg.Definition(name)
		if d == nil {
			log.Fatalf("no such stat-definition %q", name)
		}
		defs = append(defs, d)
	}
	return defs
}

func processFile(fname string, defs []*stat.Definition) {
	rc, err := flowio.Open(fname)
	rtx.Must(err, "Could not open %s", fname)
	defer rc.Close()

	rdr, err := flowio.NewReader(rc)
	rtx.Must(err, "Could not read flow header from %s", fname)

	for _, d := range defs {
		rtx.Must(d.Check(rdr.Version().XFields), "Flow stream %s unusable", fname)
		for _, rpt := range d.Reports {
			if rpt.XHeader == nil {
				rpt.XHeader = func(w io.Writer) error {
					return rdr.HeaderPrint(w, '#')
				}
			}
		}
	}

	var rec flow.Record
	for {
		err := rdr.Read(&rec)
		if err == io.EOF {
			return
		}
		rtx.Must(err, "Could not read flow record from %s", fname)
		metrics.FlowCount.Inc()
		for _, d := range defs {
			if err := d.Process(&rec); err != nil {
				metrics.ErrorCount.With(prometheus.Labels{"type": "accum"}).Inc()
				log.Println(err)
			}
		}
	}
}

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	if *promPort != "" {
		promSrv := prometheusx.MustStartPrometheus(*promPort)
		defer promSrv.Close()
	}

	cfg, err := stat.Load(*configFile, stat.WithSyms(&stat.SymTables{
		Ports:     loadSym(*symPorts),
		Protocols: loadSym(*symProtos),
		ASNs:      loadSym(*symASNs),
		Tags:      loadSym(*symTags),
	}))
	rtx.Must(err, "Could not load %s", *configFile)

	defs := selectDefinitions(cfg, *definitions)
	if len(defs) == 0 {
		log.Fatal("configuration defines no stat-definitions")
	}

	files := flag.Args()
	if len(files) == 0 {
		files = []string{"-"}
	}
	for _, fname := range files {
		processFile(fname, defs)
	}

	for _, d := range defs {
		rtx.Must(d.CalcDump(), "Dump failed for definition %s", d.Name)
	}
}
