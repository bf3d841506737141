package sym_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-lab/go/rtx"

	"github.com/m-lab/flow-report/sym"
)

func TestOpenLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ports.sym")
	rtx.Must(os.WriteFile(path, []byte(`
# well-known ports
80 http
443 https
0x16 ssh-hex
`), 0644), "write sym file")

	tbl, err := sym.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if s, ok := tbl.Lookup(80); !ok || s != "http" {
		t.Error("lookup 80:", s, ok)
	}
	if s, ok := tbl.Lookup(22); !ok || s != "ssh-hex" {
		t.Error("hex value parse:", s, ok)
	}
	if _, ok := tbl.Lookup(9999); ok {
		t.Error("phantom symbol")
	}
	if tbl.Format(443) != "https" {
		t.Error("format mapped")
	}
	if tbl.Format(8080) != "8080" {
		t.Error("format fallback")
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := sym.Open(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing file should fail")
	}
	path := filepath.Join(t.TempDir(), "bad.sym")
	rtx.Must(os.WriteFile(path, []byte("notanumber name\n"), 0644), "write sym file")
	if _, err := sym.Open(path); err == nil {
		t.Error("bad value should fail")
	}
}

func TestNilTable(t *testing.T) {
	var tbl *sym.Table
	if _, ok := tbl.Lookup(1); ok {
		t.Error("nil table lookup should miss")
	}
}
