package report

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/escapelens/escapelens/internal/lattice"
)

func buildSSA(t *testing.T, src string) *ssa.Package {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "fixture.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	pkg := types.NewPackage("fixture", "fixture")
	conf := types.Config{Importer: importer.Default()}
	ssaPkg, _, err := ssautil.BuildPackage(&conf, fset, pkg, []*ast.File{f}, ssa.SanityCheckFunctions)
	if err != nil {
		t.Fatalf("BuildPackage: %v", err)
	}
	return ssaPkg
}

func TestMessageFormat(t *testing.T) {
	src := `package fixture

type Box struct{ f int }

func F() int {
	x := &Box{f: 1}
	return x.f
}
`
	pkg := buildSSA(t, src)
	fn := pkg.Func("F")

	var alloc *ssa.Alloc
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if a, ok := instr.(*ssa.Alloc); ok {
				alloc = a
			}
		}
	}
	if alloc == nil {
		t.Fatal("no alloc found")
	}

	tests := []struct {
		verdict lattice.Escape
		suffix  string
	}{
		{lattice.NoEscape, "is local."},
		{lattice.LocalEscape, "locally escapes."},
		{lattice.GlobalEscape, "globally escapes."},
	}
	for _, tt := range tests {
		f := Finding{Alloc: alloc, Verdict: tt.verdict}
		msg := f.Message()
		if len(msg) < len(tt.suffix) || msg[len(msg)-len(tt.suffix):] != tt.suffix {
			t.Errorf("Message() = %q, want suffix %q", msg, tt.suffix)
		}
		if msg[0] != '%' {
			t.Errorf("Message() = %q, want to start with %%", msg)
		}
	}
}

func TestFunctionReportHeaderAndLines(t *testing.T) {
	src := `package fixture

func F() int { return 1 }
`
	pkg := buildSSA(t, src)
	fn := pkg.Func("F")

	fr := FunctionReport{Function: fn, Findings: nil}
	if got := fr.Header(); got != "Escape: fixture.F" {
		t.Errorf("Header() = %q, want %q", got, "Escape: fixture.F")
	}

	lines := fr.Lines()
	if len(lines) != 1 {
		t.Fatalf("Lines() with no findings = %d lines, want 1 (header only)", len(lines))
	}
	if lines[0] != fr.Header() {
		t.Errorf("Lines()[0] = %q, want header %q", lines[0], fr.Header())
	}
}

func TestFirstUserNameFallback(t *testing.T) {
	if got := firstUserName(nil); got != "…" {
		t.Errorf("firstUserName(nil) = %q, want %q", got, "…")
	}
}
