package debug

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"strings"
	"testing"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

func firstAlloc(t *testing.T, src string) (*ssa.Alloc, *token.FileSet) {
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
	fn := ssaPkg.Func("F")
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if a, ok := instr.(*ssa.Alloc); ok {
				return a, fset
			}
		}
	}
	t.Fatal("no alloc found")
	return nil, nil
}

func TestNilCollectorIsNoOp(t *testing.T) {
	var c *Collector
	c.Step(token.NoPos, "origin", "x", "NoEscape")
	if got := c.TraceResult(); got != nil {
		t.Errorf("TraceResult() on nil Collector = %v, want nil", got)
	}
}

func TestCollectorAccumulatesSteps(t *testing.T) {
	alloc, _ := firstAlloc(t, `package fixture

func F() *int {
	x := new(int)
	return x
}
`)
	c := NewCollector(alloc)
	c.Step(alloc.Pos(), "memory-def", "store", "LocalEscape")
	c.Step(alloc.Pos(), "call", "f(x)", "GlobalEscape")

	trace := c.TraceResult()
	if trace == nil {
		t.Fatal("TraceResult() = nil, want populated trace")
	}
	if len(trace.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(trace.Steps))
	}
	if trace.Steps[0].Kind != "memory-def" || trace.Steps[1].Kind != "call" {
		t.Errorf("Steps recorded out of order: %+v", trace.Steps)
	}
}

func TestFormatTraceNilIsEmpty(t *testing.T) {
	if got := FormatTrace("fixture.F", nil, token.NewFileSet()); got != "" {
		t.Errorf("FormatTrace(nil trace) = %q, want empty", got)
	}
}

func TestFormatTraceIncludesFunctionAndSteps(t *testing.T) {
	alloc, fset := firstAlloc(t, `package fixture

func F() *int {
	x := new(int)
	return x
}
`)
	c := NewCollector(alloc)
	c.Step(alloc.Pos(), "memory-def", "store x", "NoEscape")

	text := FormatTrace("fixture.F", c.TraceResult(), fset)
	if !strings.Contains(text, "fixture.F") {
		t.Errorf("FormatTrace output missing function name: %q", text)
	}
	if !strings.Contains(text, "memory-def") {
		t.Errorf("FormatTrace output missing step kind: %q", text)
	}
	if !strings.Contains(text, "NoEscape") {
		t.Errorf("FormatTrace output missing verdict: %q", text)
	}
}

func TestWrapPassesThroughOnNilTrace(t *testing.T) {
	f := wrappedStub{pos: token.NoPos, msg: "hello"}
	if got := Wrap(f, nil); got != f {
		t.Errorf("Wrap(f, nil) = %v, want f unwrapped", got)
	}
}

func TestWrapAttachesTrace(t *testing.T) {
	f := wrappedStub{pos: token.NoPos, msg: "hello"}
	trace := &Trace{}
	wrapped := Wrap(f, trace)
	traced, ok := wrapped.(Traced)
	if !ok {
		t.Fatal("Wrap(f, non-nil trace) did not return a Traced")
	}
	if traced.DebugTrace() != trace {
		t.Error("DebugTrace() does not return the attached trace")
	}
	if traced.Message() != "hello" {
		t.Errorf("Message() = %q, want %q", traced.Message(), "hello")
	}
}

type wrappedStub struct {
	pos token.Pos
	msg string
}

func (w wrappedStub) Pos() token.Pos   { return w.pos }
func (w wrappedStub) Message() string { return w.msg }
