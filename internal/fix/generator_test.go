package fix

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"golang.org/x/tools/go/analysis"

	"github.com/escapelens/escapelens/internal/lattice"
	"github.com/escapelens/escapelens/internal/report"
)

func parseOneFile(t *testing.T, src string) (*token.FileSet, *ast.File) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "test.go", src, 0)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	return fset, file
}

func newGenerator(fset *token.FileSet, file *ast.File) *Generator {
	return &Generator{fset: fset, files: map[*token.File]*ast.File{fset.File(file.Pos()): file}}
}

func TestVerdictName(t *testing.T) {
	tests := []struct {
		verdict lattice.Escape
		want    string
	}{
		{lattice.NoEscape, "is local"},
		{lattice.LocalEscape, "locally escapes"},
		{lattice.GlobalEscape, "globally escapes"},
	}
	for _, tt := range tests {
		if got := verdictName(tt.verdict); got != tt.want {
			t.Errorf("verdictName(%v) = %q, want %q", tt.verdict, got, tt.want)
		}
	}
}

func TestGenerateNoEscapeReturnsNil(t *testing.T) {
	src := "package test\nfunc f() {\n\tx := new(int)\n\t_ = x\n}\n"
	fset, file := parseOneFile(t, src)
	g := newGenerator(fset, file)

	// Without a real *ssa.Alloc we only exercise the NoEscape short-circuit,
	// which never dereferences f.Alloc.
	fixes := g.Generate(report.Finding{Verdict: lattice.NoEscape})
	if fixes != nil {
		t.Errorf("Generate() with NoEscape verdict = %v, want nil", fixes)
	}
}

func TestFindStmtAtPos(t *testing.T) {
	src := `package test

func f() {
	x := 1
	y := 2
	_ = x
	_ = y
}
`
	fset, file := parseOneFile(t, src)
	g := newGenerator(fset, file)

	var assignPos token.Pos
	ast.Inspect(file, func(n ast.Node) bool {
		if assign, ok := n.(*ast.AssignStmt); ok && assignPos == token.NoPos {
			assignPos = assign.Pos()
		}
		return true
	})
	if assignPos == token.NoPos {
		t.Fatal("no assignment found in fixture")
	}

	stmt := g.findStmtAtPos(file, assignPos)
	if stmt == nil {
		t.Fatal("findStmtAtPos() = nil, want enclosing statement")
	}
	if _, ok := stmt.(*ast.AssignStmt); !ok {
		t.Errorf("findStmtAtPos() = %T, want *ast.AssignStmt", stmt)
	}
}

func TestNewBuildsFileMap(t *testing.T) {
	src := "package test\nfunc f() {}\n"
	fset, file := parseOneFile(t, src)
	pass := &analysis.Pass{Fset: fset, Files: []*ast.File{file}}

	g := New(pass)
	if len(g.files) != 1 {
		t.Fatalf("New() built %d file entries, want 1", len(g.files))
	}
}
