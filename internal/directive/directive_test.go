package directive

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

func TestHasDirective(t *testing.T) {
	tests := []struct {
		text string
		name string
		want bool
	}{
		{"//escapelens:ignore", "ignore", true},
		{"//escapelens:noescape", "noescape", true},
		{"//escapelens:stack", "stack", true},
		{"//escapelens:ignore,noescape", "noescape", true},
		{"//escapelens:ignore // because reasons", "ignore", true},
		{"//escapelens:ignore", "noescape", false},
		{"// unrelated comment", "ignore", false},
		{"//escapelensx:ignore", "ignore", false},
	}
	for _, tt := range tests {
		if got := hasDirective(tt.text, tt.name); got != tt.want {
			t.Errorf("hasDirective(%q, %q) = %v, want %v", tt.text, tt.name, got, tt.want)
		}
	}
}

func TestIsIgnoreNoEscapeStackDirective(t *testing.T) {
	if !IsIgnoreDirective("//escapelens:ignore") {
		t.Error("IsIgnoreDirective failed on valid ignore comment")
	}
	if !IsNoEscapeDirective("//escapelens:noescape") {
		t.Error("IsNoEscapeDirective failed on valid noescape comment")
	}
	if !IsStackDirective("//escapelens:stack") {
		t.Error("IsStackDirective failed on valid stack comment")
	}
	if IsIgnoreDirective("//escapelens:stack") {
		t.Error("IsIgnoreDirective matched a stack directive")
	}
}

func TestBuildIgnoreMapLineLevel(t *testing.T) {
	src := `package fixture

func F() {
	//escapelens:ignore
	x := 1
	_ = x
}
`
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "fixture.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	m := BuildIgnoreMap(fset, file)
	targetLine := 5

	if !m.ShouldIgnore(targetLine) {
		t.Errorf("ShouldIgnore(%d) = false, want true (directive on preceding line)", targetLine)
	}
	if unused := m.GetUnusedIgnores(); len(unused) != 0 {
		t.Errorf("GetUnusedIgnores() after ShouldIgnore = %v, want none (marked used)", unused)
	}
}

func TestBuildIgnoreMapUnusedIsReported(t *testing.T) {
	src := `package fixture

func F() {
	//escapelens:ignore
	_ = 1
}
`
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "fixture.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	m := BuildIgnoreMap(fset, file)
	if unused := m.GetUnusedIgnores(); len(unused) != 1 {
		t.Errorf("GetUnusedIgnores() = %d entries before any ShouldIgnore call, want 1", len(unused))
	}
}

func TestBuildFunctionIgnoreSet(t *testing.T) {
	src := `package fixture

//escapelens:ignore
func Legacy() {}

func Fresh() {}
`
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "fixture.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	set := BuildFunctionIgnoreSet(fset, file)
	if len(set) != 1 {
		t.Fatalf("BuildFunctionIgnoreSet() = %d entries, want 1", len(set))
	}

	var legacyNamePos token.Pos
	ast.Inspect(file, func(n ast.Node) bool {
		if fd, ok := n.(*ast.FuncDecl); ok && fd.Name.Name == "Legacy" {
			legacyNamePos = fd.Name.Pos()
		}
		return true
	})
	if _, ok := set[legacyNamePos]; !ok {
		t.Error("BuildFunctionIgnoreSet did not key the entry by the function name's position")
	}
}

func TestNewNoEscapeFuncSetDetectsAnnotatedFunction(t *testing.T) {
	src := `package fixture

type Box struct{ f int }

// touch is annotated as not escaping its pointer parameter.
//escapelens:noescape
func touch(p *Box) {
	_ = p.f
}

func untouched(p *Box) {
	_ = p.f
}
`
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "fixture.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	pkg := types.NewPackage("fixture", "fixture")
	conf := types.Config{Importer: importer.Default()}
	ssaPkg, info, err := ssautil.BuildPackage(&conf, fset, pkg, []*ast.File{file}, ssa.SanityCheckFunctions)
	if err != nil {
		t.Fatalf("BuildPackage: %v", err)
	}

	set := NewNoEscapeFuncSet(fset, info)
	set.AddFile(file)

	touchFn := ssaPkg.Func("touch")
	untouchedFn := ssaPkg.Func("untouched")
	if touchFn == nil || untouchedFn == nil {
		t.Fatal("expected both touch and untouched in the built SSA package")
	}

	if !set.Contains(touchFn) {
		t.Error("NoEscapeFuncSet does not contain the annotated function touch")
	}
	if set.Contains(untouchedFn) {
		t.Error("NoEscapeFuncSet incorrectly contains the unannotated function untouched")
	}
}

func TestBuildStackMapCoversSameAndNextLine(t *testing.T) {
	src := `package fixture

func f() {
	//escapelens:stack
	x := 1
	y := 2 //escapelens:stack
	_ = x
	_ = y
}
`
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "fixture.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	m := BuildStackMap(fset, file)
	if len(m) != 2 {
		t.Fatalf("BuildStackMap found %d directives, want 2", len(m))
	}

	// Line 5 (x := 1) is covered by the directive on line 4.
	if _, ok := m.DirectiveFor(5); !ok {
		t.Error("DirectiveFor(5) = false, want next-line coverage from the line-4 directive")
	}
	// Line 6 (y := 2) carries a trailing directive on the same line.
	if _, ok := m.DirectiveFor(6); !ok {
		t.Error("DirectiveFor(6) = false, want same-line coverage")
	}
	// Line 8 is past both directives' one-line reach.
	if _, ok := m.DirectiveFor(8); ok {
		t.Error("DirectiveFor(8) = true, want no coverage two lines past a directive")
	}

	if unused := m.GetUnusedDirectives(); len(unused) != 0 {
		t.Errorf("GetUnusedDirectives() reported %d entries after both matched, want 0", len(unused))
	}
}

func TestStackMapReportsUnusedDirectives(t *testing.T) {
	src := `package fixture

func f() {
	//escapelens:stack
	x := 1
	_ = x
}
`
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "fixture.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	m := BuildStackMap(fset, file)
	if unused := m.GetUnusedDirectives(); len(unused) != 1 {
		t.Errorf("GetUnusedDirectives() = %d entries before any lookup, want 1", len(unused))
	}
}
