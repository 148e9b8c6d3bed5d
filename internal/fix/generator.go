// Package fix provides SuggestedFix generation for escaping allocations.
//
// # Fix Strategy
//
// Unlike a rewrite that changes `new(T)`/`&T{}` into a stack-friendly form —
// which the compiler's own escape analysis already performs automatically
// whenever it is sound to do so — this generator only ever proposes an
// explanatory comment. An allocation this analyzer reports as escaping is,
// by definition, a case where the compiler has already decided it cannot
// keep the value on the stack; rewriting the source would not change that
// decision, so the only useful "fix" is pointing a reader at the directive
// that would suppress or document the finding.
package fix

import (
	"fmt"
	"go/ast"
	"go/token"

	"golang.org/x/tools/go/analysis"

	"github.com/escapelens/escapelens/internal/lattice"
	"github.com/escapelens/escapelens/internal/report"
)

// Generator generates SuggestedFix hints for escaping-allocation findings.
type Generator struct {
	fset  *token.FileSet
	files map[*token.File]*ast.File
}

// New creates a fix Generator from a pass's file set and parsed files.
func New(pass *analysis.Pass) *Generator {
	files := make(map[*token.File]*ast.File)
	for _, f := range pass.Files {
		if tf := pass.Fset.File(f.Pos()); tf != nil {
			files[tf] = f
		}
	}
	return &Generator{fset: pass.Fset, files: files}
}

// Generate returns a SuggestedFix hinting at the //escapelens:ignore or
// //escapelens:stack directives for an escaping finding, or nil for a
// NoEscape finding (nothing to suggest) or one the generator cannot locate
// source position for.
func (g *Generator) Generate(f report.Finding) []analysis.SuggestedFix {
	if f.Verdict == lattice.NoEscape {
		return nil
	}

	stmtEnd := g.statementEndAfter(f.Alloc.Pos())
	if stmtEnd == token.NoPos {
		return nil
	}

	hint := "expected to stay on the stack? annotate with //escapelens:stack"
	if f.Verdict == lattice.GlobalEscape {
		hint = "escapes to a global; silence with //escapelens:ignore if intentional"
	}

	return []analysis.SuggestedFix{
		{
			Message: fmt.Sprintf("document why %s %s", f.Alloc.Name(), verdictName(f.Verdict)),
			TextEdits: []analysis.TextEdit{
				{
					Pos:     stmtEnd,
					End:     stmtEnd,
					NewText: []byte(fmt.Sprintf(" // %s", hint)),
				},
			},
		},
	}
}

func verdictName(e lattice.Escape) string {
	switch e {
	case lattice.LocalEscape:
		return "locally escapes"
	case lattice.GlobalEscape:
		return "globally escapes"
	default:
		return "is local"
	}
}

// statementEndAfter finds the enclosing statement containing pos and
// returns its end position, the insertion point for a trailing comment.
func (g *Generator) statementEndAfter(pos token.Pos) token.Pos {
	file := g.findFileContaining(pos)
	if file == nil {
		return token.NoPos
	}
	stmt := g.findStmtAtPos(file, pos)
	if stmt == nil {
		return token.NoPos
	}
	return stmt.End()
}

func (g *Generator) findFileContaining(pos token.Pos) *ast.File {
	tf := g.fset.File(pos)
	if tf == nil {
		return nil
	}
	return g.files[tf]
}

func (g *Generator) findStmtAtPos(file *ast.File, pos token.Pos) ast.Stmt {
	var result ast.Stmt
	ast.Inspect(file, func(n ast.Node) bool {
		if n == nil {
			return false
		}
		if n.Pos() <= pos && pos < n.End() {
			if stmt, ok := n.(ast.Stmt); ok {
				result = stmt
			}
			return true
		}
		return n.Pos() <= pos
	})
	return result
}
