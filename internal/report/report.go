// Package report renders escape verdicts into their observable textual
// surface: one line per analysed heap allocation, grouped under a
// per-function header line.
package report

import (
	"fmt"
	"go/token"

	"golang.org/x/tools/go/ssa"

	"github.com/escapelens/escapelens/internal/lattice"
)

// Finding is one reported verdict for a single heap allocation. It
// implements debug.Finding so a -trace run can wrap it with a Trace without
// this package depending on internal/debug.
type Finding struct {
	Alloc     *ssa.Alloc
	FirstUser ssa.Instruction
	Verdict   lattice.Escape
}

// Pos implements debug.Finding.
func (f Finding) Pos() token.Pos { return f.Alloc.Pos() }

// Message renders the finding's text, matching one of:
//
//	%x(firstUser) is local.
//	%x(firstUser) locally escapes.
//	%x(firstUser) globally escapes.
func (f Finding) Message() string {
	return fmt.Sprintf("%%%s(%s) %s", f.Alloc.Name(), firstUserName(f.FirstUser), verdictPhrase(f.Verdict))
}

func verdictPhrase(e lattice.Escape) string {
	switch e {
	case lattice.NoEscape:
		return "is local."
	case lattice.LocalEscape:
		return "locally escapes."
	case lattice.GlobalEscape:
		return "globally escapes."
	default:
		return "is local."
	}
}

func firstUserName(instr ssa.Instruction) string {
	if instr == nil {
		return "…"
	}
	if v, ok := instr.(ssa.Value); ok && v.Name() != "" {
		return v.Name()
	}
	return instr.String()
}

// FunctionReport is every finding collected for one function, in source
// order, preceded by the function's header line.
type FunctionReport struct {
	Function *ssa.Function
	Findings []Finding
}

// Header renders the function's "Escape: <name>" banner line.
func (r FunctionReport) Header() string {
	return fmt.Sprintf("Escape: %s", r.Function.RelString(nil))
}

// Lines renders the header followed by every finding's message, in order.
func (r FunctionReport) Lines() []string {
	lines := make([]string, 0, len(r.Findings)+1)
	lines = append(lines, r.Header())
	for _, f := range r.Findings {
		lines = append(lines, f.Message())
	}
	return lines
}
