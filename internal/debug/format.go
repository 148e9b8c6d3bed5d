package debug

import (
	"fmt"
	"go/token"
	"strings"
)

// FormatTrace returns a formatted debug string for a root's classification
// trace.
func FormatTrace(funcName string, trace *Trace, fset *token.FileSet) string {
	if trace == nil {
		return ""
	}

	var buf strings.Builder

	fmt.Fprintf(&buf, "Function: %s\n", funcName)

	rootPos := fset.Position(trace.Root.Pos)
	fmt.Fprintf(&buf, "  Root: line %d\n", rootPos.Line)
	if trace.Root.VarName != "" {
		fmt.Fprintf(&buf, "    %s := %s\n", trace.Root.VarName, trace.Root.SSAValue)
	}

	if len(trace.Steps) > 0 {
		fmt.Fprintf(&buf, "\n  Steps:\n")
		for i, step := range trace.Steps {
			pos := fset.Position(step.Pos)
			fmt.Fprintf(&buf, "    %d. line %d: %s\n", i+1, pos.Line, step.Kind)
			if step.Detail != "" {
				fmt.Fprintf(&buf, "       ├─ %s\n", step.Detail)
			}
			if step.Verdict != "" {
				fmt.Fprintf(&buf, "       └─ verdict: %s\n", step.Verdict)
			}
		}
	}

	return buf.String()
}
