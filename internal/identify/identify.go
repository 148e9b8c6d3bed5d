// Package identify provides stable textual identifiers for ssa.Value and
// ssa.Function, used as hash keys by the tracker's cycle guard and the
// summariser's singleflight group. The textual form carries no semantic
// meaning beyond uniqueness within one analysis run.
package identify

import (
	"fmt"

	"golang.org/x/tools/go/ssa"
)

// Value returns a deterministic identifier for v, unique within one run of
// the analysis. Collision probability across a single function is
// negligible: the key combines the owning function's qualified name, the
// value's own SSA-local name, and its source position.
func Value(v ssa.Value) string {
	var fnName string
	if fn := v.Parent(); fn != nil {
		fnName = fn.RelString(nil)
	}
	return fmt.Sprintf("%s#%s@%d", fnName, v.Name(), v.Pos())
}

// Function returns a deterministic identifier for a function, used to key
// the summary cache's singleflight group (functions are not ssa.Values and
// so have no Value-style identity of their own).
func Function(fn *ssa.Function) string {
	if fn == nil {
		return "<nil>"
	}
	return fn.RelString(nil)
}
