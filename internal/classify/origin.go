// Package classify implements the origin classifier: a syntactic, backward
// walk through address-preserving go/ssa operators that decides whether a
// pointer's root is provably local, provably argument/closure-rooted, or a
// global. It is deliberately shallow — it never chases a load, an arithmetic
// or comparison BinOp, or a call result; deeper reachability is the job of
// internal/walk's backward and forward memory walkers.
package classify

import (
	"golang.org/x/tools/go/ssa"

	"github.com/escapelens/escapelens/internal/lattice"
)

// Origin classifies the syntactic root of ptr.
func Origin(ptr ssa.Value) lattice.Escape {
	return origin(ptr, make(map[ssa.Value]bool))
}

// origin is Origin's recursive core. visited guards against the one cyclic
// construct reachable here: a phi whose incoming edge chain loops back on
// itself through a loop header, which would otherwise recurse forever.
func origin(ptr ssa.Value, visited map[ssa.Value]bool) lattice.Escape {
	if visited[ptr] {
		return lattice.NoEscape
	}
	visited[ptr] = true

	switch v := ptr.(type) {
	case *ssa.Global:
		return lattice.GlobalEscape

	case *ssa.Parameter:
		return lattice.LocalEscape

	case *ssa.FreeVar:
		// A closure's captured variable is, from the perspective of the
		// value being tracked, exactly as opaque as a caller-supplied
		// argument.
		return lattice.LocalEscape

	case *ssa.ChangeType:
		return origin(v.X, visited)
	case *ssa.Convert:
		return origin(v.X, visited)
	case *ssa.ChangeInterface:
		return origin(v.X, visited)
	case *ssa.SliceToArrayPointer:
		return origin(v.X, visited)
	case *ssa.MultiConvert:
		return origin(v.X, visited)

	case *ssa.FieldAddr:
		return origin(v.X, visited)
	case *ssa.IndexAddr:
		return origin(v.X, visited)
	case *ssa.Field:
		return origin(v.X, visited)
	case *ssa.Index:
		return origin(v.X, visited)

	case *ssa.Phi:
		return originPhi(v, visited)

	default:
		// *ssa.Alloc, a load result, a call result, a MakeMap/MakeChan/
		// MakeSlice/MakeClosure/MakeInterface result, a constant, … — none
		// of these are themselves evidence of escape.
		return lattice.NoEscape
	}
}

// originPhi meets the classifications of every incoming edge, short-circuiting
// on the first non-NoEscape result. This is sound under the stated ordering
// GlobalEscape < LocalEscape < NoEscape: the first escaping edge found is
// never less severe than the true meet of all edges, because nothing can
// escape "more" than GlobalEscape.
func originPhi(phi *ssa.Phi, visited map[ssa.Value]bool) lattice.Escape {
	for _, edge := range phi.Edges {
		if isNilConst(edge) {
			continue
		}
		if e := origin(edge, visited); lattice.IsEscape(e) {
			return e
		}
	}
	return lattice.NoEscape
}

func isNilConst(v ssa.Value) bool {
	c, ok := v.(*ssa.Const)
	return ok && c.Value == nil
}
