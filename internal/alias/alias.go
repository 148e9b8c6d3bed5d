// Package alias provides the alias oracle consumed by internal/walk: a query
// over two (pointer, size) pairs answering NoAlias/MayAlias/PartialAlias/
// MustAlias. go/ssa does not ship such an oracle, so this package supplies a
// structural one that compares the syntactic roots and projection paths of
// the two pointers, defaulting to MayAlias whenever neither disjointness nor
// identity can be proved.
package alias

import (
	"go/constant"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/escapelens/escapelens/internal/layout"
)

// Result is the four-way verdict an alias query returns.
type Result int

const (
	// NoAlias means the two locations are provably disjoint.
	NoAlias Result = iota
	// MayAlias means the two locations might overlap; the conservative
	// default when nothing more precise is known.
	MayAlias
	// PartialAlias means the two locations overlap but are not identical.
	PartialAlias
	// MustAlias means the two locations are always the same.
	MustAlias
)

func (r Result) String() string {
	switch r {
	case NoAlias:
		return "NoAlias"
	case MayAlias:
		return "MayAlias"
	case PartialAlias:
		return "PartialAlias"
	case MustAlias:
		return "MustAlias"
	default:
		return "Unknown"
	}
}

// Oracle answers alias queries over two (pointer, size) pairs. Callers
// treat anything other than NoAlias as "may observe" for loads and only
// MustAlias as "definitely overwrites" for stores.
type Oracle interface {
	Alias(p ssa.Value, sizeP int64, q ssa.Value, sizeQ int64) Result
}

// Heuristic is the default, structural alias oracle: it compares the
// syntactic roots and projection paths of the two pointer values without any
// whole-program points-to computation.
type Heuristic struct{}

// Alias implements Oracle.
func (Heuristic) Alias(p ssa.Value, sizeP int64, q ssa.Value, sizeQ int64) Result {
	if p == q {
		return MustAlias
	}

	pRoot, pPath := rootAndPath(p)
	qRoot, qPath := rootAndPath(q)

	if pRoot == nil || qRoot == nil {
		return MayAlias
	}

	if pRoot != qRoot {
		if isDistinctRoot(pRoot) && isDistinctRoot(qRoot) {
			return NoAlias
		}
		return MayAlias
	}

	// Same root: compare the projection paths taken to reach each pointer.
	switch comparePaths(pPath, qPath) {
	case pathEqual:
		return MustAlias
	case pathDisjoint:
		return NoAlias
	default:
		return MayAlias
	}
}

// sizes is the data-layout oracle backing the field-extent cross-check in
// comparePaths. Heuristic is stateless, so one default-architecture oracle
// is shared package-wide.
var sizes = layout.New(nil)

// pathElem is one projection step on the way from a root to a pointer: a
// struct field selection (strct non-nil, field is the index) or an
// array/slice element selection (strct nil, field is a constant element
// index or -1 for a dynamic one). Keeping the kind alongside the index stops
// a field selection and an element selection with the same numeric index
// from comparing equal.
type pathElem struct {
	field int
	strct *types.Struct
}

// rootAndPath walks back through address-preserving operators (the same set
// internal/classify recognises) to find the syntactic root of a pointer
// value and the sequence of field/element projections taken to reach it.
func rootAndPath(v ssa.Value) (ssa.Value, []pathElem) {
	var path []pathElem
	for {
		switch x := v.(type) {
		case *ssa.FieldAddr:
			path = append(path, pathElem{field: x.Field, strct: structOf(x.X)})
			v = x.X
		case *ssa.IndexAddr:
			path = append(path, pathElem{field: indexTag(x.Index)})
			v = x.X
		case *ssa.ChangeType:
			v = x.X
		case *ssa.Convert:
			v = x.X
		case *ssa.ChangeInterface:
			v = x.X
		case *ssa.SliceToArrayPointer:
			v = x.X
		case *ssa.MultiConvert:
			v = x.X
		default:
			reversePath(path)
			return v, path
		}
	}
}

// structOf returns the struct type v points at, or nil if v is not a
// pointer-to-struct.
func structOf(v ssa.Value) *types.Struct {
	pt, ok := v.Type().Underlying().(*types.Pointer)
	if !ok {
		return nil
	}
	st, ok := pt.Elem().Underlying().(*types.Struct)
	if !ok {
		return nil
	}
	return st
}

// indexTag derives a comparable path element for an IndexAddr's index
// operand: a constant index yields a distinguishable tag, a dynamic index
// collapses every element of the array/slice into one "unknown" tag so that
// two dynamically-indexed projections into the same base are never claimed
// to be provably disjoint.
func indexTag(idx ssa.Value) int {
	if c, ok := idx.(*ssa.Const); ok && c.Value != nil {
		if n, exact := constInt64(c); exact && n >= 0 {
			return int(n)
		}
	}
	return -1 // "dynamic index" sentinel, never provably equal or disjoint
}

func constInt64(c *ssa.Const) (int64, bool) {
	if c.Value == nil || c.Value.Kind() != constant.Int {
		return 0, false
	}
	n, exact := constant.Int64Val(c.Value)
	return n, exact
}

func reversePath(p []pathElem) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}

type pathRelation int

const (
	pathEqual pathRelation = iota
	pathDisjoint
	pathOverlap
)

// comparePaths compares two projection paths from the same root. Equal
// paths are the same location; paths that diverge at a constant-vs-constant
// element index, or at two struct fields whose byte extents do not overlap,
// are provably disjoint; anything involving a dynamic index is only known
// to overlap.
func comparePaths(a, b []pathElem) pathRelation {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ae, be := a[i], b[i]
		if (ae.strct == nil) != (be.strct == nil) {
			return pathOverlap
		}
		if ae.strct != nil {
			if ae.field == be.field {
				continue
			}
			if fieldsDisjoint(ae.strct, ae.field, be.field) {
				return pathDisjoint
			}
			return pathOverlap
		}
		if ae.field == -1 || be.field == -1 {
			return pathOverlap
		}
		if ae.field != be.field {
			return pathDisjoint
		}
	}
	if len(a) == len(b) {
		return pathEqual
	}
	return pathOverlap
}

// fieldsDisjoint reports whether two distinct fields of st occupy
// non-overlapping byte extents. A field whose extent cannot be computed (an
// unresolved type parameter) stays on the conservative path.
func fieldsDisjoint(st *types.Struct, fa, fb int) bool {
	if st == nil || fa < 0 || fb < 0 || fa >= st.NumFields() || fb >= st.NumFields() {
		return false
	}
	offsets := sizes.FieldOffsets(st)
	if offsets == nil {
		return false
	}
	sa := sizes.SizeOf(st.Field(fa).Type())
	sb := sizes.SizeOf(st.Field(fb).Type())
	if sa < 0 || sb < 0 {
		return false
	}
	return !layout.Overlaps(offsets[fa], sa, offsets[fb], sb)
}

// isDistinctRoot reports whether v is a root whose identity alone is enough
// to prove two different roots never alias: a stack/heap allocation site or
// a local variable each name a single, distinct storage location. Parameters
// and globals are excluded because two differently-named parameters can
// still be passed the same pointer at a call site, and two different global
// variable *values* can point into overlapping storage via unsafe code.
func isDistinctRoot(v ssa.Value) bool {
	switch v.(type) {
	case *ssa.Alloc:
		return true
	default:
		return false
	}
}
