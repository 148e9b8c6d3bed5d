// Package track implements the value tracker: it drives the origin
// classifier and the two memory walkers over the SSA use-def graph of a
// candidate value, handling casts, projections, aggregates, phi-nodes,
// calls, and cycle detection.
package track

import (
	"go/token"

	"golang.org/x/tools/go/ssa"

	"github.com/escapelens/escapelens/internal/alias"
	"github.com/escapelens/escapelens/internal/debug"
	"github.com/escapelens/escapelens/internal/identify"
	"github.com/escapelens/escapelens/internal/lattice"
	"github.com/escapelens/escapelens/internal/memssa"
	"github.com/escapelens/escapelens/internal/walk"
)

// Summariser resolves the escape verdict for a pointer value passed as an
// argument at a call site, consulting (and, on demand, computing) the
// function summariser's cache. Implemented by internal/summary.Cache; kept
// as an interface here to avoid a dependency cycle between internal/track
// and internal/summary, which each need the other's type.
type Summariser interface {
	ResultFor(call ssa.CallInstruction, arg ssa.Value) lattice.Escape
}

// Tracker drives the escape classification of SSA values reached from a
// root candidate (a heap allocation or a function argument).
type Tracker struct {
	Alias   alias.Oracle
	Summary Summariser

	// Trace, when non-nil, receives one Step per memory-def visited and
	// per call consulted while classifying the current root. Left nil on
	// every ordinary run; internal/driver installs it only for the
	// allocation currently being classified under -trace.
	Trace *debug.Collector

	trackSet map[string]bool
	graphs   map[*ssa.Function]*memssa.Graph
}

// New creates a Tracker. summary may be installed after construction via
// SetSummariser if the two must be wired together lazily (internal/summary's
// Cache needs a Tracker to exist before it can itself implement Summariser).
func New(oracle alias.Oracle) *Tracker {
	if oracle == nil {
		oracle = alias.Heuristic{}
	}
	return &Tracker{
		Alias:    oracle,
		trackSet: make(map[string]bool),
		graphs:   make(map[*ssa.Function]*memssa.Graph),
	}
}

// SetSummariser installs the function summariser. Split from New to let
// internal/driver construct the Tracker and the Cache in either order.
func (t *Tracker) SetSummariser(s Summariser) {
	t.Summary = s
}

// MemGraph returns the (lazily built, cached) memory-SSA graph for fn.
func (t *Tracker) MemGraph(fn *ssa.Function) *memssa.Graph {
	if g, ok := t.graphs[fn]; ok {
		return g
	}
	g := memssa.Build(fn)
	t.graphs[fn] = g
	return g
}

// AliasOf implements walk.Host.
func (t *Tracker) AliasOf(p ssa.Value, sizeP int64, q ssa.Value, sizeQ int64) alias.Result {
	return t.Alias.Alias(p, sizeP, q, sizeQ)
}

// CallResult implements walk.Host: it routes an argument's escape verdict at
// a call site through the function summariser.
func (t *Tracker) CallResult(call ssa.CallInstruction, arg ssa.Value) lattice.Escape {
	return t.Summary.ResultFor(call, arg)
}

// Track classifies every use of v, returning the meet of all escaping uses
// found (NoEscape if none). When isRoot is true, v's identity is inserted
// into the cycle-detection track set for the duration of the call; a
// recursive root invocation on a value already on the stack returns
// NoEscape without re-inserting, leaving the verdict to the outer frame.
func (t *Tracker) Track(v ssa.Value, isRoot bool) lattice.Escape {
	if isRoot {
		id := identify.Value(v)
		if t.trackSet[id] {
			return lattice.NoEscape
		}
		t.trackSet[id] = true
		defer delete(t.trackSet, id)
	}

	refs := v.Referrers()
	if refs == nil {
		return lattice.NoEscape
	}

	best := lattice.NoEscape
	for _, instr := range *refs {
		e := t.trackUser(v, instr)
		if lattice.IsEscape(e) {
			return e
		}
		best = lattice.Meet(best, e)
	}
	return best
}

func (t *Tracker) trackUser(v ssa.Value, instr ssa.Instruction) lattice.Escape {
	switch u := instr.(type) {
	case *ssa.ChangeType:
		return t.Track(u, false)
	case *ssa.Convert:
		return t.Track(u, false)
	case *ssa.ChangeInterface:
		return t.Track(u, false)
	case *ssa.SliceToArrayPointer:
		return t.Track(u, false)
	case *ssa.MultiConvert:
		return t.Track(u, false)
	case *ssa.FieldAddr:
		return t.Track(u, false)
	case *ssa.IndexAddr:
		return t.Track(u, false)
	case *ssa.Field:
		return t.Track(u, false)
	case *ssa.Index:
		return t.Track(u, false)
	case *ssa.Extract:
		return t.Track(u, false)
	case *ssa.Phi:
		// Phi nodes are the one construct that can close a cycle in the
		// use-def graph (a loop-carried pointer feeding its own phi), so
		// recurse as a root: the track set breaks the cycle and leaves the
		// verdict to the outermost frame.
		return t.Track(u, true)

	case *ssa.Store:
		if u.Val != v {
			// v is the store's destination, not the value being stored:
			// writing into the object does not route its address anywhere.
			return lattice.NoEscape
		}
		graph := t.MemGraph(u.Parent())
		node := graph.NodeFor(u)
		if e := walk.Backward(node, t); lattice.IsEscape(e) {
			t.Trace.Step(u.Pos(), "memory-def", u.String(), e.String())
			return e
		}
		e := walk.Forward(node, u.Addr, t)
		t.Trace.Step(u.Pos(), "memory-def", u.String(), e.String())
		return e

	case *ssa.UnOp:
		if u.Op == token.MUL {
			return lattice.NoEscape
		}
		return lattice.LocalEscape

	case *ssa.BinOp:
		if isCompare(u.Op) {
			return lattice.NoEscape
		}
		return lattice.LocalEscape

	case *ssa.Call:
		e := t.Summary.ResultFor(u, v)
		t.Trace.Step(u.Pos(), "call", u.String(), e.String())
		return e
	case *ssa.Go:
		e := t.Summary.ResultFor(u, v)
		t.Trace.Step(u.Pos(), "call", u.String(), e.String())
		return e
	case *ssa.Defer:
		e := t.Summary.ResultFor(u, v)
		t.Trace.Step(u.Pos(), "call", u.String(), e.String())
		return e

	default:
		return lattice.LocalEscape
	}
}

func isCompare(op token.Token) bool {
	switch op {
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		return true
	default:
		return false
	}
}
