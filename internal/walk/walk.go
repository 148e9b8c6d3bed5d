// Package walk implements the two memory-SSA walkers that drive
// interprocedural reasoning about a stored pointer: Backward looks upstream
// through the memory-SSA chain for a write into an escaping (global- or
// parameter-rooted) location, and Forward looks downstream for a subsequent read
// or call that lets the stored pointer escape further than its store site
// alone would suggest.
//
// Both take a Host rather than a concrete *track.Tracker so that this
// package never needs to import internal/track, which itself calls into
// Backward and Forward — internal/track.Tracker satisfies Host structurally.
package walk

import (
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/escapelens/escapelens/internal/alias"
	"github.com/escapelens/escapelens/internal/classify"
	"github.com/escapelens/escapelens/internal/lattice"
	"github.com/escapelens/escapelens/internal/layout"
	"github.com/escapelens/escapelens/internal/memssa"
)

// Host supplies the alias oracle, the call-argument summariser, and the
// ability to re-enter value tracking that the walkers need but do not own.
type Host interface {
	AliasOf(p ssa.Value, sizeP int64, q ssa.Value, sizeQ int64) alias.Result
	Track(v ssa.Value, isRoot bool) lattice.Escape
	CallResult(call ssa.CallInstruction, arg ssa.Value) lattice.Escape
}

// sizes answers the byte-size half of every alias query this package
// issues: a query over two addresses carries the size of each pointee, so
// an oracle that models extents can distinguish a partial overlap from a
// full one.
var sizes = layout.New(nil)

// sizeOf returns the byte size of the object addr points at, or 1 when addr
// is not pointer-typed or its pointee's size cannot be computed. One byte is
// the conservative floor: it still overlaps anything at the same address.
func sizeOf(addr ssa.Value) int64 {
	pt, ok := addr.Type().Underlying().(*types.Pointer)
	if !ok {
		return 1
	}
	if n := sizes.SizeOf(pt.Elem()); n > 0 {
		return n
	}
	return 1
}

// Backward walks the memory-SSA chain upstream from node, starting with node
// itself, looking for a MemoryDef that makes the stored pointer escape: a
// store whose destination address classify.Origin rates as escaping, a call
// whose result escapes, or a go/defer statement. No alias query is made;
// every def upstream is considered. It stops at the first such def it finds,
// at LiveOnEntry (nothing upstream to find), or after a MemoryPhi's
// incoming edges have all been explored.
func Backward(node *memssa.Node, host Host) lattice.Escape {
	return backward(node, host, make(map[*memssa.Node]bool))
}

func backward(node *memssa.Node, host Host, seen map[*memssa.Node]bool) lattice.Escape {
	if node == nil || seen[node] {
		return lattice.NoEscape
	}
	seen[node] = true

	switch node.Kind {
	case memssa.KindLiveOnEntry:
		return lattice.NoEscape

	case memssa.KindPhi:
		best := lattice.NoEscape
		for _, in := range node.Incoming {
			if e := backward(in, host, seen); lattice.IsEscape(e) {
				return e
			} else {
				best = lattice.Meet(best, e)
			}
		}
		return best

	case memssa.KindUse:
		return backward(node.Defining, host, seen)

	case memssa.KindDef:
		switch instr := node.Instr.(type) {
		case *ssa.Store:
			if e := classify.Origin(instr.Addr); lattice.IsEscape(e) {
				return e
			}
		case *ssa.Call:
			// The call may route the memory state anywhere its result
			// flows; re-enter value tracking on the result to find out.
			if e := host.Track(instr, true); lattice.IsEscape(e) {
				return e
			}
		case *ssa.Go, *ssa.Defer:
			// No result value to track: the spawned or deferred call takes
			// over the memory state wholesale.
			return lattice.GlobalEscape
		}
		return backward(node.Defining, host, seen)

	default:
		return lattice.NoEscape
	}
}

// Forward walks the memory-SSA graph downstream from node — the def just
// created by storing into addr — looking for a later use that lets addr's
// contents escape further: a read through an aliasing address that itself
// escapes, or a call that may observe the stored value through an aliasing
// argument.
func Forward(node *memssa.Node, addr ssa.Value, host Host) lattice.Escape {
	return forward(node, addr, host, make(map[*memssa.Node]bool))
}

func forward(node *memssa.Node, addr ssa.Value, host Host, seen map[*memssa.Node]bool) lattice.Escape {
	if node == nil || seen[node] {
		return lattice.NoEscape
	}
	seen[node] = true

	best := lattice.NoEscape
	for _, user := range node.Users {
		e := forwardUser(user, addr, host, seen)
		if lattice.IsEscape(e) {
			return e
		}
		best = lattice.Meet(best, e)
	}
	return best
}

func forwardUser(node *memssa.Node, addr ssa.Value, host Host, seen map[*memssa.Node]bool) lattice.Escape {
	switch node.Kind {
	case memssa.KindPhi:
		// MemoryPhi: continue through the phi's own users (the forward,
		// downstream direction), not back through its incoming edges.
		return forward(node, addr, host, seen)

	case memssa.KindUse:
		load, ok := node.Instr.(*ssa.UnOp)
		if !ok {
			return forward(node, addr, host, seen)
		}
		if host.AliasOf(load.X, sizeOf(load.X), addr, sizeOf(addr)) == alias.NoAlias {
			return lattice.NoEscape
		}
		if e := host.Track(load, true); lattice.IsEscape(e) {
			return e
		}
		return forward(node, addr, host, seen)

	case memssa.KindDef:
		switch instr := node.Instr.(type) {
		case *ssa.Store:
			if host.AliasOf(instr.Addr, sizeOf(instr.Addr), addr, sizeOf(addr)) == alias.MustAlias {
				// A must-alias overwrite kills this store's value: nothing
				// further downstream can observe it through addr.
				return lattice.NoEscape
			}
			return forward(node, addr, host, seen)

		case *ssa.Call:
			if e := forwardCall(instr, addr, host); lattice.IsEscape(e) {
				return e
			}
			return forward(node, addr, host, seen)
		case *ssa.Go:
			if e := forwardCall(instr, addr, host); lattice.IsEscape(e) {
				return e
			}
			return forward(node, addr, host, seen)
		case *ssa.Defer:
			if e := forwardCall(instr, addr, host); lattice.IsEscape(e) {
				return e
			}
			return forward(node, addr, host, seen)

		default:
			return forward(node, addr, host, seen)
		}

	default:
		return lattice.NoEscape
	}
}

// forwardCall checks whether any argument to call may alias addr; if so the
// callee might stash addr's contents anywhere its own summary allows, so the
// verdict is deferred to the summariser via the aliasing argument itself.
func forwardCall(call ssa.CallInstruction, addr ssa.Value, host Host) lattice.Escape {
	common := call.Common()
	if common == nil {
		return lattice.NoEscape
	}
	best := lattice.NoEscape
	for _, arg := range common.Args {
		if host.AliasOf(arg, sizeOf(arg), addr, sizeOf(addr)) == alias.NoAlias {
			continue
		}
		if e := host.CallResult(call, arg); lattice.IsEscape(e) {
			return e
		} else {
			best = lattice.Meet(best, e)
		}
	}
	return best
}
