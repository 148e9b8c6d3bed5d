// Package memssa synthesizes a single-variable memory-SSA view over a
// go/ssa function. go/ssa itself has no memory-SSA construct — memory
// operations (Store, Call, MapUpdate, Send, the MUL-UnOp form of a load) are
// just ordinary instructions threaded through each basic block's Instrs list
// in program order — so the walk/backward and walk/forward components need
// an adapter that turns that implicit ordering into an explicit
// MemoryDef/MemoryUse/MemoryPhi/LiveOnEntry graph.
//
// One Graph is built per ssa.Function and cached by the caller (internal/track
// keeps one per function it touches); construction is a single linear pass
// over the function's blocks plus a finalization pass that fills in each
// MemoryPhi's incoming edges once every block's exit value is known.
package memssa

import (
	"go/token"

	"golang.org/x/tools/go/ssa"
)

// Kind distinguishes the four memory-SSA node shapes.
type Kind int

const (
	// KindDef is a MemoryDef: an instruction that may write memory.
	KindDef Kind = iota
	// KindUse is a MemoryUse: an instruction that only reads memory.
	KindUse
	// KindPhi is a MemoryPhi: the memory state on entry to a block that has
	// predecessors, with one incoming edge per predecessor.
	KindPhi
	// KindLiveOnEntry is the sentinel memory value flowing into the
	// function's entry block, before any store has occurred.
	KindLiveOnEntry
)

func (k Kind) String() string {
	switch k {
	case KindDef:
		return "MemoryDef"
	case KindUse:
		return "MemoryUse"
	case KindPhi:
		return "MemoryPhi"
	case KindLiveOnEntry:
		return "LiveOnEntry"
	default:
		return "Unknown"
	}
}

// Node is one memory-SSA node: a MemoryDef/MemoryUse wrapping the
// instruction that produced it, or a MemoryPhi merging several incoming
// values, or the LiveOnEntry sentinel.
type Node struct {
	Kind Kind

	// Instr is set for KindDef and KindUse; nil otherwise.
	Instr ssa.Instruction

	// Defining is the node's single defining access, set for KindDef and
	// KindUse.
	Defining *Node

	// Incoming holds one entry per predecessor block, set for KindPhi.
	Incoming []*Node

	// Users lists every node whose Defining or Incoming references this
	// node, populated during finalization.
	Users []*Node
}

// Graph is the memory-SSA view of one function.
type Graph struct {
	fn       *ssa.Function
	byInstr  map[ssa.Instruction]*Node
	liveIn   map[*ssa.BasicBlock]*Node
	blockEnd map[*ssa.BasicBlock]*Node
	entry    *Node

	// nodes holds every def/use/phi node in block-and-instruction order, so
	// user-edge linking (and therefore every walker's visit order) is
	// deterministic across runs.
	nodes []*Node
}

// Build constructs the memory-SSA graph for fn. fn.Blocks must be non-nil
// (callers are expected to have already skipped declaration-only functions).
func Build(fn *ssa.Function) *Graph {
	g := &Graph{
		fn:       fn,
		byInstr:  make(map[ssa.Instruction]*Node),
		liveIn:   make(map[*ssa.BasicBlock]*Node),
		blockEnd: make(map[*ssa.BasicBlock]*Node),
		entry:    &Node{Kind: KindLiveOnEntry},
	}
	if fn == nil || fn.Blocks == nil {
		return g
	}

	var phiBlocks []*ssa.BasicBlock
	for _, b := range fn.Blocks {
		if len(b.Preds) == 0 {
			g.liveIn[b] = g.entry
			continue
		}
		phi := &Node{Kind: KindPhi}
		g.liveIn[b] = phi
		g.nodes = append(g.nodes, phi)
		phiBlocks = append(phiBlocks, b)
	}

	for _, b := range fn.Blocks {
		current := g.liveIn[b]
		for _, instr := range b.Instrs {
			switch v := instr.(type) {
			case *ssa.Store, *ssa.Call, *ssa.Go, *ssa.Defer, *ssa.MapUpdate, *ssa.Send:
				node := &Node{Kind: KindDef, Instr: instr, Defining: current}
				g.byInstr[instr] = node
				g.nodes = append(g.nodes, node)
				current = node
			case *ssa.UnOp:
				if v.Op == token.MUL {
					node := &Node{Kind: KindUse, Instr: v, Defining: current}
					g.byInstr[v] = node
					g.nodes = append(g.nodes, node)
				}
			}
		}
		g.blockEnd[b] = current
	}

	for _, b := range phiBlocks {
		phi := g.liveIn[b]
		phi.Incoming = make([]*Node, len(b.Preds))
		for i, pred := range b.Preds {
			phi.Incoming[i] = g.blockEnd[pred]
		}
	}

	g.linkUsers()
	return g
}

// linkUsers iterates g.nodes (never the maps) so every node's Users slice
// has the same order on every run: walker short-circuits would otherwise
// return different verdicts for the same function between invocations.
func (g *Graph) linkUsers() {
	add := func(parent, child *Node) {
		if parent == nil {
			return
		}
		parent.Users = append(parent.Users, child)
	}
	for _, n := range g.nodes {
		switch n.Kind {
		case KindPhi:
			for _, in := range n.Incoming {
				add(in, n)
			}
		default:
			add(n.Defining, n)
		}
	}
}

// NodeFor returns the memory-SSA node for a Store, Call, Go, Defer,
// MapUpdate, Send, or MUL-UnOp instruction, or nil if instr has no memory
// node (it performs no memory operation the adapter tracks).
func (g *Graph) NodeFor(instr ssa.Instruction) *Node {
	return g.byInstr[instr]
}

// LiveOnEntry returns the function's LiveOnEntry sentinel node.
func (g *Graph) LiveOnEntry() *Node {
	return g.entry
}
