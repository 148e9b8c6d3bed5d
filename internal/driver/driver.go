// Package driver wires the tracker, the function summariser, and the alias
// oracle together into one Engine per analysis.Pass invocation, walks every
// source function's heap allocations, and assembles the per-function
// reports the top-level Analyzer renders.
package driver

import (
	"golang.org/x/tools/go/analysis/passes/buildssa"
	"golang.org/x/tools/go/ssa"

	"github.com/escapelens/escapelens/internal/alias"
	"github.com/escapelens/escapelens/internal/debug"
	"github.com/escapelens/escapelens/internal/lattice"
	"github.com/escapelens/escapelens/internal/report"
	"github.com/escapelens/escapelens/internal/summary"
	"github.com/escapelens/escapelens/internal/track"
)

// Policy configures the driver's behaviour where more than one sound
// choice exists.
type Policy struct {
	// UnanalyzableCallee is the verdict assigned to an argument passed to a
	// call whose static callee cannot be determined or has no SSA body.
	// Defaults to lattice.GlobalEscape; set to lattice.LocalEscape to
	// recover the more permissive historical behaviour via a driver flag.
	UnanalyzableCallee lattice.Escape

	// NoEscapeFuncs names functions annotated //escapelens:noescape: every
	// call through one of these skips the summariser and reports NoEscape
	// for every argument unconditionally.
	NoEscapeFuncs func(fn *ssa.Function) bool

	// Trace enables per-allocation classification traces, retrievable
	// afterwards through Engine.TraceFor. Off by default; set by the
	// -trace flag.
	Trace bool
}

// DefaultPolicy returns the conservative default policy.
func DefaultPolicy() Policy {
	return Policy{UnanalyzableCallee: lattice.GlobalEscape}
}

// Engine owns one analysis run's tracker, summary cache, and alias oracle.
// One Engine is created per analysis.Pass invocation (one per package). New
// gives it a private summary cache; NewShared backs it with a cache shared
// with other packages' Engines.
type Engine struct {
	tracker *track.Tracker
	cache   *summary.Cache
	policy  Policy
	traces  map[ssa.Value]*debug.Collector
}

// New creates an Engine backed by oracle (alias.Heuristic{} if nil).
func New(oracle alias.Oracle, policy Policy) *Engine {
	tracker := track.New(oracle)
	cache := summary.NewCache()
	cache.Tracker = tracker
	cache.Unanalyzable = policy.UnanalyzableCallee
	tracker.SetSummariser(&noEscapeOverride{cache: cache, tracker: tracker, isNoEscape: policy.NoEscapeFuncs})
	return &Engine{tracker: tracker, cache: cache, policy: policy, traces: make(map[ssa.Value]*debug.Collector)}
}

// TraceFor returns the classification trace collected for v when
// Policy.Trace was set, or nil if tracing was off or v was never a root.
func (e *Engine) TraceFor(v ssa.Value) *debug.Collector {
	return e.traces[v]
}

// NewShared creates an Engine with its own Tracker for walking this
// package's own allocations, but backed by a cache shared with every other
// package's Engine in the same whole-module run — so a callee summarised
// while analysing one package is reused, not recomputed, when a later
// package calls it. Every summary this Engine demands is computed with the
// Engine's own tracker (see summary.Cache.ResultForWith), so concurrent
// Engines share only the cache's mutex-guarded maps, never a tracker.
// Used by escapelens.ModuleAnalyzer and the cmd/escapelens -module loader,
// one Engine per package, all sharing one process-wide cache.
func NewShared(oracle alias.Oracle, policy Policy, cache *summary.Cache) *Engine {
	tracker := track.New(oracle)
	tracker.SetSummariser(&noEscapeOverride{cache: cache, tracker: tracker, isNoEscape: policy.NoEscapeFuncs})
	return &Engine{tracker: tracker, cache: cache, policy: policy, traces: make(map[ssa.Value]*debug.Collector)}
}

// noEscapeOverride wraps a *summary.Cache so a function carrying the
// //escapelens:noescape directive reports NoEscape for its parameters
// without the cache ever walking its body. It also pins the owning
// Engine's tracker to every summary request it forwards.
type noEscapeOverride struct {
	cache      *summary.Cache
	tracker    *track.Tracker
	isNoEscape func(fn *ssa.Function) bool
}

func (o *noEscapeOverride) ResultFor(call ssa.CallInstruction, arg ssa.Value) lattice.Escape {
	if o.isNoEscape != nil {
		if callee := call.Common().StaticCallee(); callee != nil && o.isNoEscape(callee) {
			return lattice.NoEscape
		}
	}
	return o.cache.ResultForWith(o.tracker, call, arg)
}

// Run analyses every source function in ssaInfo, skipping declarations
// (fn.Blocks == nil) and compiler-synthesized wrappers (fn.Synthetic != "").
func (e *Engine) Run(ssaInfo *buildssa.SSA) []report.FunctionReport {
	return e.RunFunctions(ssaInfo.SrcFuncs)
}

// RunFunctions analyses fns in order, with the same skipping rules as Run.
// Used directly by the standalone whole-module loader in cmd/escapelens,
// which assembles its function lists from ssautil.AllFunctions rather than
// a buildssa result.
func (e *Engine) RunFunctions(fns []*ssa.Function) []report.FunctionReport {
	var out []report.FunctionReport
	for _, fn := range fns {
		if fn.Blocks == nil || fn.Synthetic != "" {
			continue
		}
		fr := e.runFunction(fn)
		if len(fr.Findings) > 0 {
			out = append(out, fr)
		}
	}
	return out
}

func (e *Engine) runFunction(fn *ssa.Function) report.FunctionReport {
	fr := report.FunctionReport{Function: fn}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			alloc, ok := instr.(*ssa.Alloc)
			if !ok || !alloc.Heap {
				continue
			}
			var collector *debug.Collector
			if e.policy.Trace {
				collector = debug.NewCollector(alloc)
			}
			e.tracker.Trace = collector
			verdict := e.classify(alloc)
			e.tracker.Trace = nil
			if collector != nil {
				e.traces[alloc] = collector
			}
			fr.Findings = append(fr.Findings, report.Finding{
				Alloc:     alloc,
				FirstUser: firstUser(alloc),
				Verdict:   verdict,
			})
		}
	}
	return fr
}

// classify runs the tracker on one allocation root, downgrading to
// GlobalEscape if the walk panics (an unexpected SSA shape, a broken
// oracle): one bad allocation must not take down the rest of the run. The
// tracker's own deferred cleanup runs during unwinding, so the track set is
// consistent for the next root.
func (e *Engine) classify(alloc *ssa.Alloc) (verdict lattice.Escape) {
	defer func() {
		if recover() != nil {
			verdict = lattice.GlobalEscape
		}
	}()
	return e.tracker.Track(alloc, true)
}

func firstUser(v ssa.Value) ssa.Instruction {
	refs := v.Referrers()
	if refs == nil || len(*refs) == 0 {
		return nil
	}
	return (*refs)[0]
}
