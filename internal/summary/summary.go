// Package summary implements the interprocedural function summariser:
// given a call site and one of its pointer-shaped arguments, it reports how
// far that argument's address is observed to escape inside the callee,
// computing and caching a per-function summary (one escape verdict per
// parameter) the first time any call reaches that callee, and guarding
// against infinite recursion on a call cycle with a conservative,
// re-entrant seed.
package summary

import (
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/tools/go/ssa"

	"github.com/escapelens/escapelens/internal/identify"
	"github.com/escapelens/escapelens/internal/lattice"
)

// ValueTracker computes the escape verdict for an arbitrary root value
// inside the function that owns it. Implemented by internal/track.Tracker;
// kept as an interface here, symmetric with track.Summariser, to avoid a
// dependency cycle between internal/summary and internal/track.
type ValueTracker interface {
	Track(v ssa.Value, isRoot bool) lattice.Escape
}

// Cache computes and memoizes per-function parameter escape summaries.
// Concurrent callers (the whole-module analyzer fans call sites out across
// goroutines) share one Cache per analysis run; a singleflight.Group
// collapses concurrent first-requests for the same function into a single
// computation, and a mutex guards the summaries and re-entrancy maps.
type Cache struct {
	Tracker ValueTracker

	mu        sync.Mutex
	summaries map[*ssa.Function][]lattice.Escape
	reentrant map[*ssa.Function]bool

	group singleflight.Group

	// Unanalyzable governs the verdict assigned to a parameter of a
	// function this cache cannot summarise (no SSA body, e.g. an
	// intrinsic, a cgo stub, or an external declaration). Defaults to
	// lattice.GlobalEscape, the conservative choice; a driver.Policy may
	// relax it to lattice.LocalEscape via the -unanalyzable-callee flag.
	Unanalyzable lattice.Escape

	// Resolve, when non-nil, names the possible targets of a call whose
	// static callee cannot be determined (an interface method call, a call
	// through a function value). The whole-module loader installs a
	// callgraph-backed resolver here; without one every such call falls
	// back to Unanalyzable.
	Resolve func(call ssa.CallInstruction) []*ssa.Function
}

// NewCache creates a Cache. tracker may be installed after construction via
// SetTracker when the Tracker and the Cache must be wired together after
// both have been constructed (see internal/track.Tracker.SetSummariser).
func NewCache() *Cache {
	return &Cache{
		summaries: make(map[*ssa.Function][]lattice.Escape),
		reentrant: make(map[*ssa.Function]bool),
	}
}

// SetTracker installs the value tracker used to compute fresh summaries.
func (c *Cache) SetTracker(t ValueTracker) {
	c.Tracker = t
}

// ResultFor implements track.Summariser using the cache's default Tracker.
func (c *Cache) ResultFor(call ssa.CallInstruction, arg ssa.Value) lattice.Escape {
	return c.ResultForWith(c.Tracker, call, arg)
}

// ResultForWith resolves call's callee, looks up (computing with tracker if
// necessary) its parameter summary, and returns the meet of the verdicts for
// every formal parameter that arg was passed as. Calls whose static callee cannot be
// determined (an interface method call, a call through a function value)
// go through Resolve when installed, else fall back to Unanalyzable.
//
// The tracker is threaded explicitly so a summary demanded from inside an
// Engine's walk is computed with that Engine's own tracker: summarisation
// nests (f's summary needs g's needs h's) on one goroutine, so the tracker
// is never shared across goroutines and the cache's only cross-goroutine
// state is its mutex-guarded maps.
func (c *Cache) ResultForWith(tracker ValueTracker, call ssa.CallInstruction, arg ssa.Value) lattice.Escape {
	common := call.Common()
	if common == nil {
		return c.Unanalyzable
	}
	callee := common.StaticCallee()
	if callee == nil || callee.Blocks == nil {
		return c.resolveIndirect(tracker, call, arg)
	}

	index := -1
	for i, a := range common.Args {
		if a == arg {
			index = i
			break
		}
	}
	if index < 0 {
		return c.Unanalyzable
	}

	verdicts := c.SummariseWith(tracker, callee)
	result := lattice.NoEscape
	for i := index; i < len(common.Args); i++ {
		if common.Args[i] != arg {
			continue
		}
		if i >= len(verdicts) {
			return c.Unanalyzable
		}
		result = lattice.Meet(result, verdicts[i])
	}
	return result
}

// resolveIndirect meets the summaries of every possible target Resolve names
// for a call with no static callee. An invoke-mode call's Args omit the
// receiver while the target's Params include it, so the argument's position
// shifts by one there. Any target without a body, or a missing resolver,
// yields Unanalyzable for the whole call.
func (c *Cache) resolveIndirect(tracker ValueTracker, call ssa.CallInstruction, arg ssa.Value) lattice.Escape {
	if c.Resolve == nil {
		return c.Unanalyzable
	}
	targets := c.Resolve(call)
	if len(targets) == 0 {
		return c.Unanalyzable
	}

	common := call.Common()
	index := -1
	for i, a := range common.Args {
		if a == arg {
			index = i
			break
		}
	}
	if index < 0 {
		return c.Unanalyzable
	}
	if common.IsInvoke() {
		index++
	}

	best := lattice.NoEscape
	for _, target := range targets {
		if target == nil || target.Blocks == nil {
			return c.Unanalyzable
		}
		verdicts := c.SummariseWith(tracker, target)
		if index >= len(verdicts) {
			return c.Unanalyzable
		}
		best = lattice.Meet(best, verdicts[index])
		if best == lattice.GlobalEscape {
			return best
		}
	}
	return best
}

// Summarise returns fn's per-parameter escape summary via the cache's
// default Tracker, computing it on first request.
func (c *Cache) Summarise(fn *ssa.Function) []lattice.Escape {
	return c.SummariseWith(c.Tracker, fn)
}

// SummariseWith returns fn's per-parameter escape summary, computing it
// with tracker on first request. A function already being summarised higher
// up the call stack (a recursion or mutual-recursion cycle) reports its
// re-entrant seed, every parameter provisionally GlobalEscape, to the inner
// request; the outer computation then stores the refined result once it
// actually completes.
func (c *Cache) SummariseWith(tracker ValueTracker, fn *ssa.Function) []lattice.Escape {
	c.mu.Lock()
	if v, ok := c.summaries[fn]; ok {
		c.mu.Unlock()
		return v
	}
	if c.reentrant[fn] {
		c.mu.Unlock()
		return seedSummary(fn)
	}
	c.mu.Unlock()

	key := identify.Function(fn)
	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		if v, ok := c.summaries[fn]; ok {
			c.mu.Unlock()
			return v, nil
		}
		c.reentrant[fn] = true
		c.mu.Unlock()

		result := c.compute(tracker, fn)

		c.mu.Lock()
		delete(c.reentrant, fn)
		c.summaries[fn] = result
		c.mu.Unlock()

		return result, nil
	})
	return v.([]lattice.Escape)
}

func (c *Cache) compute(tracker ValueTracker, fn *ssa.Function) []lattice.Escape {
	out := make([]lattice.Escape, len(fn.Params))
	for i, p := range fn.Params {
		out[i] = tracker.Track(p, true)
	}
	return out
}

// seedSummary is the conservative result reported for a function whose
// summarisation is already in progress on the current call path: every
// parameter is assumed to escape globally until the enclosing computation
// proves otherwise, so a recursive cycle cannot be used to smuggle a false
// NoEscape verdict past the cache.
func seedSummary(fn *ssa.Function) []lattice.Escape {
	out := make([]lattice.Escape, len(fn.Params))
	for i := range out {
		out[i] = lattice.GlobalEscape
	}
	return out
}
