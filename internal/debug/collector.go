package debug

import (
	"go/token"

	"golang.org/x/tools/go/ssa"
)

// Collector accumulates a Trace for a single root value's classification.
// A nil *Collector is valid and every method is a no-op, so call sites can
// unconditionally thread a (possibly nil) collector through the tracker
// without branching on whether tracing is enabled.
type Collector struct {
	trace *Trace
}

// NewCollector creates a Collector seeded with root's identity.
func NewCollector(root ssa.Value) *Collector {
	return &Collector{trace: &Trace{Root: NewRootInfo(root)}}
}

// Step appends one hop to the trace.
func (c *Collector) Step(pos token.Pos, kind, detail, verdict string) {
	if c == nil {
		return
	}
	c.trace.Steps = append(c.trace.Steps, Step{
		Pos:     pos,
		Kind:    kind,
		Detail:  detail,
		Verdict: verdict,
	})
}

// TraceResult returns the accumulated trace, or nil if c is nil.
func (c *Collector) TraceResult() *Trace {
	if c == nil {
		return nil
	}
	return c.trace
}
