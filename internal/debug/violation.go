package debug

import (
	"go/token"
)

// Finding is the minimal shape a reportable escape verdict must have;
// satisfied by internal/report.Finding.
type Finding interface {
	Pos() token.Pos
	Message() string
}

var _ Traced = (*traced)(nil)

// Traced pairs a Finding with the classification trace that produced it.
type Traced interface {
	Finding
	DebugTrace() *Trace
}

// traced is the debug-enabled wrapper produced when tracing is active.
type traced struct {
	Finding
	trace *Trace
}

// Wrap attaches trace to f. If trace is nil, f is returned unwrapped.
func Wrap(f Finding, trace *Trace) Finding {
	if trace == nil {
		return f
	}
	return &traced{Finding: f, trace: trace}
}

func (t *traced) DebugTrace() *Trace { return t.trace }
