package debug

import (
	"go/token"

	"golang.org/x/tools/go/ssa"
)

// Trace contains the collected classification trace for one root value.
type Trace struct {
	Root  RootInfo
	Steps []Step
}

// Step records one hop the tracker took while classifying a root: a store
// of a tracked value whose memory walks were run, or a call-site summary
// consulted.
type Step struct {
	Pos     token.Pos
	Kind    string // "memory-def" or "call"
	Detail  string // e.g. the instruction's String() form
	Verdict string // the escape verdict assigned at this step, if any
}

// RootInfo describes the value a trace was collected for.
type RootInfo struct {
	Pos      token.Pos
	VarName  string
	SSAValue string
}

// NewRootInfo creates RootInfo from an SSA value.
func NewRootInfo(root ssa.Value) RootInfo {
	return RootInfo{
		Pos:      root.Pos(),
		VarName:  root.Name(),
		SSAValue: root.String(),
	}
}
