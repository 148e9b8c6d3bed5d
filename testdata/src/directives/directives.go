// Package directives exercises the //escapelens:ignore, //escapelens:noescape,
// and //escapelens:stack directives.
package directives

type Box struct{ f int }

var global *Box

// ignoredLeak would normally report a GlobalEscape finding, but the
// trailing //escapelens:ignore directive suppresses it for this line.
func ignoredLeak() {
	x := &Box{f: 1} //escapelens:ignore
	global = x
}

// sink is annotated as not escaping its pointer parameter: callers through
// it should see NoEscape regardless of what the body actually does with p.
//escapelens:noescape
func sink(p *Box) {
	global = p
}

// callsSink feeds a fresh allocation into sink: because sink carries
// //escapelens:noescape, the call site must not propagate a GlobalEscape
// verdict back to this allocation.
func callsSink() {
	x := &Box{f: 1} // want `%t[0-9]+\(.*\) is local\.`
	sink(x)
}

// stackAsserted documents the //escapelens:stack directive's placement.
// The directive never changes the verdict; under -check-directives (off
// here) a mismatch between the assertion and the computed verdict is
// reported as its own diagnostic.
func stackAsserted() int {
	//escapelens:stack
	x := &Box{f: 1} // want `%t[0-9]+\(.*\) is local\.`
	return x.f
}
