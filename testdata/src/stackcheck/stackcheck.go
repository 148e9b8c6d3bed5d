// Package stackcheck exercises -check-directives verification of
// //escapelens:stack assertions.
package stackcheck

type Box struct{ f int }

var global *Box

// satisfied's allocation stays local, so its assertion holds and only the
// ordinary verdict line is reported.
func satisfied() int {
	//escapelens:stack
	x := &Box{f: 1} // want `%t[0-9]+\(.*\) is local\.`
	return x.f
}

// violated asserts a stack lifetime for an allocation that reaches a
// global: the verdict line is followed by a directive mismatch.
func violated() {
	//escapelens:stack
	x := &Box{f: 1} // want `%t[0-9]+\(.*\) globally escapes\.` `escapelens:stack directive not satisfied: %t[0-9]+\(.*\) globally escapes\.`
	global = x
}
