// Package filefilter tests file filtering functionality.
// Tests that generated files are always skipped (see generated.go).
package filefilter

type Widget struct{ n int }

var sink *Widget

// leaksInRegularFile should be reported because this file is not generated.
func leaksInRegularFile() {
	w := &Widget{n: 1} // want `%t[0-9]+\(.*\) globally escapes\.`
	sink = w
}
