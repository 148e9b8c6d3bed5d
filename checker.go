package escapelens

import (
	"go/token"
	"reflect"

	"golang.org/x/tools/go/analysis"

	"github.com/escapelens/escapelens/internal/directive"
	"github.com/escapelens/escapelens/internal/fix"
	"github.com/escapelens/escapelens/internal/lattice"
	"github.com/escapelens/escapelens/internal/report"
)

var resultType = reflect.TypeOf([]report.FunctionReport{})

// checker renders FunctionReports through the analysis.Pass, applying
// line-level ignore directives and deduplicating by position the same way a
// compiler diagnostic pass would.
type checker struct {
	pass        *analysis.Pass
	ignoreMaps  map[string]directive.IgnoreMap
	funcIgnores map[string]map[token.Pos]directive.FunctionIgnoreEntry
	stackMaps   map[string]directive.StackMap
	fixer       *fix.Generator
	reported    map[token.Pos]bool
}

func newChecker(
	pass *analysis.Pass,
	ignoreMaps map[string]directive.IgnoreMap,
	funcIgnores map[string]map[token.Pos]directive.FunctionIgnoreEntry,
	stackMaps map[string]directive.StackMap,
	fixer *fix.Generator,
) *checker {
	return &checker{
		pass:        pass,
		ignoreMaps:  ignoreMaps,
		funcIgnores: funcIgnores,
		stackMaps:   stackMaps,
		fixer:       fixer,
		reported:    make(map[token.Pos]bool),
	}
}

// report renders every finding in fr, skipping a function entirely ignored
// via //escapelens:ignore on its declaration and individual findings whose
// line carries the directive.
func (c *checker) report(fr report.FunctionReport) {
	fn := fr.Function
	filename := c.pass.Fset.Position(fn.Pos()).Filename

	ignoreMap := c.ignoreMaps[filename]
	if funcIgnoreSet, ok := c.funcIgnores[filename]; ok {
		if entry, ignored := funcIgnoreSet[fn.Pos()]; ignored {
			if ignoreMap != nil {
				ignoreMap.MarkUsed(entry.DirectiveLine)
			}
			return
		}
	}

	for _, f := range fr.Findings {
		c.reportFinding(f, ignoreMap, c.stackMaps[filename])
	}
}

func (c *checker) reportFinding(f report.Finding, ignoreMap directive.IgnoreMap, stackMap directive.StackMap) {
	pos := f.Pos()
	if c.reported[pos] {
		return
	}
	c.reported[pos] = true

	line := c.pass.Fset.Position(pos).Line
	if ignoreMap != nil && ignoreMap.ShouldIgnore(line) {
		return
	}

	diag := analysis.Diagnostic{Pos: pos, Message: f.Message()}
	if c.fixer != nil {
		diag.SuggestedFixes = c.fixer.Generate(f)
	}
	c.pass.Report(diag)

	if stackMap != nil {
		if _, asserted := stackMap.DirectiveFor(line); asserted && f.Verdict != lattice.NoEscape {
			c.pass.Reportf(pos, "escapelens:stack directive not satisfied: %s", f.Message())
		}
	}
}
