// Package escapelens provides a static analysis tool that classifies every
// heap allocation in a Go function along a three-point escape lattice:
// NoEscape, LocalEscape (reachable from the function's parameters or free
// variables once it returns, but not from any global), and GlobalEscape
// (reachable from a package-level variable).
//
// # Problem
//
// A heap allocation's lifetime is only as short as its longest path through
// the program's data-flow graph. An allocation stored only into locals is
// safe to reclaim the moment its function returns; one threaded out through
// a parameter or a closure's captured variable outlives the call; one
// reachable from a global outlives the whole program run. Telling these
// apart by hand across a large, heavily aliased codebase is impractical —
// this analyzer automates it by walking the program's SSA form together
// with a synthesized memory-SSA view of every store, load, and call.
//
// # This Analyzer
//
// Reports one line per analysed heap allocation, grouped under a header
// line naming the enclosing function. See internal/report for the exact
// wording.
//
// # Directives
//
// Annotate source with:
//
//	//escapelens:ignore    - Suppress reporting for the next line or same line
//	//escapelens:noescape  - Mark function as not leaking its pointer params
//	//escapelens:stack     - Assert an allocation stays on the stack; verified
//	                         when -check-directives is set
//
// Pass -trace to log each allocation's memory-def and call-site decisions
// to stderr as it is classified.
package escapelens

import (
	"flag"
	"go/ast"
	"go/token"
	"log"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/buildssa"

	"github.com/escapelens/escapelens/internal/alias"
	"github.com/escapelens/escapelens/internal/debug"
	"github.com/escapelens/escapelens/internal/directive"
	"github.com/escapelens/escapelens/internal/driver"
	"github.com/escapelens/escapelens/internal/fix"
	"github.com/escapelens/escapelens/internal/lattice"
	"github.com/escapelens/escapelens/internal/report"
)

// Analyzer is the intraprocedural escape analyzer. It requires buildssa to
// construct SSA form, then walks every source function's heap allocations
// using the default structural alias oracle.
//
// Usage with go vet:
//
//	go vet -vettool=$(which escapelens) ./...
//
// Usage programmatically:
//
//	analysis.Run([]*analysis.Analyzer{escapelens.Analyzer}, pkgs)
var Analyzer = &analysis.Analyzer{
	Name:       "escapelens",
	Doc:        "classifies heap allocations as local, locally escaping, or globally escaping",
	Flags:      newFlagSet(),
	Requires:   []*analysis.Analyzer{buildssa.Analyzer},
	Run:        run,
	ResultType: resultType,
}

var unanalyzableCalleeFlag string
var traceFlag bool
var checkDirectivesFlag bool

func newFlagSet() flag.FlagSet {
	fs := flag.NewFlagSet("escapelens", flag.ExitOnError)
	fs.StringVar(&unanalyzableCalleeFlag, "unanalyzable-callee", "global",
		`verdict for arguments passed through a call whose callee cannot be resolved: "global" or "local"`)
	fs.BoolVar(&traceFlag, "trace", false,
		"log each allocation's memory-def and call-site decisions to stderr as it is classified")
	fs.BoolVar(&checkDirectivesFlag, "check-directives", false,
		"verify //escapelens:stack assertions against the computed verdicts and report mismatches")
	return *fs
}

func policyFromFlags() driver.Policy {
	p := driver.DefaultPolicy()
	if unanalyzableCalleeFlag == "local" {
		p.UnanalyzableCallee = lattice.LocalEscape
	}
	p.Trace = traceFlag
	return p
}

func run(pass *analysis.Pass) (any, error) {
	return runWithEngine(pass, func(policy driver.Policy) *driver.Engine {
		return driver.New(alias.Heuristic{}, policy)
	})
}

// runWithEngine implements both Analyzer.Run and ModuleAnalyzer.Run: every
// step is identical except for how the *driver.Engine is obtained — a fresh
// one per package for Analyzer, a shared one across the whole module for
// ModuleAnalyzer.
func runWithEngine(pass *analysis.Pass, engineFor func(driver.Policy) *driver.Engine) (any, error) {
	ssaInfo := pass.ResultOf[buildssa.Analyzer].(*buildssa.SSA)

	skipFiles := buildSkipFiles(pass)

	ignoreMaps := make(map[string]directive.IgnoreMap)
	funcIgnores := make(map[string]map[token.Pos]directive.FunctionIgnoreEntry)
	var stackMaps map[string]directive.StackMap
	if checkDirectivesFlag {
		stackMaps = make(map[string]directive.StackMap)
	}
	noEscapeFuncs := directive.NewNoEscapeFuncSet(pass.Fset, pass.TypesInfo)

	pkgPath := pass.Pkg.Path()
	for _, file := range pass.Files {
		filename := pass.Fset.Position(file.Pos()).Filename
		if skipFiles[filename] {
			continue
		}
		ignoreMaps[filename] = directive.BuildIgnoreMap(pass.Fset, file)
		funcIgnores[filename] = directive.BuildFunctionIgnoreSet(pass.Fset, file)
		if stackMaps != nil {
			stackMaps[filename] = directive.BuildStackMap(pass.Fset, file)
		}

		noEscapeFuncs.AddFile(file)
		for key := range directive.BuildNoEscapeFunctionSet(file, pkgPath) {
			noEscapeFuncs.Add(key)
		}
	}

	policy := policyFromFlags()
	policy.NoEscapeFuncs = noEscapeFuncs.Contains

	eng := engineFor(policy)
	reports := eng.Run(ssaInfo)
	fixer := fix.New(pass)

	c := newChecker(pass, ignoreMaps, funcIgnores, stackMaps, fixer)
	for _, fr := range reports {
		if skipFiles[pass.Fset.Position(fr.Function.Pos()).Filename] {
			continue
		}
		c.report(fr)
		if traceFlag {
			logTraces(pass, fr, eng)
		}
	}

	for _, ignoreMap := range ignoreMaps {
		for _, pos := range ignoreMap.GetUnusedIgnores() {
			pass.Reportf(pos, "unused escapelens:ignore directive")
		}
	}
	for _, pos := range noEscapeFuncs.GetUnusedDirectives() {
		pass.Reportf(pos, "unused escapelens:noescape directive: function has no pointer-shaped parameter")
	}
	for _, stackMap := range stackMaps {
		for _, pos := range stackMap.GetUnusedDirectives() {
			pass.Reportf(pos, "unused escapelens:stack directive: no analysed allocation on the next line")
		}
	}

	return reports, nil
}

// logTraces writes every finding's classification trace for fr to the
// standard logger, one block per allocation, when -trace is set.
func logTraces(pass *analysis.Pass, fr report.FunctionReport, eng *driver.Engine) {
	for _, f := range fr.Findings {
		collector := eng.TraceFor(f.Alloc)
		if collector == nil {
			continue
		}
		if text := debug.FormatTrace(fr.Function.RelString(nil), collector.TraceResult(), pass.Fset); text != "" {
			log.Print(text)
		}
	}
}

// buildSkipFiles creates a set of filenames to skip. Generated files are
// always skipped.
func buildSkipFiles(pass *analysis.Pass) map[string]bool {
	skipFiles := make(map[string]bool)
	for _, file := range pass.Files {
		filename := pass.Fset.Position(file.Pos()).Filename
		if ast.IsGenerated(file) {
			skipFiles[filename] = true
		}
	}
	return skipFiles
}
