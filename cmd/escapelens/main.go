// Command escapelens is a static analysis tool that classifies heap
// allocations in Go source as local, locally escaping, or globally escaping.
//
// Usage:
//
//	escapelens ./...
//
// Or as a vet tool:
//
//	go vet -vettool=$(which escapelens) ./...
//
// Pass -module to load every matched package into one whole-program SSA view
// and analyse it in a single run: one summary cache is shared across package
// boundaries, so a callee summarised while analysing one package is reused
// when a later package calls it, and indirect calls (interface methods,
// function values) are resolved through a whole-program call graph instead
// of being written off as unanalyzable:
//
//	escapelens -module ./...
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"sort"

	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/analysis/singlechecker"
	"golang.org/x/tools/go/callgraph/cha"
	"golang.org/x/tools/go/callgraph/vta"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/escapelens/escapelens"
	"github.com/escapelens/escapelens/internal/alias"
	"github.com/escapelens/escapelens/internal/driver"
	"github.com/escapelens/escapelens/internal/lattice"
	"github.com/escapelens/escapelens/internal/report"
	"github.com/escapelens/escapelens/internal/summary"
	"github.com/escapelens/escapelens/internal/track"
)

// version is kept in canonical semver form; -version refuses to print a
// malformed string.
const version = "v0.3.0"

func main() {
	log.SetFlags(0)
	log.SetPrefix("escapelens: ")

	moduleMode := false
	args := make([]string, 0, len(os.Args)-1)
	for _, a := range os.Args[1:] {
		switch a {
		case "-module", "--module":
			moduleMode = true
		case "-version", "--version":
			if !semver.IsValid(version) {
				log.Fatalf("invalid version string %q", version)
			}
			fmt.Printf("escapelens %s\n", semver.Canonical(version))
			return
		default:
			args = append(args, a)
		}
	}
	os.Args = append(os.Args[:1], args...)

	if moduleMode {
		os.Exit(runModule(args))
	}
	singlechecker.Main(escapelens.Analyzer)
}

// runModule is the standalone whole-module mode: it loads the requested
// packages itself instead of running under the go/analysis checker, builds
// one SSA program spanning all of them, and walks every source function
// against a single shared summary cache.
func runModule(args []string) int {
	fs := flag.NewFlagSet("escapelens -module", flag.ExitOnError)
	unanalyzable := fs.String("unanalyzable-callee", "global",
		`verdict for arguments passed through a call whose callee cannot be resolved: "global" or "local"`)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	patterns := fs.Args()
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}

	cfg := &packages.Config{Mode: packages.LoadAllSyntax}
	initial, err := packages.Load(cfg, patterns...)
	if err != nil {
		log.Print(err)
		return 1
	}
	if packages.PrintErrors(initial) > 0 {
		return 1
	}

	prog, ssaPkgs := ssautil.AllPackages(initial, ssa.InstantiateGenerics)
	prog.Build()

	targets := make(map[*ssa.Package]bool)
	for _, p := range ssaPkgs {
		if p != nil {
			targets[p] = true
		}
	}
	funcsByPkg := sourceFunctions(prog, targets)

	policy := driver.DefaultPolicy()
	if *unanalyzable == "local" {
		policy.UnanalyzableCallee = lattice.LocalEscape
	}

	cache := summary.NewCache()
	cache.Unanalyzable = policy.UnanalyzableCallee
	cache.Resolve = buildResolver(prog)
	cache.SetTracker(track.New(alias.Heuristic{}))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	results := make([][]report.FunctionReport, len(ssaPkgs))
	for i, p := range ssaPkgs {
		if p == nil {
			continue
		}
		fns := funcsByPkg[p]
		i := i
		g.Go(func() error {
			eng := driver.NewShared(alias.Heuristic{}, policy, cache)
			results[i] = eng.RunFunctions(fns)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Print(err)
		return 1
	}

	for _, frs := range results {
		for _, fr := range frs {
			for _, line := range fr.Lines() {
				fmt.Println(line)
			}
		}
	}
	return 0
}

// sourceFunctions groups every user-written function (including function
// literals, excluding synthetic wrappers and bodiless declarations) by its
// owning package, each group in source-position order so the report order is
// stable.
func sourceFunctions(prog *ssa.Program, targets map[*ssa.Package]bool) map[*ssa.Package][]*ssa.Function {
	out := make(map[*ssa.Package][]*ssa.Function)
	for fn := range ssautil.AllFunctions(prog) {
		if fn.Pkg == nil || !targets[fn.Pkg] {
			continue
		}
		if fn.Blocks == nil || fn.Synthetic != "" {
			continue
		}
		out[fn.Pkg] = append(out[fn.Pkg], fn)
	}
	for _, fns := range out {
		sort.Slice(fns, func(i, j int) bool {
			if fns[i].Pos() != fns[j].Pos() {
				return fns[i].Pos() < fns[j].Pos()
			}
			return fns[i].RelString(nil) < fns[j].RelString(nil)
		})
	}
	return out
}

// buildResolver constructs a whole-program call graph (class-hierarchy
// analysis refined by variable type analysis) and returns a resolver mapping
// an indirect call site to its possible targets, for summary.Cache.Resolve.
func buildResolver(prog *ssa.Program) func(call ssa.CallInstruction) []*ssa.Function {
	cg := vta.CallGraph(ssautil.AllFunctions(prog), cha.CallGraph(prog))

	bySite := make(map[ssa.CallInstruction][]*ssa.Function)
	for _, node := range cg.Nodes {
		for _, edge := range node.Out {
			if edge.Site == nil || edge.Callee == nil || edge.Callee.Func == nil {
				continue
			}
			bySite[edge.Site] = append(bySite[edge.Site], edge.Callee.Func)
		}
	}
	for _, fns := range bySite {
		sort.Slice(fns, func(i, j int) bool {
			return fns[i].RelString(nil) < fns[j].RelString(nil)
		})
	}

	return func(call ssa.CallInstruction) []*ssa.Function {
		return bySite[call]
	}
}
