package escapelens

import (
	"sync"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/buildssa"

	"github.com/escapelens/escapelens/internal/alias"
	"github.com/escapelens/escapelens/internal/driver"
	"github.com/escapelens/escapelens/internal/summary"
	"github.com/escapelens/escapelens/internal/track"
)

// ModuleAnalyzer is the whole-module variant of Analyzer: every package
// the host driver analyses in this process shares one summary.Cache, so a
// callee summarised while walking one package's call sites is reused, not
// recomputed, the next time a different package calls it. The
// cmd/escapelens -module flag does not run it (that flag uses a standalone
// loader); see internal/driver.NewShared for the concurrency contract this
// relies on.
var ModuleAnalyzer = &analysis.Analyzer{
	Name:       "escapelensmodule",
	Doc:        "classifies heap allocations as local, locally escaping, or globally escaping, sharing call-site summaries across the whole module",
	Flags:      newFlagSet(),
	Requires:   []*analysis.Analyzer{buildssa.Analyzer},
	Run:        runModule,
	ResultType: resultType,
}

var (
	sharedCacheOnce sync.Once
	sharedCache     *summary.Cache
)

// moduleCache returns the process-wide summary cache, creating it (and its
// designated summarising tracker) on the first package analysed.
func moduleCache(policy driver.Policy) *summary.Cache {
	sharedCacheOnce.Do(func() {
		sharedCache = summary.NewCache()
		sharedCache.Unanalyzable = policy.UnanalyzableCallee
		sharedCache.SetTracker(track.New(alias.Heuristic{}))
	})
	return sharedCache
}

func runModule(pass *analysis.Pass) (any, error) {
	return runWithEngine(pass, func(policy driver.Policy) *driver.Engine {
		return driver.NewShared(alias.Heuristic{}, policy, moduleCache(policy))
	})
}
