package escapelens_test

import (
	"testing"

	"golang.org/x/tools/go/analysis/analysistest"

	"github.com/escapelens/escapelens"
)

func TestAnalyzer(t *testing.T) {
	testdata := analysistest.TestData()
	analysistest.Run(t, testdata, escapelens.Analyzer, "escapelens")
}

func TestFileFilter(t *testing.T) {
	testdata := analysistest.TestData()
	analysistest.Run(t, testdata, escapelens.Analyzer, "filefilter")
}

func TestDirectives(t *testing.T) {
	testdata := analysistest.TestData()
	analysistest.Run(t, testdata, escapelens.Analyzer, "directives")
}

func TestCheckDirectives(t *testing.T) {
	testdata := analysistest.TestData()
	if err := escapelens.Analyzer.Flags.Set("check-directives", "true"); err != nil {
		t.Fatal(err)
	}
	defer escapelens.Analyzer.Flags.Set("check-directives", "false")
	analysistest.Run(t, testdata, escapelens.Analyzer, "stackcheck")
}

func TestModuleAnalyzer(t *testing.T) {
	testdata := analysistest.TestData()
	analysistest.Run(t, testdata, escapelens.ModuleAnalyzer, "escapelens")
}
