package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Failures []SuiteFailure `json:"failures,omitempty"`
}

// SuiteFailure is one scenario that failed to load, run or pass.
type SuiteFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// FindScenarios returns the *.yaml and *.yml files in dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario in paths. A scenario that fails to
// load or execute counts as failed; the suite carries on.
func RunSuite(paths []string) *SuiteResult {
	res := &SuiteResult{}
	for _, path := range paths {
		res.Total++
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		scenario, err := LoadScenario(path)
		if err != nil {
			res.fail(name, path, err.Error())
			continue
		}
		name = scenario.Name

		result, err := Run(scenario)
		if err != nil {
			res.fail(name, path, err.Error())
			continue
		}
		if !result.Pass {
			res.fail(name, path, result.Errors...)
			continue
		}
		res.Passed++
	}
	return res
}

func (r *SuiteResult) fail(name, path string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, SuiteFailure{Scenario: name, Path: path, Errors: errs})
}
