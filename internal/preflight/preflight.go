package preflight

import (
	"context"

	"lipidquant/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory checks a batch run needs. Tool availability
// is not checked here: a missing converter fails only the jobs that need it.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Results directory", cfg.Paths.ResultsDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckRulesDirectory(cfg.Paths.RulesDir),
	}
}

// Failures returns the results that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
