package preflight

import (
	"context"
	"fmt"

	"musicsync/internal/config"
)

// minTempSpace is the scratch space one transcoded file may need.
const minTempSpace = 64 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckReadableDirectory("Source directory", cfg.Paths.SourceDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
	}
	if results[len(results)-1].Passed {
		results = append(results, CheckFreeSpace("Temp space", cfg.Paths.TempDir, minTempSpace))
	}
	results = append(results, CheckTarget(cfg))

	for _, status := range CheckSystemDeps(cfg) {
		if status.Optional && !status.Available {
			continue
		}
		detail := status.Command
		if !status.Available {
			detail = fmt.Sprintf("%s (%s)", status.Command, status.Detail)
		}
		results = append(results, Result{Name: status.Name, Passed: status.Available, Detail: detail})
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
