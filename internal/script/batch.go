package script

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/erg0nix/petanque/internal/session"
)

// Expand resolves doublestar patterns (e.g. "proofs/**/*.yaml") to a sorted,
// de-duplicated list of script paths. A pattern without matches is an error.
func Expand(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("script: invalid glob pattern '%s': %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, statErr := os.Stat(pattern); statErr != nil {
				return nil, fmt.Errorf("script: no scripts match %s", pattern)
			}
			matches = []string{pattern}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// Result is the outcome of one script of a batch.
type Result struct {
	Path    string
	Outcome Outcome
	Err     error
}

// RunBatch runs every script at paths with at most jobs running at once. Each
// script gets its own session and connection. A failing script does not stop
// the others; results keep the order of paths.
func RunBatch(ctx context.Context, cfg session.Config, paths []string, jobs int) []Result {
	if jobs <= 0 {
		jobs = 1
	}

	base := cfg.Logger
	if base == nil {
		base = slog.Default()
	}

	results := make([]Result, len(paths))
	var g errgroup.Group
	g.SetLimit(jobs)

	for i, path := range paths {
		g.Go(func() error {
			results[i] = Result{Path: path}

			sc, err := Load(path)
			if err != nil {
				results[i].Err = err
				return nil
			}

			scriptCfg := cfg
			scriptCfg.Logger = base.With("script", path)
			results[i].Outcome, results[i].Err = Run(ctx, scriptCfg, sc)
			return nil
		})
	}

	g.Wait()
	return results
}

// Failed counts results with an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
