package agg

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/huangsam/locstat/internal/contract"
)

// prunedDirs are directory names never descended into.
var prunedDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"__pycache__":  {},
	"build":        {},
	"dist":         {},
	"target":       {},
}

// shouldPruneDir reports whether a non-root directory is excluded from the walk.
func shouldPruneDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ok := prunedDirs[name]
	return ok
}

// collect walks root and returns the regular, non-hidden files that pass
// the directory pruning and the user exclude patterns.
func (a *Aggregator) collect(ctx context.Context, root string) ([]candidate, error) {
	var files []candidate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable subtrees are skipped like unreadable files
			a.logger().WithError(err).WithField("path", path).Debug("Skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if shouldPruneDir(d.Name()) || contract.ShouldIgnore(rel, a.Excludes) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() {
			return nil
		}
		if contract.ShouldIgnore(rel, a.Excludes) {
			return nil
		}
		files = append(files, candidate{abs: path, rel: rel})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("walk cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to walk %q: %w", root, err)
	}
	return files, nil
}
