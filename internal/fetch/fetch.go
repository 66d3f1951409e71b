// Package fetch materializes repository working trees for analysis.
package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/schema"
)

// New returns the fetcher for kind with the given clone timeout.
func New(kind schema.FetcherKind, timeout time.Duration) (contract.Fetcher, error) {
	switch kind {
	case schema.GitCLIFetcher, "":
		return NewGitCLI(timeout), nil
	case schema.GoGitFetcher:
		return NewGoGit(timeout), nil
	default:
		return nil, fmt.Errorf("unsupported fetcher: %s. Must be git or go-git", kind)
	}
}

// withTimeout bounds ctx by timeout when timeout is positive.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// prepareDest ensures the parent of dest exists and dest itself does not.
func prepareDest(dest string) error {
	if _, err := os.Lstat(dest); err == nil {
		return fmt.Errorf("destination %q already exists", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory for %q: %w", dest, err)
	}
	return nil
}

// discard removes a partially materialized tree after a failed fetch.
func discard(dest string) {
	if err := os.RemoveAll(dest); err != nil {
		contract.LogWarn(fmt.Sprintf("Failed to remove partial clone %s", dest), err)
	}
}
