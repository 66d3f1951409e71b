package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/huangsam/locstat/internal/contract"
)

// GoGit implements the Fetcher interface in-process with go-git.
type GoGit struct {
	Timeout time.Duration
}

var _ contract.Fetcher = &GoGit{} // Compile-time check

// NewGoGit creates a new instance of the go-git fetcher.
func NewGoGit(timeout time.Duration) *GoGit {
	return &GoGit{Timeout: timeout}
}

// Fetch runs a shallow single-branch clone of source into dest.
func (g *GoGit) Fetch(ctx context.Context, source, dest string) error {
	if err := prepareDest(dest); err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, g.Timeout)
	defer cancel()

	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:          strings.TrimPrefix(source, "file://"),
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		// An empty repository is a valid, empty tree.
		discard(dest)
		if mkErr := os.MkdirAll(dest, 0o755); mkErr != nil {
			return fmt.Errorf("failed to create empty tree: %w", mkErr)
		}
		return nil
	}
	discard(dest)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("clone timed out after %s", g.Timeout)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("clone cancelled: %w", ctx.Err())
	}
	return fmt.Errorf("clone failed: %w", err)
}
