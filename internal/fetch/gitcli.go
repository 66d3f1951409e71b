package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/huangsam/locstat/internal/contract"
)

// GitCLI implements the Fetcher interface by executing the
// local 'git' binary installed on the machine.
type GitCLI struct {
	Binary  string
	Timeout time.Duration
}

var _ contract.Fetcher = &GitCLI{} // Compile-time check

// NewGitCLI creates a new instance of the git binary fetcher.
func NewGitCLI(timeout time.Duration) *GitCLI {
	return &GitCLI{Binary: "git", Timeout: timeout}
}

// Fetch runs a shallow clone of source into dest.
func (g *GitCLI) Fetch(ctx context.Context, source, dest string) error {
	if err := prepareDest(dest); err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, g.Timeout)
	defer cancel()

	args := []string{"clone", "--depth", "1", "--quiet", "--", source, dest}
	cmd := exec.CommandContext(ctx, g.Binary, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	discard(dest)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("git clone timed out after %s", g.Timeout)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("git clone cancelled: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("git clone failed: %s", strings.TrimSpace(string(out)))
	}
	return fmt.Errorf("git clone failed: %w. Ensure Git is installed and available on your PATH", err)
}
