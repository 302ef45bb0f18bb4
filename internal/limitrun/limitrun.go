// Package limitrun executes commands under a resource limiting wrapper
// and interprets the statistics trailer the wrapper appends to stderr.
package limitrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Result is one wrapped run: the process's captured streams with the
// trailer stripped, its usage statistics and its limit detection flags.
type Result struct {
	ExitStatus int
	Stdout     string
	Stderr     string
	Stats      Stats
	Detect     Detection
}

// Runner invokes the limiting wrapper binary. The wrapper enforces the
// ceilings and appends the trailer; Runner only arms a relaxed backstop
// kill in case the wrapper itself misbehaves.
type Runner struct {
	wrapperPath string
}

func NewRunner(wrapperPath string) *Runner {
	return &Runner{wrapperPath: wrapperPath}
}

// Run executes command inside workDir under lim. Limit overruns are
// reported through Result.Detect, not as an error. A missing or broken
// trailer yields a MalformedTrailerError.
func (r *Runner) Run(ctx context.Context, workDir string, command []string, lim Limits) (Result, error) {
	if len(command) == 0 {
		return Result{}, fmt.Errorf("empty command")
	}

	// The wrapper kills the process at wall+1 on its own; give it two
	// more seconds before the backstop fires.
	backstop := lim.WallTime + 3*time.Second
	runCtx, cancel := context.WithTimeout(ctx, backstop)
	defer cancel()

	argv := append(lim.ToArgs(), command...)
	cmd := exec.CommandContext(runCtx, r.wrapperPath, argv...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("failed to run wrapper %s: %w", r.wrapperPath, err)
		}
		if runCtx.Err() != nil {
			return Result{}, fmt.Errorf("wrapper did not finish within backstop %s: %w", backstop, runCtx.Err())
		}
		// nonzero exit of the wrapped process; the trailer is still
		// expected and carries the authoritative exit status
	}

	remainder, stats, detect, err := ParseTrailer(stderr.String())
	if err != nil {
		return Result{}, err
	}

	return Result{
		ExitStatus: int(detect.ExitStatus),
		Stdout:     stdout.String(),
		Stderr:     remainder,
		Stats:      stats,
		Detect:     detect,
	}, nil
}
