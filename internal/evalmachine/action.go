package evalmachine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/plags-org/judge/internal/exercise"
	"github.com/plags-org/judge/internal/limitrun"
)

// Action executes one state of a definition and reports the wrapped
// run. Implementations must not interpret the result; classification
// belongs to the machine.
type Action interface {
	Run(ctx context.Context, state exercise.State) (limitrun.Result, error)
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc func(ctx context.Context, state exercise.State) (limitrun.Result, error)

func (f ActionFunc) Run(ctx context.Context, state exercise.State) (limitrun.Result, error) {
	return f(ctx, state)
}

// DryRunAction synthesizes a clean success for every state without
// executing anything. Used to walk a definition's happy path when
// inspecting an uploaded bundle.
func DryRunAction() Action {
	return ActionFunc(func(_ context.Context, _ exercise.State) (limitrun.Result, error) {
		return limitrun.Result{ExitStatus: 0}, nil
	})
}

// ScriptAction runs each state's action script under the limiting
// wrapper. Every state gets a fresh working directory populated with
// the definition bundle and the submitted file, so a state cannot leak
// artifacts into the next one except through the bundle scripts'
// own conventions.
type ScriptAction struct {
	runner    *limitrun.Runner
	bundleDir string
	submitted string
	rename    string
	workRoot  string
	seq       int
}

// NewScriptAction builds the action for one submission. bundleDir is
// the validated definition bundle, submitted the path of the student
// file, rename the target filename from the definition's preprocess
// section (empty keeps the original basename), and workRoot a private
// scratch directory for this evaluation.
func NewScriptAction(runner *limitrun.Runner, bundleDir, submitted, rename, workRoot string) *ScriptAction {
	return &ScriptAction{
		runner:    runner,
		bundleDir: bundleDir,
		submitted: submitted,
		rename:    rename,
		workRoot:  workRoot,
	}
}

func (a *ScriptAction) Run(ctx context.Context, state exercise.State) (limitrun.Result, error) {
	workDir, err := a.prepareWorkDir(state)
	if err != nil {
		return limitrun.Result{}, err
	}
	return a.runner.Run(ctx, workDir, []string{"/bin/sh", "./" + state.Script}, state.Limits)
}

func (a *ScriptAction) prepareWorkDir(state exercise.State) (string, error) {
	a.seq++
	workDir := filepath.Join(a.workRoot, fmt.Sprintf("%02d-%s", a.seq, state.Name))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create state workdir: %w", err)
	}

	if err := copyTree(a.bundleDir, workDir); err != nil {
		return "", fmt.Errorf("failed to stage bundle for state %s: %w", state.Name, err)
	}

	target := a.rename
	if target == "" {
		target = filepath.Base(a.submitted)
	}
	if err := copyFile(a.submitted, filepath.Join(workDir, target), 0o644); err != nil {
		return "", fmt.Errorf("failed to stage submission for state %s: %w", state.Name, err)
	}
	return workDir, nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
