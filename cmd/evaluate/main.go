package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/plags-org/judge/internal/evalmachine"
	"github.com/plags-org/judge/internal/exercise"
	"github.com/plags-org/judge/internal/limitrun"
	"github.com/plags-org/judge/internal/logging"
)

func main() {
	cmd := &cli.Command{
		Name:  "evaluate",
		Usage: "run one submission against a local exercise bundle",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "bundle",
				Aliases:  []string{"b"},
				Usage:    "exercise bundle directory",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "submission",
				Aliases:  []string{"s"},
				Usage:    "submitted file to evaluate",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "wrapper",
				Value: "/usr/local/bin/limitrace",
				Usage: "limiting wrapper binary",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "walk the state graph without running actions",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the verdict as JSON",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log every state transition",
			},
		},
		Action: evaluate,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func evaluate(ctx context.Context, cmd *cli.Command) error {
	level := slog.LevelWarn
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := logging.New(level)

	bundleDir := cmd.String("bundle")
	def, err := exercise.ValidateBundleDir(bundleDir)
	if err != nil {
		return err
	}

	var action evalmachine.Action
	if cmd.Bool("dry-run") {
		action = evalmachine.DryRunAction()
	} else {
		workRoot, err := os.MkdirTemp("", "evaluate-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(workRoot)

		action = evalmachine.NewScriptAction(
			limitrun.NewRunner(cmd.String("wrapper")),
			bundleDir, cmd.String("submission"), def.Rename, workRoot)
	}

	verdict, err := evalmachine.New(def, action, logger).Evaluate(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(verdict)
	}

	printVerdict(def, verdict)
	return nil
}

func printVerdict(def *exercise.Definition, verdict *evalmachine.Verdict) {
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	dim := color.New(color.Faint)

	fmt.Printf("%s %s\n", dim.Sprint("exercise:"), def.ExerciseName)
	for i, step := range verdict.Steps {
		marker := green.Sprint("ok")
		if step.Outcome != exercise.OutcomeSuccess {
			marker = red.Sprint(string(step.Outcome))
		}
		fmt.Printf("  %2d. %-20s %s  (exit %d, %d us cpu)\n",
			i+1, step.State, marker,
			step.ExitStatus, step.Stats.UserTimeUsec+step.Stats.SystemTimeUsec)
	}

	terminal := red.Sprint(verdict.Terminal)
	if verdict.Accepted {
		terminal = green.Sprint(verdict.Terminal)
	}
	fmt.Printf("%s %s  (%s)\n", dim.Sprint("terminal:"), terminal, verdict.TotalTime.Round(time.Millisecond))
}
