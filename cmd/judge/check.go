package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/plags-org/judge/internal/conf"
)

type checkRow struct {
	unit    string
	health  int // 0 - OK, 1 - Warning, 2 - Error
	message string
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "verify that this host can run evaluations",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := conf.Load(cmd.String("config"))
			if err != nil {
				return err
			}
			rows := []checkRow{
				checkWrapper(cfg.Worker.WrapperPath),
				checkWritable("store root", cfg.Store.Root),
				checkWritable("work root", cfg.Worker.WorkRoot),
				checkQueue(cfg.Queue),
			}
			return printChecks(rows)
		},
	}
}

func checkWrapper(path string) checkRow {
	info, err := os.Stat(path)
	if err != nil {
		return checkRow{"wrapper", 2, fmt.Sprintf("%s not found", path)}
	}
	if info.Mode()&0o111 == 0 {
		return checkRow{"wrapper", 2, fmt.Sprintf("%s is not executable", path)}
	}
	if _, err := exec.LookPath(path); err != nil {
		return checkRow{"wrapper", 1, err.Error()}
	}
	return checkRow{"wrapper", 0, path}
}

func checkWritable(unit, dir string) checkRow {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return checkRow{unit, 2, err.Error()}
	}
	probe := filepath.Join(dir, ".judge-check")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return checkRow{unit, 2, err.Error()}
	}
	os.Remove(probe)
	return checkRow{unit, 0, dir}
}

func checkQueue(cfg conf.QueueConfig) checkRow {
	switch cfg.Backend {
	case "memory":
		return checkRow{"queue", 1, "in-memory queue, jobs do not survive restarts"}
	case "sqs":
		return checkRow{"queue", 0, cfg.SqsUrl}
	case "nats":
		return checkRow{"queue", 0, cfg.NatsUrl}
	default:
		return checkRow{"queue", 2, fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
}

func printChecks(rows []checkRow) error {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	failed := false
	for _, row := range rows {
		status := green.Sprint("ok")
		switch row.health {
		case 1:
			status = yellow.Sprint("warn")
		case 2:
			status = red.Sprint("fail")
			failed = true
		}
		fmt.Printf("%-12s %-6s %s\n", row.unit, status, row.message)
	}
	if failed {
		return fmt.Errorf("host is not ready to run evaluations")
	}
	return nil
}
