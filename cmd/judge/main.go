package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/plags-org/judge/internal/callback"
	"github.com/plags-org/judge/internal/conf"
	"github.com/plags-org/judge/internal/defstore"
	"github.com/plags-org/judge/internal/httpsrv"
	"github.com/plags-org/judge/internal/jobqueue"
	"github.com/plags-org/judge/internal/judgesrvc"
	"github.com/plags-org/judge/internal/logging"
)

func main() {
	cmd := &cli.Command{
		Name:  "judge",
		Usage: "evaluate student submissions against exercise definitions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "judge.toml",
				Usage:   "path to the configuration file",
			},
		},
		Commands: []*cli.Command{
			checkCommand(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, cmd.String("config"))
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := conf.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Level())
	slog.SetDefault(logger)

	store, err := defstore.NewStore(cfg.Store.Root, logger)
	if err != nil {
		return err
	}

	queue, err := buildQueue(ctx, cfg.Queue, logger)
	if err != nil {
		return err
	}

	srvc := judgesrvc.New(judgesrvc.Config{
		Store:       store,
		Queue:       queue,
		Callback:    callback.NewClient(logger),
		CallbackUrl: cfg.Callback.Url,
		ApiToken:    cfg.Server.ApiToken,
		WrapperPath: cfg.Worker.WrapperPath,
		WorkRoot:    cfg.Worker.WorkRoot,
		Logger:      logger,
	})

	pool := jobqueue.NewPool(queue, srvc.HandleJob, cfg.Worker.Count, logger)
	server := httpsrv.New(srvc, cfg.Server.AllowedOrigins, logger)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("judge starting",
		"address", cfg.Server.Address,
		"queue", cfg.Queue.Backend,
		"workers", cfg.Worker.Count)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return server.Start(gctx, cfg.Server.Address) })
	g.Go(func() error { return pool.Run(gctx) })
	return g.Wait()
}

func buildQueue(ctx context.Context, cfg conf.QueueConfig, logger *slog.Logger) (jobqueue.Queue, error) {
	switch cfg.Backend {
	case "memory":
		return jobqueue.NewMemQueue(cfg.Capacity), nil
	case "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to load AWS config: %w", err)
		}
		return jobqueue.NewSqsQueue(sqs.NewFromConfig(awsCfg), cfg.SqsUrl, logger), nil
	case "nats":
		nc, err := nats.Connect(cfg.NatsUrl)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to NATS: %w", err)
		}
		return jobqueue.NewNatsQueue(nc, cfg.NatsSubject, cfg.NatsGroup, logger)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}
