package jobqueue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/plags-org/judge/internal/logging"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

// HandlerFunc evaluates one job. A returned error marks the job
// failed; it never takes the pool down.
type HandlerFunc func(ctx context.Context, job Job) error

// Pool runs a fixed number of workers over a queue. Jobs for the same
// submission are serialized: a resubmitted id waits for the running
// evaluation instead of racing it.
type Pool struct {
	queue    Queue
	handle   HandlerFunc
	workers  int
	logger   *slog.Logger
	inflight *xsync.MapOf[string, *sync.Mutex]
}

func NewPool(queue Queue, handle HandlerFunc, workers int, logger *slog.Logger) *Pool {
	return &Pool{
		queue:    queue,
		handle:   handle,
		workers:  workers,
		logger:   logger,
		inflight: xsync.NewMapOf[string, *sync.Mutex](),
	}
}

// Run blocks until ctx is cancelled, then returns once every worker
// has finished its current job.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error {
			return p.runWorker(gctx, worker)
		})
	}
	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, worker int) error {
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		p.process(ctx, worker, job)
	}
}

func (p *Pool) process(ctx context.Context, worker int, job Job) {
	mu, _ := p.inflight.LoadOrCompute(job.SubmissionID, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	mu.Lock()
	defer mu.Unlock()

	// the job scoped logger rides the context into the handler
	jobCtx := logging.WithLogger(ctx, p.logger.With(
		"worker", worker,
		"submission_id", job.SubmissionID))
	jobCtx = logging.WithJobID(jobCtx, job.ID.String())
	logger := logging.FromContext(jobCtx)

	logger.Info("job started", "exercise", job.Exercise.String())
	if err := p.handle(jobCtx, job); err != nil {
		logger.Error("job failed", "error", err)
	} else {
		logger.Info("job finished")
	}
}
