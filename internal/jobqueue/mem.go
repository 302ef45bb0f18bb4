package jobqueue

import (
	"context"
	"fmt"
)

// MemQueue is a process local FIFO for single node deployments and
// tests. Jobs do not survive a restart.
type MemQueue struct {
	jobs chan Job
}

func NewMemQueue(capacity int) *MemQueue {
	return &MemQueue{jobs: make(chan Job, capacity)}
}

func (q *MemQueue) Enqueue(_ context.Context, job Job) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("in-memory queue is full: %w", ErrUnavailable)
	}
}

func (q *MemQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case job := <-q.jobs:
		return job, nil
	}
}
