package jobqueue

import (
	"context"
	"errors"
)

// ErrUnavailable reports that the queue cannot take another job right
// now. The submission endpoint turns it into a retryable response
// instead of failing the submission outright.
var ErrUnavailable = errors.New("job queue unavailable")

// Queue is the transport between the submission endpoint and the
// worker pool. Enqueue never blocks on a full queue; Dequeue blocks
// until a job or ctx cancellation. A dequeued job is removed from the
// backend before it is handed out, so delivery is at-most-once: a
// worker crash loses the job instead of replaying its side effects.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
}
