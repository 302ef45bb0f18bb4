package jobqueue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NatsQueue carries jobs over a NATS subject. Every judge process in
// the same queue group takes turns, so one job reaches exactly one
// worker pool. Core NATS does not redeliver.
type NatsQueue struct {
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
	logger  *slog.Logger
}

func NewNatsQueue(nc *nats.Conn, subject, queueGroup string, logger *slog.Logger) (*NatsQueue, error) {
	sub, err := nc.QueueSubscribeSync(subject, queueGroup)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return &NatsQueue{nc: nc, subject: subject, sub: sub, logger: logger}, nil
}

func (q *NatsQueue) Enqueue(_ context.Context, job Job) error {
	body, err := EncodeBody(job)
	if err != nil {
		return err
	}
	if err := q.nc.Publish(q.subject, []byte(body)); err != nil {
		return fmt.Errorf("failed to publish job to nats: %v: %w", err, ErrUnavailable)
	}
	return nil
}

func (q *NatsQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		msg, err := q.sub.NextMsgWithContext(ctx)
		if err != nil {
			return Job{}, err
		}

		job, err := DecodeBody(string(msg.Data))
		if err != nil {
			q.logger.Error("dropping undecodable nats message", "error", err)
			continue
		}
		return job, nil
	}
}

func (q *NatsQueue) Close() error {
	return q.sub.Unsubscribe()
}
