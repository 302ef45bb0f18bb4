package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SqsApi is the slice of the SQS client the queue needs. Satisfied by
// *sqs.Client.
type SqsApi interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SqsQueue carries jobs over AWS SQS for multi node deployments.
type SqsQueue struct {
	client   SqsApi
	queueUrl string
	logger   *slog.Logger
}

func NewSqsQueue(client SqsApi, queueUrl string, logger *slog.Logger) *SqsQueue {
	return &SqsQueue{client: client, queueUrl: queueUrl, logger: logger}
}

func (q *SqsQueue) Enqueue(ctx context.Context, job Job) error {
	body, err := EncodeBody(job)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueUrl),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to send job to sqs: %v: %w", err, ErrUnavailable)
	}
	return nil
}

// Dequeue long polls until a job arrives or ctx is cancelled. The
// message is deleted before the job is handed out, so a worker crash
// loses the job rather than letting the visibility timeout requeue it.
// Undecodable bodies are deleted right away so they cannot clog the
// queue.
func (q *SqsQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		output, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueUrl),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     10,
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return Job{}, ctx.Err()
			}
			q.logger.Error("failed to receive from sqs", "error", err)
			select {
			case <-ctx.Done():
				return Job{}, ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range output.Messages {
			if msg.Body == nil || msg.ReceiptHandle == nil {
				continue
			}
			handle := *msg.ReceiptHandle

			job, err := DecodeBody(*msg.Body)
			if err != nil {
				q.logger.Error("dropping undecodable sqs message", "error", err)
				q.delete(ctx, handle)
				continue
			}

			if err := q.delete(ctx, handle); err != nil {
				// still visible to others; let a later receive take it
				q.logger.Error("failed to delete received sqs message", "error", err)
				continue
			}
			return job, nil
		}
	}
}

func (q *SqsQueue) delete(ctx context.Context, handle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueUrl),
		ReceiptHandle: aws.String(handle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete sqs message: %w", err)
	}
	return nil
}
