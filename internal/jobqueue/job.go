// Package jobqueue carries evaluation jobs from the submission
// endpoint to the worker pool. Backends share one wire format so a
// deployment can switch between them without draining.
package jobqueue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/plags-org/judge/internal/exercise"
)

// Job identifies one queued evaluation. The submitted file itself
// lives in the store under SubmissionID; only references travel on
// the queue.
type Job struct {
	ID           uuid.UUID         `json:"job_id"`
	SubmissionID string            `json:"submission_id"`
	Exercise     exercise.Identity `json:"exercise"`
	Token        string            `json:"token"`
	CallbackUrl  string            `json:"callback_url"`
	EnqueuedAt   time.Time         `json:"enqueued_at"`
}

// NewJob stamps a fresh job for a submission. V7 ids keep the queue
// roughly sortable by enqueue time.
func NewJob(submissionID string, id exercise.Identity, token, callbackUrl string) (Job, error) {
	jobID, err := uuid.NewV7()
	if err != nil {
		return Job{}, fmt.Errorf("failed to generate job id: %w", err)
	}
	return Job{
		ID:           jobID,
		SubmissionID: submissionID,
		Exercise:     id,
		Token:        token,
		CallbackUrl:  callbackUrl,
		EnqueuedAt:   time.Now().UTC(),
	}, nil
}

// EncodeBody marshals a job into the transport body: JSON compressed
// with zstd and wrapped in base64 so it survives text-only transports.
func EncodeBody(job Job) (string, error) {
	jsonJob, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()

	compressed := enc.EncodeAll(jsonJob, make([]byte, 0, len(jsonJob)))
	return base64.StdEncoding.EncodeToString(compressed), nil
}

// DecodeBody reverses EncodeBody.
func DecodeBody(body string) (Job, error) {
	compressed, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return Job{}, fmt.Errorf("failed to base64 decode job body: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return Job{}, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	jsonJob, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return Job{}, fmt.Errorf("failed to decompress job body: %w", err)
	}

	var job Job
	if err := json.Unmarshal(jsonJob, &job); err != nil {
		return Job{}, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return job, nil
}
