// Package callback delivers progress and verdicts back to the
// submission tracker over its inbound HTTP endpoint.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Payload is the tracker's inbound body. ResultPayload is present only
// on the final delivery at 100 percent.
type Payload struct {
	SubmissionID    string          `json:"submission_id"`
	Token           string          `json:"token"`
	ProgressPercent int             `json:"progress_percent"`
	ResultPayload   json.RawMessage `json:"result_payload,omitempty"`
}

// DeliveryError reports that the tracker could not be reached or kept
// rejecting the payload after every retry.
type DeliveryError struct {
	Url      string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver callback to %s after %d attempts: %v", e.Url, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

const maxRetries = 3

// Client posts payloads with bounded retry. A rejected or unreachable
// tracker yields a DeliveryError; the caller decides whether the
// delivery was load bearing.
type Client struct {
	http          *http.Client
	logger        *slog.Logger
	retryInterval time.Duration
}

func NewClient(logger *slog.Logger) *Client {
	return &Client{
		http:          &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
		retryInterval: 500 * time.Millisecond,
	}
}

// Deliver posts p to url, retrying transient failures and rejections
// up to three times with exponential backoff.
func (c *Client) Deliver(ctx context.Context, url string, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal callback payload: %w", err)
	}

	attempts := 0
	post := func() error {
		attempts++
		err := c.post(ctx, url, body)
		if err != nil {
			c.logger.Warn("callback delivery attempt failed",
				"url", url, "attempt", attempts,
				"submission_id", p.SubmissionID, "error", err)
		}
		return err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, maxRetries), ctx)
	if err := backoff.Retry(post, policy); err != nil {
		return &DeliveryError{Url: url, Attempts: attempts, Err: err}
	}
	return nil
}

// DeliverOnce posts p in a single attempt with no retry. Meant for
// intermediate progress updates, where a lost update is acceptable.
func (c *Client) DeliverOnce(ctx context.Context, url string, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal callback payload: %w", err)
	}
	return c.post(ctx, url, body)
}

func (c *Client) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("tracker responded %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
