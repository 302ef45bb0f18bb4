package callback

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	c := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.retryInterval = time.Millisecond
	return c
}

func TestDeliverPostsPayload(t *testing.T) {
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := Payload{
		SubmissionID:    "subm-001",
		Token:           "secret",
		ProgressPercent: 100,
		ResultPayload:   json.RawMessage(`{"accepted":true}`),
	}
	require.NoError(t, testClient().Deliver(context.Background(), srv.URL, p))

	assert.Equal(t, "subm-001", got.SubmissionID)
	assert.Equal(t, 100, got.ProgressPercent)
	assert.JSONEq(t, `{"accepted":true}`, string(got.ResultPayload))
}

func TestDeliverOmitsResultBeforeCompletion(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	p := Payload{SubmissionID: "subm-001", Token: "secret", ProgressPercent: 10}
	require.NoError(t, testClient().Deliver(context.Background(), srv.URL, p))
	assert.NotContains(t, body, "result_payload")
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := testClient().Deliver(context.Background(), srv.URL, Payload{SubmissionID: "s"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliverGivesUpAfterBoundedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := testClient().Deliver(context.Background(), srv.URL, Payload{SubmissionID: "s"})

	var delivErr *DeliveryError
	require.ErrorAs(t, err, &delivErr)
	assert.Equal(t, 4, delivErr.Attempts)
	assert.Equal(t, int32(4), calls.Load())
}

func TestDeliverOnceDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := testClient().DeliverOnce(context.Background(), srv.URL, Payload{SubmissionID: "s", ProgressPercent: 10})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeliverOncePostsPayload(t *testing.T) {
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	p := Payload{SubmissionID: "subm-001", Token: "secret", ProgressPercent: 50}
	require.NoError(t, testClient().DeliverOnce(context.Background(), srv.URL, p))
	assert.Equal(t, 50, got.ProgressPercent)
}

func TestDeliverUnreachableTracker(t *testing.T) {
	err := testClient().Deliver(context.Background(), "http://127.0.0.1:1/callback", Payload{})
	var delivErr *DeliveryError
	require.ErrorAs(t, err, &delivErr)
}
