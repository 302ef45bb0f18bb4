package judgesrvc_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/plags-org/judge/api"
	"github.com/plags-org/judge/internal/callback"
	"github.com/plags-org/judge/internal/defstore"
	"github.com/plags-org/judge/internal/exercise"
	"github.com/plags-org/judge/internal/jobqueue"
	"github.com/plags-org/judge/internal/judgesrvc"
	"github.com/plags-org/judge/internal/srvcerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "shared-secret"

const settingsDoc = `{
  "schema_version": "v1.0",
  "exercise": {"name": "echo-answer", "version": "1"},
  "judge": {
    "environment": {"name": "python3", "version": ""},
    "preprocess": {"rename": "main.py"},
    "evaluation": {
      "initial_state": "run",
      "terminal_states": ["reject"],
      "max_total_time": "30s",
      "max_transitions": 4,
      "states": {
        "run": {
          "action": "run.sh",
          "limits": {"cpu_time": "2s", "wall_time": "4s", "memory": "64MiB"},
          "transition": {"success": "accept", "otherwise": "reject"}
        }
      }
    }
  }
}`

const fakeWrapper = `#!/bin/sh
shift 5
"$@"
status=$?
printf '====    limitrace statistics    ====\n' >&2
printf 'ru_utime_usec:900\tru_stime_usec:100\twall_time_usec:1500\tru_maxrss:2048\tru_minflt:5\tru_majflt:0\tru_inblock:0\tru_oublock:0\tru_nvcsw:1\tru_nivcsw:0\n' >&2
printf 'cpu_overuse:0\tmemory_overuse:0\tutime_overuse:0\tstime_overuse:0\tas_overuse:0\trss_overuse:0\texit_status:%d\n' $status >&2
exit $status
`

type trackerStub struct {
	mu       sync.Mutex
	payloads []callback.Payload
	reject   bool
}

func (ts *trackerStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p callback.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ts.mu.Lock()
		ts.payloads = append(ts.payloads, p)
		reject := ts.reject
		ts.mu.Unlock()
		if reject {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (ts *trackerStub) received() []callback.Payload {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]callback.Payload, len(ts.payloads))
	copy(out, ts.payloads)
	return out
}

type fixture struct {
	srvc    *judgesrvc.JudgeService
	queue   *jobqueue.MemQueue
	tracker *trackerStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := defstore.NewStore(t.TempDir(), logger)
	require.NoError(t, err)

	wrapper := filepath.Join(t.TempDir(), "limitrace")
	require.NoError(t, os.WriteFile(wrapper, []byte(fakeWrapper), 0o755))

	tracker := &trackerStub{}
	srv := httptest.NewServer(tracker.handler())
	t.Cleanup(srv.Close)

	queue := jobqueue.NewMemQueue(16)
	srvc := judgesrvc.New(judgesrvc.Config{
		Store:       store,
		Queue:       queue,
		Callback:    callback.NewClient(logger),
		CallbackUrl: srv.URL,
		ApiToken:    testToken,
		WrapperPath: wrapper,
		WorkRoot:    t.TempDir(),
		Logger:      logger,
	})
	return &fixture{srvc: srvc, queue: queue, tracker: tracker}
}

func exerciseRef() api.ExerciseRef {
	return api.ExerciseRef{
		Agency:      "utokyo",
		Department:  "is",
		Name:        "echo-answer",
		Version:     "1",
		ContentHash: "abcdef0123456789",
	}
}

func bundleZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("setting.json")
	require.NoError(t, err)
	_, err = f.Write([]byte(settingsDoc))
	require.NoError(t, err)
	f, err = w.Create("run.sh")
	require.NoError(t, err)
	_, err = f.Write([]byte("#!/bin/sh\ncat main.py\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func install(t *testing.T, fx *fixture) {
	t.Helper()
	_, err := fx.srvc.Upload(context.Background(), exerciseRef(), testToken, bundleZip(t))
	require.NoError(t, err)
}

func requireErrCode(t *testing.T, err error, code string) {
	t.Helper()
	srvcErr := &srvcerror.Error{}
	require.ErrorAs(t, err, &srvcErr)
	assert.Equal(t, code, srvcErr.ErrorCode())
}

func TestUploadExistsAndDuplicate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	resp, err := fx.srvc.Exists(ctx, exerciseRef())
	require.NoError(t, err)
	assert.False(t, resp.Exists)

	up, err := fx.srvc.Upload(ctx, exerciseRef(), testToken, bundleZip(t))
	require.NoError(t, err)
	assert.Equal(t, "v1.0", up.Version)

	resp, err = fx.srvc.Exists(ctx, exerciseRef())
	require.NoError(t, err)
	assert.True(t, resp.Exists)

	_, err = fx.srvc.Upload(ctx, exerciseRef(), testToken, bundleZip(t))
	requireErrCode(t, err, srvcerror.ErrCodeExerciseExists)
}

func TestUploadRejectsBrokenBundle(t *testing.T) {
	fx := newFixture(t)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("setting.json")
	require.NoError(t, err)
	_, err = f.Write([]byte(`{"schema_version": "v0.0"}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = fx.srvc.Upload(context.Background(), exerciseRef(), testToken, buf.Bytes())
	requireErrCode(t, err, srvcerror.ErrCodeInvalidBundle)
}

func TestSubmitRequiresValidToken(t *testing.T) {
	fx := newFixture(t)
	install(t, fx)

	_, err := fx.srvc.Submit(context.Background(), judgesrvc.SubmitRequest{
		Exercise:     exerciseRef(),
		SubmissionID: "subm-001",
		Token:        "wrong",
		Filename:     "answer.py",
		File:         strings.NewReader(""),
	})
	requireErrCode(t, err, srvcerror.ErrCodeInvalidToken)
}

func TestSubmitUnknownExercise(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.srvc.Submit(context.Background(), judgesrvc.SubmitRequest{
		Exercise:     exerciseRef(),
		SubmissionID: "subm-001",
		Token:        testToken,
		Filename:     "answer.py",
		File:         strings.NewReader(""),
	})
	requireErrCode(t, err, srvcerror.ErrCodeExerciseNotFound)
}

func TestSubmitHandleAndResultFlow(t *testing.T) {
	fx := newFixture(t)
	install(t, fx)
	ctx := context.Background()

	resp, err := fx.srvc.Submit(ctx, judgesrvc.SubmitRequest{
		Exercise:     exerciseRef(),
		SubmissionID: "subm-001",
		Token:        testToken,
		Filename:     "answer.py",
		File:         strings.NewReader("print(42)\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "subm-001", resp.SubmissionID)
	assert.NotEmpty(t, resp.JobID)

	// result is not available before the worker ran
	_, err = fx.srvc.Result(ctx, "subm-001")
	requireErrCode(t, err, srvcerror.ErrCodeResultNotFound)

	job, err := fx.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, fx.srvc.HandleJob(ctx, job))

	result, err := fx.srvc.Result(ctx, "subm-001")
	require.NoError(t, err)

	var verdict api.VerdictPayload
	require.NoError(t, json.Unmarshal(result.Result, &verdict))
	assert.Equal(t, "accept", verdict.TerminalState)
	assert.True(t, verdict.Accepted)
	require.Len(t, verdict.Steps, 1)
	assert.Equal(t, "run", verdict.Steps[0].State)
	assert.Equal(t, "print(42)\n", verdict.Steps[0].Stdout)
	assert.Equal(t, int64(2048), verdict.Steps[0].Usage.MaxRssKiB)

	payloads := fx.tracker.received()
	require.NotEmpty(t, payloads)
	final := payloads[len(payloads)-1]
	assert.Equal(t, 100, final.ProgressPercent)
	assert.Equal(t, testToken, final.Token)
	assert.JSONEq(t, string(result.Result), string(final.ResultPayload))
}

func TestRejectedSubmissionVerdict(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// bundle whose run state executes the submission as a shell script
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("setting.json")
	require.NoError(t, err)
	_, err = f.Write([]byte(settingsDoc))
	require.NoError(t, err)
	f, err = w.Create("run.sh")
	require.NoError(t, err)
	_, err = f.Write([]byte("#!/bin/sh\nsh main.py\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	ref := exerciseRef()
	ref.ContentHash = "fedcba9876543210"
	_, err = fx.srvc.Upload(ctx, ref, testToken, buf.Bytes())
	require.NoError(t, err)

	_, err = fx.srvc.Submit(ctx, judgesrvc.SubmitRequest{
		Exercise:     ref,
		SubmissionID: "subm-002",
		Token:        testToken,
		Filename:     "answer.py",
		File:         strings.NewReader("exit 7\n"),
	})
	require.NoError(t, err)

	job, err := fx.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, fx.srvc.HandleJob(ctx, job))

	result, err := fx.srvc.Result(ctx, "subm-002")
	require.NoError(t, err)

	var verdict api.VerdictPayload
	require.NoError(t, json.Unmarshal(result.Result, &verdict))
	assert.Equal(t, "reject", verdict.TerminalState)
	assert.False(t, verdict.Accepted)
	require.Len(t, verdict.Steps, 1)
	assert.Equal(t, "failure", verdict.Steps[0].Outcome)
	assert.Equal(t, 7, verdict.Steps[0].ExitStatus)
}

func TestJobNotFailedByDeliveryProblems(t *testing.T) {
	fx := newFixture(t)
	fx.tracker.reject = true
	install(t, fx)
	ctx := context.Background()

	_, err := fx.srvc.Submit(ctx, judgesrvc.SubmitRequest{
		Exercise:     exerciseRef(),
		SubmissionID: "subm-003",
		Token:        testToken,
		Filename:     "answer.py",
		File:         strings.NewReader("print(1)\n"),
	})
	require.NoError(t, err)

	job, err := fx.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, fx.srvc.HandleJob(ctx, job))

	// the verdict is still stored and pollable
	result, err := fx.srvc.Result(ctx, "subm-003")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Result)
}

func TestMissingDefinitionStillDeliversFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	job, err := jobqueue.NewJob("subm-404", exercise.Identity{
		Agency:      "utokyo",
		Department:  "is",
		Name:        "never-uploaded",
		Version:     "1",
		ContentHash: "0123456789abcdef",
	}, testToken, "")
	require.NoError(t, err)

	require.Error(t, fx.srvc.HandleJob(ctx, job))

	// the tracker still gets a final answer instead of polling forever
	result, err := fx.srvc.Result(ctx, "subm-404")
	require.NoError(t, err)
	assert.Contains(t, string(result.Result), `"accepted":false`)

	payloads := fx.tracker.received()
	require.NotEmpty(t, payloads)
	final := payloads[len(payloads)-1]
	assert.Equal(t, 100, final.ProgressPercent)
	assert.JSONEq(t, string(result.Result), string(final.ResultPayload))
}
