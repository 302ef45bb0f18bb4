// Package judgesrvc implements the judge's operations: accepting
// submissions, managing exercise bundles, serving stored results and
// evaluating queued jobs.
package judgesrvc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/plags-org/judge/api"
	"github.com/plags-org/judge/internal/callback"
	"github.com/plags-org/judge/internal/defstore"
	"github.com/plags-org/judge/internal/exercise"
	"github.com/plags-org/judge/internal/jobqueue"
	"github.com/plags-org/judge/internal/limitrun"
	"github.com/plags-org/judge/internal/srvcerror"
)

type Config struct {
	Store       *defstore.Store
	Queue       jobqueue.Queue
	Callback    *callback.Client
	CallbackUrl string
	ApiToken    string
	WrapperPath string
	WorkRoot    string
	Logger      *slog.Logger
}

type JudgeService struct {
	store       *defstore.Store
	queue       jobqueue.Queue
	callback    *callback.Client
	callbackUrl string
	apiToken    string
	runner      *limitrun.Runner
	workRoot    string
	logger      *slog.Logger

	// recently served results, saving a disk read per poll
	resultCache *xsync.MapOf[string, []byte]
}

func New(cfg Config) *JudgeService {
	if err := os.MkdirAll(cfg.WorkRoot, 0o755); err != nil {
		panic(fmt.Errorf("failed to create work root: %w", err))
	}
	return &JudgeService{
		store:       cfg.Store,
		queue:       cfg.Queue,
		callback:    cfg.Callback,
		callbackUrl: cfg.CallbackUrl,
		apiToken:    cfg.ApiToken,
		runner:      limitrun.NewRunner(cfg.WrapperPath),
		workRoot:    cfg.WorkRoot,
		logger:      cfg.Logger,
		resultCache: xsync.NewMapOf[string, []byte](),
	}
}

func (s *JudgeService) checkToken(token string) error {
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.apiToken)) != 1 {
		return srvcerror.ErrInvalidToken()
	}
	return nil
}

func toIdentity(ref api.ExerciseRef) (exercise.Identity, error) {
	id := exercise.Identity{
		Agency:      ref.Agency,
		Department:  ref.Department,
		Name:        ref.Name,
		Version:     ref.Version,
		ContentHash: ref.ContentHash,
	}
	if err := id.Validate(); err != nil {
		return exercise.Identity{}, srvcerror.ErrInvalidIdentity(err.Error()).SetDebug(err)
	}
	return id, nil
}

// SubmitRequest is one inbound submission.
type SubmitRequest struct {
	Exercise     api.ExerciseRef
	SubmissionID string
	Token        string
	Filename     string
	File         io.Reader
}

// Submit stores the submitted file and enqueues an evaluation job.
// The verdict is delivered asynchronously.
func (s *JudgeService) Submit(ctx context.Context, req SubmitRequest) (*api.SubmitResponse, error) {
	if err := s.checkToken(req.Token); err != nil {
		return nil, err
	}
	id, err := toIdentity(req.Exercise)
	if err != nil {
		return nil, err
	}
	if req.SubmissionID == "" {
		return nil, srvcerror.ErrBadRequest("submission_id is required")
	}

	exists, err := s.store.Exists(id)
	if err != nil {
		return nil, srvcerror.ErrInternalSE().SetDebug(err)
	}
	if !exists {
		return nil, srvcerror.ErrExerciseNotFound()
	}

	if _, err := s.store.SaveSubmission(req.SubmissionID, req.Filename, req.File); err != nil {
		return nil, srvcerror.ErrInternalSE().SetDebug(err)
	}

	job, err := jobqueue.NewJob(req.SubmissionID, id, req.Token, s.callbackUrl)
	if err != nil {
		return nil, srvcerror.ErrInternalSE().SetDebug(err)
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		if errors.Is(err, jobqueue.ErrUnavailable) {
			return nil, srvcerror.ErrQueueUnavailable().SetDebug(err)
		}
		return nil, srvcerror.ErrInternalSE().SetDebug(err)
	}

	s.logger.Info("submission enqueued",
		"submission_id", req.SubmissionID,
		"exercise", id.String(),
		"job_id", job.ID.String())

	return &api.SubmitResponse{
		Exercise:     req.Exercise,
		SubmissionID: req.SubmissionID,
		JobID:        job.ID.String(),
	}, nil
}

// Exists reports whether an exercise bundle is installed.
func (s *JudgeService) Exists(ctx context.Context, ref api.ExerciseRef) (*api.ExistsResponse, error) {
	id, err := toIdentity(ref)
	if err != nil {
		return nil, err
	}
	exists, err := s.store.Exists(id)
	if err != nil {
		return nil, srvcerror.ErrInternalSE().SetDebug(err)
	}
	return &api.ExistsResponse{Exercise: ref, Exists: exists}, nil
}

// Upload validates and installs an exercise bundle archive. Bundles
// are immutable; uploading an existing identity is rejected.
func (s *JudgeService) Upload(ctx context.Context, ref api.ExerciseRef, token string, zipData []byte) (*api.UploadResponse, error) {
	if err := s.checkToken(token); err != nil {
		return nil, err
	}
	id, err := toIdentity(ref)
	if err != nil {
		return nil, err
	}

	staged, err := s.store.TempDir("upload-")
	if err != nil {
		return nil, srvcerror.ErrInternalSE().SetDebug(err)
	}
	if err := defstore.ExtractBundleZip(zipData, staged); err != nil {
		return nil, srvcerror.ErrInvalidBundle(err.Error()).SetDebug(err)
	}

	def, err := s.store.InstallBundle(id, staged)
	if err != nil {
		var vErr *exercise.ValidationError
		switch {
		case errors.Is(err, defstore.ErrExerciseExists):
			return nil, srvcerror.ErrExerciseExists().SetDebug(err)
		case errors.As(err, &vErr):
			return nil, srvcerror.ErrInvalidBundle(vErr.Error()).SetDebug(err)
		default:
			return nil, srvcerror.ErrInternalSE().SetDebug(err)
		}
	}

	return &api.UploadResponse{Exercise: ref, Version: def.SchemaVersion}, nil
}

// Result returns the stored verdict payload of a submission.
func (s *JudgeService) Result(ctx context.Context, submissionID string) (*api.ResultResponse, error) {
	if submissionID == "" {
		return nil, srvcerror.ErrBadRequest("submission_id is required")
	}
	if payload, ok := s.resultCache.Load(submissionID); ok {
		return &api.ResultResponse{SubmissionID: submissionID, Result: payload}, nil
	}

	payload, err := s.store.LoadResult(submissionID)
	if errors.Is(err, defstore.ErrNotFound) {
		return nil, srvcerror.ErrResultNotFound()
	}
	if err != nil {
		return nil, srvcerror.ErrInternalSE().SetDebug(err)
	}
	s.resultCache.Store(submissionID, payload)
	return &api.ResultResponse{SubmissionID: submissionID, Result: payload}, nil
}

func (s *JudgeService) saveResult(submissionID string, payload []byte) error {
	if err := s.store.SaveResult(submissionID, payload); err != nil {
		return fmt.Errorf("failed to persist result: %w", err)
	}
	// a completed evaluation overwrites whatever was served before
	s.resultCache.Store(submissionID, payload)
	return nil
}

func mustJson(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("failed to marshal payload: %w", err))
	}
	return data
}
