package judgesrvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/plags-org/judge/api"
	"github.com/plags-org/judge/internal/callback"
	"github.com/plags-org/judge/internal/evalmachine"
	"github.com/plags-org/judge/internal/jobqueue"
	"github.com/plags-org/judge/internal/logging"
)

// HandleJob evaluates one dequeued job: load the definition, walk the
// state machine, persist the verdict and deliver it to the tracker.
// Only the final delivery at 100 percent is load bearing; intermediate
// progress is best effort.
func (s *JudgeService) HandleJob(ctx context.Context, job jobqueue.Job) error {
	logger := logging.FromContext(ctx).With(
		"job_id", job.ID.String(),
		"submission_id", job.SubmissionID)

	def, err := s.store.LoadDefinition(job.Exercise)
	if err != nil {
		logger.Error("failed to load definition",
			"exercise", job.Exercise.String(), "error", err)
		return s.failJob(ctx, job, logger, nil,
			fmt.Errorf("failed to load definition %s: %w", job.Exercise.String(), err))
	}

	submitted, err := s.store.SubmissionPath(job.SubmissionID)
	if err != nil {
		logger.Error("submission file missing", "error", err)
		return s.failJob(ctx, job, logger, nil, err)
	}

	s.reportProgress(ctx, job, 10)

	workRoot, err := os.MkdirTemp(s.workRoot, "eval-")
	if err != nil {
		logger.Error("failed to create evaluation workdir", "error", err)
		return s.failJob(ctx, job, logger, nil,
			fmt.Errorf("failed to create evaluation workdir: %w", err))
	}
	defer os.RemoveAll(workRoot)

	action := evalmachine.NewScriptAction(s.runner,
		s.store.ExerciseDir(job.Exercise), submitted, def.Rename, workRoot)
	machine := evalmachine.New(def, action, logger)

	verdict, err := machine.Evaluate(ctx)
	if err != nil {
		var steps []evalmachine.Step
		var execErr *evalmachine.ExecutionError
		if errors.As(err, &execErr) {
			steps = execErr.Steps
			logger.Error("evaluation failed on judge side",
				"state", execErr.State, "path", statePath(steps), "error", execErr.Err)
		}
		return s.failJob(ctx, job, logger, steps, err)
	}

	payload := mustJson(toVerdictPayload(verdict))
	if err := s.saveResult(job.SubmissionID, payload); err != nil {
		return err
	}
	logger.Info("verdict persisted",
		"terminal", verdict.Terminal,
		"accepted", verdict.Accepted,
		"states", len(verdict.Steps))

	s.deliverFinal(ctx, job, payload, logger)
	return nil
}

// failJob persists and delivers a failure payload so the tracker is
// not left polling a submission the judge could not evaluate, then
// surfaces the original error. The payload keeps whatever path the
// machine managed to walk.
func (s *JudgeService) failJob(ctx context.Context, job jobqueue.Job, logger *slog.Logger, steps []evalmachine.Step, jobErr error) error {
	payload := mustJson(map[string]any{
		"accepted": false,
		"error":    "internal evaluation failure",
		"steps":    toVerdictSteps(steps),
	})
	if saveErr := s.saveResult(job.SubmissionID, payload); saveErr != nil {
		logger.Error("failed to persist failure payload", "error", saveErr)
	}
	s.deliverFinal(ctx, job, payload, logger)
	return jobErr
}

func statePath(steps []evalmachine.Step) []string {
	path := make([]string, len(steps))
	for i, step := range steps {
		path[i] = step.State
	}
	return path
}

func (s *JudgeService) callbackTarget(job jobqueue.Job) string {
	if job.CallbackUrl != "" {
		return job.CallbackUrl
	}
	return s.callbackUrl
}

// reportProgress posts an intermediate update in a single attempt.
// Losing it is not a job failure, so no retries are spent on it.
func (s *JudgeService) reportProgress(ctx context.Context, job jobqueue.Job, percent int) {
	url := s.callbackTarget(job)
	if url == "" {
		return
	}
	err := s.callback.DeliverOnce(ctx, url, callback.Payload{
		SubmissionID:    job.SubmissionID,
		Token:           job.Token,
		ProgressPercent: percent,
	})
	if err != nil {
		s.logger.Warn("intermediate progress lost",
			"submission_id", job.SubmissionID, "percent", percent, "error", err)
	}
}

// deliverFinal posts the verdict at 100 percent. After the bounded
// retries fail the submission is flagged for operator follow up; the
// job itself is not failed over delivery.
func (s *JudgeService) deliverFinal(ctx context.Context, job jobqueue.Job, payload []byte, logger *slog.Logger) {
	url := s.callbackTarget(job)
	if url == "" {
		return
	}
	err := s.callback.Deliver(ctx, url, callback.Payload{
		SubmissionID:    job.SubmissionID,
		Token:           job.Token,
		ProgressPercent: 100,
		ResultPayload:   payload,
	})
	if err != nil {
		logger.Error("verdict delivery failed, flagging for follow up", "error", err)
		s.flagDeliveryFailed(job.SubmissionID)
	}
}

// flagDeliveryFailed leaves a marker next to the stored result so an
// operator can replay undelivered verdicts.
func (s *JudgeService) flagDeliveryFailed(submissionID string) {
	path := filepath.Join(s.workRoot, "delivery-failed")
	if err := os.MkdirAll(path, 0o755); err != nil {
		s.logger.Error("failed to flag delivery", "error", err)
		return
	}
	marker := filepath.Join(path, submissionID)
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		s.logger.Error("failed to flag delivery", "error", err)
	}
}

func toVerdictPayload(v *evalmachine.Verdict) api.VerdictPayload {
	return api.VerdictPayload{
		TerminalState: v.Terminal,
		Accepted:      v.Accepted,
		Steps:         toVerdictSteps(v.Steps),
		TotalTimeMs:   v.TotalTime.Milliseconds(),
	}
}

func toVerdictSteps(in []evalmachine.Step) []api.VerdictStep {
	steps := make([]api.VerdictStep, len(in))
	for i, step := range in {
		steps[i] = api.VerdictStep{
			State:      step.State,
			Outcome:    string(step.Outcome),
			Next:       step.Next,
			ExitStatus: step.ExitStatus,
			Stdout:     step.Stdout,
			Stderr:     step.Stderr,
			Usage: api.UsageData{
				UserTimeUsec:   step.Stats.UserTimeUsec,
				SystemTimeUsec: step.Stats.SystemTimeUsec,
				WallTimeUsec:   step.Stats.WallTimeUsec,
				MaxRssKiB:      step.Stats.MaxRssKiB,
				MinorFaults:    step.Stats.MinorFaults,
				MajorFaults:    step.Stats.MajorFaults,
				BlockIn:        step.Stats.BlockIn,
				BlockOut:       step.Stats.BlockOut,
				CtxSwVoluntary: step.Stats.CtxSwVoluntary,
				CtxSwForced:    step.Stats.CtxSwForced,
			},
		}
	}
	return steps
}
