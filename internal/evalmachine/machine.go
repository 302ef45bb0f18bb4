// Package evalmachine walks a submission through the state machine of
// an exercise definition, running one action per state and following
// the transition table until a terminal state is reached.
package evalmachine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plags-org/judge/internal/exercise"
)

// ExecutionError marks a judge side fault: the action of a state could
// not be carried out at all. It is never attributed to the submission.
// Steps holds the path walked so far, ending with a failed step for
// the state whose action broke.
type ExecutionError struct {
	State string
	Steps []Step
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("state %q could not be executed: %v", e.State, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Machine evaluates one submission against one definition.
type Machine struct {
	def    *exercise.Definition
	action Action
	logger *slog.Logger
}

func New(def *exercise.Definition, action Action, logger *slog.Logger) *Machine {
	return &Machine{def: def, action: action, logger: logger}
}

// Evaluate runs states from the initial state until a terminal state.
// The total wall time and the transition count are both bounded by the
// definition; when either budget runs out the evaluation is forced
// into the timeout-aborted terminal without invoking further actions.
func (m *Machine) Evaluate(ctx context.Context) (*Verdict, error) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, m.def.MaxTotalTime)
	defer cancel()

	var steps []Step
	current := m.def.InitialState
	for {
		if m.def.IsTerminal(current) {
			return m.verdict(current, steps, start), nil
		}
		if len(steps) >= m.def.MaxTransitions || runCtx.Err() != nil {
			m.logger.Warn("evaluation budget exhausted, aborting",
				"state", current, "transitions", len(steps))
			return m.verdict(exercise.StateTimeoutAborted, steps, start), nil
		}

		state := m.def.States[current]
		res, err := m.action.Run(runCtx, state)
		if err != nil {
			if runCtx.Err() != nil && ctx.Err() == nil {
				// the overall watchdog cut the action short
				return m.verdict(exercise.StateTimeoutAborted, steps, start), nil
			}
			steps = append(steps, Step{
				State:      current,
				Outcome:    exercise.OutcomeFailure,
				ExitStatus: -1,
				Stderr:     err.Error(),
			})
			return nil, &ExecutionError{State: current, Steps: steps, Err: err}
		}

		outcome := Classify(res)
		next := state.Transitions[outcome]
		m.logger.Debug("state executed",
			"state", current, "outcome", string(outcome),
			"exit_status", res.ExitStatus, "next", next)
		steps = append(steps, Step{
			State:      current,
			Outcome:    outcome,
			Next:       next,
			ExitStatus: res.ExitStatus,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
			Stats:      res.Stats,
		})
		current = next
	}
}

func (m *Machine) verdict(terminal string, steps []Step, start time.Time) *Verdict {
	return &Verdict{
		Terminal:  terminal,
		Accepted:  terminal == exercise.StateAccept,
		Steps:     steps,
		TotalTime: time.Since(start),
	}
}
