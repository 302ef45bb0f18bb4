package evalmachine

import (
	"time"

	"github.com/plags-org/judge/internal/exercise"
	"github.com/plags-org/judge/internal/limitrun"
)

// Step records one executed state and the transition taken out of it.
type Step struct {
	State      string                `json:"state"`
	Outcome    exercise.OutcomeClass `json:"outcome"`
	Next       string                `json:"next"`
	ExitStatus int                   `json:"exit_status"`
	Stdout     string                `json:"stdout"`
	Stderr     string                `json:"stderr"`
	Stats      limitrun.Stats        `json:"stats"`
}

// Verdict is the complete outcome of evaluating one submission. It is
// what gets persisted and delivered back to the submitting service.
type Verdict struct {
	Terminal  string        `json:"terminal_state"`
	Accepted  bool          `json:"accepted"`
	Steps     []Step        `json:"steps"`
	TotalTime time.Duration `json:"total_time_nsec"`
}
