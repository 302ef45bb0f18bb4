// Package exercise loads and validates versioned exercise definitions.
// A definition directory holds one setting.json document plus one action
// script per declared state.
package exercise

import (
	"fmt"
	"regexp"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/plags-org/judge/internal/limitrun"
)

// Reserved state names. "accept" is the built-in success terminal;
// "timeout-aborted" is forced by the evaluation watchdog and can never
// be declared or targeted by an exercise author.
const (
	StateAccept         = "accept"
	StateTimeoutAborted = "timeout-aborted"
)

// OutcomeClass partitions everything a harness run can produce. Every
// non-terminal state maps each class to exactly one successor.
type OutcomeClass string

const (
	OutcomeSuccess OutcomeClass = "success"
	OutcomeFailure OutcomeClass = "failure"
	OutcomeTimeout OutcomeClass = "timeout"
	OutcomeMemout  OutcomeClass = "memout"
)

// OutcomeClasses returns the full outcome space in a stable order.
func OutcomeClasses() []OutcomeClass {
	return []OutcomeClass{OutcomeSuccess, OutcomeFailure, OutcomeTimeout, OutcomeMemout}
}

// Identity names one immutable exercise definition. The content hash
// covers the uploaded bundle, so re-uploading changed content yields a
// distinct identity.
type Identity struct {
	Agency      string `json:"agency_name"`
	Department  string `json:"agency_department_name"`
	Name        string `json:"exercise_name"`
	Version     string `json:"exercise_version"`
	ContentHash string `json:"exercise_content_hash"`
}

var identityPartRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

func (id Identity) Validate() error {
	for _, part := range []struct {
		field, value string
	}{
		{"agency_name", id.Agency},
		{"agency_department_name", id.Department},
		{"exercise_name", id.Name},
		{"exercise_version", id.Version},
		{"exercise_content_hash", id.ContentHash},
	} {
		if !identityPartRe.MatchString(part.value) {
			return fmt.Errorf("invalid %s: %q", part.field, part.value)
		}
	}
	return nil
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", id.Agency, id.Department, id.Name, id.Version, id.ContentHash)
}

// State is one named stage of the evaluation graph. Transitions is a
// total function over OutcomeClasses; totality is checked when the
// definition is loaded, never at run time.
type State struct {
	Name        string
	Script      string
	Limits      limitrun.Limits
	Transitions map[OutcomeClass]string
}

// Definition is a fully validated exercise definition. Immutable once
// loaded.
type Definition struct {
	SchemaVersion   string
	ExerciseName    string
	ExerciseVersion string
	Environment     string
	Rename          string

	InitialState   string
	TerminalStates mapset.Set[string]
	States         map[string]State

	MaxTotalTime   time.Duration
	MaxTransitions int
}

// IsTerminal reports whether reaching name halts evaluation.
func (d *Definition) IsTerminal(name string) bool {
	if name == StateAccept || name == StateTimeoutAborted {
		return true
	}
	return d.TerminalStates.Contains(name)
}
