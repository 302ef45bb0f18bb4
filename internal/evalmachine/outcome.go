package evalmachine

import (
	"github.com/plags-org/judge/internal/exercise"
	"github.com/plags-org/judge/internal/limitrun"
)

// Classify maps one wrapped run onto the outcome class that drives the
// transition table. Limit overruns win over the exit status: a process
// killed for exceeding its ceiling reports a nonzero status that says
// nothing about the program itself.
func Classify(res limitrun.Result) exercise.OutcomeClass {
	d := res.Detect
	switch {
	case d.CpuOveruse != 0 || d.UserTimeOveruse != 0 || d.SystemTimeOveruse != 0:
		return exercise.OutcomeTimeout
	case d.MemoryOveruse != 0 || d.AddrSpaceOveruse != 0 || d.RssOveruse != 0:
		return exercise.OutcomeMemout
	case res.ExitStatus == 0:
		return exercise.OutcomeSuccess
	default:
		return exercise.OutcomeFailure
	}
}
