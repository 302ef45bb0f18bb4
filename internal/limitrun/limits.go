package limitrun

import (
	"fmt"
	"math"
	"time"
)

// Limits are the ceilings one wrapped run executes under.
type Limits struct {
	CpuTime     time.Duration
	WallTime    time.Duration
	MemoryBytes int64
}

func DefaultLimits() Limits {
	return Limits{
		CpuTime:     50 * time.Second,
		WallTime:    60 * time.Second,
		MemoryBytes: 256 << 20,
	}
}

func (lim Limits) wallSeconds() int {
	return int(math.Ceil(lim.WallTime.Seconds()))
}

// ToArgs renders the wrapper's command line flags. The positional wall
// time argument comes last, right before the wrapped command.
func (lim Limits) ToArgs() []string {
	wall := lim.wallSeconds()
	return []string{
		"--signal=TERM",
		fmt.Sprintf("--kill-after=%d", wall+1),
		fmt.Sprintf("--cpu=%d", int(math.Ceil(lim.CpuTime.Seconds()))),
		fmt.Sprintf("--mem=%d", lim.MemoryBytes),
		fmt.Sprintf("%d", wall),
	}
}
