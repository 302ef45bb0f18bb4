package api

// VerdictPayload is the result payload posted to the tracker and
// served by the result endpoint.
type VerdictPayload struct {
	TerminalState string        `json:"terminal_state"`
	Accepted      bool          `json:"accepted"`
	Steps         []VerdictStep `json:"steps"`
	TotalTimeMs   int64         `json:"total_time_ms"`
}

// VerdictStep is one executed state on the evaluation path.
type VerdictStep struct {
	State      string    `json:"state"`
	Outcome    string    `json:"outcome"`
	Next       string    `json:"next"`
	ExitStatus int       `json:"exit_status"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	Usage      UsageData `json:"usage"`
}

// UsageData reports the resource usage of one state run.
type UsageData struct {
	UserTimeUsec   int64 `json:"user_time_usec"`
	SystemTimeUsec int64 `json:"system_time_usec"`
	WallTimeUsec   int64 `json:"wall_time_usec"`
	MaxRssKiB      int64 `json:"max_rss_kib"`
	MinorFaults    int64 `json:"minor_faults"`
	MajorFaults    int64 `json:"major_faults"`
	BlockIn        int64 `json:"block_in"`
	BlockOut       int64 `json:"block_out"`
	CtxSwVoluntary int64 `json:"ctx_sw_voluntary"`
	CtxSwForced    int64 `json:"ctx_sw_forced"`
}
