package limitrun

import (
	"fmt"
	"strconv"
	"strings"
)

// TrailerMarker separates the process's own stderr from the statistics
// records the wrapper appends after the process exits.
const TrailerMarker = "====    limitrace statistics    ===="

// Stats holds the post-hoc resource usage of a single wrapped run.
type Stats struct {
	UserTimeUsec   int64
	SystemTimeUsec int64
	WallTimeUsec   int64
	MaxRssKiB      int64
	MinorFaults    int64
	MajorFaults    int64
	BlockIn        int64
	BlockOut       int64
	CtxSwVoluntary int64
	CtxSwForced    int64
}

// Detection reports which ceilings the wrapper saw the process exceed,
// plus the wrapped process's exit status. Overruns are data, not errors;
// deciding what an overrun means is up to the caller.
type Detection struct {
	CpuOveruse        int64
	MemoryOveruse     int64
	UserTimeOveruse   int64
	SystemTimeOveruse int64
	AddrSpaceOveruse  int64
	RssOveruse        int64
	ExitStatus        int64
}

// MalformedTrailerError means the wrapper did not uphold its output
// contract: the trailer was truncated or a value failed to parse. It
// signals an environment bug, never a property of the submission.
type MalformedTrailerError struct {
	Reason string
}

func (e *MalformedTrailerError) Error() string {
	return fmt.Sprintf("malformed limitrace trailer: %s", e.Reason)
}

var statsKeys = []string{
	"ru_utime_usec",
	"ru_stime_usec",
	"wall_time_usec",
	"ru_maxrss",
	"ru_minflt",
	"ru_majflt",
	"ru_inblock",
	"ru_oublock",
	"ru_nvcsw",
	"ru_nivcsw",
}

var detectionKeys = []string{
	"cpu_overuse",
	"memory_overuse",
	"utime_overuse",
	"stime_overuse",
	"as_overuse",
	"rss_overuse",
	"exit_status",
}

func parseLtsvLine(line string, want []string) (map[string]int64, error) {
	values := make(map[string]int64, len(want))
	for _, part := range strings.Split(line, "\t") {
		key, raw, found := strings.Cut(part, ":")
		if !found {
			return nil, &MalformedTrailerError{Reason: fmt.Sprintf("field %q is not key:value", part)}
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &MalformedTrailerError{Reason: fmt.Sprintf("value of %q is not an integer: %q", key, raw)}
		}
		if _, ok := values[key]; ok {
			return nil, &MalformedTrailerError{Reason: fmt.Sprintf("duplicate key %q", key)}
		}
		values[key] = v
	}
	for _, key := range want {
		if _, ok := values[key]; !ok {
			return nil, &MalformedTrailerError{Reason: fmt.Sprintf("missing key %q", key)}
		}
	}
	if len(values) != len(want) {
		return nil, &MalformedTrailerError{Reason: "unexpected extra keys"}
	}
	return values, nil
}

func encodeLtsvLine(keys []string, values map[string]int64) string {
	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = fmt.Sprintf("%s:%d", key, values[key])
	}
	return strings.Join(parts, "\t")
}

// ParseTrailer splits the wrapper's stderr output into the process's own
// stderr and the two statistics records. The trailer is the last three
// lines: the marker, the rusage record and the detection record.
func ParseTrailer(stderr string) (remainder string, stats Stats, detect Detection, err error) {
	trimmed := strings.TrimRight(stderr, "\n")
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 3 {
		err = &MalformedTrailerError{Reason: fmt.Sprintf("expected at least 3 trailing lines, got %d", len(lines))}
		return
	}
	marker := lines[len(lines)-3]
	rusageLine := lines[len(lines)-2]
	detectLine := lines[len(lines)-1]
	if marker != TrailerMarker {
		err = &MalformedTrailerError{Reason: fmt.Sprintf("marker line is %q", marker)}
		return
	}

	statsValues, perr := parseLtsvLine(rusageLine, statsKeys)
	if perr != nil {
		err = perr
		return
	}
	detectValues, perr := parseLtsvLine(detectLine, detectionKeys)
	if perr != nil {
		err = perr
		return
	}

	remainder = strings.Join(lines[:len(lines)-3], "\n")
	stats = Stats{
		UserTimeUsec:   statsValues["ru_utime_usec"],
		SystemTimeUsec: statsValues["ru_stime_usec"],
		WallTimeUsec:   statsValues["wall_time_usec"],
		MaxRssKiB:      statsValues["ru_maxrss"],
		MinorFaults:    statsValues["ru_minflt"],
		MajorFaults:    statsValues["ru_majflt"],
		BlockIn:        statsValues["ru_inblock"],
		BlockOut:       statsValues["ru_oublock"],
		CtxSwVoluntary: statsValues["ru_nvcsw"],
		CtxSwForced:    statsValues["ru_nivcsw"],
	}
	detect = Detection{
		CpuOveruse:        detectValues["cpu_overuse"],
		MemoryOveruse:     detectValues["memory_overuse"],
		UserTimeOveruse:   detectValues["utime_overuse"],
		SystemTimeOveruse: detectValues["stime_overuse"],
		AddrSpaceOveruse:  detectValues["as_overuse"],
		RssOveruse:        detectValues["rss_overuse"],
		ExitStatus:        detectValues["exit_status"],
	}
	return
}

// EncodeTrailer renders the trailer exactly as the wrapper emits it.
// Decoding an encoded trailer recovers identical values.
func EncodeTrailer(stats Stats, detect Detection) string {
	statsValues := map[string]int64{
		"ru_utime_usec":  stats.UserTimeUsec,
		"ru_stime_usec":  stats.SystemTimeUsec,
		"wall_time_usec": stats.WallTimeUsec,
		"ru_maxrss":      stats.MaxRssKiB,
		"ru_minflt":      stats.MinorFaults,
		"ru_majflt":      stats.MajorFaults,
		"ru_inblock":     stats.BlockIn,
		"ru_oublock":     stats.BlockOut,
		"ru_nvcsw":       stats.CtxSwVoluntary,
		"ru_nivcsw":      stats.CtxSwForced,
	}
	detectValues := map[string]int64{
		"cpu_overuse":    detect.CpuOveruse,
		"memory_overuse": detect.MemoryOveruse,
		"utime_overuse":  detect.UserTimeOveruse,
		"stime_overuse":  detect.SystemTimeOveruse,
		"as_overuse":     detect.AddrSpaceOveruse,
		"rss_overuse":    detect.RssOveruse,
		"exit_status":    detect.ExitStatus,
	}
	return TrailerMarker + "\n" +
		encodeLtsvLine(statsKeys, statsValues) + "\n" +
		encodeLtsvLine(detectionKeys, detectValues) + "\n"
}
