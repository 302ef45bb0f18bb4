package exercise

import (
	"encoding/json"
	"regexp"
	"strconv"
	"time"
)

var limitValueRe = regexp.MustCompile(`^([0-9]+)([A-Za-z]*)$`)

var timeSuffixUsec = map[string]int64{
	"m":  60 * 1_000_000,
	"s":  1_000_000,
	"ms": 1_000,
	"us": 1,
	"":   1_000_000,
}

var memorySuffixBytes = map[string]int64{
	"GiB": 1 << 30,
	"MiB": 1 << 20,
	"KiB": 1 << 10,
	"GB":  1_000_000_000,
	"MB":  1_000_000,
	"KB":  1_000,
	"":    1,
}

func parseSuffixed(node any, r route, suffixes map[string]int64, bareUnit int64) (int64, error) {
	switch v := node.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, validationErrorf("setting %q must be an integer or suffixed string, got %q", r.String(), v.String())
		}
		return n * bareUnit, nil
	case string:
		m := limitValueRe.FindStringSubmatch(v)
		if m == nil {
			return 0, validationErrorf("setting %q has invalid limit format %q", r.String(), v)
		}
		unit, ok := suffixes[m[2]]
		if !ok {
			return 0, validationErrorf("setting %q has unknown limit suffix %q", r.String(), m[2])
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, validationErrorf("setting %q has out of range limit value %q", r.String(), v)
		}
		return n * unit, nil
	default:
		return 0, validationErrorf("setting %q must be an integer or suffixed string", r.String())
	}
}

// parseTimeLimit accepts a bare integer (seconds) or a string with one
// of the m, s, ms, us suffixes, e.g. "500ms".
func parseTimeLimit(node any, r route) (time.Duration, error) {
	usec, err := parseSuffixed(node, r, timeSuffixUsec, 1_000_000)
	if err != nil {
		return 0, err
	}
	return time.Duration(usec) * time.Microsecond, nil
}

// parseMemoryLimit accepts a bare integer (bytes) or a string with one
// of the GiB, MiB, KiB, GB, MB, KB suffixes, e.g. "256MiB".
func parseMemoryLimit(node any, r route) (int64, error) {
	return parseSuffixed(node, r, memorySuffixBytes, 1)
}
