package limitrun_test

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/plags-org/judge/internal/limitrun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrailerRoundTrip(t *testing.T) {
	for i := 0; i < 100; i++ {
		stats := limitrun.Stats{
			UserTimeUsec:   rand.Int64N(1 << 40),
			SystemTimeUsec: rand.Int64N(1 << 40),
			WallTimeUsec:   rand.Int64N(1 << 40),
			MaxRssKiB:      rand.Int64N(1 << 30),
			MinorFaults:    rand.Int64N(1 << 20),
			MajorFaults:    rand.Int64N(1 << 20),
			BlockIn:        rand.Int64N(1 << 20),
			BlockOut:       rand.Int64N(1 << 20),
			CtxSwVoluntary: rand.Int64N(1 << 16),
			CtxSwForced:    rand.Int64N(1 << 16),
		}
		detect := limitrun.Detection{
			CpuOveruse:        rand.Int64N(2),
			MemoryOveruse:     rand.Int64N(2),
			UserTimeOveruse:   rand.Int64N(2),
			SystemTimeOveruse: rand.Int64N(2),
			AddrSpaceOveruse:  rand.Int64N(2),
			RssOveruse:        rand.Int64N(2),
			ExitStatus:        rand.Int64N(256),
		}

		encoded := "run output on stderr\n" + limitrun.EncodeTrailer(stats, detect)
		remainder, gotStats, gotDetect, err := limitrun.ParseTrailer(encoded)
		require.NoError(t, err)
		assert.Equal(t, "run output on stderr", remainder)
		assert.Equal(t, stats, gotStats)
		assert.Equal(t, detect, gotDetect)
	}
}

func TestTrailerKeepsMultilineStderr(t *testing.T) {
	body := "line one\nline two\nline three"
	encoded := body + "\n" + limitrun.EncodeTrailer(limitrun.Stats{}, limitrun.Detection{})
	remainder, _, _, err := limitrun.ParseTrailer(encoded)
	require.NoError(t, err)
	assert.Equal(t, body, remainder)
}

func TestTrailerEmptyStderrBeforeMarker(t *testing.T) {
	encoded := limitrun.EncodeTrailer(limitrun.Stats{MaxRssKiB: 17476}, limitrun.Detection{ExitStatus: 1})
	remainder, stats, detect, err := limitrun.ParseTrailer(encoded)
	require.NoError(t, err)
	assert.Equal(t, "", remainder)
	assert.Equal(t, int64(17476), stats.MaxRssKiB)
	assert.Equal(t, int64(1), detect.ExitStatus)
}

func TestTrailerTooFewLines(t *testing.T) {
	_, _, _, err := limitrun.ParseTrailer("just one line\n")
	var trailerErr *limitrun.MalformedTrailerError
	require.ErrorAs(t, err, &trailerErr)
}

func TestTrailerBadMarker(t *testing.T) {
	encoded := limitrun.EncodeTrailer(limitrun.Stats{}, limitrun.Detection{})
	encoded = strings.Replace(encoded, "limitrace", "limitrace?", 1)
	_, _, _, err := limitrun.ParseTrailer(encoded)
	var trailerErr *limitrun.MalformedTrailerError
	require.ErrorAs(t, err, &trailerErr)
}

func TestTrailerNonIntegerValue(t *testing.T) {
	encoded := limitrun.EncodeTrailer(limitrun.Stats{}, limitrun.Detection{})
	encoded = strings.Replace(encoded, "ru_maxrss:0", "ru_maxrss:seventeen", 1)
	_, _, _, err := limitrun.ParseTrailer(encoded)
	var trailerErr *limitrun.MalformedTrailerError
	require.ErrorAs(t, err, &trailerErr)
	assert.Contains(t, trailerErr.Reason, "ru_maxrss")
}

func TestTrailerMissingKey(t *testing.T) {
	encoded := limitrun.EncodeTrailer(limitrun.Stats{}, limitrun.Detection{})
	encoded = strings.Replace(encoded, "cpu_overuse:0\t", "", 1)
	_, _, _, err := limitrun.ParseTrailer(encoded)
	var trailerErr *limitrun.MalformedTrailerError
	require.ErrorAs(t, err, &trailerErr)
}
