package limitrun_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/plags-org/judge/internal/limitrun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWrapper behaves like the limiting wrapper without enforcing
// anything: it drops the limit flags, runs the command and appends a
// well-formed trailer to stderr.
const fakeWrapper = `#!/bin/sh
shift 5
"$@"
status=$?
printf '====    limitrace statistics    ====\n' >&2
printf 'ru_utime_usec:1200\tru_stime_usec:300\twall_time_usec:2100\tru_maxrss:1024\tru_minflt:10\tru_majflt:0\tru_inblock:0\tru_oublock:8\tru_nvcsw:2\tru_nivcsw:1\n' >&2
printf 'cpu_overuse:0\tmemory_overuse:0\tutime_overuse:0\tstime_overuse:0\tas_overuse:0\trss_overuse:0\texit_status:%d\n' $status >&2
exit $status
`

func writeFakeWrapper(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "limitrace")
	require.NoError(t, os.WriteFile(path, []byte(fakeWrapper), 0o755))
	return path
}

func TestRunnerCapturesStreamsAndStats(t *testing.T) {
	runner := limitrun.NewRunner(writeFakeWrapper(t))

	res, err := runner.Run(context.Background(), t.TempDir(),
		[]string{"/bin/sh", "-c", "echo out; echo err >&2"},
		limitrun.DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitStatus)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err", res.Stderr)
	assert.Equal(t, int64(1024), res.Stats.MaxRssKiB)
	assert.Equal(t, int64(0), res.Detect.CpuOveruse)
}

// killingWrapper enforces a one second wall ceiling for real: the
// child is killed and the trailer reports the overuse.
const killingWrapper = `#!/bin/sh
shift 5
"$@" &
pid=$!
( sleep 1; kill -KILL $pid 2>/dev/null ) &
watcher=$!
wait $pid
status=$?
kill $watcher 2>/dev/null
overuse=0
[ $status -ge 128 ] && overuse=1
printf '====    limitrace statistics    ====\n' >&2
printf 'ru_utime_usec:100\tru_stime_usec:50\twall_time_usec:1000000\tru_maxrss:512\tru_minflt:1\tru_majflt:0\tru_inblock:0\tru_oublock:0\tru_nvcsw:1\tru_nivcsw:0\n' >&2
printf 'cpu_overuse:%d\tmemory_overuse:0\tutime_overuse:0\tstime_overuse:0\tas_overuse:0\trss_overuse:0\texit_status:%d\n' $overuse $status >&2
exit 0
`

func TestRunnerWrapperKillsOverrunningSleep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limitrace")
	require.NoError(t, os.WriteFile(path, []byte(killingWrapper), 0o755))
	runner := limitrun.NewRunner(path)

	lim := limitrun.DefaultLimits()
	lim.WallTime = time.Second

	start := time.Now()
	res, err := runner.Run(context.Background(), t.TempDir(),
		[]string{"/bin/sh", "-c", "sleep 5"}, lim)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, int64(1), res.Detect.CpuOveruse)
	assert.Equal(t, 137, res.ExitStatus)
}

func TestRunnerNonzeroExitIsData(t *testing.T) {
	runner := limitrun.NewRunner(writeFakeWrapper(t))

	res, err := runner.Run(context.Background(), t.TempDir(),
		[]string{"/bin/sh", "-c", "exit 3"},
		limitrun.DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitStatus)
	assert.Equal(t, int64(3), res.Detect.ExitStatus)
}

func TestRunnerMissingWrapper(t *testing.T) {
	runner := limitrun.NewRunner(filepath.Join(t.TempDir(), "no-such-wrapper"))

	_, err := runner.Run(context.Background(), t.TempDir(),
		[]string{"/bin/sh", "-c", "true"},
		limitrun.DefaultLimits())
	require.Error(t, err)
}

func TestRunnerMalformedTrailer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limitrace")
	// wrapper that forgets its trailer entirely
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nshift 5\n\"$@\"\n"), 0o755))
	runner := limitrun.NewRunner(path)

	_, err := runner.Run(context.Background(), t.TempDir(),
		[]string{"/bin/sh", "-c", "true"},
		limitrun.DefaultLimits())
	var trailerErr *limitrun.MalformedTrailerError
	require.ErrorAs(t, err, &trailerErr)
}

func TestLimitsToArgs(t *testing.T) {
	lim := limitrun.Limits{
		CpuTime:     1500 * time.Millisecond,
		WallTime:    2 * time.Second,
		MemoryBytes: 256 << 20,
	}
	assert.Equal(t, []string{
		"--signal=TERM",
		"--kill-after=3",
		"--cpu=2",
		"--mem=268435456",
		"2",
	}, lim.ToArgs())
}
