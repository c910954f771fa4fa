package ffmpeg_test

import (
	"context"
	"sync"
	"testing"

	"github.com/hbomb79/Marquee/internal/ffmpeg"
	"github.com/stretchr/testify/assert"
)

// fakeRunner records the invocations it receives and replies with a canned
// result. An optional sideEffect can be used to simulate files written by the tool.
type fakeRunner struct {
	sync.Mutex
	result     ffmpeg.Result
	err        error
	sideEffect func(args []string)

	bins  []string
	calls [][]string
}

func (runner *fakeRunner) Run(_ context.Context, bin string, args ...string) (*ffmpeg.Result, error) {
	runner.Lock()
	runner.bins = append(runner.bins, bin)
	runner.calls = append(runner.calls, args)
	runner.Unlock()

	if runner.sideEffect != nil {
		runner.sideEffect(args)
	}

	result := runner.result
	return &result, runner.err
}

func (runner *fakeRunner) lastArgs(t *testing.T) []string {
	runner.Lock()
	defer runner.Unlock()

	if !assert.NotEmpty(t, runner.calls, "expected runner to have been invoked") {
		return nil
	}
	return runner.calls[len(runner.calls)-1]
}

// assertFlagValue checks that 'flag' appears in args immediately followed by 'value'.
func assertFlagValue(t *testing.T, args []string, flag string, value string) {
	t.Helper()
	for i, arg := range args {
		if arg == flag {
			if assert.Less(t, i+1, len(args), "flag %s has no value", flag) {
				assert.Equal(t, value, args[i+1], "unexpected value for flag %s", flag)
			}
			return
		}
	}

	t.Errorf("flag %s not present in args %v", flag, args)
}

func testConfig() ffmpeg.Config {
	return ffmpeg.Config{FfmpegBinPath: "ffmpeg-test", FfprobeBinPath: "ffprobe-test"}
}
