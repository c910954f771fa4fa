package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hbomb79/Marquee/pkg/logger"
)

var log = logger.Get("FFmpeg")

type (
	// Result is the captured outcome of a single external tool
	// invocation which ran to completion (regardless of exit code).
	Result struct {
		Stdout   string
		Stderr   string
		ExitCode int
	}

	// Runner invokes an external tool, blocking until it exits. An error is
	// returned only if the process could not be started or was interrupted
	// (e.g. context cancelled) - a non-zero exit is reported via the Result.
	Runner interface {
		Run(ctx context.Context, bin string, args ...string) (*Result, error)
	}

	CommandRunner struct{}
)

func NewCommandRunner() *CommandRunner { return &CommandRunner{} }

func (runner *CommandRunner) Run(ctx context.Context, bin string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Emit(logger.VERBOSE, "Executing %s %s\n", bin, strings.Join(args, " "))
	err := cmd.Run()
	result := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	if ctx.Err() != nil {
		return result, fmt.Errorf("%s interrupted: %w", bin, ctx.Err())
	}

	return result, fmt.Errorf("failed to start %s: %w", bin, err)
}

func (result *Result) Succeeded() bool { return result.ExitCode == 0 }

// Diagnostics returns a trimmed stderr (falling back to stdout) suitable
// for including in error messages.
func (result *Result) Diagnostics() string {
	out := strings.TrimSpace(result.Stderr)
	if out == "" {
		out = strings.TrimSpace(result.Stdout)
	}

	const maxLen = 512
	if len(out) > maxLen {
		out = out[len(out)-maxLen:]
	}

	return out
}
