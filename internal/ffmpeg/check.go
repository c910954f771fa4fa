package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hbomb79/Marquee/pkg/logger"
)

var (
	ErrFfmpegNotFound  = errors.New("ffmpeg binary not found")
	ErrFfprobeNotFound = errors.New("ffprobe binary not found")
)

// CheckTools verifies that the configured ffmpeg and ffprobe binaries can
// be found and executed, logging the version of each. The returned slice
// contains one error per unusable tool (empty when both are available).
func CheckTools(ctx context.Context, config Config, runner Runner) []error {
	errs := make([]error, 0, 2)
	if err := checkTool(ctx, runner, config.FfmpegBinPath, ErrFfmpegNotFound); err != nil {
		errs = append(errs, err)
	}
	if err := checkTool(ctx, runner, config.FfprobeBinPath, ErrFfprobeNotFound); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func checkTool(ctx context.Context, runner Runner, bin string, notFound error) error {
	if _, err := exec.LookPath(bin); err != nil {
		log.Emit(logger.ERROR, "Required tool %s could not be found: %v\n", bin, err)
		return fmt.Errorf("%w: %s", notFound, bin)
	}

	result, err := runner.Run(ctx, bin, "-version")
	if err != nil || !result.Succeeded() {
		log.Emit(logger.WARNING, "Tool %s found but '-version' failed\n", bin)
		return fmt.Errorf("%w: %s is not executable", notFound, bin)
	}

	version := strings.TrimSpace(result.Stdout)
	if idx := strings.Index(version, "\n"); idx > 0 {
		version = version[:idx]
	}
	log.Emit(logger.SUCCESS, "%s\n", version)

	return nil
}
