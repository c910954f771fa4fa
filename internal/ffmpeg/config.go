package ffmpeg

import (
	"context"
	"time"
)

type Config struct {
	FfmpegBinPath  string `yaml:"ffmpeg_binary_path" env:"FFMPEG_BINARY_PATH" env-default:"ffmpeg" validate:"required"`
	FfprobeBinPath string `yaml:"ffprobe_binary_path" env:"FFPROBE_BINARY_PATH" env-default:"ffprobe" validate:"required"`

	// ToolTimeoutSeconds bounds every external tool invocation. Zero (the
	// default) means tools are left to run until they exit on their own.
	ToolTimeoutSeconds int `yaml:"tool_timeout_seconds" env:"FFMPEG_TOOL_TIMEOUT_SECONDS" env-default:"0" validate:"gte=0"`
}

func (config Config) ToolTimeout() time.Duration {
	return time.Duration(config.ToolTimeoutSeconds) * time.Second
}

// toolContext derives the context used for a single tool invocation,
// applying the configured timeout (if any).
func (config Config) toolContext(parent context.Context) (context.Context, context.CancelFunc) {
	if timeout := config.ToolTimeout(); timeout > 0 {
		return context.WithTimeout(parent, timeout)
	}

	return context.WithCancel(parent)
}
