package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/floostack/transcoder/ffmpeg"
)

const UnknownFormat = "unknown"

// TechnicalMetadata is the subset of ffprobe output we care about. Fields
// which could not be resolved hold their zero value (or UnknownFormat).
type TechnicalMetadata struct {
	DurationSeconds float64 `json:"duration"`
	Format          string  `json:"format"`
	Size            int64   `json:"size"`
}

// UnknownMetadata is the degraded metadata used when probing fails.
func UnknownMetadata() TechnicalMetadata {
	return TechnicalMetadata{DurationSeconds: 0, Format: UnknownFormat, Size: 0}
}

type Prober struct {
	config Config
	runner Runner
}

func NewProber(config Config, runner Runner) *Prober {
	return &Prober{config, runner}
}

// Probe runs ffprobe against the file at the path provided and extracts
// the duration, container format and size. A missing file results in
// ErrNotFound, any tool failure in a *ProbeError.
func (prober *Prober) Probe(ctx context.Context, path string) (TechnicalMetadata, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return UnknownMetadata(), fmt.Errorf("cannot probe %s: %w", path, ErrNotFound)
		}
		return UnknownMetadata(), &ProbeError{Path: path, Reason: "stat failed", Err: err}
	}

	toolCtx, cancel := prober.config.toolContext(ctx)
	defer cancel()

	result, err := prober.runner.Run(toolCtx, prober.config.FfprobeBinPath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	if err != nil {
		return UnknownMetadata(), &ProbeError{Path: path, Reason: "invocation failed", Err: err}
	} else if !result.Succeeded() {
		return UnknownMetadata(), &ProbeError{Path: path, ExitCode: result.ExitCode, Reason: result.Diagnostics()}
	}

	metadata, err := ParseProbeOutput([]byte(result.Stdout))
	if err != nil {
		return UnknownMetadata(), &ProbeError{Path: path, Reason: "malformed output", Err: err}
	}

	return metadata, nil
}

// ParseProbeOutput converts raw ffprobe JSON in to TechnicalMetadata. Values
// which cannot be parsed are replaced with their defaults rather than
// causing an error; only malformed JSON is an error.
func ParseProbeOutput(data []byte) (TechnicalMetadata, error) {
	var raw ffmpeg.Metadata
	if err := json.Unmarshal(data, &raw); err != nil {
		return UnknownMetadata(), err
	}

	format := raw.GetFormat()
	return TechnicalMetadata{
		DurationSeconds: parseDuration(format.GetDuration()),
		Format:          parseFormatName(format.GetFormatName()),
		Size:            parseSize(format.GetSize()),
	}, nil
}

func parseDuration(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	return v
}

func parseFormatName(value string) string {
	if v := strings.TrimSpace(value); v != "" && v != "N/A" {
		return v
	}

	return UnknownFormat
}

func parseSize(value string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || v < 0 {
		return 0
	}

	return v
}
