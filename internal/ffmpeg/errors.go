package ffmpeg

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the source file provided to a tool
// does not exist.
var ErrNotFound = errors.New("source file not found")

type (
	// ProbeError indicates ffprobe could not produce usable metadata
	// for a file - either the tool failed or its output was malformed.
	ProbeError struct {
		Path     string
		ExitCode int
		Reason   string
		Err      error
	}

	// ThumbnailError indicates a still frame could not be extracted.
	ThumbnailError struct {
		Path   string
		Reason string
		Err    error
	}

	// TranscodeError indicates the HLS conversion failed, either because
	// ffmpeg exited non-zero or because it reported diagnostics on stderr.
	TranscodeError struct {
		Path     string
		ExitCode int
		Stderr   string
		Err      error
	}
)

func (err *ProbeError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("ffprobe failed for %s: %s: %s", err.Path, err.Reason, err.Err)
	}
	return fmt.Sprintf("ffprobe failed for %s (exit %d): %s", err.Path, err.ExitCode, err.Reason)
}

func (err *ProbeError) Unwrap() error { return err.Err }

func (err *ThumbnailError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("thumbnail extraction failed for %s: %s: %s", err.Path, err.Reason, err.Err)
	}
	return fmt.Sprintf("thumbnail extraction failed for %s: %s", err.Path, err.Reason)
}

func (err *ThumbnailError) Unwrap() error { return err.Err }

func (err *TranscodeError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("transcode of %s failed: %s", err.Path, err.Err)
	}
	if err.ExitCode != 0 {
		return fmt.Sprintf("transcode of %s failed (exit %d): %s", err.Path, err.ExitCode, err.Stderr)
	}
	return fmt.Sprintf("transcode of %s reported errors: %s", err.Path, err.Stderr)
}

func (err *TranscodeError) Unwrap() error { return err.Err }
