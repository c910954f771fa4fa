package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/floostack/transcoder/ffmpeg"
	"github.com/hbomb79/Marquee/pkg/logger"
)

const (
	SegmentDurationSeconds = 10
	ManifestFilename       = "index.m3u8"
	SegmentFilenamePattern = "segment%03d.ts"
	SegmentStartNumber     = 0

	videoCodec   = "libx264"
	audioCodec   = "aac"
	playlistType = "vod"
	outputFormat = "hls"
)

type Transcoder struct {
	config Config
	runner Runner
}

func NewTranscoder(config Config, runner Runner) *Transcoder {
	return &Transcoder{config, runner}
}

// Transcode converts the source video in to an HLS VOD layout inside of
// outputDir: a manifest (ManifestFilename) referencing fixed-duration
// segments named after SegmentFilenamePattern.
//
// Unlike probing and thumbnail extraction, this step is authoritative: a
// non-zero exit OR any diagnostic output on stderr is treated as failure
// and returned as a *TranscodeError. On success the manifest path is returned.
func (transcoder *Transcoder) Transcode(ctx context.Context, sourcePath string, outputDir string) (string, error) {
	toolCtx, cancel := transcoder.config.toolContext(ctx)
	defer cancel()

	manifestPath := filepath.Join(outputDir, ManifestFilename)
	log.Emit(logger.NEW, "Transcoding %s to HLS at %s\n", sourcePath, manifestPath)

	result, err := transcoder.runner.Run(toolCtx, transcoder.config.FfmpegBinPath, transcodeArgs(sourcePath, outputDir)...)
	if err != nil {
		return "", &TranscodeError{Path: sourcePath, Err: err}
	}

	if !result.Succeeded() {
		return "", &TranscodeError{Path: sourcePath, ExitCode: result.ExitCode, Stderr: result.Diagnostics()}
	} else if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
		return "", &TranscodeError{Path: sourcePath, Stderr: result.Diagnostics()}
	}

	if _, err := os.Stat(manifestPath); err != nil {
		return "", &TranscodeError{Path: sourcePath, Err: err}
	}

	return manifestPath, nil
}

// transcodeOptions composes the ffmpeg output options for an HLS VOD
// rendition in to the directory provided.
func transcodeOptions(outputDir string) ffmpeg.Options {
	vCodec := videoCodec
	aCodec := audioCodec
	format := outputFormat
	segmentDuration := SegmentDurationSeconds
	hlsPlaylistType := playlistType
	segmentFilename := filepath.Join(outputDir, SegmentFilenamePattern)
	overwrite := true

	return ffmpeg.Options{
		VideoCodec:         &vCodec,
		AudioCodec:         &aCodec,
		OutputFormat:       &format,
		HlsSegmentDuration: &segmentDuration,
		HlsPlaylistType:    &hlsPlaylistType,
		HlsSegmentFilename: &segmentFilename,
		Overwrite:          &overwrite,
		ExtraArgs: map[string]interface{}{
			"-start_number": SegmentStartNumber,
		},
	}
}

func transcodeArgs(sourcePath string, outputDir string) []string {
	opts := transcodeOptions(outputDir)

	// -loglevel error keeps stderr empty unless ffmpeg has something to complain about
	args := []string{"-hide_banner", "-loglevel", "error", "-i", sourcePath}
	args = append(args, opts.GetStrArguments()...)
	return append(args, filepath.Join(outputDir, ManifestFilename))
}
