package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/floostack/transcoder/ffmpeg"
)

const (
	// ThumbnailSeekOffset is the position (in seconds) of the frame
	// captured for thumbnails.
	ThumbnailSeekOffset = "1"

	ThumbnailMaxWidth    = 640
	ThumbnailJPEGQuality = 85
)

type ThumbnailExtractor struct {
	config Config
	runner Runner
}

func NewThumbnailExtractor(config Config, runner Runner) *ThumbnailExtractor {
	return &ThumbnailExtractor{config, runner}
}

// Extract asks ffmpeg to write a single frame from the source video to the
// destination path, and then normalises the resulting image. The exit code
// of ffmpeg alone is not trusted - callers must still verify the
// file exists before using the destination path.
func (extractor *ThumbnailExtractor) Extract(ctx context.Context, sourcePath string, destPath string) error {
	toolCtx, cancel := extractor.config.toolContext(ctx)
	defer cancel()

	result, err := extractor.runner.Run(toolCtx, extractor.config.FfmpegBinPath, thumbnailArgs(sourcePath, destPath)...)
	if err != nil {
		return &ThumbnailError{Path: sourcePath, Reason: "invocation failed", Err: err}
	} else if !result.Succeeded() {
		return &ThumbnailError{Path: sourcePath, Reason: result.Diagnostics()}
	}

	if _, err := os.Stat(destPath); err != nil {
		return &ThumbnailError{Path: sourcePath, Reason: "ffmpeg reported success but no frame was written", Err: err}
	}

	if err := NormaliseThumbnail(destPath); err != nil {
		return &ThumbnailError{Path: sourcePath, Reason: "extracted frame is not a usable image", Err: err}
	}

	return nil
}

func thumbnailArgs(sourcePath string, destPath string) []string {
	seek := ThumbnailSeekOffset
	overwrite := true
	opts := ffmpeg.Options{
		SeekTime:  &seek,
		Overwrite: &overwrite,
		// -update writes a single image to the literal path, so '%' in a
		// title is never read as an image2 sequence pattern.
		ExtraArgs: map[string]interface{}{"-frames:v": 1, "-update": 1},
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-i", sourcePath}
	args = append(args, opts.GetStrArguments()...)
	return append(args, destPath)
}

// NormaliseThumbnail decodes the image at the path provided and re-encodes
// it as a JPEG in place, downscaling it to ThumbnailMaxWidth if wider.
// Decoding doubles as verification that the file is a complete image.
func NormaliseThumbnail(path string) error {
	src, err := imaging.Open(path)
	if err != nil {
		return err
	}

	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return errors.New("image has no pixels")
	}

	img := imaging.Clone(src)
	if bounds.Dx() > ThumbnailMaxWidth {
		img = imaging.Resize(src, ThumbnailMaxWidth, 0, imaging.Lanczos)
	}

	// Destination is replaced via rename, never written partially.
	tmpPath := filepath.Join(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err := imaging.Save(img, tmpPath, imaging.JPEGQuality(ThumbnailJPEGQuality)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, path)
}
