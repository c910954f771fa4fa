package workdir

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// URLPrefix is the HTTP path under which the uploads root is served.
	URLPrefix = "/uploads"

	videosDir   = "videos"
	incomingDir = "tmp"
)

var filenameReplacer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_", "%", "_")

// Layout describes the on-disk structure of the uploads root:
//
//	<root>/tmp/           received uploads awaiting processing
//	<root>/videos/<job>/  per-job output (HLS manifest, segments and thumbnail)
type Layout struct {
	Root string
}

func NewLayout(root string) Layout { return Layout{Root: root} }

// Ensure creates the directories of the layout if they do not exist.
func (layout Layout) Ensure() error {
	for _, dir := range []string{layout.VideosDir(), layout.IncomingDir()} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("unable to create uploads directory %s: %w", dir, err)
		}
	}

	return nil
}

func (layout Layout) VideosDir() string   { return filepath.Join(layout.Root, videosDir) }
func (layout Layout) IncomingDir() string { return filepath.Join(layout.Root, incomingDir) }

func (layout Layout) JobDir(jobID uuid.UUID) string {
	return filepath.Join(layout.VideosDir(), jobID.String())
}

// ManifestURL is the public URL of the HLS manifest for the job.
func ManifestURL(jobID uuid.UUID, manifestFilename string) string {
	return path.Join(URLPrefix, videosDir, jobID.String(), manifestFilename)
}

// ThumbnailFilename returns the filename used for a job's thumbnail.
func ThumbnailFilename(title string) string {
	return SanitiseFilename(title) + ".jpg"
}

// ThumbnailURL is the public URL of the thumbnail for the job. The filename
// is percent-encoded, as titles routinely contain '?', '#' or spaces.
func ThumbnailURL(jobID uuid.UUID, title string) string {
	return path.Join(URLPrefix, videosDir, jobID.String()) + "/" + url.PathEscape(ThumbnailFilename(title))
}

// SanitiseFilename replaces path separators and '%' in the value so that
// it can be safely used as a single path element, and as an ffmpeg output.
func SanitiseFilename(value string) string {
	sanitised := filenameReplacer.Replace(value)
	if sanitised == "." || sanitised == ".." {
		return strings.Repeat("_", len(sanitised))
	}

	return sanitised
}

// AcquireClean removes any existing contents at the path and then
// (re)creates it as an empty directory. It must only be used for
// directories exclusively owned by the caller.
func AcquireClean(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("unable to clear directory %s: %w", dir, err)
	}

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("unable to create directory %s: %w", dir, err)
	}

	return nil
}

func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)

	if os.IsNotExist(err) {
		return false
	}

	return err == nil
}

// MoveFile renames src to dst, falling back to copy-then-delete when the
// rename crosses filesystem boundaries.
func MoveFile(src string, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrExist) && !isCrossDevice(err) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}

	return os.Remove(src)
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	return errors.As(err, &linkErr) && strings.Contains(linkErr.Err.Error(), "cross-device")
}
