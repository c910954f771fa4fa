package pipeline

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/internal/asset"
	"github.com/hbomb79/Marquee/internal/ffmpeg"
)

// Stage is the position of a job in the pipeline state machine. Stages
// are strictly ordered; Aborted is terminal and only reachable from a
// failed transcode.
type Stage int

const (
	Received Stage = iota
	DirectoryProvisioned
	TitleResolved
	MetadataProbed
	ThumbnailAttempted
	Transcoded
	Registered
	Cleaned
	Aborted
)

var stageNames = []string{
	"Received",
	"DirectoryProvisioned",
	"TitleResolved",
	"MetadataProbed",
	"ThumbnailAttempted",
	"Transcoded",
	"Registered",
	"Cleaned",
	"Aborted",
}

func (stage Stage) String() string {
	if stage < 0 || int(stage) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(stage))
	}

	return stageNames[stage]
}

func (stage Stage) MarshalText() ([]byte, error) {
	return []byte(stage.String()), nil
}

func (stage *Stage) UnmarshalText(text []byte) error {
	for i, name := range stageNames {
		if strings.EqualFold(name, string(text)) {
			*stage = Stage(i)
			return nil
		}
	}

	return fmt.Errorf("unknown pipeline stage %q", text)
}

type (
	// UploadedFile is a received upload awaiting processing. The pipeline
	// owns the file for the duration of a run, and deletes it once
	// the transcode has succeeded.
	UploadedFile struct {
		Path         string
		OriginalName string
		Size         int64
	}

	// Job is the working state of a single pipeline run. It is only ever
	// mutated by the Orchestrator executing it.
	Job struct {
		ID            uuid.UUID
		Dir           string
		ManifestPath  string
		Stage         Stage
		Title         string
		Metadata      ffmpeg.TechnicalMetadata
		ThumbnailPath string
		Source        UploadedFile
	}

	// Result is the outcome of a pipeline run. Failed runs still carry
	// every field computed before the failure occurred.
	Result struct {
		Title        string              `json:"title"`
		Error        string              `json:"error,omitempty"`
		ManifestURL  string              `json:"manifestUrl"`
		ID           uuid.UUID           `json:"jobId"`
		ByteSize     int64               `json:"byteSize"`
		ThumbnailURL string              `json:"thumbnailUrl"`
		Stage        Stage               `json:"stage"`
		Registration *asset.Registration `json:"registration,omitempty"`

		// Record is the catalog entry built once transcoding succeeds.
		Record *asset.Record `json:"-"`
		Err    error         `json:"-"`
	}

	// JobUpdate is dispatched each time a job changes stage.
	JobUpdate struct {
		ID           uuid.UUID `json:"jobId"`
		Stage        Stage     `json:"stage"`
		Title        string    `json:"title,omitempty"`
		OriginalName string    `json:"originalName"`
	}
)

func (result *Result) Succeeded() bool { return result.Err == nil }

func (result *Result) JobID() uuid.UUID { return result.ID }

func (update JobUpdate) JobID() uuid.UUID { return update.ID }
