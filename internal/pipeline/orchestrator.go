package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/internal/asset"
	"github.com/hbomb79/Marquee/internal/event"
	"github.com/hbomb79/Marquee/internal/ffmpeg"
	"github.com/hbomb79/Marquee/internal/title"
	"github.com/hbomb79/Marquee/internal/workdir"
	"github.com/hbomb79/Marquee/pkg/logger"
)

var log = logger.Get("Pipeline")

type (
	TitleResolver interface {
		Resolve(ctx context.Context, stem string) string
	}

	MetadataProber interface {
		Probe(ctx context.Context, path string) (ffmpeg.TechnicalMetadata, error)
	}

	ThumbnailExtractor interface {
		Extract(ctx context.Context, sourcePath string, destPath string) error
	}

	Transcoder interface {
		Transcode(ctx context.Context, sourcePath string, outputDir string) (string, error)
	}

	Registrar interface {
		Register(ctx context.Context, record asset.Record) asset.Registration
	}

	Collaborators struct {
		Resolver   TitleResolver
		Prober     MetadataProber
		Extractor  ThumbnailExtractor
		Transcoder Transcoder
		Registrar  Registrar
	}

	// Orchestrator drives uploaded files through the pipeline: title
	// resolution, probing, thumbnail extraction, HLS transcoding and finally
	// registration with the catalog. Each call to Run is independent and
	// safe to execute concurrently with others.
	Orchestrator struct {
		layout        workdir.Layout
		collaborators Collaborators
		eventBus      event.EventDispatcher
	}
)

func New(layout workdir.Layout, collaborators Collaborators, eventBus event.EventDispatcher) *Orchestrator {
	return &Orchestrator{layout, collaborators, eventBus}
}

// Run executes the pipeline for the uploaded file provided, blocking until
// the job completes. The returned result is never nil; if the job failed
// then Result.Err will contain a *StageError describing the failure.
func (orchestrator *Orchestrator) Run(ctx context.Context, file UploadedFile) *Result {
	job := &Job{ID: uuid.New(), Stage: Received, Source: file}
	orchestrator.dispatchUpdate(job)
	log.Emit(logger.NEW, "Received upload %q as job %s (%d bytes)\n", file.OriginalName, job.ID, file.Size)

	result := orchestrator.execute(ctx, job)
	result.Stage = job.Stage
	if result.Err != nil {
		result.Error = result.Err.Error()
		log.Emit(logger.ERROR, "Job %s (%q) failed at stage %s: %v\n", job.ID, job.Title, job.Stage, result.Err)
	} else {
		log.Emit(logger.SUCCESS, "Job %s (%q) complete\n", job.ID, job.Title)
	}

	if orchestrator.eventBus != nil {
		orchestrator.eventBus.Dispatch(event.JOB_COMPLETE, result)
	}
	return result
}

func (orchestrator *Orchestrator) execute(ctx context.Context, job *Job) *Result {
	collab := orchestrator.collaborators
	stem := FilenameStem(job.Source.OriginalName)
	result := &Result{ID: job.ID, ByteSize: job.Source.Size, Title: title.Fallback(stem)}

	// Received -> DirectoryProvisioned (fatal)
	dir := orchestrator.layout.JobDir(job.ID)
	if err := workdir.AcquireClean(dir); err != nil {
		result.Err = &StageError{Kind: IOError, Stage: DirectoryProvisioned, Err: err}
		return result
	}
	job.Dir = dir
	orchestrator.transition(job, DirectoryProvisioned)

	// DirectoryProvisioned -> TitleResolved
	job.Title = collab.Resolver.Resolve(ctx, stem)
	result.Title = job.Title
	orchestrator.transition(job, TitleResolved)

	// TitleResolved -> MetadataProbed
	metadata, err := collab.Prober.Probe(ctx, job.Source.Path)
	if err != nil {
		stageErr := &StageError{Kind: ProbeFailed, Stage: MetadataProbed, Err: err}
		log.Emit(logger.WARNING, "Job %s: %v. Continuing with unknown metadata\n", job.ID, stageErr)
		metadata = ffmpeg.UnknownMetadata()
	}
	job.Metadata = metadata
	orchestrator.transition(job, MetadataProbed)

	// MetadataProbed -> ThumbnailAttempted
	job.ThumbnailPath = orchestrator.attemptThumbnail(ctx, job)
	if job.ThumbnailPath != "" {
		result.ThumbnailURL = workdir.ThumbnailURL(job.ID, job.Title)
	}
	orchestrator.transition(job, ThumbnailAttempted)

	// ThumbnailAttempted -> Transcoded (fatal)
	manifestPath, err := collab.Transcoder.Transcode(ctx, job.Source.Path, job.Dir)
	if err != nil {
		result.Err = &StageError{Kind: TranscodeFailed, Stage: Transcoded, Err: err}
		orchestrator.transition(job, Aborted)
		log.Emit(logger.WARNING, "Job %s aborted; upload %s retained for retry\n", job.ID, job.Source.Path)
		return result
	}
	job.ManifestPath = manifestPath
	result.ManifestURL = workdir.ManifestURL(job.ID, filepath.Base(manifestPath))
	orchestrator.transition(job, Transcoded)

	// Transcoded -> Registered
	result.Record = &asset.Record{
		Title:        job.Title,
		ManifestURL:  result.ManifestURL,
		Size:         job.Source.Size,
		ThumbnailURL: result.ThumbnailURL,
		Duration:     job.Metadata.DurationSeconds,
		Format:       job.Metadata.Format,
	}
	registration := collab.Registrar.Register(ctx, *result.Record)
	result.Registration = &registration
	if !registration.Success {
		result.Err = &StageError{Kind: RegistrationFailed, Stage: Registered, Err: registrationError(registration)}
	}
	orchestrator.transition(job, Registered)

	// Registered -> Cleaned. The upload is removed regardless of the
	// registration outcome, as the transcoded output now exists.
	if err := os.Remove(job.Source.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Emit(logger.WARNING, "Job %s: failed to remove upload %s: %v\n", job.ID, job.Source.Path, err)
	}
	orchestrator.transition(job, Cleaned)

	return result
}

// Reregister submits the asset of a run which failed registration to the
// catalog again. The transcoded output of the run is reused as-is, so the
// upload it came from does not need to exist.
func (orchestrator *Orchestrator) Reregister(ctx context.Context, previous *Result) (*Result, error) {
	if previous.Record == nil || !errors.Is(previous.Err, RegistrationFailed) {
		return nil, ErrNotReregistrable
	}

	result := *previous
	registration := orchestrator.collaborators.Registrar.Register(ctx, *previous.Record)
	result.Registration = &registration
	result.Err, result.Error = nil, ""
	if !registration.Success {
		result.Err = &StageError{Kind: RegistrationFailed, Stage: Registered, Err: registrationError(registration)}
		result.Error = result.Err.Error()
		log.Emit(logger.WARNING, "Job %s (%q) failed registration again: %v\n", result.ID, result.Title, result.Err)
	} else {
		log.Emit(logger.SUCCESS, "Job %s (%q) registered on retry\n", result.ID, result.Title)
	}

	if orchestrator.eventBus != nil {
		orchestrator.eventBus.Dispatch(event.JOB_COMPLETE, &result)
	}
	return &result, nil
}

// attemptThumbnail extracts a thumbnail for the job, returning the path to
// the image if (and only if) it exists on disk afterwards. Failures are
// logged and result in an empty path.
func (orchestrator *Orchestrator) attemptThumbnail(ctx context.Context, job *Job) string {
	thumbnailPath := filepath.Join(job.Dir, workdir.ThumbnailFilename(job.Title))

	var failure error
	if err := orchestrator.collaborators.Extractor.Extract(ctx, job.Source.Path, thumbnailPath); err != nil {
		failure = err
	} else if !workdir.FileExists(thumbnailPath) {
		failure = errors.New("extractor reported success but thumbnail does not exist")
	}

	if failure != nil {
		stageErr := &StageError{Kind: ThumbnailFailed, Stage: ThumbnailAttempted, Err: failure}
		log.Emit(logger.WARNING, "Job %s: %v. Continuing without thumbnail\n", job.ID, stageErr)
		_ = os.Remove(thumbnailPath)
		return ""
	}

	return thumbnailPath
}

func (orchestrator *Orchestrator) transition(job *Job, stage Stage) {
	log.Emit(logger.DEBUG, "Job %s: %s -> %s\n", job.ID, job.Stage, stage)
	job.Stage = stage
	orchestrator.dispatchUpdate(job)
}

func (orchestrator *Orchestrator) dispatchUpdate(job *Job) {
	if orchestrator.eventBus == nil {
		return
	}

	orchestrator.eventBus.Dispatch(event.JOB_UPDATE, JobUpdate{
		ID:           job.ID,
		Stage:        job.Stage,
		Title:        job.Title,
		OriginalName: job.Source.OriginalName,
	})
}

func registrationError(registration asset.Registration) error {
	if registration.Error != "" {
		return errors.New(registration.Error)
	} else if registration.Message != "" {
		return errors.New(registration.Message)
	}

	return errors.New("catalog rejected asset")
}

// FilenameStem returns the base name of the path provided, without
// its extension.
func FilenameStem(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}

	return strings.TrimSuffix(base, filepath.Ext(base))
}
