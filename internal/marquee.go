package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/hbomb79/Marquee/internal/api"
	"github.com/hbomb79/Marquee/internal/api/ingests"
	"github.com/hbomb79/Marquee/internal/api/videos"
	"github.com/hbomb79/Marquee/internal/asset"
	"github.com/hbomb79/Marquee/internal/database"
	"github.com/hbomb79/Marquee/internal/event"
	"github.com/hbomb79/Marquee/internal/ffmpeg"
	"github.com/hbomb79/Marquee/internal/http/lastfm"
	"github.com/hbomb79/Marquee/internal/ingest"
	"github.com/hbomb79/Marquee/internal/pipeline"
	"github.com/hbomb79/Marquee/internal/title"
	"github.com/hbomb79/Marquee/internal/workdir"
	"github.com/hbomb79/Marquee/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	DatabaseServer interface {
		Connect(database.DatabaseConfig) error
		Close() error
	}

	Catalog interface {
		pipeline.Registrar
		videos.Catalog
	}

	RestGateway interface {
		RunnableService
		broadcaster
	}

	IngestService interface {
		RunnableService
		ingests.IngestService
	}
)

// marqueeImpl represents the top-level object for the server, and is responsible
// for constructing the pipeline and its collaborators, the catalog, the optional
// drop-folder ingest and the REST gateway.
type marqueeImpl struct {
	config   MarqueeConfig
	eventBus event.EventCoordinator
	layout   workdir.Layout
	runner   ffmpeg.Runner

	// db is only populated when the catalog is backed by the local database
	db       DatabaseServer
	catalog  Catalog
	pipeline *pipeline.Orchestrator

	restGateway     RestGateway
	ingestService   IngestService
	activityService *activityService
}

func New(config MarqueeConfig) (*marqueeImpl, error) {
	log.Emit(logger.DEBUG, "Bootstrapping Marquee services (uploads=%s, catalog=%s, ingest=%v)\n",
		config.Uploads.Root, config.Catalog.Backend, config.Ingest.Enabled())

	layout := workdir.NewLayout(config.Uploads.Root)
	if err := layout.Ensure(); err != nil {
		return nil, fmt.Errorf("failed to prepare uploads directory %s: %w", config.Uploads.Root, err)
	}

	marquee := &marqueeImpl{
		config:   config,
		eventBus: event.New(),
		layout:   layout,
		runner:   ffmpeg.NewCommandRunner(),
	}

	switch config.Catalog.Backend {
	case asset.BackendRemote:
		marquee.catalog = asset.NewRemoteRegistrar(config.Catalog.RemoteURL, config.Catalog.Timeout())
	default:
		db := database.New()
		marquee.db = db
		marquee.catalog = asset.NewStoreRegistrar(db, asset.NewStore())
	}

	if config.Lastfm.ApiKey == "" {
		log.Emit(logger.WARNING, "No Last.fm API key configured; titles will be derived from filenames\n")
	}

	marquee.pipeline = pipeline.New(layout, pipeline.Collaborators{
		Resolver:   title.NewResolver(lastfm.NewSearcher(config.Lastfm)),
		Prober:     ffmpeg.NewProber(config.Ffmpeg, marquee.runner),
		Extractor:  ffmpeg.NewThumbnailExtractor(config.Ffmpeg, marquee.runner),
		Transcoder: ffmpeg.NewTranscoder(config.Ffmpeg, marquee.runner),
		Registrar:  marquee.catalog,
	}, marquee.eventBus)

	// Left as a nil interface when disabled so the gateway omits the ingest routes
	var gatewayIngests ingests.IngestService
	if config.Ingest.Enabled() {
		serv, err := ingest.New(config.Ingest, layout, marquee.pipeline, marquee.eventBus)
		if err != nil {
			return nil, fmt.Errorf("failed to construct ingestion service: %w", err)
		}

		marquee.ingestService = serv
		gatewayIngests = serv
	}

	gateway := api.NewRestGateway(&config.Api, layout, marquee.pipeline, marquee.catalog, gatewayIngests)
	marquee.restGateway = gateway
	marquee.activityService = newActivityService(gateway, marquee.eventBus)

	return marquee, nil
}

// Run will start all of Marquee by bringing up all required services and connections:
// - External tool preflight
// - Database connection (store catalog only)
// - Service instances
//
// This function will not return until Marquee is stopped.
// To stop Marquee, the provided context must be cancelled. Errors from which Marquee cannot recover
// will also cause Marquee to stop, and are returned.
func (marquee *marqueeImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel(fmt.Errorf("service %s crashed: %w", label, err))
	}

	log.Emit(logger.NEW, "Checking external tools...\n")
	if errs := ffmpeg.CheckTools(ctx, marquee.config.Ffmpeg, marquee.runner); len(errs) > 0 {
		log.Emit(logger.WARNING, "%d external tool(s) unavailable; uploads will fail until this is resolved\n", len(errs))
	}

	if marquee.db != nil {
		log.Emit(logger.NEW, "Connecting to database...\n")
		if err := marquee.db.Connect(marquee.config.Database); err != nil {
			return err
		}
		defer marquee.db.Close()
	}

	wg := &sync.WaitGroup{}
	marquee.spawnAsyncService(ctx, wg, marquee.activityService, "activity-service", crashHandler)
	if marquee.ingestService != nil {
		marquee.spawnAsyncService(ctx, wg, marquee.ingestService, "ingest-service", crashHandler)
	}
	marquee.spawnAsyncService(ctx, wg, marquee.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Marquee services spawned!\n")

	wg.Wait()

	if parent.Err() == nil {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
	}

	return nil
}

// spawnAsyncService will run the provided service as it's own
// go-routine, ensuring that the Marquee service waitgroup is updated correctly
func (marquee *marqueeImpl) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
