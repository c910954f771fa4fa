package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/internal/event"
	"github.com/hbomb79/Marquee/internal/pipeline"
	"github.com/hbomb79/Marquee/internal/workdir"
	"github.com/hbomb79/Marquee/pkg/logger"
	"github.com/rjeczalik/notify"
)

var log = logger.Get("IngestServ")

type (
	// Runner executes pipeline runs for claimed files.
	Runner interface {
		Run(ctx context.Context, file pipeline.UploadedFile) *pipeline.Result
		Reregister(ctx context.Context, previous *pipeline.Result) (*pipeline.Result, error)
	}

	// Service is responsible for managing the automatic detection
	// and ingestion of files dropped in to the configured folder. The
	// detected files are:
	// - Held until their modtime is old enough to suggest the copy is complete
	// - Moved in to the uploads area, so the pipeline can take ownership of them
	// - Run through the same pipeline as HTTP uploads, each in their own goroutine
	Service struct {
		*sync.Mutex
		config           Config
		layout           workdir.Layout
		runner           Runner
		eventBus         event.EventDispatcher
		items            []*Item
		importHoldTimers map[uuid.UUID]*time.Timer
		runCtx           context.Context
		inflight         sync.WaitGroup
		pendingUpdates   []uuid.UUID
	}
)

// New creates a new ingest Service, using the provided config for
// subsequent calls to 'Run'.
//
// The configs 'Path' is validated to be an existing directory.
// If the directory is missing it will be created, if the path
// provided points to an existing FILE, an error is returned.
func New(config Config, layout workdir.Layout, runner Runner, eventBus event.EventDispatcher) (*Service, error) {
	if info, err := os.Stat(config.Path); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("ingestion path '%s' is not a directory", config.Path)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(config.Path, os.ModeDir|os.ModePerm); err != nil {
			return nil, fmt.Errorf("ingestion path '%s' could not be created: %w", config.Path, err)
		}
	} else {
		return nil, fmt.Errorf("ingestion path '%s' could not be accessed: %w", config.Path, err)
	}

	return &Service{
		Mutex:            &sync.Mutex{},
		config:           config,
		layout:           layout,
		runner:           runner,
		eventBus:         eventBus,
		items:            make([]*Item, 0),
		importHoldTimers: make(map[uuid.UUID]*time.Timer),
	}, nil
}

// Run is the main entry point of this service. It's responsible
// for listening to the OS file system and responding to change events,
// as well as regularly polling the file system irrespective of the
// watcher.
// To kill the service, the calling code should cancel the context
// provided. Run waits for any in-flight pipeline runs before returning.
func (service *Service) Run(ctx context.Context) error {
	service.Lock()
	service.runCtx = ctx
	for _, item := range service.items {
		if item.State == Idle {
			service.release(item)
		}
	}
	service.unlockAndDispatch()

	fsNotifyChannel := make(chan notify.EventInfo, 16)
	if err := notify.Watch(filepath.Join(service.config.Path, "..."), fsNotifyChannel, notify.Create, notify.Write, notify.Rename); err != nil {
		log.Emit(logger.WARNING, "Failed to watch %s for changes, falling back to polling only: %v\n", service.config.Path, err)
	} else {
		defer notify.Stop(fsNotifyChannel)
	}

	forceIngestTicker := time.NewTicker(service.config.ForceSyncDuration())
	defer forceIngestTicker.Stop()

	defer func() {
		service.Lock()
		service.clearAllImportHoldTimers()
		service.Unlock()
		service.inflight.Wait()
	}()

	log.Emit(logger.INFO, "Watching %s for new files\n", service.config.Path)
	service.DiscoverNewFiles()

	for {
		select {
		case <-fsNotifyChannel:
			service.DiscoverNewFiles()
		case <-forceIngestTicker.C:
			service.DiscoverNewFiles()
		case <-ctx.Done():
			return nil
		}
	}
}

// DiscoverNewFiles will scan the host file system at the path
// configured and check for items that need to be ingested (as
// in no current item in this service represents this path).
//
// Note: This function will take ownership of the mutex, and releases it when returning
func (service *Service) DiscoverNewFiles() {
	service.Lock()
	defer service.unlockAndDispatch()

	// Claimed items no longer occupy their drop path, so a new file at
	// the same path is a new item
	known := make(map[string]bool, len(service.items))
	for _, item := range service.items {
		if item.ClaimedPath == "" {
			known[item.Path] = true
		}
	}

	newItems, err := recursivelyWalkFileSystem(service.config.Path, known)
	if err != nil {
		log.Emit(logger.ERROR, "File system polling failed: %v\n", err)
		return
	}

	minModtimeAge := service.config.RequiredModTimeAgeDuration()
	for itemPath, itemInfo := range newItems {
		item := &Item{ID: uuid.New(), Path: itemPath, State: ImportHold}
		service.items = append(service.items, item)
		log.Emit(logger.NEW, "Discovered new file %s as %s\n", itemPath, item)

		timeDiff := time.Since(itemInfo.ModTime())
		if timeDiff >= minModtimeAge {
			service.release(item)
		} else {
			service.scheduleImportHoldTimer(item.ID, minModtimeAge-timeDiff)
			service.queueUpdate(item.ID)
		}
	}
}

// GetIngest accepts the ID of an ingest item and attempts to find it
// in the services state. If it cannot be found, nil is returned.
func (service *Service) GetIngest(itemID uuid.UUID) *Item {
	service.Lock()
	defer service.Unlock()

	if item := service.findItem(itemID); item != nil {
		return item.snapshot()
	}

	return nil
}

// GetAllIngests returns a snapshot of all the items known to this service.
func (service *Service) GetAllIngests() []*Item {
	service.Lock()
	defer service.Unlock()

	items := make([]*Item, len(service.items))
	for k, v := range service.items {
		items[k] = v.snapshot()
	}

	return items
}

// RemoveIngest looks for an item with the ID provided in the services
// state, and removes it if it's found.
// This method *fails* if the item is currently 'INGESTING' as interrupting
// the pipeline is not possible. The source file is left untouched, so an
// item which is removed while still in the drop folder will be rediscovered.
func (service *Service) RemoveIngest(itemID uuid.UUID) error {
	service.Lock()
	defer service.unlockAndDispatch()

	if service.findItem(itemID) == nil {
		return ErrIngestNotFound
	}
	return service.removeItem(itemID)
}

// ResolveTroubledIngest applies the resolution method to the troubled item
// specified. A retry runs the item through the pipeline again from its
// current source, or re-registers the transcoded asset when only the
// registration failed. An abort discards both the item and its source file.
func (service *Service) ResolveTroubledIngest(itemID uuid.UUID, method ResolutionType) error {
	service.Lock()
	defer service.unlockAndDispatch()

	item := service.findItem(itemID)
	if item == nil {
		return ErrIngestNotFound
	} else if item.State != Troubled || item.Trouble == nil {
		return ErrNoTrouble
	} else if !item.Trouble.isResolutionTypeAllowed(method) {
		return ErrResolutionIncompatible
	}

	switch method {
	case Retry:
		if item.Trouble.retriesRegistration() {
			return service.retryRegistration(item)
		}
		if !workdir.FileExists(item.sourcePath()) {
			return ErrSourceMissing
		}

		log.Emit(logger.INFO, "Retrying troubled %s\n", item)
		item.Trouble = nil
		item.Result = nil
		service.release(item)
		return nil
	case Abort:
		if err := os.Remove(item.sourcePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to discard source of %s: %w", item, err)
		}

		log.Emit(logger.REMOVE, "Aborted troubled %s\n", item)
		return service.removeItem(itemID)
	}

	return ErrResolutionIncompatible
}

// retryRegistration submits the asset from the item's failed run to the
// catalog again, in the background. It requires the service to be running.
//
// Note: caller must hold the mutex
func (service *Service) retryRegistration(item *Item) error {
	if service.runCtx == nil || service.runCtx.Err() != nil {
		return ErrServiceStopped
	}

	log.Emit(logger.INFO, "Retrying registration of troubled %s\n", item)
	previous := item.Result
	item.Trouble = nil
	item.State = Ingesting
	service.queueUpdate(item.ID)

	service.inflight.Add(1)
	go func(ctx context.Context, id uuid.UUID) {
		defer service.inflight.Done()

		result, err := service.runner.Reregister(ctx, previous)
		if err != nil {
			log.Emit(logger.ERROR, "Cannot re-register item %s: %v\n", id, err)
			result = previous
		}
		service.complete(id, result)
	}(service.runCtx, item.ID)

	return nil
}

// release marks the item as IDLE and spawns a goroutine to ingest it. If the
// service is not running, the item is left IDLE for a later call to pick up.
//
// Note: caller must hold the mutex
func (service *Service) release(item *Item) {
	item.State = Idle
	service.queueUpdate(item.ID)
	if service.runCtx == nil || service.runCtx.Err() != nil {
		return
	}

	item.State = Ingesting
	service.inflight.Add(1)
	go func(ctx context.Context, id uuid.UUID) {
		defer service.inflight.Done()
		service.ingest(ctx, id)
	}(service.runCtx, item.ID)
}

// ingest claims the file behind the item, moving it in to the uploads area, and
// then runs the pipeline on the claimed file. Failures are recorded as a
// trouble on the item.
func (service *Service) ingest(ctx context.Context, itemID uuid.UUID) {
	service.Lock()
	item := service.findItem(itemID)
	if item == nil {
		service.Unlock()
		return
	}

	log.Emit(logger.NEW, "Beginning ingestion of %s\n", item)
	dropPath, claimedPath := item.Path, item.ClaimedPath
	service.Unlock()

	// Items in INGESTING cannot be removed, so the file move can
	// happen without holding the mutex.
	if claimedPath == "" {
		claimedPath = filepath.Join(service.layout.IncomingDir(), fmt.Sprintf("ingest-%s%s", itemID, filepath.Ext(dropPath)))
		if err := workdir.MoveFile(dropPath, claimedPath); err != nil {
			log.Emit(logger.ERROR, "Failed to claim %s: %v\n", dropPath, err)
			service.Lock()
			item.State = Troubled
			item.Trouble = newClaimTrouble(err)
			service.queueUpdate(itemID)
			service.unlockAndDispatch()
			return
		}
	}

	upload := pipeline.UploadedFile{Path: claimedPath, OriginalName: filepath.Base(dropPath)}
	if info, err := os.Stat(claimedPath); err == nil {
		upload.Size = info.Size()
	}

	service.Lock()
	item.ClaimedPath = claimedPath
	service.queueUpdate(itemID)
	service.unlockAndDispatch()

	service.complete(itemID, service.runner.Run(ctx, upload))
}

// complete records the outcome of a pipeline run against the item.
func (service *Service) complete(itemID uuid.UUID, result *pipeline.Result) {
	service.Lock()
	item := service.findItem(itemID)
	if item == nil {
		service.Unlock()
		return
	}

	item.Result = result
	if result.Succeeded() {
		item.State = Complete
		log.Emit(logger.SUCCESS, "Ingestion of %s complete\n", item)
	} else {
		item.State = Troubled
		item.Trouble = newPipelineTrouble(result)
		log.Emit(logger.WARNING, "Ingestion of %s failed: %v\n", item, result.Err)
	}
	service.queueUpdate(itemID)
	service.unlockAndDispatch()

	service.eventBus.Dispatch(event.INGEST_COMPLETE, itemID)
}

// evaluateItemHold accepts the ID of an item that is on IMPORT_HOLD,
// and checks it's modtime to see if the item can be released.
// If the item with the ID provided no longer exists, the method is a NO-OP.
// If the item exists, but it's source file no longer exists, the item is removed
// from the services state.
// If the item exists and it's source still does not meet modtime requirements, then
// a new timer will be scheduled to re-evaluate the item hold.
//
// Note: this function takes ownership of the mutex, and releases it when returning
func (service *Service) evaluateItemHold(id uuid.UUID) {
	service.Lock()
	defer service.unlockAndDispatch()

	delete(service.importHoldTimers, id)
	item := service.findItem(id)
	if item == nil || item.State != ImportHold {
		return
	}

	timeDiff, err := item.modtimeDiff()
	if err != nil {
		log.Emit(logger.REMOVE, "Source of held %s has gone away, forgetting it\n", item)
		_ = service.removeItem(id)
		return
	}

	thresholdModTime := service.config.RequiredModTimeAgeDuration()
	if timeDiff < thresholdModTime {
		service.scheduleImportHoldTimer(id, thresholdModTime-timeDiff)
		return
	}

	service.release(item)
}

// scheduleImportHoldTimer will call evaluateItemHold for the item provided
// after the delay duration specified has elapsed. Any existing import hold timer
// for the item specified will be *cancelled* before the new timer is created.
//
// Note: caller must hold the mutex
func (service *Service) scheduleImportHoldTimer(id uuid.UUID, delay time.Duration) {
	service.clearImportHoldTimer(id)
	service.importHoldTimers[id] = time.AfterFunc(delay, func() {
		service.evaluateItemHold(id)
	})
}

func (service *Service) clearImportHoldTimer(id uuid.UUID) {
	if timer, ok := service.importHoldTimers[id]; ok {
		timer.Stop()
		delete(service.importHoldTimers, id)
	}
}

func (service *Service) clearAllImportHoldTimers() {
	for key, timer := range service.importHoldTimers {
		timer.Stop()
		delete(service.importHoldTimers, key)
	}
}

func (service *Service) findItem(id uuid.UUID) *Item {
	for _, item := range service.items {
		if item.ID == id {
			return item
		}
	}

	return nil
}

// Note: caller must hold the mutex
func (service *Service) removeItem(id uuid.UUID) error {
	for k, v := range service.items {
		if v.ID != id {
			continue
		}

		if v.State == Ingesting {
			return ErrIngestBusy
		}

		service.clearImportHoldTimer(id)
		service.items = append(service.items[:k], service.items[k+1:]...)
		service.queueUpdate(id)
		return nil
	}

	return nil
}

// Note: caller must hold the mutex
func (service *Service) queueUpdate(id uuid.UUID) {
	service.pendingUpdates = append(service.pendingUpdates, id)
}

// unlockAndDispatch releases the mutex, and then dispatches an update for
// every item changed while it was held. Handlers are therefore free to
// call back in to the service.
func (service *Service) unlockAndDispatch() {
	pending := service.pendingUpdates
	service.pendingUpdates = nil
	service.Unlock()

	for _, id := range pending {
		service.eventBus.Dispatch(event.INGEST_UPDATE, id)
	}
}

// recursivelyWalkFileSystem will walk the file system, starting at the directory provided,
// and construct a map of all the files inside (including any inside of nested directories).
// Files whose paths are included in the 'known' map will NOT be included in the result.
// The key of the returned map is the path, and the value contains the FileInfo
func recursivelyWalkFileSystem(rootDirPath string, known map[string]bool) (map[string]fs.FileInfo, error) {
	foundItems := make(map[string]fs.FileInfo)
	err := filepath.WalkDir(rootDirPath, func(path string, dir fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !dir.IsDir() {
			fileInfo, err := dir.Info()
			if err != nil {
				return err
			}

			if _, ok := known[path]; !ok {
				foundItems[path] = fileInfo
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk file system: %w", err)
	}

	return foundItems, nil
}
