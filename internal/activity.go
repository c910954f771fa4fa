package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/internal/event"
	"github.com/hbomb79/Marquee/internal/pipeline"
	"github.com/hbomb79/Marquee/pkg/logger"
)

const (
	DEBOUNCE_DURATION  time.Duration = time.Millisecond * 500
	MAX_TIMER_DURATION time.Duration = time.Second * 2
)

type (
	broadcastHandler func(uuid.UUID) error

	broadcaster interface {
		BroadcastJobUpdate(pipeline.JobUpdate) error
		BroadcastJobComplete(*pipeline.Result) error
		BroadcastIngestUpdate(uuid.UUID) error
	}

	eventKey struct {
		ev event.Event
		id uuid.UUID
	}

	// activityService relays events from the event bus to the broadcaster.
	// Job events are relayed as they arrive so that clients observe every
	// stage transition. Ingest events are debounced per ingest.
	activityService struct {
		*sync.Mutex
		broadcaster
		messageChan    event.HandlerChannel
		debounceTimers map[eventKey]*time.Timer
		maxTimers      map[eventKey]*time.Timer
	}
)

// newActivityService constructs the service and registers it with the event bus
// immediately, so events dispatched before Run is called are queued rather than lost.
func newActivityService(broadcaster broadcaster, eventBus event.EventHandler) *activityService {
	messageChan := make(event.HandlerChannel, 100)
	eventBus.RegisterHandlerChannel(messageChan,
		event.JOB_UPDATE, event.JOB_COMPLETE, event.INGEST_UPDATE, event.INGEST_COMPLETE)

	return &activityService{
		Mutex:          &sync.Mutex{},
		broadcaster:    broadcaster,
		messageChan:    messageChan,
		debounceTimers: make(map[eventKey]*time.Timer),
		maxTimers:      make(map[eventKey]*time.Timer),
	}
}

func (service *activityService) Run(ctx context.Context) error {
	log.Emit(logger.NEW, "Activity service started\n")
	defer service.stopAllTimers()
	for {
		select {
		case ev := <-service.messageChan:
			if err := service.handleEvent(ev); err != nil {
				log.Emit(logger.ERROR, "Handling of event %v failed: %v\n", ev.Event, err)
			}
		case <-ctx.Done():
			// Jobs still winding down must not block on a full channel
			go func() {
				for range service.messageChan {
				}
			}()

			log.Emit(logger.STOP, "Activity service closed\n")
			return nil
		}
	}
}

func (service *activityService) handleEvent(ev event.HandlerEvent) error {
	switch ev.Event {
	case event.JOB_UPDATE:
		update, ok := ev.Payload.(pipeline.JobUpdate)
		if !ok {
			return fmt.Errorf("illegal payload %T (expected pipeline.JobUpdate)", ev.Payload)
		}

		return service.BroadcastJobUpdate(update)
	case event.JOB_COMPLETE:
		result, ok := ev.Payload.(*pipeline.Result)
		if !ok {
			return fmt.Errorf("illegal payload %T (expected *pipeline.Result)", ev.Payload)
		}

		return service.BroadcastJobComplete(result)
	case event.INGEST_UPDATE, event.INGEST_COMPLETE:
		id, ok := ev.Payload.(uuid.UUID)
		if !ok {
			return errors.New("illegal payload (expected UUID)")
		}

		// Both events describe the same resource, so they share a key
		service.scheduleEventBroadcast(eventKey{ev: event.INGEST_UPDATE, id: id}, service.BroadcastIngestUpdate)
		return nil
	default:
		return errors.New("unknown event type")
	}
}

func (service *activityService) scheduleEventBroadcast(resourceKey eventKey, handler broadcastHandler) {
	service.Lock()
	defer service.Unlock()

	broadcaster := func() { service.broadcast(resourceKey, handler) }

	// Cancel and re-set a debounce timer
	if t, ok := service.debounceTimers[resourceKey]; ok {
		t.Stop()
	}
	service.debounceTimers[resourceKey] = time.AfterFunc(DEBOUNCE_DURATION, broadcaster)

	// Set a max timer if not already set
	if _, ok := service.maxTimers[resourceKey]; !ok {
		service.maxTimers[resourceKey] = time.AfterFunc(MAX_TIMER_DURATION, broadcaster)
	}
}

func (service *activityService) broadcast(resourceKey eventKey, handler broadcastHandler) {
	service.Lock()
	if t, ok := service.debounceTimers[resourceKey]; ok {
		t.Stop()
		delete(service.debounceTimers, resourceKey)
	}

	if t, ok := service.maxTimers[resourceKey]; ok {
		t.Stop()
		delete(service.maxTimers, resourceKey)
	}
	service.Unlock()

	if err := handler(resourceKey.id); err != nil {
		log.Emit(logger.ERROR, "Broadcast for %s %s failed: %v\n", resourceKey.ev, resourceKey.id, err)
	}
}

func (service *activityService) stopAllTimers() {
	service.Lock()
	defer service.Unlock()

	for key, t := range service.debounceTimers {
		t.Stop()
		delete(service.debounceTimers, key)
	}
	for key, t := range service.maxTimers {
		t.Stop()
		delete(service.maxTimers, key)
	}
}
