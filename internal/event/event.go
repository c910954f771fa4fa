// Package event is the in-process bus connecting the pipeline and the
// drop-folder ingest to observers such as the websocket activity relay.
package event

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/pkg/logger"
)

var log = logger.Get("Events")

const (
	JOB_UPDATE   Event = "job:update"
	JOB_COMPLETE Event = "job:complete"

	INGEST_UPDATE   Event = "ingest:update"
	INGEST_COMPLETE Event = "ingest:complete"
)

type (
	Event         string
	Payload       any
	HandlerMethod func(Event, Payload)

	HandlerChannel chan HandlerEvent
	HandlerEvent   struct {
		Event   Event
		Payload Payload
	}

	// JobPayload is implemented by every payload dispatched for
	// a job event.
	JobPayload interface {
		JobID() uuid.UUID
	}

	EventDispatcher interface {
		Dispatch(Event, Payload)
	}

	EventHandler interface {
		RegisterAsyncHandlerFunction(Event, HandlerMethod)
		RegisterHandlerFunction(Event, HandlerMethod)
		RegisterHandlerChannel(HandlerChannel, ...Event)
	}

	EventCoordinator interface {
		EventDispatcher
		EventHandler
	}

	// subscriber receives events either through a function (called inline, or
	// on its own goroutine when async) or through a channel.
	subscriber struct {
		fn      HandlerMethod
		async   bool
		channel HandlerChannel
	}

	bus struct {
		mutex       sync.RWMutex
		subscribers map[Event][]subscriber
	}
)

// payloadCheckers lists the events the bus accepts, along with the
// check applied to each payload before it reaches subscribers.
var payloadCheckers = map[Event]func(Payload) bool{
	JOB_UPDATE:      isJobPayload,
	JOB_COMPLETE:    isJobPayload,
	INGEST_UPDATE:   isIngestID,
	INGEST_COMPLETE: isIngestID,
}

func isJobPayload(payload Payload) bool {
	_, ok := payload.(JobPayload)
	return ok
}

func isIngestID(payload Payload) bool {
	_, ok := payload.(uuid.UUID)
	return ok
}

func New() EventCoordinator {
	return &bus{subscribers: make(map[Event][]subscriber)}
}

// RegisterHandlerChannel subscribes the channel to every event given. The
// dispatching goroutine blocks while the channel is full, so channels should
// be buffered.
func (b *bus) RegisterHandlerChannel(channel HandlerChannel, events ...Event) {
	for _, ev := range events {
		b.subscribe(ev, subscriber{channel: channel})
	}
}

// RegisterHandlerFunction subscribes a function which is called inline by
// Dispatch. It must return quickly.
func (b *bus) RegisterHandlerFunction(ev Event, fn HandlerMethod) {
	b.subscribe(ev, subscriber{fn: fn})
}

// RegisterAsyncHandlerFunction subscribes a function which is called on a
// new goroutine for every dispatch.
func (b *bus) RegisterAsyncHandlerFunction(ev Event, fn HandlerMethod) {
	b.subscribe(ev, subscriber{fn: fn, async: true})
}

func (b *bus) subscribe(ev Event, sub subscriber) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.subscribers[ev] = append(b.subscribers[ev], sub)
}

// Dispatch delivers the payload to every subscriber of the event, in the
// order they subscribed. Payloads which fail their check are logged and dropped.
func (b *bus) Dispatch(ev Event, payload Payload) {
	if err := checkPayload(ev, payload); err != nil {
		log.Emit(logger.ERROR, "Dropping %s dispatch: %v\n", ev, err)
		return
	}

	b.mutex.RLock()
	subs := b.subscribers[ev]
	b.mutex.RUnlock()

	for _, sub := range subs {
		switch {
		case sub.channel != nil:
			sub.channel <- HandlerEvent{Event: ev, Payload: payload}
		case sub.async:
			go sub.fn(ev, payload)
		default:
			sub.fn(ev, payload)
		}
	}
}

func checkPayload(ev Event, payload Payload) error {
	check, ok := payloadCheckers[ev]
	if !ok {
		return fmt.Errorf("unknown event %q", ev)
	}
	if !check(payload) {
		return fmt.Errorf("payload of type %T is not valid for this event", payload)
	}

	return nil
}
