package websocket

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hbomb79/Marquee/pkg/logger"
)

var socketLogger = logger.Get("WebSocket")

const (
	titleWelcome        = "CONNECTION_ESTABLISHED"
	titleCommandFailure = "COMMAND_FAILURE"
)

type SocketHandler func(*SocketHub, *SocketMessage) error

// SocketHub owns every websocket connection made to the activity stream.
// All client bookkeeping happens on the goroutine running Start; other
// goroutines talk to it over channels.
type SocketHub struct {
	handlers           map[string]SocketHandler
	upgrader           *websocket.Upgrader
	clients            map[uuid.UUID]*socketClient
	joinCh             chan *socketClient
	leaveCh            chan *socketClient
	outboundCh         chan *SocketMessage
	inboundCh          chan *SocketMessage
	doneCh             chan struct{}
	connectionCallback func() map[string]interface{}
	running            atomic.Bool
}

func New() *SocketHub {
	return &SocketHub{
		handlers: make(map[string]SocketHandler),
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		outboundCh: make(chan *SocketMessage),
		inboundCh:  make(chan *SocketMessage),
		joinCh:     make(chan *socketClient),
		leaveCh:    make(chan *socketClient),
		doneCh:     make(chan struct{}),
	}
}

// WithConnectionCallback sets a function whose result is merged in to the
// welcome message of every new client, so clients receive the current state
// without waiting for the next update.
func (hub *SocketHub) WithConnectionCallback(callback func() map[string]interface{}) {
	hub.connectionCallback = callback
}

// BindCommand binds the command provided to a socket handler. Commands
// must be bound before the hub is started.
func (hub *SocketHub) BindCommand(command string, handler SocketHandler) *SocketHub {
	hub.handlers[command] = handler
	return hub
}

// Start runs the hub until the context is cancelled, at which point every
// client is disconnected. A hub can only be started once.
func (hub *SocketHub) Start(ctx context.Context) {
	if ctx.Err() != nil {
		return
	} else if !hub.running.CompareAndSwap(false, true) {
		socketLogger.Emit(logger.WARNING, "Socket hub is already running\n")
		return
	}

	hub.clients = make(map[uuid.UUID]*socketClient)
	defer hub.shutdown()

	socketLogger.Emit(logger.INFO, "Activity stream open\n")
	for {
		select {
		case message := <-hub.outboundCh:
			hub.deliver(message)
		case message := <-hub.inboundCh:
			go hub.handleCommand(message)
		case client := <-hub.joinCh:
			hub.join(client)
		case client := <-hub.leaveCh:
			hub.leave(client)
		case <-ctx.Done():
			return
		}
	}
}

func (hub *SocketHub) IsRunning() bool { return hub.running.Load() }

// Send queues the message for delivery. Messages without a Target are
// broadcast. Messages sent while the hub is not running are dropped.
func (hub *SocketHub) Send(message *SocketMessage) {
	if !hub.running.Load() {
		socketLogger.Emit(logger.VERBOSE, "Dropping %s message, socket hub is not running\n", message.Title)
		return
	}

	select {
	case hub.outboundCh <- message:
	case <-hub.doneCh:
	}
}

// UpgradeToSocket upgrades the request to a websocket and serves the client
// until it disconnects or the hub shuts down.
func (hub *SocketHub) UpgradeToSocket(w http.ResponseWriter, r *http.Request) {
	if !hub.running.Load() {
		http.Error(w, "activity stream unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		socketLogger.Emit(logger.WARNING, "Websocket upgrade failed: %v\n", err)
		return
	}

	client := &socketClient{id: uuid.New(), socket: conn}
	select {
	case hub.joinCh <- client:
	case <-hub.doneCh:
		client.Close()
		return
	}
	defer func() {
		select {
		case hub.leaveCh <- client:
		case <-hub.doneCh:
		}
		client.Close()
	}()

	hub.Send(hub.welcomeMessage(client.id))
	if err := client.Read(hub.inboundCh, hub.doneCh); err != nil {
		socketLogger.Emit(logger.DEBUG, "Client %s disconnected: %v\n", client.id, err)
	}
}

func (hub *SocketHub) welcomeMessage(clientID uuid.UUID) *SocketMessage {
	body := map[string]interface{}{}
	if hub.connectionCallback != nil {
		for k, v := range hub.connectionCallback() {
			body[k] = v
		}
	}
	body["client"] = clientID

	return &SocketMessage{Title: titleWelcome, Body: body, Target: &clientID, Type: Welcome}
}

func (hub *SocketHub) join(client *socketClient) {
	if _, exists := hub.clients[client.id]; exists {
		socketLogger.Emit(logger.ERROR, "Rejecting client with duplicate id %s\n", client.id)
		client.Close()
		return
	}

	hub.clients[client.id] = client
	socketLogger.Emit(logger.NEW, "Client %s connected (%d total)\n", client.id, len(hub.clients))
}

func (hub *SocketHub) leave(client *socketClient) {
	if _, exists := hub.clients[client.id]; !exists {
		return
	}

	delete(hub.clients, client.id)
	socketLogger.Emit(logger.REMOVE, "Client %s left (%d remaining)\n", client.id, len(hub.clients))
}

// deliver writes the message to its target, or to every client when the
// message has no target. A failed write to one client does not affect the rest.
func (hub *SocketHub) deliver(message *SocketMessage) {
	if message.Target != nil {
		client, ok := hub.clients[*message.Target]
		if !ok {
			socketLogger.Emit(logger.DEBUG, "Target %s of %s message has gone away\n", message.Target, message.Title)
			return
		}

		if err := client.SendMessage(message); err != nil {
			socketLogger.Emit(logger.WARNING, "Failed to send %s to client %s: %v\n", message.Title, client.id, err)
		}
		return
	}

	for id, client := range hub.clients {
		if err := client.SendMessage(message); err != nil {
			socketLogger.Emit(logger.WARNING, "Failed to broadcast %s to client %s: %v\n", message.Title, id, err)
		}
	}
}

func (hub *SocketHub) shutdown() {
	for _, client := range hub.clients {
		client.Close()
	}

	hub.clients = nil
	close(hub.doneCh)
	hub.running.Store(false)
	socketLogger.Emit(logger.STOP, "Activity stream closed\n")
}

// handleCommand runs the handler bound to the command. Unknown commands and
// handler errors are reported back to the sending client only.
func (hub *SocketHub) handleCommand(command *SocketMessage) {
	if command.Type != Command {
		socketLogger.Emit(logger.WARNING, "Ignoring non-command message %q from client %s\n", command.Title, command.Origin)
		return
	}

	handler, ok := hub.handlers[command.Title]
	if !ok {
		hub.Send(commandFailure(command, "Unknown command"))
		return
	}

	if err := handler(hub, command); err != nil {
		socketLogger.Emit(logger.ERROR, "Command %s failed: %v\n", command.Title, err)
		hub.Send(commandFailure(command, err.Error()))
	}
}

func commandFailure(command *SocketMessage, reason string) *SocketMessage {
	return &SocketMessage{
		Title:  titleCommandFailure,
		Id:     command.Id,
		Target: command.Origin,
		Body:   map[string]interface{}{"command": command, "error": reason},
		Type:   ErrorResponse,
	}
}
