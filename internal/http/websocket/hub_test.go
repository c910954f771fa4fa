package websocket_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/hbomb79/Marquee/internal/http/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*websocket.SocketHub, string) {
	hub := websocket.New()
	hub.WithConnectionCallback(func() map[string]interface{} {
		return map[string]interface{}{"service": "marquee"}
	})
	hub.BindCommand("ECHO", func(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
		if err := message.ValidateArguments(map[string]websocket.ArgumentKind{"text": websocket.StringArgument}); err != nil {
			return err
		}

		hub.Send(message.FormReply("ECHO_REPLY", map[string]interface{}{"text": message.Body["text"]}, websocket.Response))
		return nil
	})
	hub.BindCommand("FAIL", func(*websocket.SocketHub, *websocket.SocketMessage) error {
		return errors.New("nope")
	})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Start(ctx)
	t.Cleanup(cancel)

	require.Eventually(t, hub.IsRunning, time.Second, 5*time.Millisecond)

	server := httptest.NewServer(http.HandlerFunc(hub.UpgradeToSocket))
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *gorilla.Conn {
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readMessage(t *testing.T, conn *gorilla.Conn) map[string]interface{} {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func Test_Hub_WelcomesClients(t *testing.T) {
	_, url := startHub(t)
	conn := dial(t, url)

	welcome := readMessage(t, conn)
	assert.Equal(t, "CONNECTION_ESTABLISHED", welcome["title"])

	args, ok := welcome["arguments"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "marquee", args["service"])
	assert.NotEmpty(t, args["client"])
}

func Test_Hub_DispatchesCommands(t *testing.T) {
	_, url := startHub(t)
	conn := dial(t, url)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"title": "ECHO", "id": 7, "type": websocket.Command, "arguments": map[string]interface{}{"text": "hi"}}))
	reply := readMessage(t, conn)
	assert.Equal(t, "ECHO_REPLY", reply["title"])
	assert.EqualValues(t, 7, reply["id"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"title": "FAIL", "id": 8, "type": websocket.Command}))
	failure := readMessage(t, conn)
	assert.Equal(t, "COMMAND_FAILURE", failure["title"])
	assert.EqualValues(t, 8, failure["id"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"title": "NOT_BOUND", "id": 9, "type": websocket.Command}))
	unknown := readMessage(t, conn)
	assert.Equal(t, "COMMAND_FAILURE", unknown["title"])
}

func Test_Hub_BroadcastsToAllClients(t *testing.T) {
	hub, url := startHub(t)
	first, second := dial(t, url), dial(t, url)
	readMessage(t, first)
	readMessage(t, second)

	hub.Send(&websocket.SocketMessage{Title: "JOB_UPDATE", Body: map[string]interface{}{"stage": "Transcoded"}, Type: websocket.Update})

	assert.Equal(t, "JOB_UPDATE", readMessage(t, first)["title"])
	assert.Equal(t, "JOB_UPDATE", readMessage(t, second)["title"])
}

func Test_Hub_RejectsInvalidArguments(t *testing.T) {
	_, url := startHub(t)
	conn := dial(t, url)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"title": "ECHO", "id": 1, "type": websocket.Command, "arguments": map[string]interface{}{"text": 42}}))
	failure := readMessage(t, conn)
	assert.Equal(t, "COMMAND_FAILURE", failure["title"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"title": "ECHO", "id": 2, "type": websocket.Command}))
	assert.Equal(t, "COMMAND_FAILURE", readMessage(t, conn)["title"])
}

func Test_Hub_UnavailableBeforeStart(t *testing.T) {
	hub := websocket.New()
	rec := httptest.NewRecorder()

	hub.UpgradeToSocket(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
