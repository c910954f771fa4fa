package websocket

import (
	"fmt"

	"github.com/google/uuid"
)

type (
	socketMessageType int

	// ArgumentKind names the JSON type a command argument must decode to.
	ArgumentKind string
)

const (
	Update socketMessageType = iota
	Command
	Response
	ErrorResponse
	Welcome
)

const (
	StringArgument ArgumentKind = "string"
	NumberArgument ArgumentKind = "number"
)

// SocketMessage is a message exchanged with a websocket client. Replies
// carry the Id of the command they answer. Origin and Target are never
// serialised; a nil Target means the message is broadcast.
type SocketMessage struct {
	Title  string                 `json:"title"`
	Body   map[string]interface{} `json:"arguments"`
	Id     int                    `json:"id"`
	Type   socketMessageType      `json:"type"`
	Origin *uuid.UUID             `json:"-"`
	Target *uuid.UUID             `json:"-"`
}

// ValidateArguments checks the command carries every argument listed, with
// the JSON type given. Strings must be non-empty.
func (message *SocketMessage) ValidateArguments(required map[string]ArgumentKind) error {
	for key, kind := range required {
		value, ok := message.Body[key]
		if !ok {
			return fmt.Errorf("argument '%s' is required", key)
		}

		valid := false
		switch kind {
		case NumberArgument:
			_, valid = value.(float64)
		case StringArgument:
			s, isString := value.(string)
			valid = isString && s != ""
		default:
			return fmt.Errorf("argument '%s' has unsupported kind '%s'", key, kind)
		}

		if !valid {
			return fmt.Errorf("argument '%s' must be a %s, got %#v", key, kind, value)
		}
	}

	return nil
}

// FormReply builds the reply to this command, addressed to the client that
// sent it. The command's own arguments are echoed under "command".
func (message *SocketMessage) FormReply(replyTitle string, replyBody map[string]interface{}, replyType socketMessageType) *SocketMessage {
	if replyBody != nil {
		replyBody["command"] = message.Body
	}

	return &SocketMessage{
		Title:  replyTitle,
		Body:   replyBody,
		Type:   replyType,
		Id:     message.Id,
		Target: message.Origin,
	}
}
