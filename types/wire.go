package types

import "encoding/json"

// Event names sent over the websocket connection.
const (
	WireEventError   = "error"
	WireEventJoin    = "join"   // client -> server: request to join a group room
	WireEventJoined  = "joined" // server -> client: join confirmation
	WireEventMessage = "message"
)

// JSON-serialized WebsocketMessage is what is actually sent via the Websocket connection
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinRequest is the payload of a "join" event.
type JoinRequest struct {
	GroupId uint `json:"group_id" mapstructure:"group_id"`
}

// JoinConfirmation is the payload of a "joined" event, emitted to the
// joining connection only.
type JoinConfirmation struct {
	GroupId uint   `json:"group_id"`
	Message string `json:"message"`
}

// WireError is the payload of an "error" event.
type WireError struct {
	Error string `json:"error"`
}

// NewWireMessage wraps a payload into a WebsocketMessage and marshals it.
func NewWireMessage(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebsocketMessage{Event: event, Data: data})
}
