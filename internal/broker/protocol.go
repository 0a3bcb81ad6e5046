package broker

import "encoding/json"

const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePublish     = "publish"

	TypeEvent = "event"
	TypeAck   = "ack"
	TypeError = "error"
)

// Client -> Broker
type ClientMessage struct {
	Type  string          `json:"type"`            // subscribe | unsubscribe | publish
	Topic string          `json:"topic,omitempty"` // required for every type
	Event json.RawMessage `json:"event,omitempty"` // publish only: a JSON tick array
}

// Broker -> Client
type ServerMessage struct {
	Type    string          `json:"type"`              // event | ack | error
	Topic   string          `json:"topic,omitempty"`   // event
	Event   json.RawMessage `json:"event,omitempty"`   // event
	Message string          `json:"message,omitempty"` // ack/error
}
