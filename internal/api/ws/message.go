package ws

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType names the kind of a WebSocket message.
type MessageType string

const (
	VoiceStart    MessageType = "voice_start"
	VoiceStop     MessageType = "voice_stop"
	TaskRequest   MessageType = "task_request"
	TaskCancel    MessageType = "task_cancel"
	TaskResponse  MessageType = "task_response"
	OutputStream  MessageType = "output_stream"
	Error         MessageType = "error"
	ConnectionAck MessageType = "connection_ack"
)

var knownTypes = map[MessageType]bool{
	VoiceStart:    true,
	VoiceStop:     true,
	TaskRequest:   true,
	TaskCancel:    true,
	TaskResponse:  true,
	OutputStream:  true,
	Error:         true,
	ConnectionAck: true,
}

// Message is the envelope of every frame in both directions.
type Message struct {
	Type    MessageType    `json:"type"`
	Payload map[string]any `json:"payload"`
}

var errInvalidJSON = errors.New("invalid JSON")

// decodeMessage parses a client frame. Syntax errors wrap errInvalidJSON;
// any other error means the frame is not a valid envelope.
func decodeMessage(data []byte) (Message, error) {
	var raw struct {
		Type    *string         `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Message{}, fmt.Errorf("message must be an object: %v", err)
		}
		return Message{}, fmt.Errorf("%w: %v", errInvalidJSON, err)
	}

	if raw.Type == nil {
		return Message{}, errors.New("type: field required")
	}
	msg := Message{Type: MessageType(*raw.Type), Payload: map[string]any{}}
	if !knownTypes[msg.Type] {
		return Message{}, fmt.Errorf("type: unknown message type %q", *raw.Type)
	}

	if len(raw.Payload) > 0 && string(raw.Payload) != "null" {
		if err := json.Unmarshal(raw.Payload, &msg.Payload); err != nil {
			return Message{}, fmt.Errorf("payload: must be an object: %v", err)
		}
	}
	return msg, nil
}
