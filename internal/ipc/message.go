// Package ipc implements the framed message protocol between the privileged
// service and the user-session helper. Messages travel over a unix domain
// socket as 4-byte little-endian length-prefixed JSON, and every
// application message is acknowledged so the sender knows it landed.
package ipc

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType discriminates frames on the wire.
type MessageType string

const (
	TypeCommandDetected MessageType = "COMMAND_DETECTED"
	TypeStatusUpdate    MessageType = "STATUS_UPDATE"
	TypeConfigChange    MessageType = "CONFIG_CHANGE"
	TypeCancelShutdown  MessageType = "CANCEL_SHUTDOWN"
	TypeAck             MessageType = "ACK"
)

// Message is one frame. CorrelationID ties a request to its follow-ups;
// MessageID identifies the frame itself and is echoed by the ACK.
type Message struct {
	Type          MessageType     `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	MessageID     string          `json:"message_id"`
}

// NewMessage builds a frame of the given type with a JSON-encoded payload.
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return &Message{
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
		MessageID: uuid.NewString(),
	}, nil
}

// newAck builds the acknowledgement for msg.
func newAck(msg *Message) *Message {
	return &Message{
		Type:          TypeAck,
		Timestamp:     time.Now().UTC(),
		CorrelationID: msg.MessageID,
		MessageID:     uuid.NewString(),
	}
}

// CommandDetectedPayload rides on COMMAND_DETECTED frames.
type CommandDetectedPayload struct {
	Command      string  `json:"command"`
	OriginalText string  `json:"original_text"`
	Confidence   float64 `json:"confidence"`
	Source       string  `json:"source"`
}

// StatusUpdatePayload rides on STATUS_UPDATE frames.
type StatusUpdatePayload struct {
	Component     string  `json:"component"`
	State         string  `json:"state"`
	Frames        uint64  `json:"frames"`
	VoicedRatio   float64 `json:"voiced_ratio"`
	AvgLevelDB    float64 `json:"avg_level_db"`
	PeakLevelDB   float64 `json:"peak_level_db"`
	Dropped       uint64  `json:"dropped"`
	APICallsToday int     `json:"api_calls_today"`
}

// ConfigChangePayload rides on CONFIG_CHANGE frames.
type ConfigChangePayload struct {
	Keys []string `json:"keys,omitempty"`
}

// CancelShutdownPayload rides on CANCEL_SHUTDOWN frames.
type CancelShutdownPayload struct {
	Reason string `json:"reason,omitempty"`
}
