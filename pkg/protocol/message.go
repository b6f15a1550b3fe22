// Package protocol defines the WebSocket message envelope exchanged with
// command consumers and detection producers on the local hub.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-rover/pkg/motion"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Rover → consumer messages
	TypeTwist        MessageType = "twist"         // geometry_msgs/Twist
	TypeTwistStamped MessageType = "twist_stamped" // geometry_msgs/TwistStamped

	// Producer → rover messages
	TypeDetections MessageType = "detections" // vision_msgs/Detection2DArray

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// NewTwistMessage wraps a bare command.
func NewTwistMessage(cmd motion.Twist) (*Message, error) {
	return NewMessage(TypeTwist, cmd)
}

// NewTwistStampedMessage wraps a stamped command. The envelope timestamp is
// the header stamp so consumers see a single clock.
func NewTwistStampedMessage(cmd motion.Stamped) (*Message, error) {
	msg, err := NewMessage(TypeTwistStamped, cmd)
	if err != nil {
		return nil, err
	}
	if !cmd.Header.Stamp.IsZero() {
		msg.Timestamp = cmd.Header.Stamp.UnixMilli()
	}
	return msg, nil
}

// PingData is sent to check liveness.
type PingData struct {
	Seq uint64 `json:"seq"`
}

// PongData answers a ping.
type PongData struct {
	Seq uint64 `json:"seq"`
}
