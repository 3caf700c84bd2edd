package proto

import (
	"encoding/json"
	"fmt"
	"time"

	"tvc-hud/watcher/internal/poll"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	// TypeFrame carries one poll frame.
	TypeFrame = "frame"
	// TypeHello is the first message a subscriber receives.
	TypeHello = "hello"
	// TypePing is accepted from clients and ignored.
	TypePing = "ping"
)

// FrameMessage wraps a poll frame for the wire.
type FrameMessage struct {
	Ver        int        `json:"ver"`
	Type       string     `json:"type"`
	ServerTime int64      `json:"serverTime"`
	Frame      poll.Frame `json:"frame"`
}

// HelloMessage greets a new subscriber with the latest frame if one exists.
type HelloMessage struct {
	Ver        int         `json:"ver"`
	Type       string      `json:"type"`
	ServerTime int64       `json:"serverTime"`
	TickRate   int         `json:"tickRate"`
	Latest     *poll.Frame `json:"latest,omitempty"`
}

// ClientMessage is anything a subscriber may send.
type ClientMessage struct {
	Ver  int    `json:"ver,omitempty"`
	Type string `json:"type"`
}

// EncodeFrame renders a frame message.
func EncodeFrame(frame poll.Frame, now time.Time) ([]byte, error) {
	data, err := json.Marshal(FrameMessage{
		Ver:        Version,
		Type:       TypeFrame,
		ServerTime: now.UnixMilli(),
		Frame:      frame,
	})
	if err != nil {
		return nil, fmt.Errorf("proto: encode frame %d: %w", frame.Tick, err)
	}
	return data, nil
}

// EncodeHello renders the greeting sent on subscribe.
func EncodeHello(latest *poll.Frame, tickRate int, now time.Time) ([]byte, error) {
	data, err := json.Marshal(HelloMessage{
		Ver:        Version,
		Type:       TypeHello,
		ServerTime: now.UnixMilli(),
		TickRate:   tickRate,
		Latest:     latest,
	})
	if err != nil {
		return nil, fmt.Errorf("proto: encode hello: %w", err)
	}
	return data, nil
}

// DecodeClient parses an inbound message.
func DecodeClient(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("proto: decode client message: %w", err)
	}
	return msg, nil
}
