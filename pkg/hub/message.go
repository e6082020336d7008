// Package hub fans websocket messages out to dashboard clients. A single
// goroutine owns the client set; connections only talk to it over channels.
package hub

import "github.com/gofiber/websocket/v2"

// MessageType says how a Message is framed on the wire.
type MessageType int

const (
	// JSONMessage is sent as a text frame (state snapshots).
	JSONMessage MessageType = iota
	// BinaryMessage is sent as a binary frame (JPEG preview frames).
	BinaryMessage
)

// Message is one broadcast payload.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

func (m Message) wsType() int {
	if m.Type == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
