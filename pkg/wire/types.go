// Package wire implements the line-delimited JSON-RPC 2.0 wire format
// spoken by the wall processor: one frame per CR LF terminated line over
// a raw TCP stream, no envelope or length prefix.
package wire

import (
	"bytes"
	"encoding/json"
)

// Version is the JSON-RPC protocol version tag sent on every request.
const Version = "2.0"

// Request is an outbound client request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// NewRequest builds a request frame for the given id and method.
func NewRequest(id int64, method string, params interface{}) *Request {
	return &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// Error is the error member of a response frame.
type Error struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// Reply is an outbound answer to a server-initiated request (ping).
type Reply struct {
	ID     int64       `json:"id"`
	Result interface{} `json:"result"`
}

// Message is a decoded inbound frame. It covers the three inbound
// shapes: responses (id, no method), server requests (method and id)
// and notifications (method, no id). Raw preserves the whole frame so
// callers can decode flattened response shapes where result fields sit
// beside the id instead of under "result".
type Message struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`

	Raw json.RawMessage `json:"-"`
}

// IsResponse reports whether the frame answers an outstanding call.
// Presence of a method field marks a server-initiated frame even if an
// id is also present (a ping carries both).
func (m *Message) IsResponse() bool {
	return m.Method == "" && m.ID != nil
}

// IsServerRequest reports whether the frame is server-initiated and
// obligates a reply (method plus id).
func (m *Message) IsServerRequest() bool {
	return m.Method != "" && m.ID != nil
}

// IsNotification reports whether the frame is server-initiated with no
// reply expected.
func (m *Message) IsNotification() bool {
	return m.Method != "" && m.ID == nil
}

// DecodeMessage parses one frame into a Message, keeping the raw bytes.
func DecodeMessage(frame []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, err
	}
	msg.Raw = append(json.RawMessage(nil), frame...)
	return &msg, nil
}

// IsBlank reports whether a frame contains only whitespace. Blank
// frames are discarded without error.
func IsBlank(frame []byte) bool {
	return len(bytes.TrimSpace(frame)) == 0
}
