// Package protocol defines the envelope that carries named signaling events
// over the WebSocket.
package protocol

import "encoding/json"

// Envelope is one signaling event on the wire:
//
//	{"event": "offer", "data": {"sdp": {...}, "targetId": "..."}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MaxEnvelopeSize bounds a single inbound frame. SDP blobs with many media
// sections stay well below this.
const MaxEnvelopeSize = 64 * 1024
