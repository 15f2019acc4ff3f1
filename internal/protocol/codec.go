package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingEvent is returned by Decode for frames without an event name.
var ErrMissingEvent = errors.New("envelope has no event name")

// Encode serializes an event name and payload into a wire frame.
// A nil payload produces an envelope without data.
func Encode(event string, payload any) ([]byte, error) {
	if event == "" {
		return nil, ErrMissingEvent
	}
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode parses a wire frame into an Envelope. The payload stays raw so the
// router can decode it into the type registered for the event.
func Decode(frame []byte) (*Envelope, error) {
	if len(frame) > MaxEnvelopeSize {
		return nil, fmt.Errorf("envelope too large: %d bytes (max %d)", len(frame), MaxEnvelopeSize)
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, ErrMissingEvent
	}
	return &env, nil
}

// Unmarshal decodes the envelope payload into v. An empty payload leaves v
// untouched, which suits events like "waiting" that carry no data.
func (e *Envelope) Unmarshal(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}
