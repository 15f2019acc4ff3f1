// Package signalingtest provides a recording signaling.Sender for tests.
package signalingtest

import (
	"sync"

	"github.com/1ureka/flux/internal/signaling"
)

// Message is one recorded send.
type Message struct {
	Event   string
	Payload any
}

// Recorder records every Send in order.
type Recorder struct {
	// Err, if set, is returned by Send after recording.
	Err error

	mu   sync.Mutex
	msgs []Message
}

var _ signaling.Sender = (*Recorder)(nil)

func (r *Recorder) Send(event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, Message{Event: event, Payload: payload})
	return r.Err
}

// Messages returns a copy of everything sent.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// Filter returns the messages sent for event.
func (r *Recorder) Filter(event string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.msgs {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

// Count returns how many messages were sent for event.
func (r *Recorder) Count(event string) int {
	return len(r.Filter(event))
}

// Events returns the event names in send order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Event
	}
	return out
}
