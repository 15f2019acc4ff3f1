package pairwise

import "github.com/1ureka/flux/internal/peer"

// Status is the call status shown to the user.
type Status int

const (
	StatusIdle Status = iota
	StatusSearching
	StatusConnecting
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSearching:
		return "searching"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// statusFor maps a transport state onto the call status. ok is false for
// states that leave the status unchanged.
func statusFor(cs peer.ConnectionState) (Status, bool) {
	switch cs {
	case peer.ConnectionConnected:
		return StatusConnected, true
	case peer.ConnectionDisconnected, peer.ConnectionFailed:
		return StatusDisconnected, true
	}
	return 0, false
}

// role is how the local side entered the current match.
type role int

const (
	roleNone role = iota
	// roleInitiator: the server told us to offer.
	roleInitiator
	// roleResponder: we wait for, or already received, the remote offer.
	roleResponder
)
