package peer

import "github.com/pion/webrtc/v4"

// ConnectionState is the transport-reported connection state. Sessions
// surface transitions as reported and never synthesize new values.
type ConnectionState int

const (
	ConnectionNew ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionDisconnected
	ConnectionFailed
	ConnectionClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionNew:
		return "new"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionFailed:
		return "failed"
	case ConnectionClosed:
		return "closed"
	}
	return "unknown"
}

// connectionStateFrom maps pion's state. Unknown maps to new.
func connectionStateFrom(s webrtc.PeerConnectionState) ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return ConnectionConnecting
	case webrtc.PeerConnectionStateConnected:
		return ConnectionConnected
	case webrtc.PeerConnectionStateDisconnected:
		return ConnectionDisconnected
	case webrtc.PeerConnectionStateFailed:
		return ConnectionFailed
	case webrtc.PeerConnectionStateClosed:
		return ConnectionClosed
	}
	return ConnectionNew
}

// State is the session lifecycle:
//
//	new → negotiating → connected | disconnected → closed
//
// failed is reachable from negotiating or connected; closed from anywhere.
// disconnected may return to connected; failed and closed are terminal.
type State int

const (
	StateNew State = iota
	StateNegotiating
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// negotiation is the single tagged signaling state of a session. It replaces
// separate "remote description set", "queue empty" and "offer outstanding"
// flags so that every check is one switch.
type negotiation int

const (
	// awaitingRemote: nothing exchanged yet. Remote candidates are queued.
	awaitingRemote negotiation = iota
	// creatingOffer: a local offer is being generated and applied.
	creatingOffer
	// awaitingAnswer: the local offer is applied and relayed; waiting for
	// the answer. Remote candidates are queued.
	awaitingAnswer
	// applyingRemote: a remote description is being applied and the
	// candidate queue drained. Remote candidates are still queued.
	applyingRemote
	// remoteApplied: the remote description is in place. Candidates go
	// straight to the transport.
	remoteApplied
	// closed: terminal.
	closed
)

func (n negotiation) String() string {
	switch n {
	case awaitingRemote:
		return "awaiting-remote"
	case creatingOffer:
		return "creating-offer"
	case awaitingAnswer:
		return "awaiting-answer"
	case applyingRemote:
		return "applying-remote"
	case remoteApplied:
		return "remote-applied"
	case closed:
		return "closed"
	}
	return "unknown"
}

// queuesCandidates reports whether remote candidates must be buffered.
func (n negotiation) queuesCandidates() bool {
	switch n {
	case awaitingRemote, creatingOffer, awaitingAnswer, applyingRemote:
		return true
	}
	return false
}
