// Package peer owns one WebRTC connection to one remote participant and
// sequences descriptions and ICE candidates on it regardless of the order
// in which signaling messages arrive.
package peer

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/flux/internal/media"
	"github.com/1ureka/flux/internal/util"
)

// Observer receives session events. Calls arrive on pion goroutines and are
// never made while the session lock is held. After Close no further calls
// are made.
type Observer interface {
	RemoteStream(s *Session, stream *RemoteStream)
	LocalCandidate(s *Session, c webrtc.ICECandidateInit)
	StateChange(s *Session, state ConnectionState)
}

// ConfigSource supplies the ICE configuration for new sessions.
type ConfigSource interface {
	Configuration(ctx context.Context) webrtc.Configuration
}

// StaticConfig is a fixed ConfigSource.
type StaticConfig webrtc.Configuration

func (c StaticConfig) Configuration(context.Context) webrtc.Configuration {
	return webrtc.Configuration(c)
}

// Factory opens sessions that share one ICE source and one local media
// source.
type Factory struct {
	ICE     ConfigSource
	Media   media.Source
	NewConn ConnFactory // nil means NewPionConn
}

// Open allocates a transport for peerID, attaches every local track and
// registers the candidate, track and state sinks. ICE gathering starts as
// soon as a local description is applied.
func (f *Factory) Open(ctx context.Context, peerID string, obs Observer) (*Session, error) {
	var cfg webrtc.Configuration
	if f.ICE != nil {
		cfg = f.ICE.Configuration(ctx)
	}
	newConn := f.NewConn
	if newConn == nil {
		newConn = NewPionConn
	}

	conn, err := newConn(cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	if f.Media != nil {
		for _, track := range f.Media.Tracks() {
			if _, err := conn.AddTrack(track); err != nil {
				conn.Close()
				return nil, fmt.Errorf("add %s track: %w", track.Kind(), err)
			}
		}
	}

	if obs == nil {
		obs = nopObserver{}
	}
	s := &Session{
		peerID:  peerID,
		conn:    conn,
		obs:     obs,
		streams: make(map[string]*RemoteStream),
	}

	conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // gathering complete
		}
		s.handleLocalCandidate(c.ToJSON())
	})
	conn.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.handleTrack(t.StreamID(), t)
	})
	conn.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.handleConnectionState(connectionStateFrom(st))
	})

	util.Stats.AddSession()
	util.LogDebug("[%s] session opened", util.ShortID(peerID))
	return s, nil
}

// Session is one negotiation with one remote peer. A session negotiates
// exactly once; renegotiation opens a new session.
type Session struct {
	peerID string
	conn   Conn
	obs    Observer

	mu        sync.Mutex
	phase     negotiation
	queue     candidateQueue
	state     State
	connState ConnectionState
	streams   map[string]*RemoteStream

	// Local candidates are held until the local description was relayed.
	trickling bool
	held      []webrtc.ICECandidateInit
}

// PeerID returns the remote peer this session belongs to.
func (s *Session) PeerID() string { return s.peerID }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectionState returns the last transport-reported state.
func (s *Session) ConnectionState() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == closed
}

// CreateOffer generates an offer, applies it locally and returns it for
// relay. It is only valid on a fresh session.
func (s *Session) CreateOffer() (webrtc.SessionDescription, error) {
	const op = "create offer"

	s.mu.Lock()
	switch s.phase {
	case closed:
		s.mu.Unlock()
		return webrtc.SessionDescription{}, negotiationError(op, ErrClosed)
	case awaitingRemote:
	default:
		phase := s.phase
		s.mu.Unlock()
		return webrtc.SessionDescription{}, negotiationError(op, fmt.Errorf("not allowed while %s", phase))
	}
	s.phase = creatingOffer
	s.setStateLocked(StateNegotiating)
	s.mu.Unlock()

	offer, err := s.conn.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, s.abort(op, awaitingRemote, err)
	}
	if err := s.conn.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, s.abort(op, awaitingRemote, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == closed {
		return webrtc.SessionDescription{}, negotiationError(op, ErrClosed)
	}
	s.phase = awaitingAnswer
	return offer, nil
}

// ApplyOffer applies a remote offer, drains queued candidates, then creates
// and applies the answer. A remote offer is rejected with ErrGlare while a
// local offer is in flight and with ErrOfferInProgress once a remote
// description is being or has been applied.
func (s *Session) ApplyOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	const op = "apply offer"

	s.mu.Lock()
	switch s.phase {
	case closed:
		s.mu.Unlock()
		return webrtc.SessionDescription{}, ErrClosed
	case creatingOffer, awaitingAnswer:
		s.mu.Unlock()
		return webrtc.SessionDescription{}, ErrGlare
	case applyingRemote, remoteApplied:
		s.mu.Unlock()
		return webrtc.SessionDescription{}, ErrOfferInProgress
	}
	s.phase = applyingRemote
	s.setStateLocked(StateNegotiating)
	s.mu.Unlock()

	if err := s.conn.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, s.abort(op, awaitingRemote, err)
	}
	if err := s.drain(false); err != nil {
		return webrtc.SessionDescription{}, negotiationError(op, err)
	}

	answer, err := s.conn.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, s.abortAnswer(op, err)
	}
	if err := s.conn.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, s.abortAnswer(op, err)
	}

	if err := s.drain(true); err != nil {
		return webrtc.SessionDescription{}, negotiationError(op, err)
	}
	return answer, nil
}

// ApplyAnswer applies the remote answer to the outstanding local offer and
// drains queued candidates.
func (s *Session) ApplyAnswer(answer webrtc.SessionDescription) error {
	const op = "apply answer"

	s.mu.Lock()
	switch s.phase {
	case closed:
		s.mu.Unlock()
		return ErrClosed
	case awaitingAnswer:
	default:
		s.mu.Unlock()
		return ErrNoPendingOffer
	}
	s.phase = applyingRemote
	s.mu.Unlock()

	if err := s.conn.SetRemoteDescription(answer); err != nil {
		return s.abort(op, awaitingAnswer, err)
	}
	if err := s.drain(true); err != nil {
		return negotiationError(op, err)
	}
	return nil
}

// AddRemoteCandidate applies c if the remote description is in place and
// queues it otherwise. It is a no-op on a closed session.
func (s *Session) AddRemoteCandidate(c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	if s.phase == closed {
		s.mu.Unlock()
		return nil
	}
	if s.phase.queuesCandidates() {
		s.queue.push(c)
		n := s.queue.len()
		s.mu.Unlock()
		util.Stats.AddQueued()
		util.LogDebug("[%s] candidate queued (%d pending)", util.ShortID(s.peerID), n)
		return nil
	}
	s.mu.Unlock()

	if err := s.conn.AddICECandidate(c); err != nil {
		if s.Closed() {
			return nil
		}
		return fmt.Errorf("add candidate: %w", err)
	}
	util.Stats.AddApplied(1)
	return nil
}

// StartTrickle releases local candidates gathered so far to the observer
// and forwards later ones directly. Call it after the local description
// has been relayed so the remote side never sees a candidate first.
func (s *Session) StartTrickle() {
	s.mu.Lock()
	if s.phase == closed || s.trickling {
		s.mu.Unlock()
		return
	}
	s.trickling = true
	held := s.held
	s.held = nil
	s.mu.Unlock()

	for _, c := range held {
		s.obs.LocalCandidate(s, c)
	}
}

// Close releases the transport and all buffered state. It is idempotent
// and safe while a negotiation step is in flight; that step then fails
// with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.phase == closed {
		s.mu.Unlock()
		return nil
	}
	s.phase = closed
	s.state = StateClosed
	s.queue.reset()
	s.held = nil
	s.streams = nil
	s.mu.Unlock()

	util.Stats.RemoveSession()
	util.LogDebug("[%s] session closed", util.ShortID(s.peerID))
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}

// drain applies queued candidates in receipt order. Candidates arriving
// meanwhile are queued behind them. With settle set, the phase moves to
// remoteApplied in the same critical section that observes an empty queue,
// so no candidate can overtake the queue.
func (s *Session) drain(settle bool) error {
	applied := 0
	defer func() {
		if applied > 0 {
			util.Stats.AddApplied(applied)
			util.LogDebug("[%s] applied %d queued candidates", util.ShortID(s.peerID), applied)
		}
	}()

	for {
		s.mu.Lock()
		if s.phase == closed {
			s.mu.Unlock()
			return ErrClosed
		}
		c, ok := s.queue.pop()
		if !ok {
			if settle {
				s.phase = remoteApplied
			}
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		if err := s.conn.AddICECandidate(c); err != nil {
			util.LogDebug("[%s] queued candidate rejected: %v", util.ShortID(s.peerID), err)
			continue
		}
		applied++
	}
}

// abort records a failed negotiation step. The phase falls back to next
// unless the session was closed meanwhile.
func (s *Session) abort(op string, next negotiation, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == closed {
		return negotiationError(op, ErrClosed)
	}
	s.phase = next
	return negotiationError(op, err)
}

// abortAnswer records a failed answer. The remote offer is already in
// place, so candidates queued since then are applied before the phase
// settles on remoteApplied.
func (s *Session) abortAnswer(op string, err error) error {
	if derr := s.drain(true); derr != nil {
		return negotiationError(op, derr)
	}
	return negotiationError(op, err)
}

func (s *Session) handleLocalCandidate(c webrtc.ICECandidateInit) {
	s.mu.Lock()
	if s.phase == closed {
		s.mu.Unlock()
		return
	}
	if !s.trickling {
		s.held = append(s.held, c)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.obs.LocalCandidate(s, c)
}

func (s *Session) handleTrack(streamID string, t *webrtc.TrackRemote) {
	s.mu.Lock()
	if s.phase == closed {
		s.mu.Unlock()
		return
	}
	stream, known := s.streams[streamID]
	if !known {
		stream = newRemoteStream(streamID)
		s.streams[streamID] = stream
	}
	s.mu.Unlock()

	stream.add(t)
	if !known {
		s.obs.RemoteStream(s, stream)
	}
}

func (s *Session) handleConnectionState(cs ConnectionState) {
	s.mu.Lock()
	if s.phase == closed {
		s.mu.Unlock()
		return
	}
	s.connState = cs
	switch cs {
	case ConnectionConnecting:
		if s.state == StateNew {
			s.setStateLocked(StateNegotiating)
		}
	case ConnectionConnected:
		s.setStateLocked(StateConnected)
	case ConnectionDisconnected:
		s.setStateLocked(StateDisconnected)
	case ConnectionFailed:
		s.setStateLocked(StateFailed)
	}
	s.mu.Unlock()

	util.LogDebug("[%s] connection %s", util.ShortID(s.peerID), cs)
	s.obs.StateChange(s, cs)
}

// setStateLocked moves the lifecycle forward. failed and closed are
// terminal.
func (s *Session) setStateLocked(next State) {
	switch s.state {
	case StateFailed, StateClosed:
		return
	}
	s.state = next
}

type nopObserver struct{}

func (nopObserver) RemoteStream(*Session, *RemoteStream)             {}
func (nopObserver) LocalCandidate(*Session, webrtc.ICECandidateInit) {}
func (nopObserver) StateChange(*Session, ConnectionState)            {}
