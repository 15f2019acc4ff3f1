// Package peertest provides an in-memory peer connection for tests of
// packages that drive peer sessions.
package peertest

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/flux/internal/peer"
)

var _ peer.Conn = (*Conn)(nil)

var (
	ErrConnClosed     = errors.New("peertest: connection closed")
	ErrNoRemoteDesc   = errors.New("peertest: remote description not set")
	errWrongSignaling = errors.New("peertest: description not allowed in this signaling state")
)

// Conn records every call a session makes. AddICECandidate fails before a
// remote description is set, as pion does.
type Conn struct {
	Config webrtc.Configuration

	// Injected failures.
	OfferErr     error
	AnswerErr    error
	SetRemoteErr error

	// BeforeSetRemote runs at the start of SetRemoteDescription without
	// holding the connection lock.
	BeforeSetRemote func()
	// BeforeCreateAnswer runs at the start of CreateAnswer, likewise.
	BeforeCreateAnswer func()

	mu         sync.Mutex
	tracks     []webrtc.TrackLocal
	local      []webrtc.SessionDescription
	remote     []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	closes     int
	onCand     func(*webrtc.ICECandidate)
	onTrack    func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onState    func(webrtc.PeerConnectionState)
}

func (c *Conn) AddTrack(t webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, t)
	return nil, nil
}

func (c *Conn) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes > 0 {
		return webrtc.SessionDescription{}, ErrConnClosed
	}
	if c.OfferErr != nil {
		return webrtc.SessionDescription{}, c.OfferErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (c *Conn) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	if c.BeforeCreateAnswer != nil {
		c.BeforeCreateAnswer()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes > 0 {
		return webrtc.SessionDescription{}, ErrConnClosed
	}
	if c.AnswerErr != nil {
		return webrtc.SessionDescription{}, c.AnswerErr
	}
	if len(c.remote) == 0 {
		return webrtc.SessionDescription{}, errWrongSignaling
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (c *Conn) SetLocalDescription(d webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes > 0 {
		return ErrConnClosed
	}
	c.local = append(c.local, d)
	return nil
}

func (c *Conn) SetRemoteDescription(d webrtc.SessionDescription) error {
	if c.BeforeSetRemote != nil {
		c.BeforeSetRemote()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes > 0 {
		return ErrConnClosed
	}
	if c.SetRemoteErr != nil {
		return c.SetRemoteErr
	}
	c.remote = append(c.remote, d)
	return nil
}

func (c *Conn) AddICECandidate(cand webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes > 0 {
		return ErrConnClosed
	}
	if len(c.remote) == 0 {
		return ErrNoRemoteDesc
	}
	c.candidates = append(c.candidates, cand)
	return nil
}

func (c *Conn) OnICECandidate(f func(*webrtc.ICECandidate)) {
	c.mu.Lock()
	c.onCand = f
	c.mu.Unlock()
}

func (c *Conn) OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.mu.Lock()
	c.onTrack = f
	c.mu.Unlock()
}

func (c *Conn) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = f
	c.mu.Unlock()
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return nil
}

// EmitCandidate delivers a local candidate to the registered handler.
func (c *Conn) EmitCandidate(cand *webrtc.ICECandidate) {
	c.mu.Lock()
	f := c.onCand
	c.mu.Unlock()
	if f != nil {
		f(cand)
	}
}

// EmitTrack delivers a remote track to the registered handler.
func (c *Conn) EmitTrack(t *webrtc.TrackRemote) {
	c.mu.Lock()
	f := c.onTrack
	c.mu.Unlock()
	if f != nil {
		f(t, nil)
	}
}

// EmitState delivers a connection state change to the registered handler.
func (c *Conn) EmitState(st webrtc.PeerConnectionState) {
	c.mu.Lock()
	f := c.onState
	c.mu.Unlock()
	if f != nil {
		f(st)
	}
}

// Candidates returns the remote candidates applied so far, in order.
func (c *Conn) Candidates() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), c.candidates...)
}

// Local returns the local descriptions applied so far.
func (c *Conn) Local() []webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.SessionDescription(nil), c.local...)
}

// Remote returns the remote descriptions applied so far.
func (c *Conn) Remote() []webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.SessionDescription(nil), c.remote...)
}

// Tracks returns the local tracks attached.
func (c *Conn) Tracks() []webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), c.tracks...)
}

// Closes returns how many times Close was called.
func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Dialer hands out Conns and remembers them in creation order.
type Dialer struct {
	// Prepare, if set, configures each new Conn before it is returned.
	Prepare func(*Conn)

	mu    sync.Mutex
	conns []*Conn
}

// Factory returns a peer.ConnFactory backed by Dial.
func (d *Dialer) Factory() peer.ConnFactory {
	return func(cfg webrtc.Configuration) (peer.Conn, error) {
		return d.Dial(cfg), nil
	}
}

// Dial creates a Conn for cfg.
func (d *Dialer) Dial(cfg webrtc.Configuration) *Conn {
	c := &Conn{Config: cfg}
	if d.Prepare != nil {
		d.Prepare(c)
	}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c
}

// Conns returns every Conn created so far.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Last returns the most recent Conn, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
