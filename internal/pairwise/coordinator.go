// Package pairwise drives the single peer session of the 1:1 random-match
// mode from the server's matchmaking events.
package pairwise

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/flux/internal/peer"
	"github.com/1ureka/flux/internal/signaling"
	"github.com/1ureka/flux/internal/util"
)

// Events receives what the user interface needs to know.
type Events interface {
	StatusChanged(status Status)
	RemoteStream(peerID string, stream *peer.RemoteStream)
}

// Options tunes the coordinator.
type Options struct {
	// OfferDelay is how long the initiator waits after "matched" before
	// offering. Zero offers immediately.
	OfferDelay time.Duration
}

// Coordinator owns at most one session, to the peer of record. Handlers
// may run concurrently with the offer timer and with pion callbacks; every
// step that resumes after a suspension re-checks that its session is still
// the current one.
type Coordinator struct {
	ctx     context.Context
	send    signaling.Sender
	factory *peer.Factory
	events  Events
	opts    Options

	mu      sync.Mutex
	peerID  string
	role    role
	session *peer.Session
	timer   *time.Timer
	gen     uint64 // bumped on every teardown
	status  Status
	dropped []string // recently dropped peers, oldest first
}

// maxDropped bounds the dropped-peer list.
const maxDropped = 16

// New creates an idle coordinator. ctx bounds ICE configuration fetches.
func New(ctx context.Context, send signaling.Sender, factory *peer.Factory, events Events, opts Options) *Coordinator {
	if events == nil {
		events = nopEvents{}
	}
	return &Coordinator{
		ctx:     ctx,
		send:    send,
		factory: factory,
		events:  events,
		opts:    opts,
	}
}

// Register routes the 1:1 events to the coordinator.
func (c *Coordinator) Register(r *signaling.Router) {
	signaling.On(r, signaling.EventMatched, c.HandleMatched)
	signaling.On(r, signaling.EventWaiting, func(struct{}) { c.HandleWaiting() })
	signaling.On(r, signaling.EventOffer, c.HandleOffer)
	signaling.On(r, signaling.EventAnswer, c.HandleAnswer)
	signaling.On(r, signaling.EventICECandidate, c.HandleCandidate)
	signaling.On(r, signaling.EventPeerDisconnected, func(struct{}) { c.HandlePeerDisconnected() })
}

// PeerID returns the peer of record, or "".
func (c *Coordinator) PeerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

// Status returns the current call status.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Session returns the current session, or nil.
func (c *Coordinator) Session() *peer.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// ──────────────────────────────────────────────────────────────────────────────
// Local actions
// ──────────────────────────────────────────────────────────────────────────────

// Join enters the matching queue.
func (c *Coordinator) Join() error {
	c.setStatus(StatusSearching)
	return c.send.Send(signaling.EventJoinQueue, nil)
}

// Next drops the current peer and asks the server for another.
func (c *Coordinator) Next() error {
	c.teardown(StatusSearching)
	return c.send.Send(signaling.EventNext, nil)
}

// Leave drops the current peer and leaves the queue.
func (c *Coordinator) Leave() error {
	c.teardown(StatusIdle)
	return c.send.Send(signaling.EventLeaveQueue, nil)
}

// Close drops the current peer without notifying the server.
func (c *Coordinator) Close() {
	c.teardown(StatusIdle)
}

// ──────────────────────────────────────────────────────────────────────────────
// Inbound events
// ──────────────────────────────────────────────────────────────────────────────

// HandleMatched starts a new match cycle. The initiator opens a session
// and offers after OfferDelay; the other side waits for the offer. A match
// for the peer already on record keeps the role that peer's first
// signaling message assigned.
func (c *Coordinator) HandleMatched(m signaling.Matched) {
	if m.PeerID == "" {
		util.LogWarning("matched without peer id, ignoring")
		util.Stats.AddDropped()
		return
	}

	c.mu.Lock()
	if m.PeerID == c.peerID && c.role != roleNone {
		c.mu.Unlock()
		util.LogDebug("[%s] matched again, keeping current role", util.ShortID(m.PeerID))
		return
	}
	old := c.detachLocked()
	c.forgetDroppedLocked(m.PeerID)
	c.peerID = m.PeerID
	c.role = roleResponder
	if m.Initiator {
		c.role = roleInitiator
		gen := c.gen
		c.timer = time.AfterFunc(c.opts.OfferDelay, func() { c.offer(gen) })
	}
	changed := c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()

	closeSession(old)
	util.LogInfo("matched with %s (initiator: %v)", util.ShortID(m.PeerID), m.Initiator)
	if changed {
		c.events.StatusChanged(StatusConnecting)
	}
}

// HandleWaiting marks the client as searching.
func (c *Coordinator) HandleWaiting() {
	c.setStatus(StatusSearching)
}

// HandleOffer answers a remote offer. An offer from a sender that is not
// on record makes it the peer of record with this side responding. An
// offer while this side is the initiator is glare and is dropped, and so
// is a late offer from a peer this side already left.
func (c *Coordinator) HandleOffer(d signaling.Description) {
	if d.SenderID == "" {
		drop("offer without sender id")
		return
	}

	c.mu.Lock()
	var old *peer.Session
	changed := false
	switch {
	case d.SenderID != c.peerID && c.droppedLocked(d.SenderID):
		c.mu.Unlock()
		drop("[%s] offer from a dropped peer", util.ShortID(d.SenderID))
		return
	case d.SenderID != c.peerID:
		old = c.detachLocked()
		c.peerID = d.SenderID
		c.role = roleResponder
		changed = c.setStatusLocked(StatusConnecting)
	case c.role == roleInitiator:
		c.mu.Unlock()
		drop("[%s] offer while initiator (glare)", util.ShortID(d.SenderID))
		return
	}
	s := c.session
	gen := c.gen
	c.mu.Unlock()

	closeSession(old)
	if changed {
		c.events.StatusChanged(StatusConnecting)
	}

	if s == nil {
		var ok bool
		if s, ok = c.open(gen, d.SenderID); !ok {
			return
		}
	}

	answer, err := s.ApplyOffer(d.SDP)
	if err != nil {
		negotiationDropped(d.SenderID, "offer", err)
		return
	}
	if !c.isCurrent(s) {
		return
	}
	if err := c.send.Send(signaling.EventAnswer, signaling.Description{SDP: answer, TargetID: d.SenderID}); err != nil {
		util.LogWarning("[%s] send answer: %v", util.ShortID(d.SenderID), err)
		return
	}
	util.Stats.AddAnswer()
	s.StartTrickle()
}

// HandleAnswer applies an answer from the peer of record. Answers from
// anyone else belong to a stale match and are dropped.
func (c *Coordinator) HandleAnswer(d signaling.Description) {
	s := c.current(d.SenderID)
	if s == nil {
		drop("[%s] answer for no current session", util.ShortID(d.SenderID))
		return
	}
	if err := s.ApplyAnswer(d.SDP); err != nil {
		negotiationDropped(d.SenderID, "answer", err)
	}
}

// HandleCandidate hands a remote candidate to the current session.
func (c *Coordinator) HandleCandidate(m signaling.Candidate) {
	s := c.current(m.SenderID)
	if s == nil {
		drop("[%s] candidate for no current session", util.ShortID(m.SenderID))
		return
	}
	if err := s.AddRemoteCandidate(m.Candidate); err != nil {
		util.LogDebug("[%s] %v", util.ShortID(m.SenderID), err)
	}
}

// HandlePeerDisconnected closes the session and re-enters the queue.
func (c *Coordinator) HandlePeerDisconnected() {
	peerID := c.PeerID()
	c.teardown(StatusSearching)
	util.LogInfo("peer %s disconnected, searching again", util.ShortID(peerID))
	if err := c.send.Send(signaling.EventJoinQueue, nil); err != nil {
		util.LogWarning("rejoin queue: %v", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────────────────────────────────

// offer runs when the initiator's delay expires.
func (c *Coordinator) offer(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.session != nil {
		c.mu.Unlock()
		return
	}
	peerID := c.peerID
	c.mu.Unlock()

	s, ok := c.open(gen, peerID)
	if !ok {
		return
	}
	sdp, err := s.CreateOffer()
	if err != nil {
		negotiationDropped(peerID, "create offer", err)
		return
	}
	if !c.isCurrent(s) {
		return
	}
	if err := c.send.Send(signaling.EventOffer, signaling.Description{SDP: sdp, TargetID: peerID}); err != nil {
		util.LogWarning("[%s] send offer: %v", util.ShortID(peerID), err)
		return
	}
	util.Stats.AddOffer()
	s.StartTrickle()
}

// open creates the session for peerID and installs it if the match cycle
// gen is still current and no other session won the race.
func (c *Coordinator) open(gen uint64, peerID string) (*peer.Session, bool) {
	s, err := c.factory.Open(c.ctx, peerID, observer{c})
	if err != nil {
		util.LogError("[%s] open session: %v", util.ShortID(peerID), err)
		return nil, false
	}

	c.mu.Lock()
	if c.gen != gen || c.session != nil {
		c.mu.Unlock()
		closeSession(s)
		return nil, false
	}
	c.session = s
	c.mu.Unlock()
	return s, true
}

func (c *Coordinator) current(senderID string) *peer.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if senderID == "" || senderID != c.peerID {
		return nil
	}
	return c.session
}

func (c *Coordinator) isCurrent(s *peer.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session == s
}

// teardown forgets the peer of record and closes its session.
func (c *Coordinator) teardown(next Status) {
	c.mu.Lock()
	old := c.detachLocked()
	changed := c.setStatusLocked(next)
	c.mu.Unlock()

	closeSession(old)
	if changed {
		c.events.StatusChanged(next)
	}
}

// detachLocked clears the match and returns the session to close once the
// lock is released. Sessions are never closed under c.mu: pion may wait
// for its own callbacks, which take c.mu.
func (c *Coordinator) detachLocked() *peer.Session {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.peerID != "" {
		c.forgetDroppedLocked(c.peerID)
		c.dropped = append(c.dropped, c.peerID)
		if len(c.dropped) > maxDropped {
			c.dropped = c.dropped[1:]
		}
	}
	old := c.session
	c.session = nil
	c.peerID = ""
	c.role = roleNone
	c.gen++
	return old
}

func (c *Coordinator) droppedLocked(peerID string) bool {
	return slices.Contains(c.dropped, peerID)
}

// forgetDroppedLocked clears peerID from the dropped list; the server may
// pair the same two clients again.
func (c *Coordinator) forgetDroppedLocked(peerID string) {
	c.dropped = slices.DeleteFunc(c.dropped, func(id string) bool { return id == peerID })
}

func (c *Coordinator) setStatus(next Status) {
	c.mu.Lock()
	changed := c.setStatusLocked(next)
	c.mu.Unlock()
	if changed {
		c.events.StatusChanged(next)
	}
}

func (c *Coordinator) setStatusLocked(next Status) bool {
	if c.status == next {
		return false
	}
	c.status = next
	return true
}

// observer receives session callbacks. It resolves the current session at
// call time, so callbacks from a replaced session are ignored.
type observer struct{ c *Coordinator }

func (o observer) RemoteStream(s *peer.Session, stream *peer.RemoteStream) {
	if !o.c.isCurrent(s) {
		return
	}
	util.LogSuccess("[%s] remote stream %s", util.ShortID(s.PeerID()), stream.ID())
	o.c.events.RemoteStream(s.PeerID(), stream)
}

func (o observer) LocalCandidate(s *peer.Session, cand webrtc.ICECandidateInit) {
	if !o.c.isCurrent(s) {
		return
	}
	msg := signaling.Candidate{Candidate: cand, TargetID: s.PeerID()}
	if err := o.c.send.Send(signaling.EventICECandidate, msg); err != nil {
		util.LogDebug("[%s] send candidate: %v", util.ShortID(s.PeerID()), err)
	}
}

func (o observer) StateChange(s *peer.Session, cs peer.ConnectionState) {
	next, ok := statusFor(cs)
	if !ok {
		return
	}
	o.c.mu.Lock()
	if o.c.session != s {
		o.c.mu.Unlock()
		return
	}
	changed := o.c.setStatusLocked(next)
	o.c.mu.Unlock()

	if changed {
		o.c.events.StatusChanged(next)
	}
}

func closeSession(s *peer.Session) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		util.LogDebug("[%s] %v", util.ShortID(s.PeerID()), err)
	}
}

func drop(format string, args ...interface{}) {
	util.Stats.AddDropped()
	util.LogDebug("dropped "+format, args...)
}

// negotiationDropped logs a negotiation-order error. Late or duplicate
// messages are expected and logged at debug; anything else is a warning.
func negotiationDropped(peerID, what string, err error) {
	util.Stats.AddDropped()
	switch {
	case errors.Is(err, peer.ErrClosed),
		errors.Is(err, peer.ErrGlare),
		errors.Is(err, peer.ErrOfferInProgress),
		errors.Is(err, peer.ErrNoPendingOffer):
		util.LogDebug("[%s] dropped %s: %v", util.ShortID(peerID), what, err)
	default:
		util.LogWarning("[%s] %s failed: %v", util.ShortID(peerID), what, err)
	}
}

type nopEvents struct{}

func (nopEvents) StatusChanged(Status)                    {}
func (nopEvents) RemoteStream(string, *peer.RemoteStream) {}
