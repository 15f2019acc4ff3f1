// Package mesh keeps one peer session per room participant for the group
// mode. Every pair of participants holds a direct session and the newer
// participant of a pair always sends the offer.
package mesh

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/flux/internal/peer"
	"github.com/1ureka/flux/internal/signaling"
	"github.com/1ureka/flux/internal/util"
)

// ErrInRoom is returned by Join while a room is active.
var ErrInRoom = errors.New("already in a room")

// Events receives per-participant notifications.
type Events interface {
	RemoteStream(peerID string, stream *peer.RemoteStream)
	PeerState(peerID string, state peer.ConnectionState)
	PeerLeft(peerID string)
	// RoomError is called at most once per Join.
	RoomError(message string)
}

// Coordinator owns the session table. Every lookup goes through the table
// at call time; no callback holds on to a session it did not look up.
type Coordinator struct {
	ctx     context.Context
	send    signaling.Sender
	factory *peer.Factory
	events  Events

	mu       sync.Mutex
	roomID   string
	active   bool
	sessions map[string]*peer.Session
}

// New creates a coordinator outside any room. ctx bounds ICE
// configuration fetches.
func New(ctx context.Context, send signaling.Sender, factory *peer.Factory, events Events) *Coordinator {
	if events == nil {
		events = nopEvents{}
	}
	return &Coordinator{
		ctx:      ctx,
		send:     send,
		factory:  factory,
		events:   events,
		sessions: make(map[string]*peer.Session),
	}
}

// Register routes the group events to the coordinator.
func (c *Coordinator) Register(r *signaling.Router) {
	signaling.On(r, signaling.EventRoomUsers, c.HandleRoomUsers)
	signaling.On(r, signaling.EventUserJoinedRoom, c.HandleUserJoined)
	signaling.On(r, signaling.EventUserLeftRoom, c.HandleUserLeft)
	signaling.On(r, signaling.EventRoomOffer, c.HandleOffer)
	signaling.On(r, signaling.EventRoomAnswer, c.HandleAnswer)
	signaling.On(r, signaling.EventRoomICECandidate, c.HandleCandidate)
	signaling.On(r, signaling.EventRoomError, c.HandleRoomError)
}

// RoomID returns the joined room, or "".
func (c *Coordinator) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Peers returns the ids with an open session, sorted.
func (c *Coordinator) Peers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.sessions))
}

// Session returns the session for peerID, or nil.
func (c *Coordinator) Session(peerID string) *peer.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[peerID]
}

// Join asks the server to add us to roomID. The roster reply drives the
// offers.
func (c *Coordinator) Join(roomID string) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrInRoom
	}
	c.roomID = roomID
	c.active = true
	c.mu.Unlock()

	util.LogInfo("joining room %s", roomID)
	return c.send.Send(signaling.EventJoinRoom, signaling.RoomRequest{RoomID: roomID})
}

// Leave closes every session and tells the server.
func (c *Coordinator) Leave() error {
	roomID, wasActive := c.reset()
	if !wasActive {
		return nil
	}
	util.LogInfo("left room %s", roomID)
	return c.send.Send(signaling.EventLeaveRoom, signaling.RoomRequest{RoomID: roomID})
}

// Close closes every session without notifying the server.
func (c *Coordinator) Close() {
	c.reset()
}

// HandleRoomUsers offers to every participant already in the room.
// Participants that already have a session are skipped.
func (c *Coordinator) HandleRoomUsers(ru signaling.RoomUsers) {
	util.LogInfo("room %q has %d other participants", ru.RoomName, len(ru.Users))
	for _, id := range ru.Users {
		if id == "" {
			continue
		}
		c.offerTo(id)
	}
}

// HandleUserJoined notes a newcomer. The newcomer sends the offer.
func (c *Coordinator) HandleUserJoined(m signaling.RoomMember) {
	util.LogInfo("[%s] joined the room", util.ShortID(m.SocketID))
}

// HandleUserLeft closes the departing participant's session only.
func (c *Coordinator) HandleUserLeft(m signaling.RoomMember) {
	c.mu.Lock()
	s, ok := c.sessions[m.SocketID]
	delete(c.sessions, m.SocketID)
	c.mu.Unlock()

	util.LogInfo("[%s] left the room", util.ShortID(m.SocketID))
	if !ok {
		return
	}
	closeSession(s)
	c.events.PeerLeft(m.SocketID)
}

// HandleOffer answers an offer, creating the sender's session if there is
// none yet.
func (c *Coordinator) HandleOffer(d signaling.Description) {
	if d.SenderID == "" {
		drop("room offer without sender id")
		return
	}

	c.mu.Lock()
	active := c.active
	s := c.sessions[d.SenderID]
	c.mu.Unlock()
	if !active {
		drop("[%s] room offer outside a room", util.ShortID(d.SenderID))
		return
	}

	if s == nil {
		if s, _ = c.open(d.SenderID); s == nil {
			return
		}
	}

	answer, err := s.ApplyOffer(d.SDP)
	if err != nil {
		negotiationDropped(d.SenderID, "room offer", err)
		return
	}
	roomID, current := c.lookup(s)
	if !current {
		return
	}
	msg := signaling.Description{SDP: answer, TargetID: d.SenderID, RoomID: roomID}
	if err := c.send.Send(signaling.EventRoomAnswer, msg); err != nil {
		util.LogWarning("[%s] send room answer: %v", util.ShortID(d.SenderID), err)
		return
	}
	util.Stats.AddAnswer()
	s.StartTrickle()
}

// HandleAnswer routes an answer to the sender's session. Answers for
// unknown senders are dropped.
func (c *Coordinator) HandleAnswer(d signaling.Description) {
	s := c.Session(d.SenderID)
	if s == nil {
		drop("[%s] room answer for unknown session", util.ShortID(d.SenderID))
		return
	}
	if err := s.ApplyAnswer(d.SDP); err != nil {
		negotiationDropped(d.SenderID, "room answer", err)
	}
}

// HandleCandidate routes a candidate to the sender's session. Candidates
// for unknown senders are dropped.
func (c *Coordinator) HandleCandidate(m signaling.Candidate) {
	s := c.Session(m.SenderID)
	if s == nil {
		drop("[%s] room candidate for unknown session", util.ShortID(m.SenderID))
		return
	}
	if err := s.AddRemoteCandidate(m.Candidate); err != nil {
		util.LogDebug("[%s] %v", util.ShortID(m.SenderID), err)
	}
}

// HandleRoomError tears the room down and reports the error once.
func (c *Coordinator) HandleRoomError(e signaling.RoomError) {
	if _, wasActive := c.reset(); !wasActive {
		drop("room error outside a room: %s", e.Message)
		return
	}
	util.LogError("room error: %s", e.Message)
	c.events.RoomError(e.Message)
}

// offerTo opens a session to peerID and sends it an offer, unless a
// session already exists.
func (c *Coordinator) offerTo(peerID string) {
	c.mu.Lock()
	_, exists := c.sessions[peerID]
	active := c.active
	c.mu.Unlock()
	switch {
	case !active:
		drop("[%s] roster outside a room", util.ShortID(peerID))
		return
	case exists:
		util.LogDebug("[%s] already has a session", util.ShortID(peerID))
		return
	}

	s, created := c.open(peerID)
	if !created {
		return
	}
	sdp, err := s.CreateOffer()
	if err != nil {
		negotiationDropped(peerID, "create offer", err)
		return
	}
	roomID, current := c.lookup(s)
	if !current {
		return
	}
	msg := signaling.Description{SDP: sdp, TargetID: peerID, RoomID: roomID}
	if err := c.send.Send(signaling.EventRoomOffer, msg); err != nil {
		util.LogWarning("[%s] send room offer: %v", util.ShortID(peerID), err)
		return
	}
	util.Stats.AddOffer()
	s.StartTrickle()
}

// open creates and installs a session for peerID. created is false when
// another session for the same id won the race; that one is returned.
func (c *Coordinator) open(peerID string) (s *peer.Session, created bool) {
	s, err := c.factory.Open(c.ctx, peerID, observer{c})
	if err != nil {
		util.LogError("[%s] open session: %v", util.ShortID(peerID), err)
		return nil, false
	}

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		closeSession(s)
		return nil, false
	}
	if existing, ok := c.sessions[peerID]; ok {
		c.mu.Unlock()
		closeSession(s)
		return existing, false
	}
	c.sessions[peerID] = s
	c.mu.Unlock()
	return s, true
}

// lookup reports whether s is still the table entry for its peer.
func (c *Coordinator) lookup(s *peer.Session) (roomID string, current bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID, c.sessions[s.PeerID()] == s
}

// reset empties the table and leaves the room locally. Sessions are
// closed after the lock is released.
func (c *Coordinator) reset() (roomID string, wasActive bool) {
	c.mu.Lock()
	roomID, wasActive = c.roomID, c.active
	old := c.sessions
	c.sessions = make(map[string]*peer.Session)
	c.roomID = ""
	c.active = false
	c.mu.Unlock()

	for _, s := range old {
		closeSession(s)
	}
	return roomID, wasActive
}

type observer struct{ c *Coordinator }

func (o observer) RemoteStream(s *peer.Session, stream *peer.RemoteStream) {
	if _, ok := o.c.lookup(s); !ok {
		return
	}
	util.LogSuccess("[%s] remote stream %s", util.ShortID(s.PeerID()), stream.ID())
	o.c.events.RemoteStream(s.PeerID(), stream)
}

func (o observer) LocalCandidate(s *peer.Session, cand webrtc.ICECandidateInit) {
	roomID, ok := o.c.lookup(s)
	if !ok {
		return
	}
	msg := signaling.Candidate{Candidate: cand, TargetID: s.PeerID(), RoomID: roomID}
	if err := o.c.send.Send(signaling.EventRoomICECandidate, msg); err != nil {
		util.LogDebug("[%s] send room candidate: %v", util.ShortID(s.PeerID()), err)
	}
}

func (o observer) StateChange(s *peer.Session, cs peer.ConnectionState) {
	if _, ok := o.c.lookup(s); !ok {
		return
	}
	o.c.events.PeerState(s.PeerID(), cs)
}

func closeSession(s *peer.Session) {
	if err := s.Close(); err != nil {
		util.LogDebug("[%s] %v", util.ShortID(s.PeerID()), err)
	}
}

func drop(format string, args ...interface{}) {
	util.Stats.AddDropped()
	util.LogDebug("dropped "+format, args...)
}

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

func (nopEvents) RemoteStream(string, *peer.RemoteStream) {}
func (nopEvents) PeerState(string, peer.ConnectionState)  {}
func (nopEvents) PeerLeft(string)                         {}
func (nopEvents) RoomError(string)                        {}
