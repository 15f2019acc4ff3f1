package mesh_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/flux/internal/mesh"
	"github.com/1ureka/flux/internal/peer"
	"github.com/1ureka/flux/internal/peer/peertest"
	"github.com/1ureka/flux/internal/protocol"
	"github.com/1ureka/flux/internal/signaling"
	"github.com/1ureka/flux/internal/signaling/signalingtest"
)

type eventLog struct {
	mu         sync.Mutex
	left       []string
	roomErrors []string
	states     map[string]peer.ConnectionState
}

func (l *eventLog) RemoteStream(string, *peer.RemoteStream) {}

func (l *eventLog) PeerState(id string, st peer.ConnectionState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.states == nil {
		l.states = make(map[string]peer.ConnectionState)
	}
	l.states[id] = st
}

func (l *eventLog) PeerLeft(id string) {
	l.mu.Lock()
	l.left = append(l.left, id)
	l.mu.Unlock()
}

func (l *eventLog) RoomError(msg string) {
	l.mu.Lock()
	l.roomErrors = append(l.roomErrors, msg)
	l.mu.Unlock()
}

type harness struct {
	c      *mesh.Coordinator
	sent   *signalingtest.Recorder
	dialer *peertest.Dialer
	events *eventLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sent:   &signalingtest.Recorder{},
		dialer: &peertest.Dialer{},
		events: &eventLog{},
	}
	f := &peer.Factory{NewConn: h.dialer.Factory()}
	h.c = mesh.New(context.Background(), h.sent, f, h.events)
	t.Cleanup(h.c.Close)
	return h
}

func (h *harness) join(t *testing.T, room string) {
	t.Helper()
	if err := h.c.Join(room); err != nil {
		t.Fatalf("Join: %v", err)
	}
}

func offerFrom(id string) signaling.Description {
	return signaling.Description{SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote offer"}, SenderID: id}
}

func answerFrom(id string) signaling.Description {
	return signaling.Description{SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "remote answer"}, SenderID: id}
}

func candidateFrom(id string) signaling.Candidate {
	return signaling.Candidate{Candidate: webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host"}, SenderID: id}
}

func TestJoinSendsRoomRequest(t *testing.T) {
	h := newHarness(t)
	h.join(t, "room-1")

	msgs := h.sent.Filter(signaling.EventJoinRoom)
	if len(msgs) != 1 {
		t.Fatalf("join-room sent %d times", len(msgs))
	}
	if req := msgs[0].Payload.(signaling.RoomRequest); req.RoomID != "room-1" {
		t.Errorf("roomId = %q", req.RoomID)
	}
	if err := h.c.Join("room-2"); !errors.Is(err, mesh.ErrInRoom) {
		t.Errorf("second Join: err = %v, want ErrInRoom", err)
	}
}

func TestRosterOpensOneSessionAndOfferPerUser(t *testing.T) {
	for _, n := range []int{0, 1, 3, 6} {
		t.Run(fmt.Sprintf("%d users", n), func(t *testing.T) {
			h := newHarness(t)
			h.join(t, "room-1")

			users := make([]string, n)
			for i := range users {
				users[i] = fmt.Sprintf("user-%d", i)
			}
			h.c.HandleRoomUsers(signaling.RoomUsers{Users: users, RoomName: "Room"})

			if got := len(h.dialer.Conns()); got != n {
				t.Errorf("sessions = %d, want %d", got, n)
			}
			offers := h.sent.Filter(signaling.EventRoomOffer)
			if len(offers) != n {
				t.Fatalf("offers = %d, want %d", len(offers), n)
			}
			for i, m := range offers {
				d := m.Payload.(signaling.Description)
				if d.TargetID != users[i] || d.RoomID != "room-1" {
					t.Errorf("offer %d = target %q room %q", i, d.TargetID, d.RoomID)
				}
			}
			if got := len(h.c.Peers()); got != n {
				t.Errorf("Peers = %d, want %d", got, n)
			}
		})
	}
}

func TestDuplicateRosterEntryIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.join(t, "room-1")

	h.c.HandleRoomUsers(signaling.RoomUsers{Users: []string{"a", "b"}})
	first := h.c.Session("a")
	h.c.HandleRoomUsers(signaling.RoomUsers{Users: []string{"a"}})

	if h.c.Session("a") != first {
		t.Error("duplicate notification replaced the session")
	}
	if got := h.sent.Count(signaling.EventRoomOffer); got != 2 {
		t.Errorf("offers = %d, want 2", got)
	}
	if first.Closed() {
		t.Error("in-flight session was closed")
	}
}

func TestExistingMemberAnswersNewcomer(t *testing.T) {
	h := newHarness(t)
	h.join(t, "room-1")
	h.c.HandleUserJoined(signaling.RoomMember{SocketID: "newcomer"})

	if len(h.dialer.Conns()) != 0 {
		t.Fatal("session opened on join notification")
	}

	h.c.HandleOffer(offerFrom("newcomer"))

	if got := h.c.Peers(); len(got) != 1 || got[0] != "newcomer" {
		t.Fatalf("Peers = %v", got)
	}
	answers := h.sent.Filter(signaling.EventRoomAnswer)
	if len(answers) != 1 {
		t.Fatalf("answers = %d, want 1", len(answers))
	}
	if d := answers[0].Payload.(signaling.Description); d.TargetID != "newcomer" || d.RoomID != "room-1" {
		t.Errorf("answer = %+v", d)
	}
	if h.sent.Count(signaling.EventRoomOffer) != 0 {
		t.Error("existing member sent an offer")
	}

	// A repeated offer does not create a second session.
	h.c.HandleOffer(offerFrom("newcomer"))
	if len(h.dialer.Conns()) != 1 {
		t.Errorf("sessions = %d, want 1", len(h.dialer.Conns()))
	}
}

func TestMeshPairHasOneSessionEachWay(t *testing.T) {
	a := newHarness(t)
	b := newHarness(t)
	a.join(t, "room-1")
	b.join(t, "room-1")

	// b joins after a: b gets a in its roster and offers.
	b.c.HandleRoomUsers(signaling.RoomUsers{Users: []string{"a"}})
	offer := b.sent.Filter(signaling.EventRoomOffer)[0].Payload.(signaling.Description)
	a.c.HandleOffer(signaling.Description{SDP: offer.SDP, SenderID: "b", RoomID: "room-1"})
	answer := a.sent.Filter(signaling.EventRoomAnswer)[0].Payload.(signaling.Description)
	b.c.HandleAnswer(signaling.Description{SDP: answer.SDP, SenderID: "a", RoomID: "room-1"})

	if len(a.c.Peers()) != 1 || len(b.c.Peers()) != 1 {
		t.Errorf("peers a=%v b=%v, want one each", a.c.Peers(), b.c.Peers())
	}
	if len(a.dialer.Conns()) != 1 || len(b.dialer.Conns()) != 1 {
		t.Error("more than one session per side")
	}
	if got := len(b.dialer.Last().Remote()); got != 1 {
		t.Errorf("offerer applied %d remote descriptions", got)
	}
}

func TestUnknownSenderAnswerAndCandidateDropped(t *testing.T) {
	h := newHarness(t)
	h.join(t, "room-1")

	h.c.HandleAnswer(answerFrom("ghost"))
	h.c.HandleCandidate(candidateFrom("ghost"))

	if len(h.dialer.Conns()) != 0 || len(h.c.Peers()) != 0 {
		t.Error("stale message created a session")
	}
}

func TestCandidatesRoutedBySender(t *testing.T) {
	h := newHarness(t)
	h.join(t, "room-1")
	h.c.HandleRoomUsers(signaling.RoomUsers{Users: []string{"a", "b"}})

	h.c.HandleCandidate(candidateFrom("a"))
	h.c.HandleAnswer(answerFrom("a"))

	conns := h.dialer.Conns()
	connA, connB := conns[0], conns[1]
	if got := len(connA.Candidates()); got != 1 {
		t.Errorf("a applied %d candidates, want 1", got)
	}
	if got := len(connB.Candidates()); got != 0 {
		t.Errorf("b applied %d candidates, want 0", got)
	}
}

func TestUserLeftClosesOnlyThatSession(t *testing.T) {
	h := newHarness(t)
	h.join(t, "room-1")
	h.c.HandleRoomUsers(signaling.RoomUsers{Users: []string{"a", "b", "c"}})
	sa, sb := h.c.Session("a"), h.c.Session("b")

	h.c.HandleUserLeft(signaling.RoomMember{SocketID: "a"})

	if !sa.Closed() {
		t.Error("a's session still open")
	}
	if sb.Closed() {
		t.Error("b's session closed")
	}
	if got := h.c.Peers(); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("Peers = %v, want [b c]", got)
	}
	h.events.mu.Lock()
	if len(h.events.left) != 1 || h.events.left[0] != "a" {
		t.Errorf("PeerLeft = %v", h.events.left)
	}
	h.events.mu.Unlock()

	// Late messages for a are dropped.
	h.c.HandleAnswer(answerFrom("a"))
	if got := len(h.dialer.Conns()[0].Remote()); got != 0 {
		t.Errorf("late answer applied")
	}
}

func TestLeaveClosesEverySession(t *testing.T) {
	h := newHarness(t)
	h.join(t, "room-1")
	h.c.HandleRoomUsers(signaling.RoomUsers{Users: []string{"a", "b"}})

	if err := h.c.Leave(); err != nil {
		t.Fatal(err)
	}

	for i, c := range h.dialer.Conns() {
		if c.Closes() != 1 {
			t.Errorf("conn %d closed %d times", i, c.Closes())
		}
	}
	if len(h.c.Peers()) != 0 {
		t.Error("table not cleared")
	}
	msgs := h.sent.Filter(signaling.EventLeaveRoom)
	if len(msgs) != 1 || msgs[0].Payload.(signaling.RoomRequest).RoomID != "room-1" {
		t.Errorf("leave-room = %+v", msgs)
	}
	if err := h.c.Leave(); err != nil || h.sent.Count(signaling.EventLeaveRoom) != 1 {
		t.Error("second Leave sent again")
	}
}

func TestRoomErrorTearsDownOnce(t *testing.T) {
	h := newHarness(t)
	h.join(t, "room-1")
	h.c.HandleRoomUsers(signaling.RoomUsers{Users: []string{"a", "b"}})

	h.c.HandleRoomError(signaling.RoomError{Message: "Room full"})
	h.c.HandleRoomError(signaling.RoomError{Message: "Room full"})

	for i, c := range h.dialer.Conns() {
		if c.Closes() != 1 {
			t.Errorf("conn %d closed %d times", i, c.Closes())
		}
	}
	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	if len(h.events.roomErrors) != 1 || h.events.roomErrors[0] != "Room full" {
		t.Errorf("RoomError = %v, want once", h.events.roomErrors)
	}
	if h.c.RoomID() != "" {
		t.Error("room still set")
	}
}

func TestEventsOutsideRoomDropped(t *testing.T) {
	h := newHarness(t)

	h.c.HandleRoomUsers(signaling.RoomUsers{Users: []string{"a"}})
	h.c.HandleOffer(offerFrom("b"))

	if len(h.dialer.Conns()) != 0 {
		t.Error("session opened outside a room")
	}
}

func TestPeerStateAndCandidatesRelayed(t *testing.T) {
	h := newHarness(t)
	h.join(t, "room-1")
	h.c.HandleRoomUsers(signaling.RoomUsers{Users: []string{"a"}})
	conn := h.dialer.Last()

	conn.EmitCandidate(&webrtc.ICECandidate{Foundation: "1", SDPMid: "0"})
	conn.EmitState(webrtc.PeerConnectionStateConnected)

	cands := h.sent.Filter(signaling.EventRoomICECandidate)
	if len(cands) != 1 {
		t.Fatalf("room candidates sent = %d, want 1", len(cands))
	}
	if c := cands[0].Payload.(signaling.Candidate); c.TargetID != "a" || c.RoomID != "room-1" {
		t.Errorf("candidate = %+v", c)
	}
	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	if h.events.states["a"] != peer.ConnectionConnected {
		t.Errorf("state for a = %v", h.events.states["a"])
	}
}

func TestRegisterRoutesRoomEvents(t *testing.T) {
	h := newHarness(t)
	h.join(t, "room-1")
	r := signaling.NewRouter()
	h.c.Register(r)

	frame, err := protocol.Encode(signaling.EventRoomUsers, map[string]any{"users": []string{"a", "b"}, "roomName": "Room"})
	if err != nil {
		t.Fatal(err)
	}
	env, err := protocol.Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Dispatch(env) {
		t.Fatal("room-users not routed")
	}
	if got := h.sent.Count(signaling.EventRoomOffer); got != 2 {
		t.Errorf("offers = %d, want 2", got)
	}
}
