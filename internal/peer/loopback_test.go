package peer_test

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/flux/internal/media"
	"github.com/1ureka/flux/internal/peer"
)

// relay forwards local candidates of one session to another.
type relay struct {
	to        func() *peer.Session
	connected chan struct{}
	streams   chan *peer.RemoteStream
}

func newRelay() *relay {
	return &relay{connected: make(chan struct{}, 1), streams: make(chan *peer.RemoteStream, 2)}
}

func (r *relay) RemoteStream(_ *peer.Session, st *peer.RemoteStream) {
	select {
	case r.streams <- st:
	default:
	}
}

func (r *relay) LocalCandidate(_ *peer.Session, c webrtc.ICECandidateInit) {
	_ = r.to().AddRemoteCandidate(c)
}

func (r *relay) StateChange(_ *peer.Session, st peer.ConnectionState) {
	if st == peer.ConnectionConnected {
		select {
		case r.connected <- struct{}{}:
		default:
		}
	}
}

func loopbackConn(cfg webrtc.Configuration) (peer.Conn, error) {
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	return webrtc.NewAPI(webrtc.WithSettingEngine(se)).NewPeerConnection(cfg)
}

func TestLoopbackConnects(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real UDP sockets")
	}

	stream, err := media.NewLocalStream()
	if err != nil {
		t.Fatal(err)
	}
	f := &peer.Factory{Media: stream, NewConn: loopbackConn}
	ctx := context.Background()

	var a, b *peer.Session
	ra, rb := newRelay(), newRelay()
	ra.to = func() *peer.Session { return b }
	rb.to = func() *peer.Session { return a }

	if a, err = f.Open(ctx, "b", ra); err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if b, err = f.Open(ctx, "a", rb); err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	offer, err := a.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	answer, err := b.ApplyOffer(offer)
	if err != nil {
		t.Fatalf("ApplyOffer: %v", err)
	}
	if err := a.ApplyAnswer(answer); err != nil {
		t.Fatalf("ApplyAnswer: %v", err)
	}
	a.StartTrickle()
	b.StartTrickle()

	timeout := time.After(15 * time.Second)
	for _, r := range []*relay{ra, rb} {
		select {
		case <-r.connected:
		case <-timeout:
			t.Fatalf("sessions did not connect: a=%v b=%v", a.ConnectionState(), b.ConnectionState())
		}
	}
	if a.State() != peer.StateConnected || b.State() != peer.StateConnected {
		t.Errorf("states = %v/%v, want connected", a.State(), b.State())
	}
}
