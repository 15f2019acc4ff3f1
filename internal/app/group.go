package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/1ureka/flux/internal/config"
	"github.com/1ureka/flux/internal/mesh"
	"github.com/1ureka/flux/internal/peer"
	"github.com/1ureka/flux/internal/util"
)

// ErrRoom wraps a room-level error reported by the server.
var ErrRoom = errors.New("room error")

// RunGroup joins roomID and holds one session per participant until ctx is
// cancelled, the "quit" command is read, or the server rejects the room.
func RunGroup(ctx context.Context, cfg *config.Config, roomID string, opts Options) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return errors.New("room id is required")
	}

	rt, err := setup(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	stop := make(chan error, 1)
	events := &groupEvents{stop: stop}
	coord := mesh.New(ctx, rt.client, rt.factory, events)
	coord.Register(rt.router)
	defer coord.Close()

	util.StartStatsReporter(ctx, cfg.StatsInterval)

	readCommands(ctx, opts.Commands, func(cmd string) {
		switch {
		case cmd == "q" || cmd == "quit":
			select {
			case stop <- nil:
			default:
			}
		case cmd == "p" || cmd == "peers":
			util.LogInfo("peers: %s", strings.Join(coord.Peers(), ", "))
		case toggleMedia(rt.stream, cmd):
		default:
			util.LogWarning("unknown command %q (peers, mute, video, quit)", cmd)
		}
	})

	if err := coord.Join(roomID); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	return rt.serve(ctx, stop, coord.Leave)
}

type groupEvents struct {
	stop chan<- error
}

func (e *groupEvents) RemoteStream(peerID string, stream *peer.RemoteStream) {
	logRemoteStream(peerID, stream)
}

func (e *groupEvents) PeerState(peerID string, st peer.ConnectionState) {
	switch st {
	case peer.ConnectionConnected:
		util.LogSuccess("[%s] connected", util.ShortID(peerID))
	case peer.ConnectionDisconnected, peer.ConnectionFailed:
		util.LogWarning("[%s] %s", util.ShortID(peerID), st)
	}
}

func (e *groupEvents) PeerLeft(peerID string) {
	util.LogInfo("[%s] session closed", util.ShortID(peerID))
}

func (e *groupEvents) RoomError(message string) {
	select {
	case e.stop <- fmt.Errorf("%w: %s", ErrRoom, message):
	default:
	}
}
