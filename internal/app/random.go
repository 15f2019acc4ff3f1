package app

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"

	"github.com/1ureka/flux/internal/config"
	"github.com/1ureka/flux/internal/pairwise"
	"github.com/1ureka/flux/internal/peer"
	"github.com/1ureka/flux/internal/util"
)

// RunRandom joins the 1:1 matching queue and keeps matching until ctx is
// cancelled or the "quit" command is read:
//  1. Connect to the signaling server
//  2. Register the pairwise coordinator and enter the queue
//  3. Accept "next", "mute", "video" and "quit" commands
//  4. Leave the queue on shutdown
func RunRandom(ctx context.Context, cfg *config.Config, opts Options) error {
	rt, err := setup(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	coord := pairwise.New(ctx, rt.client, rt.factory, randomEvents{}, pairwise.Options{OfferDelay: cfg.OfferDelay})
	coord.Register(rt.router)
	defer coord.Close()

	util.StartStatsReporter(ctx, cfg.StatsInterval)

	stop := make(chan error, 1)
	readCommands(ctx, opts.Commands, func(cmd string) {
		switch {
		case cmd == "n" || cmd == "next":
			if err := coord.Next(); err != nil {
				util.LogWarning("next: %v", err)
			}
		case cmd == "q" || cmd == "quit":
			select {
			case stop <- nil:
			default:
			}
		case toggleMedia(rt.stream, cmd):
		default:
			util.LogWarning("unknown command %q (next, mute, video, quit)", cmd)
		}
	})

	if err := coord.Join(); err != nil {
		return fmt.Errorf("join queue: %w", err)
	}
	return rt.serve(ctx, stop, coord.Leave)
}

type randomEvents struct{}

func (randomEvents) StatusChanged(s pairwise.Status) {
	switch s {
	case pairwise.StatusSearching:
		util.LogInfo("searching for a partner...")
	case pairwise.StatusConnecting:
		util.LogInfo("partner found, connecting...")
	case pairwise.StatusConnected:
		util.LogSuccess("connected")
		pterm.Info.Println("Type 'next' for a new partner, 'quit' to leave.")
	case pairwise.StatusDisconnected:
		util.LogWarning("connection lost")
	}
}

func (randomEvents) RemoteStream(peerID string, stream *peer.RemoteStream) {
	logRemoteStream(peerID, stream)
}
