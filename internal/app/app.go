// Package app contains the top-level orchestration for the random-match and
// group modes.
package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/1ureka/flux/internal/config"
	"github.com/1ureka/flux/internal/ice"
	"github.com/1ureka/flux/internal/media"
	"github.com/1ureka/flux/internal/peer"
	"github.com/1ureka/flux/internal/signaling"
	"github.com/1ureka/flux/internal/util"
)

// Options are per-run settings that are not part of the configuration.
type Options struct {
	// Commands, if set, is read line by line for interactive commands.
	Commands io.Reader
	// AudioOff and VideoOff start with the local track disabled.
	AudioOff bool
	VideoOff bool
}

// runtime is what both modes share: one signaling connection, one ICE
// provider and one local stream for every session.
type runtime struct {
	client  *signaling.Client
	router  *signaling.Router
	stream  *media.LocalStream
	factory *peer.Factory
}

// setup performs the common startup:
//  1. Start fetching the ICE configuration in the background
//  2. Create the local audio/video tracks
//  3. Connect to the signaling server
func setup(ctx context.Context, cfg *config.Config, opts Options) (*runtime, error) {
	// ── 1. ICE configuration ───────────────────────────────────────────
	provider := ice.NewProvider(cfg.ICEEndpoint, cfg.FallbackSTUN, cfg.FetchTimeout)
	provider.Prefetch(ctx)

	// ── 2. Local media ─────────────────────────────────────────────────
	stream, err := media.NewLocalStream()
	if err != nil {
		return nil, err
	}
	if opts.AudioOff {
		stream.ToggleAudio()
	}
	if opts.VideoOff {
		stream.ToggleVideo()
	}
	util.LogDebug("local stream %s (audio: %v, video: %v)", stream.ID(), stream.AudioEnabled(), stream.VideoEnabled())

	// ── 3. Signaling ───────────────────────────────────────────────────
	util.LogInfo("connecting to %s", cfg.SignalURL)
	client, err := signaling.Dial(ctx, cfg.SignalURL)
	if err != nil {
		stream.Stop()
		return nil, err
	}
	util.LogSuccess("connected to signaling server")

	return &runtime{
		client:  client,
		router:  signaling.NewRouter(),
		stream:  stream,
		factory: &peer.Factory{ICE: provider, Media: stream},
	}, nil
}

// serve runs the read loop until ctx is cancelled, the connection drops or
// stop fires. leave runs before the connection is closed on a local
// shutdown so the server sees a clean departure.
func (rt *runtime) serve(ctx context.Context, stop <-chan error, leave func() error) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- rt.client.Run(runCtx, rt.router) }()

	shutdown := func() {
		if err := leave(); err != nil && !errors.Is(err, signaling.ErrClientClosed) {
			util.LogWarning("leave: %v", err)
		}
		cancel()
		<-errCh
	}

	select {
	case <-ctx.Done():
		shutdown()
		return nil
	case err := <-stop:
		shutdown()
		return err
	case err := <-errCh:
		if err != nil {
			return err
		}
		return errors.New("signaling connection closed")
	}
}

func (rt *runtime) close() {
	rt.client.Close()
	rt.stream.Stop()
}

// readCommands calls handle for every non-empty line of r until r ends or
// ctx is cancelled.
func readCommands(ctx context.Context, r io.Reader, handle func(cmd string)) {
	if r == nil {
		return
	}
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if ctx.Err() != nil {
				return
			}
			if cmd := strings.ToLower(strings.TrimSpace(sc.Text())); cmd != "" {
				handle(cmd)
			}
		}
	}()
}

// toggleMedia handles the media commands shared by both modes. It reports
// whether cmd was one of them.
func toggleMedia(stream *media.LocalStream, cmd string) bool {
	switch cmd {
	case "m", "mute":
		if stream.ToggleAudio() {
			util.LogInfo("microphone on")
		} else {
			util.LogInfo("microphone off")
		}
	case "v", "video":
		if stream.ToggleVideo() {
			util.LogInfo("camera on")
		} else {
			util.LogInfo("camera off")
		}
	default:
		return false
	}
	return true
}

func logRemoteStream(peerID string, stream *peer.RemoteStream) {
	for _, t := range stream.Tracks() {
		util.LogInfo("[%s] receiving %s (%s)", util.ShortID(peerID), t.Kind(), t.Codec().MimeType)
	}
}
