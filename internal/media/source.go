// Package media provides the local audio/video source shared by every peer
// session. Device capture happens elsewhere; this package only owns the
// outbound tracks and their enabled state.
package media

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Source is what a peer session consumes: the tracks to attach.
type Source interface {
	Tracks() []webrtc.TrackLocal
}

// ErrStopped is returned by writes after Stop.
var ErrStopped = errors.New("local stream stopped")

// Compile-time interface check.
var _ Source = (*LocalStream)(nil)

// LocalStream holds one audio and one video track. The same tracks are
// attached to every open session; pion fans written samples out to all of
// them.
type LocalStream struct {
	id    string
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	audioEnabled atomic.Bool
	videoEnabled atomic.Bool
	stopped      atomic.Bool
}

// NewLocalStream creates an Opus audio track and a VP8 video track under a
// fresh stream id. Both start enabled.
func NewLocalStream() (*LocalStream, error) {
	id := "flux-" + uuid.NewString()

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio-"+uuid.NewString(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video-"+uuid.NewString(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}

	s := &LocalStream{id: id, audio: audio, video: video}
	s.audioEnabled.Store(true)
	s.videoEnabled.Store(true)
	return s, nil
}

// ID returns the stream id remote peers see.
func (s *LocalStream) ID() string { return s.id }

// Tracks returns the tracks to attach to a session, audio first.
func (s *LocalStream) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.audio, s.video}
}

// WriteAudio sends one audio sample. Samples written while audio is
// disabled are dropped.
func (s *LocalStream) WriteAudio(sample media.Sample) error {
	return s.write(s.audio, &s.audioEnabled, sample)
}

// WriteVideo sends one video sample. Samples written while video is
// disabled are dropped.
func (s *LocalStream) WriteVideo(sample media.Sample) error {
	return s.write(s.video, &s.videoEnabled, sample)
}

func (s *LocalStream) write(track *webrtc.TrackLocalStaticSample, enabled *atomic.Bool, sample media.Sample) error {
	if s.stopped.Load() {
		return ErrStopped
	}
	if !enabled.Load() {
		return nil
	}
	return track.WriteSample(sample)
}

// ToggleAudio flips the audio enabled state and returns the new state.
func (s *LocalStream) ToggleAudio() bool { return toggle(&s.audioEnabled) }

// ToggleVideo flips the video enabled state and returns the new state.
func (s *LocalStream) ToggleVideo() bool { return toggle(&s.videoEnabled) }

// AudioEnabled reports whether audio samples are currently sent.
func (s *LocalStream) AudioEnabled() bool { return s.audioEnabled.Load() }

// VideoEnabled reports whether video samples are currently sent.
func (s *LocalStream) VideoEnabled() bool { return s.videoEnabled.Load() }

// Stop rejects further writes. Sessions keep their senders until closed.
func (s *LocalStream) Stop() {
	s.stopped.Store(true)
}

func toggle(b *atomic.Bool) bool {
	for {
		old := b.Load()
		if b.CompareAndSwap(old, !old) {
			return !old
		}
	}
}
