package peer

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// RemoteStream groups the remote tracks that share one stream id. It is
// surfaced once; later tracks of the same stream are appended to it.
type RemoteStream struct {
	id string

	mu     sync.Mutex
	tracks []*webrtc.TrackRemote
}

func newRemoteStream(id string) *RemoteStream {
	return &RemoteStream{id: id}
}

// ID returns the remote stream id.
func (r *RemoteStream) ID() string { return r.id }

// Tracks returns a copy of the tracks received so far.
func (r *RemoteStream) Tracks() []*webrtc.TrackRemote {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*webrtc.TrackRemote, len(r.tracks))
	copy(out, r.tracks)
	return out
}

func (r *RemoteStream) add(t *webrtc.TrackRemote) {
	r.mu.Lock()
	r.tracks = append(r.tracks, t)
	r.mu.Unlock()
}
