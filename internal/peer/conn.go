package peer

import (
	"sync"

	"github.com/1ureka/flux/internal/util"
	"github.com/pion/webrtc/v4"
)

// Conn is the slice of *webrtc.PeerConnection a session drives. Tests
// substitute a fake.
type Conn interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	Close() error
}

// ConnFactory allocates a transport for one session.
type ConnFactory func(cfg webrtc.Configuration) (Conn, error)

var _ Conn = (*webrtc.PeerConnection)(nil)

// defaultAPI routes pion's internal logging through the application
// logger. Codecs and interceptors are the pion defaults.
var defaultAPI = sync.OnceValue(func() *webrtc.API {
	se := webrtc.SettingEngine{LoggerFactory: util.PionLoggerFactory{}}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
})

// NewPionConn creates a real PeerConnection.
func NewPionConn(cfg webrtc.Configuration) (Conn, error) {
	return defaultAPI().NewPeerConnection(cfg)
}
