package core

import (
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// PeerConn is one negotiated connection to a remote peer.
type PeerConn interface {
	// AddTrack attaches a local track; the track may be shared with other connections.
	AddTrack(track webrtc.TrackLocal) error
	// CreateOffer generates an offer and commits it as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer generates an answer and commits it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	// RemoteDescription returns nil until a remote description was committed.
	RemoteDescription() *webrtc.SessionDescription
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(RemoteTrack))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	// Close detaches every callback and releases the transport. Safe to call twice.
	Close() error
}

// PeerFactory creates connections seeded with a traversal-server list.
type PeerFactory interface {
	NewPeerConn(servers []webrtc.ICEServer, remote domain.PeerID) (PeerConn, error)
}

// RemoteTrack is the subset of *webrtc.TrackRemote the orchestrator needs.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}
