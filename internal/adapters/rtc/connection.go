package rtc

import (
	"sync"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Connection implements core.PeerConn on top of a pion PeerConnection.
// Handlers may be swapped at any time; Close detaches all of them.
type Connection struct {
	pc     *webrtc.PeerConnection
	remote domain.PeerID

	// remoteMu guards pending; candidates queue until a remote description is set
	remoteMu sync.Mutex
	pending  []webrtc.ICECandidateInit

	mu      sync.Mutex
	closed  bool
	onICE   func(webrtc.ICECandidateInit)
	onTrack func(core.RemoteTrack)
	onState func(webrtc.PeerConnectionState)
}

var _ core.PeerConn = (*Connection)(nil)

func newConnection(pc *webrtc.PeerConnection, remote domain.PeerID) *Connection {
	c := &Connection{pc: pc, remote: remote}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			log.Debug().Str("module", "webrtc").Str("peer", string(remote)).Msg("ICE gathering complete")
			return
		}
		if fn := c.iceHandler(); fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "webrtc").Str("peer", string(remote)).Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", string(remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if fn := c.stateHandler(); fn != nil {
			fn(s)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("peer", string(remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if fn := c.trackHandler(); fn != nil {
			fn(track)
		}
	})

	return c
}

// AddTrack attaches a local track and drains RTCP for it so interceptors keep running.
func (c *Connection) AddTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

// SetRemoteDescription commits sd, then applies candidates that arrived
// before it.
func (c *Connection) SetRemoteDescription(sd webrtc.SessionDescription) error {
	c.remoteMu.Lock()
	defer c.remoteMu.Unlock()
	if err := c.pc.SetRemoteDescription(sd); err != nil {
		return err
	}
	for _, ci := range c.pending {
		if err := c.pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "webrtc").Str("peer", string(c.remote)).Msg("queued candidate rejected")
		}
	}
	c.pending = nil
	return nil
}

func (c *Connection) RemoteDescription() *webrtc.SessionDescription {
	return c.pc.RemoteDescription()
}

// AddICECandidate applies ci, or queues it while no remote description is set.
func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.remoteMu.Lock()
	defer c.remoteMu.Unlock()
	if c.pc.RemoteDescription() == nil {
		c.pending = append(c.pending, ci)
		return nil
	}
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.onICE = fn
	}
}

// OnTrack sets application-level callback for remote tracks.
func (c *Connection) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.onTrack = fn
	}
}

func (c *Connection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.onState = fn
	}
}

func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.onICE, c.onTrack, c.onState = nil, nil, nil
	c.mu.Unlock()

	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("peer", string(c.remote)).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("peer", string(c.remote)).Msg("closed")
	return nil
}

func (c *Connection) iceHandler() func(webrtc.ICECandidateInit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onICE
}

func (c *Connection) trackHandler() func(core.RemoteTrack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onTrack
}

func (c *Connection) stateHandler() func(webrtc.PeerConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onState
}
