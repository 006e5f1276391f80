package orch

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Broadcast/internal/app/media"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
)

// newPeer creates and registers the connection to id, replacing any prior
// one. Connection callbacks are posted to the loop and ignored once the
// entry is no longer current.
func (s *Session) newPeer(id domain.PeerID) (*peerEntry, bool) {
	conn, err := s.opts.Peers.NewPeerConn(s.servers, id)
	if err != nil {
		s.logger.Error().Err(err).Str("peer", string(id)).Msg("create peer connection")
		return nil, false
	}
	e := &peerEntry{id: id, conn: conn, state: PeerCreated}
	s.peers.put(e)

	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		s.post(func() {
			if !s.peers.current(e) {
				return
			}
			_ = s.emit(core.EventICECandidate, core.CandidateMessage{TargetID: id, Candidate: ci})
		})
	})
	conn.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.post(func() { s.onPeerState(e, st) })
	})
	conn.OnTrack(func(t core.RemoteTrack) {
		s.post(func() { s.onRemoteTrack(e, t) })
	})
	return e, true
}

// failPeer closes and removes only e.
func (s *Session) failPeer(e *peerEntry, step string, err error) {
	s.logger.Error().Err(err).Str("peer", string(e.id)).Str("step", step).Msg("negotiation failed")
	if s.peers.current(e) {
		s.peers.remove(e.id)
		return
	}
	e.close()
}

func (s *Session) onPeerState(e *peerEntry, st webrtc.PeerConnectionState) {
	if !s.peers.current(e) {
		return
	}
	switch st {
	case webrtc.PeerConnectionStateConnected:
		e.state = PeerConnected
		s.logger.Info().Str("peer", string(e.id)).Msg("successfully connected")
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		s.logger.Warn().Str("peer", string(e.id)).Str("state", st.String()).Msg("connection issue")
	}
}

func (s *Session) onOffer(data json.RawMessage) {
	p, ok := decode[core.SDPMessage](s, core.EventOffer, data)
	if !ok || p.FromID == "" {
		return
	}
	s.logger.Info().Str("publisher", string(p.FromID)).Msg("offer received")

	e, ok := s.newPeer(p.FromID)
	if !ok {
		return
	}
	e.state = PeerAwaitingOffer
	if err := e.conn.SetRemoteDescription(p.SDP); err != nil {
		s.failPeer(e, "set remote offer", err)
		return
	}
	e.state = PeerAnswering
	answer, err := e.conn.CreateAnswer()
	if err != nil {
		s.failPeer(e, "create answer", err)
		return
	}
	if err := s.emit(core.EventAnswer, core.SDPMessage{TargetID: p.FromID, SDP: answer}); err != nil {
		s.failPeer(e, "send answer", err)
		return
	}
	e.state = PeerNegotiating
	s.logger.Info().Str("publisher", string(p.FromID)).Msg("answer sent")
}

func (s *Session) onRemoteTrack(e *peerEntry, t core.RemoteTrack) {
	if !s.peers.current(e) {
		return
	}
	sid := t.StreamID()
	if sid == "" {
		s.logger.Warn().Str("track", t.ID()).Msg("no stream in track event")
		return
	}
	rs, ok := s.remotes[sid]
	if !ok {
		rs = media.NewRemoteStream(sid)
		s.remotes[sid] = rs
	}
	rs.AddTrack(t)
	s.logger.Info().Str("stream", sid).Str("kind", t.Kind().String()).Msg("remote stream received")
	s.notify(rs)
}

func (s *Session) onPublisherLeft(json.RawMessage) {
	s.logger.Info().Msg("publisher left")
	s.notify(nil)
	s.peers.closeAll()
	s.remotes = make(map[string]*media.RemoteStream)
	if s.state != StateIdle {
		s.state = StateWaiting
	}
}
