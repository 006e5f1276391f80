package orch

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Broadcast/internal/app/media"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
)

// StartStreaming captures local media and offers it to every viewer already
// in the room. Capture failures are returned as *media.CaptureError and
// leave the session unchanged.
func (s *Session) StartStreaming(ctx context.Context) error {
	var (
		err     error
		capture bool
	)
	if derr := s.do(func() {
		switch {
		case s.closed:
			err = ErrClosed
		case s.state == StateIdle:
			err = ErrNotStarted
		case s.role != domain.RolePublisher:
			err = ErrNotPublisher
		case s.capturing:
			err = ErrCaptureRunning
		case s.stream != nil:
			// already streaming
		default:
			s.capturing, capture = true, true
		}
	}); derr != nil {
		return derr
	}
	if err != nil || !capture {
		return err
	}

	log.Info().Str("module", "orch").Msg("requesting media")
	stream, cerr := media.Capture(ctx, s.opts.Device, s.opts.Constraints)

	if derr := s.do(func() {
		s.capturing = false
		if cerr != nil {
			return
		}
		if s.closed || s.state == StateIdle {
			err = ErrClosed
			return
		}
		s.commitStream(stream)
	}); derr != nil {
		err = derr
	}
	if cerr != nil {
		return cerr
	}
	if err != nil {
		media.Release(stream)
	}
	return err
}

func (s *Session) commitStream(stream *media.Stream) {
	s.stream = stream
	s.state = StateStreaming
	for _, t := range stream.Tracks() {
		t.OnEnded(func(tr *media.Track) {
			s.post(func() { s.onTrackEnded(stream, tr) })
		})
	}
	s.logger.Info().Str("stream", stream.ID()).Int("viewers", len(s.viewers)).Msg("streaming started")

	ids := make([]domain.PeerID, 0, len(s.viewers))
	for id := range s.viewers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		s.offerTo(id)
	}
}

func (s *Session) onTrackEnded(stream *media.Stream, tr *media.Track) {
	if s.stream != stream {
		return
	}
	s.logger.Warn().Str("kind", tr.Kind().String()).Msg("track ended")
	if tr.Kind() == webrtc.RTPCodecTypeVideo {
		s.logger.Warn().Msg("camera access was revoked, stopping stream")
		s.stopStreaming()
	}
}

// StopStreaming stops local media, closes every peer connection and tells
// the room the publisher left.
func (s *Session) StopStreaming() {
	_ = s.do(s.stopStreaming)
}

func (s *Session) stopStreaming() {
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}
	if n := s.peers.closeAll(); n > 0 {
		s.logger.Info().Int("peers", n).Msg("closed peer connections")
	}
	s.viewerCount = 0
	if s.state == StateStreaming {
		s.state = StateJoined
	}
	if s.role == domain.RolePublisher && s.joined && s.conn == Connected {
		_ = s.emit(core.EventPublisherLeft, core.PublisherLeft{RoomID: s.roomID})
	}
}

func (s *Session) onViewerJoined(data json.RawMessage) {
	p, ok := decode[core.ViewerPresence](s, core.EventViewerJoined, data)
	if !ok || p.ViewerID == "" {
		return
	}
	s.viewers[p.ViewerID] = struct{}{}
	s.viewerCount++
	s.logger.Info().Str("viewer", string(p.ViewerID)).Int("viewers", s.viewerCount).Msg("viewer joined")
	if s.stream == nil {
		s.logger.Debug().Str("viewer", string(p.ViewerID)).Msg("no local stream, connection deferred")
		return
	}
	s.offerTo(p.ViewerID)
}

func (s *Session) onViewerLeft(data json.RawMessage) {
	p, ok := decode[core.ViewerPresence](s, core.EventViewerLeft, data)
	if !ok {
		return
	}
	if s.peers.remove(p.ViewerID) {
		s.logger.Info().Str("viewer", string(p.ViewerID)).Msg("closed connection with viewer")
	}
	delete(s.viewers, p.ViewerID)
	// clamped: a leave may arrive without its join
	if s.viewerCount > 0 {
		s.viewerCount--
	}
	s.logger.Info().Str("viewer", string(p.ViewerID)).Int("viewers", s.viewerCount).Msg("viewer left")
}

// offerTo creates the connection to a viewer, attaches local tracks and
// sends the offer.
func (s *Session) offerTo(id domain.PeerID) {
	e, ok := s.newPeer(id)
	if !ok {
		return
	}
	for _, t := range s.stream.Tracks() {
		if err := e.conn.AddTrack(t.Local()); err != nil {
			s.failPeer(e, "add track", err)
			return
		}
	}
	e.state = PeerOffering
	offer, err := e.conn.CreateOffer()
	if err != nil {
		s.failPeer(e, "create offer", err)
		return
	}
	if err := s.emit(core.EventOffer, core.SDPMessage{TargetID: id, SDP: offer}); err != nil {
		s.failPeer(e, "send offer", err)
		return
	}
	e.state = PeerAwaitingAnswer
	s.logger.Info().Str("viewer", string(id)).Msg("offer sent")
}

func (s *Session) onAnswer(data json.RawMessage) {
	p, ok := decode[core.SDPMessage](s, core.EventAnswer, data)
	if !ok {
		return
	}
	e, ok := s.peers.get(p.FromID)
	if !ok {
		s.logger.Debug().Str("peer", string(p.FromID)).Msg("answer for unknown peer dropped")
		return
	}
	if e.state != PeerAwaitingAnswer {
		s.logger.Debug().Str("peer", string(p.FromID)).Str("state", e.state.String()).Msg("unexpected answer dropped")
		return
	}
	if err := e.conn.SetRemoteDescription(p.SDP); err != nil {
		s.failPeer(e, "set remote answer", err)
		return
	}
	e.state = PeerNegotiating
	s.logger.Info().Str("viewer", string(p.FromID)).Msg("answer applied")
}
