package orch

import (
	"encoding/json"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
)

// subscribe registers the dispatch table for the session role. Every
// handler forwards to the loop.
func (s *Session) subscribe() {
	table := map[string]func(json.RawMessage){
		core.EventConnect:    func(json.RawMessage) { s.onConnect() },
		core.EventDisconnect: func(json.RawMessage) { s.onDisconnect() },
		core.EventRoomJoined: s.onRoomJoined,
		core.EventRoomError:  s.onRoomError,
	}
	switch s.role {
	case domain.RolePublisher:
		table[core.EventViewerJoined] = s.onViewerJoined
		table[core.EventViewerLeft] = s.onViewerLeft
		table[core.EventAnswer] = s.onAnswer
		table[core.EventICECandidate] = s.onCandidate
	case domain.RoleViewer:
		table[core.EventOffer] = s.onOffer
		table[core.EventICECandidate] = s.onCandidate
		table[core.EventPublisherLeft] = s.onPublisherLeft
	}

	gen := s.gen
	for event, h := range table {
		id := s.opts.Signal.On(event, func(data json.RawMessage) {
			s.post(func() {
				if gen != s.gen {
					s.logger.Debug().Str("event", event).Msg("event for previous start dropped")
					return
				}
				h(data)
			})
		})
		s.subs = append(s.subs, subscription{event: event, id: id})
	}
}

func (s *Session) unsubscribe() {
	for _, sub := range s.subs {
		s.opts.Signal.Off(sub.event, sub.id)
	}
	s.subs = nil
}

func (s *Session) onConnect() {
	s.logger.Info().Msg("connected to signaling server")
	s.conn = Connected
	if err := s.emit(core.EventJoinRoom, core.JoinRoom{RoomID: s.roomID, Role: s.role}); err != nil {
		return
	}
	s.joined = true
	if s.state == StateJoining {
		s.state = StateJoined
		if s.role == domain.RoleViewer {
			s.state = StateWaiting
		}
	}
}

func (s *Session) onDisconnect() {
	s.logger.Warn().Msg("disconnected from signaling server")
	s.conn = Disconnected
}

func (s *Session) onRoomJoined(data json.RawMessage) {
	var p core.RoomJoined
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Warn().Err(err).Msg("bad room-joined payload")
		return
	}
	s.self = p.PeerID
	s.logger.Info().Str("peer_id", string(p.PeerID)).Msg("room joined")
}

func (s *Session) onRoomError(data json.RawMessage) {
	var p core.RoomError
	_ = json.Unmarshal(data, &p)
	s.logger.Error().Str("message", p.Message).Msg("room error")
	s.notify(nil)
}

func decode[T any](s *Session, event string, data json.RawMessage) (T, bool) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("bad payload")
		return v, false
	}
	return v, true
}

// onCandidate applies a remote candidate to the matching entry. Candidates
// for unknown peers are dropped.
func (s *Session) onCandidate(data json.RawMessage) {
	p, ok := decode[core.CandidateMessage](s, core.EventICECandidate, data)
	if !ok {
		return
	}
	e, ok := s.peers.get(p.FromID)
	if !ok {
		s.logger.Debug().Str("peer", string(p.FromID)).Msg("candidate for unknown peer dropped")
		return
	}
	if err := e.conn.AddICECandidate(p.Candidate); err != nil {
		s.logger.Warn().Err(err).Str("peer", string(p.FromID)).Msg("add ice candidate")
	}
}
