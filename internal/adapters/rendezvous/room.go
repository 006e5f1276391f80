package rendezvous

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Broadcast/internal/app"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxRoomID = 64

func (ctl *SignalWSController) handleJoin(id domain.PeerID, conn *WsSignalConn, data json.RawMessage) {
	if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
		log.Warn().Str("module", "rendezvous").Str("sid", string(id)).Msg("join rate limited")
		ctl.sendError(conn, "too many join attempts")
		return
	}

	var p core.JoinRoom
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "rendezvous").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.RoomID == "" {
		ctl.sendError(conn, "room id is required")
		return
	}
	if len(p.RoomID) > maxRoomID {
		p.RoomID = p.RoomID[:maxRoomID]
	}
	role, err := domain.ParseRole(string(p.Role))
	if err != nil {
		ctl.sendError(conn, err.Error())
		return
	}

	log.Info().Str("module", "rendezvous").Str("sid", string(id)).Str("room_id", string(p.RoomID)).Str("role", string(role)).Msg("join")
	if err := ctl.Hub.Join(id, p.RoomID, role); err != nil {
		log.Warn().Err(err).Str("module", "rendezvous").Str("sid", string(id)).Msg("join rejected")
		ctl.sendError(conn, err.Error())
	}
}

func (ctl *SignalWSController) handlePublisherLeft(id domain.PeerID, conn *WsSignalConn) {
	err := ctl.Hub.PublisherLeft(id)
	switch {
	case err == nil:
		log.Info().Str("module", "rendezvous").Str("sid", string(id)).Msg("publisher left")
	case errors.Is(err, app.ErrNotPublisher), errors.Is(err, app.ErrNotJoined):
		ctl.sendError(conn, err.Error())
	}
}
