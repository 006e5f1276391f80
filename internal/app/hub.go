package app

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownPeer  = errors.New("unknown peer")
	ErrNotJoined    = errors.New("not in a room")
	ErrNotInRoom    = errors.New("target is not in your room")
	ErrNotPublisher = errors.New("not the room publisher")
)

// Hub is the rendezvous side of a broadcast: it keeps room membership and
// routes targeted signaling messages between members of one room.
type Hub struct {
	Registry *Registry
	Rooms    core.RoomFactory
	Policy   Policy

	// mu serializes membership changes so join notifications are never lost
	mu sync.Mutex
}

// Connect registers a fresh connection. It is not in any room yet.
func (h *Hub) Connect(sess core.MemberSession, cancel context.CancelFunc) {
	h.Registry.BindSignal(sess, cancel)
}

// Join puts id into roomID as role, leaving any previous room first. A
// publisher learns about viewers already present; a viewer is announced to
// the publisher.
func (h *Hub) Join(id domain.PeerID, roomID domain.RoomID, role domain.Role) error {
	if !role.Valid() {
		return domain.ErrUnknownRole
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.Registry.GetSession(id)
	if !ok {
		return ErrUnknownPeer
	}
	if prev, _, ok := h.Registry.RoomOf(id); ok {
		h.leave(id)
		log.Info().Str("module", "app.hub").Str("sid", string(id)).Str("room", string(prev)).Msg("left previous room")
	}

	room := h.Rooms.GetOrCreate(roomID)
	if role == domain.RolePublisher {
		if err := room.SetPublisher(id); err != nil {
			if room.Empty() {
				h.Rooms.StopRoom(roomID)
			}
			return err
		}
	} else {
		room.AddViewer(id)
	}
	h.Registry.UpdateRoom(id, roomID, role)

	_ = h.send(room, sess, core.EventRoomJoined, core.RoomJoined{RoomID: roomID, Role: role, PeerID: id})
	if role == domain.RolePublisher {
		for _, v := range room.Viewers() {
			_ = h.send(room, sess, core.EventViewerJoined, core.ViewerPresence{ViewerID: v})
		}
	} else if pub, ok := room.Publisher(); ok {
		_ = h.sendTo(room, pub, core.EventViewerJoined, core.ViewerPresence{ViewerID: id})
	}
	log.Info().Str("module", "app.hub").Str("sid", string(id)).Str("room", string(roomID)).Str("role", string(role)).Msg("joined")
	return nil
}

// Leave takes id out of its room, telling the other side.
func (h *Hub) Leave(id domain.PeerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(id)
}

func (h *Hub) leave(id domain.PeerID) {
	roomID, role, ok := h.Registry.RoomOf(id)
	if !ok {
		return
	}
	h.Registry.RemoveRoom(id)
	room, ok := h.Rooms.Get(roomID)
	if !ok {
		return
	}
	switch role {
	case domain.RolePublisher:
		if room.ClearPublisher(id) {
			h.broadcastViewers(room, core.EventPublisherLeft, core.PublisherLeft{RoomID: roomID})
		}
	case domain.RoleViewer:
		if room.RemoveViewer(id) {
			if pub, ok := room.Publisher(); ok {
				_ = h.sendTo(room, pub, core.EventViewerLeft, core.ViewerPresence{ViewerID: id})
			}
		}
	}
	if room.Empty() {
		h.Rooms.StopRoom(roomID)
		log.Info().Str("module", "app.hub").Str("room", string(roomID)).Msg("room removed")
	}
}

// PublisherLeft tells every viewer the stream stopped. The publisher stays
// in the room and may stream again.
func (h *Hub) PublisherLeft(id domain.PeerID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	roomID, role, ok := h.Registry.RoomOf(id)
	if !ok {
		return ErrNotJoined
	}
	if role != domain.RolePublisher {
		return ErrNotPublisher
	}
	room, ok := h.Rooms.Get(roomID)
	if !ok {
		return ErrNotJoined
	}
	h.broadcastViewers(room, core.EventPublisherLeft, core.PublisherLeft{RoomID: roomID})
	return nil
}

// Relay delivers payload from one member to another member of the same room.
func (h *Hub) Relay(from, to domain.PeerID, event string, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	roomID, _, ok := h.Registry.RoomOf(from)
	if !ok {
		return ErrNotJoined
	}
	toRoom, _, ok := h.Registry.RoomOf(to)
	if !ok || toRoom != roomID || to == from {
		return ErrNotInRoom
	}
	room, ok := h.Rooms.Get(roomID)
	if !ok {
		return ErrNotJoined
	}
	return h.sendTo(room, to, event, payload)
}

// OnDisconnect runs the leave path for a closed connection and forgets it.
func (h *Hub) OnDisconnect(id domain.PeerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(id)
	h.Registry.Unbind(id)
}

func (h *Hub) broadcastViewers(room core.RoomService, event string, payload any) {
	for _, v := range room.Viewers() {
		_ = h.sendTo(room, v, event, payload)
	}
}

func (h *Hub) sendTo(room core.RoomService, id domain.PeerID, event string, payload any) error {
	sess, ok := h.Registry.GetSession(id)
	if !ok {
		return ErrUnknownPeer
	}
	return h.send(room, sess, event, payload)
}

func (h *Hub) send(room core.RoomService, sess core.MemberSession, event string, payload any) error {
	frame, err := core.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("event", event).Msg("encode")
		return err
	}
	err = sess.Signal().TrySend(frame)
	if !errors.Is(err, core.ErrBackpressure) {
		return err
	}
	id := sess.Meta().ID
	log.Warn().Str("module", "app.hub").Str("sid", string(id)).Str("event", event).Msg("send queue full")
	if h.Policy == nil {
		return err
	}
	switch h.Policy.OnBackPressure(room, sess) {
	case KickMember:
		h.Registry.Cancel(id)
	case DropFrame, NoAction:
	}
	return err
}
