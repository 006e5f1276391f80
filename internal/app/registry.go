package app

import (
	"context"
	"sync"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry tracks every live signaling connection by peer id. Room and role
// live on the member meta and are only changed through the registry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.PeerID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.PeerID]*sessionEntry)}
}

func (r *Registry) BindSignal(sess core.MemberSession, cancel context.CancelFunc) {
	id := sess.Meta().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("bound signal")
}

func (r *Registry) GetSession(id domain.PeerID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Unbind(id domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("unbind session")
}

// RoomOf returns the room and role of id, if it joined one.
func (r *Registry) RoomOf(id domain.PeerID) (domain.RoomID, domain.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok || e.Session.Meta().Room == "" {
		return "", "", false
	}
	m := e.Session.Meta()
	return m.Room, m.Role, true
}

func (r *Registry) UpdateRoom(id domain.PeerID, room domain.RoomID, role domain.Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	m := e.Session.Meta()
	m.Room, m.Role = room, role
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Str("room", string(room)).Str("role", string(role)).Msg("updated room")
	return true
}

func (r *Registry) RemoveRoom(id domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		m := e.Session.Meta()
		m.Room, m.Role = "", ""
	}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("removed room association")
}

// Cancel stops the connection of id; its pumps exit and the disconnect
// path runs.
func (r *Registry) Cancel(id domain.PeerID) bool {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("canceled session")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
