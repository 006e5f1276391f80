package orch

import (
	"sort"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
)

type PeerState int

const (
	PeerCreated PeerState = iota
	PeerOffering
	PeerAwaitingAnswer
	PeerAwaitingOffer
	PeerAnswering
	PeerNegotiating
	PeerConnected
	PeerClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerCreated:
		return "created"
	case PeerOffering:
		return "offering"
	case PeerAwaitingAnswer:
		return "awaiting-answer"
	case PeerAwaitingOffer:
		return "awaiting-offer"
	case PeerAnswering:
		return "answering"
	case PeerNegotiating:
		return "negotiating"
	case PeerConnected:
		return "connected"
	default:
		return "closed"
	}
}

// peerEntry is one connection to a remote peer. Callbacks hold the entry
// pointer and compare it with the registry before acting.
type peerEntry struct {
	id    domain.PeerID
	conn  core.PeerConn
	state PeerState
}

func (e *peerEntry) close() {
	if e.state == PeerClosed {
		return
	}
	e.state = PeerClosed
	if err := e.conn.Close(); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("peer", string(e.id)).Msg("close peer connection")
	}
}

// registry holds at most one entry per peer id. Owned by the session loop.
type registry struct {
	entries map[domain.PeerID]*peerEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[domain.PeerID]*peerEntry)}
}

func (r *registry) get(id domain.PeerID) (*peerEntry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// current reports whether e is still the registered entry for its id.
func (r *registry) current(e *peerEntry) bool {
	cur, ok := r.entries[e.id]
	return ok && cur == e
}

// put registers e, closing any prior entry for the same id first.
func (r *registry) put(e *peerEntry) {
	if old, ok := r.entries[e.id]; ok {
		log.Info().Str("module", "orch").Str("peer", string(e.id)).Msg("replacing existing peer connection")
		old.close()
	}
	r.entries[e.id] = e
}

func (r *registry) remove(id domain.PeerID) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	delete(r.entries, id)
	e.close()
	return true
}

func (r *registry) closeAll() int {
	n := len(r.entries)
	for _, id := range r.ids() {
		r.remove(id)
	}
	return n
}

func (r *registry) len() int { return len(r.entries) }

func (r *registry) ids() []domain.PeerID {
	out := make([]domain.PeerID, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *registry) states() map[domain.PeerID]PeerState {
	out := make(map[domain.PeerID]PeerState, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.state
	}
	return out
}
