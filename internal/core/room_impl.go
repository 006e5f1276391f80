package core

import (
	"sort"
	"sync"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id        domain.RoomID
	mu        sync.RWMutex
	publisher domain.PeerID
	viewers   map[domain.PeerID]struct{}
}

func NewRoomService(id domain.RoomID) RoomService {
	return &roomImpl{
		id:      id,
		viewers: make(map[domain.PeerID]struct{}),
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) Publisher() (domain.PeerID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publisher, r.publisher != ""
}

func (r *roomImpl) SetPublisher(id domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.publisher != "" && r.publisher != id {
		return ErrPublisherPresent
	}
	r.publisher = id
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(id)).Msg("publisher set")
	return nil
}

func (r *roomImpl) ClearPublisher(id domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.publisher != id {
		return false
	}
	r.publisher = ""
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(id)).Msg("publisher cleared")
	return true
}

func (r *roomImpl) AddViewer(id domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewers[id] = struct{}{}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(id)).Msg("viewer added")
}

func (r *roomImpl) RemoveViewer(id domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.viewers[id]; !ok {
		return false
	}
	delete(r.viewers, id)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(id)).Msg("viewer removed")
	return true
}

// Viewers returns a sorted snapshot.
func (r *roomImpl) Viewers() []domain.PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PeerID, 0, len(r.viewers))
	for id := range r.viewers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *roomImpl) Has(id domain.PeerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.publisher == id {
		return true
	}
	_, ok := r.viewers[id]
	return ok
}

func (r *roomImpl) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publisher == "" && len(r.viewers) == 0
}

func (r *roomImpl) Snapshot() RoomInfo {
	pub, _ := r.Publisher()
	return RoomInfo{ID: r.id, Publisher: pub, Viewers: r.Viewers()}
}
