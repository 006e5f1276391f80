package core

import (
	"errors"

	"github.com/dkeye/Broadcast/internal/domain"
)

var ErrPublisherPresent = errors.New("room already has a publisher")

type RoomInfo struct {
	ID        domain.RoomID   `json:"roomId"`
	Publisher domain.PeerID   `json:"publisher,omitempty"`
	Viewers   []domain.PeerID `json:"viewers"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	ID() domain.RoomID
	Publisher() (domain.PeerID, bool)
	SetPublisher(id domain.PeerID) error
	ClearPublisher(id domain.PeerID) bool
	AddViewer(id domain.PeerID)
	RemoveViewer(id domain.PeerID) bool
	Viewers() []domain.PeerID
	Has(id domain.PeerID) bool
	Empty() bool
	Snapshot() RoomInfo
}

type RoomFactory interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.RoomID)
}
