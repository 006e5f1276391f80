// Package domain contains entity without logic, just meta-data
package domain

import "github.com/google/uuid"

// PeerID is the opaque id the signaling server assigns to a connection.
type PeerID string

func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}

// Member represents a connection's participation in a room.
// No transport or lifecycle logic here.
type Member struct {
	ID    PeerID
	Token string
	Room  RoomID
	Role  Role
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(id PeerID, token string) *Member {
	return &Member{ID: id, Token: token}
}
