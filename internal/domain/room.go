package domain

import (
	"errors"
	"fmt"
)

type RoomID string

// Role decides which side initiates negotiation. Fixed for a session.
type Role string

const (
	RolePublisher Role = "publisher"
	RoleViewer    Role = "viewer"
)

var ErrUnknownRole = errors.New("unknown role")

func (r Role) Valid() bool {
	return r == RolePublisher || r == RoleViewer
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}
