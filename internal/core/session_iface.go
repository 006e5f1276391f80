package core

import "github.com/dkeye/Broadcast/internal/domain"

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room fans out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
}
