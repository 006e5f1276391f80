package core

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Signaling event names. connect and disconnect are raised locally by the
// client channel, never sent over the wire.
const (
	EventConnect       = "connect"
	EventDisconnect    = "disconnect"
	EventJoinRoom      = "join-room"
	EventRoomJoined    = "room-joined"
	EventRoomError     = "room-error"
	EventViewerJoined  = "viewer-joined"
	EventViewerLeft    = "viewer-left"
	EventOffer         = "webrtc-offer"
	EventAnswer        = "webrtc-answer"
	EventICECandidate  = "webrtc-ice-candidate"
	EventPublisherLeft = "publisher-left"
	EventPing          = "ping"
	EventPong          = "pong"
)

// Envelope is the wire format of every signaling message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRoom struct {
	RoomID domain.RoomID `json:"roomId"`
	Role   domain.Role   `json:"role"`
}

type RoomJoined struct {
	RoomID domain.RoomID `json:"roomId"`
	Role   domain.Role   `json:"role"`
	PeerID domain.PeerID `json:"peerId"`
}

type RoomError struct {
	Message string `json:"message"`
}

type ViewerPresence struct {
	ViewerID domain.PeerID `json:"viewerId"`
}

// SDPMessage carries an offer or answer. Clients fill TargetID, the server
// rewrites it into FromID before delivery.
type SDPMessage struct {
	TargetID domain.PeerID             `json:"targetId,omitempty"`
	FromID   domain.PeerID             `json:"fromId,omitempty"`
	SDP      webrtc.SessionDescription `json:"sdp"`
}

type CandidateMessage struct {
	TargetID  domain.PeerID           `json:"targetId,omitempty"`
	FromID    domain.PeerID           `json:"fromId,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type PublisherLeft struct {
	RoomID domain.RoomID `json:"roomId,omitempty"`
}

// Encode builds a wire frame for event carrying payload. A nil payload
// produces an envelope without data.
func Encode(event string, payload any) (Frame, error) {
	env := Envelope{Event: event}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = b
	}
	return json.Marshal(env)
}
