package rendezvous

import (
	"encoding/json"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleSDP forwards an offer or answer to its target, replacing the target
// id with the sender's.
func (ctl *SignalWSController) handleSDP(id domain.PeerID, event string, data json.RawMessage) {
	var p core.SDPMessage
	if err := json.Unmarshal(data, &p); err != nil || p.TargetID == "" {
		log.Error().Err(err).Str("module", "rendezvous").Str("event", event).Msg("bad sdp payload")
		return
	}
	out := core.SDPMessage{FromID: id, SDP: p.SDP}
	if err := ctl.Hub.Relay(id, p.TargetID, event, out); err != nil {
		log.Warn().Err(err).Str("module", "rendezvous").Str("sid", string(id)).Str("target", string(p.TargetID)).Str("event", event).Msg("relay failed")
	}
}

func (ctl *SignalWSController) handleCandidate(id domain.PeerID, data json.RawMessage) {
	var p core.CandidateMessage
	if err := json.Unmarshal(data, &p); err != nil || p.TargetID == "" {
		log.Error().Err(err).Str("module", "rendezvous").Msg("bad candidate payload")
		return
	}
	out := core.CandidateMessage{FromID: id, Candidate: p.Candidate}
	if err := ctl.Hub.Relay(id, p.TargetID, core.EventICECandidate, out); err != nil {
		log.Debug().Err(err).Str("module", "rendezvous").Str("sid", string(id)).Str("target", string(p.TargetID)).Msg("candidate not relayed")
	}
}
