package orch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Broadcast/internal/adapters/rtc"
	"github.com/dkeye/Broadcast/internal/adapters/rtc/vnettest"
	"github.com/dkeye/Broadcast/internal/app/media"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
)

// link wires two fake channels the way the rendezvous server would,
// stamping the sender id onto targeted messages.
func link(pub, view *fakeSignal, pubID, viewID domain.PeerID) {
	pub.relay = func(event string, payload any) {
		switch event {
		case core.EventOffer:
			m := payload.(core.SDPMessage)
			view.deliver(event, core.SDPMessage{FromID: pubID, SDP: m.SDP})
		case core.EventICECandidate:
			m := payload.(core.CandidateMessage)
			view.deliver(event, core.CandidateMessage{FromID: pubID, Candidate: m.Candidate})
		case core.EventPublisherLeft:
			view.deliver(event, payload)
		}
	}
	view.relay = func(event string, payload any) {
		switch event {
		case core.EventJoinRoom:
			pub.deliver(core.EventViewerJoined, core.ViewerPresence{ViewerID: viewID})
		case core.EventAnswer:
			m := payload.(core.SDPMessage)
			pub.deliver(event, core.SDPMessage{FromID: viewID, SDP: m.SDP})
		case core.EventICECandidate:
			m := payload.(core.CandidateMessage)
			pub.deliver(event, core.CandidateMessage{FromID: viewID, Candidate: m.Candidate})
		}
	}
}

func TestPublisherViewerRoundTrip(t *testing.T) {
	nets := vnettest.Nets(t, 2)
	pf, err := rtc.NewFactory(rtc.WithNet(nets[0]))
	require.NoError(t, err)
	vf, err := rtc.NewFactory(rtc.WithNet(nets[1]))
	require.NoError(t, err)

	ps, vs := newFakeSignal(), newFakeSignal()
	link(ps, vs, "pub", "view")

	pub := New(Options{Signal: ps, Peers: pf, Device: media.NewSyntheticDevice()})
	t.Cleanup(pub.Close)
	view := New(Options{Signal: vs, Peers: vf})
	t.Cleanup(view.Close)

	ctx := context.Background()
	require.NoError(t, pub.Start(ctx, room, domain.RolePublisher, nil))
	require.NoError(t, pub.StartStreaming(ctx))
	local := pub.LocalStream()
	require.NotNil(t, local)

	remotes := make(chan *media.RemoteStream, 16)
	require.NoError(t, view.Start(ctx, room, domain.RoleViewer, func(rs *media.RemoteStream) { remotes <- rs }))

	select {
	case rs := <-remotes:
		require.NotNil(t, rs)
		assert.Equal(t, local.ID(), rs.ID())
	case <-time.After(15 * time.Second):
		t.Fatal("viewer never received the stream")
	}

	connected := func(s *Session, id domain.PeerID) func() bool {
		return func() bool {
			st, ok := s.PeerState(id)
			return ok && st == PeerConnected
		}
	}
	require.Eventually(t, connected(pub, "view"), 15*time.Second, 20*time.Millisecond)
	require.Eventually(t, connected(view, "pub"), 15*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, pub.Status().ViewerCount)

	pub.StopStreaming()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case rs := <-remotes:
			if rs != nil {
				continue
			}
			view.flush()
			assert.Equal(t, 0, view.Status().Peers)
			assert.Equal(t, StateWaiting, view.Status().Session)
			return
		case <-deadline:
			t.Fatal("viewer not told the publisher left")
		}
	}
}
