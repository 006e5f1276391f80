package rendezvous

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Broadcast/internal/app"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
)

func newServer(t *testing.T, limit int) (string, *app.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := &app.Hub{Registry: app.NewRegistry(), Rooms: app.NewRoomManager(), Policy: app.SimplePolicy{}}
	ctl := NewSignalWSController(hub, NewRoomRateLimiter(limit, time.Minute), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", hub
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, url string) *client {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return &client{t: t, ws: ws}
}

func (c *client) send(event string, payload any) {
	c.t.Helper()
	f, err := core.Encode(event, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, f))
}

func (c *client) next() core.Envelope {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env core.Envelope
	require.NoError(c.t, c.ws.ReadJSON(&env))
	return env
}

func (c *client) expect(event string, into any) {
	c.t.Helper()
	env := c.next()
	require.Equal(c.t, event, env.Event, "payload: %s", env.Data)
	if into != nil {
		require.NoError(c.t, json.Unmarshal(env.Data, into))
	}
}

func (c *client) join(room domain.RoomID, role domain.Role) domain.PeerID {
	c.t.Helper()
	c.send(core.EventJoinRoom, core.JoinRoom{RoomID: room, Role: role})
	var joined core.RoomJoined
	c.expect(core.EventRoomJoined, &joined)
	require.NotEmpty(c.t, joined.PeerID)
	return joined.PeerID
}

func TestSignalingFlow(t *testing.T) {
	url, _ := newServer(t, 5)
	pub, view := dial(t, url), dial(t, url)

	pubID := pub.join("r1", domain.RolePublisher)
	viewID := view.join("r1", domain.RoleViewer)

	var presence core.ViewerPresence
	pub.expect(core.EventViewerJoined, &presence)
	assert.Equal(t, viewID, presence.ViewerID)

	pub.send(core.EventOffer, core.SDPMessage{TargetID: viewID, SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o"}})
	var offer core.SDPMessage
	view.expect(core.EventOffer, &offer)
	assert.Equal(t, pubID, offer.FromID)
	assert.Empty(t, offer.TargetID)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.SDP.Type)

	view.send(core.EventAnswer, core.SDPMessage{TargetID: pubID, SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a"}})
	var answer core.SDPMessage
	pub.expect(core.EventAnswer, &answer)
	assert.Equal(t, viewID, answer.FromID)

	view.send(core.EventICECandidate, core.CandidateMessage{TargetID: pubID, Candidate: webrtc.ICECandidateInit{Candidate: "candidate:1"}})
	var cand core.CandidateMessage
	pub.expect(core.EventICECandidate, &cand)
	assert.Equal(t, viewID, cand.FromID)
	assert.Equal(t, "candidate:1", cand.Candidate.Candidate)

	require.NoError(t, view.ws.Close())
	pub.expect(core.EventViewerLeft, &presence)
	assert.Equal(t, viewID, presence.ViewerID)
}

func TestPublisherLeavingReachesViewers(t *testing.T) {
	url, _ := newServer(t, 5)
	pub, view := dial(t, url), dial(t, url)
	pub.join("r1", domain.RolePublisher)
	view.join("r1", domain.RoleViewer)
	pub.expect(core.EventViewerJoined, nil)

	pub.send(core.EventPublisherLeft, core.PublisherLeft{RoomID: "r1"})
	view.expect(core.EventPublisherLeft, nil)

	require.NoError(t, pub.ws.Close())
	view.expect(core.EventPublisherLeft, nil)
}

func TestSecondPublisherGetsRoomError(t *testing.T) {
	url, _ := newServer(t, 5)
	first, second := dial(t, url), dial(t, url)
	first.join("r1", domain.RolePublisher)

	second.send(core.EventJoinRoom, core.JoinRoom{RoomID: "r1", Role: domain.RolePublisher})
	var re core.RoomError
	second.expect(core.EventRoomError, &re)
	assert.Equal(t, core.ErrPublisherPresent.Error(), re.Message)
}

func TestJoinRejectsBadInput(t *testing.T) {
	url, _ := newServer(t, 10)
	c := dial(t, url)

	c.send(core.EventJoinRoom, core.JoinRoom{RoomID: "", Role: domain.RoleViewer})
	c.expect(core.EventRoomError, nil)

	c.send(core.EventJoinRoom, map[string]string{"roomId": "r1", "role": "admin"})
	var re core.RoomError
	c.expect(core.EventRoomError, &re)
	assert.Contains(t, re.Message, "unknown role")
}

func TestJoinRateLimited(t *testing.T) {
	url, _ := newServer(t, 2)
	c := dial(t, url)
	c.join("r1", domain.RoleViewer)
	c.join("r2", domain.RoleViewer)

	c.send(core.EventJoinRoom, core.JoinRoom{RoomID: "r3", Role: domain.RoleViewer})
	var re core.RoomError
	c.expect(core.EventRoomError, &re)
	assert.Equal(t, "too many join attempts", re.Message)
}

func TestPingPong(t *testing.T) {
	url, _ := newServer(t, 5)
	c := dial(t, url)
	c.send(core.EventPing, nil)
	c.expect(core.EventPong, nil)
}

func TestRelayOutsideRoomDropped(t *testing.T) {
	url, hub := newServer(t, 5)
	a, b := dial(t, url), dial(t, url)
	a.join("r1", domain.RolePublisher)
	bID := b.join("r2", domain.RoleViewer)

	a.send(core.EventOffer, core.SDPMessage{TargetID: bID, SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o"}})
	b.send(core.EventPing, nil)
	b.expect(core.EventPong, nil)

	assert.Len(t, hub.Rooms.List(), 2)
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRoomRateLimiter(2, time.Second)
	now := time.Unix(100, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, rl.Allow("a"))

	rl.Forget("a")
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
}
