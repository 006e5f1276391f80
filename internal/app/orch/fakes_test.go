package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
)

var errNotConnected = errors.New("not connected")

type emitted struct {
	event   string
	payload any
}

type fakeReg struct {
	id core.HandlerID
	h  core.SignalHandler
}

// fakeSignal is an in-memory core.SignalChannel. Handlers run on the caller
// of deliver.
type fakeSignal struct {
	mu         sync.Mutex
	handlers   map[string][]fakeReg
	next       core.HandlerID
	connected  bool
	connectErr error
	sent       []emitted
	// relay, if set, sees every emitted message after it is recorded
	relay func(event string, payload any)
}

func newFakeSignal() *fakeSignal {
	return &fakeSignal{handlers: make(map[string][]fakeReg)}
}

func (f *fakeSignal) Connect(context.Context) error {
	f.mu.Lock()
	if f.connectErr != nil {
		f.mu.Unlock()
		return f.connectErr
	}
	f.connected = true
	f.mu.Unlock()
	f.dispatch(core.EventConnect, nil)
	return nil
}

func (f *fakeSignal) Disconnect() error {
	f.mu.Lock()
	was := f.connected
	f.connected = false
	f.mu.Unlock()
	if was {
		f.dispatch(core.EventDisconnect, nil)
	}
	return nil
}

func (f *fakeSignal) Emit(event string, payload any) error {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return errNotConnected
	}
	f.sent = append(f.sent, emitted{event: event, payload: payload})
	relay := f.relay
	f.mu.Unlock()
	if relay != nil {
		relay(event, payload)
	}
	return nil
}

func (f *fakeSignal) On(event string, h core.SignalHandler) core.HandlerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.handlers[event] = append(f.handlers[event], fakeReg{id: f.next, h: h})
	return f.next
}

func (f *fakeSignal) Off(event string, id core.HandlerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	regs := f.handlers[event]
	for i, r := range regs {
		if r.id == id {
			f.handlers[event] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(f.handlers[event]) == 0 {
		delete(f.handlers, event)
	}
}

func (f *fakeSignal) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSignal) dispatch(event string, data json.RawMessage) {
	f.mu.Lock()
	regs := append([]fakeReg(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, r := range regs {
		r.h(data)
	}
}

// deliver simulates an inbound server event.
func (f *fakeSignal) deliver(event string, payload any) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			panic(err)
		}
		data = b
	}
	f.dispatch(event, data)
}

func (f *fakeSignal) emitted(event string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, e := range f.sent {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func (f *fakeSignal) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, regs := range f.handlers {
		n += len(regs)
	}
	return n
}

// fakePeer records everything the session does to a connection.
type fakePeer struct {
	mu         sync.Mutex
	remote     domain.PeerID
	servers    []webrtc.ICEServer
	tracks     []webrtc.TrackLocal
	remoteDesc *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	closed     int

	offerErr  error
	answerErr error
	remoteErr error

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(core.RemoteTrack)
	onState func(webrtc.PeerConnectionState)
}

func (p *fakePeer) AddTrack(t webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, t)
	return nil
}

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	if p.offerErr != nil {
		return webrtc.SessionDescription{}, p.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-for-" + string(p.remote)}, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	if p.answerErr != nil {
		return webrtc.SessionDescription{}, p.answerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-for-" + string(p.remote)}, nil
}

func (p *fakePeer) SetRemoteDescription(sd webrtc.SessionDescription) error {
	if p.remoteErr != nil {
		return p.remoteErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteDesc = &sd
	return nil
}

func (p *fakePeer) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteDesc
}

func (p *fakePeer) AddICECandidate(ci webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, ci)
	return nil
}

func (p *fakePeer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onICE = fn
}

func (p *fakePeer) OnTrack(fn func(core.RemoteTrack)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = fn
}

func (p *fakePeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	p.onICE, p.onTrack, p.onState = nil, nil, nil
	return nil
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) gather(ci webrtc.ICECandidateInit) {
	p.mu.Lock()
	fn := p.onICE
	p.mu.Unlock()
	if fn != nil {
		fn(ci)
	}
}

func (p *fakePeer) arrive(t core.RemoteTrack) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

func (p *fakePeer) state(st webrtc.PeerConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

type fakeFactory struct {
	mu      sync.Mutex
	created map[domain.PeerID][]*fakePeer
	prepare func(*fakePeer)
	err     error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{created: make(map[domain.PeerID][]*fakePeer)}
}

func (f *fakeFactory) NewPeerConn(servers []webrtc.ICEServer, remote domain.PeerID) (core.PeerConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{remote: remote, servers: servers}
	if f.prepare != nil {
		f.prepare(p)
	}
	f.created[remote] = append(f.created[remote], p)
	return p, nil
}

func (f *fakeFactory) all(id domain.PeerID) []*fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakePeer(nil), f.created[id]...)
}

func (f *fakeFactory) last(id domain.PeerID) *fakePeer {
	all := f.all(id)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func (f *fakeFactory) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ps := range f.created {
		n += len(ps)
	}
	return n
}

type fakeRemoteTrack struct {
	id, stream string
	kind       webrtc.RTPCodecType
}

func (t fakeRemoteTrack) ID() string                { return t.id }
func (t fakeRemoteTrack) StreamID() string          { return t.stream }
func (t fakeRemoteTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t fakeRemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return nil, nil, errors.New("no media in fake")
}

type staticResolver struct {
	servers []webrtc.ICEServer
	gate    chan struct{}
}

func (r staticResolver) Resolve(ctx context.Context) []webrtc.ICEServer {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
		}
	}
	return r.servers
}
