// Package orch drives one broadcast session: it joins a room over the
// signaling channel and negotiates one peer connection per remote peer.
package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Broadcast/internal/app/media"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
)

// Errors returned by Session methods.
var (
	ErrEmptyRoom      = errors.New("room id is empty")
	ErrInvalidRole    = domain.ErrUnknownRole
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotStarted     = errors.New("session not started")
	ErrNotPublisher   = errors.New("only a publisher can stream")
	ErrCaptureRunning = errors.New("media capture already in progress")
	ErrClosed         = errors.New("session closed")
)

// ConnState is the state of the signaling connection.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// SessionState is where the session is in its room lifecycle.
type SessionState int

const (
	StateIdle SessionState = iota
	StateJoining
	StateJoined
	StateStreaming
	StateWaiting
)

func (s SessionState) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateStreaming:
		return "streaming"
	case StateWaiting:
		return "waiting"
	default:
		return "idle"
	}
}

// Resolver supplies the traversal-server list. It must not fail.
type Resolver interface {
	Resolve(ctx context.Context) []webrtc.ICEServer
}

// RemoteStreamFunc receives the remote stream, or nil when it is gone.
// It is called again with the same stream for every track that arrives.
type RemoteStreamFunc func(*media.RemoteStream)

// Options wires a Session. Signal and Peers are required.
type Options struct {
	Signal core.SignalChannel
	Peers  core.PeerFactory
	// Resolver is optional; without it connections use host candidates only.
	Resolver    Resolver
	Device      media.Device
	Constraints media.Constraints
}

// Status is a point-in-time snapshot of a Session for display.
type Status struct {
	Room        domain.RoomID
	Role        domain.Role
	Self        domain.PeerID
	Connection  ConnState
	Session     SessionState
	Streaming   bool
	ViewerCount int
	Peers       int
}

type subscription struct {
	event string
	id    core.HandlerID
}

// Session is the connection orchestrator. All state below the loop marker is
// owned by the event loop goroutine.
type Session struct {
	opts Options

	events   chan func()
	done     chan struct{}
	loopDone chan struct{}
	notes    *notifier

	closeOnce sync.Once

	statusMu   sync.RWMutex
	status     Status
	peerStates map[domain.PeerID]PeerState
	local      *media.Stream

	// loop
	logger      zerolog.Logger
	role        domain.Role
	roomID      domain.RoomID
	self        domain.PeerID
	onRemote    RemoteStreamFunc
	conn        ConnState
	state       SessionState
	joined      bool
	closed      bool
	capturing   bool
	gen         uint64
	subs        []subscription
	servers     []webrtc.ICEServer
	stream      *media.Stream
	peers       *registry
	viewerCount int
	// viewers present in the room; catch-up offers go to them
	viewers     map[domain.PeerID]struct{}
	remotes     map[string]*media.RemoteStream
}

// New builds an idle session and starts its event loop. Signal and Peers
// are required.
func New(opts Options) *Session {
	if opts.Constraints == (media.Constraints{}) {
		opts.Constraints = media.DefaultConstraints()
	}
	s := &Session{
		opts:     opts,
		events:   make(chan func(), 256),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		notes:    newNotifier(),
		logger:   log.With().Str("module", "orch").Logger(),
		peers:    newRegistry(),
		viewers:  make(map[domain.PeerID]struct{}),
		remotes:  make(map[string]*media.RemoteStream),
	}
	s.publish()
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.loopDone)
	for {
		select {
		case fn := <-s.events:
			fn()
			s.publish()
		case <-s.done:
			return
		}
	}
}

// post queues fn on the loop. Reports false once the session is closed.
func (s *Session) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- fn:
		return true
	case <-s.done:
		return false
	}
}

// do runs fn on the loop and waits for it.
func (s *Session) do(fn func()) error {
	ran := make(chan struct{})
	if !s.post(func() { fn(); close(ran) }) {
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-s.loopDone:
		return ErrClosed
	}
}

// Start joins roomID as role. onRemote receives remote streams (viewers) and
// nil on room errors or when the publisher leaves. The session closes when
// ctx is done.
func (s *Session) Start(ctx context.Context, roomID domain.RoomID, role domain.Role, onRemote RemoteStreamFunc) error {
	if roomID == "" {
		return ErrEmptyRoom
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	var (
		err       error
		gen       uint64
		connected bool
	)
	if derr := s.do(func() {
		switch {
		case s.closed:
			err = ErrClosed
			return
		case s.state != StateIdle:
			err = ErrAlreadyStarted
			return
		}
		s.gen++
		gen = s.gen
		s.role, s.roomID, s.onRemote = role, roomID, onRemote
		s.logger = log.With().Str("module", "orch").Str("role", string(role)).Str("room", string(roomID)).Logger()
		s.state = StateJoining
		s.subscribe()
		s.discover(ctx, gen)

		s.logger.Info().Msg("setting up signaling events")
		if s.opts.Signal.Connected() {
			connected = true
			s.onConnect()
			return
		}
		s.conn = Connecting
	}); derr != nil {
		return derr
	}
	if err != nil {
		return err
	}

	if !connected {
		if cerr := s.opts.Signal.Connect(ctx); cerr != nil {
			_ = s.do(func() {
				if s.gen != gen || s.closed {
					return
				}
				s.unsubscribe()
				s.gen++
				s.state, s.conn = StateIdle, Disconnected
			})
			return fmt.Errorf("connect signaling: %w", cerr)
		}
		stale := false
		if derr := s.do(func() { stale = s.closed || s.gen != gen }); derr != nil || stale {
			_ = s.opts.Signal.Disconnect()
			return ErrClosed
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return nil
}

// discover resolves the traversal servers off the loop. A result that
// arrives for an older start is dropped.
func (s *Session) discover(ctx context.Context, gen uint64) {
	if s.opts.Resolver == nil {
		return
	}
	go func() {
		servers := s.opts.Resolver.Resolve(ctx)
		s.post(func() {
			if gen != s.gen {
				s.logger.Debug().Msg("stale ice server list dropped")
				return
			}
			s.servers = servers
			s.logger.Info().Int("count", len(servers)).Msg("ice servers ready")
		})
	}()
}

// Close tears the session down: streaming stops, every peer connection
// closes, handlers are removed and the channel disconnects. Safe to call
// more than once and from any goroutine, callbacks included.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.do(s.teardown)
		close(s.done)
		<-s.loopDone
		s.notes.close()
		s.publish()
	})
}

func (s *Session) teardown() {
	if s.closed {
		return
	}
	s.logger.Info().Msg("closing session")
	s.stopStreaming()
	s.peers.closeAll()
	s.unsubscribe()
	s.viewers = make(map[domain.PeerID]struct{})
	s.closed = true
	s.gen++
	s.remotes = make(map[string]*media.RemoteStream)
	if err := s.opts.Signal.Disconnect(); err != nil {
		s.logger.Warn().Err(err).Msg("disconnect signaling")
	}
	s.state, s.conn = StateIdle, Disconnected
}

func (s *Session) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Session) LocalStream() *media.Stream {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.local
}

// PeerState reports the negotiation state of the connection to id.
func (s *Session) PeerState(id domain.PeerID) (PeerState, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.peerStates[id]
	return st, ok
}

// publish copies loop state into the snapshot read by Status and friends.
// Only the loop calls it, except once from New and Close.
func (s *Session) publish() {
	st := Status{
		Room:        s.roomID,
		Role:        s.role,
		Self:        s.self,
		Connection:  s.conn,
		Session:     s.state,
		Streaming:   s.stream != nil,
		ViewerCount: s.viewerCount,
		Peers:       s.peers.len(),
	}
	states := s.peers.states()
	s.statusMu.Lock()
	s.status, s.peerStates, s.local = st, states, s.stream
	s.statusMu.Unlock()
}

// notify hands v to the remote stream callback on the notifier goroutine.
func (s *Session) notify(v *media.RemoteStream) {
	fn := s.onRemote
	if fn == nil {
		return
	}
	s.notes.push(func() { fn(v) })
}

func (s *Session) emit(event string, payload any) error {
	if err := s.opts.Signal.Emit(event, payload); err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("emit failed")
		return err
	}
	return nil
}

// flush waits until everything queued so far has run.
func (s *Session) flush() {
	_ = s.do(func() {})
}
