// Package signal is the client side of the rendezvous websocket.
package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("signal channel not connected")

type Config struct {
	URL        string
	Header     http.Header
	ReadLimit  int64
	PingPeriod time.Duration
	SendQueue  int
	Dialer     *websocket.Dialer
}

func (c Config) withDefaults() Config {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 << 10
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = 30 * time.Second
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 64
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	return c
}

type registration struct {
	id core.HandlerID
	h  core.SignalHandler
}

// Channel implements core.SignalChannel over gorilla/websocket.
type Channel struct {
	cfg Config

	mu       sync.Mutex
	link     *link
	handlers map[string][]registration
	nextID   atomic.Uint64
}

var _ core.SignalChannel = (*Channel)(nil)

func NewChannel(cfg Config) *Channel {
	return &Channel{
		cfg:      cfg.withDefaults(),
		handlers: make(map[string][]registration),
	}
}

// Connect dials the server. The connect event is dispatched from the read
// goroutine before any inbound message. Connecting twice is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.link != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ws, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	l := newLink(ws, c.cfg.SendQueue)

	c.mu.Lock()
	if c.link != nil {
		c.mu.Unlock()
		l.Close()
		return nil
	}
	c.link = l
	c.mu.Unlock()

	log.Info().Str("module", "signal").Str("url", c.cfg.URL).Msg("connected")

	go c.writePump(l)
	go c.readPump(l)
	return nil
}

// Disconnect closes the current connection. The disconnect event follows
// from the read goroutine. Without a connection it is a no-op.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	l := c.link
	c.link = nil
	c.mu.Unlock()
	if l == nil {
		return nil
	}
	l.Close()
	return nil
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

func (c *Channel) Emit(event string, payload any) error {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}
	f, err := core.Encode(event, payload)
	if err != nil {
		return err
	}
	if err := l.TrySend(f); err != nil {
		if errors.Is(err, core.ErrConnClosed) {
			return ErrNotConnected
		}
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (c *Channel) On(event string, h core.SignalHandler) core.HandlerID {
	id := core.HandlerID(c.nextID.Add(1))
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], registration{id: id, h: h})
	c.mu.Unlock()
	return id
}

func (c *Channel) Off(event string, id core.HandlerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	regs := c.handlers[event]
	for i, r := range regs {
		if r.id != id {
			continue
		}
		// copy so that a dispatch in flight keeps its own slice
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(c.handlers, event)
		} else {
			c.handlers[event] = next
		}
		return
	}
}

func (c *Channel) dispatch(event string, data []byte) {
	c.mu.Lock()
	regs := c.handlers[event]
	c.mu.Unlock()
	if len(regs) == 0 {
		log.Debug().Str("module", "signal").Str("event", event).Msg("no handler")
		return
	}
	for _, r := range regs {
		r.h(data)
	}
}

// drop forgets l if it is still current.
func (c *Channel) drop(l *link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == l {
		c.link = nil
	}
}
