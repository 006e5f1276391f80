package signal

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// link is one dialed websocket with its outbound queue.
type link struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newLink(conn *websocket.Conn, queue int) *link {
	return &link{conn: conn, send: make(chan core.Frame, queue)}
}

func (l *link) TrySend(f core.Frame) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return core.ErrConnClosed
	}
	select {
	case l.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close stops accepting frames. The write pump flushes what is queued,
// sends a close frame and then drops the socket.
func (l *link) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.send)
}

func (c *Channel) writePump(l *link) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = l.conn.Close()
	}()
	for {
		select {
		case data, ok := <-l.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
			if err := l.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				l.Close()
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				l.Close()
				return
			}
		case <-ticker.C:
			if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				l.Close()
				return
			}
		}
	}
}

// readPump owns handler dispatch for l: connect first, then every inbound
// event in order, then disconnect exactly once.
func (c *Channel) readPump(l *link) {
	pongWait := c.cfg.PingPeriod * 10 / 9
	l.conn.SetReadLimit(c.cfg.ReadLimit)
	_ = l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.dispatch(core.EventConnect, nil)

	defer func() {
		l.Close()
		_ = l.conn.Close()
		c.drop(l)
		log.Info().Str("module", "signal").Msg("disconnected")
		c.dispatch(core.EventDisconnect, nil)
	}()

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Msg("readPump read error")
			}
			return
		}
		_ = l.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env core.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad json")
			continue
		}
		c.dispatch(env.Event, env.Data)
	}
}
