package hub

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/parley-chat/parley/internal/event"
	"github.com/parley-chat/parley/internal/store"
)

const writeTimeout = 10 * time.Second

// Conn is one live, authenticated client stream. Outbound frames go through
// a buffered channel drained by a dedicated writer goroutine; a full buffer
// cancels the connection instead of blocking the hub.
type Conn struct {
	id      string
	user    store.User
	ws      *websocket.Conn
	sendCh  chan event.Frame
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter
}

func newConn(parent context.Context, ws *websocket.Conn, user store.User, buffer int, limiter *rate.Limiter) (*Conn, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	return &Conn{
		id:      id,
		user:    user,
		ws:      ws,
		sendCh:  make(chan event.Frame, buffer),
		ctx:     ctx,
		cancel:  cancel,
		limiter: limiter,
	}, nil
}

// SessionID returns the connection's ephemeral identifier.
func (c *Conn) SessionID() string {
	return c.id
}

// UserID returns the identity this connection is bound to.
func (c *Conn) UserID() uuid.UUID {
	return c.user.ID
}

// Deliver queues an outbound frame. It never blocks: a full send buffer
// cancels the connection and reports backpressure.
func (c *Conn) Deliver(f event.Frame) error {
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	case c.sendCh <- f:
		return nil
	default:
		c.cancel()
		return &opError{code: CodeBackpressure, msg: "connection send buffer full", fatal: true}
	}
}

// writeLoop drains the send buffer onto the websocket until the connection
// is canceled or the peer goes away.
func (c *Conn) writeLoop(log *zap.Logger) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case f, ok := <-c.sendCh:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(f); err != nil {
				log.Warn("stream send failed",
					zap.Error(err),
					zap.String("session_id", c.id),
				)
				c.cancel()
				return
			}
		}
	}
}

func generateSessionID() (string, error) {
	var raw [12]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}
