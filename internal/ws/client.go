package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/pkg/gamedto"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Client is one websocket connection. It satisfies room.Conn: Send
// queues without blocking and drops the message when the peer cannot
// keep up, so a stalled tab never backs up a broadcast.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn

	sendCh   chan gamedto.Outbound
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		sendCh: make(chan gamedto.Outbound, sendBuffer),
		stopCh: make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Send queues an outbound event. Never blocks.
func (c *Client) Send(event string, payload any) {
	select {
	case <-c.stopCh:
		return
	default:
	}
	select {
	case c.sendCh <- gamedto.Outbound{Type: event, Payload: payload}:
	default:
		obslog.L().Warn("ws_send_dropped",
			zap.String("conn_id", c.id),
			zap.String("user_id", c.userID),
			zap.String("event", event),
		)
	}
}

func (c *Client) close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// writePump serializes all writes to the connection.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case msg := <-c.sendCh:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_failed",
					zap.String("conn_id", c.id),
					zap.Error(err),
				)
				c.close()
				return
			}
		}
	}
}

// pingLoop keeps intermediaries from idling the connection out.
func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.close()
				return
			}
		}
	}
}
