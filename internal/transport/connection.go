// Package transport adapts a websocket connection to the dispatch runtime's
// event model: one goroutine pair per connection (readPump/writePump), a
// bounded send queue, and deadline-based keep-alive.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gameforge/internal/runtime"
	"gameforge/pkg/config"
	"gameforge/pkg/protocol"
)

// sendQueueDepth has no config field (nor do the upgrader's buffer sizes): it
// bounds per-connection memory, not wire behavior, and the teacher carries
// no equivalent knob either.
const sendQueueDepth = 100

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Connection owns one accepted socket: its read and write goroutines, and
// the outbound queue the runtime writes into through Send.
type Connection struct {
	id     protocol.ConnectionId
	conn   *websocket.Conn
	sendCh chan protocol.ServerMessage
	log    *zap.SugaredLogger
	cfg    config.WebSocketConfig
}

// Send implements runtime.Writer. It never blocks the caller for long: a
// full queue means the connection is already being torn down, so the
// message is dropped rather than stalling the event loop.
func (c *Connection) Send(msg protocol.ServerMessage) error {
	select {
	case c.sendCh <- msg:
		return nil
	default:
		return errQueueFull
	}
}

var errQueueFull = queueFullError{}

type queueFullError struct{}

func (queueFullError) Error() string { return "transport: send queue full" }

// Serve upgrades r into a websocket connection, registers it with rt, and
// blocks until a read on the socket fails (the peer closes it, or the read
// deadline passes); cancelling ctx does not interrupt a pending read. Call it from the
// HTTP handler for the websocket route. cfg carries the read/write deadlines,
// ping cadence and max frame size this connection enforces.
func Serve(ctx context.Context, rt *runtime.Runtime, w http.ResponseWriter, r *http.Request, log *zap.SugaredLogger, cfg config.WebSocketConfig) error {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Connection{
		id:     protocol.NewConnectionId(),
		conn:   wsConn,
		sendCh: make(chan protocol.ServerMessage, sendQueueDepth),
		log:    log,
		cfg:    cfg,
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt.Submit(ctx, runtime.Event{Conn: c.id, Data: runtime.Connected{Writer: c}})

	done := make(chan struct{})
	go func() {
		c.writePump(connCtx)
		close(done)
	}()

	c.readPump(ctx, rt)
	cancel()
	<-done

	rt.Submit(ctx, runtime.Event{Conn: c.id, Data: runtime.Disconnected{}})
	_ = wsConn.Close()
	return nil
}

// readPump decodes frames and submits them to the runtime until the socket
// errors or closes. It owns the read deadline and pong handling.
func (c *Connection) readPump(ctx context.Context, rt *runtime.Runtime) {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			rt.Submit(ctx, runtime.Event{Conn: c.id, Data: runtime.InvalidMessage{Err: err}})
			continue
		}
		rt.Submit(ctx, runtime.Event{Conn: c.id, Data: runtime.MessageReceived{Msg: msg}})
	}
}

// writePump drains sendCh to the socket and sends periodic pings, until ctx
// is cancelled or a write fails.
func (c *Connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-c.sendCh:
			data, err := json.Marshal(msg)
			if err != nil {
				if c.log != nil {
					c.log.Errorw("marshal outbound message", "error", err)
				}
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
