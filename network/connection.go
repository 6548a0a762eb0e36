package network

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// actionHello is the connection-layer handshake frame. It is the first
// message on every connection and never reaches the game layer.
const actionHello = "hello"

type helloFrame struct {
	Action   string   `json:"action"`
	Identity Identity `json:"identity"`
}

// Handler handles one inbound message. The payload is the full JSON
// object including the action field.
type Handler func(conn *Connection, payload []byte)

// Connection is a live link to one peer. Sending marshals one JSON
// object per websocket message; receiving runs on a single read pump
// which dispatches each message to the handler registered for its
// action, preserving per-peer ordering.
type Connection struct {
	ws    *websocket.Conn
	other Identity
	log   *zap.SugaredLogger

	writeMu sync.Mutex

	handlersMu sync.Mutex
	handlers   map[string]Handler

	closeOnce sync.Once
	onClose   func(*Connection)
	done      chan struct{}
}

func newConnection(ws *websocket.Conn, other Identity, log *zap.SugaredLogger) *Connection {
	return &Connection{
		ws:       ws,
		other:    other,
		log:      log,
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
}

// Other returns the identity of the remote node.
func (c *Connection) Other() Identity {
	return c.other
}

// Handle registers the handler for an action, replacing any previous
// one. A nil handler unregisters the action. Register all handlers
// before calling Start, otherwise early messages are dropped.
func (c *Connection) Handle(action string, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	if h == nil {
		delete(c.handlers, action)
		return
	}
	c.handlers[action] = h
}

// Send marshals v and writes it as a single websocket message.
func (c *Connection) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Start launches the read pump. Call exactly once, after handler
// registration.
func (c *Connection) Start() {
	go c.readPump()
}

// Close tears the connection down. The on-close hook fires at most once
// whether closed locally or by a read error.
func (c *Connection) Close() error {
	err := c.ws.Close()
	c.fireClose()
	return err
}

// Done is closed once the connection is no longer usable.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) fireClose() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

func (c *Connection) readPump() {
	defer func() {
		_ = c.ws.Close()
		c.fireClose()
	}()
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			c.log.Infow("connection closed", "peer", c.other.Addr(), "err", err)
			return
		}
		var env struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(payload, &env); err != nil || env.Action == "" {
			c.log.Debugw("dropping malformed message", "peer", c.other.Addr())
			continue
		}
		c.handlersMu.Lock()
		h := c.handlers[env.Action]
		c.handlersMu.Unlock()
		if h == nil {
			c.log.Debugw("dropping message with no handler", "peer", c.other.Addr(), "action", env.Action)
			continue
		}
		h(c, payload)
	}
}

// Dial connects to a remote node and introduces this node with a hello
// frame. The returned connection is not started: register handlers
// first, then call Start.
func Dial(me, target Identity, log *zap.SugaredLogger) (*Connection, error) {
	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+target.Addr()+"/ws", nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	conn := newConnection(ws, target, log)
	if err := conn.Send(helloFrame{Action: actionHello, Identity: me}); err != nil {
		_ = ws.Close()
		return nil, err
	}
	return conn, nil
}
