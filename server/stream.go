package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/zhubert/eve/logger"
	"github.com/zhubert/eve/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Events queued for a slow stream client before drops.
	streamBuffer = 256
)

// Application close codes.
const (
	CloseMissingWorkspaceID = 4000
	CloseWorkspaceNotFound  = 4004
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is an inbound stream message.
type clientMessage struct {
	Type  string `json:"type"`
	Input string `json:"input"`
}

// streamClient owns one WebSocket connection. All writes go through
// writePump.
type streamClient struct {
	conn *websocket.Conn
	send chan model.Event
	done chan struct{}
	log  *slog.Logger
}

// handleStream serves /ws?workspaceId=<id>: a "connected" event, then the
// workspace's session events. Inbound input messages are typed into the
// session.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade websocket", "error", err)
		return
	}

	id := r.URL.Query().Get("workspaceId")
	if id == "" {
		closeWith(conn, CloseMissingWorkspaceID, "Missing workspaceId parameter")
		return
	}

	ctx := r.Context()
	ws, err := s.workspaces.Get(ctx, id)
	if err != nil {
		s.log.Error("failed to load workspace", "workspaceID", id, "error", err)
		closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}
	if ws == nil {
		closeWith(conn, CloseWorkspaceNotFound, "Workspace not found")
		return
	}

	c := &streamClient{
		conn: conn,
		send: make(chan model.Event, streamBuffer),
		done: make(chan struct{}),
		log:  logger.WithWorkspace(id).With("component", "stream"),
	}
	c.log.Info("stream connected", "remote", r.RemoteAddr)
	go c.writePump()

	c.enqueue(model.ConnectedEvent(id))

	if err := s.workspaces.Resume(ctx, id); err != nil {
		c.log.Warn("failed to resume workspace", "error", err)
	}

	unsubscribe := s.workspaces.Sessions().Subscribe(id, c.enqueue)

	c.readPump(func(msg clientMessage) {
		if msg.Type != "input" {
			return
		}
		if err := s.workspaces.SendInput(ctx, id, msg.Input); err != nil {
			c.log.Warn("failed to send input", "error", err)
			c.enqueue(model.ErrorEvent(err.Error()))
		}
	})

	// Closing the stream detaches the client; the session keeps running.
	unsubscribe()
	close(c.done)
	c.log.Info("stream disconnected")
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	conn.Close()
}

// enqueue hands ev to the writer without blocking. Events for a client that
// cannot keep up are dropped.
func (c *streamClient) enqueue(ev model.Event) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		c.log.Warn("stream client send buffer full, dropping event", "type", ev.Type)
	}
}

// readPump reads messages until the connection fails or closes.
func (c *streamClient) readPump(handle func(clientMessage)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Warn("websocket read error", "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("invalid stream message", "error", err)
			continue
		}
		handle(msg)
	}
}

// writePump writes queued events and keepalive pings until done is closed
// or a write fails.
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			data, err := json.Marshal(ev)
			if err != nil {
				c.log.Error("failed to marshal event", "error", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
