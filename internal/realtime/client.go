package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	readLimit  = 8 * 1024
)

// clientEvent is what operator clients send upstream.
type clientEvent struct {
	Event          string `json:"event"`
	ConversationID string `json:"conversation_id"`
}

// Client is one authenticated operator connection, joined to its tenant
// room and any conversation rooms it asks for.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	tenantID string

	mu    sync.Mutex
	rooms map[string]bool

	// send is never closed: Broadcast may be writing to it from another
	// goroutine at any moment. done signals writePump to stop instead.
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(hub *Hub, tenantID string, conn *websocket.Conn) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		tenantID: tenantID,
		rooms:    make(map[string]bool),
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
	}
}

// readPump handles client events until the connection drops. Runs on the
// websocket handler goroutine and blocks until done.
func (c *Client) readPump() {
	defer c.Close()
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var ev clientEvent
		if err := json.Unmarshal(raw, &ev); err != nil || ev.ConversationID == "" {
			continue
		}
		c.handleEvent(ev)
	}
}

func (c *Client) handleEvent(ev clientEvent) {
	// Conversation rooms are only joinable for the client's own tenant.
	conv, err := c.hub.store.GetConversation(ev.ConversationID)
	if err != nil || conv.TenantID != c.tenantID {
		return
	}

	switch ev.Event {
	case EventJoinConversation:
		room := conversationRoom(ev.ConversationID)
		c.hub.Join(room, c)
		c.mu.Lock()
		c.rooms[room] = true
		c.mu.Unlock()
	case EventLeaveConversation:
		room := conversationRoom(ev.ConversationID)
		c.hub.Leave(room, c)
		c.mu.Lock()
		delete(c.rooms, room)
		c.mu.Unlock()
	case EventMarkAsRead:
		if err := c.hub.store.MarkConversationRead(ev.ConversationID); err != nil {
			logrus.WithField("tenant_id", c.tenantID).Warnf("[REALTIME] mark-as-read failed: %v", err)
		}
	}
}

// writePump flushes queued events and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close leaves every room and releases the connection. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.hub.Leave(tenantRoom(c.tenantID), c)
		c.mu.Lock()
		rooms := make([]string, 0, len(c.rooms))
		for room := range c.rooms {
			rooms = append(rooms, room)
		}
		c.rooms = make(map[string]bool)
		c.mu.Unlock()
		for _, room := range rooms {
			c.hub.Leave(room, c)
		}
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
