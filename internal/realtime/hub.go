package realtime

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/niagahub/niaga-backend/internal/models"
	"github.com/niagahub/niaga-backend/internal/storage"
)

// Server -> client event names
const (
	EventQRCode           = "qr-code"
	EventConnectionStatus = "connection-status"
	EventNewMessage       = "new-message"
	EventMessageStatus    = "message-status"
	EventNewConversation  = "new-conversation"
)

// Client -> server event names
const (
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventMarkAsRead        = "mark-as-read"
)

// ServerEvent is the envelope pushed to operator clients.
type ServerEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub is the room-based fan-out boundary. It keeps no state beyond room
// membership; everything it publishes comes from the connection manager
// and the message-ingestion path.
type Hub struct {
	store storage.Store

	mu    sync.RWMutex
	rooms map[string]map[*Client]bool
}

// NewHub creates an empty hub.
func NewHub(store storage.Store) *Hub {
	return &Hub{
		store: store,
		rooms: make(map[string]map[*Client]bool),
	}
}

func tenantRoom(tenantID string) string     { return "tenant:" + tenantID }
func conversationRoom(convID string) string { return "conversation:" + convID }

// Join adds a client to a room.
func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
}

// Leave removes a client from a room, dropping the room when empty.
func (h *Hub) Leave(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.rooms[room]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast pushes one event to every client in a room. Clients that
// cannot keep up are closed rather than allowed to block the fan-out.
func (h *Hub) Broadcast(room string, event ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logrus.Warnf("[REALTIME] marshal %s failed: %v", event.Event, err)
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- payload:
		default:
			go c.Close()
		}
	}
}

// EmitQRCode publishes a fresh pairing code to the tenant room.
func (h *Hub) EmitQRCode(tenantID, code string, expiresIn int) {
	h.Broadcast(tenantRoom(tenantID), ServerEvent{
		Event: EventQRCode,
		Data: map[string]interface{}{
			"qr_code":    code,
			"expires_in": expiresIn,
		},
	})
}

// EmitConnectionStatus publishes a link-state change to the tenant room.
func (h *Hub) EmitConnectionStatus(tenantID, state, phoneNumber string) {
	data := map[string]interface{}{"status": state}
	if phoneNumber != "" {
		data["phone_number"] = phoneNumber
	}
	h.Broadcast(tenantRoom(tenantID), ServerEvent{Event: EventConnectionStatus, Data: data})
}

// EmitNewMessage publishes an inbound or outbound message to both the
// conversation room and the tenant room.
func (h *Hub) EmitNewMessage(tenantID, conversationID string, msg *models.Message) {
	event := ServerEvent{Event: EventNewMessage, Data: msg}
	h.Broadcast(conversationRoom(conversationID), event)
	h.Broadcast(tenantRoom(tenantID), event)
}

// EmitMessageStatus publishes a delivery-status update.
func (h *Hub) EmitMessageStatus(tenantID, messageID, status string) {
	h.Broadcast(tenantRoom(tenantID), ServerEvent{
		Event: EventMessageStatus,
		Data: map[string]interface{}{
			"message_id": messageID,
			"status":     status,
		},
	})
}

// EmitNewConversation announces a conversation created by a first inbound
// message.
func (h *Hub) EmitNewConversation(tenantID string, conv *models.Conversation) {
	h.Broadcast(tenantRoom(tenantID), ServerEvent{Event: EventNewConversation, Data: conv})
}
