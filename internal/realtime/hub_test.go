package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/niagahub/niaga-backend/internal/models"
	"github.com/niagahub/niaga-backend/internal/storage"
)

func testClient(h *Hub, tenantID string) *Client {
	return &Client{
		hub:      h,
		tenantID: tenantID,
		rooms:    make(map[string]bool),
		send:     make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

func drain(c *Client) []ServerEvent {
	var out []ServerEvent
	for {
		select {
		case raw := <-c.send:
			var ev ServerEvent
			if err := json.Unmarshal(raw, &ev); err == nil {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

func TestBroadcastReachesRoomMembersOnly(t *testing.T) {
	h := NewHub(storage.NewMemoryStore())
	member := testClient(h, "tenant-1")
	outsider := testClient(h, "tenant-2")

	h.Join(tenantRoom("tenant-1"), member)
	h.Join(tenantRoom("tenant-2"), outsider)

	h.EmitConnectionStatus("tenant-1", "connected", "628123")

	got := drain(member)
	if len(got) != 1 || got[0].Event != EventConnectionStatus {
		t.Fatalf("member events: %+v", got)
	}
	if stray := drain(outsider); len(stray) != 0 {
		t.Errorf("outsider received %d events", len(stray))
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	h := NewHub(storage.NewMemoryStore())
	c := testClient(h, "tenant-1")

	room := tenantRoom("tenant-1")
	h.Join(room, c)
	h.Leave(room, c)

	h.EmitQRCode("tenant-1", "data:image/png;base64,QQ==", 60)

	if got := drain(c); len(got) != 0 {
		t.Errorf("received %d events after leaving", len(got))
	}
}

func TestNewMessageFansOutToBothRooms(t *testing.T) {
	h := NewHub(storage.NewMemoryStore())
	tenantWatcher := testClient(h, "tenant-1")
	convWatcher := testClient(h, "tenant-1")

	h.Join(tenantRoom("tenant-1"), tenantWatcher)
	h.Join(conversationRoom("c1"), convWatcher)

	msg := &models.Message{
		ID:             "wamid-1",
		ConversationID: "c1",
		TenantID:       "tenant-1",
		Direction:      models.MessageDirectionIn,
		Body:           "halo",
	}
	h.EmitNewMessage("tenant-1", "c1", msg)

	for name, c := range map[string]*Client{"tenant room": tenantWatcher, "conversation room": convWatcher} {
		got := drain(c)
		if len(got) != 1 || got[0].Event != EventNewMessage {
			t.Errorf("%s: events %+v", name, got)
		}
	}
}

func TestClientInBothRoomsReceivesTwice(t *testing.T) {
	h := NewHub(storage.NewMemoryStore())
	c := testClient(h, "tenant-1")

	h.Join(tenantRoom("tenant-1"), c)
	h.Join(conversationRoom("c1"), c)

	h.EmitNewMessage("tenant-1", "c1", &models.Message{ID: "wamid-1", ConversationID: "c1"})

	// one copy per room; clients de-duplicate if they care
	if got := drain(c); len(got) != 2 {
		t.Errorf("received %d copies, want 2", len(got))
	}
}

func TestQRCodeEnvelope(t *testing.T) {
	h := NewHub(storage.NewMemoryStore())
	c := testClient(h, "tenant-1")
	h.Join(tenantRoom("tenant-1"), c)

	h.EmitQRCode("tenant-1", "data:image/png;base64,QQ==", 60)

	got := drain(c)
	if len(got) != 1 {
		t.Fatalf("got %d events", len(got))
	}
	data, ok := got[0].Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T", got[0].Data)
	}
	if data["qr_code"] != "data:image/png;base64,QQ==" {
		t.Errorf("qr_code = %v", data["qr_code"])
	}
	if data["expires_in"] != float64(60) {
		t.Errorf("expires_in = %v", data["expires_in"])
	}
}

func TestHandleEventRejectsForeignConversation(t *testing.T) {
	store := storage.NewMemoryStore()
	conv, _, err := store.GetOrCreateConversation("tenant-1", "628111")
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	h := NewHub(store)
	intruder := testClient(h, "tenant-2")
	intruder.handleEvent(clientEvent{Event: EventJoinConversation, ConversationID: conv.ID})

	h.EmitNewMessage("tenant-1", conv.ID, &models.Message{ID: "wamid-1", ConversationID: conv.ID})
	if got := drain(intruder); len(got) != 0 {
		t.Errorf("foreign tenant joined a conversation room, got %d events", len(got))
	}

	owner := testClient(h, "tenant-1")
	owner.handleEvent(clientEvent{Event: EventJoinConversation, ConversationID: conv.ID})
	h.EmitNewMessage("tenant-1", conv.ID, &models.Message{ID: "wamid-2", ConversationID: conv.ID})
	if got := drain(owner); len(got) != 1 {
		t.Errorf("owner join failed, got %d events", len(got))
	}
}

func TestBroadcastConcurrentWithClose(t *testing.T) {
	h := NewHub(storage.NewMemoryStore())
	room := tenantRoom("tenant-1")

	clients := make([]*Client, 50)
	for i := range clients {
		clients[i] = testClient(h, "tenant-1")
		h.Join(room, clients[i])
	}

	// Small send buffers plus a burst of broadcasts force the slow-client
	// path while clients are disconnecting; no interleaving may panic.
	var wg sync.WaitGroup
	wg.Add(3)
	for g := 0; g < 2; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				h.EmitConnectionStatus("tenant-1", "connected", "628123")
			}
		}()
	}
	go func() {
		defer wg.Done()
		for _, c := range clients {
			c.Close()
		}
	}()
	wg.Wait()

	// broadcasting to a fully departed room is also safe
	h.EmitConnectionStatus("tenant-1", "disconnected", "")

	// Close is idempotent
	clients[0].Close()
}

func TestMarkAsReadEvent(t *testing.T) {
	store := storage.NewMemoryStore()
	conv, _, err := store.GetOrCreateConversation("tenant-1", "628111")
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	if err := store.TouchConversation(conv.ID, conv.CreatedAt); err != nil {
		t.Fatalf("touch: %v", err)
	}

	h := NewHub(store)
	c := testClient(h, "tenant-1")
	c.handleEvent(clientEvent{Event: EventMarkAsRead, ConversationID: conv.ID})

	got, err := store.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d after mark-as-read", got.UnreadCount)
	}
}
