package channel

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/niagahub/niaga-backend/internal/models"
	"github.com/niagahub/niaga-backend/internal/utils"

	_ "github.com/mattn/go-sqlite3"
)

const qrImageSize = 256

// Adapter wraps exactly one live connection to the chat network for one
// tenant. All whatsmeow callbacks are funneled into a single ordered
// event channel; nothing else observes the underlying client.
type Adapter struct {
	tenantID      string
	authStatePath string

	client    *whatsmeow.Client
	container *sqlstore.Container
	handlerID uint32

	events chan Event
	quit   chan struct{}

	mu       sync.Mutex
	closed   bool
	emitters sync.WaitGroup
}

// NewAdapter creates an adapter for one tenant. The connection is not
// opened until PairAndConnect.
func NewAdapter(tenantID, authStatePath string) *Adapter {
	return &Adapter{
		tenantID:      tenantID,
		authStatePath: authStatePath,
		events:        make(chan Event, 64),
		quit:          make(chan struct{}),
	}
}

// PairAndConnect opens the credential container and connects. When no
// device is paired yet it starts the QR pairing loop, re-emitting codes
// until linked. The returned channel carries every subsequent event and
// is closed on teardown.
func (a *Adapter) PairAndConnect(ctx context.Context) (<-chan Event, error) {
	dbLog := waLog.Stdout("ChannelDB-"+shortID(a.tenantID), "ERROR", true)
	uri := fmt.Sprintf("file:%s?_foreign_keys=on", a.authStatePath)

	container, err := sqlstore.New(ctx, "sqlite3", uri, dbLog)
	if err != nil {
		return nil, fmt.Errorf("open credential container: %w", err)
	}
	a.container = container

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Channel-"+shortID(a.tenantID), "WARN", true))
	client.EnableAutoReconnect = false
	a.client = client
	a.handlerID = client.AddEventHandler(a.handleEvent)

	if client.Store.ID == nil {
		// Fresh device: pairing codes arrive on the QR channel, which
		// must be requested before Connect.
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			a.teardownClient()
			return nil, fmt.Errorf("qr channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			a.teardownClient()
			return nil, fmt.Errorf("connect: %w", err)
		}
		go a.pumpQR(qrChan)
		return a.events, nil
	}

	if err := client.Connect(); err != nil {
		a.teardownClient()
		return nil, fmt.Errorf("connect: %w", err)
	}
	return a.events, nil
}

func (a *Adapter) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			uri, err := renderQR(item.Code)
			if err != nil {
				logrus.WithField("tenant_id", a.tenantID).Warnf("[CHANNEL] QR render failed: %v", err)
				continue
			}
			a.emit(Event{Type: EventQR, QRCode: uri})
		case "success":
			// pairing done; the Connected event carries the rest
		case "timeout":
			a.emit(Event{Type: EventClose})
		}
	}
}

func (a *Adapter) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		a.emit(Event{Type: EventOpen, PhoneNumber: a.PhoneNumber()})
	case *events.Disconnected:
		a.emit(Event{Type: EventClose})
	case *events.StreamReplaced:
		a.emit(Event{Type: EventClose})
	case *events.LoggedOut:
		a.emit(Event{Type: EventClose, LoggedOut: true})
	case *events.Message:
		if evt.Info.IsFromMe || evt.Info.IsGroup {
			return
		}
		body := extractText(evt.Message)
		if body == "" {
			return
		}
		a.emit(Event{
			Type:      EventMessage,
			From:      utils.NormalizePhone(evt.Info.Sender.User),
			Body:      body,
			MessageID: evt.Info.ID,
		})
	case *events.Receipt:
		status := receiptStatus(evt.Type)
		if status == "" {
			return
		}
		ids := make([]string, 0, len(evt.MessageIDs))
		for _, id := range evt.MessageIDs {
			ids = append(ids, id)
		}
		a.emit(Event{Type: EventReceipt, Status: status, MessageIDs: ids})
	}
}

// Send delivers one text or image message. It fails with
// ErrChannelUnavailable when no live connection exists.
func (a *Adapter) Send(ctx context.Context, to, body, kind, mediaRef string) (string, error) {
	client := a.client
	if client == nil || !client.IsConnected() {
		return "", ErrChannelUnavailable
	}

	jid := types.NewJID(utils.NormalizePhone(to), types.DefaultUserServer)

	var msg *waE2E.Message
	switch kind {
	case KindImage:
		data, err := os.ReadFile(mediaRef)
		if err != nil {
			return "", fmt.Errorf("read media: %w", err)
		}
		uploaded, err := client.Upload(ctx, data, whatsmeow.MediaImage)
		if err != nil {
			return "", fmt.Errorf("upload media: %w", err)
		}
		msg = &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(body),
			Mimetype:      proto.String(http.DetectContentType(data)),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}
	default:
		msg = &waE2E.Message{Conversation: proto.String(body)}
	}

	resp, err := client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// PhoneNumber returns the paired number, empty until pairing completes.
func (a *Adapter) PhoneNumber() string {
	if a.client != nil && a.client.Store.ID != nil {
		return a.client.Store.ID.User
	}
	return ""
}

// IsConnected reports whether the underlying socket is live.
func (a *Adapter) IsConnected() bool {
	return a.client != nil && a.client.IsConnected()
}

// Close detaches the event handler before releasing the connection so no
// stale callback fires into a torn-down adapter, then closes the event
// channel. Safe to call more than once.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	// Unblock any emitter waiting on a full buffer, stop new callbacks,
	// then wait for in-flight emits before the channel may be closed.
	close(a.quit)
	a.teardownClient()
	a.emitters.Wait()
	close(a.events)
}

// Logout performs the explicit-logout teardown: network logout, handler
// detach, and removal of the local credential container.
func (a *Adapter) Logout(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return RemoveAuthState(a.authStatePath)
	}
	a.closed = true
	a.mu.Unlock()

	close(a.quit)

	var logoutErr error
	if a.client != nil {
		// Handler must go first: the logout round-trip itself produces
		// events that would otherwise land in a dead channel.
		a.client.RemoveEventHandler(a.handlerID)
		if a.client.IsConnected() {
			logoutErr = a.client.Logout(ctx)
		}
		a.client.Disconnect()
	}
	if a.container != nil {
		a.container.Close()
	}
	a.emitters.Wait()
	close(a.events)

	if err := RemoveAuthState(a.authStatePath); err != nil {
		return err
	}
	return logoutErr
}

func (a *Adapter) teardownClient() {
	if a.client != nil {
		a.client.RemoveEventHandler(a.handlerID)
		a.client.Disconnect()
	}
	if a.container != nil {
		a.container.Close()
	}
}

// emit queues one event. Message and receipt events may be dropped when
// the buffer is full; lifecycle events (QR, open, close) drive the state
// machine and must arrive, so they block until the consumer drains or the
// adapter tears down.
func (a *Adapter) emit(ev Event) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.emitters.Add(1)
	a.mu.Unlock()
	defer a.emitters.Done()

	switch ev.Type {
	case EventMessage, EventReceipt:
		select {
		case a.events <- ev:
		default:
			logrus.WithField("tenant_id", a.tenantID).Warn("[CHANNEL] event buffer full, dropping event")
		}
	default:
		select {
		case a.events <- ev:
		case <-a.quit:
		}
	}
}

// RemoveAuthState deletes the sqlite credential container files.
func RemoveAuthState(path string) error {
	if path == "" {
		return nil
	}
	for _, f := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func renderQR(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	return ""
}

func receiptStatus(t types.ReceiptType) string {
	switch t {
	case types.ReceiptTypeDelivered:
		return models.MessageStatusDelivered
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
		return models.MessageStatusRead
	default:
		return ""
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
