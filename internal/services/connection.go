package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/niagahub/niaga-backend/internal/channel"
	"github.com/niagahub/niaga-backend/internal/models"
	"github.com/niagahub/niaga-backend/internal/storage"
)

// ErrConnectionInProgress is returned when a connect attempt for the same
// tenant is already in flight. Callers should treat it as "try again
// shortly", not as a hard failure.
var ErrConnectionInProgress = errors.New("connection attempt already in progress")

// ErrSessionNotFound is returned when a tenant has no session record.
var ErrSessionNotFound = errors.New("session not found")

// DefaultReconnectDelay applies after an unplanned disconnect.
const DefaultReconnectDelay = 5 * time.Second

// QRExpirySeconds is the expiry hint published alongside pairing codes.
const QRExpirySeconds = 60

// ChannelAdapter is one live connection to the chat network for one tenant.
type ChannelAdapter interface {
	PairAndConnect(ctx context.Context) (<-chan channel.Event, error)
	Send(ctx context.Context, to, body, kind, mediaRef string) (string, error)
	PhoneNumber() string
	IsConnected() bool
	Logout(ctx context.Context) error
	Close()
}

// AdapterFactory builds adapters; swapped out in tests.
type AdapterFactory func(tenantID, authStatePath string) ChannelAdapter

// NewWhatsmeowFactory returns the production adapter factory.
func NewWhatsmeowFactory() AdapterFactory {
	return func(tenantID, authStatePath string) ChannelAdapter {
		return channel.NewAdapter(tenantID, authStatePath)
	}
}

// MessageProcessor consumes inbound messages for tenants with a live link.
type MessageProcessor interface {
	ProcessIncomingMessage(ctx context.Context, tenantID, from, body string)
}

// Notifier is the realtime fan-out boundary.
type Notifier interface {
	EmitQRCode(tenantID, code string, expiresIn int)
	EmitConnectionStatus(tenantID, state, phoneNumber string)
	EmitNewMessage(tenantID, conversationID string, msg *models.Message)
	EmitMessageStatus(tenantID, messageID, status string)
	EmitNewConversation(tenantID string, conv *models.Conversation)
}

// ConnectResult is the synchronous answer to a connect request; pairing
// itself continues asynchronously on the adapter's event stream.
type ConnectResult struct {
	Status      string `json:"status"`
	QRCode      string `json:"qr_code,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// StatusResult reports the persisted link state reconciled with the
// in-memory adapter registry.
type StatusResult struct {
	Status        string     `json:"status"`
	PhoneNumber   string     `json:"phone_number,omitempty"`
	LastConnected *time.Time `json:"last_connected,omitempty"`
	IsOnline      bool       `json:"is_online"`
}

// ConnectionManager owns the tenant -> adapter registry, serializes
// connect attempts per tenant, persists state transitions and supervises
// reconnection. Constructed once in main and passed by reference.
type ConnectionManager struct {
	store       storage.Store
	notifier    Notifier
	factory     AdapterFactory
	processor   MessageProcessor
	sessionsDir string

	mu         sync.Mutex
	adapters   map[string]ChannelAdapter
	pending    map[string]bool
	reconnects map[string]*time.Timer
	closed     bool

	reconnectDelay time.Duration
}

// NewConnectionManager creates the registry, empty.
func NewConnectionManager(store storage.Store, notifier Notifier, factory AdapterFactory, sessionsDir string, reconnectDelay time.Duration) *ConnectionManager {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &ConnectionManager{
		store:          store,
		notifier:       notifier,
		factory:        factory,
		sessionsDir:    sessionsDir,
		adapters:       make(map[string]ChannelAdapter),
		pending:        make(map[string]bool),
		reconnects:     make(map[string]*time.Timer),
		reconnectDelay: reconnectDelay,
	}
}

// SetMessageProcessor wires the inbound-message consumer (call from main
// after constructing the auto-reply engine).
func (m *ConnectionManager) SetMessageProcessor(p MessageProcessor) {
	m.processor = p
}

// Connect starts (or restarts) the channel connection for a tenant.
// Idempotent by tenant: a second call while one is in flight fails fast
// with ErrConnectionInProgress so two adapters can never race into
// existence for the same tenant.
func (m *ConnectionManager) Connect(ctx context.Context, tenantID string) (*ConnectResult, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.New("connection manager is shut down")
	}
	if m.pending[tenantID] {
		m.mu.Unlock()
		return nil, ErrConnectionInProgress
	}
	m.pending[tenantID] = true
	old := m.adapters[tenantID]
	delete(m.adapters, tenantID)
	m.stopReconnectLocked(tenantID)
	m.mu.Unlock()

	// Cleared on every exit path: success, failure, or panic.
	defer func() {
		m.mu.Lock()
		delete(m.pending, tenantID)
		m.mu.Unlock()
	}()

	// At most one adapter per tenant: tear down any survivor first.
	if old != nil {
		old.Close()
	}

	sess, err := m.store.GetSession(tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		sess = &models.WhatsAppSession{
			TenantID:      tenantID,
			PhoneNumber:   models.PhoneNumberPending,
			AuthStatePath: filepath.Join(m.sessionsDir, tenantID+".db"),
		}
	} else if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.AuthStatePath == "" {
		sess.AuthStatePath = filepath.Join(m.sessionsDir, tenantID+".db")
	}

	sess.Status = models.SessionStatusQRPending
	sess.QRCode = ""
	if err := m.store.UpsertSession(sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	adapter := m.factory(tenantID, sess.AuthStatePath)
	events, err := adapter.PairAndConnect(ctx)
	if err != nil {
		logrus.WithField("tenant_id", tenantID).Errorf("[CONNECTION] connect failed: %v", err)
		return nil, fmt.Errorf("pair and connect: %w", err)
	}

	m.mu.Lock()
	m.adapters[tenantID] = adapter
	m.mu.Unlock()

	go m.runEventLoop(tenantID, adapter, events)

	logrus.WithField("tenant_id", tenantID).Info("[CONNECTION] connect attempt started")
	return &ConnectResult{
		Status:      sess.Status,
		PhoneNumber: adapter.PhoneNumber(),
	}, nil
}

// runEventLoop consumes one tenant's events in emission order. It is the
// only goroutine that drives this tenant's state machine, so transitions
// never interleave.
func (m *ConnectionManager) runEventLoop(tenantID string, adapter ChannelAdapter, events <-chan channel.Event) {
	for ev := range events {
		switch ev.Type {
		case channel.EventQR:
			m.handleQR(tenantID, ev.QRCode)
		case channel.EventOpen:
			m.handleOpen(tenantID, ev.PhoneNumber)
		case channel.EventClose:
			m.handleClose(tenantID, adapter, ev.LoggedOut)
		case channel.EventMessage:
			if m.processor != nil {
				m.processor.ProcessIncomingMessage(context.Background(), tenantID, ev.From, ev.Body)
			}
		case channel.EventReceipt:
			m.handleReceipt(tenantID, ev)
		}
	}
}

func (m *ConnectionManager) handleQR(tenantID, code string) {
	sess, err := m.store.GetSession(tenantID)
	if err != nil {
		logrus.WithField("tenant_id", tenantID).Warnf("[CONNECTION] QR for unknown session: %v", err)
		return
	}
	sess.Status = models.SessionStatusQRPending
	sess.QRCode = code
	if err := m.store.UpsertSession(sess); err != nil {
		logrus.WithField("tenant_id", tenantID).Errorf("[CONNECTION] persist QR failed: %v", err)
	}
	m.notifier.EmitQRCode(tenantID, code, QRExpirySeconds)
}

func (m *ConnectionManager) handleOpen(tenantID, phoneNumber string) {
	sess, err := m.store.GetSession(tenantID)
	if err != nil {
		logrus.WithField("tenant_id", tenantID).Warnf("[CONNECTION] open for unknown session: %v", err)
		return
	}
	now := time.Now()
	sess.Status = models.SessionStatusConnected
	if phoneNumber != "" {
		sess.PhoneNumber = phoneNumber
	}
	sess.QRCode = ""
	sess.LastConnectedAt = &now
	if err := m.store.UpsertSession(sess); err != nil {
		logrus.WithField("tenant_id", tenantID).Errorf("[CONNECTION] persist connected failed: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"phone":     sess.PhoneNumber,
	}).Info("[CONNECTION] link open")
	m.notifier.EmitConnectionStatus(tenantID, "connected", sess.PhoneNumber)
}

func (m *ConnectionManager) handleClose(tenantID string, adapter ChannelAdapter, loggedOut bool) {
	m.mu.Lock()
	// Only drop the registry entry if it still points at this adapter;
	// a replacement may already be connecting.
	if m.adapters[tenantID] == adapter {
		delete(m.adapters, tenantID)
	}
	shuttingDown := m.closed
	m.mu.Unlock()

	sess, err := m.store.GetSession(tenantID)
	if err == nil {
		now := time.Now()
		sess.Status = models.SessionStatusDisconnected
		sess.QRCode = ""
		sess.LastDisconnectedAt = &now
		if err := m.store.UpsertSession(sess); err != nil {
			logrus.WithField("tenant_id", tenantID).Errorf("[CONNECTION] persist disconnect failed: %v", err)
		}
	}
	m.notifier.EmitConnectionStatus(tenantID, "disconnected", "")

	adapter.Close()

	if loggedOut || shuttingDown {
		logrus.WithField("tenant_id", tenantID).Info("[CONNECTION] link closed, no reconnect")
		return
	}

	logrus.WithField("tenant_id", tenantID).Infof("[CONNECTION] link dropped, reconnecting in %s", m.reconnectDelay)
	m.scheduleReconnect(tenantID)
}

func (m *ConnectionManager) handleReceipt(tenantID string, ev channel.Event) {
	for _, id := range ev.MessageIDs {
		if err := m.store.UpdateMessageStatus(id, ev.Status); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				logrus.WithField("tenant_id", tenantID).Warnf("[CONNECTION] receipt update failed: %v", err)
			}
			continue
		}
		m.notifier.EmitMessageStatus(tenantID, id, ev.Status)
	}
}

func (m *ConnectionManager) scheduleReconnect(tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.reconnects[tenantID] != nil {
		return
	}
	m.reconnects[tenantID] = time.AfterFunc(m.reconnectDelay, func() {
		m.mu.Lock()
		delete(m.reconnects, tenantID)
		m.mu.Unlock()

		if _, err := m.Connect(context.Background(), tenantID); err != nil && !errors.Is(err, ErrConnectionInProgress) {
			logrus.WithField("tenant_id", tenantID).Warnf("[CONNECTION] reconnect failed: %v", err)
		}
	})
}

func (m *ConnectionManager) stopReconnectLocked(tenantID string) {
	if t := m.reconnects[tenantID]; t != nil {
		t.Stop()
		delete(m.reconnects, tenantID)
	}
}

// Disconnect is the explicit logout path: listeners detached, credential
// blob removed, session persisted DISCONNECTED. No automatic reconnect
// follows; only unplanned drops reconnect. While a connect attempt is in
// flight the logout is rejected, otherwise it would wipe the credential
// container under the attempt and the finished attempt would register a
// live adapter the merchant just asked to sever.
func (m *ConnectionManager) Disconnect(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	if m.pending[tenantID] {
		m.mu.Unlock()
		return ErrConnectionInProgress
	}
	adapter := m.adapters[tenantID]
	delete(m.adapters, tenantID)
	m.stopReconnectLocked(tenantID)
	m.mu.Unlock()

	sess, err := m.store.GetSession(tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	if adapter != nil {
		if err := adapter.Logout(ctx); err != nil {
			logrus.WithField("tenant_id", tenantID).Warnf("[CONNECTION] logout: %v", err)
		}
	} else if err := channel.RemoveAuthState(sess.AuthStatePath); err != nil {
		logrus.WithField("tenant_id", tenantID).Warnf("[CONNECTION] credential cleanup: %v", err)
	}

	now := time.Now()
	sess.Status = models.SessionStatusDisconnected
	sess.QRCode = ""
	sess.LastDisconnectedAt = &now
	if err := m.store.UpsertSession(sess); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	m.notifier.EmitConnectionStatus(tenantID, "disconnected", "")
	logrus.WithField("tenant_id", tenantID).Info("[CONNECTION] logged out")
	return nil
}

// GetStatus reconciles the persisted status with the live registry.
// A session persisted CONNECTED with no live adapter (for example after
// a crash) reports DISCONNECTED, never an error.
func (m *ConnectionManager) GetStatus(tenantID string) (*StatusResult, error) {
	sess, err := m.store.GetSession(tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	adapter := m.adapters[tenantID]
	m.mu.Unlock()

	live := adapter != nil && adapter.IsConnected()
	isOnline := sess.Status == models.SessionStatusConnected && live

	status := sess.Status
	if sess.Status == models.SessionStatusConnected && !live {
		status = models.SessionStatusDisconnected
	}

	result := &StatusResult{
		Status:        status,
		LastConnected: sess.LastConnectedAt,
		IsOnline:      isOnline,
	}
	if sess.PhoneNumber != models.PhoneNumberPending {
		result.PhoneNumber = sess.PhoneNumber
	}
	return result, nil
}

// SendMessage sends a text message over a tenant's live connection.
func (m *ConnectionManager) SendMessage(ctx context.Context, tenantID, to, body string) (string, error) {
	m.mu.Lock()
	adapter := m.adapters[tenantID]
	m.mu.Unlock()

	if adapter == nil {
		return "", channel.ErrChannelUnavailable
	}
	return adapter.Send(ctx, to, body, channel.KindText, "")
}

// ActiveCount reports how many tenants hold a live adapter.
func (m *ConnectionManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.adapters)
}

// ResumeSessions reconnects every tenant whose session is persisted
// CONNECTED but has no live adapter, typically after a restart.
func (m *ConnectionManager) ResumeSessions(ctx context.Context) {
	sessions, err := m.store.GetSessionsByStatus(models.SessionStatusConnected)
	if err != nil {
		logrus.Errorf("[CONNECTION] resume scan failed: %v", err)
		return
	}
	for _, sess := range sessions {
		if _, err := m.Connect(ctx, sess.TenantID); err != nil && !errors.Is(err, ErrConnectionInProgress) {
			logrus.WithField("tenant_id", sess.TenantID).Warnf("[CONNECTION] resume failed: %v", err)
		}
	}
}

// CloseAll tears down every live adapter and cancels pending reconnects.
// Called once at shutdown; the manager accepts no connects afterwards.
func (m *ConnectionManager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	adapters := make([]ChannelAdapter, 0, len(m.adapters))
	for tenantID, adapter := range m.adapters {
		adapters = append(adapters, adapter)
		delete(m.adapters, tenantID)
	}
	for tenantID, t := range m.reconnects {
		t.Stop()
		delete(m.reconnects, tenantID)
	}
	m.mu.Unlock()

	for _, adapter := range adapters {
		adapter.Close()
	}
	logrus.Infof("[CONNECTION] closed %d adapter(s)", len(adapters))
}
