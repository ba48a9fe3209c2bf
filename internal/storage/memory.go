package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/niagahub/niaga-backend/internal/models"
)

// MemoryStore holds all data in memory. Used for tests and local
// development with USE_MEMORY_STORE=true.
type MemoryStore struct {
	sessions      map[string]*models.WhatsAppSession
	rules         map[uint]*models.AutoReplyRule
	logs          []*models.AutoReplyLog
	conversations map[string]*models.Conversation
	contacts      map[string]*models.Contact
	messages      map[string]*models.Message

	sessionMu sync.RWMutex
	ruleMu    sync.RWMutex
	convMu    sync.RWMutex
	msgMu     sync.RWMutex

	ruleCounter    uint
	sessionCounter uint
	logCounter     uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:      make(map[string]*models.WhatsAppSession),
		rules:         make(map[uint]*models.AutoReplyRule),
		conversations: make(map[string]*models.Conversation),
		contacts:      make(map[string]*models.Contact),
		messages:      make(map[string]*models.Message),
	}
}

// Session operations

func (m *MemoryStore) GetSession(tenantID string) (*models.WhatsAppSession, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	sess, exists := m.sessions[tenantID]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *sess
	return &copied, nil
}

func (m *MemoryStore) GetSessionsByStatus(status string) ([]*models.WhatsAppSession, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	var out []*models.WhatsAppSession
	for _, sess := range m.sessions {
		if sess.Status == status {
			copied := *sess
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpsertSession(session *models.WhatsAppSession) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	now := time.Now()
	if existing, ok := m.sessions[session.TenantID]; ok {
		session.ID = existing.ID
		session.CreatedAt = existing.CreatedAt
	} else {
		m.sessionCounter++
		session.ID = m.sessionCounter
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	copied := *session
	m.sessions[session.TenantID] = &copied
	return nil
}

func (m *MemoryStore) DeleteSession(tenantID string) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if _, ok := m.sessions[tenantID]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, tenantID)
	return nil
}

// Auto-reply rule operations

func (m *MemoryStore) CreateRule(rule *models.AutoReplyRule) error {
	m.ruleMu.Lock()
	defer m.ruleMu.Unlock()

	m.ruleCounter++
	rule.ID = m.ruleCounter
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt

	copied := *rule
	m.rules[rule.ID] = &copied
	return nil
}

func (m *MemoryStore) GetRule(tenantID string, ruleID uint) (*models.AutoReplyRule, error) {
	m.ruleMu.RLock()
	defer m.ruleMu.RUnlock()

	rule, ok := m.rules[ruleID]
	if !ok || rule.TenantID != tenantID {
		return nil, ErrNotFound
	}
	copied := *rule
	return &copied, nil
}

func (m *MemoryStore) GetRules(tenantID string) ([]*models.AutoReplyRule, error) {
	m.ruleMu.RLock()
	defer m.ruleMu.RUnlock()
	return m.collectRules(tenantID, false), nil
}

// GetActiveRules returns active rules ordered by priority descending,
// creation order as the stable tie-break.
func (m *MemoryStore) GetActiveRules(tenantID string) ([]*models.AutoReplyRule, error) {
	m.ruleMu.RLock()
	defer m.ruleMu.RUnlock()
	return m.collectRules(tenantID, true), nil
}

func (m *MemoryStore) collectRules(tenantID string, activeOnly bool) []*models.AutoReplyRule {
	var out []*models.AutoReplyRule
	for _, rule := range m.rules {
		if rule.TenantID != tenantID {
			continue
		}
		if activeOnly && !rule.IsActive {
			continue
		}
		copied := *rule
		out = append(out, &copied)
	}
	// IDs are monotonic, so sorting by ID preserves creation order
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

func (m *MemoryStore) UpdateRule(rule *models.AutoReplyRule) error {
	m.ruleMu.Lock()
	defer m.ruleMu.Unlock()

	existing, ok := m.rules[rule.ID]
	if !ok || existing.TenantID != rule.TenantID {
		return ErrNotFound
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()

	copied := *rule
	m.rules[rule.ID] = &copied
	return nil
}

func (m *MemoryStore) DeleteRule(tenantID string, ruleID uint) error {
	m.ruleMu.Lock()
	defer m.ruleMu.Unlock()

	rule, ok := m.rules[ruleID]
	if !ok || rule.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.rules, ruleID)
	return nil
}

func (m *MemoryStore) RecordRuleTrigger(log *models.AutoReplyLog) error {
	m.ruleMu.Lock()
	defer m.ruleMu.Unlock()

	rule, ok := m.rules[log.RuleID]
	if !ok {
		return ErrNotFound
	}

	m.logCounter++
	log.ID = m.logCounter
	log.CreatedAt = time.Now()
	copied := *log
	m.logs = append(m.logs, &copied)

	rule.TotalTriggered++
	at := log.TriggeredAt
	rule.LastTriggeredAt = &at
	rule.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetRuleLogs(tenantID string, ruleID uint, limit int) ([]*models.AutoReplyLog, error) {
	m.ruleMu.RLock()
	defer m.ruleMu.RUnlock()

	var out []*models.AutoReplyLog
	for i := len(m.logs) - 1; i >= 0; i-- {
		log := m.logs[i]
		if log.TenantID != tenantID || log.RuleID != ruleID {
			continue
		}
		copied := *log
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) CountTriggersSince(tenantID string, since time.Time) (int64, error) {
	m.ruleMu.RLock()
	defer m.ruleMu.RUnlock()

	var count int64
	for _, log := range m.logs {
		if log.TenantID == tenantID && !log.TriggeredAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// Conversation and contact operations

func (m *MemoryStore) GetOrCreateConversation(tenantID, phone string) (*models.Conversation, bool, error) {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	for _, conv := range m.conversations {
		if conv.TenantID == tenantID && conv.ContactPhone == phone {
			copied := *conv
			return &copied, false, nil
		}
	}

	now := time.Now()
	conv := &models.Conversation{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		ContactPhone: phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.conversations[conv.ID] = conv

	copied := *conv
	return &copied, true, nil
}

func (m *MemoryStore) GetConversation(id string) (*models.Conversation, error) {
	m.convMu.RLock()
	defer m.convMu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *conv
	return &copied, nil
}

func (m *MemoryStore) MarkConversationWelcomed(id string, at time.Time) error {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	if conv.WelcomedAt == nil {
		conv.WelcomedAt = &at
		conv.UpdatedAt = time.Now()
	}
	return nil
}

func (m *MemoryStore) MarkConversationRead(id string) error {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.UnreadCount = 0
	conv.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) TouchConversation(id string, at time.Time) error {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.LastMessageAt = &at
	conv.UnreadCount++
	conv.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetContact(tenantID, phone string) (*models.Contact, error) {
	m.convMu.RLock()
	defer m.convMu.RUnlock()

	contact, ok := m.contacts[tenantID+"/"+phone]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *contact
	return &copied, nil
}

func (m *MemoryStore) CreateContact(contact *models.Contact) error {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	contact.CreatedAt = time.Now()
	contact.UpdatedAt = contact.CreatedAt
	copied := *contact
	m.contacts[contact.TenantID+"/"+contact.Phone] = &copied
	return nil
}

// Message operations

func (m *MemoryStore) CreateMessage(msg *models.Message) error {
	m.msgMu.Lock()
	defer m.msgMu.Unlock()

	msg.CreatedAt = time.Now()
	msg.UpdatedAt = msg.CreatedAt
	copied := *msg
	m.messages[msg.ID] = &copied
	return nil
}

func (m *MemoryStore) UpdateMessageStatus(id, status string) error {
	m.msgMu.Lock()
	defer m.msgMu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return ErrNotFound
	}
	msg.Status = status
	msg.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetMessage(id string) (*models.Message, error) {
	m.msgMu.RLock()
	defer m.msgMu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *msg
	return &copied, nil
}
