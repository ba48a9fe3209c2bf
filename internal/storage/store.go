package storage

import (
	"errors"
	"time"

	"github.com/niagahub/niaga-backend/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for storage operations
type Store interface {
	// Session operations
	GetSession(tenantID string) (*models.WhatsAppSession, error)
	GetSessionsByStatus(status string) ([]*models.WhatsAppSession, error)
	UpsertSession(session *models.WhatsAppSession) error
	DeleteSession(tenantID string) error

	// Auto-reply rule operations
	CreateRule(rule *models.AutoReplyRule) error
	GetRule(tenantID string, ruleID uint) (*models.AutoReplyRule, error)
	GetRules(tenantID string) ([]*models.AutoReplyRule, error)
	GetActiveRules(tenantID string) ([]*models.AutoReplyRule, error)
	UpdateRule(rule *models.AutoReplyRule) error
	DeleteRule(tenantID string, ruleID uint) error

	// RecordRuleTrigger writes the audit row and bumps the rule's
	// totalTriggered/lastTriggeredAt in one transaction: both succeed
	// or the trigger is not counted.
	RecordRuleTrigger(log *models.AutoReplyLog) error
	GetRuleLogs(tenantID string, ruleID uint, limit int) ([]*models.AutoReplyLog, error)
	CountTriggersSince(tenantID string, since time.Time) (int64, error)

	// Conversation and contact operations
	GetOrCreateConversation(tenantID, phone string) (*models.Conversation, bool, error)
	GetConversation(id string) (*models.Conversation, error)
	MarkConversationWelcomed(id string, at time.Time) error
	MarkConversationRead(id string) error
	TouchConversation(id string, at time.Time) error
	GetContact(tenantID, phone string) (*models.Contact, error)
	CreateContact(contact *models.Contact) error

	// Message operations
	CreateMessage(msg *models.Message) error
	UpdateMessageStatus(id, status string) error
	GetMessage(id string) (*models.Message, error)
}
