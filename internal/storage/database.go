package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/niagahub/niaga-backend/internal/models"
)

// DatabaseStore is the PostgreSQL-backed Store implementation
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a store backed by the given gorm connection
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func translateError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Session operations

func (s *DatabaseStore) GetSession(tenantID string) (*models.WhatsAppSession, error) {
	var sess models.WhatsAppSession
	if err := s.db.Where("tenant_id = ?", tenantID).First(&sess).Error; err != nil {
		return nil, translateError(err)
	}
	return &sess, nil
}

func (s *DatabaseStore) GetSessionsByStatus(status string) ([]*models.WhatsAppSession, error) {
	var sessions []*models.WhatsAppSession
	if err := s.db.Where("status = ?", status).Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *DatabaseStore) UpsertSession(session *models.WhatsAppSession) error {
	var existing models.WhatsAppSession
	err := s.db.Where("tenant_id = ?", session.TenantID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(session).Error
	}
	if err != nil {
		return err
	}
	session.ID = existing.ID
	session.CreatedAt = existing.CreatedAt
	return s.db.Save(session).Error
}

func (s *DatabaseStore) DeleteSession(tenantID string) error {
	res := s.db.Where("tenant_id = ?", tenantID).Delete(&models.WhatsAppSession{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Auto-reply rule operations

func (s *DatabaseStore) CreateRule(rule *models.AutoReplyRule) error {
	return s.db.Create(rule).Error
}

func (s *DatabaseStore) GetRule(tenantID string, ruleID uint) (*models.AutoReplyRule, error) {
	var rule models.AutoReplyRule
	if err := s.db.Where("tenant_id = ? AND id = ?", tenantID, ruleID).First(&rule).Error; err != nil {
		return nil, translateError(err)
	}
	return &rule, nil
}

func (s *DatabaseStore) GetRules(tenantID string) ([]*models.AutoReplyRule, error) {
	var rules []*models.AutoReplyRule
	err := s.db.Where("tenant_id = ?", tenantID).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	return rules, err
}

func (s *DatabaseStore) GetActiveRules(tenantID string) ([]*models.AutoReplyRule, error) {
	var rules []*models.AutoReplyRule
	err := s.db.Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	return rules, err
}

func (s *DatabaseStore) UpdateRule(rule *models.AutoReplyRule) error {
	res := s.db.Model(&models.AutoReplyRule{}).
		Where("tenant_id = ? AND id = ?", rule.TenantID, rule.ID).
		Select("name", "trigger_type", "keywords", "match_type", "case_sensitive",
			"start_time", "end_time", "status_trigger", "response_message",
			"priority", "delay_seconds", "is_active").
		Updates(rule)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DatabaseStore) DeleteRule(tenantID string, ruleID uint) error {
	res := s.db.Where("tenant_id = ? AND id = ?", tenantID, ruleID).Delete(&models.AutoReplyRule{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DatabaseStore) RecordRuleTrigger(log *models.AutoReplyLog) error {
	// The audit row and the counter move together or not at all.
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(log).Error; err != nil {
			return err
		}
		res := tx.Model(&models.AutoReplyRule{}).
			Where("id = ?", log.RuleID).
			UpdateColumns(map[string]interface{}{
				"total_triggered":   gorm.Expr("total_triggered + 1"),
				"last_triggered_at": log.TriggeredAt,
				"updated_at":        time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *DatabaseStore) GetRuleLogs(tenantID string, ruleID uint, limit int) ([]*models.AutoReplyLog, error) {
	var logs []*models.AutoReplyLog
	q := s.db.Where("tenant_id = ? AND rule_id = ?", tenantID, ruleID).
		Order("triggered_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return logs, q.Find(&logs).Error
}

func (s *DatabaseStore) CountTriggersSince(tenantID string, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.AutoReplyLog{}).
		Where("tenant_id = ? AND triggered_at >= ?", tenantID, since).
		Count(&count).Error
	return count, err
}

// Conversation and contact operations

func (s *DatabaseStore) GetOrCreateConversation(tenantID, phone string) (*models.Conversation, bool, error) {
	var conv models.Conversation
	err := s.db.Where("tenant_id = ? AND contact_phone = ?", tenantID, phone).First(&conv).Error
	if err == nil {
		return &conv, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	conv = models.Conversation{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		ContactPhone: phone,
	}
	if err := s.db.Create(&conv).Error; err != nil {
		return nil, false, err
	}
	return &conv, true, nil
}

func (s *DatabaseStore) GetConversation(id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.First(&conv, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &conv, nil
}

func (s *DatabaseStore) MarkConversationWelcomed(id string, at time.Time) error {
	return s.db.Model(&models.Conversation{}).
		Where("id = ? AND welcomed_at IS NULL", id).
		Update("welcomed_at", at).Error
}

func (s *DatabaseStore) MarkConversationRead(id string) error {
	return s.db.Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("unread_count", 0).Error
}

func (s *DatabaseStore) TouchConversation(id string, at time.Time) error {
	return s.db.Model(&models.Conversation{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"last_message_at": at,
			"unread_count":    gorm.Expr("unread_count + 1"),
			"updated_at":      time.Now(),
		}).Error
}

func (s *DatabaseStore) GetContact(tenantID, phone string) (*models.Contact, error) {
	var contact models.Contact
	if err := s.db.Where("tenant_id = ? AND phone = ?", tenantID, phone).First(&contact).Error; err != nil {
		return nil, translateError(err)
	}
	return &contact, nil
}

func (s *DatabaseStore) CreateContact(contact *models.Contact) error {
	return s.db.Create(contact).Error
}

// Message operations

func (s *DatabaseStore) CreateMessage(msg *models.Message) error {
	return s.db.Create(msg).Error
}

func (s *DatabaseStore) UpdateMessageStatus(id, status string) error {
	res := s.db.Model(&models.Message{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DatabaseStore) GetMessage(id string) (*models.Message, error) {
	var msg models.Message
	if err := s.db.First(&msg, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &msg, nil
}
