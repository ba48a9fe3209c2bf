package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Trigger type constants
const (
	TriggerTypeWelcome       = "WELCOME"
	TriggerTypeKeyword       = "KEYWORD"
	TriggerTypeTimeBased     = "TIME_BASED"
	TriggerTypeOrderStatus   = "ORDER_STATUS"
	TriggerTypePaymentStatus = "PAYMENT_STATUS"
)

// Keyword match type constants. An empty match type means MatchTypeContains.
const (
	MatchTypeContains = "contains"
	MatchTypeExact    = "exact"
	MatchTypeRegex    = "regex"
)

// Status vocabularies for ORDER_STATUS / PAYMENT_STATUS triggers.
// A rule with a status outside its type's vocabulary is rejected at
// create/update time, never at evaluation time.
const (
	OrderStatusPending    = "PENDING"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusCancelled  = "CANCELLED"

	PaymentStatusPaid    = "PAID"
	PaymentStatusPartial = "PARTIAL"
	PaymentStatusFailed  = "FAILED"
)

// AutoReplyRule is a merchant-configured trigger/response pair.
// Rules are evaluated priority-descending, first match wins.
type AutoReplyRule struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	TenantID string `json:"tenant_id" gorm:"index;size:64;not null"`
	Name     string `json:"name" gorm:"size:120;not null"`

	TriggerType string `json:"trigger_type" gorm:"size:20;not null"`

	// KEYWORD trigger configuration
	Keywords      datatypes.JSON `json:"keywords,omitempty" gorm:"type:jsonb"`
	MatchType     string         `json:"match_type" gorm:"size:20;default:'contains'"`
	CaseSensitive bool           `json:"case_sensitive" gorm:"default:false"`

	// TIME_BASED trigger window ("HH:MM", may wrap past midnight).
	// The rule fires when the current time falls inside this window.
	StartTime string `json:"start_time,omitempty" gorm:"size:5"`
	EndTime   string `json:"end_time,omitempty" gorm:"size:5"`

	// ORDER_STATUS / PAYMENT_STATUS trigger configuration
	StatusTrigger string `json:"status_trigger,omitempty" gorm:"size:20"`

	// ResponseMessage supports {{name}} and {{phone}} placeholders
	ResponseMessage string `json:"response_message" gorm:"type:text;not null"`

	Priority     int  `json:"priority" gorm:"default:0"`
	DelaySeconds int  `json:"delay_seconds" gorm:"default:0"`
	IsActive     bool `json:"is_active" gorm:"default:true"`

	// Rolling statistics, written only by the auto-reply engine and only
	// together with an AutoReplyLog row.
	TotalTriggered  int        `json:"total_triggered" gorm:"default:0"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for AutoReplyRule
func (AutoReplyRule) TableName() string {
	return "auto_reply_rules"
}

// KeywordList decodes the JSON keywords column.
func (r *AutoReplyRule) KeywordList() []string {
	if len(r.Keywords) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(r.Keywords, &out); err != nil {
		return nil
	}
	return out
}

// SetKeywords encodes words into the JSON keywords column.
func (r *AutoReplyRule) SetKeywords(words []string) {
	b, _ := json.Marshal(words)
	r.Keywords = datatypes.JSON(b)
}

// AutoReplyLog is the append-only audit trail of triggered rules.
type AutoReplyLog struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	RuleID         uint      `json:"rule_id" gorm:"index;not null"`
	TenantID       string    `json:"tenant_id" gorm:"index;size:64;not null"`
	ConversationID string    `json:"conversation_id" gorm:"index;size:64"`
	TriggeredBy    string    `json:"triggered_by_message" gorm:"type:text"`
	ResponseSent   string    `json:"response_sent" gorm:"type:text"`
	MatchedKeyword string    `json:"matched_keyword,omitempty" gorm:"size:120"`
	TriggeredAt    time.Time `json:"triggered_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName specifies the table name for AutoReplyLog
func (AutoReplyLog) TableName() string {
	return "auto_reply_logs"
}
