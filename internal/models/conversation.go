package models

import "time"

// Message direction constants
const (
	MessageDirectionIn  = "incoming"
	MessageDirectionOut = "outgoing"
)

// Message delivery status constants
const (
	MessageStatusReceived  = "received"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
)

// Conversation is one tenant/counterpart thread, get-or-created on the
// first inbound message from an address.
type Conversation struct {
	ID           string `json:"id" gorm:"primaryKey;size:64"`
	TenantID     string `json:"tenant_id" gorm:"index:idx_conversations_tenant_phone,unique;size:64;not null"`
	ContactPhone string `json:"contact_phone" gorm:"index:idx_conversations_tenant_phone,unique;size:32;not null"`

	// WelcomedAt is set once, when a WELCOME rule reply is sent.
	WelcomedAt *time.Time `json:"welcomed_at"`

	LastMessageAt *time.Time `json:"last_message_at"`
	UnreadCount   int        `json:"unread_count" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// Contact is the merchant's customer record. Template rendering needs it;
// a missing contact aborts auto-reply processing for that message only.
type Contact struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	TenantID string `json:"tenant_id" gorm:"index:idx_contacts_tenant_phone,unique;size:64;not null"`
	Phone    string `json:"phone" gorm:"index:idx_contacts_tenant_phone,unique;size:32;not null"`
	Name     string `json:"name" gorm:"size:120"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Contact
func (Contact) TableName() string {
	return "contacts"
}

// Message is a persisted inbound or outbound chat message.
type Message struct {
	ID             string    `json:"id" gorm:"primaryKey;size:64"`
	ConversationID string    `json:"conversation_id" gorm:"index;size:64;not null"`
	TenantID       string    `json:"tenant_id" gorm:"index;size:64;not null"`
	Direction      string    `json:"direction" gorm:"size:10;not null"`
	Body           string    `json:"body" gorm:"type:text"`
	Status         string    `json:"status" gorm:"size:12;default:'received'"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for Message
func (Message) TableName() string {
	return "messages"
}
