package models

import "time"

// Session status constants
const (
	SessionStatusQRPending    = "QR_PENDING"
	SessionStatusConnected    = "CONNECTED"
	SessionStatusDisconnected = "DISCONNECTED"
)

// PhoneNumberPending is kept on the session until the network reports
// the paired phone number.
const PhoneNumberPending = "pending"

// WhatsAppSession is the durable pairing/link record for one tenant.
// The connection manager is the only writer of Status, PhoneNumber and QRCode.
type WhatsAppSession struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	TenantID string `json:"tenant_id" gorm:"uniqueIndex;size:64;not null"`
	Status   string `json:"status" gorm:"size:20;default:'QR_PENDING'"`

	// PhoneNumber is the counterpart-assigned number, "pending" until known
	PhoneNumber string `json:"phone_number" gorm:"size:32;default:'pending'"`

	// QRCode holds the current pairing code as a PNG data URI, only while QR_PENDING
	QRCode string `json:"qr_code,omitempty" gorm:"type:text"`

	// AuthStatePath locates the channel's local credential container.
	// The file is removed only on explicit logout, never on transient drops.
	AuthStatePath string `json:"-" gorm:"size:255"`

	// Optional merchant webhook for inbound message forwarding
	WebhookURL    string `json:"webhook_url,omitempty" gorm:"size:255"`
	WebhookSecret string `json:"-" gorm:"size:128"`

	LastConnectedAt    *time.Time `json:"last_connected_at"`
	LastDisconnectedAt *time.Time `json:"last_disconnected_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for WhatsAppSession
func (WhatsAppSession) TableName() string {
	return "whatsapp_sessions"
}
