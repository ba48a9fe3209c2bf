package channel

import "errors"

// ErrChannelUnavailable is returned by Send when no live connection
// exists for the tenant.
var ErrChannelUnavailable = errors.New("channel unavailable: no live connection")

// Event types emitted by an adapter, in emission order, on a single channel.
const (
	EventQR      = "qr"
	EventOpen    = "connection-open"
	EventClose   = "connection-close"
	EventMessage = "message"
	EventReceipt = "receipt"
)

// Message kinds accepted by Send
const (
	KindText  = "text"
	KindImage = "image"
)

// Event is one discrete occurrence on a tenant's channel connection.
type Event struct {
	Type string

	// EventQR: pairing code rendered as a PNG data URI
	QRCode string

	// EventOpen: counterpart-assigned phone number
	PhoneNumber string

	// EventClose: true when the close was caused by a logout rather
	// than a transient drop (logouts are never auto-reconnected)
	LoggedOut bool

	// EventMessage
	From      string
	Body      string
	MessageID string

	// EventReceipt
	Status     string
	MessageIDs []string
}
