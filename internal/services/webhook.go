package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/niagahub/niaga-backend/internal/storage"
)

// WebhookForwarder pushes inbound messages to a merchant-configured URL,
// signed with the merchant's shared secret. Fire-and-forget: delivery
// failures are logged, never propagated.
type WebhookForwarder struct {
	store  storage.Store
	client *resty.Client
}

// InboundPayload is the body posted to merchant webhooks.
type InboundPayload struct {
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	From           string    `json:"from"`
	Body           string    `json:"body"`
	ReceivedAt     time.Time `json:"received_at"`
}

// NewWebhookForwarder creates a forwarder with modest retries.
func NewWebhookForwarder(store storage.Store) *WebhookForwarder {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)
	return &WebhookForwarder{store: store, client: client}
}

// ForwardInbound delivers one inbound message to the tenant's webhook,
// if one is configured.
func (f *WebhookForwarder) ForwardInbound(tenantID, conversationID, from, body string, receivedAt time.Time) {
	sess, err := f.store.GetSession(tenantID)
	if err != nil || sess.WebhookURL == "" {
		return
	}

	payload, err := json.Marshal(InboundPayload{
		TenantID:       tenantID,
		ConversationID: conversationID,
		From:           from,
		Body:           body,
		ReceivedAt:     receivedAt,
	})
	if err != nil {
		logrus.WithField("tenant_id", tenantID).Warnf("[WEBHOOK] marshal failed: %v", err)
		return
	}

	req := f.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload)
	if sess.WebhookSecret != "" {
		req.SetHeader("X-Niaga-Signature", sign(payload, sess.WebhookSecret))
	}

	resp, err := req.Post(sess.WebhookURL)
	if err != nil {
		logrus.WithField("tenant_id", tenantID).Warnf("[WEBHOOK] forward failed: %v", err)
		return
	}
	if resp.IsError() {
		logrus.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"status":    resp.StatusCode(),
		}).Warn("[WEBHOOK] forward rejected")
	}
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
