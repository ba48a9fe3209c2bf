package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/niagahub/niaga-backend/internal/models"
	"github.com/niagahub/niaga-backend/internal/storage"
)

// MessageSender delivers one message over a tenant's live channel.
// Implemented by the connection manager.
type MessageSender interface {
	SendMessage(ctx context.Context, tenantID, to, body string) (string, error)
}

// AutoReplyService decides, per inbound message, whether and how to
// auto-respond. Failures anywhere in the pipeline are contained here and
// never disturb the connection manager or the inbound stream.
type AutoReplyService struct {
	store     storage.Store
	notifier  Notifier
	sender    MessageSender
	forwarder *WebhookForwarder

	// swapped in tests
	sleep func(time.Duration)
	now   func() time.Time
}

// NewAutoReplyService creates the engine.
func NewAutoReplyService(store storage.Store, notifier Notifier, sender MessageSender, forwarder *WebhookForwarder) *AutoReplyService {
	return &AutoReplyService{
		store:     store,
		notifier:  notifier,
		sender:    sender,
		forwarder: forwarder,
		sleep:     time.Sleep,
		now:       time.Now,
	}
}

// ProcessIncomingMessage runs the full pipeline for one inbound message:
// conversation resolve, contact resolve, rule selection, paced reply,
// audit accounting. Every error is logged and swallowed at this boundary.
func (s *AutoReplyService) ProcessIncomingMessage(ctx context.Context, tenantID, from, body string) {
	log := logrus.WithFields(logrus.Fields{"tenant_id": tenantID, "from": from})

	conv, created, err := s.store.GetOrCreateConversation(tenantID, from)
	if err != nil {
		log.Errorf("[AUTOREPLY] conversation resolve failed: %v", err)
		return
	}
	if created {
		s.notifier.EmitNewConversation(tenantID, conv)
	}

	now := s.now()
	inbound := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		TenantID:       tenantID,
		Direction:      models.MessageDirectionIn,
		Body:           body,
		Status:         models.MessageStatusReceived,
	}
	if err := s.store.CreateMessage(inbound); err != nil {
		log.Errorf("[AUTOREPLY] persist inbound failed: %v", err)
	}
	if err := s.store.TouchConversation(conv.ID, now); err != nil {
		log.Warnf("[AUTOREPLY] conversation touch failed: %v", err)
	}
	s.notifier.EmitNewMessage(tenantID, conv.ID, inbound)

	if s.forwarder != nil {
		go s.forwarder.ForwardInbound(tenantID, conv.ID, from, body, now)
	}

	s.evaluate(ctx, tenantID, conv, from, EvalContext{
		Body:         body,
		Conversation: conv,
		Now:          now,
	}, body)
}

// ProcessStatusEvent feeds order/payment status transitions through the
// same rule pipeline; the status evaluators only ever match here.
func (s *AutoReplyService) ProcessStatusEvent(ctx context.Context, tenantID, contactPhone, triggerType, status string) {
	log := logrus.WithFields(logrus.Fields{"tenant_id": tenantID, "status": status})

	conv, created, err := s.store.GetOrCreateConversation(tenantID, contactPhone)
	if err != nil {
		log.Errorf("[AUTOREPLY] conversation resolve failed: %v", err)
		return
	}
	if created {
		s.notifier.EmitNewConversation(tenantID, conv)
	}

	ec := EvalContext{Conversation: conv, Now: s.now()}
	switch triggerType {
	case models.TriggerTypeOrderStatus:
		ec.OrderStatus = status
	case models.TriggerTypePaymentStatus:
		ec.PaymentStatus = status
	default:
		log.Warnf("[AUTOREPLY] unknown status trigger type %q", triggerType)
		return
	}

	s.evaluate(ctx, tenantID, conv, contactPhone, ec, status)
}

// evaluate runs selection and, on a match, the side-effecting reply step.
func (s *AutoReplyService) evaluate(ctx context.Context, tenantID string, conv *models.Conversation, contactPhone string, ec EvalContext, triggeredBy string) {
	log := logrus.WithFields(logrus.Fields{"tenant_id": tenantID, "conversation_id": conv.ID})

	// No contact means nothing to template: abort this message only.
	contact, err := s.store.GetContact(tenantID, contactPhone)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("[AUTOREPLY] no contact record, skipping")
		return
	}
	if err != nil {
		log.Errorf("[AUTOREPLY] contact lookup failed: %v", err)
		return
	}

	rules, err := s.store.GetActiveRules(tenantID)
	if err != nil {
		log.Errorf("[AUTOREPLY] rule load failed: %v", err)
		return
	}

	sel := SelectRule(rules, ec)
	if sel.Rule == nil {
		return
	}

	s.respond(ctx, tenantID, conv, contact, sel, triggeredBy)
}

func (s *AutoReplyService) respond(ctx context.Context, tenantID string, conv *models.Conversation, contact *models.Contact, sel Selection, triggeredBy string) {
	rule := sel.Rule
	log := logrus.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"rule_id":   rule.ID,
		"rule":      rule.Name,
	})

	response := RenderTemplate(rule.ResponseMessage, contact.Name, contact.Phone)

	// Deliberate pacing: replies read as human when they are not instant.
	if rule.DelaySeconds > 0 {
		s.sleep(time.Duration(rule.DelaySeconds) * time.Second)
	}

	messageID, err := s.sender.SendMessage(ctx, tenantID, contact.Phone, response)
	if err != nil {
		// No stats, no audit row, no fallthrough to lower-priority rules.
		log.Warnf("[AUTOREPLY] send failed: %v", err)
		return
	}

	now := s.now()
	outbound := &models.Message{
		ID:             messageID,
		ConversationID: conv.ID,
		TenantID:       tenantID,
		Direction:      models.MessageDirectionOut,
		Body:           response,
		Status:         models.MessageStatusSent,
	}
	if outbound.ID == "" {
		outbound.ID = uuid.NewString()
	}
	if err := s.store.CreateMessage(outbound); err != nil {
		log.Warnf("[AUTOREPLY] persist reply failed: %v", err)
	}
	s.notifier.EmitNewMessage(tenantID, conv.ID, outbound)

	err = s.store.RecordRuleTrigger(&models.AutoReplyLog{
		RuleID:         rule.ID,
		TenantID:       tenantID,
		ConversationID: conv.ID,
		TriggeredBy:    triggeredBy,
		ResponseSent:   response,
		MatchedKeyword: sel.MatchedKeyword,
		TriggeredAt:    now,
	})
	if err != nil {
		// Persistence failure must not crash the inbound loop; the
		// trigger simply is not counted.
		log.Errorf("[AUTOREPLY] trigger accounting failed: %v", err)
	}

	if rule.TriggerType == models.TriggerTypeWelcome {
		if err := s.store.MarkConversationWelcomed(conv.ID, now); err != nil {
			log.Errorf("[AUTOREPLY] welcome stamp failed: %v", err)
		}
	}

	log.Infof("[AUTOREPLY] replied after %ds delay", rule.DelaySeconds)
}
