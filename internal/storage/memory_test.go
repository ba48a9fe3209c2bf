package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/niagahub/niaga-backend/internal/models"
)

func TestSessionLifecycleRoundTrip(t *testing.T) {
	store := NewMemoryStore()

	if _, err := store.GetSession("tenant-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing session, got %v", err)
	}

	sess := &models.WhatsAppSession{
		TenantID:    "tenant-1",
		PhoneNumber: models.PhoneNumberPending,
		Status:      models.SessionStatusQRPending,
		QRCode:      "data:image/png;base64,QQ==",
	}
	if err := store.UpsertSession(sess); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	sess.Status = models.SessionStatusConnected
	sess.PhoneNumber = "628123"
	sess.QRCode = ""
	if err := store.UpsertSession(sess); err != nil {
		t.Fatalf("upsert connected: %v", err)
	}

	sess.Status = models.SessionStatusDisconnected
	if err := store.UpsertSession(sess); err != nil {
		t.Fatalf("upsert disconnected: %v", err)
	}

	got, err := store.GetSession("tenant-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.SessionStatusDisconnected {
		t.Errorf("status = %q, want DISCONNECTED", got.Status)
	}
	// the paired number survives the disconnect
	if got.PhoneNumber != "628123" {
		t.Errorf("phone = %q, want 628123", got.PhoneNumber)
	}

	byStatus, err := store.GetSessionsByStatus(models.SessionStatusDisconnected)
	if err != nil {
		t.Fatalf("by status: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].TenantID != "tenant-1" {
		t.Errorf("by status returned %d sessions", len(byStatus))
	}

	if err := store.DeleteSession("tenant-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetSession("tenant-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("session still readable after delete, err %v", err)
	}
}

func TestGetActiveRulesOrdering(t *testing.T) {
	store := NewMemoryStore()

	mk := func(name string, priority int, active bool) *models.AutoReplyRule {
		rule := &models.AutoReplyRule{
			TenantID:        "tenant-1",
			Name:            name,
			TriggerType:     models.TriggerTypeKeyword,
			ResponseMessage: "r",
			Priority:        priority,
			IsActive:        active,
		}
		rule.SetKeywords([]string{"x"})
		if err := store.CreateRule(rule); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		return rule
	}

	mk("low", 1, true)
	mk("high", 10, true)
	mk("disabled", 99, false)
	mk("high-too", 10, true)
	mk("other tenant", 50, true).TenantID = "tenant-2"

	rules, err := store.GetActiveRules("tenant-1")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("got %d rules, want 3", len(rules))
	}
	if rules[0].Name != "high" || rules[1].Name != "high-too" || rules[2].Name != "low" {
		t.Errorf("wrong order: %s, %s, %s", rules[0].Name, rules[1].Name, rules[2].Name)
	}
}

func TestRuleTenantIsolation(t *testing.T) {
	store := NewMemoryStore()

	rule := &models.AutoReplyRule{
		TenantID:        "tenant-1",
		Name:            "mine",
		TriggerType:     models.TriggerTypeWelcome,
		ResponseMessage: "hi",
		IsActive:        true,
	}
	if err := store.CreateRule(rule); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.GetRule("tenant-2", rule.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant read succeeded, err %v", err)
	}
	if err := store.DeleteRule("tenant-2", rule.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant delete succeeded, err %v", err)
	}
	if _, err := store.GetRule("tenant-1", rule.ID); err != nil {
		t.Errorf("owner read failed: %v", err)
	}
}

func TestRecordRuleTrigger(t *testing.T) {
	store := NewMemoryStore()

	rule := &models.AutoReplyRule{
		TenantID:        "tenant-1",
		Name:            "greeting",
		TriggerType:     models.TriggerTypeWelcome,
		ResponseMessage: "hi",
		IsActive:        true,
	}
	if err := store.CreateRule(rule); err != nil {
		t.Fatalf("create: %v", err)
	}

	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := store.RecordRuleTrigger(&models.AutoReplyLog{
			RuleID:         rule.ID,
			TenantID:       "tenant-1",
			ConversationID: "c1",
			TriggeredBy:    "halo",
			ResponseSent:   "hi",
			TriggeredAt:    at.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	got, err := store.GetRule("tenant-1", rule.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.TotalTriggered != 3 {
		t.Errorf("TotalTriggered = %d, want 3", got.TotalTriggered)
	}
	if got.LastTriggeredAt == nil || !got.LastTriggeredAt.Equal(at.Add(2*time.Minute)) {
		t.Errorf("LastTriggeredAt = %v", got.LastTriggeredAt)
	}

	logs, err := store.GetRuleLogs("tenant-1", rule.ID, 2)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d logs with limit 2", len(logs))
	}
	// newest first
	if !logs[0].TriggeredAt.After(logs[1].TriggeredAt) {
		t.Error("logs not newest-first")
	}

	count, err := store.CountTriggersSince("tenant-1", at.Add(time.Minute))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("count since = %d, want 2", count)
	}

	if err := store.RecordRuleTrigger(&models.AutoReplyLog{RuleID: 999, TenantID: "tenant-1"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("trigger for missing rule: %v", err)
	}
}

func TestGetOrCreateConversation(t *testing.T) {
	store := NewMemoryStore()

	conv, created, err := store.GetOrCreateConversation("tenant-1", "628111")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created || conv.ID == "" {
		t.Fatalf("expected fresh conversation, created=%v id=%q", created, conv.ID)
	}

	again, created, err := store.GetOrCreateConversation("tenant-1", "628111")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if created || again.ID != conv.ID {
		t.Errorf("expected same conversation back, created=%v", created)
	}

	other, created, err := store.GetOrCreateConversation("tenant-2", "628111")
	if err != nil {
		t.Fatalf("other tenant: %v", err)
	}
	if !created || other.ID == conv.ID {
		t.Error("same phone under another tenant must be a separate conversation")
	}
}

func TestMarkConversationWelcomedKeepsFirstStamp(t *testing.T) {
	store := NewMemoryStore()

	conv, _, err := store.GetOrCreateConversation("tenant-1", "628111")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	if err := store.MarkConversationWelcomed(conv.ID, first); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := store.MarkConversationWelcomed(conv.ID, first.Add(time.Hour)); err != nil {
		t.Fatalf("second mark: %v", err)
	}

	got, err := store.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.WelcomedAt == nil || !got.WelcomedAt.Equal(first) {
		t.Errorf("WelcomedAt = %v, want the first stamp", got.WelcomedAt)
	}
}

func TestConversationUnreadCounting(t *testing.T) {
	store := NewMemoryStore()

	conv, _, err := store.GetOrCreateConversation("tenant-1", "628111")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	at := time.Now()
	for i := 0; i < 3; i++ {
		if err := store.TouchConversation(conv.ID, at); err != nil {
			t.Fatalf("touch: %v", err)
		}
	}

	got, _ := store.GetConversation(conv.ID)
	if got.UnreadCount != 3 {
		t.Errorf("UnreadCount = %d, want 3", got.UnreadCount)
	}
	if got.LastMessageAt == nil {
		t.Error("LastMessageAt not stamped")
	}

	if err := store.MarkConversationRead(conv.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	got, _ = store.GetConversation(conv.ID)
	if got.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d after mark-as-read", got.UnreadCount)
	}
}

func TestMessageStatusUpdates(t *testing.T) {
	store := NewMemoryStore()

	msg := &models.Message{
		ID:             "wamid-1",
		ConversationID: "c1",
		TenantID:       "tenant-1",
		Direction:      models.MessageDirectionOut,
		Body:           "halo",
		Status:         models.MessageStatusSent,
	}
	if err := store.CreateMessage(msg); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.UpdateMessageStatus("wamid-1", models.MessageStatusDelivered); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.GetMessage("wamid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.MessageStatusDelivered {
		t.Errorf("status = %q, want delivered", got.Status)
	}

	if err := store.UpdateMessageStatus("wamid-unknown", models.MessageStatusRead); !errors.Is(err, ErrNotFound) {
		t.Errorf("update of unknown message: %v", err)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()

	rule := &models.AutoReplyRule{
		TenantID:        "tenant-1",
		Name:            "greeting",
		TriggerType:     models.TriggerTypeWelcome,
		ResponseMessage: "hi",
		IsActive:        true,
	}
	if err := store.CreateRule(rule); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := store.GetRule("tenant-1", rule.ID)
	got.Name = "mutated"

	again, _ := store.GetRule("tenant-1", rule.ID)
	if again.Name != "greeting" {
		t.Error("mutating a returned rule leaked into the store")
	}
}
