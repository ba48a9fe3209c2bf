package services

import (
	"errors"
	"testing"

	"github.com/niagahub/niaga-backend/internal/models"
)

func validKeywordRule() *models.AutoReplyRule {
	rule := &models.AutoReplyRule{
		Name:            "greeting",
		TriggerType:     models.TriggerTypeKeyword,
		MatchType:       models.MatchTypeContains,
		ResponseMessage: "halo!",
	}
	rule.SetKeywords([]string{"halo"})
	return rule
}

func TestValidateRuleAcceptsValid(t *testing.T) {
	if err := ValidateRule(validKeywordRule()); err != nil {
		t.Errorf("valid rule rejected: %v", err)
	}
}

func TestValidateRuleRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.AutoReplyRule)
	}{
		{"empty name", func(r *models.AutoReplyRule) { r.Name = "" }},
		{"empty response", func(r *models.AutoReplyRule) { r.ResponseMessage = "" }},
		{"negative delay", func(r *models.AutoReplyRule) { r.DelaySeconds = -1 }},
		{"no keywords", func(r *models.AutoReplyRule) { r.SetKeywords(nil) }},
		{"unknown match type", func(r *models.AutoReplyRule) { r.MatchType = "fuzzy" }},
		{"bad regex", func(r *models.AutoReplyRule) {
			r.MatchType = models.MatchTypeRegex
			r.SetKeywords([]string{"(unclosed"})
		}},
		{"unknown trigger type", func(r *models.AutoReplyRule) { r.TriggerType = "BIRTHDAY" }},
	}
	for _, tc := range cases {
		rule := validKeywordRule()
		tc.mutate(rule)
		err := ValidateRule(rule)
		if err == nil {
			t.Errorf("%s: expected rejection", tc.name)
			continue
		}
		if !errors.Is(err, ErrInvalidRule) {
			t.Errorf("%s: error %v is not ErrInvalidRule", tc.name, err)
		}
	}
}

func TestValidateRuleTimeBased(t *testing.T) {
	rule := &models.AutoReplyRule{
		Name:            "after hours",
		TriggerType:     models.TriggerTypeTimeBased,
		StartTime:       "22:00",
		EndTime:         "06:00",
		ResponseMessage: "we are closed",
	}
	if err := ValidateRule(rule); err != nil {
		t.Errorf("wrapping window rejected: %v", err)
	}

	rule.StartTime = "25:00"
	if err := ValidateRule(rule); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("expected invalid hour rejection, got %v", err)
	}

	rule.StartTime = "22:00"
	rule.EndTime = "6"
	if err := ValidateRule(rule); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("expected malformed clock rejection, got %v", err)
	}
}

func TestValidateRuleStatusVocabulary(t *testing.T) {
	rule := &models.AutoReplyRule{
		Name:            "order done",
		TriggerType:     models.TriggerTypeOrderStatus,
		StatusTrigger:   models.OrderStatusCompleted,
		ResponseMessage: "done!",
	}
	if err := ValidateRule(rule); err != nil {
		t.Errorf("valid order status rejected: %v", err)
	}

	rule.StatusTrigger = "SHIPPED"
	if err := ValidateRule(rule); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("expected unknown order status rejection, got %v", err)
	}

	// payment vocabulary does not leak into order rules
	rule.StatusTrigger = models.PaymentStatusPaid
	if err := ValidateRule(rule); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("expected payment status to be rejected for order trigger, got %v", err)
	}

	pay := &models.AutoReplyRule{
		Name:            "paid",
		TriggerType:     models.TriggerTypePaymentStatus,
		StatusTrigger:   models.PaymentStatusPartial,
		ResponseMessage: "thanks",
	}
	if err := ValidateRule(pay); err != nil {
		t.Errorf("valid payment status rejected: %v", err)
	}
}

func TestValidateRuleWelcomeMinimal(t *testing.T) {
	rule := &models.AutoReplyRule{
		Name:            "welcome",
		TriggerType:     models.TriggerTypeWelcome,
		ResponseMessage: "selamat datang",
	}
	if err := ValidateRule(rule); err != nil {
		t.Errorf("welcome rule rejected: %v", err)
	}
}
