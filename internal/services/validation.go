package services

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/niagahub/niaga-backend/internal/models"
)

// ErrInvalidRule wraps every rule validation failure so handlers can map
// the whole class to a 400.
var ErrInvalidRule = errors.New("invalid auto-reply rule")

var orderStatusVocabulary = map[string]bool{
	models.OrderStatusPending:    true,
	models.OrderStatusProcessing: true,
	models.OrderStatusCompleted:  true,
	models.OrderStatusCancelled:  true,
}

var paymentStatusVocabulary = map[string]bool{
	models.PaymentStatusPaid:    true,
	models.PaymentStatusPartial: true,
	models.PaymentStatusFailed:  true,
}

// ValidateRule enforces everything merchants may only get wrong at
// create/update time. Evaluation assumes rules that pass here.
func ValidateRule(rule *models.AutoReplyRule) error {
	if rule.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if rule.ResponseMessage == "" {
		return fmt.Errorf("%w: response message is required", ErrInvalidRule)
	}
	if rule.DelaySeconds < 0 {
		return fmt.Errorf("%w: delay seconds cannot be negative", ErrInvalidRule)
	}

	switch rule.TriggerType {
	case models.TriggerTypeWelcome:
		return nil

	case models.TriggerTypeKeyword:
		keywords := rule.KeywordList()
		if len(keywords) == 0 {
			return fmt.Errorf("%w: keyword trigger needs at least one keyword", ErrInvalidRule)
		}
		switch rule.MatchType {
		case "", models.MatchTypeContains, models.MatchTypeExact:
		case models.MatchTypeRegex:
			for _, keyword := range keywords {
				if _, err := regexp.Compile(keyword); err != nil {
					return fmt.Errorf("%w: bad pattern %q: %v", ErrInvalidRule, keyword, err)
				}
			}
		default:
			return fmt.Errorf("%w: unknown match type %q", ErrInvalidRule, rule.MatchType)
		}
		return nil

	case models.TriggerTypeTimeBased:
		if _, err := parseClock(rule.StartTime); err != nil {
			return fmt.Errorf("%w: start time: %v", ErrInvalidRule, err)
		}
		if _, err := parseClock(rule.EndTime); err != nil {
			return fmt.Errorf("%w: end time: %v", ErrInvalidRule, err)
		}
		return nil

	case models.TriggerTypeOrderStatus:
		if !orderStatusVocabulary[rule.StatusTrigger] {
			return fmt.Errorf("%w: %q is not a valid order status", ErrInvalidRule, rule.StatusTrigger)
		}
		return nil

	case models.TriggerTypePaymentStatus:
		if !paymentStatusVocabulary[rule.StatusTrigger] {
			return fmt.Errorf("%w: %q is not a valid payment status", ErrInvalidRule, rule.StatusTrigger)
		}
		return nil
	}

	return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidRule, rule.TriggerType)
}
