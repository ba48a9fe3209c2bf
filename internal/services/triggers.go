package services

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/niagahub/niaga-backend/internal/models"
)

// EvalContext carries everything a trigger predicate may inspect.
// OrderStatus/PaymentStatus are empty on the plain inbound-message path
// and supplied only by status-transition events.
type EvalContext struct {
	Body          string
	Conversation  *models.Conversation
	OrderStatus   string
	PaymentStatus string
	Now           time.Time
}

// Selection is the outcome of rule evaluation: the first matching rule
// under priority-descending order, plus the keyword that matched when the
// rule is keyword-triggered.
type Selection struct {
	Rule           *models.AutoReplyRule
	MatchedKeyword string
}

// SelectRule picks the rule that fires for this context, or none.
// Pure: no side effects, deterministic for a given rule set and context.
// Priority descends; creation order (ascending ID) breaks ties.
func SelectRule(rules []*models.AutoReplyRule, ec EvalContext) Selection {
	ordered := make([]*models.AutoReplyRule, len(rules))
	copy(ordered, rules)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	for _, rule := range ordered {
		if !rule.IsActive {
			continue
		}
		if matched, keyword := ruleMatches(rule, ec); matched {
			return Selection{Rule: rule, MatchedKeyword: keyword}
		}
	}
	return Selection{}
}

func ruleMatches(rule *models.AutoReplyRule, ec EvalContext) (bool, string) {
	switch rule.TriggerType {
	case models.TriggerTypeWelcome:
		// At most once per conversation, not per message.
		return ec.Conversation != nil && ec.Conversation.WelcomedAt == nil, ""
	case models.TriggerTypeKeyword:
		keyword := FindMatchedKeyword(rule, ec.Body)
		return keyword != "", keyword
	case models.TriggerTypeTimeBased:
		return withinWindow(rule.StartTime, rule.EndTime, ec.Now), ""
	case models.TriggerTypeOrderStatus:
		return ec.OrderStatus != "" && ec.OrderStatus == rule.StatusTrigger, ""
	case models.TriggerTypePaymentStatus:
		return ec.PaymentStatus != "" && ec.PaymentStatus == rule.StatusTrigger, ""
	}
	return false, ""
}

// FindMatchedKeyword returns the first keyword of the rule matching the
// body, under the rule's matchType and case sensitivity. The keyword
// predicate and the match decision share this one code path so the audit
// log can never disagree with the evaluation.
func FindMatchedKeyword(rule *models.AutoReplyRule, body string) string {
	for _, keyword := range rule.KeywordList() {
		if keywordMatches(keyword, body, rule.MatchType, rule.CaseSensitive) {
			return keyword
		}
	}
	return ""
}

func keywordMatches(keyword, body, matchType string, caseSensitive bool) bool {
	if keyword == "" {
		return false
	}
	switch matchType {
	case models.MatchTypeExact:
		if caseSensitive {
			return strings.TrimSpace(body) == keyword
		}
		return strings.EqualFold(strings.TrimSpace(body), keyword)
	case models.MatchTypeRegex:
		pattern := keyword
		if !caseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			// invalid patterns are rejected at rule-create time
			return false
		}
		return re.MatchString(body)
	default: // contains
		if caseSensitive {
			return strings.Contains(body, keyword)
		}
		return strings.Contains(strings.ToLower(body), strings.ToLower(keyword))
	}
}

// withinWindow reports whether now falls inside the [start, end) clock
// window. A window whose end precedes its start wraps past midnight:
// 22:00-06:00 covers 23:30 and 02:00 but not 12:00.
func withinWindow(start, end string, now time.Time) bool {
	s, err := parseClock(start)
	if err != nil {
		return false
	}
	e, err := parseClock(end)
	if err != nil {
		return false
	}

	n := now.Hour()*60 + now.Minute()
	if s <= e {
		return n >= s && n < e
	}
	return n >= s || n < e
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(v string) (int, error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", v)
	}
	return h*60 + m, nil
}
