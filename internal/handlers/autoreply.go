package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/niagahub/niaga-backend/internal/middleware"
	"github.com/niagahub/niaga-backend/internal/models"
	"github.com/niagahub/niaga-backend/internal/services"
	"github.com/niagahub/niaga-backend/internal/storage"
)

// AutoReplyHandler exposes rule CRUD, logs and rolling statistics.
type AutoReplyHandler struct {
	store storage.Store
}

// NewAutoReplyHandler creates a new auto-reply handler
func NewAutoReplyHandler(store storage.Store) *AutoReplyHandler {
	return &AutoReplyHandler{store: store}
}

type ruleRequest struct {
	Name            string   `json:"name"`
	TriggerType     string   `json:"trigger_type"`
	Keywords        []string `json:"keywords"`
	MatchType       string   `json:"match_type"`
	CaseSensitive   bool     `json:"case_sensitive"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	StatusTrigger   string   `json:"status_trigger"`
	ResponseMessage string   `json:"response_message"`
	Priority        int      `json:"priority"`
	DelaySeconds    int      `json:"delay_seconds"`
	IsActive        *bool    `json:"is_active"`
}

func (r *ruleRequest) apply(rule *models.AutoReplyRule) {
	rule.Name = r.Name
	rule.TriggerType = r.TriggerType
	rule.SetKeywords(r.Keywords)
	rule.MatchType = r.MatchType
	rule.CaseSensitive = r.CaseSensitive
	rule.StartTime = r.StartTime
	rule.EndTime = r.EndTime
	rule.StatusTrigger = r.StatusTrigger
	rule.ResponseMessage = r.ResponseMessage
	rule.Priority = r.Priority
	rule.DelaySeconds = r.DelaySeconds
	if r.IsActive != nil {
		rule.IsActive = *r.IsActive
	} else {
		rule.IsActive = true
	}
}

// Create validates and stores a new rule. Merchants see vocabulary and
// pattern errors here, never at message-evaluation time.
func (h *AutoReplyHandler) Create(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)

	var req ruleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid payload",
		})
	}

	rule := &models.AutoReplyRule{TenantID: tenantID}
	req.apply(rule)

	if err := services.ValidateRule(rule); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.store.CreateRule(rule); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create rule",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(rule)
}

// List returns every rule of the tenant, priority order.
func (h *AutoReplyHandler) List(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)

	rules, err := h.store.GetRules(tenantID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load rules",
		})
	}
	return c.JSON(fiber.Map{"rules": rules, "count": len(rules)})
}

// Get returns one rule.
func (h *AutoReplyHandler) Get(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)
	ruleID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid rule id"})
	}

	rule, err := h.store.GetRule(tenantID, uint(ruleID))
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "rule not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load rule"})
	}
	return c.JSON(rule)
}

// Update validates and replaces a rule's configuration.
func (h *AutoReplyHandler) Update(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)
	ruleID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid rule id"})
	}

	rule, err := h.store.GetRule(tenantID, uint(ruleID))
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "rule not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load rule"})
	}

	var req ruleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}
	req.apply(rule)

	if err := services.ValidateRule(rule); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.store.UpdateRule(rule); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update rule"})
	}
	return c.JSON(rule)
}

// Delete removes a rule.
func (h *AutoReplyHandler) Delete(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)
	ruleID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid rule id"})
	}

	err = h.store.DeleteRule(tenantID, uint(ruleID))
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "rule not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete rule"})
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// Logs returns the audit trail of a rule, newest first.
func (h *AutoReplyHandler) Logs(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)
	ruleID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid rule id"})
	}
	limit := c.QueryInt("limit", 50)

	logs, err := h.store.GetRuleLogs(tenantID, uint(ruleID), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load logs"})
	}
	return c.JSON(fiber.Map{"logs": logs, "count": len(logs)})
}

// Stats returns rolling trigger statistics for the tenant.
func (h *AutoReplyHandler) Stats(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)

	rules, err := h.store.GetRules(tenantID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load rules"})
	}

	active := 0
	total := 0
	for _, rule := range rules {
		if rule.IsActive {
			active++
		}
		total += rule.TotalTriggered
	}

	lastWeek, err := h.store.CountTriggersSince(tenantID, time.Now().AddDate(0, 0, -7))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to count triggers"})
	}

	return c.JSON(fiber.Map{
		"rules":             len(rules),
		"active_rules":      active,
		"total_triggered":   total,
		"triggered_last_7d": lastWeek,
	})
}
