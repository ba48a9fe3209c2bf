package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/niagahub/niaga-backend/internal/middleware"
	"github.com/niagahub/niaga-backend/internal/services"
	"github.com/niagahub/niaga-backend/internal/storage"
)

// WhatsAppHandler exposes the tenant connection lifecycle over HTTP.
type WhatsAppHandler struct {
	store   storage.Store
	manager *services.ConnectionManager
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(store storage.Store, manager *services.ConnectionManager) *WhatsAppHandler {
	return &WhatsAppHandler{store: store, manager: manager}
}

// Connect starts pairing/connection for the authenticated tenant.
func (h *WhatsAppHandler) Connect(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)

	result, err := h.manager.Connect(c.Context(), tenantID)
	if errors.Is(err, services.ErrConnectionInProgress) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "a connection attempt is already in progress, try again shortly",
		})
	}
	if err != nil {
		logrus.WithField("tenant_id", tenantID).Errorf("[HTTP] connect failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to start connection",
		})
	}

	return c.JSON(result)
}

// Disconnect performs an explicit logout for the authenticated tenant.
func (h *WhatsAppHandler) Disconnect(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)

	err := h.manager.Disconnect(c.Context(), tenantID)
	if errors.Is(err, services.ErrConnectionInProgress) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "a connection attempt is in progress, try again shortly",
		})
	}
	if errors.Is(err, services.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no session for tenant",
		})
	}
	if err != nil {
		logrus.WithField("tenant_id", tenantID).Errorf("[HTTP] disconnect failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to disconnect",
		})
	}

	return c.JSON(fiber.Map{"status": "disconnected"})
}

// Status reports the reconciled connection status.
func (h *WhatsAppHandler) Status(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)

	status, err := h.manager.GetStatus(tenantID)
	if errors.Is(err, services.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no session for tenant",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load status",
		})
	}

	return c.JSON(status)
}

// UpdateWebhook configures the merchant's inbound-message webhook.
func (h *WhatsAppHandler) UpdateWebhook(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)

	var payload struct {
		URL    string `json:"url"`
		Secret string `json:"secret"`
	}
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid payload",
		})
	}

	sess, err := h.store.GetSession(tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no session for tenant",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load session",
		})
	}

	sess.WebhookURL = payload.URL
	sess.WebhookSecret = payload.Secret
	if err := h.store.UpsertSession(sess); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to save webhook",
		})
	}

	return c.JSON(fiber.Map{"status": "saved"})
}
