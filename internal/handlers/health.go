package handlers

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/niagahub/niaga-backend/internal/services"
)

// HealthHandler reports service and database health.
type HealthHandler struct {
	db      *gorm.DB
	manager *services.ConnectionManager
}

// NewHealthHandler creates a new health handler. db may be nil when the
// memory store is in use.
func NewHealthHandler(db *gorm.DB, manager *services.ConnectionManager) *HealthHandler {
	return &HealthHandler{db: db, manager: manager}
}

// Info is the root service-description endpoint.
func (h *HealthHandler) Info(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "Niaga Messaging Backend",
		"version": "1.0.0",
		"status":  "healthy",
		"storage": storageType(),
		"connections": fiber.Map{
			"active": h.manager.ActiveCount(),
		},
	})
}

// Health is the monitoring endpoint; 503 when the database is down.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	status := "healthy"
	statusCode := fiber.StatusOK
	dbHealthy := true

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err != nil || sqlDB.Ping() != nil {
			status = "unhealthy"
			statusCode = fiber.StatusServiceUnavailable
			dbHealthy = false
		}
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status": status,
		"services": fiber.Map{
			"database":           dbHealthy,
			"active_connections": h.manager.ActiveCount(),
		},
	})
}

func storageType() string {
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		return "In-Memory (Testing)"
	}
	return "PostgreSQL Database"
}
