package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/niagahub/niaga-backend/internal/handlers"
	"github.com/niagahub/niaga-backend/internal/middleware"
	"github.com/niagahub/niaga-backend/internal/services"
	"github.com/niagahub/niaga-backend/internal/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, store storage.Store, db *gorm.DB, manager *services.ConnectionManager, jwtSecret string) {
	healthHandler := handlers.NewHealthHandler(db, manager)
	whatsappHandler := handlers.NewWhatsAppHandler(store, manager)
	autoReplyHandler := handlers.NewAutoReplyHandler(store)

	app.Get("/", healthHandler.Info)
	app.Get("/health", healthHandler.Health)

	api := app.Group("/api", middleware.RequireTenant(jwtSecret))

	// Connection lifecycle
	whatsapp := api.Group("/whatsapp")
	whatsapp.Post("/connect", whatsappHandler.Connect)
	whatsapp.Post("/disconnect", whatsappHandler.Disconnect)
	whatsapp.Get("/status", whatsappHandler.Status)
	whatsapp.Put("/webhook", whatsappHandler.UpdateWebhook)

	// Auto-reply rules
	rules := api.Group("/auto-replies")
	rules.Post("/", autoReplyHandler.Create)
	rules.Get("/", autoReplyHandler.List)
	rules.Get("/stats", autoReplyHandler.Stats)
	rules.Get("/:id", autoReplyHandler.Get)
	rules.Put("/:id", autoReplyHandler.Update)
	rules.Delete("/:id", autoReplyHandler.Delete)
	rules.Get("/:id/logs", autoReplyHandler.Logs)
}
