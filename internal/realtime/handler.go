package realtime

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/niagahub/niaga-backend/internal/middleware"
)

// Register mounts the websocket endpoint. The handshake authenticates a
// bearer credential from the token query parameter or the auth_token
// cookie; on success the client joins its tenant room, on failure the
// connection is refused before the upgrade.
func Register(app *fiber.App, hub *Hub, jwtSecret string) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		token := c.Query("token")
		if token == "" {
			token = c.Cookies("auth_token")
		}
		claims, err := middleware.ParseToken(token, jwtSecret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or missing token",
			})
		}
		c.Locals("tenant_id", claims.TenantID)
		return c.Next()
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		tenantID, _ := conn.Locals("tenant_id").(string)
		if tenantID == "" {
			conn.Close()
			return
		}

		client := newClient(hub, tenantID, conn)
		hub.Join(tenantRoom(tenantID), client)

		go client.writePump()
		client.readPump()
	}))
}
