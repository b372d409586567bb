package websocket

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/stackpilot/stackpilot/pkg/utils"
)

// UpgradeMiddleware checks if the request is a WebSocket upgrade request
func UpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handler registers the connection with the hub and keeps it open until
// the observer goes away. Observers only listen; inbound frames are
// drained and discarded.
func Handler(hub *Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		client := &Client{Conn: conn, ID: utils.GenerateShortID()}
		hub.Register(client)
		defer hub.Unregister(client)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
