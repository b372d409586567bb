package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/stackpilot/stackpilot/internal/handlers/configuration"
	"github.com/stackpilot/stackpilot/internal/handlers/deployments"
	"github.com/stackpilot/stackpilot/internal/handlers/status"
	wshandler "github.com/stackpilot/stackpilot/internal/websocket"
)

// Deps carries the wired handlers into route registration.
type Deps struct {
	Deployments   *deployments.Handler
	Status        *status.Handler
	Configuration *configuration.Handler
	Hub           *wshandler.Hub
}

// Setup registers the control-plane surface.
func Setup(app *fiber.App, deps Deps) {
	// Push channel
	app.Use("/socket", wshandler.UpgradeMiddleware)
	app.Get("/socket", websocket.New(wshandler.Handler(deps.Hub)))

	// Configuration
	app.Get("/config", deps.Configuration.Show)
	app.Put("/config", deps.Configuration.Update)

	// Stack views
	app.Get("/status", deps.Status.Status)
	app.Get("/health", deps.Status.Health)
	app.Get("/services", deps.Status.Services)
	app.Get("/version", deps.Status.Version)

	// Deployments
	deploy := app.Group("/deploy")
	{
		deploy.Post("/all", deps.Deployments.DeployAll)
		deploy.Post("/backend", deps.Deployments.DeployBackend)
		deploy.Post("/service/:name", deps.Deployments.DeployService)
	}

	// Audit log
	app.Get("/history", deps.Deployments.History)
	app.Get("/stats", deps.Deployments.Stats)
}
