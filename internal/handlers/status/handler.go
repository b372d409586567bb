// Package status serves the read-only stack views: current containers,
// health, declared services and the deployed version marker.
package status

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stackpilot/stackpilot/internal/config"
	"github.com/stackpilot/stackpilot/internal/deploy"
	"github.com/stackpilot/stackpilot/pkg/response"
)

// Handler serves the status routes. Getters keep the handler current
// when the configuration is replaced at runtime.
type Handler struct {
	Cfg func() *config.ProjectConfig
	Ops func() *deploy.Orchestrator
}

// Status returns the project-scoped container snapshot plus history stats.
func (h *Handler) Status(c *fiber.Ctx) error {
	snapshot, err := h.Ops().Status(c.Context())
	if err != nil {
		return response.InternalServerError(c, err.Error())
	}
	return response.Success(c, snapshot)
}

// Health returns the combined container and endpoint health summary.
func (h *Handler) Health(c *fiber.Ctx) error {
	summary, err := h.Ops().RunHealthCheck(c.Context())
	if err != nil {
		return response.InternalServerError(c, err.Error())
	}
	return response.Success(c, summary)
}

// Services lists the declared services in canonical form with their
// docker identities.
func (h *Handler) Services(c *fiber.Ctx) error {
	type serviceView struct {
		Name           string  `json:"name"`
		Enabled        bool    `json:"enabled"`
		DockerIdentity string  `json:"dockerIdentity"`
		HealthEndpoint *string `json:"healthEndpoint,omitempty"`
		Port           *int    `json:"port,omitempty"`
	}
	var views []serviceView
	for _, name := range h.Cfg().Services.Names() {
		desc := h.Cfg().Services.Descriptor(name)
		views = append(views, serviceView{
			Name:           desc.Name,
			Enabled:        desc.Enabled,
			DockerIdentity: h.Cfg().DockerIdentity(desc.Name),
			HealthEndpoint: desc.HealthEndpoint,
			Port:           desc.Port,
		})
	}
	return response.Success(c, views)
}

// Version returns the version marker from the deploy root.
func (h *Handler) Version(c *fiber.Ctx) error {
	marker, err := h.Ops().ReadVersionMarker(c.Context())
	if err != nil {
		return response.NotFound(c, err.Error())
	}
	return response.Success(c, marker)
}
