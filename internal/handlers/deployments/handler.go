// Package deployments exposes the deploy triggers and the audit log over
// the control-plane HTTP surface.
package deployments

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/stackpilot/stackpilot/internal/history"
	"github.com/stackpilot/stackpilot/internal/models"
	"github.com/stackpilot/stackpilot/pkg/response"
)

// SubmitFunc hands a deployment to the background dispatcher and returns
// its ticket id. The HTTP handler never waits for completion.
type SubmitFunc func(kind models.DeploymentKind, service string, env models.Environment, confirmed bool) (string, error)

// Handler serves the deployment routes.
type Handler struct {
	Store  *history.Store
	Submit SubmitFunc
}

type deployRequest struct {
	Confirm bool `json:"confirm"`
}

// DeployAll triggers a full deployment asynchronously.
func (h *Handler) DeployAll(c *fiber.Ctx) error {
	return h.trigger(c, models.DeploymentKindFull, "")
}

// DeployBackend triggers a backend deployment asynchronously.
func (h *Handler) DeployBackend(c *fiber.Ctx) error {
	return h.trigger(c, models.DeploymentKindBackend, "")
}

// DeployService triggers a single-service deployment asynchronously.
func (h *Handler) DeployService(c *fiber.Ctx) error {
	service := c.Params("name")
	if service == "" {
		return response.BadRequest(c, "service name is required")
	}
	return h.trigger(c, models.DeploymentKindService, service)
}

func (h *Handler) trigger(c *fiber.Ctx, kind models.DeploymentKind, service string) error {
	env, ok := parseEnv(c.Query("env", string(models.EnvironmentDevelopment)))
	if !ok {
		return response.BadRequest(c, "env must be development, stage or production")
	}

	var req deployRequest
	_ = c.BodyParser(&req)
	if env == models.EnvironmentProduction && !req.Confirm {
		return response.BadRequest(c, "production deployments require {\"confirm\": true}")
	}

	ticket, err := h.Submit(kind, service, env, req.Confirm)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	return response.Accepted(c, fiber.Map{
		"ticket":  ticket,
		"kind":    kind,
		"service": service,
		"env":     env,
	})
}

// History returns recorded deployments, most recent first.
func (h *Handler) History(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	env, err := envFilter(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	records, qerr := h.Store.Query(limit, env)
	if qerr != nil {
		return response.InternalServerError(c, qerr.Error())
	}
	return response.Success(c, records)
}

// Stats returns derived deployment statistics.
func (h *Handler) Stats(c *fiber.Ctx) error {
	env, err := envFilter(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	stats, serr := h.Store.Stats(env)
	if serr != nil {
		return response.InternalServerError(c, serr.Error())
	}
	return response.Success(c, stats)
}

func parseEnv(raw string) (models.Environment, bool) {
	return models.ParseEnvironment(raw)
}

func envFilter(c *fiber.Ctx) (*models.Environment, error) {
	raw := c.Query("env")
	if raw == "" {
		return nil, nil
	}
	env, ok := parseEnv(raw)
	if !ok {
		return nil, fiber.NewError(fiber.StatusBadRequest, "env must be development, stage or production")
	}
	return &env, nil
}
