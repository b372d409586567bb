// Package configuration serves the project configuration document over
// the control plane.
package configuration

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/stackpilot/stackpilot/internal/config"
	"github.com/stackpilot/stackpilot/pkg/response"
)

// Handler serves the configuration routes.
type Handler struct {
	// Get returns the live configuration; Replace validates and persists
	// a full-document replacement.
	Get     func() *config.ProjectConfig
	Replace func(*config.ProjectConfig) error
}

// Show returns the current configuration document.
func (h *Handler) Show(c *fiber.Ctx) error {
	return response.Success(c, h.Get())
}

// Update validates the submitted document and replaces the configuration
// file in full. Partial updates are not supported.
func (h *Handler) Update(c *fiber.Ctx) error {
	var next config.ProjectConfig
	if err := json.Unmarshal(c.Body(), &next); err != nil {
		return response.BadRequest(c, "invalid configuration document: "+err.Error())
	}
	if err := next.Validate(); err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := h.Replace(&next); err != nil {
		return response.InternalServerError(c, err.Error())
	}
	return response.Success(c, &next)
}
