// Package server assembles the control-plane HTTP surface, the push
// channel and the background deploy dispatcher.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/stackpilot/stackpilot/internal/config"
	"github.com/stackpilot/stackpilot/internal/deploy"
	"github.com/stackpilot/stackpilot/internal/handlers/configuration"
	"github.com/stackpilot/stackpilot/internal/handlers/deployments"
	"github.com/stackpilot/stackpilot/internal/handlers/status"
	"github.com/stackpilot/stackpilot/internal/history"
	"github.com/stackpilot/stackpilot/internal/models"
	"github.com/stackpilot/stackpilot/internal/routes"
	"github.com/stackpilot/stackpilot/internal/validate"
	wshub "github.com/stackpilot/stackpilot/internal/websocket"
	"github.com/stackpilot/stackpilot/pkg/response"
)

// Server owns the fiber app, the broadcast hub and the poll timer for its
// whole lifetime.
type Server struct {
	app      *fiber.App
	hub      *wshub.Hub
	settings *config.Settings
	store    *history.Store
	root     string

	mu  sync.RWMutex
	cfg *config.ProjectConfig
	// ops serves the read-only endpoints and the poll timer; rebuilt when
	// the configuration is replaced.
	ops *deploy.Orchestrator

	stopPolling context.CancelFunc
}

// New wires the control-plane server. root is the local project directory.
func New(cfg *config.ProjectConfig, settings *config.Settings, store *history.Store, root string) *Server {
	s := &Server{
		hub:      wshub.NewHub(),
		settings: settings,
		store:    store,
		root:     root,
		cfg:      cfg,
	}
	s.ops = s.newOrchestrator(cfg, models.EnvironmentDevelopment, validate.DeclineAll{}, nil, deploy.Options{})

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: settings.CorsOrigins,
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	routes.Setup(app, routes.Deps{
		Deployments: &deployments.Handler{
			Store:  store,
			Submit: s.submit,
		},
		Status: &status.Handler{Cfg: s.currentConfig, Ops: s.currentOps},
		Configuration: &configuration.Handler{
			Get:     s.currentConfig,
			Replace: s.replaceConfig,
		},
		Hub: s.hub,
	})

	s.app = app
	return s
}

// Listen starts the status poll timer and serves until Shutdown.
func (s *Server) Listen() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopPolling = cancel
	go s.pollStatus(ctx)

	log.Printf("[Server] control plane listening on port %s", s.settings.Port)
	return s.app.Listen(":" + s.settings.Port)
}

// Shutdown tears the server and the hub down.
func (s *Server) Shutdown() error {
	if s.stopPolling != nil {
		s.stopPolling()
	}
	s.hub.Close()
	return s.app.Shutdown()
}

func (s *Server) currentConfig() *config.ProjectConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Server) currentOps() *deploy.Orchestrator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops
}

func (s *Server) replaceConfig(next *config.ProjectConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next.Source = s.cfg.Source
	if err := next.Save(); err != nil {
		return err
	}
	s.cfg = next
	s.ops = s.newOrchestrator(next, models.EnvironmentDevelopment, validate.DeclineAll{}, nil, deploy.Options{})
	return nil
}

func (s *Server) newOrchestrator(cfg *config.ProjectConfig, env models.Environment, prompter validate.Prompter, notifier deploy.Notifier, opts deploy.Options) *deploy.Orchestrator {
	return deploy.New(cfg, s.settings, env, s.root, s.store, prompter, notifier, opts)
}

// pollStatus periodically broadcasts a status snapshot. The tick is a
// no-op while no observers are connected.
func (s *Server) pollStatus(ctx context.Context) {
	ticker := time.NewTicker(s.settings.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.hub.HasObservers() {
				continue
			}
			snapCtx, cancel := context.WithTimeout(ctx, s.settings.PollInterval)
			snapshot, err := s.currentOps().Status(snapCtx)
			cancel()
			if err != nil {
				log.Printf("[Server] status poll failed: %v", err)
				continue
			}
			s.hub.Broadcast(wshub.EventStatusUpdate, snapshot)
		}
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(response.Response{
		Success: false,
		Error:   err.Error(),
	})
}
