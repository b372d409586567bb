package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/stackpilot/stackpilot/internal/deploy"
	"github.com/stackpilot/stackpilot/internal/models"
	"github.com/stackpilot/stackpilot/internal/validate"
	wshub "github.com/stackpilot/stackpilot/internal/websocket"
)

// submit runs a deployment detached from the triggering request. The
// handler returns the ticket immediately; the outcome is reported only
// through the push channel. Unrelated deployments are deliberately not
// serialized against each other.
func (s *Server) submit(kind models.DeploymentKind, service string, env models.Environment, confirmed bool) (string, error) {
	ticket := uuid.NewString()

	// Prompts never suspend the control-plane path: a pre-confirmed
	// request approves overrides, everything else declines them.
	var prompter validate.Prompter = validate.DeclineAll{}
	if confirmed {
		prompter = validate.AcceptAll{}
	}

	orch := s.newOrchestrator(s.currentConfig(), env, prompter,
		&ticketNotifier{hub: s.hub, ticket: ticket}, deploy.Options{})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		var err error
		switch kind {
		case models.DeploymentKindFull:
			err = orch.DeployAll(ctx)
		case models.DeploymentKindBackend:
			err = orch.DeployBackend(ctx)
		case models.DeploymentKindService:
			err = orch.DeployService(ctx, service)
		default:
			err = fmt.Errorf("unsupported deployment kind %s", kind)
		}
		if err != nil {
			log.Printf("[Server] deployment %s failed: %v", ticket, err)
		}
	}()

	return ticket, nil
}

// ticketNotifier forwards orchestrator events to the push channel,
// stamped with the ticket the trigger response carried.
type ticketNotifier struct {
	hub    *wshub.Hub
	ticket string
}

func (n *ticketNotifier) DeployStarted(kind models.DeploymentKind, service string, recordID uint) {
	n.hub.Broadcast(wshub.EventDeployStart, map[string]interface{}{
		"ticket":       n.ticket,
		"deploymentId": recordID,
		"kind":         kind,
		"service":      service,
	})
}

func (n *ticketNotifier) DeployCompleted(kind models.DeploymentKind, service string, recordID uint, status models.DeploymentStatus, message string) {
	n.hub.Broadcast(wshub.EventDeployComplete, map[string]interface{}{
		"ticket":       n.ticket,
		"deploymentId": recordID,
		"kind":         kind,
		"service":      service,
		"status":       status,
		"message":      message,
	})
}
