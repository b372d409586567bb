package deploy

import (
	"context"
	"fmt"
	"log"

	"github.com/stackpilot/stackpilot/internal/compose"
	"github.com/stackpilot/stackpilot/internal/errs"
	"github.com/stackpilot/stackpilot/internal/health"
	"github.com/stackpilot/stackpilot/internal/models"
)

// StatusSnapshot is the point-in-time view served by the status command
// and broadcast to connected observers.
type StatusSnapshot struct {
	Project    string                     `json:"project"`
	Target     models.TargetType          `json:"target"`
	Containers []models.ContainerSnapshot `json:"containers"`
	Latest     *models.DeploymentRecord   `json:"latest,omitempty"`
	Stats      models.DeploymentStats     `json:"stats"`
}

// HealthSummary pairs the container-level verdicts with the lenient
// endpoint signal.
type HealthSummary struct {
	Healthy    bool                   `json:"healthy"`
	Containers []models.HealthVerdict `json:"containers"`
	Endpoints  []models.HealthVerdict `json:"endpoints"`
}

// Status derives the current stack view for this project only.
func (o *Orchestrator) Status(ctx context.Context) (*StatusSnapshot, error) {
	snapshots, err := o.inspector.ListContainers(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := &StatusSnapshot{
		Project:    o.cfg.Project.Name,
		Target:     o.cfg.Deployment.Type,
		Containers: health.Filter(snapshots, o.projectScope()),
	}
	if latest, err := o.history.Latest(nil); err == nil {
		snapshot.Latest = latest
	}
	stats, err := o.history.Stats(nil)
	if err != nil {
		return nil, err
	}
	snapshot.Stats = stats
	return snapshot, nil
}

// RunHealthCheck produces the combined container and endpoint summary.
func (o *Orchestrator) RunHealthCheck(ctx context.Context) (*HealthSummary, error) {
	verdicts, err := o.engine.Verdicts(ctx, o.projectScope())
	if err != nil {
		return nil, err
	}
	summary := &HealthSummary{
		Healthy:    len(verdicts) > 0,
		Containers: verdicts,
		Endpoints:  o.endpoints.Check(ctx, o.cfg.ActiveServices()),
	}
	for _, v := range verdicts {
		if !v.Healthy {
			summary.Healthy = false
		}
	}
	return summary, nil
}

// Rollback marks a terminal record rolled back and recreates the stack
// from the tree currently present at the deploy root. Restoring an older
// tree is operator-driven.
func (o *Orchestrator) Rollback(ctx context.Context, id uint) error {
	if id == 0 {
		latest, err := o.history.Latest(nil)
		if err != nil {
			return fmt.Errorf("no deployment to roll back: %w", err)
		}
		id = latest.ID
	}
	if err := o.history.MarkRolledBack(id); err != nil {
		return err
	}
	log.Printf("[Deploy] record %d marked rolled back; recreating stack", id)
	if err := o.client.Up(ctx, "", compose.UpOptions{ForceRecreate: true}); err != nil {
		return err
	}
	return o.verify(ctx, o.projectScope())
}

// RunMigrations executes the migration tool inside the API service
// container. The migration file format itself is out of scope here.
func (o *Orchestrator) RunMigrations(ctx context.Context) error {
	if o.cfg.Paths.Prisma == "" {
		return &errs.ConfigError{Kind: errs.ConfigInvalid, Reason: "paths.prisma is not configured; nothing to migrate"}
	}
	apiService := "api"
	if _, ok := o.cfg.Service(apiService); !ok {
		active := o.cfg.ActiveServiceNames()
		if len(active) == 0 {
			return &errs.ConfigError{Kind: errs.ConfigInvalid, Reason: "no active service to run migrations in"}
		}
		apiService = active[0]
	}
	res, err := o.client.Exec(ctx, apiService, "npx prisma migrate deploy")
	if err != nil {
		return err
	}
	if !res.Ok() {
		return &errs.OperationFailed{Op: "run migrations", ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	log.Printf("[Deploy] migrations applied in service %s", apiService)
	return nil
}
