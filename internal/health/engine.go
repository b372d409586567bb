// Package health polls container and HTTP-level health for a named set of
// services until all are healthy or a deadline elapses.
package health

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stackpilot/stackpilot/internal/compose"
	"github.com/stackpilot/stackpilot/internal/errs"
	"github.com/stackpilot/stackpilot/internal/models"
)

// ContainerInspector is the slice of the lifecycle adapter the engine
// needs.
type ContainerInspector interface {
	ListContainers(ctx context.Context) ([]models.ContainerSnapshot, error)
	InspectHealth(ctx context.Context, containerName string) (compose.HealthState, error)
}

// Scope names the subset of the stack a verification pass covers. An
// empty Service means the whole project.
type Scope struct {
	Project string

	// Service and DockerIdentity restrict the pass to one service's
	// containers. Containers of untouched services never influence the
	// verdict of a single-service deployment.
	Service        string
	DockerIdentity string

	// Identities are the docker names of every active service, used to
	// claim containers whose explicit dockerName drops the project prefix.
	Identities []string
}

func (s Scope) String() string {
	if s.Service != "" {
		return "service " + s.Service
	}
	return "project " + s.Project
}

// Engine drives the Polling -> {AllHealthy, TimedOut} state machine.
type Engine struct {
	containers ContainerInspector
	interval   time.Duration
}

// New returns an engine polling at the given interval.
func New(containers ContainerInspector, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Engine{containers: containers, interval: interval}
}

// WaitHealthy polls until every container in scope is healthy or the
// deadline elapses; a timeout is fatal for the enclosing deployment and
// returns no later than deadline + one poll interval after entry.
func (e *Engine) WaitHealthy(ctx context.Context, scope Scope, deadline time.Duration) error {
	limit := time.Now().Add(deadline)
	for {
		healthy, reason, err := e.poll(ctx, scope)
		if err != nil {
			return err
		}
		if healthy {
			log.Printf("[Health] %s: all containers healthy", scope)
			return nil
		}
		if time.Now().After(limit) {
			log.Printf("[Health] %s: timed out (%s)", scope, reason)
			return &errs.HealthTimeout{Scope: scope.String(), Deadline: deadline}
		}
		select {
		case <-ctx.Done():
			// An interrupted wait is not a deadline breach.
			return fmt.Errorf("health wait for %s interrupted: %w", scope, ctx.Err())
		case <-time.After(e.interval):
		}
	}
}

// poll runs one cycle and reports whether the scoped set is all-healthy.
func (e *Engine) poll(ctx context.Context, scope Scope) (bool, string, error) {
	snapshots, err := e.containers.ListContainers(ctx)
	if err != nil {
		return false, "", err
	}

	scoped := Filter(snapshots, scope)
	if len(scoped) == 0 {
		// Not yet started; this is not a failure, only not-ready.
		return false, "no containers for scope yet", nil
	}

	for _, snap := range scoped {
		if restartLooping(snap) {
			return false, snap.Name + " is restart-looping", nil
		}
	}

	for _, snap := range scoped {
		verdict, err := e.verdict(ctx, snap)
		if err != nil {
			return false, "", err
		}
		if !verdict.Healthy {
			return false, verdict.Message, nil
		}
	}
	return true, "", nil
}

// Verdicts computes a single-pass health verdict for every container in
// scope, used by the health-check summary and the status endpoint.
func (e *Engine) Verdicts(ctx context.Context, scope Scope) ([]models.HealthVerdict, error) {
	snapshots, err := e.containers.ListContainers(ctx)
	if err != nil {
		return nil, err
	}
	var verdicts []models.HealthVerdict
	for _, snap := range Filter(snapshots, scope) {
		if restartLooping(snap) {
			verdicts = append(verdicts, models.HealthVerdict{
				Service: serviceOf(snap),
				Healthy: false,
				Message: fmt.Sprintf("%s is restart-looping (%s)", snap.Name, snap.StatusText),
			})
			continue
		}
		v, err := e.verdict(ctx, snap)
		if err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}

// verdict folds the tri-state probe into a boolean: with no probe the
// container must be running; with a probe it must report healthy, not
// merely starting.
func (e *Engine) verdict(ctx context.Context, snap models.ContainerSnapshot) (models.HealthVerdict, error) {
	state, err := e.containers.InspectHealth(ctx, snap.Name)
	if err != nil {
		return models.HealthVerdict{}, err
	}

	v := models.HealthVerdict{Service: serviceOf(snap)}
	switch state.ProbeState {
	case models.ProbeNone:
		v.Healthy = state.RuntimeState == "running"
		if v.Healthy {
			v.Message = snap.Name + " is running (no probe configured)"
		} else {
			v.Message = fmt.Sprintf("%s is %s", snap.Name, state.RuntimeState)
		}
	case models.ProbeHealthy:
		v.Healthy = true
		v.Message = snap.Name + " probe reports healthy"
	default:
		v.Message = fmt.Sprintf("%s probe reports %s", snap.Name, state.ProbeState)
	}
	return v, nil
}

// Filter restricts snapshots to the containers the scope claims.
// Containers from unrelated stacks on the same host never influence the
// verdict.
func Filter(snapshots []models.ContainerSnapshot, scope Scope) []models.ContainerSnapshot {
	var scoped []models.ContainerSnapshot
	for _, snap := range snapshots {
		if scope.Service != "" {
			if matchesService(snap, scope) {
				scoped = append(scoped, snap)
			}
			continue
		}
		if matchesProject(snap, scope) {
			scoped = append(scoped, snap)
		}
	}
	return scoped
}

func matchesProject(snap models.ContainerSnapshot, scope Scope) bool {
	if strings.HasPrefix(snap.Name, scope.Project+"-") {
		return true
	}
	for _, identity := range scope.Identities {
		if snap.Name == identity || strings.HasPrefix(snap.Name, identity+"-") {
			return true
		}
	}
	return false
}

func matchesService(snap models.ContainerSnapshot, scope Scope) bool {
	if snap.ServiceName != "" && snap.ServiceName == scope.Service {
		return true
	}
	if scope.DockerIdentity == "" {
		return false
	}
	return snap.Name == scope.DockerIdentity || strings.HasPrefix(snap.Name, scope.DockerIdentity+"-")
}

func restartLooping(snap models.ContainerSnapshot) bool {
	return snap.RuntimeState == "restarting" ||
		strings.Contains(snap.StatusText, "Restarting")
}

func serviceOf(snap models.ContainerSnapshot) string {
	if snap.ServiceName != "" {
		return snap.ServiceName
	}
	return snap.Name
}
