package compose

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/docker/cli/cli/connhelper"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/stackpilot/stackpilot/internal/errs"
	"github.com/stackpilot/stackpilot/internal/models"
)

// engineAPI is the slice of the engine client the inspector needs.
type engineAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	Ping(ctx context.Context) (types.Ping, error)
}

// Inspector reads container state through the engine API. Local targets
// use the environment defaults; remote targets tunnel the API over ssh,
// the same transport the mutation path uses. The client is dialed on
// first use so that commands which never touch the runtime never connect.
type Inspector struct {
	target models.DeploymentTarget

	mu  sync.Mutex
	api engineAPI
}

// NewInspector returns an inspector bound to the deployment target.
func NewInspector(target models.DeploymentTarget) *Inspector {
	return &Inspector{target: target}
}

func (i *Inspector) engine() (engineAPI, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.api != nil {
		return i.api, nil
	}
	api, err := dialEngine(i.target)
	if err != nil {
		return nil, &errs.RuntimeUnavailable{Detail: err.Error()}
	}
	i.api = api
	return api, nil
}

func dialEngine(target models.DeploymentTarget) (engineAPI, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if target.IsRemote() {
		helper, err := connhelper.GetConnectionHelperWithSSHOpts("ssh://"+target.SSHDestination(), sshOpts(target))
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			client.WithHTTPClient(&http.Client{Transport: &http.Transport{DialContext: helper.Dialer}}),
			client.WithHost(helper.Host),
			client.WithDialContext(helper.Dialer),
		)
	}
	return client.NewClientWithOpts(opts...)
}

func sshOpts(target models.DeploymentTarget) []string {
	flags := []string{"-o", "BatchMode=yes"}
	if target.KeyPath != "" {
		flags = append(flags, "-i", target.KeyPath)
	}
	return flags
}

// ListContainers returns a snapshot of every container on the target,
// including unrelated stacks; callers filter by project identity.
func (i *Inspector) ListContainers(ctx context.Context) ([]models.ContainerSnapshot, error) {
	api, err := i.engine()
	if err != nil {
		return nil, err
	}
	list, err := api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, classifyEngineError("list containers", err)
	}
	snapshots := make([]models.ContainerSnapshot, 0, len(list))
	for _, c := range list {
		snapshots = append(snapshots, models.ContainerSnapshot{
			Name:         primaryName(c.Names),
			RuntimeState: c.State,
			StatusText:   c.Status,
			ServiceName:  c.Labels["com.docker.compose.service"],
		})
	}
	return snapshots, nil
}

// InspectHealth queries the runtime and probe state of a single container.
func (i *Inspector) InspectHealth(ctx context.Context, containerName string) (HealthState, error) {
	api, err := i.engine()
	if err != nil {
		return HealthState{}, err
	}
	info, err := api.ContainerInspect(ctx, containerName)
	if err != nil {
		return HealthState{}, classifyEngineError("inspect "+containerName, err)
	}
	state := HealthState{ProbeState: models.ProbeNone}
	if info.State == nil {
		return state, nil
	}
	state.RuntimeState = info.State.Status
	if info.State.Health != nil {
		switch info.State.Health.Status {
		case "starting":
			state.ProbeState = models.ProbeStarting
		case "healthy":
			state.ProbeState = models.ProbeHealthy
		case "unhealthy":
			state.ProbeState = models.ProbeUnhealthy
		}
	}
	return state, nil
}

// CheckDaemon verifies the container engine is reachable on the target.
func (i *Inspector) CheckDaemon(ctx context.Context) error {
	api, err := i.engine()
	if err != nil {
		return err
	}
	if _, err := api.Ping(ctx); err != nil {
		return &errs.RuntimeUnavailable{Detail: err.Error()}
	}
	return nil
}

func classifyEngineError(op string, err error) error {
	if client.IsErrConnectionFailed(err) {
		return &errs.RuntimeUnavailable{Detail: err.Error()}
	}
	return &errs.OperationFailed{Op: op, Stderr: err.Error()}
}

// primaryName strips the engine's leading slash from a container name.
func primaryName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}
