package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stackpilot/stackpilot/internal/models"
	"github.com/stackpilot/stackpilot/internal/remote"
	"github.com/stackpilot/stackpilot/pkg/utils"
)

const endpointTimeout = 5 * time.Second

// EndpointChecker probes each service's declared HTTP health endpoint
// directly: over the remote shell for remote targets, via a direct
// request locally. Its verdicts are a secondary signal callers may treat
// more leniently than the container-level verdict.
type EndpointChecker struct {
	runner *remote.Runner
	client *http.Client
}

// NewEndpointChecker returns a checker bound to the deployment target.
func NewEndpointChecker(runner *remote.Runner) *EndpointChecker {
	return &EndpointChecker{
		runner: runner,
		client: &http.Client{Timeout: endpointTimeout},
	}
}

// Check probes every service that declares a health endpoint. Services
// without one are skipped entirely.
func (c *EndpointChecker) Check(ctx context.Context, services []models.ServiceDescriptor) []models.HealthVerdict {
	var verdicts []models.HealthVerdict
	for _, svc := range services {
		if svc.HealthEndpoint == nil || *svc.HealthEndpoint == "" {
			continue
		}
		port := utils.PtrValue(svc.Port, 80)
		url := fmt.Sprintf("http://localhost:%d%s", port, normalizePath(*svc.HealthEndpoint))
		verdicts = append(verdicts, c.probe(ctx, svc.Name, url))
	}
	return verdicts
}

func (c *EndpointChecker) probe(ctx context.Context, service, url string) models.HealthVerdict {
	if c.runner.Target().IsRemote() {
		return c.probeRemote(ctx, service, url)
	}
	return c.probeLocal(ctx, service, url)
}

func (c *EndpointChecker) probeLocal(ctx context.Context, service, url string) models.HealthVerdict {
	ctx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return unhealthy(service, err.Error())
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return unhealthy(service, fmt.Sprintf("GET %s: %v", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unhealthy(service, fmt.Sprintf("GET %s returned %d", url, resp.StatusCode))
	}
	return models.HealthVerdict{
		Service: service,
		Healthy: true,
		Message: fmt.Sprintf("GET %s returned %d", url, resp.StatusCode),
	}
}

func (c *EndpointChecker) probeRemote(ctx context.Context, service, url string) models.HealthVerdict {
	command := fmt.Sprintf("curl -fsS -m %d -o /dev/null -w '%%{http_code}' %s",
		int(endpointTimeout.Seconds()), url)
	res, err := c.runner.Run(ctx, command)
	if err != nil {
		return unhealthy(service, err.Error())
	}
	if !res.Ok() {
		return unhealthy(service, fmt.Sprintf("GET %s failed: %s", url, strings.TrimSpace(res.Stderr)))
	}
	return models.HealthVerdict{
		Service: service,
		Healthy: true,
		Message: fmt.Sprintf("GET %s returned %s", url, strings.TrimSpace(res.Stdout)),
	}
}

func unhealthy(service, message string) models.HealthVerdict {
	return models.HealthVerdict{Service: service, Healthy: false, Message: message}
}

func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}
