// Package compose drives the container runtime. Stack mutations go
// through the compose CLI via the remote execution adapter, so local and
// remote targets share one code path; container state is read through the
// engine API (see Inspector).
package compose

import (
	"context"
	"strings"

	"github.com/stackpilot/stackpilot/internal/errs"
	"github.com/stackpilot/stackpilot/internal/models"
	"github.com/stackpilot/stackpilot/internal/remote"
	"github.com/stackpilot/stackpilot/pkg/utils"
)

// Runner is the command surface the adapter needs.
type Runner interface {
	Run(ctx context.Context, command string) (remote.Result, error)
}

// Client manages one compose stack at a deploy root.
type Client struct {
	runner      Runner
	projectName string
	composeFile string
	workDir     string
}

// New returns a client for the stack declared at workDir.
func New(runner Runner, projectName, composeFile, workDir string) *Client {
	return &Client{
		runner:      runner,
		projectName: projectName,
		composeFile: composeFile,
		workDir:     workDir,
	}
}

// UpOptions control how a stack or service is brought up.
type UpOptions struct {
	Build         bool
	ForceRecreate bool
	NoDeps        bool
}

// DownOptions control teardown.
type DownOptions struct {
	RemoveVolumes bool
}

// HealthState is the point-in-time probe and runtime state of one
// container.
type HealthState struct {
	ProbeState   models.ProbeState
	RuntimeState string
}

func (c *Client) composeCmd(args ...string) string {
	parts := []string{"cd", utils.ShellQuote(c.workDir), "&&", "docker", "compose", "-f", utils.ShellQuote(c.composeFile)}
	return strings.Join(append(parts, args...), " ")
}

// Pull pulls images for the whole stack or one service.
func (c *Client) Pull(ctx context.Context, scope string) error {
	args := []string{"pull"}
	if scope != "" {
		args = append(args, scope)
	}
	return c.exec(ctx, "pull", c.composeCmd(args...))
}

// Up brings the stack (empty scope) or one named service up. With NoDeps
// set, nothing the service depends on is implicitly restarted.
func (c *Client) Up(ctx context.Context, scope string, opts UpOptions) error {
	args := []string{"up", "-d"}
	if opts.Build {
		args = append(args, "--build")
	}
	if opts.ForceRecreate {
		args = append(args, "--force-recreate")
	}
	if opts.NoDeps {
		args = append(args, "--no-deps")
	}
	if scope != "" {
		args = append(args, scope)
	}
	return c.exec(ctx, "up", c.composeCmd(args...))
}

// Down stops the stack or one named service.
func (c *Client) Down(ctx context.Context, scope string, opts DownOptions) error {
	args := []string{"down"}
	if opts.RemoveVolumes {
		args = append(args, "-v")
	}
	if scope != "" {
		// compose down has no service argument; stop and remove instead.
		args = []string{"rm", "-sf", scope}
	}
	return c.exec(ctx, "down", c.composeCmd(args...))
}

// Exec runs a command inside a running service container.
func (c *Client) Exec(ctx context.Context, service, command string) (remote.Result, error) {
	full := c.composeCmd("exec", "-T", service, command)
	res, err := c.runner.Run(ctx, full)
	if err != nil {
		return res, err
	}
	if daemonDown(res.Stderr) {
		return res, &errs.RuntimeUnavailable{Detail: strings.TrimSpace(res.Stderr)}
	}
	return res, nil
}

func (c *Client) exec(ctx context.Context, op, command string) error {
	res, err := c.runner.Run(ctx, command)
	if err != nil {
		return err
	}
	if !res.Ok() {
		if daemonDown(res.Stderr) {
			return &errs.RuntimeUnavailable{Detail: strings.TrimSpace(res.Stderr)}
		}
		return &errs.OperationFailed{Op: op, ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}
	return nil
}

func daemonDown(stderr string) bool {
	return strings.Contains(stderr, "Cannot connect to the Docker daemon") ||
		strings.Contains(stderr, "docker daemon is not running")
}
