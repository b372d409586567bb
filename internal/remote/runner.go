// Package remote executes commands uniformly on the local host or on the
// deployment target over SSH. A non-zero exit code is data, not a fault;
// only a failure to establish the channel is an error.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/stackpilot/stackpilot/internal/errs"
	"github.com/stackpilot/stackpilot/internal/models"
)

const (
	connectTimeout = 5 * time.Second

	// sshConnectionFailure is the exit code the OpenSSH client reserves
	// for connection and protocol errors.
	sshConnectionFailure = 255
)

// Result carries the uniform outcome of a command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Ok reports a zero exit code.
func (r Result) Ok() bool { return r.ExitCode == 0 }

// CombinedOutput joins stdout and stderr for diagnostics.
func (r Result) CombinedOutput() string {
	return strings.TrimSpace(r.Stdout + "\n" + r.Stderr)
}

// Runner executes shell commands against one deployment target.
type Runner struct {
	target models.DeploymentTarget

	// Dir is the working directory for local commands. Remote commands
	// run wherever the shell lands; callers cd explicitly.
	Dir string
}

// New returns a runner for the given target.
func New(target models.DeploymentTarget) *Runner {
	return &Runner{target: target}
}

// Local returns a runner that always executes on this host, used for
// build and repository checks regardless of the deployment target.
func Local(dir string) *Runner {
	return &Runner{target: models.DeploymentTarget{Type: models.TargetLocal}, Dir: dir}
}

// Target exposes the runner's deployment target.
func (r *Runner) Target() models.DeploymentTarget { return r.target }

// Run executes command on the target and returns stdout, stderr and the
// exit code. The error return is reserved for channel-level failures.
func (r *Runner) Run(ctx context.Context, command string) (Result, error) {
	if r.target.IsRemote() {
		return r.runRemote(ctx, command)
	}
	return r.runLocal(ctx, command)
}

func (r *Runner) runLocal(ctx context.Context, command string) (Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}
	return capture(cmd)
}

func (r *Runner) runRemote(ctx context.Context, command string) (Result, error) {
	cmd := exec.CommandContext(ctx, "ssh", r.sshArgs(command)...)
	res, err := capture(cmd)
	if err != nil {
		return res, err
	}
	if res.ExitCode == sshConnectionFailure {
		return res, &errs.ConnectivityError{
			Host: r.target.Host,
			Err:  fmt.Errorf("%s", strings.TrimSpace(res.Stderr)),
		}
	}
	return res, nil
}

// sshArgs builds an interactive-auth-free invocation with a short
// connection timeout.
func (r *Runner) sshArgs(command string) []string {
	args := []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(connectTimeout.Seconds())),
	}
	if r.target.KeyPath != "" {
		args = append(args, "-i", r.target.KeyPath)
	}
	return append(args, r.target.SSHDestination(), command)
}

func capture(cmd *exec.Cmd) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("failed to start command: %w", err)
	}
	return res, nil
}

// TestConnectivity performs a minimal round-trip before any deployment
// proceeds. Local targets always pass.
func (r *Runner) TestConnectivity(ctx context.Context) error {
	if !r.target.IsRemote() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	res, err := r.Run(ctx, "echo stackpilot-ping")
	if err != nil {
		return err
	}
	if !res.Ok() || !strings.Contains(res.Stdout, "stackpilot-ping") {
		return &errs.ConnectivityError{
			Host: r.target.Host,
			Err:  fmt.Errorf("echo round-trip failed: %s", res.CombinedOutput()),
		}
	}
	return nil
}
