// Package validate gates the orchestrator on source-control cleanliness,
// build success, runtime availability and connectivity. All checks run;
// errors accumulate so the operator sees the complete picture in one pass.
package validate

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"gopkg.in/yaml.v3"

	"github.com/stackpilot/stackpilot/internal/config"
	"github.com/stackpilot/stackpilot/internal/models"
	"github.com/stackpilot/stackpilot/internal/remote"
)

// DaemonChecker verifies the container engine is reachable.
type DaemonChecker interface {
	CheckDaemon(ctx context.Context) error
}

// Result aggregates one check's findings. The orchestrator short-circuits
// only on Errors; Warnings are surfaced without blocking.
type Result struct {
	Passed   bool
	Errors   []string
	Warnings []string
}

func (r *Result) addError(msg string)   { r.Errors = append(r.Errors, msg) }
func (r *Result) addWarning(msg string) { r.Warnings = append(r.Warnings, msg) }

// Merge folds another result into this one.
func (r *Result) Merge(other Result) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Passed = len(r.Errors) == 0
}

// Validator runs the pre-deploy gates for one configuration and target.
type Validator struct {
	cfg      *config.ProjectConfig
	root     string
	runner   *remote.Runner
	daemon   DaemonChecker
	prompter Prompter
}

// New returns a validator. The runner and daemon checker must be bound to
// the deployment target; root is the local project directory.
func New(cfg *config.ProjectConfig, root string, runner *remote.Runner, daemon DaemonChecker, prompter Prompter) *Validator {
	return &Validator{cfg: cfg, root: root, runner: runner, daemon: daemon, prompter: prompter}
}

// Run executes every applicable check and aggregates the findings.
func (v *Validator) Run(ctx context.Context, kind models.DeploymentKind) Result {
	var result Result
	result.Merge(v.CheckWorkingTree())
	result.Merge(v.CheckBuild(ctx, kind))
	if v.runner.Target().IsRemote() {
		result.Merge(v.CheckConnectivity(ctx))
	} else {
		result.Merge(v.CheckRuntime(ctx))
	}
	result.Passed = len(result.Errors) == 0
	return result
}

// CheckWorkingTree verifies the repository has no uncommitted changes,
// with an interactive override to proceed anyway.
func (v *Validator) CheckWorkingTree() Result {
	var result Result
	repo, err := git.PlainOpen(v.root)
	if err != nil {
		result.addWarning(fmt.Sprintf("not a git repository (%v); skipping working-tree check", err))
		result.Passed = true
		return result
	}
	worktree, err := repo.Worktree()
	if err != nil {
		result.addError(fmt.Sprintf("failed to open worktree: %v", err))
		return result
	}
	status, err := worktree.Status()
	if err != nil {
		result.addError(fmt.Sprintf("failed to read worktree status: %v", err))
		return result
	}
	if !status.IsClean() {
		if v.prompter.Confirm("Working tree has uncommitted changes. Deploy anyway?") {
			result.addWarning("deploying with uncommitted changes")
		} else {
			result.addError("working tree has uncommitted changes")
		}
	}
	result.Passed = len(result.Errors) == 0
	return result
}

// CheckBuild runs the local build. Backend-only deploys skip it entirely
// because backend artifacts build inside the container step.
func (v *Validator) CheckBuild(ctx context.Context, kind models.DeploymentKind) Result {
	var result Result
	if kind == models.DeploymentKindBackend || kind == models.DeploymentKindService {
		result.Passed = true
		return result
	}
	local := remote.Local(v.root)
	res, err := local.Run(ctx, "npm run build --if-present")
	if err != nil {
		result.addError(fmt.Sprintf("build could not start: %v", err))
		return result
	}
	if !res.Ok() {
		result.addError(fmt.Sprintf("build failed (exit %d): %s", res.ExitCode, res.Stderr))
		return result
	}
	result.Passed = true
	return result
}

// CheckRuntime verifies the container engine is reachable and the compose
// manifest declares the active services. Local targets only; remote
// targets build on the remote host.
func (v *Validator) CheckRuntime(ctx context.Context) Result {
	var result Result
	if err := v.daemon.CheckDaemon(ctx); err != nil {
		result.addError(err.Error())
		return result
	}

	manifest := filepath.Join(v.root, v.cfg.ComposeFile())
	raw, err := os.ReadFile(manifest)
	if err != nil {
		result.addError(fmt.Sprintf("compose manifest not found at %s", manifest))
		return result
	}

	var doc struct {
		Services map[string]yaml.Node `yaml:"services"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		result.addError(fmt.Sprintf("compose manifest is not valid YAML: %v", err))
		return result
	}
	for _, desc := range v.cfg.ActiveServices() {
		if _, ok := doc.Services[desc.Name]; !ok {
			result.addWarning(fmt.Sprintf("service %s is enabled but missing from %s", desc.Name, v.cfg.ComposeFile()))
		}
	}

	result.Passed = len(result.Errors) == 0
	return result
}

// CheckConnectivity performs the pre-deploy echo round-trip against the
// remote target.
func (v *Validator) CheckConnectivity(ctx context.Context) Result {
	var result Result
	if err := v.runner.TestConnectivity(ctx); err != nil {
		result.addError(err.Error())
		return result
	}
	log.Printf("[Validate] connectivity to %s confirmed", v.runner.Target().Host)
	result.Passed = true
	return result
}
