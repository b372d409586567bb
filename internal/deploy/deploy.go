// Package deploy sequences validation, remote synchronization, container
// lifecycle transitions and post-deploy health verification into one
// audited unit of work per deployment.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/user"
	"time"

	"github.com/stackpilot/stackpilot/internal/compose"
	"github.com/stackpilot/stackpilot/internal/config"
	"github.com/stackpilot/stackpilot/internal/errs"
	"github.com/stackpilot/stackpilot/internal/health"
	"github.com/stackpilot/stackpilot/internal/history"
	"github.com/stackpilot/stackpilot/internal/models"
	"github.com/stackpilot/stackpilot/internal/remote"
	"github.com/stackpilot/stackpilot/internal/syncer"
	"github.com/stackpilot/stackpilot/internal/validate"
	"github.com/stackpilot/stackpilot/pkg/utils"
)

// Notifier receives deploy lifecycle events. The control plane wires the
// broadcast hub here; the CLI passes nil.
type Notifier interface {
	DeployStarted(kind models.DeploymentKind, service string, recordID uint)
	DeployCompleted(kind models.DeploymentKind, service string, recordID uint, status models.DeploymentStatus, message string)
}

// Options toggle the optional gates of the deploy skeleton.
type Options struct {
	SkipValidations bool
	SkipHealthCheck bool
}

// Orchestrator runs the three deployment shapes over one configuration
// and target.
type Orchestrator struct {
	cfg      *config.ProjectConfig
	settings *config.Settings
	env      models.Environment
	root     string
	opts     Options

	history   *history.Store
	runner    *remote.Runner
	client    *compose.Client
	inspector *compose.Inspector
	syncer    *syncer.Syncer
	engine    *health.Engine
	endpoints *health.EndpointChecker
	validator *validate.Validator
	prompter  validate.Prompter
	notifier  Notifier
}

// New wires an orchestrator for the configured target. root is the local
// project directory; notifier may be nil.
func New(cfg *config.ProjectConfig, settings *config.Settings, env models.Environment, root string,
	store *history.Store, prompter validate.Prompter, notifier Notifier, opts Options) *Orchestrator {

	runner := remote.New(cfg.Deployment)
	if !cfg.Deployment.IsRemote() {
		runner = remote.Local(root)
	}
	client := compose.New(runner, cfg.Project.Name, cfg.ComposeFile(), cfg.Deployment.Path)
	inspector := compose.NewInspector(cfg.Deployment)

	return &Orchestrator{
		cfg:       cfg,
		settings:  settings,
		env:       env,
		root:      root,
		opts:      opts,
		history:   store,
		runner:    runner,
		client:    client,
		inspector: inspector,
		syncer:    syncer.New(cfg.Deployment, root),
		engine:    health.New(inspector, settings.HealthPollInterval),
		endpoints: health.NewEndpointChecker(runner),
		validator: validate.New(cfg, root, runner, inspector, prompter),
		prompter:  prompter,
		notifier:  notifier,
	}
}

// DeployAll deploys the backend stack and reports the frontend step as an
// explicit, unimplemented no-op.
func (o *Orchestrator) DeployAll(ctx context.Context) error {
	return o.run(ctx, models.DeploymentKindFull, nil, func(ctx context.Context) error {
		if err := o.backendSteps(ctx); err != nil {
			return err
		}
		log.Printf("[Deploy] frontend deployment is not implemented; skipping deliberately")
		return nil
	})
}

// DeployBackend synchronizes the workspace-filtered tree and brings the
// whole declared stack up.
func (o *Orchestrator) DeployBackend(ctx context.Context) error {
	return o.run(ctx, models.DeploymentKindBackend, nil, o.backendSteps)
}

// DeployFrontend records the deliberate no-op so the attempt is audited
// rather than silently skipped.
func (o *Orchestrator) DeployFrontend(ctx context.Context) error {
	return o.run(ctx, models.DeploymentKindFrontend, nil, func(ctx context.Context) error {
		log.Printf("[Deploy] frontend deployment is not implemented; no action taken")
		return nil
	})
}

// DeployService deploys exactly one declared service without restarting
// anything it depends on.
func (o *Orchestrator) DeployService(ctx context.Context, rawName string) error {
	desc, ok := o.cfg.Service(rawName)
	if !ok {
		return &errs.ConfigError{
			Kind:   errs.ConfigInvalid,
			Reason: fmt.Sprintf("service %q is not declared (resolved to %q)", rawName, config.ResolveServiceName(rawName)),
		}
	}
	if !desc.Enabled {
		if !o.prompter.Confirm(fmt.Sprintf("Service %s is declared but not active. Deploy it anyway?", desc.Name)) {
			return &errs.ConfigError{
				Kind:   errs.ConfigInvalid,
				Reason: fmt.Sprintf("service %s is not active", desc.Name),
			}
		}
		log.Printf("[Deploy] deploying disabled service %s after explicit override", desc.Name)
	}

	return o.run(ctx, models.DeploymentKindService, &desc.Name, func(ctx context.Context) error {
		return o.serviceSteps(ctx, desc)
	})
}

// run is the shared skeleton: confirm, record, validate, mutate, verify,
// finalize.
func (o *Orchestrator) run(ctx context.Context, kind models.DeploymentKind, service *string, steps func(context.Context) error) error {
	if o.cfg.Deployment.IsRemote() && o.cfg.Deployment.Host == "" {
		return &errs.ConfigError{Kind: errs.ConfigInvalid, Reason: "deployment.host is required when deployment.type is remote"}
	}

	commitHash, commitMessage := headCommit(o.root)
	recordID, err := o.history.Create(history.Draft{
		Environment: o.env,
		Kind:        kind,
		Service:     service,
		CommitHash:  commitHash,
		User:        currentUser(),
	})
	if err != nil {
		return err
	}
	o.notifyStarted(kind, service, recordID)
	started := time.Now()

	// Confirmation runs inside the recorded operation so a declined
	// production deploy leaves an audit trail.
	if o.env == models.EnvironmentProduction {
		if !o.prompter.Confirm(fmt.Sprintf("Deploy %s to PRODUCTION?", kind)) ||
			!o.prompter.Confirm("This will replace the running production stack. Are you sure?") {
			err := &errs.ValidationFailed{Errors: []string{"production deployment was not confirmed"}}
			o.finalize(recordID, kind, service, models.DeploymentStatusFailed, started, err.Error())
			return err
		}
	}

	if !o.opts.SkipValidations {
		result := o.validator.Run(ctx, kind)
		for _, w := range result.Warnings {
			log.Printf("[Deploy] warning: %s", w)
		}
		if !result.Passed {
			err := &errs.ValidationFailed{Errors: result.Errors}
			o.finalize(recordID, kind, service, models.DeploymentStatusFailed, started, err.Error()+": "+joinErrors(result.Errors))
			return err
		}
	}

	if err := steps(ctx); err != nil {
		o.finalize(recordID, kind, service, models.DeploymentStatusFailed, started, err.Error())
		return err
	}

	duration := time.Since(started).Seconds()
	o.finalize(recordID, kind, service, models.DeploymentStatusSuccess, started, "")

	if o.cfg.Deployment.IsRemote() && kind != models.DeploymentKindFrontend {
		marker := o.buildMarker(kind, service, recordID, duration, commitHash, commitMessage)
		if err := o.WriteVersionMarker(ctx, marker); err != nil {
			log.Printf("[Deploy] warning: failed to write version marker: %v", err)
		}
	}
	return nil
}

// backendSteps is shared by the backend and full deploy shapes.
func (o *Orchestrator) backendSteps(ctx context.Context) error {
	if o.cfg.Deployment.IsRemote() {
		filter := syncer.WorkspaceFilter(o.cfg, models.DeploymentKindBackend, "")
		if err := o.syncer.SyncProject(ctx, filter, o.cfg.Deployment.Path); err != nil {
			return err
		}
		if err := o.ensureRemoteDependencies(ctx); err != nil {
			return err
		}
	}

	// Services that build locally have no pullable image; refresh what can
	// be refreshed and let the build step cover the rest. An unreachable
	// runtime is fatal, not a pull miss.
	if err := o.client.Pull(ctx, ""); err != nil {
		var unavailable *errs.RuntimeUnavailable
		if errors.As(err, &unavailable) {
			return err
		}
		log.Printf("[Deploy] warning: image pull incomplete: %v", err)
	}

	if err := o.client.Up(ctx, "", compose.UpOptions{Build: true}); err != nil {
		return err
	}
	return o.verify(ctx, o.projectScope())
}

func (o *Orchestrator) serviceSteps(ctx context.Context, desc models.ServiceDescriptor) error {
	if o.cfg.Deployment.IsRemote() {
		filter := syncer.WorkspaceFilter(o.cfg, models.DeploymentKindService, desc.Name)
		if err := o.syncer.SyncProject(ctx, filter, o.cfg.Deployment.Path); err != nil {
			return err
		}
		if err := o.ensureRemoteDependencies(ctx); err != nil {
			return err
		}
	}

	opts := compose.UpOptions{Build: true, ForceRecreate: true, NoDeps: true}
	if err := o.client.Up(ctx, desc.Name, opts); err != nil {
		return err
	}
	return o.verify(ctx, o.serviceScope(desc))
}

// verify applies the same engine-level wait discipline to every deploy
// shape, then runs the lenient endpoint pass.
func (o *Orchestrator) verify(ctx context.Context, scope health.Scope) error {
	if o.opts.SkipHealthCheck {
		log.Printf("[Deploy] health verification skipped by flag")
		return nil
	}
	if err := o.engine.WaitHealthy(ctx, scope, o.settings.HealthDeadline); err != nil {
		return err
	}
	for _, verdict := range o.endpoints.Check(ctx, o.scopedServices(scope)) {
		if !verdict.Healthy {
			// Containers already passed; an endpoint miss warns only.
			log.Printf("[Deploy] warning: endpoint check for %s: %s", verdict.Service, verdict.Message)
		}
	}
	return nil
}

func (o *Orchestrator) ensureRemoteDependencies(ctx context.Context) error {
	command := fmt.Sprintf("cd %s && npm install --omit=dev --no-audit --no-fund", utils.ShellQuote(o.cfg.Deployment.Path))
	res, err := o.runner.Run(ctx, command)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return &errs.OperationFailed{Op: "install remote dependencies", ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return nil
}

func (o *Orchestrator) finalize(id uint, kind models.DeploymentKind, service *string, status models.DeploymentStatus, started time.Time, diagnostic string) {
	duration := time.Since(started).Seconds()
	var diag *string
	if diagnostic != "" {
		diag = &diagnostic
	}
	if err := o.history.Finalize(id, status, &duration, diag); err != nil {
		log.Printf("[Deploy] failed to finalize record %d: %v", id, err)
	}
	o.notifyCompleted(kind, service, id, status, diagnostic)
}

func (o *Orchestrator) notifyStarted(kind models.DeploymentKind, service *string, id uint) {
	if o.notifier != nil {
		o.notifier.DeployStarted(kind, utils.PtrValue(service, ""), id)
	}
}

func (o *Orchestrator) notifyCompleted(kind models.DeploymentKind, service *string, id uint, status models.DeploymentStatus, message string) {
	if o.notifier != nil {
		o.notifier.DeployCompleted(kind, utils.PtrValue(service, ""), id, status, message)
	}
}

func (o *Orchestrator) projectScope() health.Scope {
	var identities []string
	for _, desc := range o.cfg.ActiveServices() {
		identities = append(identities, o.cfg.DockerIdentity(desc.Name))
	}
	return health.Scope{Project: o.cfg.Project.Name, Identities: identities}
}

func (o *Orchestrator) serviceScope(desc models.ServiceDescriptor) health.Scope {
	return health.Scope{
		Project:        o.cfg.Project.Name,
		Service:        desc.Name,
		DockerIdentity: o.cfg.DockerIdentity(desc.Name),
	}
}

// scopedServices returns the descriptors the endpoint pass should probe
// for a given verification scope.
func (o *Orchestrator) scopedServices(scope health.Scope) []models.ServiceDescriptor {
	if scope.Service == "" {
		return o.cfg.ActiveServices()
	}
	if desc, ok := o.cfg.Service(scope.Service); ok {
		return []models.ServiceDescriptor{desc}
	}
	return nil
}

func joinErrors(errors []string) string {
	out := ""
	for i, e := range errors {
		if i > 0 {
			out += "; "
		}
		out += e
	}
	return out
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}
