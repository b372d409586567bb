package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stackpilot/stackpilot/internal/compose"
	"github.com/stackpilot/stackpilot/internal/config"
	"github.com/stackpilot/stackpilot/internal/database"
	"github.com/stackpilot/stackpilot/internal/errs"
	"github.com/stackpilot/stackpilot/internal/history"
	"github.com/stackpilot/stackpilot/internal/models"
	"github.com/stackpilot/stackpilot/internal/remote"
	"github.com/stackpilot/stackpilot/internal/validate"
)

func testStore(t *testing.T) *history.Store {
	t.Helper()
	db, err := database.OpenEphemeral()
	if err != nil {
		t.Fatalf("open ephemeral database: %v", err)
	}
	return history.New(db)
}

func parseConfig(t *testing.T, raw string) *config.ProjectConfig {
	t.Helper()
	var cfg config.ProjectConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	return &cfg
}

func testSettings() *config.Settings {
	return &config.Settings{
		HealthDeadline:     0,
		HealthPollInterval: 0,
	}
}

// recordingNotifier captures lifecycle callbacks.
type recordingNotifier struct {
	started   []uint
	completed []models.DeploymentStatus
}

func (n *recordingNotifier) DeployStarted(kind models.DeploymentKind, service string, recordID uint) {
	n.started = append(n.started, recordID)
}

func (n *recordingNotifier) DeployCompleted(kind models.DeploymentKind, service string, recordID uint, status models.DeploymentStatus, message string) {
	n.completed = append(n.completed, status)
}

func TestRemoteWithoutHostFailsBeforeAnyAction(t *testing.T) {
	// Constructed directly so the orchestrator guard, not config loading,
	// is what rejects the target.
	cfg := parseConfig(t, `{
		"project": {"name": "acme"},
		"deployment": {"type": "remote", "path": "/srv/acme"},
		"services": {"api": true}
	}`)
	store := testStore(t)
	orch := New(cfg, testSettings(), models.EnvironmentDevelopment, t.TempDir(), store, validate.DeclineAll{}, nil, Options{})

	err := orch.DeployBackend(context.Background())
	var cerr *errs.ConfigError
	if !errors.As(err, &cerr) || cerr.Kind != errs.ConfigInvalid {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}

	records, err := store.Query(10, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("misconfigured target must not create a record, found %d", len(records))
	}
}

func TestProductionDeployRequiresConfirmation(t *testing.T) {
	cfg := parseConfig(t, `{
		"project": {"name": "acme"},
		"deployment": {"type": "local", "path": "/srv/acme"},
		"services": {"api": true}
	}`)
	store := testStore(t)
	notifier := &recordingNotifier{}
	orch := New(cfg, testSettings(), models.EnvironmentProduction, t.TempDir(), store, validate.DeclineAll{}, notifier, Options{})

	err := orch.DeployBackend(context.Background())
	var vf *errs.ValidationFailed
	if !errors.As(err, &vf) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}

	// The declined attempt stays audited.
	records, err := store.Query(10, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("declined production deploy must leave one record, found %d", len(records))
	}
	if records[0].Status != models.DeploymentStatusFailed {
		t.Fatalf("declined record status = %s, want failed", records[0].Status)
	}
	if len(notifier.started) != 1 || len(notifier.completed) != 1 {
		t.Fatalf("expected start and complete notifications, got %d/%d", len(notifier.started), len(notifier.completed))
	}
	if notifier.completed[0] != models.DeploymentStatusFailed {
		t.Fatalf("completion status = %s, want failed", notifier.completed[0])
	}
}

func TestDeployServiceUnknownName(t *testing.T) {
	cfg := parseConfig(t, `{
		"project": {"name": "acme"},
		"deployment": {"type": "local", "path": "/srv/acme"},
		"services": {"api": true}
	}`)
	orch := New(cfg, testSettings(), models.EnvironmentDevelopment, t.TempDir(), testStore(t), validate.DeclineAll{}, nil, Options{})

	err := orch.DeployService(context.Background(), "ghost")
	var cerr *errs.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError for undeclared service, got %v", err)
	}
}

func TestDeployServiceDisabledWithoutOverride(t *testing.T) {
	cfg := parseConfig(t, `{
		"project": {"name": "acme"},
		"deployment": {"type": "local", "path": "/srv/acme"},
		"services": {"api": true, "pdf-worker": {"enabled": false}}
	}`)
	orch := New(cfg, testSettings(), models.EnvironmentDevelopment, t.TempDir(), testStore(t), validate.DeclineAll{}, nil, Options{})

	err := orch.DeployService(context.Background(), "pdf")
	var cerr *errs.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError for inactive service, got %v", err)
	}
}

func TestDeployFrontendRecordsNoOp(t *testing.T) {
	cfg := parseConfig(t, `{
		"project": {"name": "acme"},
		"deployment": {"type": "local", "path": "/srv/acme"},
		"services": {"api": true}
	}`)
	store := testStore(t)
	notifier := &recordingNotifier{}
	orch := New(cfg, testSettings(), models.EnvironmentDevelopment, t.TempDir(), store, validate.DeclineAll{}, notifier, Options{SkipValidations: true})

	if err := orch.DeployFrontend(context.Background()); err != nil {
		t.Fatalf("frontend no-op must succeed: %v", err)
	}

	record, err := store.Latest(nil)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if record.Kind != models.DeploymentKindFrontend || record.Status != models.DeploymentStatusSuccess {
		t.Fatalf("unexpected record: %+v", record)
	}
	if len(notifier.started) != 1 || len(notifier.completed) != 1 {
		t.Fatalf("expected start and complete notifications, got %d/%d", len(notifier.started), len(notifier.completed))
	}
	if notifier.completed[0] != models.DeploymentStatusSuccess {
		t.Fatalf("completion status = %s, want success", notifier.completed[0])
	}
}

func TestScopedServices(t *testing.T) {
	cfg := parseConfig(t, `{
		"project": {"name": "acme"},
		"deployment": {"type": "local", "path": "/srv/acme"},
		"services": {"api": true, "scraper-worker": true, "pdf-worker": {"enabled": false}}
	}`)
	orch := New(cfg, testSettings(), models.EnvironmentDevelopment, t.TempDir(), testStore(t), validate.DeclineAll{}, nil, Options{})

	all := orch.scopedServices(orch.projectScope())
	if len(all) != 2 {
		t.Fatalf("project scope should cover the active services, got %d", len(all))
	}

	desc, _ := cfg.Service("scraper-worker")
	one := orch.scopedServices(orch.serviceScope(desc))
	if len(one) != 1 || one[0].Name != "scraper_worker" {
		t.Fatalf("service scope should cover exactly that service, got %+v", one)
	}
}

// stubRunner answers every command with one canned result.
type stubRunner struct {
	commands []string
	result   remote.Result
}

func (r *stubRunner) Run(ctx context.Context, command string) (remote.Result, error) {
	r.commands = append(r.commands, command)
	return r.result, nil
}

func TestBackendStepsAbortWhenRuntimeUnavailable(t *testing.T) {
	cfg := parseConfig(t, `{
		"project": {"name": "acme", "domain": "acme.test"},
		"deployment": {"type": "local", "path": "/srv/acme"},
		"services": {"api": true}
	}`)
	runner := &stubRunner{result: remote.Result{
		ExitCode: 1,
		Stderr:   "Cannot connect to the Docker daemon at unix:///var/run/docker.sock",
	}}
	o := &Orchestrator{
		cfg:      cfg,
		settings: testSettings(),
		client:   compose.New(runner, "acme", "docker-compose.yml", "/srv/acme"),
	}

	err := o.backendSteps(context.Background())
	var unavailable *errs.RuntimeUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected RuntimeUnavailable, got %v", err)
	}
	if len(runner.commands) != 1 {
		t.Fatalf("an unreachable runtime must stop after the pull, ran %d commands", len(runner.commands))
	}
}

func TestVersionMarkerRoundTripWithSpacedPath(t *testing.T) {
	root := t.TempDir()
	deployRoot := filepath.Join(root, "deploy root")
	if err := os.MkdirAll(deployRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := parseConfig(t, fmt.Sprintf(`{
		"project": {"name": "acme", "domain": "acme.test"},
		"deployment": {"type": "local", "path": %q},
		"services": {"api": true}
	}`, deployRoot))
	orch := New(cfg, testSettings(), models.EnvironmentDevelopment, root, testStore(t), validate.DeclineAll{}, nil, Options{})

	marker := orch.buildMarker(models.DeploymentKindBackend, nil, 3, 1.5, nil, nil)
	if err := orch.WriteVersionMarker(context.Background(), marker); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	got, err := orch.ReadVersionMarker(context.Background())
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if got.DeploymentID == nil || *got.DeploymentID != 3 {
		t.Fatalf("deployment id = %v, want 3", got.DeploymentID)
	}
	if got.DeploymentType != string(models.DeploymentKindBackend) {
		t.Fatalf("deployment type = %q", got.DeploymentType)
	}
}

func TestBuildMarker(t *testing.T) {
	cfg := parseConfig(t, `{
		"project": {"name": "acme"},
		"deployment": {"type": "remote", "path": "/srv/acme", "host": "deploy.acme.test"},
		"services": {"api": true, "scraper-worker": true}
	}`)
	orch := New(cfg, testSettings(), models.EnvironmentProduction, t.TempDir(), testStore(t), validate.DeclineAll{}, nil, Options{})

	hash := "abc123"
	marker := orch.buildMarker(models.DeploymentKindBackend, nil, 7, 42.5, &hash, nil)
	if marker.CommitHash != "abc123" {
		t.Fatalf("commit hash = %q", marker.CommitHash)
	}
	if marker.Environment != string(models.EnvironmentProduction) {
		t.Fatalf("environment = %q", marker.Environment)
	}
	if marker.DeploymentType != string(models.DeploymentKindBackend) {
		t.Fatalf("deployment type = %q", marker.DeploymentType)
	}
	if len(marker.Services) != 2 {
		t.Fatalf("services = %v, want the active set", marker.Services)
	}
	if marker.DeploymentID == nil || *marker.DeploymentID != 7 {
		t.Fatalf("deployment id = %v, want 7", marker.DeploymentID)
	}
}
