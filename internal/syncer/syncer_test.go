package syncer

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stackpilot/stackpilot/internal/config"
	"github.com/stackpilot/stackpilot/internal/models"
)

func testConfig(t *testing.T) *config.ProjectConfig {
	t.Helper()
	raw := `{
		"project": {"name": "acme"},
		"deployment": {"type": "remote", "path": "/srv/acme", "host": "deploy.acme.test"},
		"services": {
			"api": true,
			"scraper-worker": true,
			"pdf-worker": {"enabled": false},
			"email-worker": true
		},
		"paths": {"backend": "packages/api", "shared": "packages/shared", "prisma": "prisma"}
	}`
	var cfg config.ProjectConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	return &cfg
}

func TestWorkspaceFilterBackend(t *testing.T) {
	cfg := testConfig(t)
	got := WorkspaceFilter(cfg, models.DeploymentKindBackend, "")
	want := []string{
		"packages/api",
		"packages/shared",
		"prisma",
		"packages/scraper_worker",
		"packages/email_worker",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("backend filter = %v, want %v", got, want)
	}
}

func TestWorkspaceFilterSingleService(t *testing.T) {
	cfg := testConfig(t)
	got := WorkspaceFilter(cfg, models.DeploymentKindService, "scraper_worker")
	want := []string{
		"packages/api",
		"packages/shared",
		"prisma",
		"packages/scraper_worker",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("service filter = %v, want %v", got, want)
	}
}

func TestWorkspaceFilterSkipsApiServiceEntry(t *testing.T) {
	cfg := testConfig(t)
	got := WorkspaceFilter(cfg, models.DeploymentKindService, "api")
	want := []string{"packages/api", "packages/shared", "prisma"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("api filter = %v, want %v", got, want)
	}
}

func TestWorkspaceFilterDefaultsWithoutPaths(t *testing.T) {
	raw := `{
		"project": {"name": "acme"},
		"deployment": {"type": "local", "path": "/srv/acme"},
		"services": {"api": true}
	}`
	var cfg config.ProjectConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	got := WorkspaceFilter(&cfg, models.DeploymentKindBackend, "")
	want := []string{"packages/api"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("default filter = %v, want %v", got, want)
	}
}

func TestRemoteShellIncludesKey(t *testing.T) {
	s := New(models.DeploymentTarget{
		Type:    models.TargetRemote,
		Host:    "deploy.acme.test",
		User:    "deploy",
		KeyPath: "/home/deploy/.ssh/id_ed25519",
	}, "/tmp")

	shell := s.remoteShell()
	if shell != "ssh -o BatchMode=yes -o ConnectTimeout=5 -i /home/deploy/.ssh/id_ed25519" {
		t.Fatalf("unexpected remote shell: %q", shell)
	}
	if s.destinationSpec("/srv/acme") != "deploy@deploy.acme.test:/srv/acme" {
		t.Fatalf("unexpected destination spec: %q", s.destinationSpec("/srv/acme"))
	}
}

func TestRemoteShellQuotesSpacedKeyPath(t *testing.T) {
	s := New(models.DeploymentTarget{
		Type:    models.TargetRemote,
		Host:    "deploy.acme.test",
		User:    "deploy",
		KeyPath: "/home/deploy/my keys/id_ed25519",
	}, "/tmp")

	shell := s.remoteShell()
	if shell != "ssh -o BatchMode=yes -o ConnectTimeout=5 -i '/home/deploy/my keys/id_ed25519'" {
		t.Fatalf("unexpected remote shell: %q", shell)
	}
}
