// Package syncer mirrors a workspace-filtered subset of the local project
// tree to the remote deploy root. Every pass either fully reconciles a
// subtree or fails; there is no silent partial transfer.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/stackpilot/stackpilot/internal/config"
	"github.com/stackpilot/stackpilot/internal/errs"
	"github.com/stackpilot/stackpilot/internal/models"
	"github.com/stackpilot/stackpilot/pkg/utils"
)

// defaultExcludes are never transmitted regardless of scope.
var defaultExcludes = []string{
	"node_modules",
	".git",
	"dist",
	".env.local",
}

// Syncer pushes local trees to one deployment target.
type Syncer struct {
	target models.DeploymentTarget

	// root is the local project root the relative paths resolve against.
	root string
}

// New returns a syncer for the given target, rooted at the local project
// directory.
func New(target models.DeploymentTarget, root string) *Syncer {
	return &Syncer{target: target, root: root}
}

// SyncTree delta-transfers source to destination, deleting destination
// files absent from source within the synced subtree.
func (s *Syncer) SyncTree(ctx context.Context, source, destination string, exclude []string) error {
	args := []string{"-az", "--delete"}
	for _, e := range append(append([]string(nil), defaultExcludes...), exclude...) {
		args = append(args, "--exclude", e)
	}
	if s.target.IsRemote() {
		args = append(args, "-e", s.remoteShell())
	}
	args = append(args, ensureTrailingSlash(source), s.destinationSpec(destination))

	cmd := exec.CommandContext(ctx, "rsync", args...)
	cmd.Dir = s.root
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &errs.SyncError{
				Source: source,
				Detail: fmt.Sprintf("rsync exit %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String())),
			}
		}
		return &errs.SyncError{Source: source, Detail: err.Error()}
	}
	return nil
}

// SyncFile transfers a single file to an exact destination path.
func (s *Syncer) SyncFile(ctx context.Context, source, destination string) error {
	args := []string{"-az"}
	if s.target.IsRemote() {
		args = append(args, "-e", s.remoteShell())
	}
	args = append(args, source, s.destinationSpec(destination))

	cmd := exec.CommandContext(ctx, "rsync", args...)
	cmd.Dir = s.root
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &errs.SyncError{
			Source: source,
			Detail: strings.TrimSpace(stderr.String()),
		}
	}
	return nil
}

// SyncProject reconciles every include path of the workspace filter and
// then uploads the filtered root manifest.
func (s *Syncer) SyncProject(ctx context.Context, filter []string, deployRoot string) error {
	for _, include := range filter {
		local := filepath.Join(s.root, include)
		if _, err := os.Stat(local); err != nil {
			log.Printf("[Sync] skipping %s: not present locally", include)
			continue
		}
		dest := deployRoot + "/" + filepath.ToSlash(include)
		if err := s.SyncTree(ctx, local, dest, nil); err != nil {
			return err
		}
	}
	return s.pushFilteredManifest(ctx, filter, deployRoot)
}

// pushFilteredManifest materializes a transient manifest whose workspaces
// are narrowed to the computed filter, uploads it in place of the full
// manifest, and removes the transient artifact on every exit path.
func (s *Syncer) pushFilteredManifest(ctx context.Context, filter []string, deployRoot string) error {
	manifestPath := filepath.Join(s.root, "package.json")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &errs.SyncError{Source: manifestPath, Detail: err.Error()}
	}

	var manifest map[string]json.RawMessage
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return &errs.SyncError{Source: manifestPath, Detail: fmt.Sprintf("invalid manifest: %v", err)}
	}
	workspaces, err := json.Marshal(filter)
	if err != nil {
		return &errs.SyncError{Source: manifestPath, Detail: err.Error()}
	}
	manifest["workspaces"] = workspaces

	filtered, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return &errs.SyncError{Source: manifestPath, Detail: err.Error()}
	}

	transient := filepath.Join(s.root, ".package.deploy.json")
	if err := os.WriteFile(transient, append(filtered, '\n'), 0o644); err != nil {
		return &errs.SyncError{Source: transient, Detail: err.Error()}
	}
	defer os.Remove(transient)

	return s.SyncFile(ctx, transient, deployRoot+"/package.json")
}

func (s *Syncer) destinationSpec(destination string) string {
	if s.target.IsRemote() {
		return s.target.SSHDestination() + ":" + destination
	}
	return destination
}

func (s *Syncer) remoteShell() string {
	shell := "ssh -o BatchMode=yes -o ConnectTimeout=5"
	if s.target.KeyPath != "" {
		shell += " -i " + utils.ShellQuote(s.target.KeyPath)
	}
	return shell
}

func ensureTrailingSlash(path string) string {
	if strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}

// WorkspaceFilter computes the subtrees relevant to a deployment scope:
// the fixed backend and shared entries plus the package of every service
// in scope. Derived, never hand-maintained.
func WorkspaceFilter(cfg *config.ProjectConfig, kind models.DeploymentKind, service string) []string {
	var filter []string
	seen := make(map[string]bool)
	add := func(path string) {
		if path != "" && !seen[path] {
			seen[path] = true
			filter = append(filter, path)
		}
	}

	add(backendPath(cfg))
	add(cfg.Paths.Shared)
	add(cfg.Paths.Prisma)

	switch kind {
	case models.DeploymentKindService:
		add(servicePath(service))
	default:
		for _, desc := range cfg.ActiveServices() {
			add(servicePath(desc.Name))
		}
	}
	return filter
}

func backendPath(cfg *config.ProjectConfig) string {
	if cfg.Paths.Backend != "" {
		return cfg.Paths.Backend
	}
	return "packages/api"
}

func servicePath(canonical string) string {
	if canonical == "" || canonical == "api" {
		return ""
	}
	return "packages/" + canonical
}
