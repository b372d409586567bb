package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stackpilot/stackpilot/internal/errs"
	"github.com/stackpilot/stackpilot/internal/models"
	"github.com/stackpilot/stackpilot/pkg/utils"
)

// candidatePaths is searched in order; the first existing file wins.
// No merging happens across candidates.
func candidatePaths() []string {
	paths := []string{
		"deploy.config.json",
		filepath.Join("config", "deploy.config.json"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "stackpilot", "deploy.config.json"))
	}
	return paths
}

// Project identifies the stack being deployed.
type Project struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// Paths points at the source subtrees the deploy procedure touches.
type Paths struct {
	Frontend      string `json:"frontend,omitempty"`
	Backend       string `json:"backend,omitempty"`
	Shared        string `json:"shared,omitempty"`
	Prisma        string `json:"prisma,omitempty"`
	DockerCompose string `json:"dockerCompose,omitempty"`
}

// ProjectConfig is the static project configuration, read at the start of
// every command.
type ProjectConfig struct {
	Project    Project                 `json:"project"`
	Deployment models.DeploymentTarget `json:"deployment"`
	Services   ServiceMap              `json:"services"`
	Paths      Paths                   `json:"paths,omitempty"`

	// Source is the file the configuration was loaded from.
	Source string `json:"-"`
}

// Load resolves the project configuration across the fixed candidate list.
func Load() (*ProjectConfig, error) {
	for _, path := range candidatePaths() {
		if _, err := os.Stat(path); err == nil {
			return LoadFrom(path)
		}
	}
	return nil, &errs.ConfigError{
		Kind:   errs.ConfigNotFound,
		Reason: "no deploy.config.json found in any candidate location",
	}
}

// LoadFrom reads and validates a configuration file at an explicit path.
func LoadFrom(path string) (*ProjectConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ConfigError{Kind: errs.ConfigNotFound, Reason: err.Error()}
	}
	var cfg ProjectConfig
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&cfg); err != nil {
		return nil, &errs.ConfigError{Kind: errs.ConfigInvalid, Reason: fmt.Sprintf("%s: %v", path, err)}
	}
	cfg.Source = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every structural defect as ConfigInvalid rather than
// silently defaulting.
func (c *ProjectConfig) Validate() error {
	if c.Project.Name == "" {
		return invalid("project.name is required")
	}
	if c.Project.Domain == "" {
		return invalid("project.domain is required")
	}
	switch c.Deployment.Type {
	case models.TargetLocal, models.TargetRemote:
	case "":
		return invalid("deployment.type is required")
	default:
		return invalid(fmt.Sprintf("deployment.type must be local or remote, got %q", c.Deployment.Type))
	}
	if c.Deployment.Path == "" {
		return invalid("deployment.path is required")
	}
	if c.Deployment.IsRemote() && c.Deployment.Host == "" {
		return invalid("deployment.host is required when deployment.type is remote")
	}
	if len(c.Services.order) == 0 {
		return invalid("services map is required and must declare at least one service")
	}
	for _, name := range c.Services.order {
		spec := c.Services.specs[name]
		if spec.Detailed != nil && spec.Detailed.Port != nil {
			if p := *spec.Detailed.Port; p <= 0 || p > 65535 {
				return invalid(fmt.Sprintf("services.%s.port %d is out of range", name, p))
			}
		}
	}
	return nil
}

func invalid(reason string) error {
	return &errs.ConfigError{Kind: errs.ConfigInvalid, Reason: reason}
}

// ComposeFile returns the compose manifest path relative to the deploy root.
func (c *ProjectConfig) ComposeFile() string {
	if c.Paths.DockerCompose != "" {
		return c.Paths.DockerCompose
	}
	return "docker-compose.yml"
}

// DockerIdentity returns the runtime container name for a canonical
// service name: the explicit override when declared, otherwise
// {project}-{kebab-case(name)}.
func (c *ProjectConfig) DockerIdentity(name string) string {
	canonical := ResolveServiceName(name)
	if spec, ok := c.Services.specs[canonical]; ok {
		if spec.Detailed != nil && spec.Detailed.DockerName != nil && *spec.Detailed.DockerName != "" {
			return *spec.Detailed.DockerName
		}
	}
	return c.Project.Name + "-" + utils.KebabCase(canonical)
}

// ActiveServices filters the declared service map to the enabled entries,
// preserving declaration order.
func (c *ProjectConfig) ActiveServices() []models.ServiceDescriptor {
	var active []models.ServiceDescriptor
	for _, name := range c.Services.order {
		desc := c.Services.Descriptor(name)
		if desc.Enabled {
			active = append(active, desc)
		}
	}
	return active
}

// ActiveServiceNames returns the canonical names of the active services in
// declaration order.
func (c *ProjectConfig) ActiveServiceNames() []string {
	var names []string
	for _, d := range c.ActiveServices() {
		names = append(names, d.Name)
	}
	return names
}

// Service returns the canonical descriptor for a declared service.
func (c *ProjectConfig) Service(raw string) (models.ServiceDescriptor, bool) {
	canonical := ResolveServiceName(raw)
	if _, ok := c.Services.specs[canonical]; !ok {
		return models.ServiceDescriptor{}, false
	}
	return c.Services.Descriptor(canonical), true
}

// Save writes the configuration back to its source file.
func (c *ProjectConfig) Save() error {
	if c.Source == "" {
		return invalid("configuration has no source file to write to")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(c.Source, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
