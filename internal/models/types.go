package models

// ServiceDescriptor is the canonical form of a declared service. Produced
// by the configuration resolver, never mutated at runtime.
type ServiceDescriptor struct {
	Name           string  `json:"name"`
	Enabled        bool    `json:"enabled"`
	DockerName     *string `json:"dockerName,omitempty"`
	HealthEndpoint *string `json:"healthEndpoint,omitempty"`
	Port           *int    `json:"port,omitempty"`
}

// DeploymentTarget describes where a stack is deployed. Host must be
// present whenever Type is remote.
type DeploymentTarget struct {
	Type    TargetType `json:"type"`
	Path    string     `json:"path"`
	Host    string     `json:"host,omitempty"`
	User    string     `json:"user,omitempty"`
	KeyPath string     `json:"keyPath,omitempty"`
}

// IsRemote reports whether commands must travel over the remote shell.
func (t DeploymentTarget) IsRemote() bool {
	return t.Type == TargetRemote
}

// SSHDestination returns the user@host pair for the remote shell.
func (t DeploymentTarget) SSHDestination() string {
	if t.User == "" {
		return t.Host
	}
	return t.User + "@" + t.Host
}

// ContainerSnapshot is a point-in-time view of one container. Never
// persisted; recomputed on every poll.
type ContainerSnapshot struct {
	Name         string `json:"name"`
	RuntimeState string `json:"runtimeState"`
	StatusText   string `json:"statusText"`
	ServiceName  string `json:"serviceName"`
}

// HealthVerdict folds container- and probe-level health into one boolean.
type HealthVerdict struct {
	Service string  `json:"service"`
	Healthy bool    `json:"healthy"`
	Message string  `json:"message"`
	Details *string `json:"details,omitempty"`
}

// VersionMarker is written at the deploy root after a successful remote
// deployment and answers "what is currently deployed".
type VersionMarker struct {
	CommitHash      string   `json:"commitHash"`
	CommitMessage   string   `json:"commitMessage,omitempty"`
	Timestamp       string   `json:"timestamp"`
	Environment     string   `json:"environment"`
	Services        []string `json:"services"`
	DeploymentType  string   `json:"deploymentType"`
	DeploymentID    *uint    `json:"deploymentId,omitempty"`
	DurationSeconds *float64 `json:"durationSeconds,omitempty"`
	User            string   `json:"user"`
}
