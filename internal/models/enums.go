package models

// DeploymentStatus enum
type DeploymentStatus string

const (
	DeploymentStatusPending    DeploymentStatus = "pending"
	DeploymentStatusInProgress DeploymentStatus = "in_progress"
	DeploymentStatusSuccess    DeploymentStatus = "success"
	DeploymentStatusFailed     DeploymentStatus = "failed"
	DeploymentStatusRolledBack DeploymentStatus = "rolled_back"
)

// IsTerminal reports whether no further automatic transition occurs.
func (s DeploymentStatus) IsTerminal() bool {
	switch s {
	case DeploymentStatusSuccess, DeploymentStatusFailed, DeploymentStatusRolledBack:
		return true
	}
	return false
}

// DeploymentKind enum
type DeploymentKind string

const (
	DeploymentKindFull     DeploymentKind = "full"
	DeploymentKindBackend  DeploymentKind = "backend"
	DeploymentKindFrontend DeploymentKind = "frontend"
	DeploymentKindService  DeploymentKind = "service"
)

// Environment enum
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStage       Environment = "stage"
	EnvironmentProduction  Environment = "production"
)

// ParseEnvironment maps a raw flag value to an Environment.
func ParseEnvironment(raw string) (Environment, bool) {
	switch Environment(raw) {
	case EnvironmentDevelopment, EnvironmentStage, EnvironmentProduction:
		return Environment(raw), true
	}
	return "", false
}

// TargetType enum
type TargetType string

const (
	TargetLocal  TargetType = "local"
	TargetRemote TargetType = "remote"
)

// ProbeState enum
type ProbeState string

const (
	ProbeNone      ProbeState = "none"
	ProbeStarting  ProbeState = "starting"
	ProbeHealthy   ProbeState = "healthy"
	ProbeUnhealthy ProbeState = "unhealthy"
)
