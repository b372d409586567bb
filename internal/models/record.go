package models

import "time"

// DeploymentRecord is the unit of audit. A record is created when an
// orchestrated operation starts and receives exactly one terminal status
// update afterward.
type DeploymentRecord struct {
	ID              uint             `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Timestamp       time.Time        `gorm:"autoCreateTime;column:timestamp" json:"timestamp"`
	Environment     Environment      `gorm:"size:32;index;column:environment" json:"environment"`
	Kind            DeploymentKind   `gorm:"size:32;column:kind" json:"kind"`
	Service         *string          `gorm:"size:191;column:service" json:"service,omitempty"`
	CommitHash      *string          `gorm:"size:64;column:commitHash" json:"commitHash,omitempty"`
	DurationSeconds *float64         `gorm:"column:durationSeconds" json:"durationSeconds,omitempty"`
	Status          DeploymentStatus `gorm:"size:32;default:pending;column:status" json:"status"`
	Logs            *string          `gorm:"type:text;column:logs" json:"logs,omitempty"`
	User            string           `gorm:"size:191;column:user" json:"user"`
	CreatedAt       time.Time        `gorm:"autoCreateTime;column:createdAt" json:"createdAt"`
}

func (DeploymentRecord) TableName() string {
	return "deployments"
}

// DeploymentStats summarizes the outcome distribution of recorded deploys.
type DeploymentStats struct {
	Total       int64   `json:"total"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"successRate"`
}
