// Package history is the durable, append-mostly log of deployment
// attempts. Create and Finalize are the only paths that mutate a record;
// MarkRolledBack is the one explicit post-terminal mutation.
package history

import (
	"fmt"
	"log"
	"math"

	"gorm.io/gorm"

	"github.com/stackpilot/stackpilot/internal/models"
)

// Store persists deployment records.
type Store struct {
	db *gorm.DB
}

// New returns a store backed by the given database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Draft carries the fields known when an orchestrated operation begins.
type Draft struct {
	Environment models.Environment
	Kind        models.DeploymentKind
	Service     *string
	CommitHash  *string
	User        string
}

// Create inserts a record with status in_progress and returns its id.
func (s *Store) Create(draft Draft) (uint, error) {
	record := models.DeploymentRecord{
		Environment: draft.Environment,
		Kind:        draft.Kind,
		Service:     draft.Service,
		CommitHash:  draft.CommitHash,
		Status:      models.DeploymentStatusInProgress,
		User:        draft.User,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return 0, fmt.Errorf("failed to create deployment record: %w", err)
	}
	return record.ID, nil
}

// Finalize applies the single terminal status update for a record. A
// repeated call is a caller error; the last write wins but is logged.
func (s *Store) Finalize(id uint, status models.DeploymentStatus, duration *float64, diagnostic *string) error {
	if status != models.DeploymentStatusSuccess && status != models.DeploymentStatusFailed {
		return fmt.Errorf("finalize only accepts success or failed, got %s", status)
	}

	var record models.DeploymentRecord
	if err := s.db.First(&record, id).Error; err != nil {
		return fmt.Errorf("deployment record %d not found: %w", id, err)
	}
	if record.Status.IsTerminal() {
		log.Printf("[History] record %d finalized again (was %s, now %s)", id, record.Status, status)
	}

	updates := map[string]interface{}{"status": status}
	if duration != nil {
		updates["durationSeconds"] = *duration
	}
	if diagnostic != nil {
		updates["logs"] = *diagnostic
	}
	if err := s.db.Model(&models.DeploymentRecord{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to finalize deployment record %d: %w", id, err)
	}
	return nil
}

// MarkRolledBack flags a record as rolled back. Only records already in a
// terminal state are accepted.
func (s *Store) MarkRolledBack(id uint) error {
	var record models.DeploymentRecord
	if err := s.db.First(&record, id).Error; err != nil {
		return fmt.Errorf("deployment record %d not found: %w", id, err)
	}
	if !record.Status.IsTerminal() {
		return fmt.Errorf("deployment record %d is still %s and cannot be rolled back", id, record.Status)
	}
	return s.db.Model(&models.DeploymentRecord{}).
		Where("id = ?", id).
		Update("status", models.DeploymentStatusRolledBack).Error
}

// Latest returns the most recent record, optionally filtered to an
// environment.
func (s *Store) Latest(env *models.Environment) (*models.DeploymentRecord, error) {
	records, err := s.Query(1, env)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &records[0], nil
}

// Query returns up to limit records, most recent first.
func (s *Store) Query(limit int, env *models.Environment) ([]models.DeploymentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	q := s.db.Model(&models.DeploymentRecord{}).Order("id DESC").Limit(limit)
	if env != nil {
		q = q.Where("environment = ?", *env)
	}
	var records []models.DeploymentRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query deployment history: %w", err)
	}
	return records, nil
}

// Stats derives outcome statistics, with the success rate rounded to two
// decimals.
func (s *Store) Stats(env *models.Environment) (models.DeploymentStats, error) {
	var stats models.DeploymentStats

	base := s.db.Model(&models.DeploymentRecord{})
	if env != nil {
		base = base.Where("environment = ?", *env)
	}
	if err := base.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return stats, fmt.Errorf("failed to count deployments: %w", err)
	}
	if err := base.Session(&gorm.Session{}).
		Where("status = ?", models.DeploymentStatusSuccess).
		Count(&stats.Success).Error; err != nil {
		return stats, fmt.Errorf("failed to count successful deployments: %w", err)
	}
	if err := base.Session(&gorm.Session{}).
		Where("status = ?", models.DeploymentStatusFailed).
		Count(&stats.Failed).Error; err != nil {
		return stats, fmt.Errorf("failed to count failed deployments: %w", err)
	}
	if stats.Total > 0 {
		rate := float64(stats.Success) / float64(stats.Total) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}
	return stats, nil
}

// Retain deletes all but the lastN most recent records.
func (s *Store) Retain(lastN int) error {
	if lastN < 0 {
		return fmt.Errorf("retain count must be non-negative")
	}
	var keep []uint
	if err := s.db.Model(&models.DeploymentRecord{}).
		Order("id DESC").Limit(lastN).Pluck("id", &keep).Error; err != nil {
		return fmt.Errorf("failed to select retained records: %w", err)
	}
	q := s.db.Where("1 = 1")
	if len(keep) > 0 {
		q = s.db.Where("id NOT IN ?", keep)
	}
	if err := q.Delete(&models.DeploymentRecord{}).Error; err != nil {
		return fmt.Errorf("failed to prune deployment history: %w", err)
	}
	return nil
}
