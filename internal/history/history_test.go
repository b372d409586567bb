package history

import (
	"testing"

	"github.com/stackpilot/stackpilot/internal/database"
	"github.com/stackpilot/stackpilot/internal/models"
	"github.com/stackpilot/stackpilot/pkg/utils"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.OpenEphemeral()
	if err != nil {
		t.Fatalf("open ephemeral database: %v", err)
	}
	return New(db)
}

func createRecord(t *testing.T, s *Store, env models.Environment) uint {
	t.Helper()
	id, err := s.Create(Draft{
		Environment: env,
		Kind:        models.DeploymentKindBackend,
		User:        "tester",
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	return id
}

func TestCreateAndFinalize(t *testing.T) {
	s := newTestStore(t)
	id := createRecord(t, s, models.EnvironmentDevelopment)

	record, err := s.Latest(nil)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if record.ID != id || record.Status != models.DeploymentStatusInProgress {
		t.Fatalf("unexpected fresh record: %+v", record)
	}

	if err := s.Finalize(id, models.DeploymentStatusSuccess, utils.Ptr(12.5), nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	record, err = s.Latest(nil)
	if err != nil {
		t.Fatalf("latest after finalize: %v", err)
	}
	if record.Status != models.DeploymentStatusSuccess {
		t.Fatalf("status = %s, want success", record.Status)
	}
	if record.DurationSeconds == nil || *record.DurationSeconds != 12.5 {
		t.Fatalf("duration = %v, want 12.5", record.DurationSeconds)
	}
}

func TestFinalizeRejectsNonTerminalStatus(t *testing.T) {
	s := newTestStore(t)
	id := createRecord(t, s, models.EnvironmentDevelopment)

	if err := s.Finalize(id, models.DeploymentStatusInProgress, nil, nil); err == nil {
		t.Fatalf("expected finalize to reject in_progress")
	}
	if err := s.Finalize(id, models.DeploymentStatusRolledBack, nil, nil); err == nil {
		t.Fatalf("expected finalize to reject rolled_back")
	}
}

func TestMarkRolledBack(t *testing.T) {
	s := newTestStore(t)
	id := createRecord(t, s, models.EnvironmentDevelopment)

	if err := s.MarkRolledBack(id); err == nil {
		t.Fatalf("expected rollback of an in_progress record to be rejected")
	}

	if err := s.Finalize(id, models.DeploymentStatusSuccess, nil, nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := s.MarkRolledBack(id); err != nil {
		t.Fatalf("mark rolled back: %v", err)
	}

	record, err := s.Latest(nil)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if record.Status != models.DeploymentStatusRolledBack {
		t.Fatalf("status = %s, want rolled_back", record.Status)
	}
}

func TestQueryOrderAndEnvironmentFilter(t *testing.T) {
	s := newTestStore(t)
	createRecord(t, s, models.EnvironmentDevelopment)
	createRecord(t, s, models.EnvironmentProduction)
	last := createRecord(t, s, models.EnvironmentDevelopment)

	records, err := s.Query(10, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].ID != last {
		t.Fatalf("expected most recent record first, got id %d", records[0].ID)
	}

	env := models.EnvironmentProduction
	records, err = s.Query(10, &env)
	if err != nil {
		t.Fatalf("filtered query: %v", err)
	}
	if len(records) != 1 || records[0].Environment != env {
		t.Fatalf("unexpected filtered result: %+v", records)
	}
}

func TestRetainKeepsMostRecent(t *testing.T) {
	s := newTestStore(t)
	var ids []uint
	for i := 0; i < 5; i++ {
		ids = append(ids, createRecord(t, s, models.EnvironmentDevelopment))
	}

	if err := s.Retain(2); err != nil {
		t.Fatalf("retain: %v", err)
	}

	records, err := s.Query(10, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 surviving records, got %d", len(records))
	}
	if records[0].ID != ids[4] || records[1].ID != ids[3] {
		t.Fatalf("wrong records survived: %d, %d", records[0].ID, records[1].ID)
	}
}

func TestStatsRounding(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		id := createRecord(t, s, models.EnvironmentDevelopment)
		status := models.DeploymentStatusSuccess
		if i == 2 {
			status = models.DeploymentStatusFailed
		}
		if err := s.Finalize(id, status, nil, nil); err != nil {
			t.Fatalf("finalize: %v", err)
		}
	}

	stats, err := s.Stats(nil)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Success != 2 || stats.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.SuccessRate != 66.67 {
		t.Fatalf("success rate = %v, want 66.67", stats.SuccessRate)
	}
}

func TestStatsEmpty(t *testing.T) {
	s := newTestStore(t)
	stats, err := s.Stats(nil)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 0 || stats.SuccessRate != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}
