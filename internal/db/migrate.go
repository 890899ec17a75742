package db

import (
	"fmt"

	"github.com/zulandar/semaphore/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the GORM models Semaphore reads.
func AllModels() []interface{} {
	return []interface{}{
		&models.Worker{},
	}
}

// AutoMigrate creates or updates the registry tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// UpsertWorker inserts a worker row or refreshes every mutable column of an
// existing row with the same name.
func UpsertWorker(db *gorm.DB, w *models.Worker) error {
	if w.Name == "" {
		return fmt.Errorf("db: upsert worker: name is required")
	}
	result := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"hostname", "queues", "state", "successful_jobs",
			"failed_jobs", "total_working_time", "last_heartbeat",
		}),
	}).Create(w)
	if result.Error != nil {
		return fmt.Errorf("db: upsert worker %q: %w", w.Name, result.Error)
	}
	return nil
}
