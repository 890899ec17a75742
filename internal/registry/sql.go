package registry

import (
	"context"
	"fmt"

	"github.com/zulandar/semaphore/internal/models"
	"gorm.io/gorm"
)

// SQLRegistry reads workers from the workers table.
type SQLRegistry struct {
	db *gorm.DB
}

// NewSQLRegistry returns a registry backed by db.
func NewSQLRegistry(db *gorm.DB) *SQLRegistry {
	return &SQLRegistry{db: db}
}

// Collect returns every worker row ordered by name.
func (r *SQLRegistry) Collect(ctx context.Context) ([]Record, error) {
	if r.db == nil {
		return nil, fmt.Errorf("registry: database connection is required")
	}
	var rows []models.Worker
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("registry: query workers: %w: %w", ErrRegistryUnavailable, err)
	}

	records := make([]Record, len(rows))
	for i, w := range rows {
		records[i] = Record{
			Name:             w.Name,
			Hostname:         w.Hostname,
			Queues:           splitQueues(w.Queues),
			State:            State(w.State),
			SuccessfulJobs:   w.SuccessfulJobs,
			FailedJobs:       w.FailedJobs,
			TotalWorkingTime: w.TotalWorkingTime,
			LastHeartbeat:    w.LastHeartbeat,
		}
	}
	return records, nil
}
