package models

import "time"

// Worker is a job-queue worker process as recorded by SQL-backed job systems.
// Queues holds the drained queue names joined with commas.
type Worker struct {
	Name             string    `gorm:"primaryKey;size:128"`
	Hostname         string    `gorm:"size:255"`
	Queues           string    `gorm:"size:1024"`
	State            string    `gorm:"size:16;index"`
	SuccessfulJobs   int64     `gorm:"not null;default:0"`
	FailedJobs       int64     `gorm:"not null;default:0"`
	TotalWorkingTime float64   `gorm:"not null;default:0"`
	LastHeartbeat    time.Time `gorm:"index"`
	BirthDate        time.Time
}
