// Package registry reads worker state from the job-queue system and
// normalizes it into Records.
package registry

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrRegistryUnavailable is wrapped by every error caused by the registry
// backend being unreachable or failing a read.
var ErrRegistryUnavailable = errors.New("worker registry unavailable")

// State is a worker's runtime state as reported by the job-queue system.
type State string

// Known worker states. Backends may report others (e.g. "started",
// "suspended"); they are carried verbatim.
const (
	StateIdle State = "idle"
	StateBusy State = "busy"
)

// Record is one snapshot of a single worker process.
type Record struct {
	Name             string
	Hostname         string
	Queues           []string
	State            State
	SuccessfulJobs   int64
	FailedJobs       int64
	TotalWorkingTime float64 // seconds
	LastHeartbeat    time.Time
}

// Idle reports whether the worker is idle.
func (r Record) Idle() bool {
	return r.State == StateIdle
}

// QueuesLabel joins the queue names with commas.
func (r Record) QueuesLabel() string {
	return strings.Join(r.Queues, ",")
}

// Collector returns every worker known to the registry at call time.
type Collector interface {
	Collect(ctx context.Context) ([]Record, error)
}

// splitQueues parses a comma-joined queue list, dropping empty entries.
func splitQueues(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, q := range strings.Split(s, ",") {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
