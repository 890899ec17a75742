package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// rqTimeLayouts are the heartbeat encodings written by RQ versions in use.
var rqTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// RedisRegistry reads the RQ worker registry: a set "<prefix>:workers" of
// worker keys "<prefix>:worker:<name>", each a hash of worker fields.
type RedisRegistry struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRegistry returns a registry reading keys under prefix (default "rq").
func NewRedisRegistry(client redis.UniversalClient, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = "rq"
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

// Collect returns every registered worker, sorted by key. Workers that
// vanish between listing and reading are skipped.
func (r *RedisRegistry) Collect(ctx context.Context) ([]Record, error) {
	keys, err := r.client.SMembers(ctx, r.prefix+":workers").Result()
	if err != nil {
		return nil, fmt.Errorf("registry: list workers: %w: %w", ErrRegistryUnavailable, err)
	}
	if len(keys) == 0 {
		return []Record{}, nil
	}
	sort.Strings(keys)

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !isReplyError(err) {
		return nil, fmt.Errorf("registry: read workers: %w: %w", ErrRegistryUnavailable, err)
	}

	records := make([]Record, 0, len(keys))
	keyPrefix := r.prefix + ":worker:"
	for i, key := range keys {
		if err := cmds[i].Err(); err != nil {
			if !isReplyError(err) {
				return nil, fmt.Errorf("registry: read %s: %w: %w", key, ErrRegistryUnavailable, err)
			}
			log.Printf("registry: skipping %s: %v", key, err)
			continue
		}
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		records = append(records, parseWorkerHash(strings.TrimPrefix(key, keyPrefix), fields))
	}
	return records, nil
}

// isReplyError reports whether err is an error reply from the server, such
// as WRONGTYPE, rather than a transport failure.
func isReplyError(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr)
}

// parseWorkerHash converts an RQ worker hash into a Record. Malformed
// numeric fields are logged and read as zero.
func parseWorkerHash(name string, h map[string]string) Record {
	return Record{
		Name:             name,
		Hostname:         h["hostname"],
		Queues:           splitQueues(h["queues"]),
		State:            State(h["state"]),
		SuccessfulJobs:   parseCount(name, "successful_job_count", h["successful_job_count"]),
		FailedJobs:       parseCount(name, "failed_job_count", h["failed_job_count"]),
		TotalWorkingTime: parseSeconds(name, h["total_working_time"]),
		LastHeartbeat:    parseHeartbeat(name, h["last_heartbeat"]),
	}
}

func parseCount(worker, field, v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("registry: worker %s: bad %s %q", worker, field, v)
		return 0
	}
	return n
}

func parseSeconds(worker, v string) float64 {
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("registry: worker %s: bad total_working_time %q", worker, v)
		return 0
	}
	return f
}

func parseHeartbeat(worker, v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	for _, layout := range rqTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	log.Printf("registry: worker %s: bad last_heartbeat %q", worker, v)
	return time.Time{}
}
