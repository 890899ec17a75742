// Package redisconn builds the go-redis client shared by the registry and
// the signal dispatcher.
package redisconn

import (
	"github.com/redis/go-redis/v9"
	"github.com/zulandar/semaphore/internal/config"
)

// New returns a client for cfg. Automatic command retries are disabled so a
// failed push is reported once and never silently re-sent. Context
// deadlines are honored on every command.
func New(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:                  cfg.Addr(),
		DB:                    cfg.DB,
		Password:              cfg.Password,
		DialTimeout:           cfg.ConnectTimeout,
		ReadTimeout:           cfg.SocketTimeout,
		WriteTimeout:          cfg.SocketTimeout,
		MaxRetries:            -1,
		ContextTimeoutEnabled: true,
	})
}
