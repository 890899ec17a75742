package dispatch

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/zulandar/semaphore/internal/config"
)

// New builds the dispatcher selected by cfg.Dispatch.Backend. client is only
// used by the redis backend.
func New(cfg *config.Config, client redis.UniversalClient) (Dispatcher, error) {
	switch cfg.Dispatch.Backend {
	case config.DispatchRedis:
		if client == nil {
			return nil, fmt.Errorf("dispatch: redis client is required")
		}
		return NewRedisDispatcher(client, cfg.Redis.List, cfg.Dispatch.Timeout), nil
	case config.DispatchCLI:
		return NewCLIDispatcher(CLIOpts{
			Command: cfg.Dispatch.Command,
			Host:    cfg.Redis.Host,
			Port:    cfg.Redis.Port,
			DB:      cfg.Redis.DB,
			List:    cfg.Redis.List,
			Timeout: cfg.Dispatch.Timeout,
		})
	default:
		return nil, fmt.Errorf("dispatch: unknown backend %q", cfg.Dispatch.Backend)
	}
}
