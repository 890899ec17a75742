package main

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/zulandar/semaphore/internal/config"
	"github.com/zulandar/semaphore/internal/db"
	"github.com/zulandar/semaphore/internal/dispatch"
	"github.com/zulandar/semaphore/internal/logging"
	"github.com/zulandar/semaphore/internal/notify"
	"github.com/zulandar/semaphore/internal/notify/discord"
	"github.com/zulandar/semaphore/internal/notify/slack"
	"github.com/zulandar/semaphore/internal/redisconn"
	"github.com/zulandar/semaphore/internal/registry"
	"github.com/zulandar/semaphore/internal/scale"
	"github.com/zulandar/semaphore/internal/signal"
	"gorm.io/gorm"
)

const defaultConfigPath = "semaphore.yaml"

// runtime holds the collaborators built from one config file. Close
// releases everything that was opened.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	redis   *redis.Client
	gormDB  *gorm.DB
	closers []func() error
}

func loadRuntime(configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newRuntime(cfg)
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	logger, closeLog, err := logging.Open(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, closers: []func() error{closeLog}}, nil
}

// redisClient lazily opens the shared Redis client.
func (r *runtime) redisClient() *redis.Client {
	if r.redis == nil {
		r.redis = redisconn.New(r.cfg.Redis)
		r.closers = append(r.closers, r.redis.Close)
	}
	return r.redis
}

// database lazily opens the registry database.
func (r *runtime) database() (*gorm.DB, error) {
	if r.gormDB != nil {
		return r.gormDB, nil
	}
	gormDB, err := db.Open(r.cfg.Registry.Database)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("db: underlying connection: %w", err)
	}
	r.gormDB = gormDB
	r.closers = append(r.closers, sqlDB.Close)
	return gormDB, nil
}

func (r *runtime) collector() (registry.Collector, error) {
	switch r.cfg.Registry.Backend {
	case config.RegistrySQL:
		gormDB, err := r.database()
		if err != nil {
			return nil, err
		}
		return registry.NewSQLRegistry(gormDB), nil
	default:
		return registry.NewRedisRegistry(r.redisClient(), r.cfg.Registry.KeyPrefix), nil
	}
}

func (r *runtime) dispatcher() (dispatch.Dispatcher, error) {
	var client redis.UniversalClient
	if r.cfg.Dispatch.Backend == config.DispatchRedis {
		client = r.redisClient()
	}
	return dispatch.New(r.cfg, client)
}

func (r *runtime) notifier() (notify.Notifier, error) {
	var multi notify.Multi
	if c := r.cfg.Notify.Slack; c.Enabled() {
		n, err := slack.New(slack.Opts{BotToken: c.BotToken, ChannelID: c.Channel})
		if err != nil {
			return nil, err
		}
		multi = append(multi, n)
	}
	if c := r.cfg.Notify.Discord; c.Enabled() {
		n, err := discord.New(discord.Opts{BotToken: c.BotToken, ChannelID: c.Channel})
		if err != nil {
			return nil, err
		}
		multi = append(multi, n)
	}
	if len(multi) == 0 {
		return notify.Nop{}, nil
	}
	return multi, nil
}

func (r *runtime) service() (*signal.Service, error) {
	d, err := r.dispatcher()
	if err != nil {
		return nil, err
	}
	n, err := r.notifier()
	if err != nil {
		return nil, err
	}
	return &signal.Service{
		Encoder:    scale.NewEncoder(r.cfg.Scale),
		Dispatcher: d,
		Notifier:   n,
		Logger:     r.logger,
	}, nil
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}
