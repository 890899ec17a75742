// Package config provides YAML-based configuration loading for Semaphore.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"
)

// Registry backends.
const (
	RegistryRedis = "redis"
	RegistrySQL   = "sql"
)

// Dispatch backends.
const (
	DispatchRedis = "redis"
	DispatchCLI   = "cli"
)

// Scale modes.
const (
	ModeDirect = "direct"
	ModeTiered = "tiered"
)

// Permission levels, lowest to highest.
const (
	PermissionViewer   = "viewer"
	PermissionOperator = "operator"
	PermissionAdmin    = "admin"
)

// Config is the top-level Semaphore configuration, loaded from semaphore.yaml.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Log       LogConfig        `yaml:"log"`
	Redis     RedisConfig      `yaml:"redis"`
	Registry  RegistryConfig   `yaml:"registry"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Scale     ScaleConfig      `yaml:"scale"`
	Dispatch  DispatchConfig   `yaml:"dispatch"`
	Auth      AuthConfig       `yaml:"auth"`
	Notify    NotifyConfig     `yaml:"notify"`
	Schedules []ScheduleConfig `yaml:"schedules"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // empty writes to stderr
}

// RedisConfig holds connection settings for the Redis server that carries
// the signal list (and the worker registry when registry.backend is redis).
type RedisConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	DB             int           `yaml:"db"`
	Password       string        `yaml:"password"`
	List           string        `yaml:"list"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SocketTimeout  time.Duration `yaml:"socket_timeout"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// RegistryConfig selects where worker records are read from.
type RegistryConfig struct {
	Backend   string         `yaml:"backend"`
	KeyPrefix string         `yaml:"key_prefix"`
	Database  DatabaseConfig `yaml:"database"`
}

// DatabaseConfig holds SQL connection settings for the sql registry.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql or sqlite
	DSN      string `yaml:"dsn"`    // overrides host/port/user/database
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
	Path     string `yaml:"path"` // sqlite file
}

// MetricsConfig controls the exposition feed.
type MetricsConfig struct {
	Prefix string `yaml:"prefix"`
}

// ScaleConfig controls how scale requests become capacity units.
type ScaleConfig struct {
	Mode          string         `yaml:"mode"`
	Tiers         map[string]int `yaml:"tiers"`
	DefaultLevel  string         `yaml:"default_level"`
	FallbackLevel string         `yaml:"fallback_level"`
	DefaultSize   int            `yaml:"default_size"`
	MaxSize       int            `yaml:"max_size"`
	DefaultHours  float64        `yaml:"default_hours"`
}

// DispatchConfig selects how scale tokens reach the signal list.
type DispatchConfig struct {
	Backend string        `yaml:"backend"`
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig holds API keys for the scale endpoint.
type AuthConfig struct {
	Disabled           bool        `yaml:"disabled"`
	RequiredPermission string      `yaml:"required_permission"`
	Keys               []KeyConfig `yaml:"keys"`
}

// KeyConfig is a single API key and the permission it grants.
type KeyConfig struct {
	Name       string `yaml:"name"`
	Key        string `yaml:"key"`
	Permission string `yaml:"permission"`
}

// NotifyConfig holds optional chat destinations for scale announcements.
type NotifyConfig struct {
	Slack   ChatConfig `yaml:"slack"`
	Discord ChatConfig `yaml:"discord"`
}

// ChatConfig is a bot token plus the channel to post into.
type ChatConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// Enabled reports whether both token and channel are set.
func (c ChatConfig) Enabled() bool {
	return c.BotToken != "" && c.Channel != ""
}

// ScheduleConfig is a cron-driven scale request.
type ScheduleConfig struct {
	Name          string   `yaml:"name"`
	Cron          string   `yaml:"cron"`
	ScaleSize     *int     `yaml:"scale_size"`
	ScaleLevel    string   `yaml:"scale_level"`
	HoursToExpire *float64 `yaml:"hours_to_expire"`
}

// DefaultTiers is the built-in tier table used when scale.tiers is empty.
func DefaultTiers() map[string]int {
	return map[string]int{
		"MAXIMUM":  20,
		"STANDARD": 10,
		"LIGHT":    5,
	}
}

// PermissionRank orders permission names. Unknown names rank 0.
func PermissionRank(p string) int {
	switch strings.ToLower(p) {
	case PermissionViewer:
		return 1
	case PermissionOperator:
		return 2
	case PermissionAdmin:
		return 3
	default:
		return 0
	}
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "INFO"
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "127.0.0.1"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.List == "" {
		c.Redis.List = "eda-trino-scale-out"
	}
	if c.Redis.ConnectTimeout == 0 {
		c.Redis.ConnectTimeout = 10 * time.Second
	}
	if c.Redis.SocketTimeout == 0 {
		c.Redis.SocketTimeout = 10 * time.Second
	}

	if c.Registry.Backend == "" {
		c.Registry.Backend = RegistryRedis
	}
	if c.Registry.KeyPrefix == "" {
		c.Registry.KeyPrefix = "rq"
	}
	if c.Registry.Backend == RegistrySQL {
		db := &c.Registry.Database
		if db.Driver == "" {
			db.Driver = "mysql"
		}
		if db.Driver == "mysql" {
			if db.Host == "" {
				db.Host = "127.0.0.1"
			}
			if db.Port == 0 {
				db.Port = 3306
			}
			if db.User == "" {
				db.User = "root"
			}
		}
	}

	if c.Metrics.Prefix == "" {
		c.Metrics.Prefix = "redash_worker"
	}

	s := &c.Scale
	if s.Mode == "" {
		s.Mode = ModeDirect
	}
	s.Mode = strings.ToLower(s.Mode)
	if len(s.Tiers) == 0 {
		s.Tiers = DefaultTiers()
	} else {
		upper := make(map[string]int, len(s.Tiers))
		for name, units := range s.Tiers {
			upper[strings.ToUpper(name)] = units
		}
		s.Tiers = upper
	}
	if s.DefaultLevel == "" {
		s.DefaultLevel = "LIGHT"
	}
	if s.FallbackLevel == "" {
		s.FallbackLevel = "LIGHT"
	}
	s.DefaultLevel = strings.ToUpper(s.DefaultLevel)
	s.FallbackLevel = strings.ToUpper(s.FallbackLevel)
	if s.DefaultSize == 0 {
		s.DefaultSize = 20
	}
	if s.DefaultHours == 0 {
		if s.Mode == ModeTiered {
			s.DefaultHours = 0.5
		} else {
			s.DefaultHours = 2
		}
	}

	if c.Dispatch.Backend == "" {
		c.Dispatch.Backend = DispatchRedis
	}
	if c.Dispatch.Timeout == 0 {
		if c.Dispatch.Backend == DispatchCLI {
			c.Dispatch.Timeout = 30 * time.Second
		} else {
			c.Dispatch.Timeout = c.Redis.SocketTimeout
		}
	}
	if c.Dispatch.Backend == DispatchCLI && len(c.Dispatch.Command) == 0 {
		c.Dispatch.Command = []string{"redis-cli", "-h", "{host}", "-p", "{port}", "-n", "{db}", "LPUSH", "{list}", "{token}"}
	}

	if c.Auth.RequiredPermission == "" {
		c.Auth.RequiredPermission = PermissionAdmin
	}
	for i := range c.Auth.Keys {
		if c.Auth.Keys[i].Permission == "" {
			c.Auth.Keys[i].Permission = PermissionViewer
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Redis.ConnectTimeout < 0 || c.Redis.SocketTimeout < 0 {
		errs = append(errs, "redis timeouts must be positive")
	}
	if strings.Contains(c.Redis.List, " ") {
		errs = append(errs, "redis.list must not contain spaces")
	}

	switch c.Registry.Backend {
	case RegistryRedis:
	case RegistrySQL:
		db := c.Registry.Database
		switch db.Driver {
		case "mysql":
			if db.DSN == "" && db.Database == "" {
				errs = append(errs, "registry.database.database is required for mysql")
			}
		case "sqlite":
			if db.DSN == "" && db.Path == "" {
				errs = append(errs, "registry.database.path is required for sqlite")
			}
		default:
			errs = append(errs, fmt.Sprintf("registry.database.driver %q must be mysql or sqlite", db.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("registry.backend %q must be redis or sql", c.Registry.Backend))
	}

	if !model.IsValidMetricName(model.LabelValue(c.Metrics.Prefix + "_state")) {
		errs = append(errs, fmt.Sprintf("metrics.prefix %q is not a valid metric name prefix", c.Metrics.Prefix))
	}

	s := c.Scale
	switch s.Mode {
	case ModeDirect:
		if s.DefaultSize <= 0 {
			errs = append(errs, "scale.default_size must be positive")
		}
		if s.MaxSize < 0 {
			errs = append(errs, "scale.max_size must not be negative")
		}
		if s.MaxSize > 0 && s.DefaultSize > s.MaxSize {
			errs = append(errs, "scale.default_size exceeds scale.max_size")
		}
	case ModeTiered:
		names := make([]string, 0, len(s.Tiers))
		for name := range s.Tiers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if s.Tiers[name] <= 0 {
				errs = append(errs, fmt.Sprintf("scale.tiers.%s must be positive", name))
			}
			if strings.Contains(name, "#") {
				errs = append(errs, fmt.Sprintf("scale.tiers.%s must not contain '#'", name))
			}
		}
		if _, ok := s.Tiers[s.DefaultLevel]; !ok {
			errs = append(errs, fmt.Sprintf("scale.default_level %q is not a configured tier", s.DefaultLevel))
		}
		if _, ok := s.Tiers[s.FallbackLevel]; !ok {
			errs = append(errs, fmt.Sprintf("scale.fallback_level %q is not a configured tier", s.FallbackLevel))
		}
	default:
		errs = append(errs, fmt.Sprintf("scale.mode %q must be direct or tiered", s.Mode))
	}
	if s.DefaultHours <= 0 {
		errs = append(errs, "scale.default_hours must be positive")
	}

	switch c.Dispatch.Backend {
	case DispatchRedis, DispatchCLI:
	default:
		errs = append(errs, fmt.Sprintf("dispatch.backend %q must be redis or cli", c.Dispatch.Backend))
	}
	if c.Dispatch.Timeout < 0 {
		errs = append(errs, "dispatch.timeout must be positive")
	}

	if PermissionRank(c.Auth.RequiredPermission) == 0 {
		errs = append(errs, fmt.Sprintf("auth.required_permission %q is unknown", c.Auth.RequiredPermission))
	}
	if !c.Auth.Disabled && len(c.Auth.Keys) == 0 {
		errs = append(errs, "auth.keys is required unless auth.disabled is set")
	}
	seen := make(map[string]bool)
	for i, k := range c.Auth.Keys {
		if k.Key == "" {
			errs = append(errs, fmt.Sprintf("auth.keys[%d].key is required", i))
		}
		if seen[k.Key] && k.Key != "" {
			errs = append(errs, fmt.Sprintf("auth.keys[%d].key is duplicated", i))
		}
		seen[k.Key] = true
		if PermissionRank(k.Permission) == 0 {
			errs = append(errs, fmt.Sprintf("auth.keys[%d].permission %q is unknown", i, k.Permission))
		}
	}

	for i, sc := range c.Schedules {
		if sc.Cron == "" {
			errs = append(errs, fmt.Sprintf("schedules[%d].cron is required", i))
		}
		if sc.ScaleSize != nil && sc.ScaleLevel != "" {
			errs = append(errs, fmt.Sprintf("schedules[%d] sets both scale_size and scale_level", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
