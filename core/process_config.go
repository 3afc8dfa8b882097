package core

import (
	"os"
	"strconv"
	"time"
)

// ProcessConfig holds process-level settings for the nexusd server:
// listen ports, storage DSNs, and default timeouts. LoadProcessConfig
// applies three layers (defaults -> env vars -> functional options). It
// is a separate document from the hot-reloadable routing configuration,
// which lives under routing.Config.
type ProcessConfig struct {
	AdminPort      int           `json:"admin_port" env:"NEXUS_ADMIN_PORT" default:"8090"`
	RoutingConfigPath string     `json:"routing_config_path" env:"NEXUS_ROUTING_CONFIG" default:"./config/routing_config.json"`
	CapabilitySeedPath string    `json:"capability_seed_path" env:"NEXUS_CAPABILITY_SEED" default:""`
	SQLiteDSN      string        `json:"sqlite_dsn" env:"NEXUS_SQLITE_DSN" default:"./data/nexus.db"`
	AuditDir       string        `json:"audit_dir" env:"NEXUS_AUDIT_DIR" default:"./data/audit"`
	RedisAddr      string        `json:"redis_addr" env:"NEXUS_REDIS_ADDR" default:""`
	DefaultTimeout time.Duration `json:"default_timeout" env:"NEXUS_DEFAULT_TIMEOUT" default:"30s"`
	MaxSubTasks    int           `json:"max_sub_tasks" env:"NEXUS_MAX_SUB_TASKS" default:"5"`
}

// ProcessOption mutates a ProcessConfig. Mirrors the teacher's functional
// options pattern used for AIConfig/Config.
type ProcessOption func(*ProcessConfig)

func WithAdminPort(port int) ProcessOption {
	return func(c *ProcessConfig) { c.AdminPort = port }
}

func WithRoutingConfigPath(path string) ProcessOption {
	return func(c *ProcessConfig) { c.RoutingConfigPath = path }
}

func WithSQLiteDSN(dsn string) ProcessOption {
	return func(c *ProcessConfig) { c.SQLiteDSN = dsn }
}

func WithRedisAddr(addr string) ProcessOption {
	return func(c *ProcessConfig) { c.RedisAddr = addr }
}

// LoadProcessConfig builds a ProcessConfig from defaults, then env vars,
// then the supplied functional options, in that priority order.
func LoadProcessConfig(opts ...ProcessOption) *ProcessConfig {
	c := &ProcessConfig{
		AdminPort:         8090,
		RoutingConfigPath: "./config/routing_config.json",
		SQLiteDSN:         "./data/nexus.db",
		AuditDir:          "./data/audit",
		DefaultTimeout:    30 * time.Second,
		MaxSubTasks:       5,
	}

	if v := os.Getenv("NEXUS_ADMIN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AdminPort = n
		}
	}
	if v := os.Getenv("NEXUS_ROUTING_CONFIG"); v != "" {
		c.RoutingConfigPath = v
	}
	if v := os.Getenv("NEXUS_CAPABILITY_SEED"); v != "" {
		c.CapabilitySeedPath = v
	}
	if v := os.Getenv("NEXUS_SQLITE_DSN"); v != "" {
		c.SQLiteDSN = v
	}
	if v := os.Getenv("NEXUS_AUDIT_DIR"); v != "" {
		c.AuditDir = v
	}
	if v := os.Getenv("NEXUS_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("NEXUS_DEFAULT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DefaultTimeout = d
		}
	}
	if v := os.Getenv("NEXUS_MAX_SUB_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxSubTasks = n
		}
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}
