package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *FarmConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}

	if err := c.Connection.validate(); err != nil {
		return err
	}

	if c.Farm.Processes < 0 {
		return errors.New("farm.processes must be >= 0")
	}
	if c.Farm.InitialDelayMin > c.Farm.InitialDelayMax {
		return fmt.Errorf("farm.initial_delay_min (%s) cannot exceed initial_delay_max (%s)",
			c.Farm.InitialDelayMin, c.Farm.InitialDelayMax)
	}
	if c.Farm.MonitorInterval <= 0 {
		return errors.New("farm.monitor_interval must be > 0")
	}
	if c.Farm.DrainTimeout <= 0 {
		return errors.New("farm.drain_timeout must be > 0")
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required")
		}
	case "postgres":
		if err := c.Store.Postgres.validate("store.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("store.driver must be postgres or sqlite, got %q", c.Store.Driver)
	}

	switch c.Counter.Backend {
	case "mmap":
	case "redis":
		if c.Counter.Redis.Addr == "" {
			return errors.New("counter.redis.addr is required")
		}
	default:
		return fmt.Errorf("counter.backend must be mmap or redis, got %q", c.Counter.Backend)
	}

	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		return errors.New("events.topic is required when events.brokers is set")
	}

	if c.AuthRefresh.URL != "" && c.AuthRefresh.MaxFailures < 1 {
		return errors.New("auth_refresh.max_failures must be >= 1")
	}
	if c.AuthRefresh.URL != "" && c.AuthRefresh.Interval <= 0 {
		return fmt.Errorf("auth_refresh.interval must be > 0, got %s", c.AuthRefresh.Interval)
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 0 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (cc *ConnectionConfig) validate() error {
	if cc.WSURL == "" {
		return errors.New("connection.ws_url is required")
	}
	if cc.MaxErrors < 1 {
		return errors.New("connection.max_errors must be >= 1")
	}
	if cc.ErrorWindow <= 0 {
		return errors.New("connection.error_window must be > 0")
	}
	if cc.HeartbeatInterval <= 0 {
		return errors.New("connection.heartbeat_interval must be > 0")
	}
	if cc.AuthTimeout <= 0 {
		return errors.New("connection.auth_timeout must be > 0")
	}
	if cc.RestartDelayMin > cc.RestartDelayMax {
		return fmt.Errorf("connection.restart_delay_min (%s) cannot exceed restart_delay_max (%s)",
			cc.RestartDelayMin, cc.RestartDelayMax)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
