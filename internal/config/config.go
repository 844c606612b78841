package config

import "time"

// FarmConfig is the root configuration shared by the supervisor and its workers.
type FarmConfig struct {
	Instance    InstanceConfig    `yaml:"instance"`
	Logging     LoggingConfig     `yaml:"logging"`
	Connection  ConnectionConfig  `yaml:"connection"`
	Farm        FarmSettings      `yaml:"farm"`
	Store       StoreConfig       `yaml:"store"`
	Counter     CounterConfig     `yaml:"counter"`
	Events      EventsConfig      `yaml:"events"`
	AuthRefresh AuthRefreshConfig `yaml:"auth_refresh"`
	Metrics     MetricsConfig     `yaml:"metrics"`

	// Warnings collects adjustments made while applying defaults.
	Warnings []string `yaml:"-"`
}

// InstanceConfig identifies this farm.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ConnectionConfig holds scoring-service WebSocket settings.
type ConnectionConfig struct {
	WSURL              string        `yaml:"ws_url"`
	Origin             string        `yaml:"origin"`
	UserAgent          string        `yaml:"user_agent"`
	AcceptLanguage     string        `yaml:"accept_language"`
	InsecureSkipVerify *bool         `yaml:"insecure_skip_verify"` // Vendor certificate quirk; nil = default (true)
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	AuthTimeout        time.Duration `yaml:"auth_timeout"`       // Max wait for the session token
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"` // Application-level heartbeat cadence
	ReconnectDelay     time.Duration `yaml:"reconnect_delay"`    // Fixed delay between attempts
	RestartDelayMin    time.Duration `yaml:"restart_delay_min"`  // Randomised delay after a token timeout
	RestartDelayMax    time.Duration `yaml:"restart_delay_max"`
	AuthCacheTTL       time.Duration `yaml:"auth_cache_ttl"`
	MaxErrors          int           `yaml:"max_errors"`
	ErrorWindow        time.Duration `yaml:"error_window"`
	CountCommonErrors  *bool         `yaml:"count_common_errors"` // nil = default (true)
	AuthMessage        string        `yaml:"auth_message"`        // Template with {address} and {timestamp}
}

// FarmSettings holds process, pool and account-loop settings.
type FarmSettings struct {
	Processes              int           `yaml:"processes"` // 0 = cpu_count-1
	AccountsFile           string        `yaml:"accounts_file"`
	ProxiesFile            string        `yaml:"proxies_file"`
	ShuffleAccounts        bool          `yaml:"shuffle_accounts"`
	ShuffleSeed            int64         `yaml:"shuffle_seed"` // 0 = time-based
	DisableAutoProxyChange bool          `yaml:"disable_auto_proxy_change"`
	UniqueProxies          bool          `yaml:"check_uniqueness_of_proxies"`
	InitialDelayMin        time.Duration `yaml:"initial_delay_min"`
	InitialDelayMax        time.Duration `yaml:"initial_delay_max"`
	MonitorInterval        time.Duration `yaml:"monitor_interval"`
	RotationDelay          time.Duration `yaml:"rotation_delay"`
	DrainTimeout           time.Duration `yaml:"drain_timeout"`
	LeaderPollInterval     time.Duration `yaml:"leader_poll_interval"`
}

// StoreConfig selects the account store backend.
type StoreConfig struct {
	Driver     string   `yaml:"driver"` // "postgres" or "sqlite"
	SQLitePath string   `yaml:"sqlite_path"`
	Postgres   DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// CounterConfig selects the live-connection counter backend.
type CounterConfig struct {
	Backend string      `yaml:"backend"` // "mmap" or "redis"
	Path    string      `yaml:"path"`    // mmap file; "" = temp dir
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds the Redis connection used by the redis counter backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// EventsConfig enables publishing point updates to Kafka. Empty brokers disable it.
type EventsConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// AuthRefreshConfig configures the leader's token refresh loop. Empty URL disables it.
type AuthRefreshConfig struct {
	URL          string        `yaml:"url"`
	RefreshToken string        `yaml:"refresh_token"`
	Interval     time.Duration `yaml:"interval"`
	MaxFailures  int           `yaml:"max_failures"`
	Timeout      time.Duration `yaml:"timeout"`
}

// MetricsConfig holds Prometheus metrics settings. Port 0 disables the listeners.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// SkipTLSVerify reports whether certificate verification is disabled.
func (c ConnectionConfig) SkipTLSVerify() bool {
	return c.InsecureSkipVerify == nil || *c.InsecureSkipVerify
}

// CountsCommonErrors reports whether common/expected errors feed the breaker.
func (c ConnectionConfig) CountsCommonErrors() bool {
	return c.CountCommonErrors == nil || *c.CountCommonErrors
}
