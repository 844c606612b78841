package config

import (
	"fmt"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultLogLevel           = "info"
	DefaultWSURL              = "wss://ws.sixpence.ai/"
	DefaultOrigin             = "chrome-extension://bcakokeeafaehcajfkajcpbdkfnoahlh"
	DefaultUserAgent          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"
	DefaultAcceptLanguage     = "en-US,en;q=0.9"
	DefaultHandshakeTimeout   = 30 * time.Second
	DefaultWriteTimeout       = 10 * time.Second
	DefaultAuthTimeout        = 300 * time.Second
	DefaultHeartbeatInterval  = 30 * time.Second
	DefaultReconnectDelay     = 2 * time.Second
	DefaultRestartDelayMin    = 5 * time.Second
	DefaultRestartDelayMax    = 30 * time.Second
	DefaultAuthCacheTTL       = 120 * time.Second
	DefaultMaxErrors          = 3
	DefaultErrorWindow        = 120 * time.Second
	DefaultAuthMessage        = "Sign in to Sixpence extension\nWallet: {address}\nTimestamp: {timestamp}"
	DefaultAccountsFile       = "config/data/farm_accounts.txt"
	DefaultProxiesFile        = "config/data/proxies.txt"
	MinInitialDelayMin        = 30 * time.Second
	MinInitialDelayMax        = 60 * time.Second
	DefaultMonitorInterval    = 60 * time.Second
	DefaultRotationDelay      = 5 * time.Second
	DefaultDrainTimeout       = 30 * time.Second
	DefaultLeaderPollInterval = 1 * time.Second
	DefaultStoreDriver        = "sqlite"
	DefaultSQLitePath         = "data/accounts.db"
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultCounterBackend     = "mmap"
	DefaultRedisAddr          = "localhost:6379"
	DefaultRedisKey           = "pointfarm:live_connections"
	DefaultEventsTopic        = "pointfarm.points"
	DefaultRefreshInterval    = 10 * time.Minute
	DefaultRefreshMaxFailures = 5
	DefaultRefreshTimeout     = 30 * time.Second
	DefaultMetricsPath        = "/metrics"
)

func (c *FarmConfig) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}

	// Connection defaults
	conn := &c.Connection
	if conn.WSURL == "" {
		conn.WSURL = DefaultWSURL
	}
	if conn.Origin == "" {
		conn.Origin = DefaultOrigin
	}
	if conn.UserAgent == "" {
		conn.UserAgent = DefaultUserAgent
	}
	if conn.AcceptLanguage == "" {
		conn.AcceptLanguage = DefaultAcceptLanguage
	}
	if conn.HandshakeTimeout == 0 {
		conn.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if conn.WriteTimeout == 0 {
		conn.WriteTimeout = DefaultWriteTimeout
	}
	if conn.AuthTimeout == 0 {
		conn.AuthTimeout = DefaultAuthTimeout
	}
	if conn.HeartbeatInterval == 0 {
		conn.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if conn.ReconnectDelay == 0 {
		conn.ReconnectDelay = DefaultReconnectDelay
	}
	if conn.RestartDelayMin == 0 {
		conn.RestartDelayMin = DefaultRestartDelayMin
	}
	if conn.RestartDelayMax == 0 {
		conn.RestartDelayMax = DefaultRestartDelayMax
	}
	if conn.AuthCacheTTL == 0 {
		conn.AuthCacheTTL = DefaultAuthCacheTTL
	}
	if conn.MaxErrors == 0 {
		conn.MaxErrors = DefaultMaxErrors
	}
	if conn.ErrorWindow == 0 {
		conn.ErrorWindow = DefaultErrorWindow
	}
	if conn.AuthMessage == "" {
		conn.AuthMessage = DefaultAuthMessage
	}

	// Farm defaults
	farm := &c.Farm
	if farm.AccountsFile == "" {
		farm.AccountsFile = DefaultAccountsFile
	}
	if farm.ProxiesFile == "" {
		farm.ProxiesFile = DefaultProxiesFile
	}
	// Staggered starts keep thousands of accounts from authenticating at once.
	if farm.InitialDelayMin < MinInitialDelayMin {
		c.warnf("farm.initial_delay_min %s is below %s, raising it", farm.InitialDelayMin, MinInitialDelayMin)
		farm.InitialDelayMin = MinInitialDelayMin
	}
	if farm.InitialDelayMax < MinInitialDelayMax {
		c.warnf("farm.initial_delay_max %s is below %s, raising it", farm.InitialDelayMax, MinInitialDelayMax)
		farm.InitialDelayMax = MinInitialDelayMax
	}
	if farm.MonitorInterval == 0 {
		farm.MonitorInterval = DefaultMonitorInterval
	}
	if farm.RotationDelay == 0 {
		farm.RotationDelay = DefaultRotationDelay
	}
	if farm.DrainTimeout == 0 {
		farm.DrainTimeout = DefaultDrainTimeout
	}
	if farm.LeaderPollInterval == 0 {
		farm.LeaderPollInterval = DefaultLeaderPollInterval
	}

	// Store defaults
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = DefaultSQLitePath
	}
	applyDBDefaults(&c.Store.Postgres)

	// Counter defaults
	if c.Counter.Backend == "" {
		c.Counter.Backend = DefaultCounterBackend
	}
	if c.Counter.Redis.Addr == "" {
		c.Counter.Redis.Addr = DefaultRedisAddr
	}
	if c.Counter.Redis.Key == "" {
		c.Counter.Redis.Key = DefaultRedisKey
	}

	if c.Events.Topic == "" {
		c.Events.Topic = DefaultEventsTopic
	}

	// Auth refresh defaults
	if c.AuthRefresh.Interval == 0 {
		c.AuthRefresh.Interval = DefaultRefreshInterval
	}
	if c.AuthRefresh.MaxFailures == 0 {
		c.AuthRefresh.MaxFailures = DefaultRefreshMaxFailures
	}
	if c.AuthRefresh.Timeout == 0 {
		c.AuthRefresh.Timeout = DefaultRefreshTimeout
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

func (c *FarmConfig) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}
