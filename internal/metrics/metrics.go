package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session metrics
var (
	SessionAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pointfarm_session_attempts_total",
			Help: "Total number of connection attempts",
		},
	)

	TransportErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pointfarm_transport_errors_total",
			Help: "Total number of transport errors by classified kind",
		},
		[]string{"kind"},
	)

	BreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pointfarm_breaker_trips_total",
			Help: "Total number of sessions ended by the error breaker",
		},
		[]string{"kind"},
	)

	TokenTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pointfarm_token_timeouts_total",
			Help: "Total number of attempts that never received a session token",
		},
	)

	InboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pointfarm_inbound_messages_total",
			Help: "Total number of inbound messages by type",
		},
		[]string{"type"},
	)

	HeartbeatsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pointfarm_heartbeats_sent_total",
			Help: "Total number of heartbeats sent",
		},
	)

	PointUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pointfarm_point_updates_total",
			Help: "Total number of point updates persisted",
		},
	)
)

// Connection gauges
var (
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pointfarm_live_connections",
			Help: "Authenticated connections held by this process",
		},
	)

	GlobalLiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pointfarm_global_live_connections",
			Help: "Authenticated connections across the farm, as of the last monitor tick",
		},
	)
)

// Account loop metrics
var (
	AccountRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pointfarm_account_restarts_total",
			Help: "Total number of finished account loops restarted by the monitor",
		},
	)

	AccountRetirements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pointfarm_account_retirements_total",
			Help: "Total number of account loops retired permanently",
		},
		[]string{"reason"},
	)

	ProxyRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pointfarm_proxy_rotations_total",
			Help: "Total number of proxy rotations after a failed session",
		},
	)

	AccountTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pointfarm_account_tasks",
			Help: "Account loops currently running in this process",
		},
	)
)

// Supervisor metrics
var (
	WorkersRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pointfarm_workers_running",
			Help: "Worker processes currently running",
		},
	)
)
