package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backend API metrics
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_backend_request_duration_seconds",
			Help:    "Latency of requests made to the backend API",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// Session metrics
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_login_attempts_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"},
	)

	SessionRestores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_session_restores_total",
			Help: "Session restorations on start by outcome",
		},
		[]string{"outcome"},
	)

	SessionAuthenticated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_session_authenticated",
			Help: "1 when a user is logged in, 0 otherwise",
		},
	)

	// Realtime channel metrics
	ChannelConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_channel_connect_attempts_total",
			Help: "Realtime channel connection attempts by result",
		},
		[]string{"path", "result"},
	)

	ChannelState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "portal_channel_state",
			Help: "Current realtime channel state (0 connecting, 1 open, 2 closed, 3 stopped)",
		},
		[]string{"path"},
	)

	ChannelReconnectDelay = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_channel_reconnect_delay_seconds",
			Help:    "Backoff delay scheduled before each reconnect",
			Buckets: []float64{1, 2, 4, 8, 16, 30},
		},
		[]string{"path"},
	)

	ChannelFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_channel_frames_total",
			Help: "Inbound realtime frames by disposition",
		},
		[]string{"path", "disposition"},
	)

	// Relay metrics
	RelayPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_relay_stories_total",
			Help: "Stories handled by the feed relay by result",
		},
		[]string{"result"},
	)

	// HTTP metrics for the relay's own endpoints
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)
