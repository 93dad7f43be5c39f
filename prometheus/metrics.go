package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Login counters
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "org_login_total",
			Help: "Total number of login attempts",
		},
	)

	// Registration counters
	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "org_register_total",
			Help: "Total number of user registrations",
		},
	)

	// Organization operation counter
	OrgOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "org_operations_total",
			Help: "Total number of organization operations",
		},
		[]string{"operation"}, // "create", "list", "membership", "set_current", etc.
	)

	// Session switch counter by result
	SessionSwitchCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "org_session_switches_total",
			Help: "Total number of organization switch attempts by result",
		},
		[]string{"result"}, // "ok", "not_found", "rejected"
	)

	// Gate decision counter
	GateDecisionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "org_gate_decisions_total",
			Help: "Total number of access gate decisions",
		},
		[]string{"decision"}, // "granted", "denied", "pending"
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "org_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "org_auth_errors_total",
			Help: "Total number of authentication and authorization errors",
		},
		[]string{"type"},
	)

	// Collaborator fetch error counter
	FetchErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "org_fetch_errors_total",
			Help: "Total number of failed organization service calls",
		},
		[]string{"op"},
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "org_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "org_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "delete"
	)

	// Membership resolution duration
	MembershipResolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "org_membership_resolution_duration_seconds",
			Help:    "Duration of membership resolution calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Gauge metrics
var (
	// Active tokens
	ActiveTokensGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "org_active_tokens",
			Help: "Number of currently active authentication tokens",
		},
	)

	// Active sessions with an organization selected
	ActiveSessionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "org_active_sessions",
			Help: "Number of sessions with an active organization",
		},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "org_info",
			Help: "Information about the organization service",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(RegisterCounter)
	prometheus.MustRegister(OrgOperationCounter)
	prometheus.MustRegister(SessionSwitchCounter)
	prometheus.MustRegister(GateDecisionCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(FetchErrorCounter)

	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)
	prometheus.MustRegister(MembershipResolutionDuration)

	prometheus.MustRegister(ActiveTokensGauge)
	prometheus.MustRegister(ActiveSessionsGauge)
	prometheus.MustRegister(InfoGauge)

	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// RecordOrgOperation increments the organization operation counter
func RecordOrgOperation(operation string) {
	OrgOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordSessionSwitch increments the switch counter for one result
func RecordSessionSwitch(result string) {
	SessionSwitchCounter.With(prometheus.Labels{"result": result}).Inc()
}

// RecordGateDecision increments the gate decision counter
func RecordGateDecision(decision string) {
	GateDecisionCounter.With(prometheus.Labels{"decision": decision}).Inc()
}

// RecordAuthError increments the auth error counter for one error type
func RecordAuthError(errType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errType}).Inc()
}

// RecordFetchError increments the fetch error counter for one operation
func RecordFetchError(op string) {
	FetchErrorCounter.With(prometheus.Labels{"op": op}).Inc()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// TrackMembershipResolution measures membership resolution durations
func TrackMembershipResolution() func() {
	startTime := time.Now()
	return func() {
		MembershipResolutionDuration.Observe(time.Since(startTime).Seconds())
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// IncreaseActiveTokens increments the active tokens gauge
func IncreaseActiveTokens() {
	ActiveTokensGauge.Inc()
}

// DecreaseActiveTokens decrements the active tokens gauge
func DecreaseActiveTokens() {
	ActiveTokensGauge.Dec()
}
