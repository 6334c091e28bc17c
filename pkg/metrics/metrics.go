package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Inventory metrics
	ResourcesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_resources_total",
			Help: "Total number of managed resources",
		},
	)

	ResourcesByHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_resources_by_health",
			Help: "Number of resources by aggregated health status",
		},
		[]string{"status"},
	)

	// Health check metrics
	HealthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_health_checks_total",
			Help: "Total number of health checks by check type and result",
		},
		[]string{"check_type", "result"},
	)

	HealthCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_health_check_duration_seconds",
			Help:    "Health check duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"check_type"},
	)

	HealthTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_health_transitions_total",
			Help: "Total number of health status changes by check type and new status",
		},
		[]string{"check_type", "status"},
	)

	// Scheduler metrics
	ScheduledTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_scheduled_tasks",
			Help: "Number of pending scheduled tasks",
		},
	)

	// Lifecycle metrics
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_deployments_total",
			Help: "Total number of deployments by outcome",
		},
		[]string{"outcome"},
	)

	DeploymentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_deployment_duration_seconds",
			Help:    "Time taken by providers to provision a resource in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		},
	)

	RehostsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_rehosts_total",
			Help: "Total number of rehost operations by outcome",
		},
		[]string{"outcome"},
	)

	ProviderPanicsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_provider_panics_total",
			Help: "Total number of recovered provider panics by provider",
		},
		[]string{"provider"},
	)

	// Authorization metrics
	PermissionChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_permission_checks_total",
			Help: "Total number of permission checks by scope and result",
		},
		[]string{"scope", "result"},
	)

	// Host agent metrics
	HostAgentRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_host_agent_requests_total",
			Help: "Total number of host agent requests by operation and result",
		},
		[]string{"operation", "result"},
	)

	// Reconciler metrics
	RescanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_rescan_duration_seconds",
			Help:    "Time taken for a resource re-scan cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RescanCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_rescan_cycles_total",
			Help: "Total number of resource re-scan cycles",
		},
	)
)

func init() {
	prometheus.MustRegister(ResourcesTotal)
	prometheus.MustRegister(ResourcesByHealth)
	prometheus.MustRegister(HealthChecksTotal)
	prometheus.MustRegister(HealthCheckDuration)
	prometheus.MustRegister(HealthTransitionsTotal)
	prometheus.MustRegister(ScheduledTasks)
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(DeploymentDuration)
	prometheus.MustRegister(RehostsTotal)
	prometheus.MustRegister(ProviderPanicsTotal)
	prometheus.MustRegister(PermissionChecksTotal)
	prometheus.MustRegister(HostAgentRequestsTotal)
	prometheus.MustRegister(RescanDuration)
	prometheus.MustRegister(RescanCyclesTotal)
}

// Result label values shared by counters
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
	ResultAllowed = "allowed"
	ResultDenied  = "denied"
)

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
