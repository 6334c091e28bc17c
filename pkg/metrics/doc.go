/*
Package metrics exposes Burrow's Prometheus collectors and the process health
endpoints.

Collectors are package-level and registered in init, so any component can
record directly:

	metrics.HealthChecksTotal.WithLabelValues("availability", metrics.ResultSuccess).Inc()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RescanDuration)

# Metrics

	burrow_resources_total                 gauge      managed resources
	burrow_resources_by_health{status}     gauge      resources per aggregated health
	burrow_health_checks_total{check_type,result}
	burrow_health_check_duration_seconds{check_type}
	burrow_health_transitions_total{check_type,status}
	burrow_scheduled_tasks                 gauge      pending timers
	burrow_deployments_total{outcome}
	burrow_deployment_duration_seconds
	burrow_rehosts_total{outcome}
	burrow_provider_panics_total{provider}
	burrow_permission_checks_total{scope,result}
	burrow_host_agent_requests_total{operation,result}
	burrow_rescan_duration_seconds
	burrow_rescan_cycles_total

The inventory gauges are refreshed by Collector from a HealthSummarizer.

# Health endpoints

Components report themselves with RegisterComponent/UpdateComponent.
/health is unhealthy when any component is, /ready requires every entry of
CriticalComponents to be registered and healthy, /live always answers 200.
*/
package metrics
