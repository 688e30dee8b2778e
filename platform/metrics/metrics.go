package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the process-wide prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	TenantPoolHits   prometheus.Counter
	TenantPoolMisses prometheus.Counter

	SessionsStarted prometheus.Counter
	SessionsEnded   prometheus.Counter
	GuardRejections prometheus.Counter

	MigrationsExecuted *prometheus.CounterVec
}

// New builds a fresh registry with the standard Go/process collectors plus
// the application counters registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		TenantPoolHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "tenant_pool_cache_hits_total",
			Help: "Tenant connection pool lookups served from the cache.",
		}),
		TenantPoolMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "tenant_pool_cache_misses_total",
			Help: "Tenant connection pool lookups that established a new pool.",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "simulation_sessions_started_total",
			Help: "Simulation sessions started.",
		}),
		SessionsEnded: factory.NewCounter(prometheus.CounterOpts{
			Name: "simulation_sessions_ended_total",
			Help: "Simulation sessions ended, including auto-ended stale sessions.",
		}),
		GuardRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "simulation_guard_rejections_total",
			Help: "Write requests rejected by the simulation write guard.",
		}),
		MigrationsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "migrations_executed_total",
			Help: "Migration units executed, labeled by type and outcome.",
		}, []string{"type", "outcome"}),
	}
}

// Handler exposes the registry over HTTP for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PoolCacheHit implements the tenant pool cache observer.
func (m *Metrics) PoolCacheHit() { m.TenantPoolHits.Inc() }

// PoolCacheMiss implements the tenant pool cache observer.
func (m *Metrics) PoolCacheMiss() { m.TenantPoolMisses.Inc() }

// SessionStarted implements the simulation lifecycle observer.
func (m *Metrics) SessionStarted() { m.SessionsStarted.Inc() }

// SessionEnded implements the simulation lifecycle observer.
func (m *Metrics) SessionEnded() { m.SessionsEnded.Inc() }

// GuardRejected counts a write blocked by the simulation guard.
func (m *Metrics) GuardRejected() { m.GuardRejections.Inc() }

// MigrationExecuted records one migration unit outcome.
func (m *Metrics) MigrationExecuted(migrationType, outcome string) {
	m.MigrationsExecuted.WithLabelValues(migrationType, outcome).Inc()
}
