package subscriptions

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "push_vault"

// Metrics exposes cache size and failure counters of a Service.
type Metrics struct {
	Users             prometheus.Gauge
	Subscriptions     prometheus.Gauge
	WriteFailures     *prometheus.CounterVec
	DecryptFailures   prometheus.Counter
	OrphanedBlobs     prometheus.Counter
	Evictions         prometheus.Counter
	MigratedUsers     prometheus.Counter
	MigrationFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Users: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "users",
			Help:      "Users with at least one cached push subscription.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "subscriptions",
			Help:      "Cached push subscriptions.",
		}),
		WriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "write_failures_total",
			Help:      "Failed persistence writes by table.",
		}, []string{"table"}),
		DecryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decrypt_failures_total",
			Help:      "Encrypted blobs that failed verification during load.",
		}),
		OrphanedBlobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "orphaned_blobs_total",
			Help:      "Encrypted blobs skipped because no plaintext user matched their hash.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "endpoint_evictions_total",
			Help:      "Endpoints moved from one user to another.",
		}),
		MigratedUsers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "migrated_users_total",
			Help:      "Users whose plaintext subscriptions were encrypted by a migration run.",
		}),
		MigrationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "migration_failures_total",
			Help:      "Users skipped by a migration run because of an error.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Users,
			m.Subscriptions,
			m.WriteFailures,
			m.DecryptFailures,
			m.OrphanedBlobs,
			m.Evictions,
			m.MigratedUsers,
			m.MigrationFailures,
		)
	}
	return m
}
