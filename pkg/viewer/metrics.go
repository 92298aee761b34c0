package viewer

import "github.com/prometheus/client_golang/prometheus"

const namespace = "avatarview"

// Metrics are the viewer's Prometheus collectors. Each Viewer registers on
// its own registry unless one is supplied.
type Metrics struct {
	Registry *prometheus.Registry

	UpdateAttempts  prometheus.Counter
	UpdateSuccesses prometheus.Counter
	ModelLoads      *prometheus.CounterVec
	AssetFetches    prometheus.Counter
	FallbackLoads   prometheus.Counter
	LoadSeconds     prometheus.Histogram
	MorphWrites     prometheus.Counter
	MorphSkipped    prometheus.Counter
	MorphClamped    prometheus.Counter
	PressureEvents  prometheus.Counter
	Phase           prometheus.Gauge
}

// NewMetrics creates and registers the collectors on reg, or on a fresh
// registry when reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Registry: reg,
		UpdateAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "morph_update_attempts_total",
			Help: "Override updates received.",
		}),
		UpdateSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "morph_update_successes_total",
			Help: "Override updates fully applied.",
		}),
		ModelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "model_loads_total",
			Help: "Model load completions by result.",
		}, []string{"result"}),
		AssetFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "asset_fetches_total",
			Help: "Asset downloads issued.",
		}),
		FallbackLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "asset_fallback_attempts_total",
			Help: "Loads retried against the fallback resolver.",
		}),
		LoadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "model_load_seconds",
			Help:    "Resolve, download and parse time.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		MorphWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "morph_writes_total",
			Help: "Morph target weights written.",
		}),
		MorphSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "morph_skipped_total",
			Help: "Morph parameters skipped as unmapped.",
		}),
		MorphClamped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "morph_clamped_total",
			Help: "Morph parameters clamped into range.",
		}),
		PressureEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "memory_pressure_events_total",
			Help: "Memory pressure callbacks handled.",
		}),
		Phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "phase",
			Help: "Current phase: 0 uninitialized, 1 initializing, 2 ready, 3 error.",
		}),
	}
	reg.MustRegister(
		m.UpdateAttempts, m.UpdateSuccesses, m.ModelLoads, m.AssetFetches,
		m.FallbackLoads, m.LoadSeconds, m.MorphWrites, m.MorphSkipped,
		m.MorphClamped, m.PressureEvents, m.Phase,
	)
	return m
}

func (m *Metrics) observeReport(r MorphReport) {
	m.MorphWrites.Add(float64(r.Written))
	m.MorphSkipped.Add(float64(len(r.Skipped)))
	m.MorphClamped.Add(float64(len(r.Clamped)))
}
