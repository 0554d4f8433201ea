package observability

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/toolbake/pkg/domain"
)

// Metrics exports runtime counters to Prometheus.
type Metrics struct {
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	progress    *prometheus.CounterVec
	loads       *prometheus.CounterVec
	loadTime    prometheus.Histogram
	sessions    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// Collectors already registered by another Metrics are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolbake_runs_total",
			Help: "Handler runs by tool and outcome.",
		}, []string{"tool", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toolbake_run_duration_seconds",
			Help:    "Duration of handler runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		progress: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolbake_progress_patches_total",
			Help: "Progress patches merged.",
		}, []string{"tool"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolbake_capability_loads_total",
			Help: "Capability loads by outcome.",
		}, []string{"outcome"}),
		loadTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toolbake_capability_load_seconds",
			Help:    "Duration of capability loads.",
			Buckets: prometheus.DefBuckets,
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolbake_active_sessions",
			Help: "Open tool sessions.",
		}),
	}

	if reg == nil {
		return m, nil
	}
	var err error
	m.runs = register(reg, m.runs, &err)
	m.runDuration = register(reg, m.runDuration, &err)
	m.progress = register(reg, m.progress, &err)
	m.loads = register(reg, m.loads, &err)
	m.loadTime = register(reg, m.loadTime, &err)
	m.sessions = register(reg, m.sessions, &err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, errp *error) C {
	if *errp != nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		*errp = err
	}
	return c
}

// Hooks returns lifecycle hooks that record metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunFinish: func(_ context.Context, e *domain.RunEvent) {
			outcome := "success"
			if e.Run.State == domain.RunFailed {
				outcome = outcomeOf(e.Run.Err)
			}
			m.runs.WithLabelValues(e.ToolID, outcome).Inc()
			m.runDuration.WithLabelValues(e.ToolID).Observe(e.Run.Duration().Seconds())
		},
		OnProgress: func(_ context.Context, e *domain.ProgressEvent) {
			m.progress.WithLabelValues(e.ToolID).Inc()
		},
		OnCapabilityLoad: func(_ context.Context, e *domain.CapabilityEvent) {
			outcome := "success"
			if e.Err != nil {
				outcome = "error"
			}
			m.loads.WithLabelValues(outcome).Inc()
			m.loadTime.Observe(e.Duration.Seconds())
		},
		OnSessionOpen: func(context.Context, domain.EventBase) {
			m.sessions.Inc()
		},
		OnSessionClose: func(context.Context, domain.EventBase) {
			m.sessions.Dec()
		},
	}
}

func outcomeOf(err error) string {
	switch domain.NoticeSource(err) {
	case domain.SourceIsolation:
		return "isolation"
	case domain.SourceCapability:
		return "capability"
	}
	return "error"
}
