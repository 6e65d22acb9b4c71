// Package metrics exposes devcrew's operational counters as Prometheus
// collectors.
//
// Collectors are registered on a private registry rather than the global
// default, so tests and the CLI can create independent instances. Values are
// fed by subscribing to the event bus; the instrumented packages never import
// this one.
package metrics

import (
	"io"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/Iron-Ham/devcrew/internal/event"
)

const namespace = "devcrew"

// Metrics holds every collector devcrew reports.
type Metrics struct {
	registry *prometheus.Registry

	CacheLookups   *prometheus.CounterVec
	CacheEvictions prometheus.Counter
	TasksCompleted *prometheus.CounterVec
	Votes          *prometheus.CounterVec
	TeamIterations prometheus.Histogram
	ErrorsHandled  *prometheus.CounterVec
	BackupsCreated prometheus.Counter
	BackupSizeMB   prometheus.Gauge
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Analysis cache lookups by result (hit, miss) and mode.",
		}, []string{"result", "mode"}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Analysis cache entries removed for age.",
		}),
		TasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "team",
			Name:      "tasks_completed_total",
			Help:      "Team tasks completed by role and success.",
		}, []string{"role", "success"}),
		Votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "team",
			Name:      "votes_total",
			Help:      "Team votes by outcome.",
		}, []string{"outcome"}),
		TeamIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "team",
			Name:      "iterations",
			Help:      "Iterations used per team workflow run.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),
		ErrorsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "errors",
			Name:      "handled_total",
			Help:      "Errors recorded by the error handler.",
		}, []string{"severity", "category", "recovered"}),
		BackupsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "created_total",
			Help:      "Backup archives created.",
		}),
		BackupSizeMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "last_size_megabytes",
			Help:      "Size of the most recent backup archive.",
		}),
	}

	m.registry.MustRegister(
		m.CacheLookups, m.CacheEvictions,
		m.TasksCompleted, m.Votes, m.TeamIterations,
		m.ErrorsHandled,
		m.BackupsCreated, m.BackupSizeMB,
	)
	return m
}

// Registry returns the private registry, e.g. for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Attach subscribes the collectors to the bus and returns the
// subscription ID.
func (m *Metrics) Attach(bus *event.Bus) string {
	return bus.SubscribeAll(m.observe)
}

func (m *Metrics) observe(e event.Event) {
	switch ev := e.(type) {
	case event.CacheLookupEvent:
		result := "miss"
		if ev.EventType() == event.TypeCacheHit {
			result = "hit"
		}
		m.CacheLookups.WithLabelValues(result, ev.Mode).Inc()
	case event.CacheEvictedEvent:
		m.CacheEvictions.Add(float64(len(ev.Keys)))
	case event.TaskCompletedEvent:
		m.TasksCompleted.WithLabelValues(ev.Role, boolLabel(ev.Success)).Inc()
	case event.VoteTalliedEvent:
		outcome := "rejected"
		if ev.Passed {
			outcome = "approved"
		}
		m.Votes.WithLabelValues(outcome).Inc()
	case event.TeamFinishedEvent:
		m.TeamIterations.Observe(float64(ev.Iterations))
	case event.ErrorHandledEvent:
		m.ErrorsHandled.WithLabelValues(ev.Severity, ev.Category, boolLabel(ev.Recovered)).Inc()
	case event.BackupCreatedEvent:
		m.BackupsCreated.Inc()
		m.BackupSizeMB.Set(ev.SizeMB)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// WriteText writes every metric family in the Prometheus text exposition
// format, sorted by name.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
