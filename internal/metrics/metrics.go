// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics holds the daemon's Prometheus instrumentation, exposed
// on the diagnostics API at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the daemon.
type Metrics struct {
	DevicesByState     *prometheus.GaugeVec
	OperationsTotal    *prometheus.CounterVec
	AuthzDenialsTotal  prometheus.Counter
	ResolverApplies    prometheus.Counter
	ResolverRestores   prometheus.Counter
	EstablishDuration  prometheus.Histogram
	ActiveConnections  prometheus.Gauge
}

// NewMetrics creates the daemon metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		DevicesByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tundra_devices",
			Help: "Number of devices by lifecycle state",
		}, []string{"state"}),
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tundra_operations_total",
			Help: "Control operations by operation name and outcome",
		}, []string{"op", "status"}),
		AuthzDenialsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tundra_authz_denials_total",
			Help: "Operations rejected by caller authorization",
		}),
		ResolverApplies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tundra_resolver_applies_total",
			Help: "Times staged DNS configuration was applied to the host",
		}),
		ResolverRestores: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tundra_resolver_restores_total",
			Help: "Times host DNS configuration was restored to baseline",
		}),
		EstablishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tundra_establish_duration_seconds",
			Help:    "Time spent programming an interface during Establish",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tundra_control_connections",
			Help: "Open control socket connections",
		}),
	}
}

// Register registers every collector with r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.DevicesByState,
		m.OperationsTotal,
		m.AuthzDenialsTotal,
		m.ResolverApplies,
		m.ResolverRestores,
		m.EstablishDuration,
		m.ActiveConnections,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordOp counts one operation outcome. status is "ok" or the error
// kind name.
func (m *Metrics) RecordOp(op, status string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, status).Inc()
}
