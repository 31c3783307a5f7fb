// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and instrumentation for the agent.
//
// # Description
//
// This package implements Prometheus metrics for monitoring agent runs and
// upstream TraitBank calls. Metrics include:
//   - Run counters (by entrypoint, status)
//   - Upstream request counters and latency histograms (by endpoint, code)
//   - Cache hit/miss counters
//   - Active stream gauge and stream duration histogram
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "traitbank"

// Subsystem for agent metrics
const agentSubsystem = "agent"

// Metrics holds all Prometheus metrics for the agent service.
//
// Initialize once at startup via InitMetrics(), or with a private registry
// via NewMetrics() in tests.
type Metrics struct {
	// RunsTotal counts agent runs by entrypoint and status.
	// Labels: entrypoint (get_data), status (success, error)
	RunsTotal *prometheus.CounterVec

	// UpstreamRequestsTotal counts TraitBank API calls.
	// Labels: endpoint (taxon, traits), code (HTTP status, "0" on transport error)
	UpstreamRequestsTotal *prometheus.CounterVec

	// UpstreamDurationSeconds measures TraitBank API call latency.
	// Labels: endpoint (taxon, traits)
	UpstreamDurationSeconds *prometheus.HistogramVec

	// CacheTotal counts response cache lookups.
	// Labels: result (hit, miss)
	CacheTotal *prometheus.CounterVec

	// ActiveStreams tracks currently open run streams.
	ActiveStreams prometheus.Gauge

	// StreamDurationSeconds measures total run duration.
	// Labels: status (success, error)
	StreamDurationSeconds *prometheus.HistogramVec
}

// DefaultMetrics is the singleton instance, initialized by InitMetrics().
var DefaultMetrics *Metrics

// NewMetrics creates and registers all metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "runs_total",
				Help:      "Total number of agent runs by entrypoint and status",
			},
			[]string{"entrypoint", "status"},
		),

		UpstreamRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "upstream_requests_total",
				Help:      "Total TraitBank API calls by endpoint and HTTP status code",
			},
			[]string{"endpoint", "code"},
		),

		UpstreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "upstream_duration_seconds",
				Help:      "TraitBank API call latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint"},
		),

		CacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "cache_total",
				Help:      "Response cache lookups by result",
			},
			[]string{"result"},
		),

		ActiveStreams: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "active_streams",
				Help:      "Currently open run streams",
			},
		),

		StreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total run duration in seconds by status",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"status"},
		),
	}
}

// InitMetrics initializes the default metrics instance on the default
// Prometheus registry. Call once at startup; panics if called twice.
func InitMetrics() *Metrics {
	DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// =============================================================================
// Recording Helpers
// =============================================================================

// RecordRun records one completed agent run.
func (m *Metrics) RecordRun(entrypoint string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(entrypoint, status).Inc()
}

// RecordUpstream records one TraitBank API call. code 0 means a transport
// failure before any status was received.
func (m *Metrics) RecordUpstream(endpoint string, code int, duration time.Duration) {
	m.UpstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	m.UpstreamDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCacheHit records a response cache hit.
func (m *Metrics) RecordCacheHit() {
	m.CacheTotal.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a response cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.CacheTotal.WithLabelValues("miss").Inc()
}

// StreamStarted increments the active stream gauge.
func (m *Metrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active stream gauge.
func (m *Metrics) StreamEnded() {
	m.ActiveStreams.Dec()
}

// RecordStreamDuration records the total duration of one run stream.
func (m *Metrics) RecordStreamDuration(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.StreamDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}
