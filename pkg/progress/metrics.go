// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package progress

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the run counters exported on --metrics-addr.
type Metrics struct {
	cacheOps     *prometheus.CounterVec
	netLookups   *prometheus.CounterVec
	actionsRun   *prometheus.CounterVec
	bytesWritten prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "romkeeper_cache_ops_total",
			Help: "Cache probe outcomes by table and result.",
		}, []string{"table", "result"}),
		netLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "romkeeper_net_lookups_total",
			Help: "Online lookups issued by service.",
		}, []string{"service"}),
		actionsRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "romkeeper_actions_total",
			Help: "Records processed per action.",
		}, []string{"action"}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "romkeeper_bytes_written_total",
			Help: "Aggregate bytes written by action workers.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.cacheOps, m.netLookups, m.actionsRun, m.bytesWritten)
	}
	return m
}

// CacheHit counts a probe hit on the named table.
func (m *Metrics) CacheHit(table string) {
	if m != nil {
		m.cacheOps.WithLabelValues(table, "hit").Inc()
	}
}

// CacheMiss counts a probe miss on the named table.
func (m *Metrics) CacheMiss(table string) {
	if m != nil {
		m.cacheOps.WithLabelValues(table, "miss").Inc()
	}
}

// NetLookup counts one outbound request to the named service.
func (m *Metrics) NetLookup(service string) {
	if m != nil {
		m.netLookups.WithLabelValues(service).Inc()
	}
}

// ActionRecord counts one record processed by the named action.
func (m *Metrics) ActionRecord(action string) {
	if m != nil {
		m.actionsRun.WithLabelValues(action).Inc()
	}
}

// AddBytesWritten accumulates worker byte progress.
func (m *Metrics) AddBytesWritten(n int64) {
	if m != nil && n > 0 {
		m.bytesWritten.Add(float64(n))
	}
}
