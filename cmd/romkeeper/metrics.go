// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/retrolabs/romkeeper/pkg/config"
	"github.com/retrolabs/romkeeper/pkg/progress"
)

// startMetrics registers the run counters and, when --metrics-addr is set,
// serves them on /metrics for the lifetime of the process.
func startMetrics(cfg *config.Config, logger *slog.Logger) *progress.Metrics {
	metrics := progress.NewMetrics(prometheus.DefaultRegisterer)

	if cfg.MetricsAddr == "" {
		return metrics
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		logger.Info("metrics.http.start", "addr", cfg.MetricsAddr, "path", "/metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics.http.error", "err", err)
		}
	}()

	return metrics
}
