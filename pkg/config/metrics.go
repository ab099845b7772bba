package config

import (
	"github.com/marmos91/vcalc/internal/logger"
	"github.com/marmos91/vcalc/pkg/metrics"
	promMetrics "github.com/marmos91/vcalc/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// VCalcMetrics is the collector for the adapter (never nil, noop if disabled)
	VCalcMetrics metrics.VCalcMetrics
}

// InitializeMetrics creates the metrics components described by cfg.
//
// When metrics are enabled the global Prometheus registry is initialized and
// a server and Prometheus-backed collector are returned. Otherwise the
// server is nil and the collector is a no-op.
func InitializeMetrics(cfg *Config, log *logger.Logger) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			VCalcMetrics: metrics.NewNoopVCalcMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	}, log)

	return &MetricsResult{
		Server:       server,
		VCalcMetrics: promMetrics.NewVCalcMetrics(),
	}
}
