// Package metrics provides Prometheus metrics collection for vcalc.
//
// All metrics are optional - if the registry is not initialized, components
// use no-op implementations that have zero overhead.
//
// Usage:
//
//	metrics.InitRegistry()
//	m := prometheus.NewVCalcMetrics()   // pkg/metrics/prometheus
//	adapter := vcalc.New(config, m, log)
//
//	// Or use nil for no-op behavior
//	adapter := vcalc.New(config, nil, log)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read afterwards.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry with the Go runtime
// and process collectors. Subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global Prometheus registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
