package config

import (
	"fmt"

	"github.com/marmos91/vcalc/internal/logger"
	"github.com/marmos91/vcalc/pkg/adapter"
	"github.com/marmos91/vcalc/pkg/adapter/vcalc"
	"github.com/marmos91/vcalc/pkg/metrics"
)

// CreateAdapters creates the protocol adapters described by the configuration.
//
// collector may be nil, in which case adapters record no metrics.
func CreateAdapters(cfg *Config, collector metrics.VCalcMetrics, log *logger.Logger) ([]adapter.Adapter, error) {
	vcalcAdapter, err := vcalc.New(cfg.Adapter, collector, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create vcalc adapter: %w", err)
	}

	return []adapter.Adapter{vcalcAdapter}, nil
}
