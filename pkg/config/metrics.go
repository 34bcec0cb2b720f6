package config

import (
	"github.com/marmos91/stowage/pkg/metrics"
	promMetrics "github.com/marmos91/stowage/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Mount records probe outcomes and remount attempts (never nil)
	Mount metrics.MountMetrics

	// Transfer records transfers by direction (never nil)
	Transfer metrics.TransferMetrics

	// Scan records browse scans and capped counts (never nil)
	Scan metrics.ScanMetrics

	// S3 records object storage requests (never nil)
	S3 metrics.S3Metrics

	// Textfile is where the registry is written by Flush (empty disables)
	Textfile string
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled && cfg.Metrics.Textfile == "" {
		return &MetricsResult{
			Mount:    metrics.NewNoopMountMetrics(),
			Transfer: metrics.NewNoopTransferMetrics(),
			Scan:     metrics.NewNoopScanMetrics(),
			S3:       metrics.NewNoopS3Metrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Mount:    promMetrics.NewMountMetrics(),
		Transfer: promMetrics.NewTransferMetrics(),
		Scan:     promMetrics.NewScanMetrics(),
		S3:       promMetrics.NewS3Metrics(),
		Textfile: cfg.Metrics.Textfile,
	}
}

// Flush writes the collected metrics to the configured textfile.
func (m *MetricsResult) Flush() error {
	if m == nil || m.Textfile == "" {
		return nil
	}
	return metrics.WriteTextfile(m.Textfile)
}
