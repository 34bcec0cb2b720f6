package prometheus

import (
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/stowage/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered once per process; every driver shares them and
// distinguishes itself through the "kind" label.
var (
	mountOnce     sync.Once
	mountInstance *mountMetrics

	transferOnce     sync.Once
	transferInstance *transferMetrics

	scanOnce     sync.Once
	scanInstance *scanMetrics
)

// mountMetrics is the Prometheus implementation of metrics.MountMetrics.
type mountMetrics struct {
	probesTotal   *prometheus.CounterVec
	remountsTotal *prometheus.CounterVec
}

// NewMountMetrics returns the Prometheus-backed MountMetrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewMountMetrics() metrics.MountMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopMountMetrics()
	}

	mountOnce.Do(func() {
		reg := metrics.GetRegistry()
		mountInstance = &mountMetrics{
			probesTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "stowage_mount_probes_total",
					Help: "Total number of mount liveness probes by backend kind and observed state",
				},
				[]string{"kind", "state"},
			),
			remountsTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "stowage_mount_remounts_total",
					Help: "Total number of remount attempts by backend kind and outcome",
				},
				[]string{"kind", "success"},
			),
		}
	})
	return mountInstance
}

func (m *mountMetrics) RecordProbe(kind, state string) {
	m.probesTotal.WithLabelValues(kind, state).Inc()
}

func (m *mountMetrics) RecordRemount(kind string, success bool) {
	m.remountsTotal.WithLabelValues(kind, strconv.FormatBool(success)).Inc()
}

// transferMetrics is the Prometheus implementation of metrics.TransferMetrics.
type transferMetrics struct {
	filesTotal    *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewTransferMetrics returns the Prometheus-backed TransferMetrics.
//
// Returns a no-op implementation if metrics are not enabled.
func NewTransferMetrics() metrics.TransferMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopTransferMetrics()
	}

	transferOnce.Do(func() {
		reg := metrics.GetRegistry()
		transferInstance = &transferMetrics{
			filesTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "stowage_transfer_files_total",
					Help: "Total number of files transferred by backend kind and direction",
				},
				[]string{"kind", "direction"},
			),
			failuresTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "stowage_transfer_failures_total",
					Help: "Total number of per-file transfer failures by backend kind and direction",
				},
				[]string{"kind", "direction"},
			),
			duration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name: "stowage_transfer_duration_seconds",
					Help: "Duration of whole-tree transfers in seconds",
					Buckets: []float64{
						0.1,  // 100ms
						1,    // 1s
						10,   // 10s
						60,   // 1m
						300,  // 5m
						1800, // 30m
					},
				},
				[]string{"kind", "direction"},
			),
		}
	})
	return transferInstance
}

func (m *transferMetrics) RecordTransfer(kind, direction string, files, failures int, duration time.Duration) {
	m.filesTotal.WithLabelValues(kind, direction).Add(float64(files))
	m.failuresTotal.WithLabelValues(kind, direction).Add(float64(failures))
	m.duration.WithLabelValues(kind, direction).Observe(duration.Seconds())
}

// scanMetrics is the Prometheus implementation of metrics.ScanMetrics.
type scanMetrics struct {
	scanDuration *prometheus.HistogramVec
	scanEntries  *prometheus.HistogramVec
	countsTotal  *prometheus.CounterVec
}

// NewScanMetrics returns the Prometheus-backed ScanMetrics.
//
// Returns a no-op implementation if metrics are not enabled.
func NewScanMetrics() metrics.ScanMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopScanMetrics()
	}

	scanOnce.Do(func() {
		reg := metrics.GetRegistry()
		scanInstance = &scanMetrics{
			scanDuration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "stowage_browse_duration_seconds",
					Help:    "Duration of one-level browse listings in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
				},
				[]string{"kind"},
			),
			scanEntries: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "stowage_browse_entries",
					Help:    "Number of entries returned by browse listings",
					Buckets: prometheus.ExponentialBuckets(1, 4, 8),
				},
				[]string{"kind"},
			),
			countsTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "stowage_object_counts_total",
					Help: "Total number of directory object counts by kind and whether the cap was hit",
				},
				[]string{"kind", "capped"},
			),
		}
	})
	return scanInstance
}

func (m *scanMetrics) RecordScan(kind string, entries int, duration time.Duration) {
	m.scanDuration.WithLabelValues(kind).Observe(duration.Seconds())
	m.scanEntries.WithLabelValues(kind).Observe(float64(entries))
}

func (m *scanMetrics) RecordCount(kind string, capped bool) {
	m.countsTotal.WithLabelValues(kind, strconv.FormatBool(capped)).Inc()
}
