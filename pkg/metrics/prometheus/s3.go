package prometheus

import (
	"sync"
	"time"

	"github.com/marmos91/stowage/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	s3Once     sync.Once
	s3Instance *s3Metrics
)

// s3Metrics is the Prometheus implementation of metrics.S3Metrics.
type s3Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewS3Metrics returns the Prometheus-backed S3Metrics.
//
// Returns a no-op implementation if metrics are not enabled.
func NewS3Metrics() metrics.S3Metrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopS3Metrics()
	}

	s3Once.Do(func() {
		reg := metrics.GetRegistry()
		s3Instance = &s3Metrics{
			operationsTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "stowage_s3_operations_total",
					Help: "Total number of S3 operations by operation type and status",
				},
				[]string{"operation", "status"},
			),
			operationDuration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name: "stowage_s3_operation_duration_seconds",
					Help: "Duration of S3 operations in seconds",
					Buckets: []float64{
						0.01,  // 10ms
						0.025, // 25ms
						0.05,  // 50ms
						0.1,   // 100ms
						0.25,  // 250ms
						0.5,   // 500ms
						1.0,   // 1s
						2.5,   // 2.5s
						5.0,   // 5s
						10.0,  // 10s
						30.0,  // 30s
					},
				},
				[]string{"operation"},
			),
			bytesTransferred: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "stowage_s3_bytes_transferred_total",
					Help: "Total bytes transferred in S3 operations",
				},
				[]string{"operation"},
			),
		}
	})
	return s3Instance
}

func (m *s3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *s3Metrics) RecordBytes(operation string, bytes int64) {
	if bytes > 0 {
		m.bytesTransferred.WithLabelValues(operation).Add(float64(bytes))
	}
}
