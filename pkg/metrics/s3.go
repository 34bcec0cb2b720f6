package metrics

import "time"

// S3Metrics observes requests made by the object storage driver.
//
// Collected data:
//   - Operation counts (ListObjectsV2, GetObject, PutObject) by status
//   - Operation latency
//   - Bytes transferred
type S3Metrics interface {
	// ObserveOperation records a completed request.
	//
	// Parameters:
	//   - operation: S3 API operation name
	//   - duration: Request latency
	//   - err: Request error (nil for success)
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes read or written by an operation.
	RecordBytes(operation string, bytes int64)
}

type noopS3Metrics struct{}

func (noopS3Metrics) ObserveOperation(string, time.Duration, error) {}
func (noopS3Metrics) RecordBytes(string, int64)                     {}

// NewNoopS3Metrics returns an S3Metrics that discards everything.
func NewNoopS3Metrics() S3Metrics { return noopS3Metrics{} }
