package metrics

import "time"

// MountMetrics observes the mount lifecycle of mounted backends.
type MountMetrics interface {
	// RecordProbe records the outcome of a liveness probe.
	//
	// Parameters:
	//   - kind: Backend kind (e.g., "onedata", "nfs")
	//   - state: Probed mount state ("mounted", "unmounted", "unresponsive")
	RecordProbe(kind, state string)

	// RecordRemount records a remount attempt and whether the re-probe found
	// the mount live.
	RecordRemount(kind string, success bool)
}

// TransferMetrics observes moves between a backend and local staging.
type TransferMetrics interface {
	// RecordTransfer records a finished transfer.
	//
	// Parameters:
	//   - kind: Backend kind
	//   - direction: "to_storage_service" or "from_storage_service"
	//   - files: Number of files transferred successfully
	//   - failures: Number of files that failed
	//   - duration: Wall time of the transfer
	RecordTransfer(kind, direction string, files, failures int, duration time.Duration)
}

// ScanMetrics observes browse listings and object counting.
type ScanMetrics interface {
	RecordScan(kind string, entries int, duration time.Duration)
	RecordCount(kind string, capped bool)
}

type noopMountMetrics struct{}

func (noopMountMetrics) RecordProbe(string, string) {}
func (noopMountMetrics) RecordRemount(string, bool) {}

type noopTransferMetrics struct{}

func (noopTransferMetrics) RecordTransfer(string, string, int, int, time.Duration) {}

type noopScanMetrics struct{}

func (noopScanMetrics) RecordScan(string, int, time.Duration) {}
func (noopScanMetrics) RecordCount(string, bool)              {}

// NewNoopMountMetrics returns a MountMetrics that discards everything.
func NewNoopMountMetrics() MountMetrics { return noopMountMetrics{} }

// NewNoopTransferMetrics returns a TransferMetrics that discards everything.
func NewNoopTransferMetrics() TransferMetrics { return noopTransferMetrics{} }

// NewNoopScanMetrics returns a ScanMetrics that discards everything.
func NewNoopScanMetrics() ScanMetrics { return noopScanMetrics{} }
