// Package mount reconciles the mount state of a storage backend exposed
// through a local (or in-pod) mount point.
//
// Mount state is never cached: every EnsureMounted call probes the mount
// point, and when the probe fails performs exactly one remount followed by
// exactly one re-probe. Commands run through an Executor, either as local
// subprocesses or on a remote execution endpoint.
package mount

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/marmos91/stowage/internal/logger"
	"github.com/marmos91/stowage/pkg/metrics"
	"github.com/marmos91/stowage/pkg/space"
	"github.com/moby/sys/mountinfo"
)

const (
	DefaultProbeTimeout   = 10 * time.Second
	DefaultCommandTimeout = 30 * time.Second
)

// State is the observed state of a mount point.
type State int

const (
	Unmounted State = iota
	Mounted
	Unresponsive
)

func (s State) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case Mounted:
		return "mounted"
	case Unresponsive:
		return "unresponsive"
	default:
		return "unknown"
	}
}

// Config describes the mount of one backend connection.
type Config struct {
	// Kind labels metrics and log lines.
	Kind string

	// MountPoint is the path the backend is mounted on.
	MountPoint string

	// MountCommand mounts the backend on MountPoint.
	MountCommand []string

	// UnmountCommand force-unmounts MountPoint.
	UnmountCommand []string

	// Evidence must appear in the listing of a live mount point. Empty
	// accepts any successful listing.
	Evidence string

	// ManuallyMounted disables every mount side effect; the mount point is
	// assumed to be Mounted.
	ManuallyMounted bool

	// ExecEndpoint selects the remote transport when set.
	ExecEndpoint string
	ExecTimeout  time.Duration
	ExecRetryMax int

	ProbeTimeout   time.Duration
	CommandTimeout time.Duration
}

// MountedFunc reports whether path is a mount point.
type MountedFunc func(path string) (bool, error)

// Manager owns the mount lifecycle of one mount point.
//
// A Manager does not serialize concurrent callers; mount and unmount
// commands are expected to be idempotent.
type Manager struct {
	cfg     Config
	exec    Executor
	remote  bool
	mounted MountedFunc
	metrics metrics.MountMetrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithExecutor replaces the transport selected from the configuration.
func WithExecutor(e Executor) Option {
	return func(m *Manager) { m.exec = e }
}

// WithMountedCheck replaces the mount table lookup used in local mode. A nil
// function disables the lookup so that only the listing probe is used.
func WithMountedCheck(f MountedFunc) Option {
	return func(m *Manager) { m.mounted = f }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mm metrics.MountMetrics) Option {
	return func(m *Manager) {
		if mm != nil {
			m.metrics = mm
		}
	}
}

// New creates a Manager. A configuration with ExecEndpoint runs every command
// on that endpoint; otherwise commands run locally and the mount table is
// consulted before probing.
func New(cfg Config, opts ...Option) *Manager {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}

	m := &Manager{
		cfg:     cfg,
		metrics: metrics.NewNoopMountMetrics(),
	}
	if cfg.ExecEndpoint != "" {
		m.remote = true
		m.exec = NewRemoteExecutor(cfg.ExecEndpoint, cfg.ExecTimeout, cfg.ExecRetryMax)
	} else {
		m.exec = NewLocalExecutor()
		m.mounted = mountinfo.Mounted
	}

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MountPoint returns the managed mount point.
func (m *Manager) MountPoint() string { return m.cfg.MountPoint }

// Probe lists the mount point within the probe timeout and classifies the
// result. A listing that fails or times out is Unresponsive; a listing that
// succeeds without the expected evidence, or a path that is not in the mount
// table, is Unmounted.
func (m *Manager) Probe(ctx context.Context) State {
	state := m.probe(ctx)
	m.metrics.RecordProbe(m.cfg.Kind, state.String())
	logger.Debug("Mount point %s is %s", m.cfg.MountPoint, state)
	return state
}

func (m *Manager) probe(ctx context.Context) State {
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	if m.mounted != nil {
		ok, err := m.checkMounted(pctx)
		if err != nil && pctx.Err() != nil {
			logger.Warn("Mount table lookup for %s timed out: %v", m.cfg.MountPoint, err)
			return Unresponsive
		}
		if err == nil && !ok {
			return Unmounted
		}
	}

	res, err := m.exec.Run(pctx, []string{"ls", m.cfg.MountPoint})
	if err != nil {
		logger.Warn("Probing %s failed: %v", m.cfg.MountPoint, err)
		return Unresponsive
	}
	if !res.OK() {
		logger.Warn("Probing %s failed with exit code %d: %s",
			m.cfg.MountPoint, res.ExitCode, strings.TrimSpace(res.Output))
		return Unresponsive
	}
	if m.cfg.Evidence != "" && !strings.Contains(res.Output, m.cfg.Evidence) {
		return Unmounted
	}
	return Mounted
}

// checkMounted consults the mount table, giving up when ctx is done. The
// lookup stats the mount point, which blocks on a wedged FUSE mount.
func (m *Manager) checkMounted(ctx context.Context) (bool, error) {
	type lookup struct {
		ok  bool
		err error
	}
	done := make(chan lookup, 1)
	go func() {
		ok, err := m.mounted(m.cfg.MountPoint)
		done <- lookup{ok, err}
	}()

	select {
	case l := <-done:
		return l.ok, l.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// EnsureMounted brings the mount point to the Mounted state.
//
// When the first probe does not report Mounted, the mount point is created,
// force-unmounted (errors ignored) and mounted, then probed once more. A
// mount command failure or a second failed probe returns a *space.MountError.
// Manually mounted configurations return nil without running anything.
func (m *Manager) EnsureMounted(ctx context.Context) error {
	if m.cfg.ManuallyMounted {
		logger.Debug("%s is manually mounted, skipping mount management", m.cfg.MountPoint)
		return nil
	}

	logger.Debug("Checking if %s is mounted", m.cfg.MountPoint)
	if m.Probe(ctx) == Mounted {
		logger.Debug("%s already mounted", m.cfg.MountPoint)
		return nil
	}

	logger.Info("%s is not mounted or unresponsive - remounting", m.cfg.MountPoint)
	if err := m.remount(ctx); err != nil {
		m.metrics.RecordRemount(m.cfg.Kind, false)
		return err
	}

	if state := m.Probe(ctx); state != Mounted {
		m.metrics.RecordRemount(m.cfg.Kind, false)
		return &space.MountError{
			Op:         "probe",
			MountPoint: m.cfg.MountPoint,
			Reason:     fmt.Sprintf("still %s after remount", state),
		}
	}

	m.metrics.RecordRemount(m.cfg.Kind, true)
	logger.Info("%s mounted", m.cfg.MountPoint)
	return nil
}

func (m *Manager) remount(ctx context.Context) error {
	if err := m.mkdir(ctx); err != nil {
		return err
	}

	if len(m.cfg.UnmountCommand) > 0 {
		res, err := m.run(ctx, m.cfg.UnmountCommand)
		if err != nil || !res.OK() {
			logger.Debug("Ignoring force-unmount failure on %s: %v %s",
				m.cfg.MountPoint, err, strings.TrimSpace(res.Output))
		}
	}

	if len(m.cfg.MountCommand) == 0 {
		return &space.MountError{Op: "mount", MountPoint: m.cfg.MountPoint, Reason: "no mount command configured"}
	}

	logger.Info("Mounting %s using %s", m.cfg.MountPoint, m.cfg.MountCommand[0])
	res, err := m.run(ctx, m.cfg.MountCommand)
	if err != nil {
		return &space.MountError{Op: "mount", MountPoint: m.cfg.MountPoint, Err: err}
	}
	if !res.OK() {
		return &space.MountError{
			Op:         "mount",
			MountPoint: m.cfg.MountPoint,
			Reason:     fmt.Sprintf("exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Output)),
		}
	}
	return nil
}

func (m *Manager) mkdir(ctx context.Context) error {
	if !m.remote {
		if err := os.MkdirAll(m.cfg.MountPoint, 0755); err != nil {
			return &space.MountError{Op: "mkdir", MountPoint: m.cfg.MountPoint, Err: err}
		}
		return nil
	}

	res, err := m.run(ctx, []string{"mkdir", "-p", m.cfg.MountPoint})
	if err != nil {
		return &space.MountError{Op: "mkdir", MountPoint: m.cfg.MountPoint, Err: err}
	}
	if !res.OK() {
		return &space.MountError{
			Op:         "mkdir",
			MountPoint: m.cfg.MountPoint,
			Reason:     fmt.Sprintf("exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Output)),
		}
	}
	return nil
}

// Unmount force-unmounts the mount point. Unmounting a path that is not
// mounted succeeds. Manually mounted configurations are left untouched.
func (m *Manager) Unmount(ctx context.Context) error {
	if m.cfg.ManuallyMounted {
		logger.Debug("%s is manually mounted, not unmounting", m.cfg.MountPoint)
		return nil
	}

	if m.mounted != nil {
		if ok, err := m.mounted(m.cfg.MountPoint); err == nil && !ok {
			logger.Debug("%s is not mounted", m.cfg.MountPoint)
			return nil
		}
	}

	if len(m.cfg.UnmountCommand) == 0 {
		return &space.MountError{Op: "unmount", MountPoint: m.cfg.MountPoint, Reason: "no unmount command configured"}
	}

	res, err := m.run(ctx, m.cfg.UnmountCommand)
	if err != nil {
		return &space.MountError{Op: "unmount", MountPoint: m.cfg.MountPoint, Err: err}
	}
	if !res.OK() {
		if notMounted(res.Output) {
			logger.Debug("%s was not mounted", m.cfg.MountPoint)
			return nil
		}
		return &space.MountError{
			Op:         "unmount",
			MountPoint: m.cfg.MountPoint,
			Reason:     fmt.Sprintf("exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Output)),
		}
	}

	logger.Info("Unmounted %s", m.cfg.MountPoint)
	return nil
}

func (m *Manager) run(ctx context.Context, argv []string) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.CommandTimeout)
	defer cancel()
	return m.exec.Run(cctx, argv)
}

// notMounted matches the messages fusermount and umount print for a path
// that is not a mount point.
func notMounted(output string) bool {
	out := strings.ToLower(output)
	for _, msg := range []string{"not mounted", "not found in /etc/mtab", "no mount point specified", "not a mount point"} {
		if strings.Contains(out, msg) {
			return true
		}
	}
	return false
}
