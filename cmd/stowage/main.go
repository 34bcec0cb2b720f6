package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/marmos91/stowage/internal/logger"
	"github.com/marmos91/stowage/pkg/config"
	"github.com/marmos91/stowage/pkg/registry"
	"github.com/marmos91/stowage/pkg/space"
	"github.com/spf13/cobra"
)

// cli carries the flags and the components built from the configuration
// for the duration of one command.
type cli struct {
	cfgFile         string
	logLevel        string
	metricsTextfile string

	cfg       *config.Config
	metrics   *config.MetricsResult
	reg       *registry.Registry
	logCloser io.Closer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// run executes the command line and releases everything the command opened,
// whether or not it succeeded.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	c := &cli{}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := c.close(); err == nil {
		err = cerr
	}
	return err
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, space.ErrNotFound):
		return 2
	case errors.Is(err, space.ErrConfiguration):
		return 3
	case errors.Is(err, space.ErrMount):
		return 4
	case errors.Is(err, space.ErrTransfer):
		return 5
	default:
		return 1
	}
}

func newRootCmd(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stowage",
		Short: "Stowage - storage spaces for digital preservation",
		Long: `Stowage exposes heterogeneous storage backends (local filesystem, NFS,
Onedata, S3) as uniform spaces that can be browsed and moved into and out of.

Mounted backends are remounted transparently when their mount point is
missing or unresponsive.

QUICK START:

  # Write a default configuration to ~/.config/stowage/config.yaml
  stowage init

  # Register a space and check it is reachable
  stowage spaces save archive --type filesystem --path /srv/archive
  stowage spaces verify archive

  # Browse and transfer
  stowage browse archive aips
  stowage move-to archive aips/0001 restored/0001
  stowage move-from archive staged/0002 aips/0002

For more help on any command, use: stowage <command> --help`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	rootCmd.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "config file path (default $XDG_CONFIG_HOME/stowage/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&c.logLevel, "log-level", "l", "", "log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&c.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the command")

	rootCmd.AddCommand(newInitCmd(c))
	rootCmd.AddCommand(newSchemaCmd())
	rootCmd.AddCommand(newSpacesCmd(c))
	rootCmd.AddCommand(newBrowseCmd(c))
	rootCmd.AddCommand(newMoveToCmd(c))
	rootCmd.AddCommand(newMoveFromCmd(c))
	rootCmd.AddCommand(newMountCmd(c))
	rootCmd.AddCommand(newUnmountCmd(c))

	return rootCmd
}

// setup loads the configuration and builds logging, metrics and the space
// registry.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(c.logLevel)
	}
	if c.metricsTextfile != "" {
		cfg.Metrics.Textfile = c.metricsTextfile
	}
	c.cfg = cfg

	closer, err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return err
	}
	c.logCloser = closer

	c.metrics = config.InitializeMetrics(cfg)

	reg, err := config.InitializeRegistry(cmd.Context(), cfg, c.metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize space registry: %w", err)
	}
	c.reg = reg
	return nil
}

func (c *cli) close() error {
	var errs []error
	if err := c.metrics.Flush(); err != nil {
		errs = append(errs, err)
	}
	if c.reg != nil {
		if err := c.reg.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close space registry: %w", err))
		}
	}
	if c.logCloser != nil {
		_ = c.logCloser.Close()
	}
	return errors.Join(errs...)
}

// driver returns the driver of the named space.
func (c *cli) driver(name string) (space.Driver, error) {
	return c.reg.Get(name)
}
