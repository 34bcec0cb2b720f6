package main

import (
	"fmt"

	"github.com/marmos91/stowage/pkg/space"
	"github.com/spf13/cobra"
)

func newMountCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "mount <space>",
		Short: "Make sure the space is mounted and responsive",
		Long: `Make sure the space is mounted and responsive.

Probes the mount point and remounts it once when it is missing or does not
answer. Manually mounted spaces are left alone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.mounter(args[0])
			if err != nil {
				return err
			}
			if err := m.EnsureMounted(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Space '%s' is mounted.\n", args[0])
			return nil
		},
	}
}

func newUnmountCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "unmount <space>",
		Short: "Force unmount the space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.mounter(args[0])
			if err != nil {
				return err
			}
			if err := m.Unmount(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Space '%s' is unmounted.\n", args[0])
			return nil
		},
	}
}

func (c *cli) mounter(name string) (space.Mounter, error) {
	d, err := c.driver(name)
	if err != nil {
		return nil, err
	}
	m, ok := d.(space.Mounter)
	if !ok {
		return nil, fmt.Errorf("space '%s' (%s) has no mount: %w", name, d.Kind(), space.ErrUnsupported)
	}
	return m, nil
}
