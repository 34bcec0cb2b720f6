package main

import (
	"fmt"
	"os"

	"github.com/marmos91/stowage/pkg/space"
	"github.com/spf13/cobra"
)

func newMoveToCmd(c *cli) *cobra.Command {
	var destSpace string

	moveToCmd := &cobra.Command{
		Use:   "move-to <space> <src> <dst>",
		Short: "Move files out of a space into a local staging area",
		Long: `Move files out of a space into a local staging area.

src is relative to the space root. A relative dst lands in the staging path
of --dest-space, or in the working directory when no destination space is
given. Distributed filesystem spaces link files instead of copying them.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.driver(args[0])
			if err != nil {
				return err
			}

			var dst space.Space
			if destSpace != "" {
				dd, err := c.driver(destSpace)
				if err != nil {
					return err
				}
				dst = dd.Space()
			} else {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				dst = space.NewLocal(wd, wd)
			}

			if err := d.MoveToStorageService(cmd.Context(), args[1], args[2], dst); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Moved %s from space '%s'.\n", args[1], args[0])
			return nil
		},
	}
	moveToCmd.Flags().StringVar(&destSpace, "dest-space", "", "space whose staging path receives the files")

	return moveToCmd
}

func newMoveFromCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "move-from <space> <src> <dst>",
		Short: "Move files from the local staging area into a space",
		Long: `Move files from the local staging area into a space.

A relative src is resolved against the staging path of the space; dst is
relative to the space root.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.driver(args[0])
			if err != nil {
				return err
			}
			if err := d.MoveFromStorageService(cmd.Context(), args[1], args[2]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Moved %s into space '%s'.\n", args[1], args[0])
			return nil
		},
	}
}
