package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newBrowseCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "browse <space> [path]",
		Short: "List the direct children of a path in a space",
		Long: `List the direct children of a path in a space.

Prints a JSON object with the sorted entries, the subset that are
directories, and per-entry properties (file size, capped object count).
The path is relative to the space root; it defaults to the root.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.driver(args[0])
			if err != nil {
				return err
			}

			path := ""
			if len(args) == 2 {
				path = args[1]
			}

			tree, err := d.Browse(cmd.Context(), path)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tree)
		},
	}
}
