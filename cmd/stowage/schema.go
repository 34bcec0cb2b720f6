package main

import (
	"fmt"
	"os"

	"github.com/marmos91/stowage/pkg/config"
	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [output]",
		Short: "Print the JSON schema of the configuration file",
		Long: `Print the JSON schema of the configuration file.

The schema is written to stdout, or to output when given.`,
		Args:              cobra.MaximumNArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.Schema()
			if err != nil {
				return fmt.Errorf("failed to generate schema: %w", err)
			}

			if len(args) == 0 {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if err := os.WriteFile(args[0], data, 0644); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", args[0])
			return nil
		},
	}
}
