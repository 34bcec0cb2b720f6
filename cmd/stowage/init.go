package main

import (
	"fmt"

	"github.com/marmos91/stowage/pkg/config"
	"github.com/spf13/cobra"
)

func newInitCmd(c *cli) *cobra.Command {
	var force bool

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a default configuration file.

The file is written to --config when given, otherwise to
$XDG_CONFIG_HOME/stowage/config.yaml. An existing file is kept unless
--force is set.`,
		Args: cobra.NoArgs,
		// Nothing to load before the file exists
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := c.cfgFile
			if path == "" {
				path = config.GetDefaultConfigPath()
			}
			if err := config.WriteDefaultConfig(path, force); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing configuration file")

	return initCmd
}
