package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/marmos91/stowage/pkg/registry"
	"github.com/marmos91/stowage/pkg/space"
	"github.com/spf13/cobra"
)

func newSpacesCmd(c *cli) *cobra.Command {
	spacesCmd := &cobra.Command{
		Use:   "spaces",
		Short: "Manage storage spaces",
		Long: `Manage the spaces known to the registry.

Spaces declared in the configuration file are saved on every start; spaces
saved from the command line persist when the registry type is badger.

Examples:
  # List all spaces
  stowage spaces list

  # Save an NFS space
  stowage spaces save nas --type nfs --path /mnt/nas \
    -o remote_name=nas.example.org -o remote_path=/export/archive

  # Check that a space can be browsed
  stowage spaces verify nas`,
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all spaces",
		Args:    cobra.NoArgs,
		RunE:    c.runSpacesList,
	}
	spacesCmd.AddCommand(listCmd)

	spacesCmd.AddCommand(newSpacesSaveCmd(c))

	verifyCmd := &cobra.Command{
		Use:   "verify <space>",
		Short: "Browse the root of a space and record the outcome",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runSpacesVerify,
	}
	spacesCmd.AddCommand(verifyCmd)

	deleteCmd := &cobra.Command{
		Use:     "delete <space>",
		Aliases: []string{"rm"},
		Short:   "Remove a space from the registry",
		Args:    cobra.ExactArgs(1),
		RunE:    c.runSpacesDelete,
	}
	spacesCmd.AddCommand(deleteCmd)

	return spacesCmd
}

func (c *cli) runSpacesList(cmd *cobra.Command, _ []string) error {
	records, err := c.reg.List(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		_, _ = fmt.Fprintln(out, "No spaces found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tTYPE\tPATH\tSTAGING\tVERIFIED\tUUID")
	for _, rec := range records {
		verified := "no"
		if rec.Verified {
			verified = rec.LastVerified.Local().Format(time.DateTime)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Name, rec.Type, rec.Path, rec.StagingPath, verified, rec.UUID)
	}
	return w.Flush()
}

func newSpacesSaveCmd(c *cli) *cobra.Command {
	var (
		rec     registry.Record
		kind    string
		options []string
	)

	saveCmd := &cobra.Command{
		Use:   "save <space>",
		Short: "Create or update a space",
		Long: `Create or update a space.

The space is validated by its driver before it is stored; an invalid space
is never saved. Driver options are given as repeated key=value pairs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec.Name = args[0]
			rec.Type = space.Kind(strings.ToLower(kind))

			opts, err := parseOptions(options)
			if err != nil {
				return err
			}
			rec.Options = opts

			if rec.UUID == "" {
				if prev, err := c.reg.Record(cmd.Context(), rec.Name); err == nil {
					rec.UUID = prev.UUID
				}
			}
			if rec.StagingPath == "" {
				rec.StagingPath = rec.Path
			}

			saved, err := c.reg.Save(cmd.Context(), rec)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Space '%s' saved (%s).\n", saved.Name, saved.UUID)
			return nil
		},
	}
	saveCmd.Flags().StringVarP(&kind, "type", "t", "", "space type (filesystem, nfs, onedata, s3)")
	saveCmd.Flags().StringVarP(&rec.Path, "path", "p", "", "space path (mount point for nfs and onedata)")
	saveCmd.Flags().StringVar(&rec.StagingPath, "staging-path", "", "local staging directory (defaults to the space path)")
	saveCmd.Flags().StringVar(&rec.UUID, "uuid", "", "space UUID (generated when empty)")
	saveCmd.Flags().StringArrayVarP(&options, "option", "o", nil, "driver option as key=value (repeatable)")
	_ = saveCmd.MarkFlagRequired("type")

	return saveCmd
}

// parseOptions turns key=value pairs into an options map. Values may contain
// '=' and ','.
func parseOptions(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	opts := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid option %q: expected key=value", pair)
		}
		opts[key] = value
	}
	return opts, nil
}

func (c *cli) runSpacesVerify(cmd *cobra.Command, args []string) error {
	if err := c.reg.Verify(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("space '%s' could not be verified: %w", args[0], err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Space '%s' verified.\n", args[0])
	return nil
}

func (c *cli) runSpacesDelete(cmd *cobra.Command, args []string) error {
	if err := c.reg.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Space '%s' deleted.\n", args[0])
	return nil
}
