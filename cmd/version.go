package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfga/datagate/internal/build"
)

// NewVersionCommand returns the command to get datagate version
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Return the datagate version",
		Long:  "Return the datagate version.",
		RunE:  version,
		Args:  cobra.NoArgs,
	}

	return cmd
}

// print out the built version
func version(cmd *cobra.Command, _ []string) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "datagate version %s date %s commit id %s\n", build.Version, build.Date, build.Commit)
	return err
}
