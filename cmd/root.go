// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with DATAGATE, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("DATAGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/datagate", "$HOME/.datagate", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// a missing config file is not an error; flags and env still apply
	_ = viper.ReadInConfig()

	return &cobra.Command{
		Use:   "datagate",
		Short: "A data gateway that queries, authorizes and shapes records from relational stores and remote services",
		Long: `A data gateway that queries, authorizes and shapes records from relational stores and remote services.

Every lookup accepts sparse field projections, ordering and paging, and is filtered by the caller's
permissions, affiliations and ownership before records are shaped into nested models.`,
		SilenceUsage: true,
	}
}
