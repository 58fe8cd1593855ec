package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the provisioner admin CLI. Subcommands
// (bootstrap, tenant) are attached here.
var rootCmd = &cobra.Command{
	Use:           "provisioner",
	Short:         "Tenant provisioner admin CLI",
	Long:          "Administrative utilities for the tenant provisioner (registry bootstrap, tenant provisioning and migration management).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
