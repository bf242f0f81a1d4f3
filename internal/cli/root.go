// Package cli implements the lease_engine command line
package cli

import (
	"github.com/spf13/cobra"
)

const defaultConfig = "configs/config.yaml"

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "lease_engine",
		Short: "Leveraged lease debt and liquidation engine",
		Long: `lease_engine opens leveraged leases, accrues their interest, watches
prices and time alarms, and liquidates collateral when a lease becomes
unhealthy or overdue.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", defaultConfig, "Path to configuration file")

	root.AddCommand(newServeCommand())
	root.AddCommand(newInspectCommand())
	root.AddCommand(newValidateCommand())
	return root
}

// Execute runs the command line
func Execute() error {
	return NewRootCommand().Execute()
}
