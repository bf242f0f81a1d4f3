package cli

import (
	"lease_engine/internal/bootstrap"

	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with its alarm services and admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			app, err := bootstrap.NewApp(path)
			if err != nil {
				return err
			}
			return app.Run()
		},
	}
}
