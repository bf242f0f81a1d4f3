package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"lease_engine/internal/bootstrap"

	"github.com/spf13/cobra"
)

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect LEASE_ID",
		Short: "Print the debt state of a stored lease",
		Long: `Print the debt state of a stored lease as of now, or as of --at.
Reads the store directly; no prices are queried and nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: runInspect,
	}
	cmd.Flags().String("at", "", "Evaluation time in RFC3339, defaults to now")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	atFlag, _ := cmd.Flags().GetString("at")

	at := time.Now()
	if atFlag != "" {
		parsed, err := time.Parse(time.RFC3339, atFlag)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		at = parsed
	}

	cfg, err := bootstrap.LoadConfig(path)
	if err != nil {
		return err
	}
	st, err := bootstrap.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	l, err := st.LoadLease(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	view, err := l.QueryState(at)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
