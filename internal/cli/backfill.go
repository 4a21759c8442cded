package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"alphapoints/internal/app"
)

var (
	backfillAddresses []string
	backfillFrom      string
	backfillTo        string
	backfillDryRun    bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recompute and store daily points for a range of days",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" || backfillTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := parseDay(backfillFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to, err := parseDay(backfillTo)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}

		if !from.Before(to) {
			return fmt.Errorf("--from must be before --to")
		}

		opts := app.BackfillOptions{
			Addresses: backfillAddresses,
			From:      from,
			To:        to,
			DryRun:    backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringArrayVar(&backfillAddresses, "address", nil, "Address to backfill (repeatable; defaults to tracking.addresses)")
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "First day (YYYY-MM-DD or RFC3339, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End day (YYYY-MM-DD or RFC3339, exclusive)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Compute without writing to storage")
}
