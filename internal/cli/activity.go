package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"alphapoints/internal/app"
)

var (
	activityAddress string
	activityAsOf    string
	activityJSON    bool
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Fetch an address's transfers and print the daily points breakdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ActivityOptions{
			Address: activityAddress,
			JSON:    activityJSON,
		}
		if activityAsOf != "" {
			asOf, err := parseDay(activityAsOf)
			if err != nil {
				return fmt.Errorf("invalid --as-of value: %w", err)
			}
			opts.AsOf = asOf
		}
		return getApp().Activity(cmd.Context(), opts)
	},
}

func init() {
	activityCmd.Flags().StringVar(&activityAddress, "address", "", "Wallet address (0x...)")
	activityCmd.Flags().StringVar(&activityAsOf, "as-of", "", "Report day (YYYY-MM-DD or RFC3339, UTC); defaults to today")
	activityCmd.Flags().BoolVar(&activityJSON, "json", false, "Emit JSON instead of a table")
	_ = activityCmd.MarkFlagRequired("address")
}

// parseDay accepts a bare UTC date or a full RFC3339 timestamp.
func parseDay(value string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}
