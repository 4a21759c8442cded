package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"alphapoints/internal/app"
)

var (
	showAddress string
	showLimit   int
	showAlerts  bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display stored daily points of an address",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Address: showAddress,
			Limit:   showLimit,
			Alerts:  showAlerts,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showAddress, "address", "", "Wallet address (0x...)")
	showCmd.Flags().IntVar(&showLimit, "limit", 15, "Number of days to display")
	showCmd.Flags().BoolVar(&showAlerts, "alerts", false, "Also list recent alerts")
	_ = showCmd.MarkFlagRequired("address")
}
