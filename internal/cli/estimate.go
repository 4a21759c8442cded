package cli

import (
	"github.com/spf13/cobra"

	"alphapoints/internal/app"
	"alphapoints/internal/points"
)

var (
	estimateBalance float64
	estimateVolume  float64
	estimateTier    int
	estimateDays    int
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Forecast daily points for a balance and daily spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		balance, err := points.USD(estimateBalance)
		if err != nil {
			return err
		}
		volume, err := points.USD(estimateVolume)
		if err != nil {
			return err
		}

		opts := app.EstimateOptions{
			BalanceUSD:    balance,
			DailySpendUSD: volume,
			Days:          estimateDays,
		}
		if cmd.Flags().Changed("tier") {
			tier := estimateTier
			opts.TierIndex = &tier
		}

		_, err = getApp().Estimate(opts)
		return err
	},
}

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "Print the balance tiers and the volume schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Tiers()
	},
}

func init() {
	estimateCmd.Flags().Float64Var(&estimateBalance, "balance", 0, "Wallet balance in USD")
	estimateCmd.Flags().Float64Var(&estimateVolume, "volume", 0, "Daily spend in USD")
	estimateCmd.Flags().IntVar(&estimateTier, "tier", 0, "Balance tier index; overrides --balance with the tier's lower bound")
	estimateCmd.Flags().IntVar(&estimateDays, "days", 0, "Days to project over (defaults to points.window_days)")
}
