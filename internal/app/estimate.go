package app

import (
	"fmt"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"alphapoints/internal/observability"
	"alphapoints/internal/points"
)

// Estimate prints the daily forecast for a balance and daily spend.
func (a *App) Estimate(opts EstimateOptions) (points.PointsForecast, error) {
	table, err := a.Config.Points.Table()
	if err != nil {
		return points.PointsForecast{}, err
	}

	balance := opts.BalanceUSD
	if opts.TierIndex != nil {
		tier, err := table.BalanceTierAt(*opts.TierIndex)
		if err != nil {
			return points.PointsForecast{}, err
		}
		balance = tier.Min
	}

	forecast, err := table.Estimate(balance, opts.DailySpendUSD)
	if err != nil {
		return points.PointsForecast{}, err
	}
	observability.RecordForecast(forecast.CurrentTierLabel)

	days := opts.Days
	if days <= 0 {
		days = a.Config.Points.WindowDays
	}
	projected := points.Project(forecast, days)

	w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Balance\t$%s\n", formatDecimal(balance, 2))
	fmt.Fprintf(w, "Daily spend\t$%s\n", formatDecimal(opts.DailySpendUSD, 2))
	fmt.Fprintf(w, "Balance tier\t%s\n", forecast.CurrentTierLabel)
	fmt.Fprintf(w, "Points from balance\t%d /day\n", forecast.PointsPerDayFromBalance)
	fmt.Fprintf(w, "Points from volume\t%d /day\n", forecast.PointsPerDayFromVolume)
	fmt.Fprintf(w, "Total\t%d /day (%d over %d days)\n", forecast.TotalPointsPerDay, projected, days)
	if forecast.PointsNeededForNextBalanceTier > 0 {
		fmt.Fprintf(w, "Next balance tier\t+%d /day with $%s more\n",
			forecast.PointsNeededForNextBalanceTier, formatDecimal(forecast.BalanceNeededForNextTier, 2))
	} else {
		fmt.Fprintln(w, "Next balance tier\ttop tier reached")
	}
	if forecast.SpendNeededForNextVolumePoint.IsPositive() {
		fmt.Fprintf(w, "Next volume point\tspend $%s more\n", formatDecimal(forecast.SpendNeededForNextVolumePoint, 2))
	} else {
		fmt.Fprintln(w, "Next volume point\ttop of schedule")
	}
	if target := a.Config.Points.AirdropPoints; target > 0 {
		fmt.Fprintf(w, "Airdrop target\t%d points, %d short after %d days\n", target, points.AirdropGap(projected, target), days)
	}
	return forecast, w.Flush()
}

// Tiers prints the balance tiers and the volume schedule.
func (a *App) Tiers() error {
	table, err := a.Config.Points.Table()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tBalance (USD)\tPoints/day")
	for i, r := range table.BalanceRanges() {
		fmt.Fprintf(w, "%d\t%s\t%d\n", i, r.Label, r.PointsPerDay)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Daily spend (USD) >=\tPoints/day")
	fmt.Fprintf(w, "%s\t%d\n", "0", points.ZeroVolume.PointsPerDay)
	for _, r := range table.VolumeRanges() {
		fmt.Fprintf(w, "%s\t%d\n", r.Min.String(), r.PointsPerDay)
	}
	return w.Flush()
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
