package points

import (
	"github.com/shopspring/decimal"
)

// DefaultWindowDays is the qualifying window over which daily points accumulate.
const DefaultWindowDays = 15

// PointsForecast is the result of a single estimate.
type PointsForecast struct {
	CurrentTierLabel               string
	PointsPerDayFromBalance        int
	PointsPerDayFromVolume         int
	TotalPointsPerDay              int
	PointsNeededForNextBalanceTier int
	SpendNeededForNextVolumePoint  decimal.Decimal
	BalanceNeededForNextTier       decimal.Decimal
}

// Estimate combines the balance and volume tiers. Balance and volume points are additive.
func (t *Table) Estimate(balanceUSD, dailySpendUSD decimal.Decimal) (PointsForecast, error) {
	bIdx, tier, err := t.balanceIndex(balanceUSD)
	if err != nil {
		return PointsForecast{}, err
	}
	vIdx, vol, err := t.volumeIndex(dailySpendUSD)
	if err != nil {
		return PointsForecast{}, err
	}

	f := PointsForecast{
		CurrentTierLabel:              tier.Label,
		PointsPerDayFromBalance:       tier.PointsPerDay,
		PointsPerDayFromVolume:        vol.PointsPerDay,
		TotalPointsPerDay:             tier.PointsPerDay + vol.PointsPerDay,
		SpendNeededForNextVolumePoint: decimal.Zero,
		BalanceNeededForNextTier:      decimal.Zero,
	}

	if !tier.Unbounded() {
		next := t.balance[bIdx+1]
		f.PointsNeededForNextBalanceTier = next.PointsPerDay - tier.PointsPerDay
		f.BalanceNeededForNextTier = clampZero(next.Min.Sub(balanceUSD))
	}

	if vIdx+1 < len(t.volume) {
		f.SpendNeededForNextVolumePoint = clampZero(t.volume[vIdx+1].Min.Sub(dailySpendUSD))
	}

	return f, nil
}

// Project returns the points a forecast accrues over the given number of days.
func Project(f PointsForecast, days int) int {
	if days <= 0 {
		return 0
	}
	return f.TotalPointsPerDay * days
}

// AirdropGap reports the points still needed to reach threshold.
func AirdropGap(totalPoints, threshold int) int {
	if totalPoints >= threshold {
		return 0
	}
	return threshold - totalPoints
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
