package activity

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"alphapoints/internal/points"
)

// TokenSummary is the per-token flow over a set of transactions, in token units.
type TokenSummary struct {
	Token   string
	Inflow  decimal.Decimal
	Outflow decimal.Decimal
	Net     decimal.Decimal
}

// SummarizeTokens sums inflow and outflow per token. Records that fail validation are ignored.
func SummarizeTokens(txs []Transaction) []TokenSummary {
	byToken := make(map[string]*TokenSummary)
	for _, tx := range txs {
		if _, bad := validate(tx); bad != nil {
			continue
		}
		s, ok := byToken[tx.Token]
		if !ok {
			s = &TokenSummary{Token: tx.Token, Inflow: decimal.Zero, Outflow: decimal.Zero}
			byToken[tx.Token] = s
		}
		if tx.InAmount != nil {
			s.Inflow = s.Inflow.Add(*tx.InAmount)
		}
		if tx.OutAmount != nil {
			s.Outflow = s.Outflow.Add(*tx.OutAmount)
		}
	}

	out := make([]TokenSummary, 0, len(byToken))
	for _, s := range byToken {
		s.Net = s.Inflow.Sub(s.Outflow)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// Overview is the headline figures of a single day.
type Overview struct {
	Date     string
	Trades   int
	GasUsed  decimal.Decimal
	Projects int
	Amounts  decimal.Decimal
	Points   int
}

// OverviewFor returns the figures for date, or a zero overview when no group matches.
func OverviewFor(groups []DailyActivityGroup, date time.Time) Overview {
	key := DateKey(date)
	for _, g := range groups {
		if g.Date == key {
			return Overview{
				Date:     key,
				Trades:   g.TxCount,
				GasUsed:  g.TotalGasUsed,
				Projects: g.Projects,
				Amounts:  g.USDOutflow,
				Points:   g.PointsEarnedThatDay,
			}
		}
	}
	return Overview{Date: key, GasUsed: decimal.Zero, Amounts: decimal.Zero}
}

// AirdropTargets are the thresholds a window must reach to qualify.
type AirdropTargets struct {
	Points    int
	VolumeUSD decimal.Decimal
}

// WindowTotals accumulate daily groups over the qualifying window.
type WindowTotals struct {
	From                   string
	To                     string
	Days                   int
	ActiveDays             int
	TotalVolume            decimal.Decimal
	TotalPoints            int
	PointsNeededForAirdrop int
	SpendMoreForAirdrop    decimal.Decimal
}

// Totals sums the groups dated within the windowDays ending on asOf (inclusive).
func Totals(groups []DailyActivityGroup, asOf time.Time, windowDays int, targets AirdropTargets) WindowTotals {
	if windowDays <= 0 {
		windowDays = points.DefaultWindowDays
	}
	end := asOf.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -(windowDays - 1))

	totals := WindowTotals{
		From:        DateKey(start),
		To:          DateKey(end),
		Days:        windowDays,
		TotalVolume: decimal.Zero,
	}
	for _, g := range groups {
		day := g.Day()
		if day.Before(start) || day.After(end) {
			continue
		}
		totals.ActiveDays++
		totals.TotalVolume = totals.TotalVolume.Add(g.USDOutflow)
		totals.TotalPoints += g.PointsEarnedThatDay
	}

	totals.PointsNeededForAirdrop = points.AirdropGap(totals.TotalPoints, targets.Points)
	totals.SpendMoreForAirdrop = decimal.Zero
	if targets.VolumeUSD.GreaterThan(totals.TotalVolume) {
		totals.SpendMoreForAirdrop = targets.VolumeUSD.Sub(totals.TotalVolume)
	}
	return totals
}
