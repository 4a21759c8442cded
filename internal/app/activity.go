package app

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"alphapoints/internal/activity"
	"alphapoints/internal/points"
	"alphapoints/internal/service"
)

// Activity fetches an address's transfers and prints the daily breakdown,
// token flows and qualifying-window totals. Nothing is persisted.
func (a *App) Activity(ctx context.Context, opts ActivityOptions) error {
	if !common.IsHexAddress(opts.Address) {
		return fmt.Errorf("invalid address %q", opts.Address)
	}
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	svc, err := a.newService(nil, nil, false)
	if err != nil {
		return err
	}
	analysis, err := svc.Analyze(ctx, opts.Address, asOf)
	if err != nil {
		return err
	}

	if opts.JSON {
		return a.writeActivityJSON(analysis)
	}
	return a.writeActivityText(analysis)
}

type activityGroupView struct {
	Date       string `json:"date"`
	TxCount    int    `json:"txCount"`
	GasUsed    string `json:"totalGasUsed"`
	USDOutflow string `json:"usdOutflow"`
	BalanceUSD string `json:"balanceUSD"`
	Points     int    `json:"pointsEarnedThatDay"`
	Projects   int    `json:"projects"`
}

type activityView struct {
	Address    string                  `json:"address"`
	Day        string                  `json:"day"`
	BalanceUSD string                  `json:"balanceUSD"`
	Forecast   points.PointsForecast   `json:"forecast"`
	Groups     []activityGroupView     `json:"groups"`
	Tokens     []activity.TokenSummary `json:"tokens"`
	Totals     activity.WindowTotals   `json:"totals"`
	Malformed  []string                `json:"malformed,omitempty"`
}

func (a *App) writeActivityJSON(an *service.Analysis) error {
	view := activityView{
		Address:    an.Address,
		Day:        activity.DateKey(an.Day),
		BalanceUSD: an.BalanceUSD.StringFixed(2),
		Forecast:   an.Forecast,
		Groups:     make([]activityGroupView, 0, len(an.Fresh)),
		Tokens:     an.Tokens,
		Totals:     an.Totals,
	}
	for _, g := range an.Fresh {
		view.Groups = append(view.Groups, activityGroupView{
			Date:       g.Date,
			TxCount:    g.TxCount,
			GasUsed:    g.TotalGasUsed.String(),
			USDOutflow: g.USDOutflow.StringFixed(2),
			BalanceUSD: g.BalanceUSD.StringFixed(2),
			Points:     g.PointsEarnedThatDay,
			Projects:   g.Projects,
		})
	}
	for _, bad := range an.Report.Malformed {
		view.Malformed = append(view.Malformed, bad.Error())
	}

	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func (a *App) writeActivityText(an *service.Analysis) error {
	w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)

	o := an.Overview
	fmt.Fprintf(w, "Address\t%s\n", an.Address)
	fmt.Fprintf(w, "Balance\t$%s (%s)\n", formatDecimal(an.BalanceUSD, 2), an.Forecast.CurrentTierLabel)
	fmt.Fprintf(w, "Today %s\t%d trades, gas %s, %d projects, $%s, %d points\n",
		o.Date, o.Trades, o.GasUsed.String(), o.Projects, formatDecimal(o.Amounts, 2), o.Points)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Date\tTxs\tGas\tOutflow (USD)\tBalance (USD)\tPoints\tProjects")
	for _, g := range an.Fresh {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%d\t%d\n",
			g.Date,
			g.TxCount,
			g.TotalGasUsed.String(),
			formatDecimal(g.USDOutflow, 2),
			formatDecimal(g.BalanceUSD, 2),
			g.PointsEarnedThatDay,
			g.Projects,
		)
	}
	fmt.Fprintln(w)

	if len(an.Tokens) > 0 {
		fmt.Fprintln(w, "Token\tInflow\tOutflow\tNet")
		for _, t := range an.Tokens {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Token, t.Inflow.String(), t.Outflow.String(), t.Net.String())
		}
		fmt.Fprintln(w)
	}

	t := an.Totals
	fmt.Fprintf(w, "Window\t%s .. %s (%d days, %d active)\n", t.From, t.To, t.Days, t.ActiveDays)
	fmt.Fprintf(w, "Volume\t$%s\n", formatDecimal(t.TotalVolume, 2))
	fmt.Fprintf(w, "Points\t%d\n", t.TotalPoints)
	fmt.Fprintf(w, "Airdrop\t%d points short, spend $%s more\n", t.PointsNeededForAirdrop, formatDecimal(t.SpendMoreForAirdrop, 2))
	if n := len(an.Report.Malformed); n > 0 {
		fmt.Fprintf(w, "Skipped\t%d malformed records\n", n)
	}
	return w.Flush()
}
