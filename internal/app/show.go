package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

var errNoDatabase = errors.New("database not configured")

// Show prints the most recent stored days of an address, and optionally recent alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("%w; cannot show daily points", errNoDatabase)
	}
	if closeStore != nil {
		defer closeStore()
	}

	rows, err := store.ListRecentDailyPoints(ctx, opts.Address, opts.Limit)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	if len(rows) == 0 {
		fmt.Fprintln(writer, "no daily points found")
	} else {
		fmt.Fprintln(writer, "Day (UTC)\tTxs\tGas\tOutflow (USD)\tBalance (USD)\tTier\tPoints")
		for _, row := range rows {
			fmt.Fprintf(
				writer,
				"%s\t%d\t%s\t%s\t%s\t%s\t%d\n",
				row.Day.UTC().Format(time.DateOnly),
				row.TxCount,
				row.GasUsed.String(),
				formatDecimal(row.USDOutflow, 2),
				formatDecimal(row.BalanceUSD, 2),
				row.TierLabel,
				row.Points,
			)
		}
	}

	if opts.Alerts {
		alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(writer)
		fmt.Fprintln(writer, "Alert time (UTC)\tAddress\tKind\tWindow points\tThreshold\tDetail")
		for _, alert := range alerts {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%d\t%d\t%s\n",
				alert.CreatedAt.UTC().Format(time.RFC3339),
				alert.Address,
				alert.Kind,
				alert.WindowPoints,
				alert.Threshold,
				sanitizeInline(alert.Detail),
			)
		}
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
