package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"alphapoints/internal/storage"
)

// Export renders stored daily points of an address as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("%w; cannot export", errNoDatabase)
	}
	if closeStore != nil {
		defer closeStore()
	}

	from, to, err := exportWindow(opts, time.Now().UTC(), a.Config.Points.WindowDays)
	if err != nil {
		return err
	}

	rows, err := store.ListDailyPointsBetween(ctx, opts.Address, from, to)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Str("address", opts.Address).Msg("no daily points found for export window")
		return nil
	}

	downsampled := downsampleRows(rows, opts.MaxPoints)
	a.Logger.Info().Int("total", len(rows)).Int("exported", len(downsampled)).Msg("exporting daily points")

	if opts.CSVPath != "" {
		if err := writeRowsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRowsPNG(opts.PNGPath, opts.Address, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// exportWindow defaults to the qualifying window ending today; to is exclusive.
func exportWindow(opts ExportOptions, now time.Time, windowDays int) (time.Time, time.Time, error) {
	to := now.Truncate(24*time.Hour).AddDate(0, 0, 1)
	if opts.To != nil {
		to = opts.To.UTC()
	}
	if windowDays <= 0 {
		windowDays = 1
	}
	from := to.AddDate(0, 0, -windowDays)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	return from, to, nil
}

func downsampleRows(rows []storage.DailyPoints, max int) []storage.DailyPoints {
	if max <= 0 || len(rows) <= max {
		return rows
	}
	if max == 1 {
		return rows[len(rows)-1:]
	}

	result := make([]storage.DailyPoints, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeRowsCSV(path string, rows []storage.DailyPoints) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"day", "address", "tx_count", "gas_used", "usd_outflow", "balance_usd", "tier", "points"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.Day.UTC().Format(time.DateOnly),
			row.Address,
			strconv.Itoa(row.TxCount),
			row.GasUsed.String(),
			row.USDOutflow.String(),
			row.BalanceUSD.String(),
			row.TierLabel,
			strconv.Itoa(row.Points),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeRowsPNG(path, address string, rows []storage.DailyPoints) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(rows))
	daily := make([]float64, len(rows))
	cumulative := make([]float64, len(rows))
	outflow := make([]float64, len(rows))

	running := 0
	for i, row := range rows {
		running += row.Points
		x[i] = row.Day
		daily[i] = float64(row.Points)
		cumulative[i] = float64(running)
		outflow[i] = row.USDOutflow.InexactFloat64()
	}

	pointsFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  "Alpha points " + address,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Points",
			ValueFormatter: pointsFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Outflow (USD)",
			ValueFormatter: pointsFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Daily points",
				XValues: x,
				YValues: daily,
			},
			chart.TimeSeries{
				Name:    "Cumulative points",
				XValues: x,
				YValues: cumulative,
			},
			chart.TimeSeries{
				Name:    "Outflow USD",
				XValues: x,
				YValues: outflow,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
