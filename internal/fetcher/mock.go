package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alphapoints/internal/activity"
)

// MockOptions parameterise the simulated backend.
type MockOptions struct {
	Delay  time.Duration
	Anchor time.Time
}

// Mock serves a fixed set of sample transfers after an artificial delay.
type Mock struct {
	opts   MockOptions
	logger zerolog.Logger
}

// NewMock constructs the simulated transaction source.
func NewMock(opts MockOptions, logger zerolog.Logger) *Mock {
	return &Mock{opts: opts, logger: logger.With().Str("component", "mock_source").Logger()}
}

type mockRecord struct {
	dayOffset int
	clock     string
	token     string
	in        string
	out       string
	gas       string
	project   string
}

// Two days of activity: today and the day before, newest first.
var mockRecords = []mockRecord{
	{0, "14:21:21", "BNB", "0.5", "", "0.002", "BNB Chain"},
	{0, "12:15:04", "USDT", "", "245.75", "0.003", "Tether"},
	{0, "10:35:17", "ETH", "0.12", "", "0.004", "Ethereum"},
	{0, "09:22:58", "BTC", "", "0.002", "0.001", "Bitcoin"},
	{0, "08:17:33", "USDT", "550.25", "", "0.0015", "Tether"},
	{0, "07:45:12", "BNB", "", "0.25", "0.001", "BNB Chain"},
	{0, "06:30:44", "USDT", "", "125.50", "0.0025", "Tether"},
	{0, "05:15:27", "ETH", "0.05", "", "0.002", "Ethereum"},
	{-1, "18:42:11", "BNB", "0.75", "", "0.003", "BNB Chain"},
	{-1, "16:37:24", "USDT", "", "875.35", "0.004", "Tether"},
	{-1, "14:25:53", "BTC", "0.005", "", "0.005", "Bitcoin"},
	{-1, "12:18:47", "ETH", "", "0.15", "0.0025", "Ethereum"},
	{-1, "10:05:32", "USDT", "1250.60", "", "0.003", "Tether"},
	{-1, "08:53:19", "BNB", "", "0.35", "0.0015", "BNB Chain"},
	{-1, "06:47:05", "USDT", "", "350.75", "0.002", "Tether"},
	{-1, "04:38:52", "ETH", "0.08", "", "0.0035", "Ethereum"},
	{-1, "02:27:39", "BTC", "", "0.003", "0.002", "Bitcoin"},
	{-1, "00:19:26", "BNB", "0.4", "", "0.0025", "BNB Chain"},
}

// MockBalances are the token holdings reported by the simulated backend.
var MockBalances = map[string]string{
	"BNB":  "1.122",
	"USDT": "1350.50",
	"BTC":  "0.004",
	"ETH":  "0.23",
}

// FetchTransactions waits for the configured delay and returns the sample transfers.
// Hashes are derived from the address so different addresses get distinct records.
func (m *Mock) FetchTransactions(ctx context.Context, address string) ([]activity.Transaction, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	anchor := m.opts.Anchor
	if anchor.IsZero() {
		anchor = time.Now().UTC()
	}
	day := anchor.UTC().Truncate(24 * time.Hour)

	txs := make([]activity.Transaction, 0, len(mockRecords))
	for i, rec := range mockRecords {
		date := day.AddDate(0, 0, rec.dayOffset).Format(time.DateOnly)
		project := rec.project
		tx := activity.Transaction{
			Hash:      mockHash(address, i),
			Timestamp: date + "T" + rec.clock + "Z",
			Token:     rec.token,
			GasUsed:   decimal.RequireFromString(rec.gas),
			Status:    activity.StatusCompleted,
			Project:   &project,
		}
		if rec.in != "" {
			v := decimal.RequireFromString(rec.in)
			tx.InAmount = &v
		}
		if rec.out != "" {
			v := decimal.RequireFromString(rec.out)
			tx.OutAmount = &v
		}
		txs = append(txs, tx)
	}

	m.logger.Debug().Str("address", address).Int("count", len(txs)).Msg("served mock transactions")
	return txs, nil
}

// FetchBalances returns MockBalances after the configured delay.
func (m *Mock) FetchBalances(ctx context.Context, address string) (map[string]decimal.Decimal, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(MockBalances))
	for token, v := range MockBalances {
		out[token] = decimal.RequireFromString(v)
	}
	return out, nil
}

func (m *Mock) wait(ctx context.Context) error {
	if m.opts.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(m.opts.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func mockHash(address string, index int) string {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%d", strings.ToLower(address), index))).Hex()
}

var (
	_ TransactionSource = (*Mock)(nil)
	_ BalanceFetcher    = (*Mock)(nil)
)
