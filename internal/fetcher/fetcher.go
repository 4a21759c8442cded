package fetcher

import (
	"context"

	"github.com/shopspring/decimal"

	"alphapoints/internal/activity"
)

// TransactionSource retrieves the value transfers of an address.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, address string) ([]activity.Transaction, error)
}

// BalanceFetcher retrieves token holdings of an address, keyed by upper-case symbol, in token units.
type BalanceFetcher interface {
	FetchBalances(ctx context.Context, address string) (map[string]decimal.Decimal, error)
}
