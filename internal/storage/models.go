package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyPoints is the persisted per-address, per-day aggregate.
type DailyPoints struct {
	Address    string
	Day        time.Time
	TxCount    int
	GasUsed    decimal.Decimal
	USDOutflow decimal.Decimal
	BalanceUSD decimal.Decimal
	Points     int
	TierLabel  string
	CreatedAt  time.Time
}

// Alert kinds.
const (
	AlertKindAirdrop    = "airdrop"
	AlertKindTierChange = "tier_change"
)

// AlertRecord captures an emitted alert for de-duplication/auditing.
type AlertRecord struct {
	ID           int64
	Address      string
	Day          time.Time
	Kind         string
	WindowPoints int64
	Threshold    int64
	Detail       string
	Channels     []string
	CreatedAt    time.Time
}
