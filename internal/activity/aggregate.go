package activity

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"alphapoints/internal/points"
)

// PriceFunc returns the USD price of one unit of token at ts.
type PriceFunc func(token string, ts time.Time) (decimal.Decimal, error)

// BalanceFunc returns the USD balance held on the given UTC date.
type BalanceFunc func(date time.Time) decimal.Decimal

// DailyActivityGroup is the aggregate of one UTC calendar day.
type DailyActivityGroup struct {
	Date                string
	Transactions        []Transaction
	TxCount             int
	TotalGasUsed        decimal.Decimal
	USDOutflow          decimal.Decimal
	PointsEarnedThatDay int
	BalanceUSD          decimal.Decimal
	Projects            int
}

// Day parses Date back into a UTC midnight.
func (g DailyActivityGroup) Day() time.Time {
	day, _ := time.Parse(time.DateOnly, g.Date)
	return day
}

// Report is the result of an aggregation: the groups plus the records that were skipped.
type Report struct {
	Groups    []DailyActivityGroup
	Malformed []*MalformedRecordError
}

// Aggregator partitions transactions into daily groups and scores each day.
type Aggregator struct {
	Table    *points.Table
	Prices   PriceFunc
	Balances BalanceFunc
}

// NewAggregator constructs an Aggregator. A nil table uses the default rules.
func NewAggregator(table *points.Table, prices PriceFunc, balances BalanceFunc) *Aggregator {
	if table == nil {
		table = points.DefaultTable()
	}
	return &Aggregator{Table: table, Prices: prices, Balances: balances}
}

type bucket struct {
	day time.Time
	txs []Transaction
	ts  []time.Time
}

// Aggregate groups transactions by UTC date, most recent day first. Malformed records are
// skipped and listed in the report; a pricing failure aborts.
func (a *Aggregator) Aggregate(txs []Transaction) (Report, error) {
	report := Report{Groups: []DailyActivityGroup{}}
	if len(txs) == 0 {
		return report, nil
	}
	if a.Prices == nil {
		return Report{}, fmt.Errorf("aggregate: price function not configured")
	}

	buckets := make(map[string]*bucket)
	for _, tx := range txs {
		ts, bad := validate(tx)
		if bad != nil {
			report.Malformed = append(report.Malformed, bad)
			continue
		}
		key := DateKey(ts)
		b, ok := buckets[key]
		if !ok {
			day, _ := time.Parse(time.DateOnly, key)
			b = &bucket{day: day}
			buckets[key] = b
		}
		b.txs = append(b.txs, tx)
		b.ts = append(b.ts, ts)
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	for _, key := range keys {
		group, err := a.buildGroup(key, buckets[key])
		if err != nil {
			return Report{}, err
		}
		report.Groups = append(report.Groups, group)
	}
	return report, nil
}

func (a *Aggregator) buildGroup(key string, b *bucket) (DailyActivityGroup, error) {
	group := DailyActivityGroup{
		Date:         key,
		Transactions: b.txs,
		TxCount:      len(b.txs),
		TotalGasUsed: decimal.Zero,
		USDOutflow:   decimal.Zero,
		BalanceUSD:   decimal.Zero,
	}

	projects := make(map[string]struct{})
	for i, tx := range b.txs {
		group.TotalGasUsed = group.TotalGasUsed.Add(tx.GasUsed)
		if name := tx.ProjectName(); name != "" {
			projects[name] = struct{}{}
		}
		if tx.OutAmount == nil {
			continue
		}
		price, err := a.Prices(tx.Token, b.ts[i])
		if err != nil {
			return DailyActivityGroup{}, fmt.Errorf("price %s at %s: %w", tx.Token, b.ts[i].Format(time.RFC3339), err)
		}
		group.USDOutflow = group.USDOutflow.Add(tx.OutAmount.Mul(price))
	}
	group.Projects = len(projects)

	if a.Balances != nil {
		group.BalanceUSD = a.Balances(b.day)
	}

	forecast, err := a.Table.Estimate(group.BalanceUSD, group.USDOutflow)
	if err != nil {
		return DailyActivityGroup{}, fmt.Errorf("estimate %s: %w", key, err)
	}
	group.PointsEarnedThatDay = forecast.TotalPointsPerDay
	return group, nil
}

// AggregateByDate is a convenience wrapper using the default rules.
func AggregateByDate(txs []Transaction, prices PriceFunc, balances BalanceFunc) (Report, error) {
	return NewAggregator(nil, prices, balances).Aggregate(txs)
}
