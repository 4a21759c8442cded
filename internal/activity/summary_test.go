package activity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSummarizeTokens(t *testing.T) {
	txs := []Transaction{
		inTx("0x01", "2025-05-21T10:00:00Z", "USDT", "3450.75"),
		outTx("0x02", "2025-05-21T11:00:00Z", "USDT", "2100.25"),
		inTx("0x03", "2025-05-21T12:00:00Z", "BNB", "2.145"),
		outTx("0x04", "2025-05-21T13:00:00Z", "BNB", "1.023"),
		outTx("0x05", "not a time", "BNB", "100"),
	}

	summary := SummarizeTokens(txs)
	if len(summary) != 2 {
		t.Fatalf("期望 2 个币种, 实际 %d", len(summary))
	}
	if summary[0].Token != "BNB" || summary[1].Token != "USDT" {
		t.Fatalf("应按币种排序: %+v", summary)
	}
	if !summary[0].Net.Equal(decimal.RequireFromString("1.122")) {
		t.Fatalf("BNB 净流入期望 1.122, 实际 %s", summary[0].Net)
	}
	if !summary[1].Net.Equal(decimal.RequireFromString("1350.5")) {
		t.Fatalf("USDT 净流入期望 1350.5, 实际 %s", summary[1].Net)
	}
}

func TestTotalsWindow(t *testing.T) {
	groups := []DailyActivityGroup{
		{Date: "2025-05-21", USDOutflow: decimal.NewFromInt(10), PointsEarnedThatDay: 3},
		{Date: "2025-05-20", USDOutflow: decimal.NewFromInt(20), PointsEarnedThatDay: 4},
		{Date: "2025-05-07", USDOutflow: decimal.NewFromInt(5), PointsEarnedThatDay: 2},
		{Date: "2025-05-06", USDOutflow: decimal.NewFromInt(999), PointsEarnedThatDay: 9},
	}
	asOf := time.Date(2025, 5, 21, 16, 0, 0, 0, time.UTC)

	totals := Totals(groups, asOf, 15, AirdropTargets{Points: 20, VolumeUSD: decimal.NewFromInt(100)})
	if totals.From != "2025-05-07" || totals.To != "2025-05-21" {
		t.Fatalf("窗口范围错误: %s ~ %s", totals.From, totals.To)
	}
	if totals.ActiveDays != 3 || totals.TotalPoints != 9 {
		t.Fatalf("窗口内应有 3 天 9 分, 实际 %d 天 %d 分", totals.ActiveDays, totals.TotalPoints)
	}
	if !totals.TotalVolume.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("窗口交易额期望 35, 实际 %s", totals.TotalVolume)
	}
	if totals.PointsNeededForAirdrop != 11 {
		t.Fatalf("空投还差 11 分, 实际 %d", totals.PointsNeededForAirdrop)
	}
	if !totals.SpendMoreForAirdrop.Equal(decimal.NewFromInt(65)) {
		t.Fatalf("空投还需交易 65, 实际 %s", totals.SpendMoreForAirdrop)
	}
}

func TestOverviewFor(t *testing.T) {
	groups := []DailyActivityGroup{
		{Date: "2025-05-21", TxCount: 8, TotalGasUsed: decimal.RequireFromString("0.023"), Projects: 4, USDOutflow: decimal.RequireFromString("1287.45"), PointsEarnedThatDay: 12},
	}

	ov := OverviewFor(groups, time.Date(2025, 5, 21, 23, 59, 0, 0, time.UTC))
	if ov.Trades != 8 || ov.Projects != 4 || ov.Points != 12 {
		t.Fatalf("概览不符: %+v", ov)
	}

	empty := OverviewFor(groups, time.Date(2025, 5, 22, 0, 0, 0, 0, time.UTC))
	if empty.Trades != 0 || !empty.Amounts.IsZero() {
		t.Fatalf("无数据日期应返回空概览: %+v", empty)
	}
}
