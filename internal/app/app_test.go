package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alphapoints/internal/config"
	"alphapoints/internal/storage"
)

const testAddress = "0x8894E0a0c962CB723c1976a4421c95949bE2D4E3"

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "source:\n  kind: mock\n  mock_delay: 0s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	var out bytes.Buffer
	a := NewApp(cfg, zerolog.Nop())
	a.Out = &out
	return a, &out
}

func TestEstimateOutput(t *testing.T) {
	a, out := newTestApp(t)

	f, err := a.Estimate(EstimateOptions{BalanceUSD: decimal.NewFromInt(100), DailySpendUSD: decimal.NewFromInt(4)})
	if err != nil {
		t.Fatalf("估算失败: %v", err)
	}
	if f.TotalPointsPerDay != 3 {
		t.Fatalf("100 余额 + 4 交易量应为 3 分, 实际 %d", f.TotalPointsPerDay)
	}
	text := out.String()
	for _, want := range []string{"$100–$1,000", "3 /day (45 over 15 days)", "spend $4.00 more", "200 points, 155 short"} {
		if !strings.Contains(text, want) {
			t.Fatalf("输出缺少 %q:\n%s", want, text)
		}
	}
}

func TestEstimateTierIndex(t *testing.T) {
	a, out := newTestApp(t)
	top := 4
	f, err := a.Estimate(EstimateOptions{DailySpendUSD: decimal.Zero, TierIndex: &top, Days: 1})
	if err != nil {
		t.Fatal(err)
	}
	if f.CurrentTierLabel != "$100,000+" || f.PointsPerDayFromBalance != 4 {
		t.Fatalf("最高档不符: %+v", f)
	}
	if !strings.Contains(out.String(), "top tier reached") {
		t.Fatalf("应提示已达最高档:\n%s", out.String())
	}

	bad := 9
	if _, err := a.Estimate(EstimateOptions{TierIndex: &bad}); err == nil {
		t.Fatal("越界档位应报错")
	}
	if _, err := a.Estimate(EstimateOptions{BalanceUSD: decimal.NewFromInt(-1)}); err == nil {
		t.Fatal("负余额应报错")
	}
}

func TestTiers(t *testing.T) {
	a, out := newTestApp(t)
	if err := a.Tiers(); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"$100,000+", "1048576", "Points/day"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("等级表缺少 %q:\n%s", want, out.String())
		}
	}
}

func TestActivityJSON(t *testing.T) {
	a, out := newTestApp(t)
	err := a.Activity(context.Background(), ActivityOptions{Address: testAddress, JSON: true})
	if err != nil {
		t.Fatalf("活动报告失败: %v", err)
	}

	var view struct {
		BalanceUSD string `json:"balanceUSD"`
		Groups     []struct {
			TxCount int `json:"txCount"`
			Points  int `json:"pointsEarnedThatDay"`
		} `json:"groups"`
	}
	if err := json.Unmarshal(out.Bytes(), &view); err != nil {
		t.Fatalf("JSON 解析失败: %v\n%s", err, out.String())
	}
	if view.BalanceUSD != "2998.70" {
		t.Fatalf("mock 持仓估值应为 2998.70, 实际 %s", view.BalanceUSD)
	}
	if len(view.Groups) != 2 || view.Groups[0].TxCount != 8 || view.Groups[1].TxCount != 10 {
		t.Fatalf("应为 8+10 两天: %+v", view.Groups)
	}
	// 721.25 USD outflow earns 9 volume points on top of the 2 balance points.
	if view.Groups[0].Points != 11 {
		t.Fatalf("当日积分应为 11, 实际 %d", view.Groups[0].Points)
	}
}

func TestActivityText(t *testing.T) {
	a, out := newTestApp(t)
	if err := a.Activity(context.Background(), ActivityOptions{Address: testAddress}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"$2998.70 ($1,000–$10,000)", "Token", "USDT", "Airdrop"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("报告缺少 %q:\n%s", want, out.String())
		}
	}

	if err := a.Activity(context.Background(), ActivityOptions{Address: "0x123"}); err == nil {
		t.Fatal("非法地址应报错")
	}
}

func TestShowRequiresDatabase(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.Show(context.Background(), ShowOptions{Address: testAddress, Limit: 5}); !errors.Is(err, errNoDatabase) {
		t.Fatalf("未配置数据库应报错, 实际 %v", err)
	}
	if err := a.Export(context.Background(), ExportOptions{Address: testAddress}); err == nil {
		t.Fatal("未指定输出文件应报错")
	}
}

func TestBackfillDryRun(t *testing.T) {
	a, _ := newTestApp(t)
	from := time.Date(2025, 5, 19, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 5, 21, 0, 0, 0, 0, time.UTC)
	if err := a.Backfill(context.Background(), BackfillOptions{Addresses: []string{testAddress}, From: from, To: to, DryRun: true}); err != nil {
		t.Fatalf("dry-run 回填应成功: %v", err)
	}
	if err := a.Backfill(context.Background(), BackfillOptions{Addresses: []string{testAddress}, From: to, To: from, DryRun: true}); err == nil {
		t.Fatal("空范围应报错")
	}
	if err := a.Backfill(context.Background(), BackfillOptions{From: from, To: to, DryRun: true}); err == nil {
		t.Fatal("没有地址时应报错")
	}
	if err := a.Backfill(context.Background(), BackfillOptions{Addresses: []string{testAddress}, From: from, To: to}); !errors.Is(err, errNoDatabase) {
		t.Fatalf("非 dry-run 需要数据库, 实际 %v", err)
	}
}

func TestBackfillDays(t *testing.T) {
	days := backfillDays(time.Date(2025, 5, 19, 6, 0, 0, 0, time.UTC), time.Date(2025, 5, 22, 0, 0, 0, 0, time.UTC))
	if len(days) != 2 || days[0].Day() != 20 || days[1].Day() != 21 {
		t.Fatalf("应从 20 日对齐到 21 日: %v", days)
	}
}

func TestExportWindow(t *testing.T) {
	now := time.Date(2025, 5, 21, 14, 0, 0, 0, time.UTC)
	from, to, err := exportWindow(ExportOptions{}, now, 15)
	if err != nil {
		t.Fatal(err)
	}
	if !to.Equal(time.Date(2025, 5, 22, 0, 0, 0, 0, time.UTC)) || !from.Equal(time.Date(2025, 5, 7, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("默认窗口应为 5/7..5/22: %s %s", from, to)
	}

	same := now
	if _, _, err := exportWindow(ExportOptions{From: &same, To: &same}, now, 15); err == nil {
		t.Fatal("from==to 应报错")
	}
}

func TestDownsampleRows(t *testing.T) {
	rows := make([]storage.DailyPoints, 10)
	for i := range rows {
		rows[i] = storage.DailyPoints{Points: i}
	}

	got := downsampleRows(rows, 4)
	if len(got) != 4 || got[0].Points != 0 || got[3].Points != 9 {
		t.Fatalf("降采样应保留首尾: %+v", got)
	}
	if len(downsampleRows(rows, 20)) != 10 {
		t.Fatal("数量不足上限时应原样返回")
	}
	if one := downsampleRows(rows, 1); len(one) != 1 || one[0].Points != 9 {
		t.Fatalf("上限为 1 时应保留最后一条: %+v", one)
	}
}

func TestWriteRowsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "points.csv")
	rows := []storage.DailyPoints{{
		Address:    strings.ToLower(testAddress),
		Day:        time.Date(2025, 5, 21, 0, 0, 0, 0, time.UTC),
		TxCount:    8,
		GasUsed:    decimal.RequireFromString("0.017"),
		USDOutflow: decimal.RequireFromString("721.25"),
		BalanceUSD: decimal.RequireFromString("2998.7"),
		TierLabel:  "$1,000–$10,000",
		Points:     11,
	}}
	if err := writeRowsCSV(path, rows); err != nil {
		t.Fatalf("写 CSV 失败: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "2025-05-21,") || !strings.HasSuffix(lines[1], ",11") {
		t.Fatalf("CSV 内容不符:\n%s", data)
	}
}

func TestSimulateAlertDisabled(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.SimulateAlert(context.Background(), testAddress, 250); err == nil {
		t.Fatal("alerting 未启用时应报错")
	}
	a.Config.Alerting.Enabled = true
	if err := a.SimulateAlert(context.Background(), testAddress, 250); err != nil {
		t.Fatalf("日志通道不应失败: %v", err)
	}
}
