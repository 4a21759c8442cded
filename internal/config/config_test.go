package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("默认配置应通过校验: %v", err)
	}
	if cfg.Scheduler.Interval != 24*time.Hour {
		t.Fatalf("默认间隔应为 24h, 实际 %s", cfg.Scheduler.Interval)
	}
	if cfg.Points.WindowDays != 15 || cfg.Points.VolumeSteps != 20 {
		t.Fatalf("积分默认值不符: %+v", cfg.Points)
	}
	if cfg.Source.Kind != "mock" || cfg.Source.MockDelay != 1200*time.Millisecond {
		t.Fatalf("数据源默认值不符: %+v", cfg.Source)
	}
	if cfg.Pricing.Kind != "static" || len(cfg.Pricing.Static) == 0 {
		t.Fatalf("价格默认值不符: %+v", cfg.Pricing)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	body := `
scheduler:
  interval: 1h
points:
  airdrop_points: 60
tracking:
  addresses:
    - "0x8894E0a0c962CB723c1976a4421c95949bE2D4E3"
  balances_usd:
    "0x8894E0a0c962CB723c1976a4421c95949bE2D4E3": 150
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Scheduler.Interval != time.Hour {
		t.Fatalf("间隔应为 1h, 实际 %s", cfg.Scheduler.Interval)
	}
	if cfg.Points.AirdropPoints != 60 {
		t.Fatalf("airdrop_points 应为 60, 实际 %d", cfg.Points.AirdropPoints)
	}
	if len(cfg.Tracking.Addresses) != 1 {
		t.Fatalf("应有 1 个跟踪地址")
	}
	usd, ok := cfg.BalanceOverride("0x8894e0a0c962cb723c1976a4421c95949be2d4e3")
	if !ok || usd != 150 {
		t.Fatalf("余额覆盖应忽略大小写: %v %v", usd, ok)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ALPHAPOINTS_POINTS_WINDOW_DAYS", "7")
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Points.WindowDays != 7 {
		t.Fatalf("环境变量应覆盖 window_days, 实际 %d", cfg.Points.WindowDays)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad address":     "tracking:\n  addresses: [\"not-an-address\"]\n",
		"bad source":      "source:\n  kind: kafka\n",
		"bad pricing":     "pricing:\n  kind: oracle\n",
		"zero window":     "points:\n  window_days: 0\n",
		"telegram no bot": "alerting:\n  telegram:\n    enabled: true\n",
		"negative price":  "pricing:\n  static:\n    USDT: -1\n",
		"nan price":       "pricing:\n  static:\n    USDT: .nan\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s 应校验失败", name)
		}
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 10}}
	if cfg.ResolveMaxPoints(0) != 10 || cfg.ResolveMaxPoints(3) != 3 {
		t.Fatal("ResolveMaxPoints 结果错误")
	}
}

func TestPointsTable(t *testing.T) {
	table, err := PointsConfig{VolumeBase: 2, VolumeSteps: 5}.Table()
	if err != nil {
		t.Fatalf("构造积分表失败: %v", err)
	}
	ranges := table.VolumeRanges()
	if len(ranges) != 5 || ranges[4].PointsPerDay != 5 || ranges[4].Min.IntPart() != 32 {
		t.Fatalf("5 档加倍表应为 2..32: %+v", ranges)
	}

	if _, err := (PointsConfig{VolumeBase: 0, VolumeSteps: 5}).Table(); err == nil {
		t.Fatal("基数为 0 应报错")
	}
}
