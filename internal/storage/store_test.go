package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"alphapoints/internal/config"
)

type recordingExec struct {
	scripts []string
	failOn  string
}

func (r *recordingExec) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if r.failOn != "" && strings.Contains(sql, r.failOn) {
		return pgconn.CommandTag{}, errors.New("syntax error")
	}
	r.scripts = append(r.scripts, sql)
	return pgconn.CommandTag{}, nil
}

func TestApplyMigrationsOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_alerts.sql": {Data: []byte("CREATE TABLE b();")},
		"0001_init.sql":   {Data: []byte("CREATE TABLE a();")},
		"README.md":       {Data: []byte("ignored")},
		"0003_empty.sql":  {Data: []byte("  \n")},
	}
	exec := &recordingExec{}

	names, err := applyMigrations(context.Background(), exec, fsys)
	if err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	if len(names) != 3 || names[0] != "0001_init.sql" || names[1] != "0002_alerts.sql" {
		t.Fatalf("迁移顺序错误: %v", names)
	}
	if len(exec.scripts) != 2 || exec.scripts[0] != "CREATE TABLE a();" {
		t.Fatalf("执行脚本不符: %v", exec.scripts)
	}
}

func TestApplyMigrationsStopsOnError(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_init.sql": {Data: []byte("CREATE TABLE a();")},
		"0002_bad.sql":  {Data: []byte("CREAT TABLE")},
		"0003_next.sql": {Data: []byte("CREATE TABLE c();")},
	}
	exec := &recordingExec{failOn: "CREAT TABLE"}

	_, err := applyMigrations(context.Background(), exec, fsys)
	if err == nil || !strings.Contains(err.Error(), "0002_bad.sql") {
		t.Fatalf("应报告失败的迁移文件, 实际 %v", err)
	}
	if len(exec.scripts) != 1 {
		t.Fatalf("失败后不应继续执行, 实际 %d", len(exec.scripts))
	}
}

func TestNilStoreNotConfigured(t *testing.T) {
	var s *Store
	ctx := context.Background()
	if err := s.UpsertDailyPoints(ctx, DailyPoints{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("未配置时应返回 ErrNotConfigured, 实际 %v", err)
	}
	if _, _, err := s.LatestDailyPointsBefore(ctx, "0xabc", time.Now()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("未配置时应返回 ErrNotConfigured, 实际 %v", err)
	}
	if _, _, err := s.InsertAlert(ctx, AlertRecord{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("未配置时应返回 ErrNotConfigured, 实际 %v", err)
	}
	if _, err := s.Migrate(ctx, "migrations"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("未配置时应返回 ErrNotConfigured, 实际 %v", err)
	}
	s.Close()
}

func TestNewPoolRequiresDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), config.DatabaseConfig{}); err == nil {
		t.Fatal("缺少 DSN 应报错")
	}
}

func TestNormalizeAddress(t *testing.T) {
	if got := NormalizeAddress(" 0xABCdef "); got != "0xabcdef" {
		t.Fatalf("地址规范化错误: %s", got)
	}
}
