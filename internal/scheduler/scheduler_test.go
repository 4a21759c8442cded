package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 24 * time.Hour, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2025, 5, 21, 14, 21, 21, 0, time.UTC)
	if got := s.NextTick(now); !got.Equal(time.Date(2025, 5, 22, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("下一个对齐点应为次日 0 点, 实际 %s", got)
	}
	if got := s.BucketStart(now); !got.Equal(time.Date(2025, 5, 21, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("桶起点应为当日 0 点, 实际 %s", got)
	}

	midnight := time.Date(2025, 5, 21, 0, 0, 0, 0, time.UTC)
	if got := s.NextTick(midnight); !got.Equal(midnight.Add(24 * time.Hour)) {
		t.Fatalf("恰在边界时应跳到下一个桶, 实际 %s", got)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	now := time.Date(2025, 5, 21, 14, 21, 21, 0, time.UTC)
	if got := s.NextTick(now); !got.Equal(now.Add(time.Hour)) {
		t.Fatalf("未对齐时应为 now+interval, 实际 %s", got)
	}
	if got := s.BucketStart(now); !got.Equal(now) {
		t.Fatalf("未对齐时桶起点应为自身, 实际 %s", got)
	}
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("interval 为 0 时应 panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}

func TestRunOnStartAndTicks(t *testing.T) {
	s := New(Options{Interval: 20 * time.Millisecond, RunOnStart: true}, zerolog.Nop())

	var (
		mu      sync.Mutex
		buckets []time.Time
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, bucket time.Time) error {
			mu.Lock()
			defer mu.Unlock()
			buckets = append(buckets, bucket)
			if len(buckets) >= 3 {
				cancel()
			}
			return errors.New("tick errors are logged only")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("应以 context.Canceled 退出, 实际 %v", err)
		}
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("调度器未按时触发")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(buckets) < 3 {
		t.Fatalf("至少应触发 3 次, 实际 %d", len(buckets))
	}
}

func TestRunStartupDelayHonoursContext(t *testing.T) {
	s := New(Options{Interval: time.Hour, StartupDelay: time.Minute, RunOnStart: true}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	called := false
	err := s.Run(ctx, func(context.Context, time.Time) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("启动延迟期间应响应超时, 实际 %v", err)
	}
	if called {
		t.Fatal("启动延迟内不应触发")
	}
}
