package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"alphapoints/internal/service"
	"alphapoints/internal/storage"
)

// Backfill recomputes and stores every UTC day in [From, To) for the given addresses.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	addresses := opts.Addresses
	if len(addresses) == 0 {
		addresses = a.Config.Tracking.Addresses
	}
	if len(addresses) == 0 {
		return errors.New("没有可回填的地址，请传入 --address 或配置 tracking.addresses")
	}
	for _, addr := range addresses {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid address %q", addr)
		}
	}

	days := backfillDays(opts.From, opts.To)
	if len(days) == 0 {
		return errors.New("回填范围为空，请检查 --from/--to")
	}

	var store *storage.Store
	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入数据库")
	} else {
		var closeStore func()
		var err error
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return fmt.Errorf("%w; 无法回填", errNoDatabase)
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	svc, err := a.newService(store, nil, false)
	if err != nil {
		return err
	}

	processed := 0
	failed := 0
	for _, addr := range addresses {
		for _, day := range days {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err := a.backfillDay(ctx, svc, addr, day, opts.DryRun); err != nil {
				failed++
				a.Logger.Error().Err(err).Str("address", addr).Time("day", day).Msg("回填失败")
				continue
			}
			processed++
		}
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("回填完成")
	if failed > 0 {
		return errors.New("部分日期回填失败，请检查日志")
	}
	return nil
}

func (a *App) backfillDay(ctx context.Context, svc *service.Service, addr string, day time.Time, dryRun bool) error {
	if dryRun {
		analysis, err := svc.Analyze(ctx, addr, day)
		if err != nil {
			return err
		}
		a.Logger.Info().Str("address", addr).Time("day", day).
			Int("groups", len(analysis.Fresh)).
			Int("window_points", analysis.Totals.TotalPoints).
			Msg("dry-run computed")
		return nil
	}
	_, err := svc.ProcessAddress(ctx, addr, day)
	return err
}

// backfillDays lists the UTC midnights d with from <= d < to, after aligning from forward.
func backfillDays(from, to time.Time) []time.Time {
	start := alignForward(from.UTC(), 24*time.Hour)
	end := to.UTC()
	var days []time.Time
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days
}

func alignForward(t time.Time, interval time.Duration) time.Time {
	truncated := t.Truncate(interval)
	if truncated.Before(t) {
		return truncated.Add(interval)
	}
	return truncated
}
