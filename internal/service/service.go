package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alphapoints/internal/activity"
	"alphapoints/internal/alerting"
	"alphapoints/internal/config"
	"alphapoints/internal/fetcher"
	"alphapoints/internal/observability"
	"alphapoints/internal/points"
	"alphapoints/internal/pricing"
	"alphapoints/internal/scheduler"
	"alphapoints/internal/storage"
)

// Dependencies are the collaborators a Service drives. Store, AlertStore,
// Balances, Notifier and Scheduler are optional.
type Dependencies struct {
	Scheduler  *scheduler.Scheduler
	Source     fetcher.TransactionSource
	Balances   fetcher.BalanceFetcher
	Oracle     pricing.Oracle
	Store      storage.DailyPointsStore
	AlertStore storage.AlertStore
	Notifier   alerting.Notifier
}

// Service orchestrates fetching, scoring, persistence, and alerting.
type Service struct {
	deps   Dependencies
	cfg    *config.Config
	table  *points.Table
	logger zerolog.Logger

	windowDays   int
	targets      activity.AirdropTargets
	channels     []string
	alertsOn     bool
	notifyOnTier bool
	locker       storage.AdvisoryLocker
	lockKey      int64
	now          func() time.Time
}

// Analysis is everything derived for one address as of one UTC day.
type Analysis struct {
	Address      string
	Day          time.Time
	Transactions []activity.Transaction
	Holdings     map[string]decimal.Decimal
	BalanceUSD   decimal.Decimal
	Report       activity.Report
	// Fresh are the groups computed from source data in this run, plus a
	// balance-only group for Day when it had no transfers.
	Fresh []activity.DailyActivityGroup
	// Window merges Fresh with stored days, newest first.
	Window   []activity.DailyActivityGroup
	Forecast points.PointsForecast
	Totals   activity.WindowTotals
	Tokens   []activity.TokenSummary
	Overview activity.Overview
}

// New constructs the tracking service.
func New(cfg *config.Config, deps Dependencies, logger zerolog.Logger) (*Service, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("transaction source not configured")
	}
	if deps.Oracle == nil {
		return nil, fmt.Errorf("price oracle not configured")
	}
	table, err := cfg.Points.Table()
	if err != nil {
		return nil, err
	}

	var locker storage.AdvisoryLocker
	if l, ok := deps.Store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	targets := activity.AirdropTargets{
		Points:    cfg.Points.AirdropPoints,
		VolumeUSD: decimal.NewFromFloat(cfg.Points.AirdropVolumeUSD),
	}

	return &Service{
		deps:         deps,
		cfg:          cfg,
		table:        table,
		logger:       logger.With().Str("component", "service").Logger(),
		targets:      targets,
		windowDays:   cfg.Points.WindowDays,
		channels:     cfg.Alerting.Channels,
		alertsOn:     cfg.Alerting.Enabled,
		notifyOnTier: cfg.Alerting.NotifyOnTier,
		locker:       locker,
		lockKey:      cfg.Scheduler.AdvisoryLockKey,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// Table exposes the rule table the service scores with.
func (s *Service) Table() *points.Table {
	return s.table
}

// Run begins the scheduling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.deps.Scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket 对所有跟踪地址执行一次计算。
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	if len(s.cfg.Tracking.Addresses) == 0 {
		s.logger.Warn().Msg("no tracking.addresses configured")
		return nil
	}

	var errs []error
	for _, address := range s.cfg.Tracking.Addresses {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.ProcessAddress(ctx, address, bucket); err != nil {
			s.logger.Error().Err(err).Str("address", address).Time("bucket", bucket).Msg("address processing failed")
			errs = append(errs, fmt.Errorf("%s: %w", address, err))
		}
	}
	if err := s.pruneAlerts(ctx, bucket); err != nil {
		errs = append(errs, err)
	}
	observability.RecordRun(s.now())
	return errors.Join(errs...)
}

func (s *Service) pruneAlerts(ctx context.Context, bucket time.Time) error {
	retention := s.cfg.Alerting.Retention
	if s.deps.AlertStore == nil || retention <= 0 {
		return nil
	}
	cutoff := bucket.Add(-retention)
	if err := s.deps.AlertStore.DeleteAlertsBefore(ctx, cutoff); err != nil {
		return fmt.Errorf("prune alerts: %w", err)
	}
	return nil
}

// ProcessAddress analyses address for day, persists the fresh groups and
// dispatches alerts.
func (s *Service) ProcessAddress(ctx context.Context, address string, day time.Time) (*Analysis, error) {
	analysis, err := s.Analyze(ctx, address, day)
	if err != nil {
		return nil, err
	}

	prev, hasPrev := s.previousDay(ctx, analysis)

	if s.deps.Store != nil {
		for _, g := range analysis.Fresh {
			row, err := s.toRow(address, g)
			if err != nil {
				return nil, err
			}
			if err := s.deps.Store.UpsertDailyPoints(ctx, row); err != nil {
				return nil, fmt.Errorf("persist %s: %w", g.Date, err)
			}
		}
	}

	observability.RecordWindowPoints(storage.NormalizeAddress(address), int64(analysis.Totals.TotalPoints))
	observability.RecordForecast(analysis.Forecast.CurrentTierLabel)

	s.logger.Info().Str("address", address).
		Str("day", activity.DateKey(analysis.Day)).
		Int("groups", len(analysis.Fresh)).
		Int("malformed", len(analysis.Report.Malformed)).
		Int("window_points", analysis.Totals.TotalPoints).
		Str("balance_usd", analysis.BalanceUSD.StringFixed(2)).
		Str("tier", analysis.Forecast.CurrentTierLabel).
		Msg("address processed")

	s.dispatchAlerts(ctx, analysis, prev, hasPrev)
	return analysis, nil
}

// Analyze fetches and scores address without writing anything.
func (s *Service) Analyze(ctx context.Context, address string, day time.Time) (*Analysis, error) {
	day = day.UTC().Truncate(24 * time.Hour)

	started := time.Now()
	txs, err := s.deps.Source.FetchTransactions(ctx, address)
	observability.ObserveFetch("transactions", started, err)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}

	holdings, err := s.holdings(ctx, address)
	if err != nil {
		return nil, err
	}

	tokens := make([]string, 0, len(txs))
	for _, tx := range txs {
		if tx.OutAmount != nil {
			tokens = append(tokens, tx.Token)
		}
	}

	started = time.Now()
	snap, unlisted, err := pricing.CaptureListed(ctx, s.deps.Oracle, tokens)
	for _, token := range unlisted {
		s.logger.Warn().Str("address", address).Str("token", token).Msg("no usd price for outflow token; counted as zero")
	}
	if err == nil && len(holdings) > 0 {
		held := make([]string, 0, len(holdings))
		for token := range holdings {
			held = append(held, token)
		}
		snap.Extend(ctx, s.deps.Oracle, held)
	}
	observability.ObserveFetch("prices", started, err)
	if err != nil {
		return nil, fmt.Errorf("price %s: %w", address, err)
	}

	balanceUSD, err := s.balanceUSD(address, holdings, snap)
	if err != nil {
		return nil, err
	}

	history, err := s.history(ctx, address, day)
	if err != nil {
		return nil, err
	}
	stored := make(map[string]storage.DailyPoints, len(history))
	for _, row := range history {
		stored[activity.DateKey(row.Day)] = row
	}

	todayKey := activity.DateKey(day)
	balances := func(date time.Time) decimal.Decimal {
		if key := activity.DateKey(date); key != todayKey {
			if row, ok := stored[key]; ok {
				return row.BalanceUSD
			}
		}
		return balanceUSD
	}

	report, err := activity.NewAggregator(s.table, snap.Func(), balances).Aggregate(txs)
	if err != nil {
		return nil, err
	}
	for _, bad := range report.Malformed {
		s.logger.Warn().Str("address", address).Str("hash", bad.Hash).Str("reason", bad.Reason).Msg("skipping malformed record")
	}
	observability.RecordMalformed(len(report.Malformed))

	fresh := make([]activity.DailyActivityGroup, 0, len(report.Groups)+1)
	fresh = append(fresh, report.Groups...)
	if !hasDate(fresh, todayKey) {
		tier, err := s.table.LookupBalanceTier(balanceUSD)
		if err != nil {
			return nil, err
		}
		fresh = append(fresh, activity.DailyActivityGroup{
			Date:                todayKey,
			TotalGasUsed:        decimal.Zero,
			USDOutflow:          decimal.Zero,
			PointsEarnedThatDay: tier.PointsPerDay,
			BalanceUSD:          balanceUSD,
		})
		sortDesc(fresh)
	}

	window := mergeWindow(fresh, history)
	today := activity.OverviewFor(fresh, day)

	forecast, err := s.table.Estimate(balanceUSD, today.Amounts)
	if err != nil {
		return nil, err
	}

	return &Analysis{
		Address:      address,
		Day:          day,
		Transactions: txs,
		Holdings:     holdings,
		BalanceUSD:   balanceUSD,
		Report:       report,
		Fresh:        fresh,
		Window:       window,
		Forecast:     forecast,
		Totals:       activity.Totals(window, day, s.windowDays, s.targets),
		Tokens:       activity.SummarizeTokens(txs),
		Overview:     today,
	}, nil
}

func (s *Service) holdings(ctx context.Context, address string) (map[string]decimal.Decimal, error) {
	if _, ok := s.cfg.BalanceOverride(address); ok || s.deps.Balances == nil {
		return map[string]decimal.Decimal{}, nil
	}
	started := time.Now()
	holdings, err := s.deps.Balances.FetchBalances(ctx, address)
	observability.ObserveFetch("balances", started, err)
	if err != nil {
		return nil, fmt.Errorf("fetch balances: %w", err)
	}
	return holdings, nil
}

func (s *Service) balanceUSD(address string, holdings map[string]decimal.Decimal, snap *pricing.Snapshot) (decimal.Decimal, error) {
	if usd, ok := s.cfg.BalanceOverride(address); ok {
		return points.USD(usd)
	}
	total, missing := snap.ValueUSD(holdings)
	if len(missing) > 0 {
		s.logger.Warn().Str("address", address).Strs("tokens", missing).Msg("holdings without price excluded from balance")
	}
	return total, nil
}

// history loads stored rows for the window days before day.
func (s *Service) history(ctx context.Context, address string, day time.Time) ([]storage.DailyPoints, error) {
	if s.deps.Store == nil {
		return nil, nil
	}
	windowDays := s.windowDays
	if windowDays <= 0 {
		windowDays = points.DefaultWindowDays
	}
	from := day.AddDate(0, 0, -(windowDays - 1))
	rows, err := s.deps.Store.ListDailyPointsBetween(ctx, address, from, day)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return rows, nil
}

func (s *Service) toRow(address string, g activity.DailyActivityGroup) (storage.DailyPoints, error) {
	tier, err := s.table.LookupBalanceTier(g.BalanceUSD)
	if err != nil {
		return storage.DailyPoints{}, err
	}
	return storage.DailyPoints{
		Address:    address,
		Day:        g.Day(),
		TxCount:    g.TxCount,
		GasUsed:    g.TotalGasUsed,
		USDOutflow: g.USDOutflow,
		BalanceUSD: g.BalanceUSD,
		Points:     g.PointsEarnedThatDay,
		TierLabel:  tier.Label,
	}, nil
}

// previousDay returns the newest stored row before the analysed day, read
// before this run overwrites anything.
func (s *Service) previousDay(ctx context.Context, a *Analysis) (storage.DailyPoints, bool) {
	if !s.alertsOn || !s.notifyOnTier || s.deps.Store == nil {
		return storage.DailyPoints{}, false
	}
	prev, found, err := s.deps.Store.LatestDailyPointsBefore(ctx, a.Address, a.Day)
	if err != nil {
		s.logger.Error().Err(err).Str("address", a.Address).Msg("failed to load previous tier")
		return storage.DailyPoints{}, false
	}
	return prev, found
}

func (s *Service) dispatchAlerts(ctx context.Context, a *Analysis, prev storage.DailyPoints, hasPrev bool) {
	if !s.alertsOn || s.deps.Notifier == nil {
		return
	}

	if s.targets.Points > 0 && a.Totals.TotalPoints >= s.targets.Points {
		s.notify(ctx, alerting.Notification{
			Address:      a.Address,
			Day:          a.Day,
			Kind:         alerting.KindAirdrop,
			WindowPoints: int64(a.Totals.TotalPoints),
			Threshold:    int64(s.targets.Points),
			SpendMoreUSD: a.Totals.SpendMoreForAirdrop,
			CurrentTier:  a.Forecast.CurrentTierLabel,
			Channels:     s.channels,
		})
	}

	if !s.notifyOnTier || !hasPrev || prev.TierLabel == a.Forecast.CurrentTierLabel {
		return
	}
	s.notify(ctx, alerting.Notification{
		Address:      a.Address,
		Day:          a.Day,
		Kind:         alerting.KindTierChange,
		WindowPoints: int64(a.Totals.TotalPoints),
		Threshold:    int64(s.targets.Points),
		PreviousTier: prev.TierLabel,
		CurrentTier:  a.Forecast.CurrentTierLabel,
		Channels:     s.channels,
	})
}

// notify records the alert first; an existing (address, day, kind) record suppresses delivery.
func (s *Service) notify(ctx context.Context, note alerting.Notification) {
	if s.deps.AlertStore != nil {
		detail := note.CurrentTier
		if note.PreviousTier != "" {
			detail = note.PreviousTier + " -> " + note.CurrentTier
		}
		_, inserted, err := s.deps.AlertStore.InsertAlert(ctx, storage.AlertRecord{
			Address:      note.Address,
			Day:          note.Day,
			Kind:         note.Kind,
			WindowPoints: note.WindowPoints,
			Threshold:    note.Threshold,
			Detail:       detail,
			Channels:     note.Channels,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("address", note.Address).Msg("failed to persist alert record")
		} else if !inserted {
			s.logger.Debug().Str("address", note.Address).Str("kind", note.Kind).Msg("alert already sent for day")
			return
		}
	}
	if err := s.deps.Notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("address", note.Address).Str("kind", note.Kind).Msg("failed to dispatch alert")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func hasDate(groups []activity.DailyActivityGroup, key string) bool {
	for _, g := range groups {
		if g.Date == key {
			return true
		}
	}
	return false
}

func sortDesc(groups []activity.DailyActivityGroup) {
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Date > groups[j].Date })
}

// mergeWindow prefers freshly computed groups over stored rows of the same day.
func mergeWindow(fresh []activity.DailyActivityGroup, stored []storage.DailyPoints) []activity.DailyActivityGroup {
	out := make([]activity.DailyActivityGroup, 0, len(fresh)+len(stored))
	out = append(out, fresh...)
	for _, row := range stored {
		key := activity.DateKey(row.Day)
		if hasDate(fresh, key) {
			continue
		}
		out = append(out, activity.DailyActivityGroup{
			Date:                key,
			TxCount:             row.TxCount,
			TotalGasUsed:        row.GasUsed,
			USDOutflow:          row.USDOutflow,
			PointsEarnedThatDay: row.Points,
			BalanceUSD:          row.BalanceUSD,
		})
	}
	sortDesc(out)
	return out
}
