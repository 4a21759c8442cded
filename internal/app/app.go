package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alphapoints/internal/alerting"
	"alphapoints/internal/config"
	"alphapoints/internal/fetcher"
	"alphapoints/internal/observability"
	"alphapoints/internal/pricing"
	"alphapoints/internal/scheduler"
	"alphapoints/internal/service"
	"alphapoints/internal/storage"
	"alphapoints/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives human-readable reports.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newSource() fetcher.TransactionSource {
	if a.Config.Source.Kind == "explorer" {
		ex := a.Config.Source.Explorer
		if ex.UserAgent == "" {
			ex.UserAgent = version.UserAgent()
		}
		return fetcher.NewExplorer(fetcher.ExplorerOptions{
			BaseURL:   ex.BaseURL,
			APIKey:    ex.APIKey,
			ChainID:   ex.ChainID,
			Timeout:   ex.RequestTimeout,
			UserAgent: ex.UserAgent,
			PageSize:  ex.PageSize,
			MaxPages:  ex.MaxPages,
		}, a.Logger)
	}
	return fetcher.NewMock(fetcher.MockOptions{Delay: a.Config.Source.MockDelay}, a.Logger)
}

// newBalances prefers on-chain reads, falls back to the mock holdings for the
// mock source, and returns nil when balances come only from overrides.
func (a *App) newBalances() fetcher.BalanceFetcher {
	eth := a.Config.Ethereum
	if eth.RPCURL != "" {
		return fetcher.NewChain(fetcher.ChainOptions{
			RPCURL:       eth.RPCURL,
			NativeSymbol: eth.NativeSymbol,
			Tokens:       eth.Tokens,
			Timeout:      eth.RequestTimeout,
		}, a.Logger)
	}
	if a.Config.Source.Kind == "mock" {
		return fetcher.NewMock(fetcher.MockOptions{Delay: a.Config.Source.MockDelay}, a.Logger)
	}
	return nil
}

func (a *App) newOracle() pricing.Oracle {
	cfg := a.Config.Pricing
	var oracle pricing.Oracle
	if cfg.Kind == "http" {
		oracle = pricing.NewHTTPOracle(pricing.HTTPOptions{
			BaseURL:  cfg.BaseURL,
			TokenIDs: cfg.TokenIDs,
			Timeout:  cfg.RequestTimeout,
		}, a.Logger)
	} else {
		oracle = pricing.NewStatic(cfg.Static)
	}

	if cfg.Cache.RedisAddr != "" {
		oracle = pricing.NewRedisCache(oracle, pricing.CacheOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      cfg.Cache.TTL,
		}, a.Logger)
	}
	return oracle
}

func (a *App) newNotifier() alerting.Notifier {
	notifiers := alerting.Fanout{alerting.NewLogNotifier(a.Logger)}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	return notifiers
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	applied, err := store.Migrate(ctx, a.Config.Database.MigrationsPath)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	if len(applied) > 0 {
		a.Logger.Debug().Strs("migrations", applied).Msg("schema up to date")
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newService wires the tracking service. A nil store disables persistence.
func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler, notify bool) (*service.Service, error) {
	deps := service.Dependencies{
		Scheduler: sched,
		Source:    a.newSource(),
		Balances:  a.newBalances(),
		Oracle:    a.newOracle(),
	}
	if notify {
		deps.Notifier = a.newNotifier()
	}
	if store != nil {
		deps.Store = store
		deps.AlertStore = store
	}
	return service.New(a.Config, deps, a.Logger)
}

// Run executes the long-running tracking service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
	}, a.Logger)

	svc, err := a.newService(store, sched, true)
	if err != nil {
		return err
	}

	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		stop := a.serveMetrics(addr)
		defer stop()
	}

	a.Logger.Info().Strs("addresses", a.Config.Tracking.Addresses).Str("version", version.Version).Msg("starting points tracker")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("points tracker stopped")
	return nil
}

func (a *App) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.Logger.Info().Str("addr", addr).Msg("metrics listener started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics listener failed")
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

// EstimateOptions are the inputs of a one-off forecast.
type EstimateOptions struct {
	BalanceUSD    decimal.Decimal
	DailySpendUSD decimal.Decimal
	// TierIndex selects a balance tier by position and overrides BalanceUSD with its lower bound.
	TierIndex *int
	Days      int
}

// ActivityOptions configure the activity report.
type ActivityOptions struct {
	Address string
	AsOf    time.Time
	JSON    bool
}

// ExportOptions hold parameters for exporting stored daily points.
type ExportOptions struct {
	Address   string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Address string
	Limit   int
	Alerts  bool
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	Addresses []string
	From      time.Time
	To        time.Time
	DryRun    bool
}
