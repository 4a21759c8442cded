package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"alphapoints/internal/logging"
	"alphapoints/internal/points"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Points    PointsConfig    `mapstructure:"points"`
	Source    SourceConfig    `mapstructure:"source"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs recomputation cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
}

// PointsConfig parameterises the rule table and the qualifying window.
type PointsConfig struct {
	VolumeBase       float64 `mapstructure:"volume_base"`
	VolumeSteps      int     `mapstructure:"volume_steps"`
	WindowDays       int     `mapstructure:"window_days"`
	AirdropPoints    int     `mapstructure:"airdrop_points"`
	AirdropVolumeUSD float64 `mapstructure:"airdrop_volume_usd"`
}

// Table builds the rule table: the fixed balance tiers plus the configured doubling schedule.
func (p PointsConfig) Table() (*points.Table, error) {
	volume, err := points.DoublingVolumeRanges(decimal.NewFromFloat(p.VolumeBase), p.VolumeSteps)
	if err != nil {
		return nil, fmt.Errorf("build volume schedule: %w", err)
	}
	return points.NewTable(points.DefaultBalanceRanges(), volume)
}

// SourceConfig selects where transactions come from.
type SourceConfig struct {
	Kind      string         `mapstructure:"kind"`
	MockDelay time.Duration  `mapstructure:"mock_delay"`
	Explorer  ExplorerConfig `mapstructure:"explorer"`
}

// ExplorerConfig covers an Etherscan-compatible account API.
type ExplorerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	ChainID        int64         `mapstructure:"chain_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	PageSize       int           `mapstructure:"page_size"`
	MaxPages       int           `mapstructure:"max_pages"`
}

// EthereumConfig covers on-chain balance reads.
type EthereumConfig struct {
	RPCURL         string            `mapstructure:"rpc_url"`
	NativeSymbol   string            `mapstructure:"native_symbol"`
	Tokens         map[string]string `mapstructure:"tokens"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
}

// PricingConfig selects the USD price oracle.
type PricingConfig struct {
	Kind           string             `mapstructure:"kind"`
	Static         map[string]float64 `mapstructure:"static"`
	BaseURL        string             `mapstructure:"base_url"`
	TokenIDs       map[string]string  `mapstructure:"token_ids"`
	RequestTimeout time.Duration      `mapstructure:"request_timeout"`
	Cache          PriceCacheConfig   `mapstructure:"cache"`
}

// PriceCacheConfig describes the optional redis price cache.
type PriceCacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// TrackingConfig lists the addresses recomputed by the scheduler.
type TrackingConfig struct {
	Addresses   []string           `mapstructure:"addresses"`
	BalancesUSD map[string]float64 `mapstructure:"balances_usd"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	NotifyOnTier bool     `mapstructure:"notify_on_tier"`
	Channels     []string `mapstructure:"channels"`
	// Retention bounds how long alert records are kept; zero keeps them forever.
	Retention time.Duration  `mapstructure:"retention"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MetricsConfig exposes the prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ALPHAPOINTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "alphapoints")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x616c7068))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("points.volume_base", 2.0)
	v.SetDefault("points.volume_steps", 20)
	v.SetDefault("points.window_days", 15)
	v.SetDefault("points.airdrop_points", 200)
	v.SetDefault("points.airdrop_volume_usd", 45000.0)

	v.SetDefault("source.kind", "mock")
	v.SetDefault("source.mock_delay", "1200ms")
	v.SetDefault("source.explorer.base_url", "https://api.etherscan.io/v2/api")
	v.SetDefault("source.explorer.chain_id", int64(56))
	v.SetDefault("source.explorer.request_timeout", "10s")
	v.SetDefault("source.explorer.page_size", 500)
	v.SetDefault("source.explorer.max_pages", 20)

	v.SetDefault("ethereum.native_symbol", "BNB")
	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("pricing.kind", "static")
	v.SetDefault("pricing.static", map[string]float64{
		"USDT": 1,
		"USDC": 1,
		"BNB":  600,
		"ETH":  2500,
		"BTC":  100000,
	})
	v.SetDefault("pricing.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("pricing.token_ids", map[string]string{
		"USDT": "tether",
		"USDC": "usd-coin",
		"BNB":  "binancecoin",
		"ETH":  "ethereum",
		"BTC":  "bitcoin",
	})
	v.SetDefault("pricing.request_timeout", "10s")
	v.SetDefault("pricing.cache.ttl", "5m")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.notify_on_tier", true)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.retention", "2160h")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Points.VolumeBase <= 0 {
		return fmt.Errorf("points.volume_base must be greater than zero")
	}
	if c.Points.VolumeSteps <= 0 {
		return fmt.Errorf("points.volume_steps must be greater than zero")
	}
	if c.Points.WindowDays <= 0 {
		return fmt.Errorf("points.window_days must be greater than zero")
	}
	if c.Points.AirdropPoints < 0 || c.Points.AirdropVolumeUSD < 0 {
		return fmt.Errorf("points.airdrop thresholds cannot be negative")
	}

	switch c.Source.Kind {
	case "mock":
	case "explorer":
		if c.Source.Explorer.BaseURL == "" {
			return fmt.Errorf("source.explorer.base_url 必须配置")
		}
	default:
		return fmt.Errorf("source.kind must be mock or explorer, got %q", c.Source.Kind)
	}

	switch c.Pricing.Kind {
	case "static":
		if len(c.Pricing.Static) == 0 {
			return fmt.Errorf("pricing.static must list at least one token")
		}
		for token, price := range c.Pricing.Static {
			usd, err := points.USD(price)
			if err != nil || usd.IsNegative() {
				return fmt.Errorf("pricing.static.%s must be a finite non-negative price, got %v", token, price)
			}
		}
	case "http":
		if c.Pricing.BaseURL == "" {
			return fmt.Errorf("pricing.base_url 必须配置")
		}
	default:
		return fmt.Errorf("pricing.kind must be static or http, got %q", c.Pricing.Kind)
	}

	for _, addr := range c.Tracking.Addresses {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("tracking.addresses: invalid address %q", addr)
		}
	}
	for addr, usd := range c.Tracking.BalancesUSD {
		if usd < 0 {
			return fmt.Errorf("tracking.balances_usd[%s] cannot be negative", addr)
		}
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// BalanceOverride returns the configured USD balance for addr, if any.
func (c *Config) BalanceOverride(addr string) (float64, bool) {
	for k, v := range c.Tracking.BalancesUSD {
		if strings.EqualFold(k, addr) {
			return v, true
		}
	}
	return 0, false
}
