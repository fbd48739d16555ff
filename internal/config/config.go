// Package config defines the top-level configuration for the trading bot and
// provides validation helpers.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MEMEBOT_* environment variables.
type Config struct {
	Chain     ChainConfig       `toml:"chain"`
	Wallet    WalletConfig      `toml:"wallet"`
	Exchange  ExchangeConfig    `toml:"exchange"`
	Strategy  StrategyConfig    `toml:"strategy"`
	Scanner   ScannerConfig     `toml:"scanner"`
	Risk      RiskConfig        `toml:"risk"`
	Execution ExecutionConfig   `toml:"execution"`
	Portfolio PortfolioConfig   `toml:"portfolio"`
	Monitor   MonitorConfig     `toml:"monitor"`
	Pricing   PricingConfig     `toml:"pricing"`
	Postgres  PostgresConfig    `toml:"postgres"`
	Redis     RedisConfig       `toml:"redis"`
	S3        S3Config          `toml:"s3"`
	Notify    NotifyConfig      `toml:"notify"`
	Metadata  map[string]string `toml:"metadata"`
	Mode      string            `toml:"mode"`
	LogLevel  string            `toml:"log_level"`
}

// ChainConfig selects the network and RPC endpoint.
type ChainConfig struct {
	Name          string   `toml:"name"`
	ChainID       int64    `toml:"chain_id"`
	RPCURL        string   `toml:"rpc_url"`
	PollInterval  duration `toml:"poll_interval"`
	WrappedNative string   `toml:"wrapped_native"`
}

// WalletConfig holds signer credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ExchangeConfig holds router and on-chain safety limits.
type ExchangeConfig struct {
	RouterAddress   string   `toml:"router_address"`
	MaxSlippageBps  int      `toml:"max_slippage_bps"`
	Deadline        duration `toml:"deadline"`
	MaxGasPriceGwei float64  `toml:"max_gas_price_gwei"`
}

// StrategyConfig holds position sizing and exit parameters.
type StrategyConfig struct {
	MaxPositions      int      `toml:"max_positions"`
	PositionSizeETH   float64  `toml:"position_size_eth"`
	TakeProfitBps     int      `toml:"take_profit_bps"`
	StopLossBps       int      `toml:"stop_loss_bps"`
	LoopInterval      duration `toml:"loop_interval"`
	BlacklistedTokens []string `toml:"blacklisted_tokens"`
}

// ScannerConfig holds discovery thresholds and momentum weighting.
type ScannerConfig struct {
	DexScreenerURL    string  `toml:"dexscreener_url"`
	MinLiquidityUSD   float64 `toml:"min_liquidity_usd"`
	MinDailyVolumeUSD float64 `toml:"min_daily_volume_usd"`
	MinAgeMinutes     int     `toml:"min_age_minutes"`
	MaxCandidates     int     `toml:"max_candidates"`
	PriceWeight       float64 `toml:"price_weight"`
	VolumeWeight      float64 `toml:"volume_weight"`
	MinMomentum       float64 `toml:"min_momentum"`
	MinBuyPressure    float64 `toml:"min_buy_pressure"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// RiskConfig holds the security feed endpoint and rejection thresholds.
type RiskConfig struct {
	GoPlusURL           string   `toml:"goplus_url"`
	MaxTaxBps           int      `toml:"max_tax_bps"`
	MaxTopHolderPercent float64  `toml:"max_top_holder_percent"`
	MinLockRatioPercent float64  `toml:"min_lock_ratio_percent"`
	MinHolderCount      int      `toml:"min_holder_count"`
	RejectProxy         bool     `toml:"reject_proxy"`
	Timeout             duration `toml:"timeout"`
	Concurrency         int      `toml:"concurrency"`
}

// ExecutionConfig holds retry and confirmation bounds for transactions.
type ExecutionConfig struct {
	MaxAttempts       int      `toml:"max_attempts"`
	InitialBackoff    duration `toml:"initial_backoff"`
	MaxBackoff        duration `toml:"max_backoff"`
	ConfirmTimeout    duration `toml:"confirm_timeout"`
	RPCTimeout        duration `toml:"rpc_timeout"`
	GasLimitBufferPct int      `toml:"gas_limit_buffer_pct"`
	// SideEffectTimeout bounds each journal, bus, archive and alert call
	// made from a cycle.
	SideEffectTimeout duration `toml:"side_effect_timeout"`
}

// PortfolioConfig locates the durable state file.
type PortfolioConfig struct {
	StatePath string `toml:"state_path"`
}

// MonitorConfig holds the read-only HTTP surface parameters.
type MonitorConfig struct {
	Enabled            bool     `toml:"enabled"`
	Addr               string   `toml:"addr"`
	APIKey             string   `toml:"api_key"`
	CORSOrigins        []string `toml:"cors_origins"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
}

// PricingConfig holds the USD price oracle endpoint.
type PricingConfig struct {
	DefiLlamaURL string `toml:"defillama_url"`
}

// PostgresConfig holds trade journal connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled       bool     `toml:"enabled"`
	Addr          string   `toml:"addr"`
	Password      string   `toml:"password"`
	DB            int      `toml:"db"`
	PoolSize      int      `toml:"pool_size"`
	MaxRetries    int      `toml:"max_retries"`
	TLSEnabled    bool     `toml:"tls_enabled"`
	WalletLockTTL duration `toml:"wallet_lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	WebhookURL        string   `toml:"webhook_url"`
	WebhookSecret     string   `toml:"webhook_secret"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			Name:          "ethereum",
			ChainID:       1,
			PollInterval:  duration{2 * time.Second},
			WrappedNative: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		},
		Exchange: ExchangeConfig{
			RouterAddress:   "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
			MaxSlippageBps:  300,
			Deadline:        duration{120 * time.Second},
			MaxGasPriceGwei: 200,
		},
		Strategy: StrategyConfig{
			MaxPositions:    4,
			PositionSizeETH: 0.3,
			TakeProfitBps:   2500,
			StopLossBps:     1200,
			LoopInterval:    duration{30 * time.Second},
		},
		Scanner: ScannerConfig{
			DexScreenerURL:    "https://api.dexscreener.com",
			MinLiquidityUSD:   120_000,
			MinDailyVolumeUSD: 250_000,
			MinAgeMinutes:     45,
			MaxCandidates:     12,
			PriceWeight:       1.0,
			VolumeWeight:      2.0,
			MinMomentum:       8.0,
			MinBuyPressure:    0.55,
			RequestsPerSecond: 4,
		},
		Risk: RiskConfig{
			GoPlusURL:           "https://api.gopluslabs.io",
			MaxTaxBps:           1000,
			MaxTopHolderPercent: 18,
			MinLockRatioPercent: 60,
			MinHolderCount:      500,
			RejectProxy:         true,
			Timeout:             duration{10 * time.Second},
			Concurrency:         4,
		},
		Execution: ExecutionConfig{
			MaxAttempts:       4,
			InitialBackoff:    duration{500 * time.Millisecond},
			MaxBackoff:        duration{5 * time.Second},
			ConfirmTimeout:    duration{150 * time.Second},
			RPCTimeout:        duration{15 * time.Second},
			GasLimitBufferPct: 20,
			SideEffectTimeout: duration{5 * time.Second},
		},
		Portfolio: PortfolioConfig{
			StatePath: "portfolio_state.json",
		},
		Monitor: MonitorConfig{
			Enabled:            true,
			Addr:               "0.0.0.0:8787",
			RateLimitPerMinute: 120,
		},
		Pricing: PricingConfig{
			DefiLlamaURL: "https://coins.llama.fi",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "memebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			PoolSize:      10,
			MaxRetries:    3,
			WalletLockTTL: duration{5 * time.Minute},
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "memebot-snapshots",
			ForcePathStyle: true,
			Prefix:         "snapshots/",
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "cycle_failed", "fatal"},
		},
		Metadata: map[string]string{},
		Mode:     "run",
		LogLevel: "info",
	}
}

// chainKeys maps supported chain names to the market feed's chain identifiers.
var chainKeys = map[string]string{
	"ethereum": "ethereum",
	"mainnet":  "ethereum",
	"arbitrum": "arbitrum",
	"base":     "base",
	"optimism": "optimism",
	"polygon":  "polygon",
}

// ChainKey returns the market feed identifier for the configured chain, or an
// empty string when the chain is unsupported.
func (c *Config) ChainKey() string {
	return chainKeys[strings.ToLower(c.Chain.Name)]
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":      true,
	"once":     true,
	"scan":     true,
	"evaluate": true,
	"health":   true,
	"close":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsWallet reports whether the mode submits transactions.
func NeedsWallet(mode string) bool {
	switch strings.ToLower(mode) {
	case "run", "once", "close":
		return true
	default:
		return false
	}
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, once, scan, evaluate, health, close)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.ChainKey() == "" {
		errs = append(errs, fmt.Sprintf("chain: unsupported name %q (valid: ethereum, arbitrum, base, optimism, polygon)", c.Chain.Name))
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	needsRPC := c.Mode != "scan" && c.Mode != "evaluate"
	if needsRPC && strings.TrimSpace(c.Chain.RPCURL) == "" {
		errs = append(errs, "chain: rpc_url must not be empty for mode "+c.Mode)
	}
	if !common.IsHexAddress(c.Chain.WrappedNative) {
		errs = append(errs, fmt.Sprintf("chain: wrapped_native %q is not an address", c.Chain.WrappedNative))
	}

	// Wallet
	if NeedsWallet(c.Mode) {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Exchange
	if !common.IsHexAddress(c.Exchange.RouterAddress) {
		errs = append(errs, fmt.Sprintf("exchange: router_address %q is not an address", c.Exchange.RouterAddress))
	}
	if c.Exchange.MaxSlippageBps < 0 || c.Exchange.MaxSlippageBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("exchange: max_slippage_bps must be 0-9999, got %d", c.Exchange.MaxSlippageBps))
	}
	if c.Exchange.Deadline.Duration <= 0 {
		errs = append(errs, "exchange: deadline must be > 0")
	}
	if c.Exchange.MaxGasPriceGwei <= 0 {
		errs = append(errs, "exchange: max_gas_price_gwei must be > 0")
	}

	// Strategy
	if c.Strategy.MaxPositions < 1 {
		errs = append(errs, "strategy: max_positions must be >= 1")
	}
	if c.Strategy.PositionSizeETH <= 0 {
		errs = append(errs, "strategy: position_size_eth must be > 0")
	}
	if c.Strategy.TakeProfitBps <= 0 {
		errs = append(errs, "strategy: take_profit_bps must be > 0")
	}
	if c.Strategy.StopLossBps <= 0 || c.Strategy.StopLossBps >= 10_000 {
		errs = append(errs, "strategy: stop_loss_bps must be 1-9999")
	}
	if c.Strategy.LoopInterval.Duration <= 0 {
		errs = append(errs, "strategy: loop_interval must be > 0")
	}
	for _, tok := range c.Strategy.BlacklistedTokens {
		if !common.IsHexAddress(tok) {
			errs = append(errs, fmt.Sprintf("strategy: blacklisted token %q is not an address", tok))
		}
	}

	// Scanner
	if c.Scanner.DexScreenerURL == "" {
		errs = append(errs, "scanner: dexscreener_url must not be empty")
	}
	if c.Scanner.MaxCandidates < 1 {
		errs = append(errs, "scanner: max_candidates must be >= 1")
	}
	if c.Scanner.PriceWeight < 0 || c.Scanner.VolumeWeight < 0 {
		errs = append(errs, "scanner: momentum weights must be >= 0")
	}
	if c.Scanner.MinBuyPressure < 0 || c.Scanner.MinBuyPressure > 1 {
		errs = append(errs, "scanner: min_buy_pressure must be within [0, 1]")
	}
	if c.Scanner.RequestsPerSecond <= 0 {
		errs = append(errs, "scanner: requests_per_second must be > 0")
	}

	// Risk
	if c.Risk.GoPlusURL == "" {
		errs = append(errs, "risk: goplus_url must not be empty")
	}
	if c.Risk.MaxTaxBps < 0 {
		errs = append(errs, "risk: max_tax_bps must be >= 0")
	}
	if c.Risk.MaxTopHolderPercent <= 0 || c.Risk.MaxTopHolderPercent > 100 {
		errs = append(errs, "risk: max_top_holder_percent must be within (0, 100]")
	}
	if c.Risk.MinLockRatioPercent < 0 || c.Risk.MinLockRatioPercent > 100 {
		errs = append(errs, "risk: min_lock_ratio_percent must be within [0, 100]")
	}
	if c.Risk.Timeout.Duration <= 0 {
		errs = append(errs, "risk: timeout must be > 0")
	}
	if c.Risk.Concurrency < 1 {
		errs = append(errs, "risk: concurrency must be >= 1")
	}

	// Execution
	if c.Execution.MaxAttempts < 1 {
		errs = append(errs, "execution: max_attempts must be >= 1")
	}
	if c.Execution.InitialBackoff.Duration <= 0 || c.Execution.MaxBackoff.Duration < c.Execution.InitialBackoff.Duration {
		errs = append(errs, "execution: backoff must satisfy 0 < initial_backoff <= max_backoff")
	}
	if c.Execution.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "execution: confirm_timeout must be > 0")
	}
	if c.Execution.RPCTimeout.Duration <= 0 {
		errs = append(errs, "execution: rpc_timeout must be > 0")
	}
	if c.Execution.SideEffectTimeout.Duration <= 0 {
		errs = append(errs, "execution: side_effect_timeout must be > 0")
	}

	// Portfolio
	if strings.TrimSpace(c.Portfolio.StatePath) == "" {
		errs = append(errs, "portfolio: state_path must not be empty")
	}

	// Monitor
	if c.Monitor.Enabled {
		if _, _, err := net.SplitHostPort(c.Monitor.Addr); err != nil {
			errs = append(errs, fmt.Sprintf("monitor: addr %q is not host:port", c.Monitor.Addr))
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" && c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.WalletLockTTL.Duration <= 0 {
			errs = append(errs, "redis: wallet_lock_ttl must be > 0")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
