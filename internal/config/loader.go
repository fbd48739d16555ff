package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MEMEBOT_* environment variable overrides, and
// returns the final Config. A missing file is tolerated so the bot can be
// configured from the environment alone. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MEMEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.Name, "MEMEBOT_CHAIN_NAME")
	setInt64(&cfg.Chain.ChainID, "MEMEBOT_CHAIN_ID")
	setStr(&cfg.Chain.RPCURL, "MEMEBOT_RPC_URL")
	setDuration(&cfg.Chain.PollInterval, "MEMEBOT_CHAIN_POLL_INTERVAL")
	setStr(&cfg.Chain.WrappedNative, "MEMEBOT_CHAIN_WRAPPED_NATIVE")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "MEMEBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "MEMEBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "MEMEBOT_WALLET_KEY_PASSWORD")

	// ── Exchange ──
	setStr(&cfg.Exchange.RouterAddress, "MEMEBOT_EXCHANGE_ROUTER_ADDRESS")
	setInt(&cfg.Exchange.MaxSlippageBps, "MEMEBOT_EXCHANGE_MAX_SLIPPAGE_BPS")
	setDuration(&cfg.Exchange.Deadline, "MEMEBOT_EXCHANGE_DEADLINE")
	setFloat64(&cfg.Exchange.MaxGasPriceGwei, "MEMEBOT_EXCHANGE_MAX_GAS_PRICE_GWEI")

	// ── Strategy ──
	setInt(&cfg.Strategy.MaxPositions, "MEMEBOT_STRATEGY_MAX_POSITIONS")
	setFloat64(&cfg.Strategy.PositionSizeETH, "MEMEBOT_STRATEGY_POSITION_SIZE_ETH")
	setInt(&cfg.Strategy.TakeProfitBps, "MEMEBOT_STRATEGY_TAKE_PROFIT_BPS")
	setInt(&cfg.Strategy.StopLossBps, "MEMEBOT_STRATEGY_STOP_LOSS_BPS")
	setDuration(&cfg.Strategy.LoopInterval, "MEMEBOT_STRATEGY_LOOP_INTERVAL")
	setStringSlice(&cfg.Strategy.BlacklistedTokens, "MEMEBOT_STRATEGY_BLACKLISTED_TOKENS")

	// ── Scanner ──
	setStr(&cfg.Scanner.DexScreenerURL, "MEMEBOT_SCANNER_DEXSCREENER_URL")
	setFloat64(&cfg.Scanner.MinLiquidityUSD, "MEMEBOT_SCANNER_MIN_LIQUIDITY_USD")
	setFloat64(&cfg.Scanner.MinDailyVolumeUSD, "MEMEBOT_SCANNER_MIN_DAILY_VOLUME_USD")
	setInt(&cfg.Scanner.MinAgeMinutes, "MEMEBOT_SCANNER_MIN_AGE_MINUTES")
	setInt(&cfg.Scanner.MaxCandidates, "MEMEBOT_SCANNER_MAX_CANDIDATES")
	setFloat64(&cfg.Scanner.MinMomentum, "MEMEBOT_SCANNER_MIN_MOMENTUM")
	setFloat64(&cfg.Scanner.MinBuyPressure, "MEMEBOT_SCANNER_MIN_BUY_PRESSURE")

	// ── Risk ──
	setStr(&cfg.Risk.GoPlusURL, "MEMEBOT_RISK_GOPLUS_URL")
	setInt(&cfg.Risk.MaxTaxBps, "MEMEBOT_RISK_MAX_TAX_BPS")
	setFloat64(&cfg.Risk.MaxTopHolderPercent, "MEMEBOT_RISK_MAX_TOP_HOLDER_PERCENT")
	setFloat64(&cfg.Risk.MinLockRatioPercent, "MEMEBOT_RISK_MIN_LOCK_RATIO_PERCENT")
	setInt(&cfg.Risk.MinHolderCount, "MEMEBOT_RISK_MIN_HOLDER_COUNT")
	setBool(&cfg.Risk.RejectProxy, "MEMEBOT_RISK_REJECT_PROXY")

	// ── Execution ──
	setInt(&cfg.Execution.MaxAttempts, "MEMEBOT_EXECUTION_MAX_ATTEMPTS")
	setDuration(&cfg.Execution.ConfirmTimeout, "MEMEBOT_EXECUTION_CONFIRM_TIMEOUT")
	setDuration(&cfg.Execution.RPCTimeout, "MEMEBOT_EXECUTION_RPC_TIMEOUT")
	setDuration(&cfg.Execution.SideEffectTimeout, "MEMEBOT_EXECUTION_SIDE_EFFECT_TIMEOUT")

	// ── Portfolio ──
	setStr(&cfg.Portfolio.StatePath, "MEMEBOT_STATE_PATH")

	// ── Monitor ──
	setBool(&cfg.Monitor.Enabled, "MEMEBOT_MONITOR_ENABLED")
	setStr(&cfg.Monitor.Addr, "MEMEBOT_MONITOR_ADDR")
	setStr(&cfg.Monitor.APIKey, "MEMEBOT_MONITOR_API_KEY")
	setStringSlice(&cfg.Monitor.CORSOrigins, "MEMEBOT_MONITOR_CORS_ORIGINS")
	setInt(&cfg.Monitor.RateLimitPerMinute, "MEMEBOT_MONITOR_RATE_LIMIT_PER_MINUTE")

	// ── Pricing ──
	setStr(&cfg.Pricing.DefiLlamaURL, "MEMEBOT_PRICING_DEFILLAMA_URL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MEMEBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "MEMEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MEMEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MEMEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MEMEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MEMEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MEMEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MEMEBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MEMEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MEMEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MEMEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MEMEBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MEMEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MEMEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MEMEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MEMEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MEMEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MEMEBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.WalletLockTTL, "MEMEBOT_REDIS_WALLET_LOCK_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MEMEBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MEMEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MEMEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "MEMEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MEMEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MEMEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MEMEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MEMEBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "MEMEBOT_S3_PREFIX")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MEMEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MEMEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MEMEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookURL, "MEMEBOT_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookSecret, "MEMEBOT_NOTIFY_WEBHOOK_SECRET")
	setStringSlice(&cfg.Notify.Events, "MEMEBOT_NOTIFY_EVENTS")

	// ── Metadata ──
	setStringMap(&cfg.Metadata, "MEMEBOT_METADATA")

	// ── Top-level ──
	setStr(&cfg.Mode, "MEMEBOT_MODE")
	setStr(&cfg.LogLevel, "MEMEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// setStringMap merges comma-separated key=value pairs into dst.
func setStringMap(dst *map[string]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if *dst == nil {
		*dst = make(map[string]string)
	}
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		(*dst)[k] = strings.TrimSpace(val)
	}
}
