package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/memebot/internal/blob/s3"
	"github.com/alanyoungcy/memebot/internal/cache/redis"
	"github.com/alanyoungcy/memebot/internal/config"
	"github.com/alanyoungcy/memebot/internal/crypto"
	"github.com/alanyoungcy/memebot/internal/domain"
	"github.com/alanyoungcy/memebot/internal/executor"
	"github.com/alanyoungcy/memebot/internal/loop"
	"github.com/alanyoungcy/memebot/internal/notify"
	"github.com/alanyoungcy/memebot/internal/platform/defillama"
	"github.com/alanyoungcy/memebot/internal/platform/dexscreener"
	"github.com/alanyoungcy/memebot/internal/platform/evm"
	"github.com/alanyoungcy/memebot/internal/platform/goplus"
	"github.com/alanyoungcy/memebot/internal/portfolio"
	"github.com/alanyoungcy/memebot/internal/risk"
	"github.com/alanyoungcy/memebot/internal/scanner"
	"github.com/alanyoungcy/memebot/internal/store/postgres"
)

// Dependencies bundles what the modes need. Fields a mode does not use are
// nil.
type Dependencies struct {
	Chain     *evm.Client
	Executor  *executor.Engine
	Scanner   *scanner.Scanner
	Risk      *risk.Evaluator
	Portfolio *portfolio.Manager
	Loop      *loop.Orchestrator

	Journal     domain.JournalStore
	PriceCache  domain.PriceCache
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	Archiver    loop.Archiver

	Notifier *notify.Notifier
}

func needsChain(mode string) bool {
	switch mode {
	case "run", "once", "close", "health":
		return true
	}
	return false
}

func needsMarketFeed(mode string) bool {
	switch mode {
	case "run", "once", "close", "scan", "evaluate":
		return true
	}
	return false
}

func needsPortfolio(mode string) bool {
	switch mode {
	case "run", "once", "close":
		return true
	}
	return false
}

// Wire builds the dependencies for cfg.Mode and returns a cleanup function
// that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}
	mode := cfg.Mode

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  "memebot:" + cfg.ChainKey(),
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.LockManager = redis.NewLockManager(rc, logger)
		deps.PriceCache = redis.NewPriceCache(rc)
		deps.SignalBus = redis.NewSignalBus(rc)
		deps.RateLimiter = redis.NewRateLimiter(rc, cfg.Monitor.RateLimitPerMinute, time.Minute)
	}

	// --- PostgreSQL journal ---
	if cfg.Postgres.Enabled && needsPortfolio(mode) {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Journal = postgres.NewJournalStore(pg.Pool())
	}

	// --- S3 snapshots ---
	if cfg.S3.Enabled && needsPortfolio(mode) {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := sc.Health(ctx); err != nil {
			logger.WarnContext(ctx, "snapshot bucket not reachable, uploads will be retried each cycle",
				slog.String("bucket", cfg.S3.Bucket),
				slog.String("error", err.Error()),
			)
		}
		deps.Archiver = s3blob.NewSnapshotArchiver(s3blob.NewWriter(sc), cfg.S3.Prefix)
	}

	// --- Notifications ---
	deps.Notifier = notify.NewNotifier(buildSenders(cfg.Notify), cfg.Notify.Events, logger)

	// --- Feeds ---
	if needsMarketFeed(mode) {
		dex := dexscreener.NewClient(cfg.Scanner.DexScreenerURL, cfg.ChainKey(), cfg.Scanner.RequestsPerSecond, cfg.Risk.Timeout.Duration,
			dexscreener.WithLogger(logger))
		deps.Scanner = scanner.New(dex, scannerConfig(cfg), logger)

		gp := goplus.NewClient(cfg.Risk.GoPlusURL, cfg.Chain.ChainID, cfg.Risk.Timeout.Duration)
		deps.Risk = risk.New(gp, risk.Config{
			MaxTaxBps:           cfg.Risk.MaxTaxBps,
			MaxTopHolderPercent: cfg.Risk.MaxTopHolderPercent,
			MinLockRatioPercent: cfg.Risk.MinLockRatioPercent,
			MinHolderCount:      cfg.Risk.MinHolderCount,
			RejectProxy:         cfg.Risk.RejectProxy,
			Timeout:             cfg.Risk.Timeout.Duration,
		}, logger)
	}

	// --- Chain ---
	if needsChain(mode) {
		var signer *crypto.TxSigner
		if config.NeedsWallet(mode) {
			key, err := crypto.LoadKey(crypto.KeyConfig{
				RawPrivateKey:    cfg.Wallet.PrivateKey,
				EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
				KeyPassword:      cfg.Wallet.KeyPassword,
			})
			if err != nil {
				return fail(fmt.Errorf("wire: wallet: %w: %w", domain.ErrSignerUnavailable, err))
			}
			signer, err = crypto.NewTxSigner(key, cfg.Chain.ChainID)
			if err != nil {
				return fail(fmt.Errorf("wire: wallet: %w: %w", domain.ErrSignerUnavailable, err))
			}
		}

		chain, err := evm.Dial(ctx, cfg.Chain.RPCURL, common.HexToAddress(cfg.Exchange.RouterAddress), signer, cfg.Execution.GasLimitBufferPct)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		closers = append(closers, chain.Close)
		deps.Chain = chain

		var opts []executor.Option
		if deps.LockManager != nil {
			opts = append(opts, executor.WithLockManager(deps.LockManager))
		}
		deps.Executor = executor.New(chain, executorConfig(cfg), logger, opts...)
	}

	// --- Portfolio and loop ---
	if needsPortfolio(mode) {
		var opts []portfolio.Option
		if deps.PriceCache != nil {
			opts = append(opts, portfolio.WithPriceCache(deps.PriceCache))
		}
		if cfg.Pricing.DefiLlamaURL != "" {
			opts = append(opts, portfolio.WithNativePricer(
				defillama.NewClient(cfg.Pricing.DefiLlamaURL, cfg.ChainKey(), cfg.Chain.WrappedNative),
			))
		}
		deps.Portfolio = portfolio.NewManager(
			portfolio.NewFileStore(cfg.Portfolio.StatePath),
			deps.Executor,
			portfolio.Config{
				Capacity:           cfg.Strategy.MaxPositions,
				TakeProfitBps:      cfg.Strategy.TakeProfitBps,
				StopLossBps:        cfg.Strategy.StopLossBps,
				SlippageBps:        cfg.Exchange.MaxSlippageBps,
				ExitDeadline:       cfg.Exchange.Deadline.Duration,
				RefreshConcurrency: cfg.Risk.Concurrency,
			},
			logger, opts...,
		)
	}

	if deps.Portfolio != nil && deps.Executor != nil {
		var opts []loop.Option
		if deps.Journal != nil {
			opts = append(opts, loop.WithJournal(deps.Journal))
		}
		if deps.SignalBus != nil {
			opts = append(opts, loop.WithBus(deps.SignalBus))
		}
		if deps.Notifier.Enabled() {
			opts = append(opts, loop.WithAlerter(deps.Notifier))
		}
		if deps.Archiver != nil {
			opts = append(opts, loop.WithArchiver(deps.Archiver))
		}

		deps.Loop = loop.New(deps.Scanner, deps.Risk, deps.Executor, deps.Portfolio, loopConfig(cfg), logger, opts...)
	}

	return deps, cleanup, nil
}

func buildSenders(cfg config.NotifyConfig) []notify.Sender {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	if cfg.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.WebhookURL, cfg.WebhookSecret))
	}
	return senders
}

func scannerConfig(cfg *config.Config) scanner.Config {
	return scanner.Config{
		MinLiquidityUSD:   cfg.Scanner.MinLiquidityUSD,
		MinDailyVolumeUSD: cfg.Scanner.MinDailyVolumeUSD,
		MinAge:            time.Duration(cfg.Scanner.MinAgeMinutes) * time.Minute,
		MaxCandidates:     cfg.Scanner.MaxCandidates,
		Weights: scanner.Weights{
			Price:  cfg.Scanner.PriceWeight,
			Volume: cfg.Scanner.VolumeWeight,
		},
		MinMomentum:    cfg.Scanner.MinMomentum,
		MinBuyPressure: cfg.Scanner.MinBuyPressure,
		WrappedNative:  cfg.Chain.WrappedNative,
		Blacklist:      cfg.Strategy.BlacklistedTokens,
	}
}

func executorConfig(cfg *config.Config) executor.Config {
	var maxGas *big.Int
	if cfg.Exchange.MaxGasPriceGwei > 0 {
		maxGas = decimal.NewFromFloat(cfg.Exchange.MaxGasPriceGwei).Shift(9).BigInt()
	}
	return executor.Config{
		WrappedNative:  common.HexToAddress(cfg.Chain.WrappedNative),
		MaxGasPrice:    maxGas,
		ConfirmTimeout: cfg.Execution.ConfirmTimeout.Duration,
		PollInterval:   cfg.Chain.PollInterval.Duration,
		RPCTimeout:     cfg.Execution.RPCTimeout.Duration,
		Retry: executor.RetryPolicy{
			MaxAttempts: cfg.Execution.MaxAttempts,
			Initial:     cfg.Execution.InitialBackoff.Duration,
			Max:         cfg.Execution.MaxBackoff.Duration,
			Multiplier:  2,
		},
		WalletLockTTL: cfg.Redis.WalletLockTTL.Duration,
	}
}

func loopConfig(cfg *config.Config) loop.Config {
	return loop.Config{
		Interval:          cfg.Strategy.LoopInterval.Duration,
		PositionSize:      decimal.NewFromFloat(cfg.Strategy.PositionSizeETH),
		SlippageBps:       cfg.Exchange.MaxSlippageBps,
		IntentDeadline:    cfg.Exchange.Deadline.Duration,
		ScreenConcurrency: cfg.Risk.Concurrency,
		HealthTimeout:     cfg.Execution.RPCTimeout.Duration,
		SideEffectTimeout: cfg.Execution.SideEffectTimeout.Duration,
	}
}
