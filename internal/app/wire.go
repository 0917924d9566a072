package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/shuttle/internal/blob/s3"
	"github.com/alanyoungcy/shuttle/internal/cache/memory"
	"github.com/alanyoungcy/shuttle/internal/cache/redis"
	"github.com/alanyoungcy/shuttle/internal/compliance"
	"github.com/alanyoungcy/shuttle/internal/config"
	"github.com/alanyoungcy/shuttle/internal/crypto"
	"github.com/alanyoungcy/shuttle/internal/domain"
	"github.com/alanyoungcy/shuttle/internal/history"
	"github.com/alanyoungcy/shuttle/internal/metrics"
	"github.com/alanyoungcy/shuttle/internal/notify"
	"github.com/alanyoungcy/shuttle/internal/platform/atomiq"
	"github.com/alanyoungcy/shuttle/internal/platform/pricefeed"
	"github.com/alanyoungcy/shuttle/internal/platform/protocol"
	"github.com/alanyoungcy/shuttle/internal/platform/starknet"
	"github.com/alanyoungcy/shuttle/internal/pricing"
	"github.com/alanyoungcy/shuttle/internal/quotelog"
	"github.com/alanyoungcy/shuttle/internal/service"
	"github.com/alanyoungcy/shuttle/internal/store/postgres"
)

// Dependencies bundles everything Run needs to serve requests and run the
// background workers. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Caches and coordination
	RateLimiter domain.RateLimiter
	EventBus    domain.EventBus

	// History
	HistoryStore domain.HistoryStore
	Evicted      <-chan domain.HistoryRecord // nil unless archiving is on
	Archiver     *s3blob.Archiver            // nil unless archiving is on
	QuoteLog     *quotelog.Log               // nil when quote_log.dir is empty

	// Integrations
	Gate      *compliance.Gate
	Estimator *pricing.Estimator
	APY       *protocol.APYClient

	// Services
	TxGuard    *service.TxGuard // nil outside non-custodial mode
	History    *service.HistoryService
	Quotes     *service.QuoteService
	Operations *service.BridgeService
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
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

	// --- Redis (optional: shared rate limits, prices, events and nonce lock) ---
	var (
		priceCache domain.PriceCache
		locker     domain.Locker
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
		priceCache = redis.NewPriceCache(redisClient)
		locker = redis.NewLockManager(redisClient)
		logger.InfoContext(ctx, "redis connected", slog.String("addr", cfg.Redis.Addr))
	} else {
		deps.RateLimiter = memory.NewRateLimiter()
		deps.EventBus = memory.NewEventBus()
	}

	// --- History store ---
	switch cfg.History.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
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
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.HistoryStore = postgres.NewHistoryStore(pgClient.Pool())
	default:
		evictBuffer := 0
		if cfg.History.Archive {
			evictBuffer = 2 * cfg.History.ArchiveBatch
		}
		ring := history.NewRing(cfg.History.Capacity, evictBuffer)
		deps.HistoryStore = ring

		if cfg.History.Archive {
			s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
				Endpoint:       cfg.S3.Endpoint,
				Region:         cfg.S3.Region,
				Bucket:         cfg.S3.Bucket,
				Prefix:         cfg.S3.Prefix,
				AccessKey:      cfg.S3.AccessKey,
				SecretKey:      cfg.S3.SecretKey,
				UseSSL:         cfg.S3.UseSSL,
				ForcePathStyle: cfg.S3.ForcePathStyle,
			})
			if err != nil {
				return fail(fmt.Errorf("wire: s3: %w", err))
			}
			if err := s3Client.Health(ctx); err != nil {
				logger.WarnContext(ctx, "archive bucket not reachable yet", slog.String("error", err.Error()))
			}
			deps.Archiver = s3blob.NewArchiver(s3Client, logger)
			deps.Evicted = ring.Evicted()
		}
	}

	// --- Quote log ---
	if cfg.QuoteLog.Dir != "" {
		ql, err := quotelog.Open(cfg.QuoteLog.Dir, cfg.QuoteLog.Buffer, metrics.QuoteLogDropped.Inc, logger)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		deps.QuoteLog = ql
		closers = append(closers, func() { _ = ql.Close() })
	}

	// --- Starknet ---
	var signer starknet.Signer
	switch {
	case cfg.Signer.Local():
		key, err := crypto.LoadSecret(crypto.SecretConfig{
			Raw:           cfg.Signer.PrivateKey,
			EncryptedPath: cfg.Signer.EncryptedKeyPath,
			Password:      cfg.Signer.KeyPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: signer key: %w", err))
		}
		local, err := starknet.NewLocalSigner(strings.TrimSpace(string(key)))
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		signer = local
		logger.InfoContext(ctx, "owner transactions signed locally")
	case cfg.Signer.Remote():
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			Raw:           cfg.Signer.Secret,
			EncryptedPath: cfg.Signer.EncryptedKeyPath,
			Password:      cfg.Signer.KeyPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: signer secret: %w", err))
		}
		remote, err := starknet.NewRemoteSigner(cfg.Signer.URL, &crypto.HMACAuth{
			KeyID:  cfg.Signer.KeyID,
			Secret: secret,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		signer = remote
		logger.InfoContext(ctx, "owner transactions signed remotely", slog.String("url", cfg.Signer.URL))
	}

	chain, err := starknet.NewClient(ctx, starknet.Config{
		RPCURL:          cfg.Starknet.RPCURL,
		ContractAddress: cfg.Starknet.ContractAddress,
		AccountAddress:  cfg.Starknet.AccountAddress,
		MaxFeeMultiple:  cfg.Starknet.MaxFeeMultiple,
	}, signer, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	closers = append(closers, chain.Close)
	if locker != nil {
		chain.UseNonceLock(locker)
	}

	// --- Bridge partner and pricing ---
	bridge := atomiq.NewClient(atomiq.Config{
		BaseURL:  cfg.Bridge.BaseURL,
		APIKey:   cfg.Bridge.APIKey,
		Simulate: cfg.Bridge.Simulate,
		Timeout:  cfg.Bridge.Timeout.Duration,
	}, logger)

	feed := pricefeed.NewClient(cfg.Pricing.PriceFeedURL, priceCache, cfg.Pricing.PriceTTL.Duration, logger)

	deps.Estimator = pricing.NewEstimator(pricing.Config{
		MarginBps:          cfg.Pricing.MarginBps,
		BatchDiscountBps:   cfg.Pricing.BatchDiscountBps,
		MinDeposit:         cfg.Pricing.MinDeposit,
		DefaultBTCL1Fee:    cfg.Pricing.DefaultBTCL1Fee,
		DefaultStarknetFee: cfg.Pricing.DefaultStarknetFee,
		EtaSeconds:         cfg.Pricing.EtaSeconds,
		BatchEtaSeconds:    cfg.Pricing.BatchEtaSeconds,
		FloorTotalFee:      cfg.Pricing.FloorTotalFee,
		DefaultToken:       cfg.Pricing.DefaultToken,
		Entrypoint:         starknet.EntryDepositFor,
		EstimateUser:       cfg.Starknet.AccountAddress,
	}, bridge, chain, feed, logger)

	deps.Gate = compliance.NewGate(compliance.Config{
		AllowedCountries: cfg.Compliance.AllowedCountries,
		Denylist:         cfg.Compliance.Denylist,
		Allowlist:        cfg.Compliance.Allowlist,
		ValidateAddrs:    cfg.Compliance.ValidateAddrs,
		BTCNetwork:       cfg.Compliance.BTCNetwork,
	}, logger)

	deps.APY = protocol.NewAPYClient(cfg.APY.URL, cfg.APY.Default, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)
	if notifier.Enabled() {
		logger.InfoContext(ctx, "operator notifications enabled", slog.Int("channels", len(senders)))
	}

	// --- Services ---
	deps.History = service.NewHistoryService(deps.HistoryStore, deps.EventBus, logger)

	var quoteLog domain.QuoteLog
	if deps.QuoteLog != nil {
		quoteLog = deps.QuoteLog
	}
	deps.Quotes = service.NewQuoteService(deps.Estimator, deps.History, quoteLog, logger)

	poller := service.NewPoller(chain, cfg.Starknet.PollMaxWait.Duration, cfg.Starknet.PollInterval.Duration, logger)
	deps.Operations = service.NewBridgeService(
		service.BridgeConfig{
			Mode:              domain.Mode(cfg.Mode),
			DefaultToken:      cfg.Pricing.DefaultToken,
			DepositEntrypoint: cfg.Starknet.DepositEntry,
		},
		bridge, chain, chain, chain, poller,
		deps.History, notifier, logger,
	)
	if cfg.Mode == string(domain.ModeNonCustodial) && cfg.Starknet.TxReplayWindow.Duration > 0 {
		deps.TxGuard = service.NewTxGuard(cfg.Starknet.TxReplayWindow.Duration)
		deps.Operations.UseTxGuard(deps.TxGuard)
	}

	return deps, cleanup, nil
}
