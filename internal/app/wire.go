package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/darkpool/internal/blob/s3"
	"github.com/alanyoungcy/darkpool/internal/cache/memory"
	"github.com/alanyoungcy/darkpool/internal/cache/redis"
	"github.com/alanyoungcy/darkpool/internal/config"
	"github.com/alanyoungcy/darkpool/internal/crypto"
	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/metrics"
	"github.com/alanyoungcy/darkpool/internal/notify"
	"github.com/alanyoungcy/darkpool/internal/platform/aptos"
	"github.com/alanyoungcy/darkpool/internal/platform/pyth"
	"github.com/alanyoungcy/darkpool/internal/server/handler"
	"github.com/alanyoungcy/darkpool/internal/service"
	"github.com/alanyoungcy/darkpool/internal/store/file"
	"github.com/alanyoungcy/darkpool/internal/store/leveldb"
	"github.com/alanyoungcy/darkpool/internal/store/postgres"
	"github.com/alanyoungcy/darkpool/internal/store/sqlite"
)

var (
	_ service.Signer       = (*aptos.LocalSigner)(nil)
	_ service.MarketReader = (*aptos.Client)(nil)
	_ service.PriceSource  = (*pyth.HermesClient)(nil)
	_ service.EventSink    = (*notify.Notifier)(nil)
	_ service.EventSink    = (*notify.PhotonSender)(nil)
	_ service.EventSink    = (*notify.BusSink)(nil)
)

// Dependencies bundles every concrete collaborator the modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Ledger
	Ledger *aptos.Client
	// Signer is nil when no wallet key is configured.
	Signer service.Signer

	// Stores
	Commitments domain.CommitmentStore
	History     domain.HistoryStore
	Leaderboard domain.LeaderboardStore
	Audit       domain.AuditStore

	// Caches
	MarketCache domain.MarketCache
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage; both nil unless s3.enabled.
	Archiver      domain.Archiver
	ArchiveReader domain.BlobReader

	// Oracle
	Prices *pyth.HermesClient

	// Side channels
	Notifier *notify.Notifier
	Sinks    []service.EventSink

	Metrics *metrics.Metrics
	// Health probes every wired backend.
	Health map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from cfg and
// returns them with a cleanup function to call on shutdown.
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

	deps := &Dependencies{
		Metrics: metrics.New(),
		Health:  make(map[string]handler.HealthCheck),
	}

	// --- Ledger ---
	deps.Ledger = aptos.NewClient(aptos.ClientConfig{
		NodeURL:           cfg.Ledger.NodeURL,
		ContractAddress:   cfg.Ledger.ContractAddress,
		ViewModule:        cfg.Ledger.ViewModule,
		RequestTimeout:    cfg.Ledger.RequestTimeout.Duration,
		RequestsPerSecond: cfg.Ledger.RequestsPerSecond,
		Burst:             cfg.Ledger.Burst,
	})
	deps.Ledger.SetObserver(deps.Metrics.ObserveLedger)
	deps.Health["ledger"] = func(ctx context.Context) error {
		_, err := deps.Ledger.Info(ctx)
		return err
	}

	address := ""
	if cfg.KeyConfigured() {
		account, err := crypto.LoadAccount(crypto.KeyConfig{
			RawPrivateKey: cfg.Wallet.PrivateKey,
			KeyFile:       cfg.Wallet.KeyFile,
			KeyPassword:   cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: wallet: %w", err))
		}
		deps.Signer = aptos.NewLocalSigner(deps.Ledger, account, aptos.SignerConfig{
			MaxGasAmount: cfg.Ledger.MaxGasAmount,
			GasUnitPrice: cfg.Ledger.GasUnitPrice,
			TxExpiry:     cfg.Ledger.TxExpiry.Duration,
			WaitForTx:    cfg.Ledger.WaitForTx,
		})
		address = account.Address()
		logger.InfoContext(ctx, "wallet connected", slog.String("address", address))
	} else {
		logger.WarnContext(ctx, "no wallet key configured; actions will report WalletNotConnected")
	}

	// --- Redis (optional) ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
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
		redisClient = rc
		closers = append(closers, func() { _ = rc.Close() })
		deps.Health["redis"] = rc.Ping

		deps.MarketCache = redis.NewMarketCache(rc, cfg.Redis.MarketTTL.Duration)
		deps.PriceCache = redis.NewPriceCache(rc, cfg.Redis.PriceTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(rc)
		deps.LockManager = redis.NewLockManager(rc)
		deps.SignalBus = redis.NewSignalBus(rc)
	} else {
		deps.MarketCache = memory.NewMarketCache(cfg.Redis.MarketTTL.Duration)
		deps.PriceCache = memory.NewPriceCache(cfg.Redis.PriceTTL.Duration)
		deps.RateLimiter = memory.NewRateLimiter()
		deps.LockManager = memory.NewLockManager()
		deps.SignalBus = memory.NewSignalBus()
	}

	// --- History, leaderboard, audit: Postgres when enabled, else SQLite ---
	var sqliteDB *sqlite.DB
	openSQLite := func() (*sqlite.DB, error) {
		if sqliteDB != nil {
			return sqliteDB, nil
		}
		db, err := sqlite.Open(sqlitePath(cfg.Store))
		if err != nil {
			return nil, err
		}
		sqliteDB = db
		closers = append(closers, func() { _ = db.Close() })
		deps.Health["sqlite"] = db.Ping
		return db, nil
	}

	if cfg.Postgres.Enabled {
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
		pool := pg.Pool()
		deps.Health["postgres"] = pg.Ping
		deps.History = postgres.NewHistoryStore(pool)
		deps.Leaderboard = postgres.NewLeaderboardStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
	} else {
		db, err := openSQLite()
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		deps.History = db.History()
		deps.Leaderboard = db.Leaderboard()
		deps.Audit = db.Audit()
	}

	// --- Commitment store ---
	switch strings.ToLower(cfg.Store.Backend) {
	case "file":
		s, err := file.NewCommitmentStore(cfg.Store.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: file store: %w", err))
		}
		deps.Commitments = s
	case "leveldb":
		s, err := leveldb.Open(cfg.Store.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: leveldb store: %w", err))
		}
		closers = append(closers, func() { _ = s.Close() })
		deps.Commitments = s
	case "redis":
		if redisClient == nil {
			return fail(fmt.Errorf("wire: store backend redis requires redis.enabled"))
		}
		deps.Commitments = redis.NewCommitmentStore(redisClient, address)
	default:
		db, err := openSQLite()
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		deps.Commitments = db.Commitments()
	}

	// --- S3 archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.ArchivePrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Health["s3"] = s3Client.Health
		deps.ArchiveReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.ArchiveReader,
			deps.History,
			deps.Audit,
		)
	}

	// --- Oracle ---
	deps.Prices = pyth.NewHermesClient(cfg.Oracle.HermesURL, cfg.Oracle.Feeds, cfg.Oracle.RequestsPerSecond)

	// --- Side channels ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	deps.Sinks = append(deps.Sinks, notify.NewBusSink(deps.SignalBus, domain.ChannelActions, domain.StreamActions))
	if deps.Notifier.Enabled() {
		deps.Sinks = append(deps.Sinks, deps.Notifier)
	}
	if cfg.Photon.Enabled {
		deps.Sinks = append(deps.Sinks, notify.NewPhotonSender(notify.PhotonConfig{
			BaseURL:              cfg.Photon.BaseURL,
			APIKey:               cfg.Photon.APIKey,
			RewardedCampaignID:   cfg.Photon.RewardedCampaignID,
			UnrewardedCampaignID: cfg.Photon.UnrewardedCampaignID,
		}))
	}

	return deps, cleanup, nil
}

// sqlitePath places the SQLite database at the store path for the sqlite
// backend, and next to it for every other backend.
func sqlitePath(sc config.StoreConfig) string {
	if strings.EqualFold(sc.Backend, "sqlite") && sc.Path != "" {
		return sc.Path
	}
	if sc.Path == "" {
		return "darkpool.db"
	}
	return filepath.Join(filepath.Dir(sc.Path), "darkpool.db")
}

// Services are the service-layer objects shared by every mode.
type Services struct {
	Predictions *service.PredictionService
	Markets     *service.MarketService
	Prices      *service.PriceService
	Leaderboard *service.LeaderboardService
}

// NewServices builds the service layer on top of deps.
func NewServices(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *Services {
	markets := service.NewMarketService(
		deps.Ledger,
		deps.MarketCache,
		deps.Commitments,
		deps.History,
		deps.SignalBus,
		cfg.Commitment.FeeBps,
		logger,
	)
	predictions := service.NewPredictionService(service.PredictionConfig{
		Contract:           cfg.Ledger.ContractAddress,
		Module:             cfg.Ledger.ModuleName,
		FeeBps:             cfg.Commitment.FeeBps,
		VerifyBeforeReveal: cfg.Commitment.VerifyBeforeReveal,
		LockTTL:            cfg.Commitment.ActionLockTTL.Duration,
	}, service.PredictionDeps{
		Signer:      deps.Signer,
		Store:       deps.Commitments,
		Locks:       deps.LockManager,
		History:     deps.History,
		Leaderboard: deps.Leaderboard,
		Audit:       deps.Audit,
		Sinks:       deps.Sinks,
		Observer:    deps.Metrics,
	}, logger)

	return &Services{
		Predictions: predictions,
		Markets:     markets,
		Prices:      service.NewPriceService(deps.Prices, deps.PriceCache, deps.SignalBus, logger),
		Leaderboard: service.NewLeaderboardService(deps.Leaderboard, deps.History, logger),
	}
}

// afterAction drops the cached market so the next read sees the new state,
// then asks refresh (when set) to poll immediately.
func afterAction(markets *service.MarketService, refresh func(), timeout time.Duration) func(ctx context.Context, marketID uint64) {
	return func(ctx context.Context, marketID uint64) {
		if marketID != 0 {
			ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
			markets.Invalidate(ictx, marketID)
			cancel()
		}
		if refresh != nil {
			refresh()
		}
	}
}
