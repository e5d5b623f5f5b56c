// Package config defines the top-level configuration for the darkpool client
// and keeper, and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DARKPOOL_* environment variables.
type Config struct {
	Ledger     LedgerConfig     `toml:"ledger"`
	Wallet     WalletConfig     `toml:"wallet"`
	Commitment CommitmentConfig `toml:"commitment"`
	Store      StoreConfig      `toml:"store"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Oracle     OracleConfig     `toml:"oracle"`
	Photon     PhotonConfig     `toml:"photon"`
	Poll       PollConfig       `toml:"poll"`
	Markets    MarketsConfig    `toml:"markets"`
	Keeper     KeeperConfig     `toml:"keeper"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// LedgerConfig points at the fullnode REST API and the deployed contract.
type LedgerConfig struct {
	NodeURL         string `toml:"node_url"`
	ContractAddress string `toml:"contract_address"`
	// ModuleName hosts the entry functions; ViewModule hosts the view functions.
	ModuleName        string   `toml:"module_name"`
	ViewModule        string   `toml:"view_module"`
	RequestTimeout    duration `toml:"request_timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	MaxGasAmount      uint64   `toml:"max_gas_amount"`
	GasUnitPrice      uint64   `toml:"gas_unit_price"`
	TxExpiry          duration `toml:"tx_expiry"`
	WaitForTx         bool     `toml:"wait_for_tx"`
}

// WalletConfig holds the account key used to sign transactions.
type WalletConfig struct {
	PrivateKey  string `toml:"private_key"`
	KeyFile     string `toml:"key_file"`
	KeyPassword string `toml:"key_password"`
}

// CommitmentConfig tunes the commit-reveal flow.
type CommitmentConfig struct {
	FeeBps             uint64   `toml:"fee_bps"`
	VerifyBeforeReveal bool     `toml:"verify_before_reveal"`
	ActionLockTTL      duration `toml:"action_lock_ttl"`
}

// StoreConfig selects where pending commitments live.
type StoreConfig struct {
	// Backend is one of file, sqlite, leveldb, redis.
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// PostgresConfig holds PostgreSQL connection parameters for history,
// leaderboard and audit data.
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
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	Namespace  string   `toml:"namespace"`
	MarketTTL  duration `toml:"market_ttl"`
	PriceTTL   duration `toml:"price_ttl"`
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
	ArchivePrefix  string `toml:"archive_prefix"`
}

// OracleConfig configures the Pyth Hermes price service.
type OracleConfig struct {
	HermesURL         string            `toml:"hermes_url"`
	Feeds             map[string]string `toml:"feeds"`
	RequestsPerSecond float64           `toml:"requests_per_second"`
}

// PhotonConfig configures the XP/analytics side-channel.
type PhotonConfig struct {
	Enabled              bool   `toml:"enabled"`
	BaseURL              string `toml:"base_url"`
	APIKey               string `toml:"api_key"`
	RewardedCampaignID   string `toml:"rewarded_campaign_id"`
	UnrewardedCampaignID string `toml:"unrewarded_campaign_id"`
}

// PollConfig sets refresh intervals. Jitter is a fraction of the interval.
type PollConfig struct {
	Market    duration `toml:"market"`
	Markets   duration `toml:"markets"`
	UserStats duration `toml:"user_stats"`
	Price     duration `toml:"price"`
	Jitter    float64  `toml:"jitter"`
}

// MarketsConfig lists the market ids this instance follows.
type MarketsConfig struct {
	Watch []uint64 `toml:"watch"`
}

// KeeperConfig schedules background maintenance jobs (cron syntax).
type KeeperConfig struct {
	PhaseCron         string `toml:"phase_cron"`
	ResolveCron       string `toml:"resolve_cron"`
	CleanupCron       string `toml:"cleanup_cron"`
	LeaderboardCron   string `toml:"leaderboard_cron"`
	RulesFile         string `toml:"rules_file"`
	SubmitResolutions bool   `toml:"submit_resolutions"`
	RetentionDays     int    `toml:"retention_days"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards mutating routes when set.
	APIKey     string   `toml:"api_key"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			NodeURL:           "https://fullnode.testnet.aptoslabs.com/v1",
			ContractAddress:   "0xCAFE",
			ModuleName:        "darkpool",
			ViewModule:        "prediction_market",
			RequestTimeout:    duration{15 * time.Second},
			RequestsPerSecond: 10,
			Burst:             5,
			MaxGasAmount:      20_000,
			GasUnitPrice:      100,
			TxExpiry:          duration{60 * time.Second},
			WaitForTx:         true,
		},
		Commitment: CommitmentConfig{
			FeeBps:             250,
			VerifyBeforeReveal: true,
			ActionLockTTL:      duration{2 * time.Minute},
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    "darkpool.db",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "darkpool",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			MarketTTL:  duration{10 * time.Second},
			PriceTTL:   duration{10 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "darkpool-archive",
			ForcePathStyle: true,
			ArchivePrefix:  "history",
		},
		Oracle: OracleConfig{
			HermesURL: "https://hermes.pyth.network",
			Feeds: map[string]string{
				"BTC/USD": "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
				"ETH/USD": "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
				"APT/USD": "0x03ae4db29ed4ae33d323568895aa00337e658e348b37509f5372ae51f0af00d5",
				"SOL/USD": "0xef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d",
			},
			RequestsPerSecond: 5,
		},
		Photon: PhotonConfig{
			BaseURL:              "https://stage-api.getstan.app/identity-service/api/v1",
			RewardedCampaignID:   "rewarded-campaign",
			UnrewardedCampaignID: "unrewarded-campaign",
		},
		Poll: PollConfig{
			Market:    duration{10 * time.Second},
			Markets:   duration{30 * time.Second},
			UserStats: duration{60 * time.Second},
			Price:     duration{10 * time.Second},
			Jitter:    0.1,
		},
		Keeper: KeeperConfig{
			PhaseCron:       "*/5 * * * *",
			ResolveCron:     "0 * * * *",
			CleanupCron:     "0 3 * * *",
			LeaderboardCron: "30 3 * * *",
			RetentionDays:   30,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"prediction_win", "market_resolved", "error"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"keeper": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"file":    true,
	"sqlite":  true,
	"leveldb": true,
	"redis":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, keeper, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger
	if u, err := url.Parse(c.Ledger.NodeURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("ledger: node_url %q is not an absolute URL", c.Ledger.NodeURL))
	}
	if !strings.HasPrefix(c.Ledger.ContractAddress, "0x") || len(c.Ledger.ContractAddress) < 3 {
		errs = append(errs, fmt.Sprintf("ledger: contract_address %q must be 0x-prefixed hex", c.Ledger.ContractAddress))
	}
	if c.Ledger.ModuleName == "" || c.Ledger.ViewModule == "" {
		errs = append(errs, "ledger: module_name and view_module must not be empty")
	}
	if c.Ledger.RequestTimeout.Duration <= 0 {
		errs = append(errs, "ledger: request_timeout must be > 0")
	}
	if c.Ledger.RequestsPerSecond <= 0 {
		errs = append(errs, "ledger: requests_per_second must be > 0")
	}

	// Wallet
	if c.Wallet.KeyFile != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when key_file is set")
	}
	if c.Keeper.SubmitResolutions && c.Wallet.PrivateKey == "" && c.Wallet.KeyFile == "" {
		errs = append(errs, "wallet: a key is required when keeper.submit_resolutions is enabled")
	}

	// Commitment
	if c.Commitment.FeeBps > 10_000 {
		errs = append(errs, fmt.Sprintf("commitment: fee_bps must be <= 10000, got %d", c.Commitment.FeeBps))
	}

	// Store
	if !validBackends[strings.ToLower(c.Store.Backend)] {
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: file, sqlite, leveldb, redis)", c.Store.Backend))
	}
	if c.Store.Backend != "redis" && c.Store.Path == "" {
		errs = append(errs, "store: path must not be empty")
	}
	if c.Store.Backend == "redis" && !c.Redis.Enabled {
		errs = append(errs, "store: backend redis requires redis.enabled")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
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
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" && c.S3.Region == "" {
			errs = append(errs, "s3: region is required when endpoint is empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Oracle
	if c.Oracle.HermesURL == "" {
		errs = append(errs, "oracle: hermes_url must not be empty")
	}
	for sym, id := range c.Oracle.Feeds {
		if !strings.HasPrefix(id, "0x") || len(id) != 66 {
			errs = append(errs, fmt.Sprintf("oracle: feed %s has malformed id %q", sym, id))
		}
	}

	// Photon
	if c.Photon.Enabled && c.Photon.APIKey == "" {
		errs = append(errs, "photon: api_key is required when enabled")
	}

	// Poll
	for name, d := range map[string]duration{
		"market": c.Poll.Market, "markets": c.Poll.Markets,
		"user_stats": c.Poll.UserStats, "price": c.Poll.Price,
	} {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("poll: %s interval must be > 0", name))
		}
	}
	if c.Poll.Jitter < 0 || c.Poll.Jitter >= 1 {
		errs = append(errs, fmt.Sprintf("poll: jitter must be in [0, 1), got %g", c.Poll.Jitter))
	}

	// Keeper
	if c.Mode == "keeper" || c.Mode == "full" {
		if c.Keeper.RetentionDays < 1 {
			errs = append(errs, "keeper: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// KeyConfigured reports whether a wallet key source is set.
func (c *Config) KeyConfigured() bool {
	return c.Wallet.PrivateKey != "" || c.Wallet.KeyFile != ""
}
