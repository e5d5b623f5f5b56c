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
// built-in defaults, applies DARKPOOL_* environment variable overrides, and
// returns the final Config. A missing file is an error unless optional is
// set, in which case defaults plus environment are used. The returned Config
// has NOT been validated.
func Load(path string, optional bool) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist) && optional:
		case err != nil:
			return nil, err
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DARKPOOL_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.NodeURL, "DARKPOOL_LEDGER_NODE_URL")
	setStr(&cfg.Ledger.NodeURL, "NEXT_PUBLIC_NODE_URL") // compatibility alias
	setStr(&cfg.Ledger.ContractAddress, "DARKPOOL_LEDGER_CONTRACT_ADDRESS")
	setStr(&cfg.Ledger.ContractAddress, "NEXT_PUBLIC_CONTRACT_ADDRESS") // compatibility alias
	setStr(&cfg.Ledger.ModuleName, "DARKPOOL_LEDGER_MODULE_NAME")
	setStr(&cfg.Ledger.ViewModule, "DARKPOOL_LEDGER_VIEW_MODULE")
	setDuration(&cfg.Ledger.RequestTimeout, "DARKPOOL_LEDGER_REQUEST_TIMEOUT")
	setFloat64(&cfg.Ledger.RequestsPerSecond, "DARKPOOL_LEDGER_REQUESTS_PER_SECOND")
	setUint64(&cfg.Ledger.MaxGasAmount, "DARKPOOL_LEDGER_MAX_GAS_AMOUNT")
	setUint64(&cfg.Ledger.GasUnitPrice, "DARKPOOL_LEDGER_GAS_UNIT_PRICE")
	setBool(&cfg.Ledger.WaitForTx, "DARKPOOL_LEDGER_WAIT_FOR_TX")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "DARKPOOL_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.KeyFile, "DARKPOOL_WALLET_KEY_FILE")
	setStr(&cfg.Wallet.KeyPassword, "DARKPOOL_WALLET_KEY_PASSWORD")

	// ── Commitment ──
	setUint64(&cfg.Commitment.FeeBps, "DARKPOOL_COMMITMENT_FEE_BPS")
	setBool(&cfg.Commitment.VerifyBeforeReveal, "DARKPOOL_COMMITMENT_VERIFY_BEFORE_REVEAL")

	// ── Store ──
	setStr(&cfg.Store.Backend, "DARKPOOL_STORE_BACKEND")
	setStr(&cfg.Store.Path, "DARKPOOL_STORE_PATH")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "DARKPOOL_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DARKPOOL_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "DARKPOOL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DARKPOOL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DARKPOOL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DARKPOOL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DARKPOOL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DARKPOOL_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DARKPOOL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DARKPOOL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DARKPOOL_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DARKPOOL_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DARKPOOL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DARKPOOL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DARKPOOL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DARKPOOL_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "DARKPOOL_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "DARKPOOL_REDIS_NAMESPACE")
	setDuration(&cfg.Redis.MarketTTL, "DARKPOOL_REDIS_MARKET_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DARKPOOL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DARKPOOL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DARKPOOL_S3_REGION")
	setStr(&cfg.S3.Bucket, "DARKPOOL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DARKPOOL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DARKPOOL_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "DARKPOOL_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.HermesURL, "DARKPOOL_ORACLE_HERMES_URL")

	// ── Photon ──
	setBool(&cfg.Photon.Enabled, "DARKPOOL_PHOTON_ENABLED")
	setStr(&cfg.Photon.BaseURL, "DARKPOOL_PHOTON_BASE_URL")
	setStr(&cfg.Photon.APIKey, "DARKPOOL_PHOTON_API_KEY")
	setStr(&cfg.Photon.APIKey, "NEXT_PUBLIC_PHOTON_API_KEY") // compatibility alias
	setStr(&cfg.Photon.RewardedCampaignID, "DARKPOOL_PHOTON_REWARDED_CAMPAIGN_ID")
	setStr(&cfg.Photon.UnrewardedCampaignID, "DARKPOOL_PHOTON_UNREWARDED_CAMPAIGN_ID")

	// ── Poll ──
	setDuration(&cfg.Poll.Market, "DARKPOOL_POLL_MARKET")
	setDuration(&cfg.Poll.Markets, "DARKPOOL_POLL_MARKETS")
	setDuration(&cfg.Poll.UserStats, "DARKPOOL_POLL_USER_STATS")
	setDuration(&cfg.Poll.Price, "DARKPOOL_POLL_PRICE")
	setFloat64(&cfg.Poll.Jitter, "DARKPOOL_POLL_JITTER")

	// ── Markets / Keeper ──
	setUint64Slice(&cfg.Markets.Watch, "DARKPOOL_MARKETS_WATCH")
	setStr(&cfg.Keeper.RulesFile, "DARKPOOL_KEEPER_RULES_FILE")
	setBool(&cfg.Keeper.SubmitResolutions, "DARKPOOL_KEEPER_SUBMIT_RESOLUTIONS")
	setInt(&cfg.Keeper.RetentionDays, "DARKPOOL_KEEPER_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DARKPOOL_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DARKPOOL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DARKPOOL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DARKPOOL_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "DARKPOOL_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DARKPOOL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DARKPOOL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DARKPOOL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DARKPOOL_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DARKPOOL_MODE")
	setStr(&cfg.LogLevel, "DARKPOOL_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		if cleaned := splitList(v); len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

func setUint64Slice(dst *[]uint64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []uint64
	for _, p := range splitList(v) {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return
		}
		out = append(out, n)
	}
	if len(out) > 0 {
		*dst = out
	}
}
