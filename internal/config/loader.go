package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SHUTTLE_* environment variable overrides, and
// returns the final Config. A missing file is not an error: the service can be
// configured from the environment alone. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known environment variables and overwrites the
// corresponding Config fields when a variable is set. Legacy unprefixed names
// are read first so that SHUTTLE_* always wins.
func applyEnvOverrides(cfg *Config) {
	applyLegacyEnv(cfg)

	// ── Server ──
	setInt(&cfg.Server.Port, "SHUTTLE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SHUTTLE_SERVER_CORS_ORIGINS")
	setInt64(&cfg.Server.MaxBodyBytes, "SHUTTLE_SERVER_MAX_BODY_BYTES")
	setBool(&cfg.Server.EnableWS, "SHUTTLE_SERVER_ENABLE_WS")
	setBool(&cfg.Server.EnableMetrics, "SHUTTLE_SERVER_ENABLE_METRICS")
	setStr(&cfg.Server.APIKey, "SHUTTLE_SERVER_API_KEY")

	// ── Rate limit ──
	setBool(&cfg.RateLimit.Enabled, "SHUTTLE_RATE_LIMIT_ENABLED")
	setInt(&cfg.RateLimit.Max, "SHUTTLE_RATE_LIMIT_MAX")
	setDuration(&cfg.RateLimit.Window, "SHUTTLE_RATE_LIMIT_WINDOW")
	setStr(&cfg.RateLimit.Scope, "SHUTTLE_RATE_LIMIT_SCOPE")

	// ── Bridge ──
	setStr(&cfg.Bridge.BaseURL, "SHUTTLE_BRIDGE_BASE_URL")
	setStr(&cfg.Bridge.APIKey, "SHUTTLE_BRIDGE_API_KEY")
	setBool(&cfg.Bridge.Simulate, "SHUTTLE_BRIDGE_SIMULATE")
	setDuration(&cfg.Bridge.Timeout, "SHUTTLE_BRIDGE_TIMEOUT")

	// ── Starknet ──
	setStr(&cfg.Starknet.RPCURL, "SHUTTLE_STARKNET_RPC_URL")
	setStr(&cfg.Starknet.ContractAddress, "SHUTTLE_STARKNET_CONTRACT_ADDRESS")
	setStr(&cfg.Starknet.AccountAddress, "SHUTTLE_STARKNET_ACCOUNT_ADDRESS")
	setDuration(&cfg.Starknet.PollMaxWait, "SHUTTLE_STARKNET_POLL_MAX_WAIT")
	setDuration(&cfg.Starknet.PollInterval, "SHUTTLE_STARKNET_POLL_INTERVAL")
	setFloat64(&cfg.Starknet.MaxFeeMultiple, "SHUTTLE_STARKNET_MAX_FEE_MULTIPLE")
	setStr(&cfg.Starknet.DepositEntry, "SHUTTLE_STARKNET_DEPOSIT_ENTRYPOINT")
	setDuration(&cfg.Starknet.TxReplayWindow, "SHUTTLE_STARKNET_TX_REPLAY_WINDOW")

	// ── Signer ──
	setStr(&cfg.Signer.URL, "SHUTTLE_SIGNER_URL")
	setStr(&cfg.Signer.KeyID, "SHUTTLE_SIGNER_KEY_ID")
	setStr(&cfg.Signer.Secret, "SHUTTLE_SIGNER_SECRET")
	setStr(&cfg.Signer.PrivateKey, "SHUTTLE_SIGNER_PRIVATE_KEY")
	setStr(&cfg.Signer.EncryptedKeyPath, "SHUTTLE_SIGNER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Signer.KeyPassword, "SHUTTLE_SIGNER_KEY_PASSWORD")

	// ── Pricing ──
	setFloat64(&cfg.Pricing.MarginBps, "SHUTTLE_PRICING_MARGIN_BPS")
	setFloat64(&cfg.Pricing.BatchDiscountBps, "SHUTTLE_PRICING_BATCH_DISCOUNT_BPS")
	setFloat64(&cfg.Pricing.MinDeposit, "SHUTTLE_PRICING_MIN_DEPOSIT")
	setBool(&cfg.Pricing.FloorTotalFee, "SHUTTLE_PRICING_FLOOR_TOTAL_FEE")
	setStr(&cfg.Pricing.DefaultToken, "SHUTTLE_PRICING_DEFAULT_TOKEN")
	setStr(&cfg.Pricing.PriceFeedURL, "SHUTTLE_PRICING_PRICE_FEED_URL")
	setDuration(&cfg.Pricing.PriceTTL, "SHUTTLE_PRICING_PRICE_TTL")

	// ── Compliance ──
	setStringSlice(&cfg.Compliance.AllowedCountries, "SHUTTLE_COMPLIANCE_ALLOWED_COUNTRIES")
	setStringSlice(&cfg.Compliance.Denylist, "SHUTTLE_COMPLIANCE_DENYLIST")
	setStringSlice(&cfg.Compliance.Allowlist, "SHUTTLE_COMPLIANCE_ALLOWLIST")
	setBool(&cfg.Compliance.ValidateAddrs, "SHUTTLE_COMPLIANCE_VALIDATE_ADDRESSES")
	setStr(&cfg.Compliance.BTCNetwork, "SHUTTLE_COMPLIANCE_BTC_NETWORK")

	// ── APY ──
	setStr(&cfg.APY.URL, "SHUTTLE_APY_URL")
	setFloat64(&cfg.APY.Default, "SHUTTLE_APY_DEFAULT")

	// ── History ──
	setStr(&cfg.History.Backend, "SHUTTLE_HISTORY_BACKEND")
	setInt(&cfg.History.Capacity, "SHUTTLE_HISTORY_CAPACITY")
	setBool(&cfg.History.Archive, "SHUTTLE_HISTORY_ARCHIVE")
	setDuration(&cfg.History.ArchiveInterval, "SHUTTLE_HISTORY_ARCHIVE_INTERVAL")

	// ── Quote log ──
	setStr(&cfg.QuoteLog.Dir, "SHUTTLE_QUOTE_LOG_DIR")
	setInt(&cfg.QuoteLog.Buffer, "SHUTTLE_QUOTE_LOG_BUFFER")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SHUTTLE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SHUTTLE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SHUTTLE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SHUTTLE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SHUTTLE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SHUTTLE_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "SHUTTLE_REDIS_NAMESPACE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SHUTTLE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SHUTTLE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SHUTTLE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SHUTTLE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SHUTTLE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SHUTTLE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SHUTTLE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SHUTTLE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SHUTTLE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SHUTTLE_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SHUTTLE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SHUTTLE_S3_REGION")
	setStr(&cfg.S3.Bucket, "SHUTTLE_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "SHUTTLE_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "SHUTTLE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SHUTTLE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SHUTTLE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SHUTTLE_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SHUTTLE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SHUTTLE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SHUTTLE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SHUTTLE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SHUTTLE_MODE")
	setStr(&cfg.LogLevel, "SHUTTLE_LOG_LEVEL")
}

// applyLegacyEnv maps the variable names used by the first version of the
// backend, so existing .env files keep working.
func applyLegacyEnv(cfg *Config) {
	setStr(&cfg.Bridge.BaseURL, "ATOMIQ_BASE_URL")
	setStr(&cfg.Bridge.APIKey, "ATOMIQ_API_KEY")
	setBool(&cfg.Bridge.Simulate, "BRIDGE_SIMULATE")
	setFloat64(&cfg.Pricing.MarginBps, "MARGIN_BPS")
	setFloat64(&cfg.Pricing.MinDeposit, "MIN_DEPOSIT")
	setFloat64(&cfg.Pricing.BatchDiscountBps, "BATCH_DISCOUNT_BPS")
	setStringSlice(&cfg.Compliance.AllowedCountries, "ALLOWED_COUNTRIES")
	setStr(&cfg.Starknet.ContractAddress, "CONTRACT_ADDRESS")
	setStr(&cfg.Starknet.RPCURL, "STARKNET_RPC_URL")
	setStr(&cfg.Starknet.AccountAddress, "STARKNET_ACCOUNT_ADDRESS")
	setStr(&cfg.Signer.PrivateKey, "STARKNET_PRIVATE_KEY")
	setStr(&cfg.APY.URL, "PROTOCOL_APY_URL")
	setInt(&cfg.Server.Port, "PORT")

	if v := os.Getenv("OWNER_MODE"); v != "" {
		if owner, err := strconv.ParseBool(v); err == nil {
			cfg.Mode = "non_custodial"
			if owner {
				cfg.Mode = "owner"
			}
		}
	}
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
