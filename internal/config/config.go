// Package config defines the top-level configuration for the shuttle bridge
// API and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SHUTTLE_* environment variables. It
// is built once at start and treated as immutable afterwards.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	Bridge     BridgeConfig     `toml:"bridge"`
	Starknet   StarknetConfig   `toml:"starknet"`
	Signer     SignerConfig     `toml:"signer"`
	Pricing    PricingConfig    `toml:"pricing"`
	Compliance ComplianceConfig `toml:"compliance"`
	APY        APYConfig        `toml:"apy"`
	History    HistoryConfig    `toml:"history"`
	QuoteLog   QuoteLogConfig   `toml:"quote_log"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	MaxBodyBytes   int64    `toml:"max_body_bytes"`
	EnableWS       bool     `toml:"enable_ws"`
	EnableMetrics  bool     `toml:"enable_metrics"`
	ShutdownPeriod duration `toml:"shutdown_period"`
	// APIKey, when set, is required on POST /deposit and /withdraw.
	APIKey string `toml:"api_key"`
}

// RateLimitConfig configures the coarse inbound request limiter.
type RateLimitConfig struct {
	Enabled bool     `toml:"enabled"`
	Max     int      `toml:"max"`
	Window  duration `toml:"window"`
	// Scope is "global" (one process-wide counter) or "ip".
	Scope string `toml:"scope"`
}

// BridgeConfig holds the bridge partner (Atomiq) endpoint.
type BridgeConfig struct {
	BaseURL  string   `toml:"base_url"`
	APIKey   string   `toml:"api_key"`
	Simulate bool     `toml:"simulate"`
	Timeout  duration `toml:"timeout"`
}

// Live reports whether partner calls go over the network.
func (b BridgeConfig) Live() bool {
	return !b.Simulate && strings.TrimSpace(b.BaseURL) != ""
}

// StarknetConfig holds the vault contract and node parameters.
type StarknetConfig struct {
	RPCURL          string   `toml:"rpc_url"`
	ContractAddress string   `toml:"contract_address"`
	AccountAddress  string   `toml:"account_address"`
	PollMaxWait     duration `toml:"poll_max_wait"`
	PollInterval    duration `toml:"poll_interval"`
	MaxFeeMultiple  float64  `toml:"max_fee_multiple"`
	DepositEntry    string   `toml:"deposit_entrypoint"`
	// TxReplayWindow is how long a non-custodial withdraw hash stays used.
	TxReplayWindow duration `toml:"tx_replay_window"`
}

// ReadConfigured reports whether balance reads are possible.
func (s StarknetConfig) ReadConfigured() bool {
	return s.RPCURL != "" && s.ContractAddress != ""
}

// SignerConfig locates the owner hot key. With URL empty the backend signs
// in process with PrivateKey, or with the key decrypted from
// EncryptedKeyPath. With URL set the key is held by a remote signer and the
// backend authenticates to it with an HMAC secret (Secret or
// EncryptedKeyPath).
type SignerConfig struct {
	URL              string `toml:"url"`
	KeyID            string `toml:"key_id"`
	Secret           string `toml:"secret"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// Local reports whether owner transactions are signed in process.
func (s SignerConfig) Local() bool {
	return s.URL == "" && (s.PrivateKey != "" || s.EncryptedKeyPath != "")
}

// Remote reports whether owner transactions are signed by the remote signer.
func (s SignerConfig) Remote() bool {
	return s.URL != "" && (s.Secret != "" || s.EncryptedKeyPath != "")
}

// Configured reports whether any signer credential source is present.
func (s SignerConfig) Configured() bool {
	return s.Local() || s.Remote()
}

// PricingConfig holds quote parameters.
type PricingConfig struct {
	MarginBps          float64  `toml:"margin_bps"`
	BatchDiscountBps   float64  `toml:"batch_discount_bps"`
	MinDeposit         float64  `toml:"min_deposit"`
	DefaultBTCL1Fee    float64  `toml:"default_btc_l1_fee"`
	DefaultStarknetFee float64  `toml:"default_starknet_fee"`
	EtaSeconds         int      `toml:"eta_seconds"`
	BatchEtaSeconds    int      `toml:"batch_eta_seconds"`
	FloorTotalFee      bool     `toml:"floor_total_fee"`
	DefaultToken       string   `toml:"default_token"`
	PriceFeedURL       string   `toml:"price_feed_url"`
	PriceTTL           duration `toml:"price_ttl"`
}

// ComplianceConfig holds preflight lists.
type ComplianceConfig struct {
	AllowedCountries []string `toml:"allowed_countries"`
	Denylist         []string `toml:"denylist"`
	Allowlist        []string `toml:"allowlist"`
	ValidateAddrs    bool     `toml:"validate_addresses"`
	BTCNetwork       string   `toml:"btc_network"`
}

// APYConfig points at an optional external yield source.
type APYConfig struct {
	URL     string  `toml:"url"`
	Default float64 `toml:"default"`
}

// HistoryConfig selects and sizes the history store.
type HistoryConfig struct {
	// Backend is "memory" or "postgres".
	Backend         string   `toml:"backend"`
	Capacity        int      `toml:"capacity"`
	Archive         bool     `toml:"archive"`
	ArchiveInterval duration `toml:"archive_interval"`
	ArchiveBatch    int      `toml:"archive_batch"`
}

// QuoteLogConfig configures the best-effort quote telemetry sink.
type QuoteLogConfig struct {
	Dir    string `toml:"dir"`
	Buffer int    `toml:"buffer"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables Redis.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Namespace  string `toml:"namespace"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
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

// Defaults returns a Config populated with the values the service ships with.
// They match config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           4000,
			MaxBodyBytes:   1 << 20,
			EnableWS:       true,
			EnableMetrics:  true,
			ShutdownPeriod: duration{10 * time.Second},
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Max:     60,
			Window:  duration{time.Minute},
			Scope:   "global",
		},
		Bridge: BridgeConfig{
			Timeout: duration{15 * time.Second},
		},
		Starknet: StarknetConfig{
			RPCURL:         "https://starknet-mainnet.public.blastapi.io/rpc/v0_7",
			PollMaxWait:    duration{120 * time.Second},
			PollInterval:   duration{3 * time.Second},
			MaxFeeMultiple: 1.5,
			DepositEntry:   "deposit_btc",
			TxReplayWindow: duration{24 * time.Hour},
		},
		Pricing: PricingConfig{
			MarginBps:          50,
			BatchDiscountBps:   10,
			MinDeposit:         0.001,
			DefaultBTCL1Fee:    0.0001,
			DefaultStarknetFee: 0.00002,
			EtaSeconds:         120,
			BatchEtaSeconds:    900,
			DefaultToken:       "WBTC",
			PriceTTL:           duration{time.Minute},
		},
		Compliance: ComplianceConfig{
			BTCNetwork: "mainnet",
		},
		APY: APYConfig{
			Default: 8.5,
		},
		History: HistoryConfig{
			Backend:         "memory",
			Capacity:        10_000,
			ArchiveInterval: duration{5 * time.Minute},
			ArchiveBatch:    500,
		},
		QuoteLog: QuoteLogConfig{
			Buffer: 256,
		},
		Redis: RedisConfig{
			PoolSize:   20,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "shuttle-history",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"deposit", "withdraw", "orchestration_failed"},
		},
		Mode:     "non_custodial",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"owner":         true,
	"non_custodial": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBTCNetworks = map[string]bool{
	"mainnet":  true,
	"testnet3": true,
	"testnet":  true,
	"regtest":  true,
	"signet":   true,
}

// OwnerMode reports whether the backend signs vault transactions itself.
func (c *Config) OwnerMode() bool {
	return c.Mode == "owner"
}

// Warnings lists settings that let the process start but will make some
// requests fail.
func (c *Config) Warnings() []string {
	var out []string
	if c.OwnerMode() {
		if c.Starknet.ContractAddress == "" || c.Starknet.AccountAddress == "" || !c.Signer.Configured() {
			out = append(out, "owner mode without starknet.contract_address, starknet.account_address and a signer: every deposit and withdraw will fail")
		}
	}
	if c.Bridge.Simulate {
		out = append(out, "bridge.simulate is on: partner calls are synthesised")
	}
	return out
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("mode %q is not one of owner, non_custodial", c.Mode))
	}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Max <= 0 {
			errs = append(errs, "rate_limit.max must be positive")
		}
		if c.RateLimit.Window.Duration <= 0 {
			errs = append(errs, "rate_limit.window must be positive")
		}
		if c.RateLimit.Scope != "global" && c.RateLimit.Scope != "ip" {
			errs = append(errs, fmt.Sprintf("rate_limit.scope %q is not one of global, ip", c.RateLimit.Scope))
		}
	}

	if c.Bridge.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.Bridge.BaseURL); err != nil {
			errs = append(errs, fmt.Sprintf("bridge.base_url: %v", err))
		}
	}

	if c.Pricing.MarginBps < 0 || c.Pricing.BatchDiscountBps < 0 {
		errs = append(errs, "pricing basis points must not be negative")
	}
	if c.Pricing.MinDeposit < 0 {
		errs = append(errs, "pricing.min_deposit must not be negative")
	}
	if c.Pricing.EtaSeconds <= 0 || c.Pricing.BatchEtaSeconds <= 0 {
		errs = append(errs, "pricing eta seconds must be positive")
	}

	if c.Compliance.ValidateAddrs && !validBTCNetworks[c.Compliance.BTCNetwork] {
		errs = append(errs, fmt.Sprintf("compliance.btc_network %q is not supported", c.Compliance.BTCNetwork))
	}

	if c.Starknet.PollInterval.Duration <= 0 || c.Starknet.PollMaxWait.Duration < 0 {
		errs = append(errs, "starknet poll interval must be positive")
	}

	switch c.History.Backend {
	case "memory":
		if c.History.Capacity <= 0 {
			errs = append(errs, "history.capacity must be positive")
		}
	case "postgres":
	default:
		errs = append(errs, fmt.Sprintf("history.backend %q is not one of memory, postgres", c.History.Backend))
	}
	if c.History.Archive && c.S3.Bucket == "" {
		errs = append(errs, "history.archive requires s3.bucket")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
