// Package config loads all configuration for the market maker. Config is
// loaded from a YAML file (default: configs/config.yaml) with most fields
// overridable via the environment variables named in this package's
// doc comments, matching the venue's own naming rather than a bot-specific
// prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure; most fields also have a named environment variable override
// (a few, such as the wallet's signature type, funder address and chain ID,
// are YAML-only).
type Config struct {
	DryRun  bool          `mapstructure:"dry_run"`
	Venue   VenueConfig   `mapstructure:"venue"`
	Wallet  WalletConfig  `mapstructure:"wallet"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Select  SelectConfig  `mapstructure:"selector"`
	Order   OrderConfig   `mapstructure:"order"`
	Period  PeriodConfig  `mapstructure:"periodic"`
	Logging LoggingConfig `mapstructure:"logging"`
	API     APIConfig     `mapstructure:"api"`
}

// VenueConfig holds venue endpoints and on-chain addresses.
// Env: RPC_URL, WSS_URL, WSS_USER_URL, EXCHANGE_ADDRESS, USDC_ADDRESS, POLY_PROXY_ADDRESS,
// GAMMA_BASE_URL.
type VenueConfig struct {
	RPCURL           string `mapstructure:"rpc_url"`
	CLOBBaseURL      string `mapstructure:"clob_base_url"`
	WSMarketURL      string `mapstructure:"wss_url"`
	WSUserURL        string `mapstructure:"wss_user_url"`
	ExchangeAddress  string `mapstructure:"exchange_address"`
	USDCAddress      string `mapstructure:"usdc_address"`
	ProxyAddress     string `mapstructure:"poly_proxy_address"`
	DirectoryBaseURL string `mapstructure:"gamma_base_url"`
}

// WalletConfig holds the signing credentials. PrivateKey signs L1 (EIP-712)
// auth and derives L2 API keys; the CLOB_API_* triplet is the L2 HMAC
// credential, either supplied directly or derived at startup.
// Env: PRIVATE_KEY, CLOB_API_KEY, CLOB_API_SECRET, CLOB_PASSPHRASE.
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	FunderAddress string `mapstructure:"funder_address"`
	ChainID       int    `mapstructure:"chain_id"`
	APIKey        string `mapstructure:"clob_api_key"`
	APISecret     string `mapstructure:"clob_api_secret"`
	Passphrase    string `mapstructure:"clob_passphrase"`
}

// RiskConfig sets the I2/I3 caps and order-sizing floors (spec section 4.5).
// Env: MAX_SHARES_PER_MARKET, MAX_USDC_PER_MARKET, MAX_NOTIONAL_AT_RISK_USDC,
// MIN_NOTIONAL_PER_ORDER_USDC, MIN_EXPECTED_PROFIT_USDC, MIN_SIZE_SHARES.
type RiskConfig struct {
	MaxSharesPerMarket    float64 `mapstructure:"max_shares_per_market"`
	MaxUSDCPerMarket      float64 `mapstructure:"max_usdc_per_market"`
	MaxNotionalAtRiskUSDC float64 `mapstructure:"max_notional_at_risk_usdc"`
	MinNotionalPerOrder   float64 `mapstructure:"min_notional_per_order_usdc"`
	MinExpectedProfit     float64 `mapstructure:"min_expected_profit_usdc"`
	MinSizeShares         float64 `mapstructure:"min_size_shares"`
}

// SelectConfig tunes the market selector (spec section 4.6).
// Env: MAX_MARKETS, MIN_SPREAD_CENTS, MAX_SPREAD_CENTS, MIN_VOLUME_24H_USD,
// MIN_DEPTH_TOP2_USD, HOURS_TO_CLOSE_MIN, MAX_MARKETS_PER_EVENT.
type SelectConfig struct {
	MaxMarkets        int     `mapstructure:"max_markets"`
	MinSpreadCents    float64 `mapstructure:"min_spread_cents"`
	MaxSpreadCents    float64 `mapstructure:"max_spread_cents"`
	MinVolume24hUSD   float64 `mapstructure:"min_volume_24h_usd"`
	MinDepthTop2USD   float64 `mapstructure:"min_depth_top2_usd"`
	HoursToCloseMin   float64 `mapstructure:"hours_to_close_min"`
	MaxMarketsPerEvent int    `mapstructure:"max_markets_per_event"`
}

// OrderConfig tunes the order manager's replace/chase dynamics (spec section 4.4).
// Env: ORDER_TTL_MS, REPLACE_PRICE_TICKS, ASK_CHASE_WINDOW_SEC, ASK_CHASE_MAX_REPLACES.
type OrderConfig struct {
	TTL               time.Duration `mapstructure:"order_ttl_ms"`
	ReplacePriceTicks int           `mapstructure:"replace_price_ticks"`
	AskChaseWindow    time.Duration `mapstructure:"ask_chase_window_sec"`
	AskChaseMaxReplace int          `mapstructure:"ask_chase_max_replaces"`
}

// PeriodConfig sets the orchestrator's periodic task cadences (spec section 4.7/6).
// Env: RECONCILE_INTERVAL_MS, METRICS_LOG_INTERVAL_MS.
type PeriodConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval_ms"`
	MetricsInterval   time.Duration `mapstructure:"metrics_log_interval_ms"`
}

// LoggingConfig controls slog's handler. Env: LOG_LEVEL.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig controls the ambient health/metrics HTTP surface.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file and applies every environment variable
// named in spec section 6 as an override, exactly as the named table
// prescribes (no bot-specific prefix).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	strVar(&cfg.Venue.RPCURL, "RPC_URL")
	strVar(&cfg.Venue.WSMarketURL, "WSS_URL")
	strVar(&cfg.Venue.WSUserURL, "WSS_USER_URL")
	strVar(&cfg.Venue.ExchangeAddress, "EXCHANGE_ADDRESS")
	strVar(&cfg.Venue.USDCAddress, "USDC_ADDRESS")
	strVar(&cfg.Venue.ProxyAddress, "POLY_PROXY_ADDRESS")
	strVar(&cfg.Venue.DirectoryBaseURL, "GAMMA_BASE_URL")

	strVar(&cfg.Wallet.PrivateKey, "PRIVATE_KEY")
	strVar(&cfg.Wallet.APIKey, "CLOB_API_KEY")
	strVar(&cfg.Wallet.APISecret, "CLOB_API_SECRET")
	strVar(&cfg.Wallet.Passphrase, "CLOB_PASSPHRASE")

	strVar(&cfg.Logging.Level, "LOG_LEVEL")
	boolVar(&cfg.DryRun, "DRY_RUN")

	intVar(&cfg.Select.MaxMarkets, "MAX_MARKETS")
	floatVar(&cfg.Select.MinSpreadCents, "MIN_SPREAD_CENTS")
	floatVar(&cfg.Select.MaxSpreadCents, "MAX_SPREAD_CENTS")
	floatVar(&cfg.Select.MinVolume24hUSD, "MIN_VOLUME_24H_USD")
	floatVar(&cfg.Select.MinDepthTop2USD, "MIN_DEPTH_TOP2_USD")
	floatVar(&cfg.Select.HoursToCloseMin, "HOURS_TO_CLOSE_MIN")
	intVar(&cfg.Select.MaxMarketsPerEvent, "MAX_MARKETS_PER_EVENT")

	floatVar(&cfg.Risk.MinNotionalPerOrder, "MIN_NOTIONAL_PER_ORDER_USDC")
	floatVar(&cfg.Risk.MinExpectedProfit, "MIN_EXPECTED_PROFIT_USDC")
	floatVar(&cfg.Risk.MinSizeShares, "MIN_SIZE_SHARES")
	floatVar(&cfg.Risk.MaxSharesPerMarket, "MAX_SHARES_PER_MARKET")
	floatVar(&cfg.Risk.MaxUSDCPerMarket, "MAX_USDC_PER_MARKET")
	floatVar(&cfg.Risk.MaxNotionalAtRiskUSDC, "MAX_NOTIONAL_AT_RISK_USDC")

	durMsVar(&cfg.Order.TTL, "ORDER_TTL_MS")
	intVar(&cfg.Order.ReplacePriceTicks, "REPLACE_PRICE_TICKS")
	durSecVar(&cfg.Order.AskChaseWindow, "ASK_CHASE_WINDOW_SEC")
	intVar(&cfg.Order.AskChaseMaxReplace, "ASK_CHASE_MAX_REPLACES")

	durMsVar(&cfg.Period.ReconcileInterval, "RECONCILE_INTERVAL_MS")
	durMsVar(&cfg.Period.MetricsInterval, "METRICS_LOG_INTERVAL_MS")
}

func strVar(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func boolVar(dst *bool, env string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	*dst = v == "true" || v == "1"
}

func intVar(dst *int, env string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func floatVar(dst *float64, env string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = f
	}
}

func durMsVar(dst *time.Duration, env string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = time.Duration(n) * time.Millisecond
	}
}

func durSecVar(dst *time.Duration, env string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = time.Duration(n) * time.Second
	}
}

// ConfigError is returned by Validate for a missing credential or an
// out-of-range numeric setting. Fatal at startup per spec section 7.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Reason)
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return &ConfigError{Reason: "wallet.private_key is required (set PRIVATE_KEY)"}
	}
	if c.Wallet.ChainID == 0 {
		return &ConfigError{Reason: "wallet.chain_id is required (137 for mainnet)"}
	}
	switch c.Wallet.SignatureType {
	case 0, 1, 2:
	default:
		return &ConfigError{Reason: "wallet.signature_type must be one of: 0 (EOA), 1 (POLY_PROXY), 2 (GNOSIS_SAFE)"}
	}
	if c.Wallet.SignatureType != 0 && c.Wallet.FunderAddress == "" {
		return &ConfigError{Reason: "wallet.funder_address is required when wallet.signature_type is 1 or 2"}
	}
	if c.Venue.CLOBBaseURL == "" {
		return &ConfigError{Reason: "venue.clob_base_url is required"}
	}
	if c.Risk.MaxSharesPerMarket <= 0 {
		return &ConfigError{Reason: "risk.max_shares_per_market must be > 0"}
	}
	if c.Risk.MaxUSDCPerMarket <= 0 {
		return &ConfigError{Reason: "risk.max_usdc_per_market must be > 0"}
	}
	if c.Risk.MaxNotionalAtRiskUSDC <= 0 {
		return &ConfigError{Reason: "risk.max_notional_at_risk_usdc must be > 0"}
	}
	if c.Select.MaxMarkets <= 0 {
		return &ConfigError{Reason: "selector.max_markets must be > 0"}
	}
	if c.Select.MaxMarketsPerEvent <= 0 {
		return &ConfigError{Reason: "selector.max_markets_per_event must be > 0"}
	}
	if c.Order.TTL <= 0 {
		return &ConfigError{Reason: "order.order_ttl_ms must be > 0"}
	}
	return nil
}
