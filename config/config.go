package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete bot configuration.
type Config struct {
	Chain       ChainConfig       `yaml:"chain"`
	Wallet      WalletConfig      `yaml:"wallet"`
	Relay       RelayConfig       `yaml:"relay"`
	Liquidation LiquidationConfig `yaml:"liquidation"`
	Contracts   ContractsConfig   `yaml:"contracts"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// ChainConfig points at the Ethereum node.
type ChainConfig struct {
	HTTPRPCURL          string `yaml:"http_rpc_url"`
	WSRPCURL            string `yaml:"ws_rpc_url"` // optional, enables new head subscriptions
	ChainID             int64  `yaml:"chain_id"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"` // used without ws_rpc_url
}

// WalletConfig holds the keys. Prefer LIQBOT_WALLET_KEY / LIQBOT_BUNDLE_KEY over the YAML file.
type WalletConfig struct {
	// WalletKey signs liquidations. Empty runs the bot in read-only mode.
	WalletKey string `yaml:"wallet_key"`
	// BundleKey is the relay searcher identity. It holds no funds.
	BundleKey string `yaml:"bundle_key"`
}

// RelayConfig enables private bundle submission through an executor contract.
type RelayConfig struct {
	RelayURL        string   `yaml:"relay_url"`
	ExecutorAddress string   `yaml:"executor_address"` // empty = broadcast directly
	MinerCutRate    *float64 `yaml:"miner_cut_rate"`   // share of the ETH compensation paid to the block producer
}

// LiquidationConfig tunes each attempt.
type LiquidationConfig struct {
	MaxPriorityFeePerGas *uint64 `yaml:"max_priority_fee_per_gas"` // wei; nil = executor default
	MaxTrovesToLiquidate int     `yaml:"max_troves_to_liquidate"`
	CandidateCount       int     `yaml:"candidate_count"`
}

// ContractsConfig holds the protocol deployment.
type ContractsConfig struct {
	TroveManager     string `yaml:"trove_manager"`
	MultiTroveGetter string `yaml:"multi_trove_getter"`
	PriceFeed        string `yaml:"price_feed"`
	StabilityPool    string `yaml:"stability_pool"`
	LUSDToken        string `yaml:"lusd_token"`
}

// StorageConfig controls the attempt journal.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file, ":memory:", or empty to disable
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"` // host:port, empty to disable
}

// LogConfig controls log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file at path, after loading .env if present. Environment variables
// override the file. The result is validated.
func Load(path string) (*Config, error) {
	// Missing .env is fine
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// PollInterval returns the block polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Chain.PollIntervalSeconds) * time.Second
}

// MaxPriorityFeePerGas returns the configured tip, or nil to use the executor default.
func (c *Config) MaxPriorityFeePerGas() *big.Int {
	if c.Liquidation.MaxPriorityFeePerGas == nil {
		return nil
	}
	return new(big.Int).SetUint64(*c.Liquidation.MaxPriorityFeePerGas)
}

// ReadOnly returns true when no wallet key is configured.
func (c *Config) ReadOnly() bool {
	return c.Wallet.WalletKey == ""
}

// Validate checks the configuration for errors that would only surface mid-run.
func (c *Config) Validate() error {
	var errs []error

	if c.Chain.HTTPRPCURL == "" {
		errs = append(errs, errors.New("chain.http_rpc_url is required"))
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, errors.New("chain.chain_id must be positive"))
	}

	required := []struct {
		name, value string
	}{
		{"contracts.trove_manager", c.Contracts.TroveManager},
		{"contracts.multi_trove_getter", c.Contracts.MultiTroveGetter},
		{"contracts.price_feed", c.Contracts.PriceFeed},
		{"contracts.stability_pool", c.Contracts.StabilityPool},
	}
	for _, r := range required {
		if !common.IsHexAddress(r.value) {
			errs = append(errs, fmt.Errorf("%s: invalid address %q", r.name, r.value))
		}
	}

	if c.Relay.ExecutorAddress != "" {
		if !common.IsHexAddress(c.Relay.ExecutorAddress) {
			errs = append(errs, fmt.Errorf("relay.executor_address: invalid address %q", c.Relay.ExecutorAddress))
		}
		if !common.IsHexAddress(c.Contracts.LUSDToken) {
			errs = append(errs, fmt.Errorf("contracts.lusd_token: invalid address %q (needed by the executor)", c.Contracts.LUSDToken))
		}
		if c.Wallet.WalletKey != "" && c.Wallet.BundleKey == "" {
			errs = append(errs, errors.New("wallet.bundle_key is required with relay.executor_address"))
		}
	}

	if r := c.Relay.MinerCutRate; r != nil && (*r < 0 || *r > 1) {
		errs = append(errs, fmt.Errorf("relay.miner_cut_rate must be between 0 and 1, got %v", *r))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

// applyEnvOverrides overrides values with environment variables when set.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"LIQBOT_WALLET_KEY", &cfg.Wallet.WalletKey},
		{"LIQBOT_BUNDLE_KEY", &cfg.Wallet.BundleKey},
		{"LIQBOT_HTTP_RPC_URL", &cfg.Chain.HTTPRPCURL},
		{"LIQBOT_WS_RPC_URL", &cfg.Chain.WSRPCURL},
		{"LIQBOT_RELAY_URL", &cfg.Relay.RelayURL},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.dst = v
		}
	}
}

// setDefaults fills in optional values.
func setDefaults(cfg *Config) {
	if cfg.Chain.ChainID == 0 {
		cfg.Chain.ChainID = 1
	}
	if cfg.Chain.PollIntervalSeconds <= 0 {
		cfg.Chain.PollIntervalSeconds = 12
	}
	if cfg.Liquidation.MaxTrovesToLiquidate <= 0 {
		cfg.Liquidation.MaxTrovesToLiquidate = 10
	}
	if cfg.Liquidation.CandidateCount <= 0 {
		cfg.Liquidation.CandidateCount = 1000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
