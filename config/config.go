package config

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvListen    = "ROLLUPMOCK_LISTEN"
	EnvChainURL  = "ROLLUPMOCK_CHAIN_URL"
	EnvSignerKey = "ROLLUPMOCK_SIGNER_KEY"
	EnvEnv       = "ROLLUPMOCK_ENV"
)

// Chain modes.
const (
	ChainModeEVM    = "evm"
	ChainModeStatic = "static"
)

// Defaults mirror the long-standing local test network layout.
const (
	DefaultListen         = ":3030"
	DefaultChainURL       = "http://127.0.0.1:8545"
	DefaultRollupContract = "0x94BA4d5Ebb0e05A50e977FFbF6e1a1Ee3D89299c"
	DefaultTokenAddress   = "0xFDFEF9D10d929cB3905C71400ce6be1990EA0F34"
	DefaultFaucetAmount   = "1000000000000000000000"
	DefaultDialAttempts   = 10
	DefaultDialInterval   = 3 * time.Second
)

// Config captures the runtime configuration of the mock.
type Config struct {
	Listen    string          `yaml:"listen" toml:"listen"`
	Env       string          `yaml:"env" toml:"env"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Chain     ChainConfig     `yaml:"chain" toml:"chain"`
	Tokens    []TokenConfig   `yaml:"tokens" toml:"tokens"`
	AccountID uint64          `yaml:"account_id" toml:"account_id"`
	Transfers TransferConfig  `yaml:"transfers" toml:"transfers"`
	Faucet    FaucetConfig    `yaml:"faucet" toml:"faucet"`
	Compat    CompatConfig    `yaml:"compat" toml:"compat"`
	CORS      CORSConfig      `yaml:"cors" toml:"cors"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// Load reads the file at path, decoding YAML or TOML by extension, applies
// defaults and environment overrides, and validates the result. An empty path
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path = strings.TrimSpace(path); path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	applyDefaults(&cfg)
	applyEnv(&cfg, os.Getenv)
	if err := cfg.Chain.normalise(); err != nil {
		return cfg, fmt.Errorf("chain signer: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("decode config: unknown key %s", undecoded[0].String())
		}
		return nil
	case ".yaml", ".yml", "":
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode config: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("config: unsupported file extension %q", filepath.Ext(path))
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultListen
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 28
	}

	c := &cfg.Chain
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = ChainModeEVM
	}
	if c.URL == "" {
		c.URL = DefaultChainURL
	}
	if c.RollupContract == "" {
		c.RollupContract = DefaultRollupContract
	}
	if c.TokenAddress == "" {
		c.TokenAddress = DefaultTokenAddress
	}
	if c.DialAttempts <= 0 {
		c.DialAttempts = DefaultDialAttempts
	}
	if c.DialInterval.Duration <= 0 {
		c.DialInterval.Duration = DefaultDialInterval
	}
	if c.StaticCustody == "" {
		c.StaticCustody = "0"
	}

	if len(cfg.Tokens) == 0 {
		cfg.Tokens = []TokenConfig{{Symbol: "GNT", ID: 16, Decimals: 18}}
	}
	if cfg.AccountID == 0 {
		cfg.AccountID = 1
	}
	if cfg.Transfers.Policy == "" {
		cfg.Transfers.Policy = "lenient"
	}
	if cfg.Faucet.Amount == "" {
		cfg.Faucet.Amount = DefaultFaucetAmount
	}
	if cfg.Faucet.RequestsPerMinute > 0 && cfg.Faucet.Burst <= 0 {
		cfg.Faucet.Burst = int(cfg.Faucet.RequestsPerMinute)
		if cfg.Faucet.Burst < 1 {
			cfg.Faucet.Burst = 1
		}
	}
	if cfg.Compat.ChangePubKeyFeeAlias == nil {
		enabled := true
		cfg.Compat.ChangePubKeyFeeAlias = &enabled
	}
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvListen)); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(getenv(EnvChainURL)); v != "" {
		cfg.Chain.URL = v
	}
	if v := strings.TrimSpace(getenv(EnvSignerKey)); v != "" {
		cfg.Chain.SignerKey = v
	}
	if v := strings.TrimSpace(getenv(EnvEnv)); v != "" {
		cfg.Env = v
	}
}

func (c *ChainConfig) normalise() error {
	c.SignerKey = strings.TrimSpace(c.SignerKey)
	c.SignerKeyEnv = strings.TrimSpace(c.SignerKeyEnv)
	if c.SignerKey != "" || c.SignerKeyEnv == "" {
		return nil
	}
	value := strings.TrimSpace(os.Getenv(c.SignerKeyEnv))
	if value == "" {
		return fmt.Errorf("signer_key_env %s is empty", c.SignerKeyEnv)
	}
	c.SignerKey = value
	return nil
}

// FaucetAmount parses the configured donation amount.
func (c Config) FaucetAmount() (*big.Int, error) {
	return parseAmount("faucet.amount", c.Faucet.Amount)
}

// StaticCustodyBalance parses the custody balance used in static chain mode.
func (c Config) StaticCustodyBalance() (*big.Int, error) {
	return parseAmount("chain.static_custody", c.Chain.StaticCustody)
}

// ChangePubKeyFeeAlias reports whether the legacy fee-quote alias is enabled.
func (c Config) ChangePubKeyFeeAlias() bool {
	return c.Compat.ChangePubKeyFeeAlias == nil || *c.Compat.ChangePubKeyFeeAlias
}

// TracesEnabled reports whether span export is on. It follows Enabled unless
// explicitly set.
func (t TelemetryConfig) TracesEnabled() bool {
	return t.Enabled && (t.Traces == nil || *t.Traces)
}

// MetricsEnabled reports whether OTLP metric export is on.
func (t TelemetryConfig) MetricsEnabled() bool {
	return t.Enabled && (t.Metrics == nil || *t.Metrics)
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	value, ok := new(big.Int).SetString(trimmed, 0)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%s: amount must not be negative", field)
	}
	return value, nil
}
