package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rollupmock/observability/logging"
)

// Duration wraps time.Duration so both YAML and TOML files can use human
// readable strings such as "3s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LogConfig controls log output.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// ChainConfig selects and parameterises the chain backend.
type ChainConfig struct {
	Mode           string   `yaml:"mode" toml:"mode"`
	URL            string   `yaml:"url" toml:"url"`
	RollupContract string   `yaml:"rollup_contract" toml:"rollup_contract"`
	GovContract    string   `yaml:"gov_contract" toml:"gov_contract"`
	TokenAddress   string   `yaml:"token_address" toml:"token_address"`
	Sender         string   `yaml:"sender" toml:"sender"`
	SignerKey      string   `yaml:"signer_key" toml:"signer_key"`
	SignerKeyEnv   string   `yaml:"signer_key_env" toml:"signer_key_env"`
	ChainID        uint64   `yaml:"chain_id" toml:"chain_id"`
	DialAttempts   int      `yaml:"dial_attempts" toml:"dial_attempts"`
	DialInterval   Duration `yaml:"dial_interval" toml:"dial_interval"`
	StaticCustody  string   `yaml:"static_custody" toml:"static_custody"`
}

// LogValue renders the chain section for startup logs with the signer key
// masked.
func (c ChainConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("mode", c.Mode),
		slog.String("url", c.URL),
		slog.String("rollup_contract", c.RollupContract),
		slog.String("token_address", c.TokenAddress),
		slog.String("sender", c.Sender),
		logging.MaskField("signer_key", c.SignerKey),
		slog.String("signer_key_env", c.SignerKeyEnv),
		slog.Uint64("chain_id", c.ChainID),
		slog.Int("dial_attempts", c.DialAttempts),
		slog.Duration("dial_interval", c.DialInterval.Duration),
	)
}

// CORSConfig lists the browser origins allowed to call the mock. An empty
// origin list allows any origin.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedHeaders   []string `yaml:"allowed_headers" toml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials" toml:"allow_credentials"`
}

// TokenConfig is one alias of the tracked token.
type TokenConfig struct {
	Symbol   string `yaml:"symbol" toml:"symbol"`
	ID       uint32 `yaml:"id" toml:"id"`
	Decimals uint8  `yaml:"decimals" toml:"decimals"`
}

// TransferConfig selects the transfer policy.
type TransferConfig struct {
	Policy string `yaml:"policy" toml:"policy"`
}

// FaucetConfig controls the /donate route.
type FaucetConfig struct {
	Amount            string  `yaml:"amount" toml:"amount"`
	RequestsPerMinute float64 `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// CompatConfig toggles legacy client workarounds.
type CompatConfig struct {
	ChangePubKeyFeeAlias *bool `yaml:"change_pubkey_fee_alias" toml:"change_pubkey_fee_alias"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	Insecure bool   `yaml:"insecure" toml:"insecure"`
	Headers  string `yaml:"headers" toml:"headers"`
	Traces   *bool  `yaml:"traces" toml:"traces"`
	Metrics  *bool  `yaml:"metrics" toml:"metrics"`
}
