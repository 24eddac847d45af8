package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}

	switch c.Chain.Mode {
	case ChainModeEVM:
		if strings.TrimSpace(c.Chain.URL) == "" {
			return fmt.Errorf("chain: url must be configured in evm mode")
		}
	case ChainModeStatic:
		if _, err := c.StaticCustodyBalance(); err != nil {
			return fmt.Errorf("chain: %w", err)
		}
	default:
		return fmt.Errorf("chain: unknown mode %q", c.Chain.Mode)
	}
	if err := checkAddress("chain.rollup_contract", c.Chain.RollupContract, false); err != nil {
		return err
	}
	if err := checkAddress("chain.gov_contract", c.Chain.GovContract, true); err != nil {
		return err
	}
	if err := checkAddress("chain.token_address", c.Chain.TokenAddress, false); err != nil {
		return err
	}
	if err := checkAddress("chain.sender", c.Chain.Sender, true); err != nil {
		return err
	}
	if c.Chain.SignerKey != "" {
		if _, err := crypto.HexToECDSA(strings.TrimPrefix(c.Chain.SignerKey, "0x")); err != nil {
			return fmt.Errorf("chain: signer_key is not a valid secp256k1 key")
		}
	}

	if len(c.Tokens) == 0 {
		return fmt.Errorf("tokens: at least one symbol required")
	}
	seen := make(map[string]struct{}, len(c.Tokens))
	for i, token := range c.Tokens {
		symbol := strings.TrimSpace(token.Symbol)
		if symbol == "" {
			return fmt.Errorf("tokens[%d]: symbol required", i)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("tokens[%d]: duplicate symbol %q", i, symbol)
		}
		seen[symbol] = struct{}{}
	}

	switch strings.ToLower(strings.TrimSpace(c.Transfers.Policy)) {
	case "lenient", "strict":
	default:
		return fmt.Errorf("transfers: unknown policy %q", c.Transfers.Policy)
	}

	amount, err := c.FaucetAmount()
	if err != nil {
		return err
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("faucet.amount must be positive")
	}
	if c.Faucet.RequestsPerMinute < 0 {
		return fmt.Errorf("faucet.requests_per_minute must not be negative")
	}
	for i, origin := range c.CORS.AllowedOrigins {
		if err := checkOrigin(origin); err != nil {
			return fmt.Errorf("cors.allowed_origins[%d]: %w", i, err)
		}
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: endpoint required when enabled")
	}
	return nil
}

func checkAddress(field, value string, optional bool) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		if optional {
			return nil
		}
		return fmt.Errorf("%s must be configured", field)
	}
	if !strings.HasPrefix(trimmed, "0x") || !common.IsHexAddress(trimmed) {
		return fmt.Errorf("%s: %q is not a 0x-prefixed hex address", field, value)
	}
	return nil
}

// checkOrigin accepts "*" or a scheme://host[:port] origin without a path.
func checkOrigin(origin string) error {
	trimmed := strings.TrimSpace(origin)
	if trimmed == "*" {
		return nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("%q is not an http(s) origin", origin)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("%q must not carry a path", origin)
	}
	return nil
}
