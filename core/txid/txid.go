package txid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Prefix is the scheme marker carried by every identifier returned from tx_submit.
const Prefix = "sync-tx:"

const (
	addressHexLength = 2 * common.AddressLength
	nonceMinWidth    = 5
	// suffix pads a derived identifier to the width of a 32-byte hash.
	suffix = "00000000000deadbeef"
)

var (
	// ErrNotSynthetic is returned when an identifier was not produced by Derive.
	ErrNotSynthetic = errors.New("txid: not a synthetic identifier")
	// ErrInvalidAddress is returned when the acting address is not 20 bytes of hex.
	ErrInvalidAddress = errors.New("txid: invalid address")
)

// Decoded carries the inputs recovered from a synthetic identifier.
type Decoded struct {
	Address string
	Nonce   uint64
}

// Derive builds the identifier for a locally applied submission from the acting
// address and the nonce supplied with the request.
func Derive(address string, nonce uint64) (string, error) {
	body, err := addressBody(address)
	if err != nil {
		return "", err
	}
	return Prefix + body + fmt.Sprintf("%0*x", nonceMinWidth, nonce) + suffix, nil
}

// FromHash wraps a real on-chain transaction hash in the identifier scheme.
func FromHash(hash common.Hash) string {
	return Prefix + hex.EncodeToString(hash.Bytes())
}

// Normalize returns the canonical key for an identifier: prefix removed,
// surrounding whitespace trimmed and lower-cased.
func Normalize(id string) string {
	trimmed := strings.TrimSpace(id)
	trimmed = strings.TrimPrefix(trimmed, Prefix)
	return strings.ToLower(trimmed)
}

// Parse recovers the acting address and nonce from a derived identifier. The
// scheme prefix is optional.
func Parse(id string) (Decoded, error) {
	body := Normalize(id)
	if !strings.HasSuffix(body, suffix) {
		return Decoded{}, ErrNotSynthetic
	}
	body = strings.TrimSuffix(body, suffix)
	if len(body) < addressHexLength+nonceMinWidth {
		return Decoded{}, ErrNotSynthetic
	}
	addr, nonceHex := body[:addressHexLength], body[addressHexLength:]
	if _, err := hex.DecodeString(addr); err != nil {
		return Decoded{}, ErrNotSynthetic
	}
	// Widths beyond the minimum are only produced for nonces that need them.
	if len(nonceHex) > nonceMinWidth && nonceHex[0] == '0' {
		return Decoded{}, ErrNotSynthetic
	}
	nonce, err := strconv.ParseUint(nonceHex, 16, 64)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: nonce: %v", ErrNotSynthetic, err)
	}
	return Decoded{Address: "0x" + addr, Nonce: nonce}, nil
}

func addressBody(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != addressHexLength {
		return "", fmt.Errorf("%w: %q must be %d hex chars", ErrInvalidAddress, address, addressHexLength)
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return strings.ToLower(trimmed), nil
}
