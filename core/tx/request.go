package tx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// Kind discriminates the tx_submit payload variants.
type Kind string

const (
	KindWithdraw     Kind = "Withdraw"
	KindTransfer     Kind = "Transfer"
	KindChangePubKey Kind = "ChangePubKey"
)

var (
	// ErrUnsupportedType is returned for any tx_submit type outside the tagged union.
	ErrUnsupportedType = errors.New("tx: unsupported transaction type")
	// ErrInvalidRequest wraps boundary validation failures.
	ErrInvalidRequest = errors.New("tx: invalid request")
)

// Request is one of Withdraw, Transfer or ChangePubKey.
type Request interface {
	Kind() Kind
	Validate() error
}

// Withdraw moves tokens out of the rollup contract to an L1 address.
type Withdraw struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Token  string `json:"token,omitempty"`
	Amount Amount `json:"amount"`
	Nonce  Nonce  `json:"nonce"`
}

// Transfer moves tracked balance between two rollup accounts.
type Transfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Token  string `json:"token,omitempty"`
	Amount Amount `json:"amount"`
	Nonce  Nonce  `json:"nonce"`
}

// ChangePubKey registers a signing key for an account. It only consumes a nonce.
type ChangePubKey struct {
	Account   string `json:"account"`
	NewPkHash string `json:"newPkHash,omitempty"`
	Nonce     Nonce  `json:"nonce"`
}

// Kind implements Request.
func (Withdraw) Kind() Kind { return KindWithdraw }

// Kind implements Request.
func (Transfer) Kind() Kind { return KindTransfer }

// Kind implements Request.
func (ChangePubKey) Kind() Kind { return KindChangePubKey }

// DecodeRequest inspects the type discriminator and decodes the matching
// variant. Unknown fields are ignored so signatures and fees pass through.
func DecodeRequest(raw json.RawMessage) (Request, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: transaction payload required", ErrInvalidRequest)
	}
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var req Request
	switch Kind(header.Type) {
	case KindWithdraw:
		var w Withdraw
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return nil, fmt.Errorf("%w: withdraw: %v", ErrInvalidRequest, err)
		}
		req = w
	case KindTransfer:
		var t Transfer
		if err := json.Unmarshal(trimmed, &t); err != nil {
			return nil, fmt.Errorf("%w: transfer: %v", ErrInvalidRequest, err)
		}
		req = t
	case KindChangePubKey:
		var c ChangePubKey
		if err := json.Unmarshal(trimmed, &c); err != nil {
			return nil, fmt.Errorf("%w: change pubkey: %v", ErrInvalidRequest, err)
		}
		req = c
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, header.Type)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// Amount is a non-negative token amount of at most 256 bits. It decodes from a
// JSON string or number, in decimal or 0x-prefixed hex.
type Amount struct {
	value uint256.Int
}

// NewAmount converts a big integer, failing for negative or oversized values.
func NewAmount(v *big.Int) (Amount, error) {
	var a Amount
	if v == nil {
		return a, nil
	}
	if v.Sign() < 0 {
		return a, fmt.Errorf("%w: amount must be non-negative", ErrInvalidRequest)
	}
	converted, overflow := uint256.FromBig(v)
	if overflow {
		return a, fmt.Errorf("%w: amount exceeds 256 bits", ErrInvalidRequest)
	}
	a.value = *converted
	return a, nil
}

// MustAmount is NewAmount for literals in tests and defaults.
func MustAmount(v int64) Amount {
	a, err := NewAmount(big.NewInt(v))
	if err != nil {
		panic(err)
	}
	return a
}

// Big returns the amount as a freshly allocated big integer.
func (a Amount) Big() *big.Int { return a.value.ToBig() }

// String renders the amount in decimal.
func (a Amount) String() string { return a.value.Dec() }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.value.IsZero() }

// MarshalJSON renders the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.value.Dec())
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		a.value.Clear()
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		return fmt.Errorf("amount required")
	}
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		v, ok := new(big.Int).SetString(raw[2:], 16)
		if !ok {
			return fmt.Errorf("invalid amount %q", raw)
		}
		parsed, err := NewAmount(v)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	parsed, err := uint256.FromDecimal(raw)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %v", raw, err)
	}
	a.value = *parsed
	return nil
}

// Nonce is an account nonce that decodes from a JSON number or numeric string.
type Nonce uint64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Nonce) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*n = 0
		return nil
	}
	base := 10
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		raw, base = raw[2:], 16
	}
	parsed, err := strconv.ParseUint(raw, base, 64)
	if err != nil {
		return fmt.Errorf("invalid nonce %q: %v", raw, err)
	}
	*n = Nonce(parsed)
	return nil
}
