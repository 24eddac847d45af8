package tx

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// maxWithdrawBits matches the uint128 amount argument of withdrawERC20.
const maxWithdrawBits = 128

// Validate checks the withdraw payload at the boundary.
func (w Withdraw) Validate() error {
	if err := checkAddress("to", w.To); err != nil {
		return err
	}
	if w.Amount.value.BitLen() > maxWithdrawBits {
		return fmt.Errorf("%w: withdraw amount exceeds uint%d", ErrInvalidRequest, maxWithdrawBits)
	}
	if w.From != "" {
		if err := checkAddress("from", w.From); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the transfer payload at the boundary.
func (t Transfer) Validate() error {
	if err := checkAddress("from", t.From); err != nil {
		return err
	}
	return checkAddress("to", t.To)
}

// Validate checks the change-pubkey payload at the boundary.
func (c ChangePubKey) Validate() error {
	return checkAddress("account", c.Account)
}

// checkAddress enforces the 0x-prefixed 20-byte hex format. Nothing beyond
// the format is verified.
func checkAddress(field, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%w: %s required", ErrInvalidRequest, field)
	}
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return fmt.Errorf("%w: %s must be 0x-prefixed", ErrInvalidRequest, field)
	}
	if !common.IsHexAddress(trimmed) {
		return fmt.Errorf("%w: %s %q is not a hex address", ErrInvalidRequest, field, value)
	}
	return nil
}
