package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20BalanceABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}]`

const rollupWithdrawABI = `[{"constant":false,"inputs":[{"name":"_token","type":"address"},{"name":"_amount","type":"uint128"},{"name":"_addr","type":"address"}],"name":"withdrawERC20","outputs":[],"payable":false,"stateMutability":"nonpayable","type":"function"}]`

// maxWithdrawBits is the width of the _amount argument of withdrawERC20.
const maxWithdrawBits = 128

var (
	erc20ABI  = mustParseABI(erc20BalanceABI)
	rollupABI = mustParseABI(rollupWithdrawABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("chain: parse abi: %v", err))
	}
	return parsed
}

func packBalanceOf(owner common.Address) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", owner)
}

func unpackBalance(data []byte) (*big.Int, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("chain: empty balanceOf result (is the token deployed?)")
	}
	out, err := erc20ABI.Unpack("balanceOf", data)
	if err != nil {
		return nil, fmt.Errorf("chain: decode balanceOf: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("chain: balanceOf returned %d values", len(out))
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: balanceOf returned %T", out[0])
	}
	return balance, nil
}

func packWithdraw(token common.Address, amount *big.Int, to common.Address) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("chain: withdraw amount must be non-negative")
	}
	if amount.BitLen() > maxWithdrawBits {
		return nil, fmt.Errorf("chain: withdraw amount exceeds uint%d", maxWithdrawBits)
	}
	return rollupABI.Pack("withdrawERC20", token, amount, to)
}
