package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotConfigured is returned by FuncReader when a callback is missing.
var ErrNotConfigured = errors.New("chain: reader not configured")

// BalanceReader reads the custody balance the rollup contract holds in the
// tracked token.
type BalanceReader interface {
	CustodyBalance(ctx context.Context) (*big.Int, error)
}

// Withdrawer submits a withdrawal of the tracked token from the rollup
// contract and returns the on-chain transaction hash.
type Withdrawer interface {
	Withdraw(ctx context.Context, amount *big.Int, to common.Address) (common.Hash, error)
}

// Reader is the full two-operation contract the mock needs from a chain.
type Reader interface {
	BalanceReader
	Withdrawer
}

// FuncReader adapts callback functions to the Reader interface.
type FuncReader struct {
	BalanceFunc  func(ctx context.Context) (*big.Int, error)
	WithdrawFunc func(ctx context.Context, amount *big.Int, to common.Address) (common.Hash, error)
}

// CustodyBalance delegates to the configured callback.
func (r FuncReader) CustodyBalance(ctx context.Context) (*big.Int, error) {
	if r.BalanceFunc == nil {
		return nil, ErrNotConfigured
	}
	return r.BalanceFunc(ctx)
}

// Withdraw delegates to the configured callback.
func (r FuncReader) Withdraw(ctx context.Context, amount *big.Int, to common.Address) (common.Hash, error) {
	if r.WithdrawFunc == nil {
		return common.Hash{}, ErrNotConfigured
	}
	return r.WithdrawFunc(ctx, amount, to)
}
