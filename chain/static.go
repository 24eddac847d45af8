package chain

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// StaticReader serves a fixed custody balance and fabricates withdrawal hashes
// so the mock can run without an Ethereum node.
type StaticReader struct {
	mu          sync.Mutex
	custody     *big.Int
	withdrawals uint64
}

// NewStaticReader returns a reader reporting the supplied custody balance.
func NewStaticReader(custody *big.Int) *StaticReader {
	r := &StaticReader{}
	r.SetCustody(custody)
	return r
}

// SetCustody replaces the reported custody balance.
func (r *StaticReader) SetCustody(custody *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if custody == nil {
		r.custody = new(big.Int)
		return
	}
	r.custody = new(big.Int).Set(custody)
}

// CustodyBalance returns a copy of the configured custody balance.
func (r *StaticReader) CustodyBalance(ctx context.Context) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(big.Int).Set(r.custody), nil
}

// Withdraw returns keccak256(sequence || to || amount). Successive calls never
// repeat a hash, even for identical arguments.
func (r *StaticReader) Withdraw(ctx context.Context, amount *big.Int, to common.Address) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	if _, err := packWithdraw(common.Address{}, amount, to); err != nil {
		return common.Hash{}, err
	}
	r.mu.Lock()
	r.withdrawals++
	seq := r.withdrawals
	r.mu.Unlock()

	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	return gethcrypto.Keccak256Hash(seqBytes[:], to.Bytes(), amount.Bytes()), nil
}

// Withdrawals reports how many withdrawals were accepted.
func (r *StaticReader) Withdrawals() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.withdrawals
}
