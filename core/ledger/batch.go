package ledger

import (
	"math/big"

	"rollupmock/core/txid"
)

// Batch stages the mutations of a single submission. It is only valid inside
// the Ledger.Apply callback that created it.
type Batch struct {
	ledger   *Ledger
	balances map[string]*big.Int
	nonces   map[string]uint64
	records  map[string]Record
}

func newBatch(l *Ledger) *Batch {
	return &Batch{
		ledger:   l,
		balances: make(map[string]*big.Int),
		nonces:   make(map[string]uint64),
		records:  make(map[string]Record),
	}
}

// TrackedBalance returns the staged or committed balance and whether the
// address has an entry.
func (b *Batch) TrackedBalance(address string) (*big.Int, bool) {
	k := key(address)
	if staged, ok := b.balances[k]; ok {
		return new(big.Int).Set(staged), true
	}
	current, ok := b.ledger.balances[k]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(current), true
}

// SetBalance stages a new tracked balance.
func (b *Batch) SetBalance(address string, amount *big.Int) {
	b.balances[key(address)] = cloneOrZero(amount)
}

// Credit stages balance + amount and returns the staged value.
func (b *Batch) Credit(address string, amount *big.Int) *big.Int {
	current, _ := b.TrackedBalance(address)
	updated := cloneOrZero(current)
	if amount != nil {
		updated.Add(updated, amount)
	}
	b.SetBalance(address, updated)
	return new(big.Int).Set(updated)
}

// Debit stages balance - amount and returns the staged value. The result may
// be negative; callers enforce their own overdraft policy.
func (b *Batch) Debit(address string, amount *big.Int) *big.Int {
	current, _ := b.TrackedBalance(address)
	updated := cloneOrZero(current)
	if amount != nil {
		updated.Sub(updated, amount)
	}
	b.SetBalance(address, updated)
	return new(big.Int).Set(updated)
}

// Nonce returns the staged or committed nonce.
func (b *Batch) Nonce(address string) uint64 {
	k := key(address)
	if staged, ok := b.nonces[k]; ok {
		return staged
	}
	return b.ledger.nonces[k]
}

// IncrementNonce stages nonce + 1 and returns the pre-increment value.
func (b *Batch) IncrementNonce(address string) uint64 {
	previous := b.Nonce(address)
	b.nonces[key(address)] = previous + 1
	return previous
}

// PutRecord stages a transfer record.
func (b *Batch) PutRecord(id string, record Record) {
	k := txid.Normalize(id)
	if record.ID == "" {
		record.ID = id
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = b.ledger.now()
	}
	b.records[k] = record.clone()
}

func (b *Batch) commit() {
	for k, balance := range b.balances {
		b.ledger.balances[k] = balance
	}
	for k, nonce := range b.nonces {
		b.ledger.nonces[k] = nonce
	}
	for k, record := range b.records {
		b.ledger.records[k] = record
	}
}
