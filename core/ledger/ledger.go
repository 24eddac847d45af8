package ledger

import (
	"encoding/json"
	"math/big"
	"strings"
	"sync"
	"time"

	"rollupmock/core/txid"
)

// Record captures a locally applied transfer so tests can look it up by the
// identifier returned from tx_submit.
type Record struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Token     string    `json:"token,omitempty"`
	Amount    *big.Int  `json:"amount"`
	Nonce     uint64    `json:"nonce"`
	CreatedAt time.Time `json:"createdAt"`
}

// MarshalJSON renders the amount as a decimal string like the rest of the API.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		Amount string `json:"amount"`
	}{plain: plain(r), Amount: cloneOrZero(r.Amount).String()})
}

// Stats summarises the ledger contents.
type Stats struct {
	Accounts int
	Records  int
}

// Ledger is the in-memory store of tracked balances, nonces and transfer
// records. Address keys are case-insensitive.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]*big.Int
	nonces   map[string]uint64
	records  map[string]Record
	now      func() time.Time
}

// Option customises a ledger instance.
type Option func(*Ledger)

// WithClock sets the function used to timestamp records.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.now = clock }
}

// New constructs an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		balances: make(map[string]*big.Int),
		nonces:   make(map[string]uint64),
		records:  make(map[string]Record),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Balance returns the tracked balance for the address, zero when untracked.
func (l *Ledger) Balance(address string) *big.Int {
	balance, _ := l.TrackedBalance(address)
	if balance == nil {
		return new(big.Int)
	}
	return balance
}

// TrackedBalance returns a copy of the tracked balance and whether the address
// has an entry at all.
func (l *Ledger) TrackedBalance(address string) (*big.Int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, ok := l.balances[key(address)]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(balance), true
}

// SetBalance overwrites the tracked balance for the address.
func (l *Ledger) SetBalance(address string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[key(address)] = cloneOrZero(amount)
}

// Credit adds amount to the tracked balance, creating the entry when absent,
// and returns the resulting balance.
func (l *Ledger) Credit(address string, amount *big.Int) *big.Int {
	var updated *big.Int
	_ = l.Apply(func(b *Batch) error {
		updated = b.Credit(address, amount)
		return nil
	})
	return updated
}

// Snapshot returns the tracked balance (zero when untracked) and the nonce of
// the address as of one instant.
func (l *Ledger) Snapshot(address string) (*big.Int, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	k := key(address)
	return cloneOrZero(l.balances[k]), l.nonces[k]
}

// Nonce returns the current nonce for the address, zero when untracked.
func (l *Ledger) Nonce(address string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nonces[key(address)]
}

// IncrementNonce bumps the address nonce by one and returns the value it held
// before the increment.
func (l *Ledger) IncrementNonce(address string) uint64 {
	var previous uint64
	_ = l.Apply(func(b *Batch) error {
		previous = b.IncrementNonce(address)
		return nil
	})
	return previous
}

// PutRecord stores a transfer record under the identifier.
func (l *Ledger) PutRecord(id string, record Record) {
	_ = l.Apply(func(b *Batch) error {
		b.PutRecord(id, record)
		return nil
	})
}

// Record looks up a transfer record. A miss is reported through the boolean,
// never as an error.
func (l *Ledger) Record(id string) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	record, ok := l.records[txid.Normalize(id)]
	if !ok {
		return Record{}, false
	}
	return record.clone(), true
}

// Stats reports how many accounts and records the ledger currently holds.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	accounts := make(map[string]struct{}, len(l.balances)+len(l.nonces))
	for addr := range l.balances {
		accounts[addr] = struct{}{}
	}
	for addr := range l.nonces {
		accounts[addr] = struct{}{}
	}
	return Stats{Accounts: len(accounts), Records: len(l.records)}
}

// Apply runs fn against a staging batch while holding the write lock. Changes
// made through the batch become visible only if fn returns nil; on error the
// ledger is left untouched.
func (l *Ledger) Apply(fn func(*Batch) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := newBatch(l)
	if err := fn(batch); err != nil {
		return err
	}
	batch.commit()
	return nil
}

func key(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func cloneOrZero(in *big.Int) *big.Int {
	if in == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(in)
}

func (r Record) clone() Record {
	out := r
	out.Amount = cloneOrZero(r.Amount)
	return out
}
