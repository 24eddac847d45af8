package ledger

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	alice = "0xAAAaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1"
	bob   = "0xBBBbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb2"
)

func TestUntrackedAddressDefaults(t *testing.T) {
	l := New()
	require.Zero(t, l.Balance(alice).Sign())
	require.Zero(t, l.Nonce(alice))
	_, tracked := l.TrackedBalance(alice)
	require.False(t, tracked)
	_, found := l.Record("sync-tx:missing")
	require.False(t, found)
}

func TestCreditAccumulatesCaseInsensitively(t *testing.T) {
	l := New()
	require.Equal(t, "1000", l.Credit(alice, big.NewInt(1000)).String())
	require.Equal(t, "1500", l.Credit("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1", big.NewInt(500)).String())
	require.Equal(t, "1500", l.Balance(alice).String())
}

func TestBalanceReturnsCopy(t *testing.T) {
	l := New()
	l.SetBalance(alice, big.NewInt(10))
	got := l.Balance(alice)
	got.SetInt64(99)
	require.Equal(t, "10", l.Balance(alice).String())
}

func TestIncrementNonceReturnsPrevious(t *testing.T) {
	l := New()
	for i := uint64(0); i < 5; i++ {
		require.Equal(t, i, l.IncrementNonce(bob))
	}
	require.EqualValues(t, 5, l.Nonce(bob))
}

func TestApplyRollsBackOnError(t *testing.T) {
	l := New()
	l.SetBalance(alice, big.NewInt(100))
	boom := errors.New("boom")
	err := l.Apply(func(b *Batch) error {
		b.Debit(alice, big.NewInt(40))
		b.Credit(bob, big.NewInt(40))
		b.IncrementNonce(alice)
		b.PutRecord("sync-tx:abc", Record{From: alice, To: bob, Amount: big.NewInt(40)})
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, "100", l.Balance(alice).String())
	_, tracked := l.TrackedBalance(bob)
	require.False(t, tracked)
	require.Zero(t, l.Nonce(alice))
	_, found := l.Record("sync-tx:abc")
	require.False(t, found)
}

func TestApplyReadsOwnWrites(t *testing.T) {
	l := New()
	err := l.Apply(func(b *Batch) error {
		b.Credit(alice, big.NewInt(5))
		b.Credit(alice, big.NewInt(7))
		require.Equal(t, "12", b.Debit(alice, big.NewInt(0)).String())
		require.Zero(t, b.IncrementNonce(alice))
		require.EqualValues(t, 1, b.IncrementNonce(alice))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "12", l.Balance(alice).String())
	require.EqualValues(t, 2, l.Nonce(alice))
}

func TestRecordLookupNormalisesIdentifier(t *testing.T) {
	fixed := time.Unix(1700000000, 0).UTC()
	l := New(WithClock(func() time.Time { return fixed }))
	l.PutRecord("sync-tx:ABCDEF", Record{From: alice, To: bob, Amount: big.NewInt(3)})

	record, found := l.Record("abcdef")
	require.True(t, found)
	require.Equal(t, alice, record.From)
	require.Equal(t, bob, record.To)
	require.Equal(t, "3", record.Amount.String())
	require.Equal(t, fixed, record.CreatedAt)
	require.Equal(t, "sync-tx:ABCDEF", record.ID)
}

func TestConcurrentDebitsAreNotLost(t *testing.T) {
	l := New()
	l.SetBalance(alice, big.NewInt(10_000))

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = l.Apply(func(b *Batch) error {
				b.Debit(alice, big.NewInt(10))
				b.Credit(bob, big.NewInt(10))
				b.IncrementNonce(alice)
				return nil
			})
		}()
	}
	wg.Wait()

	require.Equal(t, "9500", l.Balance(alice).String())
	require.Equal(t, "500", l.Balance(bob).String())
	require.EqualValues(t, workers, l.Nonce(alice))
}

func TestStatsCountsDistinctAccounts(t *testing.T) {
	l := New()
	l.Credit(alice, big.NewInt(1))
	l.IncrementNonce(alice)
	l.IncrementNonce(bob)
	l.PutRecord("x", Record{})
	require.Equal(t, Stats{Accounts: 2, Records: 1}, l.Stats())
}

func TestSnapshotPairsBalanceWithNonce(t *testing.T) {
	l := New()
	balance, nonce := l.Snapshot(alice)
	require.Zero(t, balance.Sign())
	require.Zero(t, nonce)

	l.SetBalance(alice, big.NewInt(1_000))

	const writes = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < writes; i++ {
			_ = l.Apply(func(b *Batch) error {
				b.Debit(alice, big.NewInt(1))
				b.IncrementNonce(alice)
				return nil
			})
		}
	}()

	for {
		select {
		case <-done:
			balance, nonce = l.Snapshot(alice)
			require.Equal(t, "800", balance.String())
			require.EqualValues(t, writes, nonce)
			return
		default:
			balance, nonce = l.Snapshot(alice)
			require.EqualValues(t, 1_000, balance.Int64()+int64(nonce))
		}
	}
}
