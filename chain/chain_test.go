package chain

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var (
	rollupAddr = common.HexToAddress("0x94BA4d5Ebb0e05A50e977FFbF6e1a1Ee3D89299c")
	tokenAddr  = common.HexToAddress("0xFDFEF9D10d929cB3905C71400ce6be1990EA0F34")
	recipient  = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

type fakeClient struct {
	mu       sync.Mutex
	balance  *big.Int
	calls    []ethereum.CallMsg
	sent     []*gethtypes.Transaction
	chainID  *big.Int
	callErr  error
	chainErr error
}

func (f *fakeClient) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.callErr != nil {
		return nil, f.callErr
	}
	return erc20ABI.Methods["balanceOf"].Outputs.Pack(f.balance)
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) {
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return f.chainID, nil
}

func (f *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 90_000, nil
}

func (f *fakeClient) SendTransaction(_ context.Context, tx *gethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

type fakeRaw struct {
	accounts []common.Address
	hash     common.Hash
	methods  []string
	args     [][]interface{}
}

func (f *fakeRaw) CallContext(_ context.Context, result interface{}, method string, args ...interface{}) error {
	f.methods = append(f.methods, method)
	f.args = append(f.args, args)
	var payload interface{}
	switch method {
	case "eth_accounts":
		payload = f.accounts
	case "eth_sendTransaction":
		payload = f.hash
	default:
		return errors.New("unexpected method " + method)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

func TestCustodyBalanceQueriesRollupHolding(t *testing.T) {
	client := &fakeClient{balance: big.NewInt(42), chainID: big.NewInt(1337)}
	raw := &fakeRaw{accounts: []common.Address{recipient}}
	reader, err := NewEVMReader(context.Background(), client, raw, EVMConfig{Rollup: rollupAddr, Token: tokenAddr})
	require.NoError(t, err)
	require.Equal(t, recipient, reader.Sender())

	balance, err := reader.CustodyBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, "42", balance.String())

	require.Len(t, client.calls, 1)
	require.Equal(t, tokenAddr, *client.calls[0].To)
	expected, err := packBalanceOf(rollupAddr)
	require.NoError(t, err)
	require.Equal(t, expected, client.calls[0].Data)
}

func TestCustodyBalancePropagatesErrors(t *testing.T) {
	client := &fakeClient{callErr: errors.New("connection refused")}
	reader, err := NewEVMReader(context.Background(), client, nil, EVMConfig{Rollup: rollupAddr, Token: tokenAddr, Sender: recipient})
	require.NoError(t, err)
	_, err = reader.CustodyBalance(context.Background())
	require.ErrorContains(t, err, "connection refused")
}

func TestWithdrawThroughUnlockedAccount(t *testing.T) {
	client := &fakeClient{chainID: big.NewInt(1337)}
	want := common.HexToHash("0xabc")
	raw := &fakeRaw{accounts: []common.Address{common.HexToAddress("0x01")}, hash: want}
	reader, err := NewEVMReader(context.Background(), client, raw, EVMConfig{Rollup: rollupAddr, Token: tokenAddr})
	require.NoError(t, err)

	hash, err := reader.Withdraw(context.Background(), big.NewInt(500), recipient)
	require.NoError(t, err)
	require.Equal(t, want, hash)
	require.Equal(t, []string{"eth_accounts", "eth_sendTransaction"}, raw.methods)

	args, ok := raw.args[1][0].(sendTxArgs)
	require.True(t, ok)
	require.Equal(t, rollupAddr, args.To)
	require.Equal(t, common.HexToAddress("0x01"), args.From)
	decoded, err := rollupABI.Methods["withdrawERC20"].Inputs.Unpack(args.Data[4:])
	require.NoError(t, err)
	require.Equal(t, tokenAddr, decoded[0])
	require.Equal(t, "500", decoded[1].(*big.Int).String())
	require.Equal(t, recipient, decoded[2])
}

func TestWithdrawSignsWithConfiguredKey(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	client := &fakeClient{chainID: big.NewInt(1337)}
	reader, err := NewEVMReader(context.Background(), client, nil, EVMConfig{Rollup: rollupAddr, Token: tokenAddr, SignerKey: key})
	require.NoError(t, err)
	require.Equal(t, gethcrypto.PubkeyToAddress(key.PublicKey), reader.Sender())

	hash, err := reader.Withdraw(context.Background(), big.NewInt(1), recipient)
	require.NoError(t, err)
	require.Len(t, client.sent, 1)
	tx := client.sent[0]
	require.Equal(t, tx.Hash(), hash)
	require.EqualValues(t, 7, tx.Nonce())
	require.Equal(t, rollupAddr, *tx.To())

	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(big.NewInt(1337)), tx)
	require.NoError(t, err)
	require.Equal(t, reader.Sender(), from)
}

func TestWithdrawRejectsOversizedAmount(t *testing.T) {
	client := &fakeClient{chainID: big.NewInt(1)}
	reader, err := NewEVMReader(context.Background(), client, nil, EVMConfig{Rollup: rollupAddr, Token: tokenAddr, Sender: recipient})
	require.NoError(t, err)
	tooBig := new(big.Int).Lsh(big.NewInt(1), 128)
	_, err = reader.Withdraw(context.Background(), tooBig, recipient)
	require.ErrorContains(t, err, "uint128")
}

func TestNewEVMReaderWithoutAccounts(t *testing.T) {
	client := &fakeClient{chainID: big.NewInt(1)}
	_, err := NewEVMReader(context.Background(), client, &fakeRaw{}, EVMConfig{Rollup: rollupAddr, Token: tokenAddr})
	require.ErrorIs(t, err, ErrNoSender)
}

func TestConnectRetriesUntilNodeIsUp(t *testing.T) {
	failures := 2
	calls := 0
	want := &EVMReader{sender: recipient}
	reader, closer, err := connect(context.Background(), DialConfig{Endpoint: "http://node", Attempts: 5, Interval: time.Millisecond}, nil,
		func(context.Context) (*EVMReader, func(), error) {
			calls++
			if calls <= failures {
				return nil, nil, errors.New("dial tcp: connection refused")
			}
			return want, func() {}, nil
		})
	require.NoError(t, err)
	require.NotNil(t, closer)
	require.Same(t, want, reader)
	require.Equal(t, 3, calls)
}

func TestConnectGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	_, _, err := connect(context.Background(), DialConfig{Endpoint: "http://node", Attempts: 3, Interval: time.Millisecond}, nil,
		func(context.Context) (*EVMReader, func(), error) {
			calls++
			return nil, nil, errors.New("down")
		})
	require.ErrorContains(t, err, "after 3 attempts")
	require.Equal(t, 3, calls)
}

func TestStaticReader(t *testing.T) {
	reader := NewStaticReader(big.NewInt(100))
	balance, err := reader.CustodyBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, "100", balance.String())

	balance.SetInt64(1)
	again, err := reader.CustodyBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, "100", again.String())

	first, err := reader.Withdraw(context.Background(), big.NewInt(5), recipient)
	require.NoError(t, err)
	second, err := reader.Withdraw(context.Background(), big.NewInt(5), recipient)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.EqualValues(t, 2, reader.Withdrawals())
}

func TestFuncReaderWithoutCallbacks(t *testing.T) {
	var reader FuncReader
	_, err := reader.CustodyBalance(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = reader.Withdraw(context.Background(), big.NewInt(1), recipient)
	require.ErrorIs(t, err, ErrNotConfigured)
}
