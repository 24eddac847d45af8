package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrNoSender is returned when neither a signer key nor an unlocked node
// account is available to submit withdrawals from.
var ErrNoSender = errors.New("chain: no sender account available")

// EVMClient defines the subset of the Ethereum RPC used by the reader.
type EVMClient interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
}

// RawCaller issues raw JSON-RPC calls for node-managed accounts.
type RawCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// EVMConfig names the contracts and sender the reader operates on.
type EVMConfig struct {
	Rollup common.Address
	Token  common.Address
	// Sender is the node-unlocked account used when no SignerKey is set. When
	// both are empty the node's first account is used.
	Sender    common.Address
	SignerKey *ecdsa.PrivateKey
	ChainID   *big.Int
}

// EVMReader implements Reader against an Ethereum node.
type EVMReader struct {
	client  EVMClient
	raw     RawCaller
	rollup  common.Address
	token   common.Address
	sender  common.Address
	key     *ecdsa.PrivateKey
	chainID *big.Int
}

// DialEVMClient initialises an Ethereum RPC client for the provided endpoint.
func DialEVMClient(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("chain: evm endpoint required")
	}
	return ethclient.DialContext(ctx, trimmed)
}

// NewEVMReader builds a reader over an established client. It resolves the
// sender account so misconfiguration surfaces at startup rather than on the
// first withdrawal.
func NewEVMReader(ctx context.Context, client EVMClient, raw RawCaller, cfg EVMConfig) (*EVMReader, error) {
	if client == nil {
		return nil, fmt.Errorf("chain: evm client required")
	}
	if (cfg.Rollup == common.Address{}) {
		return nil, fmt.Errorf("chain: rollup contract address required")
	}
	if (cfg.Token == common.Address{}) {
		return nil, fmt.Errorf("chain: token address required")
	}
	reader := &EVMReader{
		client:  client,
		raw:     raw,
		rollup:  cfg.Rollup,
		token:   cfg.Token,
		sender:  cfg.Sender,
		key:     cfg.SignerKey,
		chainID: cfg.ChainID,
	}
	switch {
	case reader.key != nil:
		reader.sender = gethcrypto.PubkeyToAddress(reader.key.PublicKey)
		if reader.chainID == nil {
			chainID, err := client.ChainID(ctx)
			if err != nil {
				return nil, fmt.Errorf("chain: fetch chain id: %w", err)
			}
			reader.chainID = chainID
		}
	case reader.sender == common.Address{}:
		account, err := reader.defaultAccount(ctx)
		if err != nil {
			return nil, err
		}
		reader.sender = account
	default:
		if _, err := client.ChainID(ctx); err != nil {
			return nil, fmt.Errorf("chain: probe node: %w", err)
		}
	}
	return reader, nil
}

// Sender reports the account withdrawals are submitted from.
func (r *EVMReader) Sender() common.Address { return r.sender }

// CustodyBalance returns the rollup contract's balance of the tracked token.
func (r *EVMReader) CustodyBalance(ctx context.Context) (*big.Int, error) {
	data, err := packBalanceOf(r.rollup)
	if err != nil {
		return nil, fmt.Errorf("chain: encode balanceOf: %w", err)
	}
	token := r.token
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call balanceOf: %w", err)
	}
	return unpackBalance(out)
}

// Withdraw invokes withdrawERC20 on the rollup contract.
func (r *EVMReader) Withdraw(ctx context.Context, amount *big.Int, to common.Address) (common.Hash, error) {
	data, err := packWithdraw(r.token, amount, to)
	if err != nil {
		return common.Hash{}, err
	}
	if r.key != nil {
		return r.sendSigned(ctx, data)
	}
	return r.sendUnlocked(ctx, data)
}

func (r *EVMReader) sendSigned(ctx context.Context, data []byte) (common.Hash, error) {
	nonce, err := r.client.PendingNonceAt(ctx, r.sender)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: fetch nonce: %w", err)
	}
	gasPrice, err := r.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: suggest gas price: %w", err)
	}
	rollup := r.rollup
	gas, err := r.client.EstimateGas(ctx, ethereum.CallMsg{From: r.sender, To: &rollup, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: estimate gas: %w", err)
	}
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &rollup,
		Value:    new(big.Int),
		Data:     data,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(r.chainID), r.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: sign withdrawal: %w", err)
	}
	if err := r.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("chain: send withdrawal: %w", err)
	}
	return signed.Hash(), nil
}

type sendTxArgs struct {
	From common.Address `json:"from"`
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

func (r *EVMReader) sendUnlocked(ctx context.Context, data []byte) (common.Hash, error) {
	if r.raw == nil {
		return common.Hash{}, ErrNoSender
	}
	var hash common.Hash
	args := sendTxArgs{From: r.sender, To: r.rollup, Data: data}
	if err := r.raw.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, fmt.Errorf("chain: send withdrawal: %w", err)
	}
	return hash, nil
}

func (r *EVMReader) defaultAccount(ctx context.Context) (common.Address, error) {
	if r.raw == nil {
		return common.Address{}, ErrNoSender
	}
	var accounts []common.Address
	if err := r.raw.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return common.Address{}, fmt.Errorf("chain: list node accounts: %w", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNoSender
	}
	return accounts[0], nil
}
