package tx

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"rollupmock/core/ledger"
)

func TestEstimateFeeIsZero(t *testing.T) {
	proc := NewProcessor(ledger.New(), nil)
	quote := proc.EstimateFee(json.RawMessage(`"Transfer"`))
	require.Equal(t, "Transfer", quote.FeeType)
	for _, v := range []string{quote.GasTxAmount, quote.GasPriceWei, quote.GasFee, quote.ZkpFee, quote.TotalFee} {
		require.Equal(t, "0", v)
	}

	encoded, err := json.Marshal(quote)
	require.NoError(t, err)
	require.JSONEq(t, `{"feeType":"Transfer","gasTxAmount":"0","gasPriceWei":"0","gasFee":"0","zkpFee":"0","totalFee":"0"}`, string(encoded))
}

func TestEstimateFeeChangePubKeyAlias(t *testing.T) {
	feeType := json.RawMessage(`{"ChangePubKey":{"onchainPubkeyAuth":true}}`)

	proc := NewProcessor(ledger.New(), nil)
	encoded, err := json.Marshal(proc.EstimateFee(feeType).FeeType)
	require.NoError(t, err)
	require.JSONEq(t, `{"ChangePubKey":{"onchainPubkeyAuth":true,"onchain_pubkey_auth":true}}`, string(encoded))

	proc = NewProcessor(ledger.New(), nil, WithChangePubKeyFeeAlias(false))
	encoded, err = json.Marshal(proc.EstimateFee(feeType).FeeType)
	require.NoError(t, err)
	require.JSONEq(t, string(feeType), string(encoded))
}

func TestEstimateFeeOddInputs(t *testing.T) {
	require.Nil(t, ZeroQuote(nil, true).FeeType)
	require.Equal(t, "{broken", ZeroQuote(json.RawMessage(`{broken`), true).FeeType)

	encoded, err := json.Marshal(ZeroQuote(json.RawMessage(`{"ChangePubKey":"ECDSA"}`), true).FeeType)
	require.NoError(t, err)
	require.JSONEq(t, `{"ChangePubKey":"ECDSA"}`, string(encoded))
}
