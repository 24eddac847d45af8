package tx

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRequestVariants(t *testing.T) {
	req, err := DecodeRequest(json.RawMessage(`{
		"type": "Transfer",
		"from": "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1",
		"to": "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb2",
		"token": "GNT",
		"amount": "400",
		"fee": "0",
		"nonce": 0,
		"signature": {"pubKey": "00", "signature": "00"}
	}`))
	require.NoError(t, err)
	transfer, ok := req.(Transfer)
	require.True(t, ok)
	require.Equal(t, "400", transfer.Amount.String())
	require.Equal(t, "GNT", transfer.Token)

	req, err = DecodeRequest(json.RawMessage(`{"type":"Withdraw","to":"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb2","amount":"0x10","nonce":"7"}`))
	require.NoError(t, err)
	withdraw, ok := req.(Withdraw)
	require.True(t, ok)
	require.Equal(t, "16", withdraw.Amount.String())
	require.EqualValues(t, 7, withdraw.Nonce)

	req, err = DecodeRequest(json.RawMessage(`{"type":"ChangePubKey","account":"0xccccccccccccccccccccccccccccccccccccccc3","newPkHash":"sync:00","nonce":"0x2"}`))
	require.NoError(t, err)
	change, ok := req.(ChangePubKey)
	require.True(t, ok)
	require.EqualValues(t, 2, change.Nonce)
	require.Equal(t, KindChangePubKey, change.Kind())
}

func TestDecodeRequestRejectsUnknownType(t *testing.T) {
	_, err := DecodeRequest(json.RawMessage(`{"type":"ForcedExit","target":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1"}`))
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = DecodeRequest(json.RawMessage(`{"from":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1"}`))
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDecodeRequestValidation(t *testing.T) {
	cases := map[string]string{
		"empty":        ``,
		"null":         `null`,
		"not object":   `[1,2]`,
		"missing to":   `{"type":"Transfer","from":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1","amount":"1","nonce":0}`,
		"bad from":     `{"type":"Transfer","from":"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1","to":"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb2","amount":"1","nonce":0}`,
		"short to":     `{"type":"Withdraw","to":"0x1234","amount":"1","nonce":0}`,
		"neg amount":   `{"type":"Withdraw","to":"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb2","amount":"-1","nonce":0}`,
		"wide amount":  `{"type":"Withdraw","to":"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb2","amount":"0x100000000000000000000000000000000","nonce":0}`,
		"bad nonce":    `{"type":"Transfer","from":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1","to":"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb2","amount":"1","nonce":"seven"}`,
		"no account":   `{"type":"ChangePubKey","nonce":0}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRequest(json.RawMessage(payload))
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestAmountParsing(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"1000000000000000000000"`), &a))
	require.Equal(t, "1000000000000000000000", a.String())

	require.NoError(t, json.Unmarshal([]byte(`12`), &a))
	require.Equal(t, "12", a.String())

	require.NoError(t, json.Unmarshal([]byte(`"0X00ff"`), &a))
	require.Equal(t, "255", a.String())

	require.Error(t, json.Unmarshal([]byte(`"1.5"`), &a))
	require.Error(t, json.Unmarshal([]byte(`"0xzz"`), &a))

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err := NewAmount(tooBig)
	require.ErrorIs(t, err, ErrInvalidRequest)

	encoded, err := json.Marshal(MustAmount(42))
	require.NoError(t, err)
	require.JSONEq(t, `"42"`, string(encoded))
}

func TestNonceParsing(t *testing.T) {
	var n Nonce
	require.NoError(t, json.Unmarshal([]byte(`"010"`), &n))
	require.EqualValues(t, 10, n)
	require.NoError(t, json.Unmarshal([]byte(`"0x1f"`), &n))
	require.EqualValues(t, 31, n)
	require.NoError(t, json.Unmarshal([]byte(`null`), &n))
	require.Zero(t, n)
	require.Error(t, json.Unmarshal([]byte(`-1`), &n))
}

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyLenient, policy)
	policy, err = ParsePolicy(" Strict ")
	require.NoError(t, err)
	require.Equal(t, PolicyStrict, policy)
	_, err = ParsePolicy("reckless")
	require.Error(t, err)
}
