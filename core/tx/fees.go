package tx

import (
	"bytes"
	"encoding/json"
)

// FeeQuote is the get_tx_fee response. Every amount is zero.
type FeeQuote struct {
	FeeType     interface{} `json:"feeType"`
	GasTxAmount string      `json:"gasTxAmount"`
	GasPriceWei string      `json:"gasPriceWei"`
	GasFee      string      `json:"gasFee"`
	ZkpFee      string      `json:"zkpFee"`
	TotalFee    string      `json:"totalFee"`
}

// EstimateFee returns a zero quote echoing the requested fee type.
func (p *Processor) EstimateFee(feeType json.RawMessage) FeeQuote {
	return ZeroQuote(feeType, p == nil || p.feeAlias)
}

// ZeroQuote builds the zero-valued quote. With alias set, a ChangePubKey fee
// type carrying onchainPubkeyAuth also gets the onchain_pubkey_auth spelling
// older client releases read back.
func ZeroQuote(feeType json.RawMessage, alias bool) FeeQuote {
	return FeeQuote{
		FeeType:     echoFeeType(feeType, alias),
		GasTxAmount: "0",
		GasPriceWei: "0",
		GasFee:      "0",
		ZkpFee:      "0",
		TotalFee:    "0",
	}
}

func echoFeeType(raw json.RawMessage, alias bool) interface{} {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	var decoded interface{}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return string(trimmed)
	}
	if !alias {
		return decoded
	}
	outer, ok := decoded.(map[string]interface{})
	if !ok {
		return decoded
	}
	inner, ok := outer[string(KindChangePubKey)].(map[string]interface{})
	if !ok {
		return decoded
	}
	if value, present := inner["onchainPubkeyAuth"]; present {
		inner["onchain_pubkey_auth"] = value
	}
	return decoded
}
