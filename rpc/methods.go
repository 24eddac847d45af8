package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"rollupmock/core/tx"
)

// params gives uniform access to positional and named arguments. Extra
// positional arguments are ignored.
type params struct {
	positional []json.RawMessage
	named      map[string]json.RawMessage
}

func parseParams(raw json.RawMessage) (params, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return params{}, nil
	}
	var p params
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &p.positional); err != nil {
			return params{}, invalidParams("params must be an array or object")
		}
	case '{':
		if err := json.Unmarshal(trimmed, &p.named); err != nil {
			return params{}, invalidParams("params must be an array or object")
		}
	default:
		return params{}, invalidParams("params must be an array or object")
	}
	return p, nil
}

// arg returns the argument at index, or the first present named alias.
func (p params) arg(index int, names ...string) (json.RawMessage, bool) {
	if p.named != nil {
		for _, name := range names {
			if value, ok := p.named[name]; ok && !isNull(value) {
				return value, true
			}
		}
		return nil, false
	}
	if index < len(p.positional) && !isNull(p.positional[index]) {
		return p.positional[index], true
	}
	return nil, false
}

func (p params) requireString(index int, names ...string) (string, error) {
	raw, ok := p.arg(index, names...)
	if !ok {
		return "", invalidParams(fmt.Sprintf("%s required", names[0]))
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil || value == "" {
		return "", invalidParams(fmt.Sprintf("%s must be a non-empty string", names[0]))
	}
	return value, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func invalidParams(message string) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: message}
}

func (s *Server) invoke(ctx context.Context, method string, raw json.RawMessage) (interface{}, error) {
	p, err := parseParams(raw)
	if err != nil {
		return nil, err
	}
	switch method {
	case "contract_address":
		return s.query.ContractAddresses(), nil
	case "tokens":
		return s.query.Tokens(), nil
	case "account_info":
		address, err := p.requireString(0, "address")
		if err != nil {
			return nil, err
		}
		return s.query.AccountInfo(ctx, address)
	case "get_tx_fee":
		feeType, ok := p.arg(0, "tx_type", "txType")
		if !ok {
			return nil, invalidParams("tx_type required")
		}
		return s.processor.EstimateFee(feeType), nil
	case "tx_submit":
		payload, ok := p.arg(0, "tx", "params")
		if !ok {
			return nil, invalidParams("tx required")
		}
		req, err := tx.DecodeRequest(payload)
		if err != nil {
			return nil, err
		}
		return s.processor.Submit(ctx, req)
	case "tx_info":
		id, err := p.requireString(0, "tx_hash", "hash")
		if err != nil {
			return nil, err
		}
		return s.query.TxInfo(id), nil
	case "ethop_info":
		return s.query.EthOpInfo(), nil
	default:
		return nil, &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", method)}
	}
}
