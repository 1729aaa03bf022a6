package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/DeegaLabs/cronos-shield-x402/types"
)

// KeyProvider is an in-process EIP-1193 provider backed by a raw private
// key. Headless agents run the same payment flow a browser wallet drives,
// with switches resolving instantly and signing never prompting.
type KeyProvider struct {
	mu          sync.Mutex
	key         *ecdsa.PrivateKey
	address     string
	activeChain string
	knownChains map[string]bool
}

// NewKeyProvider builds a KeyProvider from a hex private key, starting on
// the given network.
func NewKeyProvider(privKeyHex string, network types.Network) (*KeyProvider, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privKeyHex, "0x"))
	if err != nil {
		return nil, types.E(types.ErrConfig, fmt.Sprintf("invalid private key: %v", err))
	}
	return NewKeyProviderFromKey(key, network)
}

// NewKeyProviderFromKey builds a KeyProvider from an in-memory key.
func NewKeyProviderFromKey(key *ecdsa.PrivateKey, network types.Network) (*KeyProvider, error) {
	params, err := network.Params()
	if err != nil {
		return nil, err
	}
	hexID := params.HexChainID()
	return &KeyProvider{
		key:         key,
		address:     crypto.PubkeyToAddress(key.PublicKey).Hex(),
		activeChain: hexID,
		knownChains: map[string]bool{hexID: true},
	}, nil
}

// Address returns the provider's account address.
func (p *KeyProvider) Address() string {
	return p.address
}

// Request implements Provider.
func (p *KeyProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch method {
	case methodChainID:
		return json.Marshal(p.activeChain)

	case methodAccounts, methodRequestAccounts:
		return json.Marshal([]string{p.address})

	case methodSwitchChain:
		target, err := chainIDParam(params)
		if err != nil {
			return nil, err
		}
		if !p.knownChains[strings.ToLower(target)] {
			return nil, &ProviderError{Code: codeUnrecognizedChain, Message: "unrecognized chain"}
		}
		p.activeChain = target
		return json.Marshal(nil)

	case methodAddChain:
		target, err := chainIDParam(params)
		if err != nil {
			return nil, err
		}
		p.knownChains[strings.ToLower(target)] = true
		return json.Marshal(nil)

	case methodSignTypedData:
		return p.signTypedData(params)

	default:
		return nil, &ProviderError{Code: codeUnsupported, Message: fmt.Sprintf("unsupported method %s", method)}
	}
}

func (p *KeyProvider) signTypedData(params []any) (json.RawMessage, error) {
	if len(params) != 2 {
		return nil, &ProviderError{Code: codeInternal, Message: "eth_signTypedData_v4 expects [account, typedData]"}
	}
	account, _ := params[0].(string)
	if !strings.EqualFold(account, p.address) {
		return nil, &ProviderError{Code: codeUnauthorized, Message: "unknown account"}
	}
	doc, _ := params[1].(string)

	var typedData apitypes.TypedData
	if err := json.Unmarshal([]byte(doc), &typedData); err != nil {
		return nil, &ProviderError{Code: codeInternal, Message: fmt.Sprintf("malformed typed data: %v", err)}
	}

	// The signature is chain-bound through the domain; refuse to sign typed
	// data whose domain chain differs from the active chain.
	if typedData.Domain.ChainId != nil {
		domainChain := "0x" + (*big.Int)(typedData.Domain.ChainId).Text(16)
		if !types.SameChainID(domainChain, p.activeChain) {
			return nil, &ProviderError{Code: codeChainDisconnected, Message: "typed data bound to another chain"}
		}
	}

	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, &ProviderError{Code: codeInternal, Message: fmt.Sprintf("cannot hash typed data: %v", err)}
	}

	sig, err := crypto.Sign(digest, p.key)
	if err != nil {
		return nil, &ProviderError{Code: codeInternal, Message: fmt.Sprintf("signing failed: %v", err)}
	}
	sig[64] += 27

	return json.Marshal("0x" + fmt.Sprintf("%x", sig))
}

func chainIDParam(params []any) (string, error) {
	if len(params) != 1 {
		return "", &ProviderError{Code: codeInternal, Message: "expected one chain parameter"}
	}
	switch v := params[0].(type) {
	case switchChainParam:
		return v.ChainID, nil
	case addChainParam:
		return v.ChainID, nil
	case map[string]interface{}:
		if id, ok := v["chainId"].(string); ok {
			return id, nil
		}
	}
	return "", &ProviderError{Code: codeInternal, Message: "missing chainId parameter"}
}
