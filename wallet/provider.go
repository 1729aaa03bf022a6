// Package wallet talks to an EIP-1193 wallet provider: chain alignment,
// account discovery and chain-bound typed-data signing.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DeegaLabs/cronos-shield-x402/types"
)

// Provider is the wallet provider surface the flow consumes. It mirrors the
// EIP-1193 request({method, params}) call; params are marshaled positionally.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// Provider RPC methods used by the flow.
const (
	methodChainID         = "eth_chainId"
	methodAccounts        = "eth_accounts"
	methodRequestAccounts = "eth_requestAccounts"
	methodSwitchChain     = "wallet_switchEthereumChain"
	methodAddChain        = "wallet_addEthereumChain"
	methodSignTypedData   = "eth_signTypedData_v4"
)

// ProviderError is the structured error a provider returns. Codes follow
// EIP-1193/EIP-1474; classification into the flow taxonomy happens on codes,
// never on message text.
type ProviderError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// EIP-1193 / EIP-1474 provider error codes.
const (
	codeUserRejected      = 4001  // user rejected the request
	codeUnauthorized      = 4100  // method/account not authorized
	codeUnsupported       = 4200  // method not supported
	codeDisconnected      = 4900  // provider disconnected
	codeChainDisconnected = 4901  // not connected to requested chain
	codeUnrecognizedChain = 4902  // chain not added to the wallet
	codeRequestPending    = -32002 // a request of this type is already pending
	codeLimitExceeded     = -32005
	codeInternal          = -32603 // provider-internal failure
)

// classify maps a provider failure to the typed taxonomy. Internal provider
// failures and pending-request races are retryable with a fresh signer
// handle; explicit user rejection is terminal.
func classify(err error) *types.X402Error {
	var xe *types.X402Error
	if errors.As(err, &xe) {
		return xe
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		return types.E(types.ErrTransientProvider, err.Error())
	}

	switch pe.Code {
	case codeUserRejected:
		return types.E(types.ErrUserRejected, "request rejected in wallet")
	case codeUnauthorized, codeUnsupported, codeDisconnected:
		return types.E(types.ErrSignerUnavailable, pe.Message)
	case codeInternal, codeRequestPending, codeLimitExceeded, codeChainDisconnected:
		return types.EData(types.ErrTransientProvider, pe.Message, pe.Code)
	default:
		return types.EData(types.ErrTransientProvider, pe.Message, pe.Code)
	}
}

// IsUnrecognizedChain reports the wallet_switchEthereumChain failure that
// asks for a wallet_addEthereumChain first.
func IsUnrecognizedChain(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == codeUnrecognizedChain
}

// ActiveAccount returns the wallet's active account, prompting for
// connection when no account is exposed yet. The connection prompt is
// bounded by timeout; a wallet with no accounts is SIGNER_UNAVAILABLE.
func ActiveAccount(ctx context.Context, provider Provider, cfg types.FlowConfig) (string, error) {
	if provider == nil {
		return "", types.E(types.ErrSignerUnavailable, "no wallet provider detected")
	}

	accounts, err := requestAccounts(ctx, provider, methodAccounts)
	if err != nil {
		return "", classify(err)
	}
	if len(accounts) > 0 {
		return accounts[0], nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.AccountRequestTimeout)
	defer cancel()

	accounts, err = requestAccounts(reqCtx, provider, methodRequestAccounts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", types.E(types.ErrSignerUnavailable,
				"wallet did not respond to the connection request; check that it is unlocked")
		}
		return "", classify(err)
	}
	if len(accounts) == 0 {
		return "", types.E(types.ErrSignerUnavailable, "wallet returned no accounts")
	}
	return accounts[0], nil
}

func requestAccounts(ctx context.Context, provider Provider, method string) ([]string, error) {
	raw, err := provider.Request(ctx, method)
	if err != nil {
		return nil, err
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("malformed %s response: %w", method, err)
	}
	return accounts, nil
}
