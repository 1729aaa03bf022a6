package wallet

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeegaLabs/cronos-shield-x402/types"
)

// scriptedProvider simulates an EIP-1193 wallet with a controllable chain.
type scriptedProvider struct {
	mu          sync.Mutex
	chainID     string
	knownChains map[string]bool
	switchErr   error // returned by the next wallet_switchEthereumChain
	addErr      error // returned by wallet_addEthereumChain
	stuck       bool  // when set, switches are acknowledged but never applied

	calls []string
}

func newScriptedProvider(chainID string) *scriptedProvider {
	return &scriptedProvider{
		chainID:     chainID,
		knownChains: map[string]bool{chainID: true},
	}
}

func (p *scriptedProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, method)

	switch method {
	case "eth_chainId":
		return json.Marshal(p.chainID)

	case "wallet_switchEthereumChain":
		if p.switchErr != nil {
			err := p.switchErr
			p.switchErr = nil
			return nil, err
		}
		target := params[0].(switchChainParam).ChainID
		if !p.knownChains[target] {
			return nil, &ProviderError{Code: 4902, Message: "unrecognized chain"}
		}
		if !p.stuck {
			p.chainID = target
		}
		return json.Marshal(nil)

	case "wallet_addEthereumChain":
		if p.addErr != nil {
			return nil, p.addErr
		}
		p.knownChains[params[0].(addChainParam).ChainID] = true
		return json.Marshal(nil)
	}
	return nil, &ProviderError{Code: 4200, Message: "unsupported method"}
}

func (p *scriptedProvider) callCount(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == method {
			n++
		}
	}
	return n
}

func guardConfig() types.FlowConfig {
	cfg := types.DefaultFlowConfig()
	cfg.ChainSettleDelay = time.Millisecond
	cfg.ChainVerifyAttempts = 3
	return cfg
}

func TestEnsureNetworkAlreadyAligned(t *testing.T) {
	p := newScriptedProvider("0x152") // 338, cronos-testnet
	g := NewNetworkGuard(p, guardConfig(), nil, nil)

	require.NoError(t, g.EnsureNetwork(context.Background(), types.NetworkCronosTestnet))
	assert.Zero(t, p.callCount("wallet_switchEthereumChain"))
}

func TestEnsureNetworkSwitches(t *testing.T) {
	p := newScriptedProvider("0x14a34") // base-sepolia
	p.knownChains["0x152"] = true
	g := NewNetworkGuard(p, guardConfig(), nil, nil)

	require.NoError(t, g.EnsureNetwork(context.Background(), types.NetworkCronosTestnet))
	assert.Equal(t, "0x152", p.chainID)
	// The chain id must be re-verified after the switch.
	assert.GreaterOrEqual(t, p.callCount("eth_chainId"), 2)
}

func TestEnsureNetworkRegistersUnknownChain(t *testing.T) {
	p := newScriptedProvider("0x14a34")
	g := NewNetworkGuard(p, guardConfig(), nil, nil)

	require.NoError(t, g.EnsureNetwork(context.Background(), types.NetworkCronosTestnet))
	assert.Equal(t, 1, p.callCount("wallet_addEthereumChain"))
	assert.Equal(t, "0x152", p.chainID)
}

func TestEnsureNetworkUserDeclinesSwitch(t *testing.T) {
	p := newScriptedProvider("0x14a34")
	p.switchErr = &ProviderError{Code: 4001, Message: "User rejected the request."}
	g := NewNetworkGuard(p, guardConfig(), nil, nil)

	err := g.EnsureNetwork(context.Background(), types.NetworkCronosTestnet)
	assert.True(t, types.IsCode(err, types.ErrNetworkMismatch))
}

func TestEnsureNetworkUserDeclinesAdd(t *testing.T) {
	p := newScriptedProvider("0x14a34")
	p.addErr = &ProviderError{Code: 4001, Message: "User rejected the request."}
	g := NewNetworkGuard(p, guardConfig(), nil, nil)

	err := g.EnsureNetwork(context.Background(), types.NetworkCronosTestnet)
	assert.True(t, types.IsCode(err, types.ErrNetworkMismatch))
}

func TestEnsureNetworkSwitchNeverSettles(t *testing.T) {
	p := newScriptedProvider("0x14a34")
	p.knownChains["0x152"] = true
	p.stuck = true
	g := NewNetworkGuard(p, guardConfig(), nil, nil)

	err := g.EnsureNetwork(context.Background(), types.NetworkCronosTestnet)
	assert.True(t, types.IsCode(err, types.ErrNetworkMismatch))
}

func TestEnsureNetworkNoProvider(t *testing.T) {
	g := NewNetworkGuard(nil, guardConfig(), nil, nil)

	err := g.EnsureNetwork(context.Background(), types.NetworkCronosTestnet)
	assert.True(t, types.IsCode(err, types.ErrSignerUnavailable))
}

func TestEnsureNetworkUnknownNetwork(t *testing.T) {
	g := NewNetworkGuard(newScriptedProvider("0x152"), guardConfig(), nil, nil)

	err := g.EnsureNetwork(context.Background(), types.Network("no-such-chain"))
	assert.True(t, types.IsCode(err, types.ErrConfig))
}
