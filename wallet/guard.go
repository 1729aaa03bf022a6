package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DeegaLabs/cronos-shield-x402/logger"
	"github.com/DeegaLabs/cronos-shield-x402/metrics"
	"github.com/DeegaLabs/cronos-shield-x402/types"
)

// NetworkGuard aligns the wallet's active chain with the challenge network
// before anything is signed. Typed-data signatures are chain-bound, so
// signing on the wrong chain is a protocol violation, not a UX issue.
type NetworkGuard struct {
	provider Provider
	cfg      types.FlowConfig
	log      logger.Logger
	rec      metrics.Recorder
}

func NewNetworkGuard(provider Provider, cfg types.FlowConfig, log logger.Logger, rec metrics.Recorder) *NetworkGuard {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &NetworkGuard{provider: provider, cfg: cfg, log: log, rec: rec}
}

// switchChainParam is the single positional argument of
// wallet_switchEthereumChain.
type switchChainParam struct {
	ChainID string `json:"chainId"`
}

// addChainParam is the single positional argument of wallet_addEthereumChain.
type addChainParam struct {
	ChainID           string               `json:"chainId"`
	ChainName         string               `json:"chainName"`
	RPCUrls           []string             `json:"rpcUrls"`
	BlockExplorerUrls []string             `json:"blockExplorerUrls,omitempty"`
	NativeCurrency    types.NativeCurrency `json:"nativeCurrency"`
}

// EnsureNetwork makes the wallet's active chain equal the option's network.
// If the chains differ it requests a switch; if the wallet does not know the
// chain it registers it and retries the switch. After any switch or add the
// chain id is re-polled with a settling delay before success is declared,
// because switches are asynchronous and not guaranteed instantaneous.
func (g *NetworkGuard) EnsureNetwork(ctx context.Context, network types.Network) error {
	if g.provider == nil {
		return types.E(types.ErrSignerUnavailable, "no wallet provider detected")
	}

	params, err := network.Params()
	if err != nil {
		return err
	}
	want := params.HexChainID()

	current, err := g.chainID(ctx)
	if err != nil {
		return classify(err)
	}
	if types.SameChainID(current, want) {
		return nil
	}

	g.log.Info("switching wallet chain", map[string]any{
		"from": current, "to": want, "network": string(network),
	})
	g.rec.IncCounter(metrics.EventChainSwitch, map[string]string{"network": string(network)})

	if err := g.switchChain(ctx, params); err != nil {
		return err
	}

	return g.verifyChain(ctx, network, want)
}

func (g *NetworkGuard) switchChain(ctx context.Context, params types.ChainParams) error {
	_, err := g.provider.Request(ctx, methodSwitchChain, switchChainParam{ChainID: params.HexChainID()})
	if err == nil {
		return nil
	}

	if IsUnrecognizedChain(err) {
		if addErr := g.addChain(ctx, params); addErr != nil {
			return addErr
		}
		_, err = g.provider.Request(ctx, methodSwitchChain, switchChainParam{ChainID: params.HexChainID()})
		if err == nil {
			return nil
		}
	}

	cls := classify(err)
	if cls.Code == types.ErrUserRejected {
		// Declined chain switch means the chains cannot be aligned.
		return types.E(types.ErrNetworkMismatch,
			fmt.Sprintf("chain switch to %s declined in wallet", params.ChainName))
	}
	return cls
}

func (g *NetworkGuard) addChain(ctx context.Context, params types.ChainParams) error {
	_, err := g.provider.Request(ctx, methodAddChain, addChainParam{
		ChainID:           params.HexChainID(),
		ChainName:         params.ChainName,
		RPCUrls:           []string{params.RPCURL},
		BlockExplorerUrls: explorerList(params.ExplorerURL),
		NativeCurrency:    params.NativeCurrency,
	})
	if err == nil {
		return nil
	}

	cls := classify(err)
	if cls.Code == types.ErrUserRejected {
		return types.E(types.ErrNetworkMismatch,
			fmt.Sprintf("adding chain %s declined in wallet", params.ChainName))
	}
	return cls
}

// verifyChain re-polls the chain id until it matches or the attempt budget
// runs out.
func (g *NetworkGuard) verifyChain(ctx context.Context, network types.Network, want string) error {
	attempts := g.cfg.ChainVerifyAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return types.E(types.ErrNetworkMismatch, "canceled while waiting for chain switch")
		case <-time.After(g.cfg.ChainSettleDelay):
		}

		current, err := g.chainID(ctx)
		if err != nil {
			return classify(err)
		}
		if types.SameChainID(current, want) {
			return nil
		}
		g.log.Debug("chain not settled yet", map[string]any{
			"have": current, "want": want, "attempt": i + 1,
		})
	}

	return types.E(types.ErrNetworkMismatch,
		fmt.Sprintf("wallet chain did not settle on %s", string(network)))
}

func (g *NetworkGuard) chainID(ctx context.Context) (string, error) {
	raw, err := g.provider.Request(ctx, methodChainID)
	if err != nil {
		return "", err
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("malformed eth_chainId response: %w", err)
	}
	return id, nil
}

func explorerList(url string) []string {
	if url == "" {
		return nil
	}
	return []string{url}
}
