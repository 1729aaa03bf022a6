package types

import (
	"fmt"
	"math/big"
	"strings"
)

// Network is the x402 network identifier carried in a payment option.
type Network string

const (
	NetworkCronos        Network = "cronos"
	NetworkCronosTestnet Network = "cronos-testnet"
	NetworkBase          Network = "base"
	NetworkBaseSepolia   Network = "base-sepolia"
	NetworkPolygon       Network = "polygon"
	NetworkPolygonAmoy   Network = "polygon-amoy"
)

// NativeCurrency describes the chain's gas token, as required by
// wallet_addEthereumChain.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// ChainParams holds everything needed to switch to or register a chain with
// a wallet provider.
type ChainParams struct {
	ChainID        *big.Int
	ChainName      string
	RPCURL         string
	ExplorerURL    string
	NativeCurrency NativeCurrency
}

// HexChainID returns the chain id in the 0x-prefixed hex form EIP-1193
// methods exchange.
func (p ChainParams) HexChainID() string {
	return "0x" + p.ChainID.Text(16)
}

var chainRegistry = map[Network]ChainParams{
	NetworkCronos: {
		ChainID:        big.NewInt(25),
		ChainName:      "Cronos Mainnet",
		RPCURL:         "https://evm.cronos.org",
		ExplorerURL:    "https://explorer.cronos.org",
		NativeCurrency: NativeCurrency{Name: "Cronos", Symbol: "CRO", Decimals: 18},
	},
	NetworkCronosTestnet: {
		ChainID:        big.NewInt(338),
		ChainName:      "Cronos Testnet",
		RPCURL:         "https://evm-t3.cronos.org",
		ExplorerURL:    "https://explorer.cronos.org/testnet",
		NativeCurrency: NativeCurrency{Name: "Cronos Test Coin", Symbol: "TCRO", Decimals: 18},
	},
	NetworkBase: {
		ChainID:        big.NewInt(8453),
		ChainName:      "Base",
		RPCURL:         "https://mainnet.base.org",
		ExplorerURL:    "https://basescan.org",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
	},
	NetworkBaseSepolia: {
		ChainID:        big.NewInt(84532),
		ChainName:      "Base Sepolia",
		RPCURL:         "https://sepolia.base.org",
		ExplorerURL:    "https://sepolia.basescan.org",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
	},
	NetworkPolygon: {
		ChainID:        big.NewInt(137),
		ChainName:      "Polygon Mainnet",
		RPCURL:         "https://polygon-rpc.com",
		ExplorerURL:    "https://polygonscan.com",
		NativeCurrency: NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18},
	},
	NetworkPolygonAmoy: {
		ChainID:        big.NewInt(80002),
		ChainName:      "Polygon Amoy",
		RPCURL:         "https://rpc-amoy.polygon.technology",
		ExplorerURL:    "https://amoy.polygonscan.com",
		NativeCurrency: NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18},
	},
}

// Params resolves the chain parameters for a network, honoring overrides
// registered via RegisterChain.
func (n Network) Params() (ChainParams, error) {
	p, ok := chainRegistry[n]
	if !ok {
		return ChainParams{}, E(ErrConfig, fmt.Sprintf("unknown network: %s", n))
	}
	return p, nil
}

// Known reports whether the network has registered chain parameters.
func (n Network) Known() bool {
	_, ok := chainRegistry[n]
	return ok
}

// RegisterChain installs or overrides chain parameters for a network.
// Environment-driven configuration uses this for custom deployments.
func RegisterChain(n Network, p ChainParams) error {
	if n == "" || p.ChainID == nil || p.ChainName == "" {
		return E(ErrConfig, "chain registration requires network, chain id and name")
	}
	chainRegistry[n] = p
	return nil
}

// SameChainID compares two hex chain ids ignoring case and leading zeros.
func SameChainID(a, b string) bool {
	pa, okA := parseHexChainID(a)
	pb, okB := parseHexChainID(b)
	if !okA || !okB {
		return strings.EqualFold(a, b)
	}
	return pa.Cmp(pb) == 0
}

func parseHexChainID(s string) (*big.Int, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, false
	}
	n := new(big.Int)
	_, ok := n.SetString(s, 16)
	return n, ok
}
