package types

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// FlowConfig carries the tunables of the payment flow. The differences
// observed between iterations of the original client (retry counts, timeout
// values) live here as configuration, not as forked logic.
type FlowConfig struct {
	// BackendBaseURL is the settlement backend, e.g. "https://api.example.com".
	BackendBaseURL string

	// ServiceRoutes maps a substring of the challenge's service name or
	// resource URL to the settlement route name. First match wins.
	ServiceRoutes map[string]string

	// DefaultService is the settlement route used when nothing matches.
	DefaultService string

	// ChainSettleDelay is slept between chain-switch attempts and re-polls;
	// switches are asynchronous and not guaranteed instantaneous.
	ChainSettleDelay time.Duration

	// ChainVerifyAttempts bounds the re-poll loop after a switch or add.
	ChainVerifyAttempts int

	// AccountRequestTimeout bounds eth_requestAccounts.
	AccountRequestTimeout time.Duration

	// SignTimeout is the wall-clock deadline on one typed-data signing call,
	// distinct from the retry bound.
	SignTimeout time.Duration

	// SignRetries is how many extra attempts a transient provider error is
	// granted, each with a fresh signer handle.
	SignRetries int

	// SignBackoff is slept before each signing retry.
	SignBackoff time.Duration
}

// DefaultFlowConfig returns the timings and bounds the flow ships with.
func DefaultFlowConfig() FlowConfig {
	return FlowConfig{
		ServiceRoutes:         map[string]string{"divergence": "divergence"},
		DefaultService:        "risk",
		ChainSettleDelay:      time.Second,
		ChainVerifyAttempts:   3,
		AccountRequestTimeout: 10 * time.Second,
		SignTimeout:           60 * time.Second,
		SignRetries:           2,
		SignBackoff:           600 * time.Millisecond,
	}
}

// ConfigFromEnv loads FlowConfig from the environment, reading an optional
// .env file first. Recognized variables:
//
//	X402_BACKEND_URL      settlement backend base URL (required)
//	X402_DEFAULT_SERVICE  default settlement route name
//	X402_CHAIN_NETWORK    network name for a custom chain registration
//	X402_CHAIN_ID         decimal chain id for the custom chain
//	X402_CHAIN_NAME       display name for wallet_addEthereumChain
//	X402_CHAIN_RPC_URL    RPC endpoint for the custom chain
//	X402_CHAIN_EXPLORER   block explorer URL for the custom chain
func ConfigFromEnv() (FlowConfig, error) {
	_ = godotenv.Load()

	cfg := DefaultFlowConfig()
	cfg.BackendBaseURL = strings.TrimRight(os.Getenv("X402_BACKEND_URL"), "/")
	if cfg.BackendBaseURL == "" {
		return FlowConfig{}, E(ErrConfig, "X402_BACKEND_URL is not set")
	}
	if svc := os.Getenv("X402_DEFAULT_SERVICE"); svc != "" {
		cfg.DefaultService = svc
	}

	if network := os.Getenv("X402_CHAIN_NETWORK"); network != "" {
		id, ok := new(big.Int).SetString(os.Getenv("X402_CHAIN_ID"), 10)
		if !ok {
			return FlowConfig{}, E(ErrConfig, fmt.Sprintf("invalid X402_CHAIN_ID %q", os.Getenv("X402_CHAIN_ID")))
		}
		err := RegisterChain(Network(network), ChainParams{
			ChainID:        id,
			ChainName:      os.Getenv("X402_CHAIN_NAME"),
			RPCURL:         os.Getenv("X402_CHAIN_RPC_URL"),
			ExplorerURL:    os.Getenv("X402_CHAIN_EXPLORER"),
			NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		})
		if err != nil {
			return FlowConfig{}, err
		}
	}

	return cfg, nil
}
