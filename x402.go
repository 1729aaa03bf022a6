// Package x402 implements the client side of the x402 paid-resource
// protocol: it turns an HTTP 402 challenge into a signed, settled and
// transparently replayed request.
package x402

import (
	"net/http"
	"time"

	"github.com/DeegaLabs/cronos-shield-x402/cache"
	"github.com/DeegaLabs/cronos-shield-x402/logger"
	"github.com/DeegaLabs/cronos-shield-x402/metrics"
	"github.com/DeegaLabs/cronos-shield-x402/settlement"
	"github.com/DeegaLabs/cronos-shield-x402/types"
	"github.com/DeegaLabs/cronos-shield-x402/wallet"
)

// Flow drives the payment state machine: challenge parsing, network
// alignment, authorization signing, settlement and the final replay of the
// original request. One Flow serves a whole client session; per-paymentId
// serialization and idempotency live in the shared store and gate.
type Flow struct {
	provider   wallet.Provider
	httpClient *http.Client
	store      cache.Store
	gate       *cache.Gate
	cfg        types.FlowConfig
	log        logger.Logger
	rec        metrics.Recorder
	now        func() time.Time

	guard     *wallet.NetworkGuard
	builder   *wallet.AuthorizationBuilder
	submitter *settlement.Submitter
}

// New creates a payment flow bound to a wallet provider. The zero
// configuration uses DefaultFlowConfig, an in-memory session store and no-op
// logging/metrics.
func New(provider wallet.Provider, opts ...Option) *Flow {
	f := &Flow{
		provider:   provider,
		httpClient: http.DefaultClient,
		store:      cache.NewMemoryStore(),
		gate:       cache.NewGate(),
		cfg:        types.DefaultFlowConfig(),
		log:        logger.NoopLogger{},
		rec:        metrics.NoopRecorder{},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(f)
	}

	f.guard = wallet.NewNetworkGuard(f.provider, f.cfg, f.log, f.rec)
	f.builder = wallet.NewAuthorizationBuilder(f.provider, f.cfg, f.log, f.rec).WithClock(f.now)
	f.submitter = settlement.NewSubmitter(f.httpClient, f.cfg, f.log, f.rec)

	return f
}

// Store exposes the flow's payment cache, e.g. to inspect settlement
// records after the fact.
func (f *Flow) Store() cache.Store {
	return f.store
}

// Result is the outcome of one completed flow.
type Result struct {
	State      types.FlowState
	StatusCode int
	Body       []byte
	PaymentID  string
	TxHash     string
}

// Version information
const (
	Version         = "1.0.0"
	ProtocolVersion = 1
)
