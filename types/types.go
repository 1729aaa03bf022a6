package types

// X402Version represents the version of the x402 protocol
type X402Version int

const (
	X402Version1 X402Version = 1
)

// PaymentScheme represents different payment schemes
type PaymentScheme string

const (
	SchemeExact PaymentScheme = "exact"
)

// PaymentHeaderName is the correlation header carried on the replayed
// resource request once a payment has been settled.
const PaymentHeaderName = "x-payment-id"

// PaymentOption describes one way the resource server accepts payment.
// Exactly one option is acted upon per flow.
type PaymentOption struct {
	// Scheme of the payment protocol to use (e.g., "exact").
	Scheme string `json:"scheme" validate:"required"`

	// Network of the blockchain to send payment on (e.g., "cronos-testnet").
	Network string `json:"network" validate:"required"`

	// Maximum amount required to pay for the resource in atomic units of the
	// asset. Represented as a string because Go does not support uint256.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required"`

	// URL of the resource to pay for.
	Resource string `json:"resource"`

	// Description of the resource being purchased.
	Description string `json:"description"`

	// Address to which the payment must be sent.
	PayTo string `json:"payTo" validate:"required"`

	// Maximum time in seconds the authorization stays valid.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Address of the EIP-3009 compliant ERC20 contract.
	Asset string `json:"asset" validate:"required"`

	// Extra information about payment details specific to the scheme.
	// For the `exact` scheme on EVM this carries the server-issued
	// `paymentId` plus optional token domain fields `name` and `version`.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentID returns the server-issued correlation identifier for this
// option. Servers place it either under `extra.paymentId` or `extra.id`;
// an empty result means the option is unusable.
func (o *PaymentOption) PaymentID() string {
	if o.Extra == nil {
		return ""
	}
	if id, ok := o.Extra["paymentId"].(string); ok {
		return id
	}
	if id, ok := o.Extra["id"].(string); ok {
		return id
	}
	return ""
}

// TokenDomain returns the EIP-712 domain name and version for the asset,
// falling back to the USDC defaults the backends deploy with.
func (o *PaymentOption) TokenDomain() (name, version string) {
	name, version = "USDC", "2"
	if o.Extra == nil {
		return
	}
	if n, ok := o.Extra["name"].(string); ok && n != "" {
		name = n
	}
	if v, ok := o.Extra["version"].(string); ok && v != "" {
		version = v
	}
	return
}

// ServiceMetadata identifies the backend service that priced the resource.
// The settlement route is selected from it.
type ServiceMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PaymentChallenge is the machine-readable body of a 402 response.
// Immutable once received.
type PaymentChallenge struct {
	// Version of the x402 payment protocol.
	X402Version int `json:"x402Version" validate:"required,gt=0"`

	// List of payment options the resource server accepts.
	Accepts []PaymentOption `json:"accepts" validate:"required,min=1,dive"`

	// Message from the resource server indicating any processing error.
	Error string `json:"error,omitempty"`

	// Optional metadata about the charging service.
	ServiceInfo *ServiceMetadata `json:"serviceInfo,omitempty"`
}

// EVMAuthorization is the EIP-3009 TransferWithAuthorization message.
// Value, ValidAfter and ValidBefore are decimal strings (uint256), Nonce is
// 0x-prefixed 32-byte hex.
type EVMAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// SignedAuthorization couples an authorization with its chain-bound EIP-712
// signature. It is bound to exactly one paymentId and must not outlive its
// validity window.
type SignedAuthorization struct {
	PaymentID     string           `json:"paymentId"`
	Authorization EVMAuthorization `json:"authorization"`
	Signature     string           `json:"signature"` // 0x + r||s||v
}

// SettlementResult contains the outcome of submitting an authorization to
// the settlement endpoint. A missing TxHash on success is tolerated;
// settlement success does not require the client to have observed on-chain
// confirmation.
type SettlementResult struct {
	Success   bool   `json:"success"`
	TxHash    string `json:"txHash,omitempty"`
	NetworkID string `json:"networkId,omitempty"`
	ErrorBody string `json:"errorBody,omitempty"`
}

// PaymentStatus is the lifecycle of a payment record in the cache.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSettled PaymentStatus = "settled"
	PaymentFailed  PaymentStatus = "failed"
)

// PaymentRecord is the cache entry for one paymentId. Created on the first
// settlement attempt, mutated to settled/failed on completion, never deleted
// within a session.
type PaymentRecord struct {
	PaymentID   string        `json:"paymentId"`
	Status      PaymentStatus `json:"status"`
	TxHash      string        `json:"txHash,omitempty"`
	SettledAtMs int64         `json:"settledAtEpochMs,omitempty"`
}

// Settled reports whether the record can short-circuit a new flow straight
// to the resource retry.
func (r *PaymentRecord) Settled() bool {
	return r != nil && r.Status == PaymentSettled
}
