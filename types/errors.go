package types

import "errors"

// X402Error is the typed error surfaced by every layer of the flow. Code is
// stable and machine-checkable; Message is human-readable; Data carries raw
// diagnostics such as a settlement error body.
type X402Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *X402Error) Error() string {
	return e.Message
}

// Error codes. Wallet-provider failures are classified into these at the
// wallet layer from EIP-1193 numeric codes, never from message text.
const (
	// User explicitly declined a wallet prompt or a chain switch.
	ErrUserRejected = "USER_REJECTED"

	// The wallet's chain could not be aligned with the challenge network.
	ErrNetworkMismatch = "NETWORK_MISMATCH"

	// No wallet provider, or the provider returned no accounts.
	ErrSignerUnavailable = "SIGNER_UNAVAILABLE"

	// The typed-data signing call exceeded its wall-clock deadline.
	ErrAuthorizationTimeout = "AUTHORIZATION_TIMEOUT"

	// Provider-internal glitch unrelated to user intent; retried with a
	// fresh signer handle before being escalated.
	ErrTransientProvider = "TRANSIENT_PROVIDER_ERROR"

	// The authorization's validity window has already closed.
	ErrAuthorizationExpired = "AUTHORIZATION_EXPIRED"

	// Non-2xx from the settlement endpoint. Data holds the body verbatim.
	ErrSettlementFailed = "SETTLEMENT_FAILED"

	// The server did not honor a presented paymentId, or the challenge
	// itself is unusable (no paymentId, empty options).
	ErrProtocolViolation = "PROTOCOL_VIOLATION"

	// Malformed 402 body or failed struct validation.
	ErrInvalidChallenge = "INVALID_CHALLENGE"

	// Unknown network or incomplete chain configuration.
	ErrConfig = "CONFIG_ERROR"
)

// E builds an X402Error.
func E(code, message string) *X402Error {
	return &X402Error{Code: code, Message: message}
}

// EData builds an X402Error carrying raw diagnostic data.
func EData(code, message string, data interface{}) *X402Error {
	return &X402Error{Code: code, Message: message, Data: data}
}

// CodeOf extracts the error code, or "" for untyped errors.
func CodeOf(err error) string {
	var xe *X402Error
	if errors.As(err, &xe) {
		return xe.Code
	}
	return ""
}

// IsCode reports whether err is an X402Error with the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// Retryable reports whether the signing layer may retry after this error
// with a fresh signer handle.
func Retryable(err error) bool {
	return IsCode(err, ErrTransientProvider)
}
