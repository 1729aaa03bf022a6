package types

// FlowState is one node of the payment flow state machine.
type FlowState string

const (
	StateInit            FlowState = "init"
	StateRequested       FlowState = "requested"
	StateChallenged      FlowState = "challenged"
	StateNetworkVerified FlowState = "network_verified"
	StateAuthorized      FlowState = "authorized"
	StateSettled         FlowState = "settled"
	StateCompleted       FlowState = "completed"

	// Terminal failure states, reachable from any in-flight state.
	StateRejected         FlowState = "rejected"
	StateNetworkMismatch  FlowState = "network_mismatch"
	StateSignerTimeout    FlowState = "signer_timeout"
	StateSettlementFailed FlowState = "settlement_failed"
	StateProtocolViolated FlowState = "protocol_violation"
)

// forward lists the single legal success transition out of each in-flight
// state. The cache short-circuit challenged -> settled is the one extra edge.
var forward = map[FlowState][]FlowState{
	StateInit:            {StateRequested},
	StateRequested:       {StateChallenged, StateCompleted},
	StateChallenged:      {StateNetworkVerified, StateSettled},
	StateNetworkVerified: {StateAuthorized},
	StateAuthorized:      {StateSettled},
	StateSettled:         {StateCompleted},
}

// Terminal reports whether no transition leaves s.
func (s FlowState) Terminal() bool {
	switch s {
	case StateCompleted, StateRejected, StateNetworkMismatch,
		StateSignerTimeout, StateSettlementFailed, StateProtocolViolated:
		return true
	}
	return false
}

// Failure reports whether s is a terminal failure state.
func (s FlowState) Failure() bool {
	return s.Terminal() && s != StateCompleted
}

// CanTransition is the pure transition predicate: success edges follow the
// forward table, and any in-flight state may fall into a failure state.
func CanTransition(from, to FlowState) bool {
	if from.Terminal() {
		return false
	}
	if to.Failure() {
		return true
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}

// FailureState maps an error code to the terminal state the flow ends in.
func FailureState(code string) FlowState {
	switch code {
	case ErrUserRejected:
		return StateRejected
	case ErrNetworkMismatch, ErrSignerUnavailable, ErrConfig:
		return StateNetworkMismatch
	case ErrAuthorizationTimeout, ErrTransientProvider:
		return StateSignerTimeout
	case ErrSettlementFailed:
		return StateSettlementFailed
	default:
		return StateProtocolViolated
	}
}
