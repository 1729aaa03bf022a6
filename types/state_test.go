package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHappyPathTransitions(t *testing.T) {
	path := []FlowState{
		StateInit, StateRequested, StateChallenged,
		StateNetworkVerified, StateAuthorized, StateSettled, StateCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]),
			"%s -> %s should be legal", path[i], path[i+1])
	}
}

func TestCacheShortCircuit(t *testing.T) {
	assert.True(t, CanTransition(StateChallenged, StateSettled))
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	terminals := []FlowState{
		StateCompleted, StateRejected, StateNetworkMismatch,
		StateSignerTimeout, StateSettlementFailed, StateProtocolViolated,
	}
	all := append([]FlowState{
		StateInit, StateRequested, StateChallenged,
		StateNetworkVerified, StateAuthorized, StateSettled,
	}, terminals...)

	for _, from := range terminals {
		assert.True(t, from.Terminal())
		for _, to := range all {
			assert.False(t, CanTransition(from, to),
				"terminal %s must not transition to %s", from, to)
		}
	}
}

func TestFailureReachableFromInFlight(t *testing.T) {
	inFlight := []FlowState{
		StateInit, StateRequested, StateChallenged,
		StateNetworkVerified, StateAuthorized, StateSettled,
	}
	for _, from := range inFlight {
		assert.True(t, CanTransition(from, StateProtocolViolated))
		assert.True(t, CanTransition(from, StateRejected))
	}
}

func TestIllegalForwardJumps(t *testing.T) {
	assert.False(t, CanTransition(StateInit, StateAuthorized))
	assert.False(t, CanTransition(StateRequested, StateSettled))
	assert.False(t, CanTransition(StateSettled, StateAuthorized))
}

func TestFailureStateMapping(t *testing.T) {
	cases := map[string]FlowState{
		ErrUserRejected:         StateRejected,
		ErrNetworkMismatch:      StateNetworkMismatch,
		ErrSignerUnavailable:    StateNetworkMismatch,
		ErrAuthorizationTimeout: StateSignerTimeout,
		ErrTransientProvider:    StateSignerTimeout,
		ErrSettlementFailed:     StateSettlementFailed,
		ErrProtocolViolation:    StateProtocolViolated,
		ErrInvalidChallenge:     StateProtocolViolated,
	}
	for code, want := range cases {
		assert.Equal(t, want, FailureState(code), "code %s", code)
	}
}
