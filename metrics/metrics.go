package metrics

import "time"

// Event names recorded by the flow.
const (
	EventChallengeParsed  = "challenge_parsed"
	EventCacheHit         = "cache_hit"
	EventChainSwitch      = "chain_switch"
	EventSignature        = "signature"
	EventSignatureRetry   = "signature_retry"
	EventSettlement       = "settlement"
	EventSettlementFailed = "settlement_failed"
	EventFlowCompleted    = "flow_completed"
	EventFlowFailed       = "flow_failed"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
