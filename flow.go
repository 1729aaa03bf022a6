package x402

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DeegaLabs/cronos-shield-x402/challenge"
	"github.com/DeegaLabs/cronos-shield-x402/metrics"
	"github.com/DeegaLabs/cronos-shield-x402/types"
	"github.com/DeegaLabs/cronos-shield-x402/wallet"
)

// run tracks one flow instance through the state machine. Cancellation
// discards the run without touching the shared payment cache.
type run struct {
	flow    *Flow
	state   types.FlowState
	network string
	started time.Time
}

func (f *Flow) newRun() *run {
	return &run{flow: f, state: types.StateInit, started: f.now()}
}

// to advances the run to the next state, enforcing the transition table.
func (r *run) to(next types.FlowState) error {
	if !types.CanTransition(r.state, next) {
		return types.E(types.ErrProtocolViolation,
			fmt.Sprintf("illegal flow transition %s -> %s", r.state, next))
	}
	r.flow.log.Debug("flow transition", map[string]any{
		"from": string(r.state), "to": string(next),
	})
	r.state = next
	return nil
}

// fail moves the run into the terminal failure state for the error and
// returns the error unchanged.
func (r *run) fail(err error) error {
	r.state = types.FailureState(types.CodeOf(err))
	r.flow.rec.IncCounter(metrics.EventFlowFailed, map[string]string{"network": r.network})
	r.flow.log.Error("flow failed", map[string]any{
		"state": string(r.state), "error": err.Error(),
	})
	return err
}

// Fetch performs a GET against a priced resource, paying for it when the
// server answers with a 402 challenge. A response that needs no payment is
// returned as-is.
func (f *Flow) Fetch(ctx context.Context, url string) (*Result, error) {
	r := f.newRun()
	if err := r.to(types.StateRequested); err != nil {
		return nil, err
	}

	status, body, err := f.get(ctx, url, "")
	if err != nil {
		return nil, r.fail(types.E(types.ErrProtocolViolation, err.Error()))
	}

	if status != http.StatusPaymentRequired {
		if err := r.to(types.StateCompleted); err != nil {
			return nil, err
		}
		return &Result{State: r.state, StatusCode: status, Body: body}, nil
	}

	ch, opt, err := f.parseChallenge(r, body)
	if err != nil {
		return nil, r.fail(err)
	}

	record, err := f.settleOption(ctx, r, ch, opt)
	if err != nil {
		return nil, r.fail(err)
	}

	return f.replay(ctx, r, url, record)
}

// parseChallenge decodes and validates the 402 body and selects the option
// the flow acts on.
func (f *Flow) parseChallenge(r *run, body []byte) (*types.PaymentChallenge, *types.PaymentOption, error) {
	ch, err := challenge.Parse(body)
	if err != nil {
		return nil, nil, err
	}
	if err := r.to(types.StateChallenged); err != nil {
		return nil, nil, err
	}

	opt, err := challenge.Select(ch)
	if err != nil {
		return nil, nil, err
	}
	r.network = opt.Network
	f.rec.IncCounter(metrics.EventChallengeParsed, map[string]string{"network": r.network})
	return ch, opt, nil
}

// settleOption takes one payment option from cache consultation through
// settlement. Concurrent flows on the same paymentId serialize on the gate;
// a settled cache record short-circuits without a single wallet prompt.
func (f *Flow) settleOption(ctx context.Context, r *run, ch *types.PaymentChallenge, opt *types.PaymentOption) (*types.PaymentRecord, error) {
	paymentID := opt.PaymentID()

	release, err := f.gate.Acquire(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer release()

	if rec := f.store.Lookup(paymentID); rec.Settled() {
		f.rec.IncCounter(metrics.EventCacheHit, map[string]string{"network": r.network})
		f.log.Info("payment already settled, skipping signature", map[string]any{
			"paymentId": paymentID,
		})
		if err := r.to(types.StateSettled); err != nil {
			return nil, err
		}
		return rec, nil
	}

	if err := f.guard.EnsureNetwork(ctx, types.Network(opt.Network)); err != nil {
		return nil, err
	}
	if err := r.to(types.StateNetworkVerified); err != nil {
		return nil, err
	}

	account, err := f.activeAccount(ctx)
	if err != nil {
		return nil, err
	}

	auth, err := f.builder.BuildAndSign(ctx, account, opt, paymentID)
	if err != nil {
		return nil, err
	}
	if err := r.to(types.StateAuthorized); err != nil {
		return nil, err
	}

	// The record is created on the first settlement attempt, not before;
	// canceling during signing leaves the shared cache untouched.
	f.store.Record(paymentID, types.PaymentRecord{
		PaymentID: paymentID,
		Status:    types.PaymentPending,
	})

	result, err := f.submitter.Submit(ctx, ch, opt, auth)
	if err != nil {
		f.store.Record(paymentID, types.PaymentRecord{
			PaymentID: paymentID,
			Status:    types.PaymentFailed,
		})
		return nil, err
	}

	rec := types.PaymentRecord{
		PaymentID:   paymentID,
		Status:      types.PaymentSettled,
		TxHash:      result.TxHash,
		SettledAtMs: f.now().UnixMilli(),
	}
	f.store.Record(paymentID, rec)
	if err := r.to(types.StateSettled); err != nil {
		return nil, err
	}
	return &rec, nil
}

// replay re-issues the original request carrying the settled paymentId. One
// automatic retry is permitted; a renewed 402 means the server did not honor
// the settlement and the flow must not pay again.
func (f *Flow) replay(ctx context.Context, r *run, url string, record *types.PaymentRecord) (*Result, error) {
	status, body, err := f.get(ctx, url, record.PaymentID)
	if err != nil {
		return nil, r.fail(types.E(types.ErrProtocolViolation, err.Error()))
	}

	switch {
	case status == http.StatusPaymentRequired:
		return nil, r.fail(types.E(types.ErrProtocolViolation,
			fmt.Sprintf("server did not honor settled payment %s", record.PaymentID)))
	case status < 200 || status > 299:
		return nil, r.fail(types.EData(types.ErrProtocolViolation,
			fmt.Sprintf("replayed request returned %d for settled payment %s", status, record.PaymentID),
			string(body)))
	}

	if err := r.to(types.StateCompleted); err != nil {
		return nil, err
	}
	f.rec.IncCounter(metrics.EventFlowCompleted, map[string]string{"network": r.network})
	f.rec.ObserveLatency("flow", time.Since(r.started), map[string]string{"network": r.network})
	f.log.Info("flow completed", map[string]any{
		"paymentId": record.PaymentID, "txHash": record.TxHash,
	})

	return &Result{
		State:      r.state,
		StatusCode: status,
		Body:       body,
		PaymentID:  record.PaymentID,
		TxHash:     record.TxHash,
	}, nil
}

func (f *Flow) activeAccount(ctx context.Context) (string, error) {
	return wallet.ActiveAccount(ctx, f.provider, f.cfg)
}

func (f *Flow) get(ctx context.Context, url, paymentID string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	if paymentID != "" {
		req.Header.Set(types.PaymentHeaderName, paymentID)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
