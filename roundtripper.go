package x402

import (
	"fmt"
	"io"
	"net/http"

	"github.com/DeegaLabs/cronos-shield-x402/types"
)

// PaymentRoundTripper gives a plain *http.Client transparent 402 handling:
// a 402 response triggers the payment flow and the request is replayed once
// with the settled paymentId attached.
type PaymentRoundTripper struct {
	Base http.RoundTripper
	Flow *Flow
}

// WrapHTTPClient installs the payment round tripper on an HTTP client.
func (f *Flow) WrapHTTPClient(client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client.Transport = &PaymentRoundTripper{Base: base, Flow: f}
	return client
}

// RoundTrip implements http.RoundTripper.
func (t *PaymentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read 402 response body: %w", err)
	}

	ctx := req.Context()
	r := t.Flow.newRun()
	r.state = types.StateRequested

	ch, opt, err := t.Flow.parseChallenge(r, body)
	if err != nil {
		r.fail(err)
		return nil, err
	}

	record, err := t.Flow.settleOption(ctx, r, ch, opt)
	if err != nil {
		r.fail(err)
		return nil, err
	}

	// Exactly one automatic retry. A renewed 402 is the server refusing a
	// settled payment, never a reason to pay again.
	retryReq := req.Clone(ctx)
	retryReq.Header.Set(types.PaymentHeaderName, record.PaymentID)

	retryResp, err := t.Base.RoundTrip(retryReq)
	if err != nil {
		return nil, err
	}
	if retryResp.StatusCode == http.StatusPaymentRequired {
		retryResp.Body.Close()
		violation := types.E(types.ErrProtocolViolation,
			fmt.Sprintf("server did not honor settled payment %s", record.PaymentID))
		r.fail(violation)
		return nil, violation
	}

	return retryResp, nil
}
