// Package settlement posts signed payment authorizations to the backend
// settlement routes and decodes the outcome.
package settlement

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/DeegaLabs/cronos-shield-x402/logger"
	"github.com/DeegaLabs/cronos-shield-x402/metrics"
	"github.com/DeegaLabs/cronos-shield-x402/types"
)

// Submitter routes a signed authorization to the settlement endpoint of the
// service that issued the challenge.
type Submitter struct {
	httpClient *http.Client
	cfg        types.FlowConfig
	log        logger.Logger
	rec        metrics.Recorder
}

func NewSubmitter(httpClient *http.Client, cfg types.FlowConfig, log logger.Logger, rec metrics.Recorder) *Submitter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Submitter{httpClient: httpClient, cfg: cfg, log: log, rec: rec}
}

// submitRequest is the settlement POST body.
type submitRequest struct {
	PaymentID           string              `json:"paymentId"`
	PaymentHeader       string              `json:"paymentHeader"`
	PaymentRequirements types.PaymentOption `json:"paymentRequirements"`
}

// settleResponse is the settlement 2xx body. txHash may be absent; the
// backend settles asynchronously and success does not require the client to
// have seen on-chain confirmation.
type settleResponse struct {
	TxHash    string `json:"txHash,omitempty"`
	NetworkID string `json:"networkId,omitempty"`
}

// EncodePaymentHeader serializes a signed authorization the way x402 puts it
// on the wire: base64 over the JSON document.
func EncodePaymentHeader(auth *types.SignedAuthorization) (string, error) {
	data, err := json.Marshal(auth)
	if err != nil {
		return "", fmt.Errorf("failed to encode payment header: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Endpoint selects the settlement route for a challenge: the first
// ServiceRoutes key found as a substring of the service name or the resource
// URL wins, otherwise the default service route is used.
func (s *Submitter) Endpoint(ch *types.PaymentChallenge, opt *types.PaymentOption) string {
	service := s.cfg.DefaultService

	haystack := opt.Resource
	if ch != nil && ch.ServiceInfo != nil {
		haystack = ch.ServiceInfo.Name + " " + haystack
	}
	haystack = strings.ToLower(haystack)

	keys := make([]string, 0, len(s.cfg.ServiceRoutes))
	for key := range s.cfg.ServiceRoutes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if strings.Contains(haystack, strings.ToLower(key)) {
			service = s.cfg.ServiceRoutes[key]
			break
		}
	}

	return fmt.Sprintf("%s/api/%s/pay", strings.TrimRight(s.cfg.BackendBaseURL, "/"), service)
}

// Submit posts the signed authorization plus the original payment
// requirements to the settlement endpoint. A non-2xx response is a terminal
// settlement failure carrying the response body verbatim; a 2xx response
// succeeds even when no transaction hash is reported.
func (s *Submitter) Submit(ctx context.Context, ch *types.PaymentChallenge, opt *types.PaymentOption, auth *types.SignedAuthorization) (*types.SettlementResult, error) {
	header, err := EncodePaymentHeader(auth)
	if err != nil {
		return nil, types.E(types.ErrProtocolViolation, err.Error())
	}

	body, err := json.Marshal(submitRequest{
		PaymentID:           auth.PaymentID,
		PaymentHeader:       header,
		PaymentRequirements: *opt,
	})
	if err != nil {
		return nil, types.E(types.ErrProtocolViolation, err.Error())
	}

	endpoint := s.Endpoint(ch, opt)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.E(types.ErrSettlementFailed, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, types.E(types.ErrSettlementFailed, fmt.Sprintf("settlement request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.E(types.ErrSettlementFailed, fmt.Sprintf("failed to read settlement response: %v", err))
	}

	s.rec.ObserveLatency("settle", time.Since(started), map[string]string{"network": opt.Network})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.rec.IncCounter(metrics.EventSettlementFailed, map[string]string{"network": opt.Network})
		s.log.Error("settlement rejected", map[string]any{
			"paymentId": auth.PaymentID,
			"status":    resp.StatusCode,
			"body":      string(respBody),
		})
		return &types.SettlementResult{
				Success:   false,
				ErrorBody: string(respBody),
			}, types.EData(types.ErrSettlementFailed,
				fmt.Sprintf("settlement endpoint returned %d", resp.StatusCode),
				string(respBody))
	}

	var settled settleResponse
	if len(respBody) > 0 {
		// Tolerate non-JSON 2xx bodies; success is carried by the status.
		_ = json.Unmarshal(respBody, &settled)
	}

	s.rec.IncCounter(metrics.EventSettlement, map[string]string{"network": opt.Network})
	s.log.Info("settlement accepted", map[string]any{
		"paymentId": auth.PaymentID,
		"txHash":    settled.TxHash,
		"endpoint":  endpoint,
	})

	return &types.SettlementResult{
		Success:   true,
		TxHash:    settled.TxHash,
		NetworkID: settled.NetworkID,
	}, nil
}
