package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DeegaLabs/cronos-shield-x402/logger"
	"github.com/DeegaLabs/cronos-shield-x402/metrics"
	"github.com/DeegaLabs/cronos-shield-x402/types"
	"github.com/DeegaLabs/cronos-shield-x402/wallet/eip712"
)

// AuthorizationBuilder produces time-bounded, signed payment authorizations
// through a wallet provider. Signing is the most fragile step in practice:
// the provider can fail with transient internal errors unrelated to user
// intent, so retryable failures are re-attempted with a fresh signer handle
// while explicit rejection stays terminal. A wall-clock deadline bounds the
// signing call itself, distinct from the retry budget, so a wallet that
// never prompts cannot hang the flow.
type AuthorizationBuilder struct {
	provider Provider
	cfg      types.FlowConfig
	log      logger.Logger
	rec      metrics.Recorder

	// now is injectable so validity-window tests can pin the clock.
	now func() time.Time
}

func NewAuthorizationBuilder(provider Provider, cfg types.FlowConfig, log logger.Logger, rec metrics.Recorder) *AuthorizationBuilder {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &AuthorizationBuilder{
		provider: provider,
		cfg:      cfg,
		log:      log,
		rec:      rec,
		now:      time.Now,
	}
}

// WithClock overrides the builder's clock.
func (b *AuthorizationBuilder) WithClock(now func() time.Time) *AuthorizationBuilder {
	b.now = now
	return b
}

// NewNonce returns a random 32-byte nonce in 0x-prefixed hex.
func NewNonce() (string, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return "0x" + hex.EncodeToString(nonce[:]), nil
}

// BuildAuthorization derives the EIP-3009 message for a payment option:
// validAfter is zero, validBefore is now + maxTimeoutSeconds.
func (b *AuthorizationBuilder) BuildAuthorization(account string, opt *types.PaymentOption) (types.EVMAuthorization, error) {
	nonce, err := NewNonce()
	if err != nil {
		return types.EVMAuthorization{}, types.E(types.ErrTransientProvider, err.Error())
	}

	validBefore := b.now().Unix() + int64(opt.MaxTimeoutSeconds)
	return types.EVMAuthorization{
		From:        account,
		To:          opt.PayTo,
		Value:       opt.MaxAmountRequired,
		ValidAfter:  "0",
		ValidBefore: strconv.FormatInt(validBefore, 10),
		Nonce:       nonce,
	}, nil
}

// CheckValidity rejects an authorization whose window has already closed.
// An expired authorization must never be presented; a fresh one has to be
// built instead.
func CheckValidity(auth types.EVMAuthorization, now time.Time) error {
	validBefore, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err != nil {
		return types.E(types.ErrAuthorizationExpired,
			fmt.Sprintf("unparseable validBefore %q", auth.ValidBefore))
	}
	if now.Unix() >= validBefore {
		return types.E(types.ErrAuthorizationExpired,
			"authorization validity window has closed; a fresh authorization is required")
	}
	return nil
}

// BuildAndSign builds the authorization for the option, binds it to the
// paymentId and signs it on the already-verified chain. The caller must have
// run the network guard first.
func (b *AuthorizationBuilder) BuildAndSign(ctx context.Context, account string, opt *types.PaymentOption, paymentID string) (*types.SignedAuthorization, error) {
	if b.provider == nil {
		return nil, types.E(types.ErrSignerUnavailable, "no wallet provider detected")
	}

	params, err := types.Network(opt.Network).Params()
	if err != nil {
		return nil, err
	}

	auth, err := b.BuildAuthorization(account, opt)
	if err != nil {
		return nil, err
	}
	if err := CheckValidity(auth, b.now()); err != nil {
		return nil, err
	}

	tokenName, tokenVersion := opt.TokenDomain()
	domain := eip712.Domain{
		Name:              tokenName,
		Version:           tokenVersion,
		ChainID:           params.ChainID,
		VerifyingContract: opt.Asset,
	}

	started := b.now()
	sigHex, err := b.signWithRetry(ctx, domain, &auth, opt.Network)
	if err != nil {
		return nil, err
	}
	b.rec.ObserveLatency("sign", time.Since(started), map[string]string{"network": opt.Network})
	b.rec.IncCounter(metrics.EventSignature, map[string]string{"network": opt.Network})

	return &types.SignedAuthorization{
		PaymentID:     paymentID,
		Authorization: auth,
		Signature:     sigHex,
	}, nil
}

// signWithRetry runs the bounded retry loop around one signing state. The
// account can change when a fresh signer handle is obtained, so the
// authorization's From field is re-derived per attempt. auth is updated in
// place with the attempt that produced the returned signature.
func (b *AuthorizationBuilder) signWithRetry(ctx context.Context, domain eip712.Domain, auth *types.EVMAuthorization, network string) (string, error) {
	attempts := b.cfg.SignRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr *types.X402Error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			b.rec.IncCounter(metrics.EventSignatureRetry, map[string]string{"network": network})
			b.log.Warn("retrying signature with fresh signer", map[string]any{
				"attempt": attempt, "cause": lastErr.Message,
			})

			select {
			case <-ctx.Done():
				return "", types.E(types.ErrAuthorizationTimeout, "canceled while waiting to retry signing")
			case <-time.After(b.cfg.SignBackoff * time.Duration(attempt)):
			}

			fresh, err := b.freshSigner(ctx)
			if err != nil {
				return "", err
			}
			auth.From = fresh
		}

		sigHex, err := b.signOnce(ctx, domain, *auth)
		if err == nil {
			return sigHex, nil
		}

		var xe *types.X402Error
		if !errors.As(err, &xe) {
			xe = types.E(types.ErrTransientProvider, err.Error())
		}
		if !types.Retryable(xe) {
			return "", xe
		}
		lastErr = xe
	}

	// Retry budget exhausted; escalate the transient failure.
	return "", lastErr
}

// signOnce performs a single eth_signTypedData_v4 call under the signing
// deadline and self-checks the returned signature by recovering the signer
// from the digest. A recovery mismatch is treated as a transient provider
// fault (stale network caches produce exactly this) and feeds the retry loop.
func (b *AuthorizationBuilder) signOnce(ctx context.Context, domain eip712.Domain, auth types.EVMAuthorization) (string, error) {
	digest, err := eip712.AuthorizationDigest(domain, auth)
	if err != nil {
		return "", types.E(types.ErrProtocolViolation, fmt.Sprintf("cannot build signing digest: %v", err))
	}

	typedData := eip712.TypedData(domain, auth)
	typedDataJSON, err := json.Marshal(typedData)
	if err != nil {
		return "", types.E(types.ErrProtocolViolation, fmt.Sprintf("cannot encode typed data: %v", err))
	}

	signCtx, cancel := context.WithTimeout(ctx, b.cfg.SignTimeout)
	defer cancel()

	raw, err := b.provider.Request(signCtx, methodSignTypedData, auth.From, string(typedDataJSON))
	if err != nil {
		if signCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", types.E(types.ErrAuthorizationTimeout,
				"wallet did not produce a signature in time; check that it is unlocked and not blocked by another prompt")
		}
		return "", classify(err)
	}

	var sigHex string
	if err := json.Unmarshal(raw, &sigHex); err != nil {
		return "", types.E(types.ErrTransientProvider, fmt.Sprintf("malformed signature response: %v", err))
	}

	sig, err := eip712.HexToSignature(sigHex)
	if err != nil {
		return "", types.E(types.ErrTransientProvider, fmt.Sprintf("unusable signature: %v", err))
	}
	signer, err := eip712.RecoverSigner(digest, sig)
	if err != nil {
		return "", types.E(types.ErrTransientProvider, fmt.Sprintf("signature recovery failed: %v", err))
	}
	if !strings.EqualFold(signer.Hex(), common.HexToAddress(auth.From).Hex()) {
		return "", types.E(types.ErrTransientProvider,
			fmt.Sprintf("signature recovered to %s, expected %s", signer.Hex(), auth.From))
	}

	return eip712.SignatureToHex(sig)
}

// freshSigner obtains a new signer handle from the provider for a retry.
func (b *AuthorizationBuilder) freshSigner(ctx context.Context) (string, error) {
	account, err := ActiveAccount(ctx, b.provider, b.cfg)
	if err != nil {
		return "", err
	}
	return account, nil
}
