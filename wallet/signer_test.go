package wallet

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeegaLabs/cronos-shield-x402/types"
	"github.com/DeegaLabs/cronos-shield-x402/wallet/eip712"
)

func testOption() *types.PaymentOption {
	return &types.PaymentOption{
		Scheme:            "exact",
		Network:           "cronos-testnet",
		MaxAmountRequired: "1000000",
		PayTo:             "0x384Aa214be0B279cbf211e9b2C992d8633F77848",
		MaxTimeoutSeconds: 60,
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Extra:             map[string]interface{}{"paymentId": "pid-1"},
	}
}

func signerConfig() types.FlowConfig {
	cfg := types.DefaultFlowConfig()
	cfg.SignTimeout = 2 * time.Second
	cfg.SignBackoff = time.Millisecond
	cfg.AccountRequestTimeout = 100 * time.Millisecond
	return cfg
}

func newTestKeyProvider(t *testing.T) *KeyProvider {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	p, err := NewKeyProviderFromKey(key, types.NetworkCronosTestnet)
	require.NoError(t, err)
	return p
}

func TestBuildAndSignProducesVerifiableSignature(t *testing.T) {
	p := newTestKeyProvider(t)
	b := NewAuthorizationBuilder(p, signerConfig(), nil, nil)

	signed, err := b.BuildAndSign(context.Background(), p.Address(), testOption(), "pid-1")
	require.NoError(t, err)

	assert.Equal(t, "pid-1", signed.PaymentID)
	assert.Equal(t, p.Address(), signed.Authorization.From)
	assert.Equal(t, "0", signed.Authorization.ValidAfter)

	params, err := types.NetworkCronosTestnet.Params()
	require.NoError(t, err)
	digest, err := eip712.AuthorizationDigest(eip712.Domain{
		Name:              "USDC",
		Version:           "2",
		ChainID:           params.ChainID,
		VerifyingContract: testOption().Asset,
	}, signed.Authorization)
	require.NoError(t, err)

	sig, err := eip712.HexToSignature(signed.Signature)
	require.NoError(t, err)
	signer, err := eip712.RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, p.Address(), signer.Hex())
}

func TestBuildAuthorizationValidityWindow(t *testing.T) {
	p := newTestKeyProvider(t)
	now := time.Unix(1_700_000_000, 0)
	b := NewAuthorizationBuilder(p, signerConfig(), nil, nil).
		WithClock(func() time.Time { return now })

	auth, err := b.BuildAuthorization(p.Address(), testOption())
	require.NoError(t, err)
	assert.Equal(t, "1700000060", auth.ValidBefore)
	require.NoError(t, CheckValidity(auth, now))
	assert.Error(t, CheckValidity(auth, now.Add(61*time.Second)))
}

func TestZeroTimeoutIsImmediatelyExpired(t *testing.T) {
	p := newTestKeyProvider(t)
	b := NewAuthorizationBuilder(p, signerConfig(), nil, nil)

	opt := testOption()
	opt.MaxTimeoutSeconds = 0

	_, err := b.BuildAndSign(context.Background(), p.Address(), opt, "pid-1")
	assert.True(t, types.IsCode(err, types.ErrAuthorizationExpired))
}

func TestNoncesAreUnique(t *testing.T) {
	p := newTestKeyProvider(t)
	b := NewAuthorizationBuilder(p, signerConfig(), nil, nil)

	a1, err := b.BuildAuthorization(p.Address(), testOption())
	require.NoError(t, err)
	a2, err := b.BuildAuthorization(p.Address(), testOption())
	require.NoError(t, err)
	assert.NotEqual(t, a1.Nonce, a2.Nonce)
}

// flakyProvider fails the first n signing calls with a provider-internal
// error, then delegates.
type flakyProvider struct {
	*KeyProvider
	failures int32
	signs    int32
}

func (p *flakyProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if method == "eth_signTypedData_v4" {
		atomic.AddInt32(&p.signs, 1)
		if atomic.AddInt32(&p.failures, -1) >= 0 {
			return nil, &ProviderError{Code: -32603, Message: "internal JSON-RPC error"}
		}
	}
	return p.KeyProvider.Request(ctx, method, params...)
}

func TestTransientSigningErrorIsRetried(t *testing.T) {
	p := &flakyProvider{KeyProvider: newTestKeyProvider(t), failures: 1}
	b := NewAuthorizationBuilder(p, signerConfig(), nil, nil)

	signed, err := b.BuildAndSign(context.Background(), p.Address(), testOption(), "pid-1")
	require.NoError(t, err)
	assert.NotEmpty(t, signed.Signature)
	assert.Equal(t, int32(2), atomic.LoadInt32(&p.signs))
}

func TestTransientErrorsEscalateAfterRetryBudget(t *testing.T) {
	p := &flakyProvider{KeyProvider: newTestKeyProvider(t), failures: 10}
	b := NewAuthorizationBuilder(p, signerConfig(), nil, nil)

	_, err := b.BuildAndSign(context.Background(), p.Address(), testOption(), "pid-1")
	assert.True(t, types.IsCode(err, types.ErrTransientProvider))
	// One initial attempt plus the configured retries, no more.
	assert.Equal(t, int32(signerConfig().SignRetries+1), atomic.LoadInt32(&p.signs))
}

// rejectingProvider simulates an explicit user rejection at the signature
// prompt.
type rejectingProvider struct {
	*KeyProvider
	signs int32
}

func (p *rejectingProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if method == "eth_signTypedData_v4" {
		atomic.AddInt32(&p.signs, 1)
		return nil, &ProviderError{Code: 4001, Message: "User rejected the request."}
	}
	return p.KeyProvider.Request(ctx, method, params...)
}

func TestUserRejectionIsTerminal(t *testing.T) {
	p := &rejectingProvider{KeyProvider: newTestKeyProvider(t)}
	b := NewAuthorizationBuilder(p, signerConfig(), nil, nil)

	_, err := b.BuildAndSign(context.Background(), p.Address(), testOption(), "pid-1")
	assert.True(t, types.IsCode(err, types.ErrUserRejected))
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.signs), "a rejection must not be retried")
}

// hangingProvider never answers the signature prompt.
type hangingProvider struct {
	*KeyProvider
}

func (p *hangingProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if method == "eth_signTypedData_v4" {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return p.KeyProvider.Request(ctx, method, params...)
}

func TestSigningTimeoutIsTerminal(t *testing.T) {
	p := &hangingProvider{KeyProvider: newTestKeyProvider(t)}
	cfg := signerConfig()
	cfg.SignTimeout = 50 * time.Millisecond
	b := NewAuthorizationBuilder(p, cfg, nil, nil)

	_, err := b.BuildAndSign(context.Background(), p.Address(), testOption(), "pid-1")
	assert.True(t, types.IsCode(err, types.ErrAuthorizationTimeout))
}

func TestActiveAccountPrefersExposedAccounts(t *testing.T) {
	p := newTestKeyProvider(t)

	account, err := ActiveAccount(context.Background(), p, signerConfig())
	require.NoError(t, err)
	assert.Equal(t, p.Address(), account)
}

func TestActiveAccountWithoutProvider(t *testing.T) {
	_, err := ActiveAccount(context.Background(), nil, signerConfig())
	assert.True(t, types.IsCode(err, types.ErrSignerUnavailable))
}
