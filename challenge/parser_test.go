package challenge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeegaLabs/cronos-shield-x402/types"
)

const validChallenge = `{
	"x402Version": 1,
	"accepts": [{
		"scheme": "exact",
		"network": "cronos-testnet",
		"maxAmountRequired": "1000000",
		"resource": "https://api.example.com/api/risk/score",
		"description": "risk score lookup",
		"payTo": "0x384Aa214be0B279cbf211e9b2C992d8633F77848",
		"maxTimeoutSeconds": 60,
		"asset": "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		"extra": {"paymentId": "pid-1", "name": "USDC", "version": "2"}
	}],
	"serviceInfo": {"name": "risk"}
}`

func TestParseValidChallenge(t *testing.T) {
	ch, err := Parse([]byte(validChallenge))
	require.NoError(t, err)

	assert.Equal(t, 1, ch.X402Version)
	require.Len(t, ch.Accepts, 1)
	assert.Equal(t, "cronos-testnet", ch.Accepts[0].Network)
	assert.Equal(t, "1000000", ch.Accepts[0].MaxAmountRequired)
	assert.Equal(t, "risk", ch.ServiceInfo.Name)

	opt, err := Select(ch)
	require.NoError(t, err)
	assert.Equal(t, "pid-1", opt.PaymentID())

	name, version := opt.TokenDomain()
	assert.Equal(t, "USDC", name)
	assert.Equal(t, "2", version)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"x402Version": 1, "accepts": [`))
	assert.True(t, types.IsCode(err, types.ErrInvalidChallenge))
}

func TestParseRejectsEmptyOptions(t *testing.T) {
	_, err := Parse([]byte(`{"x402Version": 1, "accepts": []}`))
	assert.True(t, types.IsCode(err, types.ErrInvalidChallenge))
}

func TestParseRejectsMissingRequiredFields(t *testing.T) {
	_, err := Parse([]byte(`{
		"x402Version": 1,
		"accepts": [{"scheme": "exact", "network": "cronos-testnet"}]
	}`))
	assert.True(t, types.IsCode(err, types.ErrInvalidChallenge))
}

func TestParseRejectsBadAmounts(t *testing.T) {
	for _, amount := range []string{"-5", "1.5", "not-a-number"} {
		body := `{
			"x402Version": 1,
			"accepts": [{
				"scheme": "exact", "network": "cronos-testnet",
				"maxAmountRequired": "` + amount + `",
				"payTo": "0x384Aa214be0B279cbf211e9b2C992d8633F77848",
				"asset": "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
				"extra": {"paymentId": "pid-1"}
			}]
		}`
		_, err := Parse([]byte(body))
		assert.True(t, types.IsCode(err, types.ErrInvalidChallenge), "amount %q", amount)
	}
}

func TestSelectRequiresPaymentID(t *testing.T) {
	ch, err := Parse([]byte(`{
		"x402Version": 1,
		"accepts": [{
			"scheme": "exact", "network": "cronos-testnet",
			"maxAmountRequired": "1000000",
			"payTo": "0x384Aa214be0B279cbf211e9b2C992d8633F77848",
			"asset": "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
		}]
	}`))
	require.NoError(t, err)

	_, err = Select(ch)
	assert.True(t, types.IsCode(err, types.ErrProtocolViolation))
}

func TestSelectTakesFirstOption(t *testing.T) {
	ch, err := Parse([]byte(`{
		"x402Version": 1,
		"accepts": [{
			"scheme": "exact", "network": "cronos-testnet",
			"maxAmountRequired": "1000000",
			"payTo": "0x384Aa214be0B279cbf211e9b2C992d8633F77848",
			"asset": "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			"extra": {"paymentId": "pid-first"}
		}, {
			"scheme": "exact", "network": "base-sepolia",
			"maxAmountRequired": "2000000",
			"payTo": "0x384Aa214be0B279cbf211e9b2C992d8633F77848",
			"asset": "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			"extra": {"paymentId": "pid-second"}
		}]
	}`))
	require.NoError(t, err)

	opt, err := Select(ch)
	require.NoError(t, err)
	assert.Equal(t, "pid-first", opt.PaymentID())
}
