// Package challenge decodes HTTP 402 bodies into structured payment
// challenges. Parsing is a pure transform with no side effects.
package challenge

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/DeegaLabs/cronos-shield-x402/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Parse decodes a 402 response body into a PaymentChallenge and validates
// it. The challenge must carry at least one option, every option must carry
// the required fields, and amounts must be non-negative integer strings.
func Parse(body []byte) (*types.PaymentChallenge, error) {
	var ch types.PaymentChallenge

	if err := json.Unmarshal(body, &ch); err != nil {
		return nil, types.E(types.ErrInvalidChallenge,
			fmt.Sprintf("failed to parse payment challenge: %v", err))
	}

	if err := validate.Struct(&ch); err != nil {
		return nil, types.E(types.ErrInvalidChallenge,
			fmt.Sprintf("challenge validation failed: %v", err))
	}

	for i := range ch.Accepts {
		if err := validateAmount(ch.Accepts[i].MaxAmountRequired); err != nil {
			return nil, err
		}
	}

	return &ch, nil
}

// Select picks the option the flow acts upon: the first option in the list,
// by convention. A selected option without a paymentId is a fatal protocol
// error because there is no way to correlate a later settlement with the
// original resource request.
func Select(ch *types.PaymentChallenge) (*types.PaymentOption, error) {
	if len(ch.Accepts) == 0 {
		return nil, types.E(types.ErrInvalidChallenge, "challenge carries no payment options")
	}

	opt := &ch.Accepts[0]
	if opt.PaymentID() == "" {
		return nil, types.E(types.ErrProtocolViolation,
			"payment option carries no paymentId; settlement cannot be correlated")
	}
	return opt, nil
}

// validateAmount checks that an amount string is a non-negative integer in
// atomic units.
func validateAmount(amount string) error {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return types.E(types.ErrInvalidChallenge,
			fmt.Sprintf("invalid amount %q: %v", amount, err))
	}
	if dec.IsNegative() {
		return types.E(types.ErrInvalidChallenge,
			fmt.Sprintf("amount %q is negative", amount))
	}
	if !dec.Equal(dec.Truncate(0)) {
		return types.E(types.ErrInvalidChallenge,
			fmt.Sprintf("amount %q is not an integer in atomic units", amount))
	}
	return nil
}
