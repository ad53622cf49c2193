/*
This file contains conversion helpers between the protocol's integer units
(wei for TAO, rao for subnet tokens) and display floats for the API and
logs. Core accounting never goes through floats.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

const (
	// WeiDecimals is the TAO precision (1e18 wei per TAO).
	WeiDecimals = 18
	// RaoDecimals is the subnet token precision (1e9 rao per token).
	RaoDecimals = 9
)

// SDKIntToFloat64 converts an SDK Int to float64 at the given decimal
// precision. Negative amounts are allowed; PnL is signed.
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	factor := sdkmath.LegacyNewDec(1)
	for i := 0; i < precision; i++ {
		factor = factor.Mul(sdkmath.LegacyNewDec(10))
	}

	result := decAmount.Quo(factor)
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// WeiToTao converts a wei amount to whole TAO as a display float.
func WeiToTao(amountWei sdkmath.Int) (float64, error) {
	return SDKIntToFloat64(amountWei, WeiDecimals)
}

// RaoToToken converts a rao amount to whole subnet tokens as a display
// float.
func RaoToToken(amountRao sdkmath.Int) (float64, error) {
	return SDKIntToFloat64(amountRao, RaoDecimals)
}
