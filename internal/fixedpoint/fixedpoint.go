/*
Package fixedpoint provides the checked integer arithmetic the protocol
accounting is built on.

Two scales are used throughout:

  - Precision (1e9) is the general fixed-point scale. Rates, ratios and
    percentages are expressed against it: Precision itself means 100%,
    3_000_000 means 0.3%.
  - AccPrecision (1e18) is the finer scale used only for the per-share and
    per-score reward accumulators, where 1e9 would lose dust on large pools.

Amounts come in two denominations: TAO amounts in wei (1e18 per TAO) and
subnet token amounts in rao (1e9 per token). ToMicro and ToMacro convert
between them.

Every operation here either returns an exact result or an error. Overflow is
checked against 256 bits so results stay representable on the wire.
*/
package fixedpoint

import (
	"errors"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

const (
	// Precision is the fixed-point scale: Precision == 100%.
	Precision = int64(1_000_000_000)

	// AccPrecision scales the fee-per-share accumulators.
	AccPrecision = int64(1_000_000_000_000_000_000)

	// WeiPerRao converts between wei (1e18/TAO) and rao (1e9/token).
	WeiPerRao = int64(1_000_000_000)

	maxBits = 255
)

var (
	ErrOverflow       = errors.New("fixedpoint: overflow")
	ErrUnderflow      = errors.New("fixedpoint: underflow")
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	ErrNegative       = errors.New("fixedpoint: negative operand")
)

// PrecisionInt returns Precision as an sdkmath.Int.
func PrecisionInt() sdkmath.Int { return sdkmath.NewInt(Precision) }

// AccPrecisionInt returns AccPrecision as an sdkmath.Int.
func AccPrecisionInt() sdkmath.Int { return sdkmath.NewInt(AccPrecision) }

func checkNonNegative(vals ...sdkmath.Int) error {
	for _, v := range vals {
		if v.IsNegative() {
			return ErrNegative
		}
	}
	return nil
}

// Add returns a+b, rejecting negative operands and overflow.
func Add(a, b sdkmath.Int) (sdkmath.Int, error) {
	if err := checkNonNegative(a, b); err != nil {
		return sdkmath.Int{}, err
	}
	sum := a.Add(b)
	if sum.BigInt().BitLen() > maxBits {
		return sdkmath.Int{}, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b, erroring when the result would go negative.
func Sub(a, b sdkmath.Int) (sdkmath.Int, error) {
	if err := checkNonNegative(a, b); err != nil {
		return sdkmath.Int{}, err
	}
	if b.GT(a) {
		return sdkmath.Int{}, ErrUnderflow
	}
	return a.Sub(b), nil
}

// Mul returns a*b with overflow checking.
func Mul(a, b sdkmath.Int) (sdkmath.Int, error) {
	if err := checkNonNegative(a, b); err != nil {
		return sdkmath.Int{}, err
	}
	if a.BigInt().BitLen()+b.BigInt().BitLen() > maxBits {
		return sdkmath.Int{}, ErrOverflow
	}
	return a.Mul(b), nil
}

// Div returns a/b truncated toward zero.
func Div(a, b sdkmath.Int) (sdkmath.Int, error) {
	if err := checkNonNegative(a, b); err != nil {
		return sdkmath.Int{}, err
	}
	if b.IsZero() {
		return sdkmath.Int{}, ErrDivisionByZero
	}
	return a.Quo(b), nil
}

// MulDiv returns a*b/denom without losing the intermediate product to
// overflow prematurely. The product is carried in a big.Int, so only the
// quotient is bound to 255 bits. This is the workhorse for rate and share
// math.
func MulDiv(a, b, denom sdkmath.Int) (sdkmath.Int, error) {
	if err := checkNonNegative(a, b, denom); err != nil {
		return sdkmath.Int{}, err
	}
	if denom.IsZero() {
		return sdkmath.Int{}, ErrDivisionByZero
	}
	prod := new(big.Int).Mul(a.BigInt(), b.BigInt())
	out := prod.Quo(prod, denom.BigInt())
	if out.BitLen() > maxBits {
		return sdkmath.Int{}, ErrOverflow
	}
	return sdkmath.NewIntFromBigInt(out), nil
}

// ApplyRate scales amount by a Precision-denominated rate.
func ApplyRate(amount, rate sdkmath.Int) (sdkmath.Int, error) {
	return MulDiv(amount, rate, PrecisionInt())
}

// ToMicro converts a wei amount to rao, truncating sub-rao dust.
func ToMicro(wei sdkmath.Int) (sdkmath.Int, error) {
	if wei.IsNegative() {
		return sdkmath.Int{}, ErrNegative
	}
	return wei.Quo(sdkmath.NewInt(WeiPerRao)), nil
}

// ToMacro converts a rao amount to wei.
func ToMacro(rao sdkmath.Int) (sdkmath.Int, error) {
	return Mul(rao, sdkmath.NewInt(WeiPerRao))
}
