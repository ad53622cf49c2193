/*
Package risk holds the interest-rate curve and the position health math used
by the engine and the liquidation path.

Price convention: a price is fixed-point (1e9 scale) TAO per subnet token.
Because token amounts are rao (1e9 per token) and TAO amounts are wei (1e18
per TAO), the wei value of a holding is simply tokenAmount * price with no
further rescaling.
*/
package risk

import (
	sdkmath "cosmossdk.io/math"

	"github.com/tenexium/tenex-core/internal/fixedpoint"
)

// BlocksPerAccrual is the accrual window for the borrowing rate: the rate
// returned by RateCurve.BorrowRate is the interest charged per this many
// blocks of debt age.
const BlocksPerAccrual = uint64(360)

// MaxHealthRatio is returned for positions with no outstanding debt.
var MaxHealthRatio = sdkmath.NewIntWithDecimal(1, 18)

// RateCurve is a utilization-kinked borrowing rate model. All fields are
// fixed-point against fixedpoint.Precision. Below Kink the rate climbs from
// BaseRate by Slope1; above it Slope2 takes over, steeply pricing the last
// slice of liquidity.
type RateCurve struct {
	BaseRate sdkmath.Int `json:"base_rate"`
	Slope1   sdkmath.Int `json:"slope1"`
	Slope2   sdkmath.Int `json:"slope2"`
	Kink     sdkmath.Int `json:"kink"`
}

// DefaultRateCurve mirrors the launch parameters: 0.001% base, 0.005% slope
// to the 80% kink, 0.05% slope past it (all per 360 blocks).
func DefaultRateCurve() RateCurve {
	return RateCurve{
		BaseRate: sdkmath.NewInt(10_000),
		Slope1:   sdkmath.NewInt(50_000),
		Slope2:   sdkmath.NewInt(500_000),
		Kink:     sdkmath.NewInt(800_000_000),
	}
}

// BorrowRate returns the per-accrual-window borrowing rate at the given
// utilization (fixed point, Precision == 100%).
func (c RateCurve) BorrowRate(utilization sdkmath.Int) (sdkmath.Int, error) {
	if utilization.IsNegative() {
		return sdkmath.Int{}, fixedpoint.ErrNegative
	}
	if utilization.LTE(c.Kink) {
		slope, err := fixedpoint.MulDiv(c.Slope1, utilization, c.Kink)
		if err != nil {
			return sdkmath.Int{}, err
		}
		return fixedpoint.Add(c.BaseRate, slope)
	}
	excess := utilization.Sub(c.Kink)
	span := fixedpoint.PrecisionInt().Sub(c.Kink)
	steep, err := fixedpoint.MulDiv(c.Slope2, excess, span)
	if err != nil {
		return sdkmath.Int{}, err
	}
	low, err := fixedpoint.Add(c.BaseRate, c.Slope1)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return fixedpoint.Add(low, steep)
}

// AccruedInterest returns the borrowing fee on debt held for elapsedBlocks at
// the given utilization. Partial windows accrue pro rata.
func (c RateCurve) AccruedInterest(debt sdkmath.Int, utilization sdkmath.Int, elapsedBlocks uint64) (sdkmath.Int, error) {
	if elapsedBlocks == 0 || debt.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	rate, err := c.BorrowRate(utilization)
	if err != nil {
		return sdkmath.Int{}, err
	}
	perWindow, err := fixedpoint.ApplyRate(debt, rate)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return fixedpoint.MulDiv(perWindow, sdkmath.NewIntFromUint64(elapsedBlocks), sdkmath.NewIntFromUint64(BlocksPerAccrual))
}

// PositionValue returns the wei value of tokenAmount (rao) at price.
func PositionValue(tokenAmount, price sdkmath.Int) (sdkmath.Int, error) {
	return fixedpoint.Mul(tokenAmount, price)
}

// HealthRatio returns positionValue/totalDebt as a fixed-point ratio. A
// position with no debt reports MaxHealthRatio.
func HealthRatio(positionValue, totalDebt sdkmath.Int) (sdkmath.Int, error) {
	if totalDebt.IsNegative() || positionValue.IsNegative() {
		return sdkmath.Int{}, fixedpoint.ErrNegative
	}
	if totalDebt.IsZero() {
		return MaxHealthRatio, nil
	}
	return fixedpoint.MulDiv(positionValue, fixedpoint.PrecisionInt(), totalDebt)
}

// IsLiquidatable reports whether the position's health has dropped strictly
// below the threshold. A position sitting exactly at the threshold is safe.
func IsLiquidatable(healthRatio, threshold sdkmath.Int) bool {
	return healthRatio.LT(threshold)
}

// LiquidationPrice returns the token price at which the position's health
// ratio equals the threshold. Prices below it make the position liquidatable.
// Debt-free or empty positions have no liquidation price and report zero.
func LiquidationPrice(tokenAmount, totalDebt, threshold sdkmath.Int) (sdkmath.Int, error) {
	if tokenAmount.IsZero() || totalDebt.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	scaled, err := fixedpoint.Mul(totalDebt, threshold)
	if err != nil {
		return sdkmath.Int{}, err
	}
	denom, err := fixedpoint.Mul(tokenAmount, fixedpoint.PrecisionInt())
	if err != nil {
		return sdkmath.Int{}, err
	}
	return fixedpoint.Div(scaled, denom)
}
