/*

This file contains the default protocol parameters.

All rates and ratios are fixed point against fixedpoint.Precision (1e9 means
100%, or 1.0x for leverage and health multipliers). Stake thresholds are rao.

Defaults can be overridden per deployment through the parameters table; the
active set is loaded from the database at startup and persisted whenever an
admin updates it.

*/

package config

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/tenexium/tenex-core/internal/fixedpoint"
	"github.com/tenexium/tenex-core/internal/risk"
	"github.com/tenexium/tenex-core/internal/types"
)

// ProtocolParams is the full tunable parameter set of the protocol.
type ProtocolParams struct {
	// TradingFeeRate is charged on notional traded at open and close.
	TradingFeeRate sdkmath.Int `json:"trading_fee_rate"`

	// Fee splits. LpFeeShare + LiquidatorFeeShare + ProtocolFeeShare must
	// sum to exactly fixedpoint.Precision.
	LpFeeShare         sdkmath.Int `json:"lp_fee_share"`
	LiquidatorFeeShare sdkmath.Int `json:"liquidator_fee_share"`
	ProtocolFeeShare   sdkmath.Int `json:"protocol_fee_share"`

	// LiquidationFeeRate is charged on the post-debt remainder of a
	// liquidated position; LiquidationLiquidatorShare of that fee goes to
	// the caller, the rest to the protocol.
	LiquidationFeeRate         sdkmath.Int `json:"liquidation_fee_rate"`
	LiquidationLiquidatorShare sdkmath.Int `json:"liquidation_liquidator_share"`

	// LiquidationThreshold is the health ratio below which a position may
	// be liquidated. 1e9 means liquidation at break-even.
	LiquidationThreshold sdkmath.Int `json:"liquidation_threshold"`

	// MaxUtilization caps borrowed/totalLpStakes after any borrow or
	// liquidity withdrawal.
	MaxUtilization sdkmath.Int `json:"max_utilization"`

	// LiquidityBuffer is the fraction of LP stake that must stay unborrowed
	// when a new position draws down the pool.
	LiquidityBuffer sdkmath.Int `json:"liquidity_buffer"`

	// MinTotalStake is the pool floor below which the circuit breaker
	// trips, in wei.
	MinTotalStake sdkmath.Int `json:"min_total_stake"`

	// Dust floors, in wei: liquidity deposits and opening collateral below
	// these are rejected.
	MinLiquidityDeposit   sdkmath.Int `json:"min_liquidity_deposit"`
	MinPositionCollateral sdkmath.Int `json:"min_position_collateral"`

	// RateCurve prices borrowing per 360-block window.
	RateCurve risk.RateCurve `json:"rate_curve"`

	// MaxSlippage bounds the gap between simulated and executed swap
	// proceeds before an operation is rolled back.
	MaxSlippage sdkmath.Int `json:"max_slippage"`

	// CooldownBlocks is the minimum block distance between mutating
	// operations by the same user.
	CooldownBlocks uint64 `json:"cooldown_blocks"`

	// Buyback schedule: every BuybackInterval blocks, BuybackRate of the
	// buyback pool is spent. Missed windows ramp the spend by 10% each, up
	// to +50%. Pools below BuybackThreshold are left to accumulate.
	BuybackRate      sdkmath.Int `json:"buyback_rate"`
	BuybackInterval  uint64      `json:"buyback_interval"`
	BuybackThreshold sdkmath.Int `json:"buyback_threshold"` // wei

	// Vesting for bought-back tokens, in blocks from the buyback.
	VestingCliffBlocks    uint64 `json:"vesting_cliff_blocks"`
	VestingDurationBlocks uint64 `json:"vesting_duration_blocks"`

	// Tiers map associated-hotkey stake to leverage caps and fee discounts,
	// ordered by descending MinStake with a zero-stake catch-all last.
	Tiers []types.Tier `json:"tiers"`
}

// DefaultProtocolParams provides the launch parameter set, used when no
// active parameters are found in the database during initialization.
func DefaultProtocolParams() ProtocolParams {
	return ProtocolParams{
		TradingFeeRate: sdkmath.NewInt(3_000_000), // 0.3%

		LpFeeShare:         sdkmath.NewInt(600_000_000), // 60%
		LiquidatorFeeShare: sdkmath.NewInt(100_000_000), // 10%
		ProtocolFeeShare:   sdkmath.NewInt(300_000_000), // 30%

		LiquidationFeeRate:         sdkmath.NewInt(20_000_000),  // 2%
		LiquidationLiquidatorShare: sdkmath.NewInt(400_000_000), // 40%

		LiquidationThreshold: sdkmath.NewInt(1_100_000_000), // 1.1x

		MaxUtilization:  sdkmath.NewInt(900_000_000),       // 90%
		LiquidityBuffer: sdkmath.NewInt(200_000_000),       // 20%
		MinTotalStake:   sdkmath.NewIntWithDecimal(10, 18), // 10 TAO

		MinLiquidityDeposit:   sdkmath.NewIntWithDecimal(1, 17), // 0.1 TAO
		MinPositionCollateral: sdkmath.NewIntWithDecimal(1, 16), // 0.01 TAO

		RateCurve: risk.DefaultRateCurve(),

		MaxSlippage:    sdkmath.NewInt(10_000_000), // 1%
		CooldownBlocks: 2,

		BuybackRate:      sdkmath.NewInt(50_000_000),      // 5% of the pool per window
		BuybackInterval:  7_200,                           // roughly daily at 12s blocks
		BuybackThreshold: sdkmath.NewIntWithDecimal(1, 18), // 1 TAO

		VestingCliffBlocks:    50_400,  // one week
		VestingDurationBlocks: 648_000, // 90 days

		Tiers: []types.Tier{
			{MinStake: sdkmath.NewInt(10_000_000_000_000), MaxLeverage: sdkmath.NewInt(10_000_000_000), FeeDiscount: sdkmath.NewInt(500_000_000)}, // 10k tokens: 10x, 50% off
			{MinStake: sdkmath.NewInt(1_000_000_000_000), MaxLeverage: sdkmath.NewInt(5_000_000_000), FeeDiscount: sdkmath.NewInt(250_000_000)},   // 1k tokens: 5x, 25% off
			{MinStake: sdkmath.NewInt(100_000_000_000), MaxLeverage: sdkmath.NewInt(3_000_000_000), FeeDiscount: sdkmath.NewInt(100_000_000)},     // 100 tokens: 3x, 10% off
			{MinStake: sdkmath.ZeroInt(), MaxLeverage: sdkmath.NewInt(2_000_000_000), FeeDiscount: sdkmath.ZeroInt()},                             // everyone else: 2x
		},
	}
}

// Validate checks internal consistency of a parameter set. Admin updates are
// rejected at the API boundary when this fails.
func (p ProtocolParams) Validate() error {
	precision := fixedpoint.PrecisionInt()

	if p.TradingFeeRate.IsNegative() || p.TradingFeeRate.GTE(precision) {
		return errors.New("trading fee rate must be in [0, 100%)")
	}

	splitSum := p.LpFeeShare.Add(p.LiquidatorFeeShare).Add(p.ProtocolFeeShare)
	if !splitSum.Equal(precision) {
		return fmt.Errorf("fee shares must sum to exactly 100%%, got %s", splitSum)
	}
	if p.LpFeeShare.IsNegative() || p.LiquidatorFeeShare.IsNegative() || p.ProtocolFeeShare.IsNegative() {
		return errors.New("fee shares must be non-negative")
	}

	if p.LiquidationFeeRate.IsNegative() || p.LiquidationFeeRate.GTE(precision) {
		return errors.New("liquidation fee rate must be in [0, 100%)")
	}
	if p.LiquidationLiquidatorShare.IsNegative() || p.LiquidationLiquidatorShare.GT(precision) {
		return errors.New("liquidation liquidator share must be in [0, 100%]")
	}

	if p.LiquidationThreshold.LT(precision) {
		return errors.New("liquidation threshold below 1.0x would liquidate solvent positions")
	}
	if p.LiquidationThreshold.GT(precision.MulRaw(2)) {
		return errors.New("liquidation threshold above 2.0x")
	}

	if p.MaxUtilization.IsNegative() || p.MaxUtilization.GT(precision) {
		return errors.New("max utilization must be in [0, 100%]")
	}
	if p.LiquidityBuffer.IsNegative() || p.LiquidityBuffer.GTE(precision) {
		return errors.New("liquidity buffer must be in [0, 100%)")
	}
	if p.MinTotalStake.IsNegative() {
		return errors.New("minimum total stake must be non-negative")
	}
	if p.MinLiquidityDeposit.IsNegative() || p.MinPositionCollateral.IsNegative() {
		return errors.New("dust floors must be non-negative")
	}

	if p.RateCurve.Kink.LTE(sdkmath.ZeroInt()) || p.RateCurve.Kink.GTE(precision) {
		return errors.New("rate curve kink must be in (0, 100%)")
	}
	if p.RateCurve.BaseRate.IsNegative() || p.RateCurve.Slope1.IsNegative() || p.RateCurve.Slope2.IsNegative() {
		return errors.New("rate curve components must be non-negative")
	}

	if p.MaxSlippage.IsNegative() || p.MaxSlippage.GTE(precision) {
		return errors.New("max slippage must be in [0, 100%)")
	}

	if p.BuybackRate.IsNegative() || p.BuybackRate.GT(precision) {
		return errors.New("buyback rate must be in [0, 100%]")
	}
	if p.BuybackInterval == 0 {
		return errors.New("buyback interval must be positive")
	}
	if p.BuybackThreshold.IsNegative() {
		return errors.New("buyback threshold must be non-negative")
	}
	if p.VestingDurationBlocks == 0 {
		return errors.New("vesting duration must be positive")
	}
	if p.VestingCliffBlocks > p.VestingDurationBlocks {
		return errors.New("vesting cliff exceeds vesting duration")
	}

	if len(p.Tiers) == 0 {
		return errors.New("at least one tier is required")
	}
	for i, tier := range p.Tiers {
		if tier.MaxLeverage.LT(precision) {
			return fmt.Errorf("tier %d: max leverage below 1x", i)
		}
		if tier.FeeDiscount.IsNegative() || tier.FeeDiscount.GT(precision) {
			return fmt.Errorf("tier %d: fee discount must be in [0, 100%%]", i)
		}
		if i > 0 && tier.MinStake.GTE(p.Tiers[i-1].MinStake) {
			return fmt.Errorf("tier %d: min stakes must be strictly descending", i)
		}
	}
	if !p.Tiers[len(p.Tiers)-1].MinStake.IsZero() {
		return errors.New("last tier must have zero min stake")
	}

	return nil
}
