/*
Package fees implements the reward accounting shared by trading fees,
borrowing fees and liquidation payouts.

LP rewards use the accumulator-per-share pattern: every distributed fee bumps
a global accumulator scaled by fixedpoint.AccPrecision, and each provider
carries a reward debt marking the accumulator level at their last share
change. Pending rewards are shares*acc - debt, so distributions are O(1)
regardless of provider count and never retroactive. Liquidator rewards
mirror the same pattern keyed by liquidation score instead of shares.

Fees distributed while the corresponding total (shares or score) is zero
have no recipient and are dropped.

All methods expect the caller to hold the protocol state lock.
*/
package fees

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/tenexium/tenex-core/internal/fixedpoint"
	"github.com/tenexium/tenex-core/internal/logger"
	"github.com/tenexium/tenex-core/internal/protocol"
	"github.com/tenexium/tenex-core/internal/types"
)

// Accountant distributes and settles protocol fees against shared state.
type Accountant struct {
	st  *protocol.State
	log zerolog.Logger
}

// NewAccountant returns an accountant bound to st.
func NewAccountant(st *protocol.State) *Accountant {
	return &Accountant{st: st, log: logger.GetForComponent("fees")}
}

// FeeSplit is the three-way division of a collected fee.
type FeeSplit struct {
	Lp         sdkmath.Int
	Liquidator sdkmath.Int
	Protocol   sdkmath.Int
}

// Split divides fee by the configured shares. Rounding dust lands in the
// protocol cut so the three parts always sum to the input.
func (a *Accountant) Split(fee sdkmath.Int) (FeeSplit, error) {
	lpCut, err := fixedpoint.ApplyRate(fee, a.st.Params.LpFeeShare)
	if err != nil {
		return FeeSplit{}, err
	}
	liqCut, err := fixedpoint.ApplyRate(fee, a.st.Params.LiquidatorFeeShare)
	if err != nil {
		return FeeSplit{}, err
	}
	return FeeSplit{
		Lp:         lpCut,
		Liquidator: liqCut,
		Protocol:   fee.Sub(lpCut).Sub(liqCut),
	}, nil
}

// Distribute splits fee and credits each side: the LP cut raises the
// per-share accumulator, the liquidator cut raises the per-score
// accumulator, and the protocol cut funds the buyback pool.
func (a *Accountant) Distribute(fee sdkmath.Int) error {
	if fee.IsZero() {
		return nil
	}
	split, err := a.Split(fee)
	if err != nil {
		return err
	}

	if split.Lp.IsPositive() {
		if a.st.Globals.TotalShares.IsZero() {
			a.log.Warn().Str("amount", split.Lp.String()).Msg("LP fee distributed with no shares outstanding; dropped")
		} else {
			bump, err := fixedpoint.MulDiv(split.Lp, fixedpoint.AccPrecisionInt(), a.st.Globals.TotalShares)
			if err != nil {
				return err
			}
			a.st.Globals.AccLpFeesPerShare = a.st.Globals.AccLpFeesPerShare.Add(bump)
		}
	}

	if split.Liquidator.IsPositive() {
		if a.st.Globals.TotalLiquidatorScore.IsZero() {
			a.log.Warn().Str("amount", split.Liquidator.String()).Msg("liquidator fee distributed with no scores outstanding; dropped")
		} else {
			bump, err := fixedpoint.MulDiv(split.Liquidator, fixedpoint.AccPrecisionInt(), a.st.Globals.TotalLiquidatorScore)
			if err != nil {
				return err
			}
			a.st.Globals.AccLiquidatorFeesPerScore = a.st.Globals.AccLiquidatorFeesPerScore.Add(bump)
		}
	}

	if split.Protocol.IsPositive() {
		a.st.Globals.ProtocolFees = a.st.Globals.ProtocolFees.Add(split.Protocol)
		a.st.Globals.BuybackPool = a.st.Globals.BuybackPool.Add(split.Protocol)
	}

	return nil
}

// CreditProtocol routes an amount entirely to the protocol treasury side,
// bypassing the three-way split. Used for the protocol's share of
// liquidation fees.
func (a *Accountant) CreditProtocol(amount sdkmath.Int) {
	if amount.IsPositive() {
		a.st.Globals.ProtocolFees = a.st.Globals.ProtocolFees.Add(amount)
		a.st.Globals.BuybackPool = a.st.Globals.BuybackPool.Add(amount)
	}
}

// PendingLp returns the provider's unsettled reward.
func (a *Accountant) PendingLp(addr common.Address) (sdkmath.Int, error) {
	lp, ok := a.st.Lps[addr]
	if !ok || lp.Shares.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	entitled, err := fixedpoint.MulDiv(lp.Shares, a.st.Globals.AccLpFeesPerShare, fixedpoint.AccPrecisionInt())
	if err != nil {
		return sdkmath.Int{}, err
	}
	if entitled.LTE(lp.RewardDebt) {
		return sdkmath.ZeroInt(), nil
	}
	return entitled.Sub(lp.RewardDebt), nil
}

// SettleLp folds the provider's pending reward into their claimable balance
// and resets the reward debt to the current accumulator level. Must be
// called before any change to the provider's shares.
func (a *Accountant) SettleLp(addr common.Address) error {
	lp := a.st.Lp(addr)
	pending, err := a.PendingLp(addr)
	if err != nil {
		return err
	}
	if pending.IsPositive() {
		bal, ok := a.st.LpFeeBalances[addr]
		if !ok {
			bal = sdkmath.ZeroInt()
		}
		a.st.LpFeeBalances[addr] = bal.Add(pending)
	}
	entitled, err := fixedpoint.MulDiv(lp.Shares, a.st.Globals.AccLpFeesPerShare, fixedpoint.AccPrecisionInt())
	if err != nil {
		return err
	}
	lp.RewardDebt = entitled
	return nil
}

// ResetLpRewardDebt pins the provider's reward debt to the current
// accumulator level for their current shares. Must follow every share
// change, after the preceding SettleLp.
func (a *Accountant) ResetLpRewardDebt(addr common.Address) error {
	lp := a.st.Lp(addr)
	entitled, err := fixedpoint.MulDiv(lp.Shares, a.st.Globals.AccLpFeesPerShare, fixedpoint.AccPrecisionInt())
	if err != nil {
		return err
	}
	lp.RewardDebt = entitled
	return nil
}

// ClaimLpFees empties and returns the provider's claimable balance.
func (a *Accountant) ClaimLpFees(addr common.Address) (sdkmath.Int, error) {
	if err := a.SettleLp(addr); err != nil {
		return sdkmath.Int{}, err
	}
	bal, ok := a.st.LpFeeBalances[addr]
	if !ok || bal.IsZero() {
		return sdkmath.Int{}, protocol.ErrNothingToClaim
	}
	a.st.LpFeeBalances[addr] = sdkmath.ZeroInt()
	return bal, nil
}

// PendingLiquidator returns the liquidator's unsettled reward.
func (a *Accountant) PendingLiquidator(addr common.Address) (sdkmath.Int, error) {
	score, ok := a.st.LiquidatorScores[addr]
	if !ok || score.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	entitled, err := fixedpoint.MulDiv(score, a.st.Globals.AccLiquidatorFeesPerScore, fixedpoint.AccPrecisionInt())
	if err != nil {
		return sdkmath.Int{}, err
	}
	debt := a.st.LiquidatorRewardDebts[addr]
	if debt.IsNil() {
		debt = sdkmath.ZeroInt()
	}
	if entitled.LTE(debt) {
		return sdkmath.ZeroInt(), nil
	}
	return entitled.Sub(debt), nil
}

// SettleLiquidator mirrors SettleLp for the score-keyed side. Must be called
// before any change to the liquidator's score.
func (a *Accountant) SettleLiquidator(addr common.Address) error {
	pending, err := a.PendingLiquidator(addr)
	if err != nil {
		return err
	}
	if pending.IsPositive() {
		bal, ok := a.st.LiquidatorBalances[addr]
		if !ok {
			bal = sdkmath.ZeroInt()
		}
		a.st.LiquidatorBalances[addr] = bal.Add(pending)
	}
	score, ok := a.st.LiquidatorScores[addr]
	if !ok {
		score = sdkmath.ZeroInt()
	}
	entitled, err := fixedpoint.MulDiv(score, a.st.Globals.AccLiquidatorFeesPerScore, fixedpoint.AccPrecisionInt())
	if err != nil {
		return err
	}
	a.st.LiquidatorRewardDebts[addr] = entitled
	return nil
}

// AddLiquidatorScore settles the liquidator, then grows their score by the
// liquidated position value so future distributions weight them in.
func (a *Accountant) AddLiquidatorScore(addr common.Address, value sdkmath.Int) error {
	if err := a.SettleLiquidator(addr); err != nil {
		return err
	}
	score, ok := a.st.LiquidatorScores[addr]
	if !ok {
		score = sdkmath.ZeroInt()
	}
	a.st.LiquidatorScores[addr] = score.Add(value)
	a.st.Globals.TotalLiquidatorScore = a.st.Globals.TotalLiquidatorScore.Add(value)

	entitled, err := fixedpoint.MulDiv(a.st.LiquidatorScores[addr], a.st.Globals.AccLiquidatorFeesPerScore, fixedpoint.AccPrecisionInt())
	if err != nil {
		return err
	}
	a.st.LiquidatorRewardDebts[addr] = entitled
	return nil
}

// ClaimLiquidatorFees empties and returns the liquidator's claimable balance.
func (a *Accountant) ClaimLiquidatorFees(addr common.Address) (sdkmath.Int, error) {
	if err := a.SettleLiquidator(addr); err != nil {
		return sdkmath.Int{}, err
	}
	bal, ok := a.st.LiquidatorBalances[addr]
	if !ok || bal.IsZero() {
		return sdkmath.Int{}, protocol.ErrNothingToClaim
	}
	a.st.LiquidatorBalances[addr] = sdkmath.ZeroInt()
	return bal, nil
}

// TierFor returns the first tier whose MinStake the given hotkey stake
// meets. The catch-all tier guarantees a match.
func (a *Accountant) TierFor(stake sdkmath.Int) types.Tier {
	for _, tier := range a.st.Params.Tiers {
		if stake.GTE(tier.MinStake) {
			return tier
		}
	}
	return a.st.Params.Tiers[len(a.st.Params.Tiers)-1]
}

// DiscountedFee applies a tier's fee discount.
func (a *Accountant) DiscountedFee(fee sdkmath.Int, tier types.Tier) (sdkmath.Int, error) {
	rebate, err := fixedpoint.ApplyRate(fee, tier.FeeDiscount)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return fee.Sub(rebate), nil
}
