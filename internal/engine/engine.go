/*
Package engine implements the leveraged position lifecycle: open, close,
add-collateral and liquidate.

Every operation follows the same discipline: validate, compute, perform the
external staking calls, verify their outcome, and only then mutate shared
state. A stake or unstake whose execution lands outside the slippage bound
(or whose proceeds cannot cover a close's own debt) is reversed with a
compensating swap in the opposite direction before the operation errors, so
a failed operation leaves no position or accounting changes behind.
*/
package engine

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/tenexium/tenex-core/internal/fees"
	"github.com/tenexium/tenex-core/internal/fixedpoint"
	"github.com/tenexium/tenex-core/internal/gateway"
	"github.com/tenexium/tenex-core/internal/logger"
	"github.com/tenexium/tenex-core/internal/protocol"
	"github.com/tenexium/tenex-core/internal/risk"
	"github.com/tenexium/tenex-core/internal/types"
)

// MaxJustificationBytes bounds the off-chain evidence reference attached to
// a liquidation.
const MaxJustificationBytes = 256

// Engine executes position operations against shared state. All methods
// expect the caller to hold the state lock.
type Engine struct {
	st        *protocol.State
	acct      *fees.Accountant
	gw        gateway.StakingGateway
	validator types.Hotkey
	log       zerolog.Logger
}

// New returns an engine staking through gw to validator.
func New(st *protocol.State, acct *fees.Accountant, gw gateway.StakingGateway, validator types.Hotkey) *Engine {
	return &Engine{
		st:        st,
		acct:      acct,
		gw:        gw,
		validator: validator,
		log:       logger.GetForComponent("engine"),
	}
}

// slippageBound resolves the caller's slippage tolerance against the
// protocol cap. Zero means "use the cap".
func (e *Engine) slippageBound(maxSlippage sdkmath.Int) (sdkmath.Int, error) {
	if maxSlippage.IsNegative() {
		return sdkmath.Int{}, fixedpoint.ErrNegative
	}
	if maxSlippage.IsZero() || maxSlippage.GT(e.st.Params.MaxSlippage) {
		return e.st.Params.MaxSlippage, nil
	}
	return maxSlippage, nil
}

func minAcceptable(expected, maxSlippage sdkmath.Int) (sdkmath.Int, error) {
	keep := fixedpoint.PrecisionInt().Sub(maxSlippage)
	return fixedpoint.MulDiv(expected, keep, fixedpoint.PrecisionInt())
}

// tierLeverageCap returns the leverage ceiling for user on pair, the lesser
// of the pair's cap and the user's stake tier. Opening requires an
// associated hotkey; its stake balance selects the tier.
func (e *Engine) tierLeverageCap(ctx context.Context, user common.Address, pair *types.Pair) (sdkmath.Int, types.Tier, error) {
	hotkey, ok := e.st.Associations[user]
	if !ok {
		return sdkmath.Int{}, types.Tier{}, protocol.ErrNoAssociation
	}
	stake, err := e.gw.StakeBalance(ctx, hotkey)
	if err != nil {
		return sdkmath.Int{}, types.Tier{}, err
	}
	tier := e.acct.TierFor(stake)
	cap := tier.MaxLeverage
	if pair.MaxLeverage.IsPositive() && pair.MaxLeverage.LT(cap) {
		cap = pair.MaxLeverage
	}
	return cap, tier, nil
}

// refreshPairRates recomputes the pair's cached utilization and borrowing
// rate from the global pool after a debt-moving operation.
func (e *Engine) refreshPairRates(pair *types.Pair) {
	util := e.st.UtilizationRate()
	pair.UtilizationRate = util
	rate, err := e.st.Params.RateCurve.BorrowRate(util)
	if err != nil {
		// Unreachable for validated curves; keep the stale rate.
		e.log.Error().Err(err).Msg("borrow rate refresh failed")
		return
	}
	pair.BorrowingRate = rate
}

func (e *Engine) bumpUserStats(user common.Address, volume sdkmath.Int) {
	stats, ok := e.st.UserStats[user]
	if !ok {
		stats = &types.UserStats{TotalVolume: sdkmath.ZeroInt()}
		e.st.UserStats[user] = stats
	}
	stats.TotalVolume = stats.TotalVolume.Add(volume)
	stats.TradeCount++
}

// liveAccruedFees returns the position's accrued borrowing fees including
// the unsettled accrual since its last update.
func (e *Engine) liveAccruedFees(pos *types.Position, block uint64) (sdkmath.Int, error) {
	elapsed := uint64(0)
	if block > pos.LastUpdateBlock {
		elapsed = block - pos.LastUpdateBlock
	}
	fresh, err := e.st.Params.RateCurve.AccruedInterest(pos.Borrowed, e.st.UtilizationRate(), elapsed)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return pos.AccruedFees.Add(fresh), nil
}

// Open creates a leveraged position: borrow, charge the trading fee on
// gross notional, stake the net amount and record the entry.
func (e *Engine) Open(ctx context.Context, user common.Address, pairID types.PairID, collateral, leverage, maxSlippage sdkmath.Int, block uint64) (*types.Position, error) {
	if !collateral.IsPositive() {
		return nil, protocol.ErrAmountZero
	}
	if collateral.LT(e.st.Params.MinPositionCollateral) {
		return nil, protocol.ErrBelowMinimum
	}
	if leverage.LT(fixedpoint.PrecisionInt()) {
		return nil, protocol.ErrLeverageTooLow
	}
	pair, err := e.st.Pair(pairID)
	if err != nil {
		return nil, err
	}
	if _, err := e.st.Position(user, pairID); err == nil {
		return nil, protocol.ErrPositionExists
	}

	levCap, tier, err := e.tierLeverageCap(ctx, user, pair)
	if err != nil {
		return nil, err
	}
	if leverage.GT(levCap) {
		return nil, protocol.ErrLeverageTooHigh
	}

	borrowed, err := fixedpoint.MulDiv(collateral, leverage.Sub(fixedpoint.PrecisionInt()), fixedpoint.PrecisionInt())
	if err != nil {
		return nil, err
	}

	// The borrow must leave the configured buffer of liquidity untouched.
	buffered, err := fixedpoint.MulDiv(borrowed, fixedpoint.PrecisionInt().Add(e.st.Params.LiquidityBuffer), fixedpoint.PrecisionInt())
	if err != nil {
		return nil, err
	}
	if buffered.GT(e.st.AvailableLiquidity()) {
		return nil, protocol.ErrInsufficientLiquidity
	}

	gross := collateral.Add(borrowed)
	rawFee, err := fixedpoint.ApplyRate(gross, e.st.Params.TradingFeeRate)
	if err != nil {
		return nil, err
	}
	fee, err := e.acct.DiscountedFee(rawFee, tier)
	if err != nil {
		return nil, err
	}
	net := gross.Sub(fee)
	if !net.IsPositive() {
		return nil, protocol.ErrAmountZero
	}

	bound, err := e.slippageBound(maxSlippage)
	if err != nil {
		return nil, err
	}
	expected, err := e.gw.SimulateBuy(ctx, net)
	if err != nil {
		return nil, err
	}
	floor, err := minAcceptable(expected, bound)
	if err != nil {
		return nil, err
	}

	received, err := e.gw.Stake(ctx, net, e.validator)
	if err != nil {
		return nil, err
	}
	// Zero tokens back means the whole stake was lost to rounding; the
	// position would be unbacked, so it is treated like a slippage breach.
	if received.IsZero() || received.LT(floor) {
		// The stake already executed; swap it back before failing.
		if received.IsPositive() {
			if _, undoErr := e.gw.Unstake(ctx, received, e.validator); undoErr != nil {
				e.log.Error().Err(undoErr).
					Str("user", user.Hex()).
					Str("received_rao", received.String()).
					Msg("compensating unstake failed after slippage breach")
			}
		}
		return nil, protocol.ErrSlippageExceeded
	}

	entryPrice, err := fixedpoint.Div(net, received)
	if err != nil {
		return nil, err
	}

	pos := &types.Position{
		User:            user,
		PairID:          pairID,
		Collateral:      collateral,
		Borrowed:        borrowed,
		TokenAmount:     received,
		Leverage:        leverage,
		EntryPrice:      entryPrice,
		LastUpdateBlock: block,
		AccruedFees:     sdkmath.ZeroInt(),
		IsActive:        true,
		ValidatorHotkey: e.validator,
	}
	e.st.PutPosition(pos)

	pair.TotalCollateral = pair.TotalCollateral.Add(collateral)
	pair.TotalBorrowed = pair.TotalBorrowed.Add(borrowed)
	e.st.Globals.TotalCollateral = e.st.Globals.TotalCollateral.Add(collateral)
	e.st.Globals.TotalBorrowed = e.st.Globals.TotalBorrowed.Add(borrowed)
	e.st.Globals.TotalVolume = e.st.Globals.TotalVolume.Add(gross)
	e.st.Globals.TradeCount++
	e.bumpUserStats(user, gross)
	e.refreshPairRates(pair)

	if err := e.acct.Distribute(fee); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("user", user.Hex()).
		Uint16("pair", uint16(pairID)).
		Str("collateral_wei", collateral.String()).
		Str("leverage", leverage.String()).
		Str("tokens_rao", received.String()).
		Str("fee_wei", fee.String()).
		Msg("position opened")
	return pos, nil
}

// Close unwinds amountRao of the position (zero closes it fully). The whole
// operation fails, with the unstake reversed, when proceeds cannot cover the
// proportional debt plus fees.
func (e *Engine) Close(ctx context.Context, user common.Address, pairID types.PairID, amountRao, maxSlippage sdkmath.Int, block uint64) (*types.CloseResult, error) {
	pos, err := e.st.Position(user, pairID)
	if err != nil {
		return nil, err
	}
	pair, err := e.st.PairAny(pairID)
	if err != nil {
		return nil, err
	}

	if amountRao.IsNegative() {
		return nil, protocol.ErrAmountZero
	}
	closeAmount := amountRao
	if closeAmount.IsZero() {
		closeAmount = pos.TokenAmount
	}
	if closeAmount.GT(pos.TokenAmount) {
		return nil, protocol.ErrAmountTooLarge
	}
	fullClose := closeAmount.Equal(pos.TokenAmount)

	liveFees, err := e.liveAccruedFees(pos, block)
	if err != nil {
		return nil, err
	}

	// Proportional slices; a full close takes the exact remainders so no
	// dust survives rounding.
	var borrowedToRepay, collateralToReturn, feesToPay sdkmath.Int
	if fullClose {
		borrowedToRepay = pos.Borrowed
		collateralToReturn = pos.Collateral
		feesToPay = liveFees
	} else {
		if borrowedToRepay, err = fixedpoint.MulDiv(pos.Borrowed, closeAmount, pos.TokenAmount); err != nil {
			return nil, err
		}
		if collateralToReturn, err = fixedpoint.MulDiv(pos.Collateral, closeAmount, pos.TokenAmount); err != nil {
			return nil, err
		}
		if feesToPay, err = fixedpoint.MulDiv(liveFees, closeAmount, pos.TokenAmount); err != nil {
			return nil, err
		}
	}

	bound, err := e.slippageBound(maxSlippage)
	if err != nil {
		return nil, err
	}
	expected, err := e.gw.SimulateSell(ctx, closeAmount)
	if err != nil {
		return nil, err
	}
	floor, err := minAcceptable(expected, bound)
	if err != nil {
		return nil, err
	}

	proceeds, err := e.gw.Unstake(ctx, closeAmount, e.validator)
	if err != nil {
		return nil, err
	}

	undo := func(reason error) error {
		if _, undoErr := e.gw.Stake(ctx, proceeds, e.validator); undoErr != nil {
			e.log.Error().Err(undoErr).
				Str("user", user.Hex()).
				Str("proceeds_wei", proceeds.String()).
				Msg("compensating restake failed after aborted close")
		}
		return reason
	}

	if proceeds.LT(floor) {
		return nil, undo(protocol.ErrSlippageExceeded)
	}

	tradingFee, err := fixedpoint.ApplyRate(proceeds, e.st.Params.TradingFeeRate)
	if err != nil {
		return nil, undo(err)
	}
	totalCosts := borrowedToRepay.Add(feesToPay).Add(tradingFee)
	if proceeds.LT(totalCosts) {
		return nil, undo(protocol.ErrInsufficientProceeds)
	}
	netReturn := proceeds.Sub(totalCosts)
	pnl := proceeds.Sub(borrowedToRepay).Sub(feesToPay).Sub(collateralToReturn)

	if fullClose {
		pos.IsActive = false
		e.st.RemovePosition(user, pairID)
	} else {
		pos.Collateral = pos.Collateral.Sub(collateralToReturn)
		pos.Borrowed = pos.Borrowed.Sub(borrowedToRepay)
		pos.TokenAmount = pos.TokenAmount.Sub(closeAmount)
		pos.AccruedFees = liveFees.Sub(feesToPay)
		pos.LastUpdateBlock = block
	}

	pair.TotalCollateral = pair.TotalCollateral.Sub(collateralToReturn)
	pair.TotalBorrowed = pair.TotalBorrowed.Sub(borrowedToRepay)
	e.st.Globals.TotalCollateral = e.st.Globals.TotalCollateral.Sub(collateralToReturn)
	e.st.Globals.TotalBorrowed = e.st.Globals.TotalBorrowed.Sub(borrowedToRepay)
	e.st.Globals.TotalVolume = e.st.Globals.TotalVolume.Add(proceeds)
	e.st.Globals.TradeCount++
	e.bumpUserStats(user, proceeds)
	e.refreshPairRates(pair)

	if err := e.acct.Distribute(tradingFee.Add(feesToPay)); err != nil {
		return nil, err
	}

	fraction := fixedpoint.PrecisionInt()
	if !fullClose {
		fraction, err = fixedpoint.MulDiv(closeAmount, fixedpoint.PrecisionInt(), closeAmount.Add(pos.TokenAmount))
		if err != nil {
			return nil, err
		}
	}

	result := &types.CloseResult{
		User:           user,
		PairID:         pairID,
		ClosedFraction: fraction,
		ProceedsWei:    proceeds,
		BorrowedRepaid: borrowedToRepay,
		BorrowingFees:  feesToPay,
		TradingFee:     tradingFee,
		NetReturn:      netReturn,
		PnL:            pnl,
		FullyClosed:    fullClose,
	}
	e.log.Info().
		Str("user", user.Hex()).
		Uint16("pair", uint16(pairID)).
		Str("proceeds_wei", proceeds.String()).
		Str("net_return_wei", netReturn.String()).
		Str("pnl_wei", pnl.String()).
		Bool("full", fullClose).
		Msg("position closed")
	return result, nil
}

// AddCollateral tops up an active position. The pending borrowing fee is
// folded into accruedFees first so the block bump does not forgive interest.
func (e *Engine) AddCollateral(user common.Address, pairID types.PairID, amount sdkmath.Int, block uint64) error {
	if !amount.IsPositive() {
		return protocol.ErrAmountZero
	}
	pos, err := e.st.Position(user, pairID)
	if err != nil {
		return err
	}
	pair, err := e.st.PairAny(pairID)
	if err != nil {
		return err
	}

	liveFees, err := e.liveAccruedFees(pos, block)
	if err != nil {
		return err
	}

	pos.AccruedFees = liveFees
	pos.LastUpdateBlock = block
	pos.Collateral = pos.Collateral.Add(amount)
	pair.TotalCollateral = pair.TotalCollateral.Add(amount)
	e.st.Globals.TotalCollateral = e.st.Globals.TotalCollateral.Add(amount)

	e.log.Info().
		Str("user", user.Hex()).
		Uint16("pair", uint16(pairID)).
		Str("amount_wei", amount.String()).
		Msg("collateral added")
	return nil
}

// Liquidate force-closes an unhealthy position. Proceeds repay the debt
// first; the remainder bears the liquidation fee, split between the caller
// and the protocol, with anything left returned to the position owner.
func (e *Engine) Liquidate(ctx context.Context, liquidator, user common.Address, pairID types.PairID, justification string, contentHash types.ContentHash, block uint64) (*types.LiquidationResult, error) {
	if len(justification) == 0 || len(justification) > MaxJustificationBytes {
		return nil, protocol.ErrInvalidJustification
	}
	if contentHash == (types.ContentHash{}) {
		return nil, protocol.ErrInvalidJustification
	}
	if liquidator == user {
		return nil, protocol.ErrSelfLiquidation
	}

	pos, err := e.st.Position(user, pairID)
	if err != nil {
		return nil, err
	}
	pair, err := e.st.PairAny(pairID)
	if err != nil {
		return nil, err
	}

	value, err := e.gw.SimulateSell(ctx, pos.TokenAmount)
	if err != nil {
		return nil, err
	}
	if value.IsZero() {
		return nil, protocol.ErrInsufficientProceeds
	}

	liveFees, err := e.liveAccruedFees(pos, block)
	if err != nil {
		return nil, err
	}
	totalDebt := pos.Borrowed.Add(liveFees)

	hr, err := risk.HealthRatio(value, totalDebt)
	if err != nil {
		return nil, err
	}
	if !risk.IsLiquidatable(hr, e.st.Params.LiquidationThreshold) {
		return nil, protocol.ErrNotLiquidatable
	}

	proceeds, err := e.gw.Unstake(ctx, pos.TokenAmount, e.validator)
	if err != nil {
		return nil, err
	}
	if proceeds.IsZero() {
		return nil, protocol.ErrInsufficientProceeds
	}

	debtRepaid := totalDebt
	if proceeds.LT(debtRepaid) {
		debtRepaid = proceeds
	}
	remaining := proceeds.Sub(debtRepaid)

	liqFee, err := fixedpoint.ApplyRate(remaining, e.st.Params.LiquidationFeeRate)
	if err != nil {
		return nil, err
	}
	liquidatorPayout, err := fixedpoint.ApplyRate(liqFee, e.st.Params.LiquidationLiquidatorShare)
	if err != nil {
		return nil, err
	}
	protocolShare := liqFee.Sub(liquidatorPayout)
	ownerReturn := remaining.Sub(liqFee)

	pos.IsActive = false
	e.st.RemovePosition(user, pairID)

	pair.TotalCollateral = pair.TotalCollateral.Sub(pos.Collateral)
	pair.TotalBorrowed = pair.TotalBorrowed.Sub(pos.Borrowed)
	e.st.Globals.TotalCollateral = e.st.Globals.TotalCollateral.Sub(pos.Collateral)
	e.st.Globals.TotalBorrowed = e.st.Globals.TotalBorrowed.Sub(pos.Borrowed)
	e.refreshPairRates(pair)

	if liquidatorPayout.IsPositive() {
		bal, ok := e.st.LiquidatorBalances[liquidator]
		if !ok {
			bal = sdkmath.ZeroInt()
		}
		e.st.LiquidatorBalances[liquidator] = bal.Add(liquidatorPayout)
	}
	e.acct.CreditProtocol(protocolShare)
	if err := e.acct.AddLiquidatorScore(liquidator, value); err != nil {
		return nil, err
	}

	result := &types.LiquidationResult{
		User:             user,
		Liquidator:       liquidator,
		PairID:           pairID,
		PositionValue:    value,
		ProceedsWei:      proceeds,
		DebtRepaid:       debtRepaid,
		LiquidationFee:   liqFee,
		LiquidatorPayout: liquidatorPayout,
		ProtocolShare:    protocolShare,
		OwnerReturn:      ownerReturn,
		Justification:    justification,
		ContentHash:      contentHash,
	}
	e.log.Warn().
		Str("user", user.Hex()).
		Str("liquidator", liquidator.Hex()).
		Uint16("pair", uint16(pairID)).
		Str("proceeds_wei", proceeds.String()).
		Str("debt_repaid_wei", debtRepaid.String()).
		Str("owner_return_wei", ownerReturn.String()).
		Msg("position liquidated")
	return result, nil
}
