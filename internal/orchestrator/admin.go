/*

Admin entry points. Every setter builds a candidate parameter set, runs the
full config.ProtocolParams validation against it and only then commits, so
a bad value can never land in the live set. Committed sets are versioned in
the database.

*/

package orchestrator

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/tenexium/tenex-core/internal/config"
	"github.com/tenexium/tenex-core/internal/protocol"
	"github.com/tenexium/tenex-core/internal/risk"
	"github.com/tenexium/tenex-core/internal/state"
	"github.com/tenexium/tenex-core/internal/types"
)

// updateParams applies mutate to a copy of the live parameters, validates
// the result and commits it under the state lock.
func (o *Orchestrator) updateParams(ctx context.Context, mutate func(*config.ProtocolParams)) error {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	end, err := o.beginSystem()
	if err != nil {
		return err
	}
	defer end()

	next := o.st.Params
	mutate(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	o.st.Params = next

	if state.DB != nil {
		version, err := state.NextParamsVersion()
		if err != nil {
			o.log.Warn().Err(err).Msg("failed to determine parameter version")
		} else if _, err := state.SaveProtocolParams(next, version, true); err != nil {
			o.log.Warn().Err(err).Msg("failed to persist protocol parameters")
		}
	}
	o.emit(block, types.EventParameterSet, "", nil, next)
	return nil
}

// SetParameters replaces the whole parameter set.
func (o *Orchestrator) SetParameters(ctx context.Context, params config.ProtocolParams) error {
	return o.updateParams(ctx, func(p *config.ProtocolParams) { *p = params })
}

// SetTradingFeeRate updates the open/close trading fee.
func (o *Orchestrator) SetTradingFeeRate(ctx context.Context, rate sdkmath.Int) error {
	return o.updateParams(ctx, func(p *config.ProtocolParams) { p.TradingFeeRate = rate })
}

// SetFeeSplits updates the LP/liquidator/protocol fee distribution. The
// three shares must sum to exactly fixedpoint.Precision.
func (o *Orchestrator) SetFeeSplits(ctx context.Context, lp, liquidator, prot sdkmath.Int) error {
	return o.updateParams(ctx, func(p *config.ProtocolParams) {
		p.LpFeeShare = lp
		p.LiquidatorFeeShare = liquidator
		p.ProtocolFeeShare = prot
	})
}

// SetLiquidationParams updates the liquidation threshold, fee rate and the
// caller's share of the fee.
func (o *Orchestrator) SetLiquidationParams(ctx context.Context, threshold, feeRate, liquidatorShare sdkmath.Int) error {
	return o.updateParams(ctx, func(p *config.ProtocolParams) {
		p.LiquidationThreshold = threshold
		p.LiquidationFeeRate = feeRate
		p.LiquidationLiquidatorShare = liquidatorShare
	})
}

// SetUtilizationParams updates the borrow caps on the shared pool.
func (o *Orchestrator) SetUtilizationParams(ctx context.Context, maxUtilization, buffer, minTotalStake sdkmath.Int) error {
	return o.updateParams(ctx, func(p *config.ProtocolParams) {
		p.MaxUtilization = maxUtilization
		p.LiquidityBuffer = buffer
		p.MinTotalStake = minTotalStake
	})
}

// SetMinimums updates the dust floors on liquidity deposits and opening
// collateral.
func (o *Orchestrator) SetMinimums(ctx context.Context, minDeposit, minCollateral sdkmath.Int) error {
	return o.updateParams(ctx, func(p *config.ProtocolParams) {
		p.MinLiquidityDeposit = minDeposit
		p.MinPositionCollateral = minCollateral
	})
}

// SetRateCurve updates the utilization-kinked borrowing rate curve.
func (o *Orchestrator) SetRateCurve(ctx context.Context, curve risk.RateCurve) error {
	return o.updateParams(ctx, func(p *config.ProtocolParams) { p.RateCurve = curve })
}

// SetMaxSlippage updates the slippage bound on swaps.
func (o *Orchestrator) SetMaxSlippage(ctx context.Context, maxSlippage sdkmath.Int) error {
	return o.updateParams(ctx, func(p *config.ProtocolParams) { p.MaxSlippage = maxSlippage })
}

// SetCooldownBlocks updates the per-user rate limit.
func (o *Orchestrator) SetCooldownBlocks(ctx context.Context, blocks uint64) error {
	return o.updateParams(ctx, func(p *config.ProtocolParams) { p.CooldownBlocks = blocks })
}

// SetTiers replaces the fee-tier table.
func (o *Orchestrator) SetTiers(ctx context.Context, tiers []types.Tier) error {
	return o.updateParams(ctx, func(p *config.ProtocolParams) { p.Tiers = tiers })
}

// SetBuybackParams updates the buyback schedule.
func (o *Orchestrator) SetBuybackParams(ctx context.Context, rate sdkmath.Int, interval uint64, threshold sdkmath.Int) error {
	return o.updateParams(ctx, func(p *config.ProtocolParams) {
		p.BuybackRate = rate
		p.BuybackInterval = interval
		p.BuybackThreshold = threshold
	})
}

// SetVestingParams updates the cliff and duration applied to future
// buyback vesting schedules. Existing schedules keep their terms.
func (o *Orchestrator) SetVestingParams(ctx context.Context, cliffBlocks, durationBlocks uint64) error {
	return o.updateParams(ctx, func(p *config.ProtocolParams) {
		p.VestingCliffBlocks = cliffBlocks
		p.VestingDurationBlocks = durationBlocks
	})
}

// AddPair registers a tradable pair. Re-adding an existing id updates its
// leverage cap and reactivates it.
func (o *Orchestrator) AddPair(ctx context.Context, id types.PairID, maxLeverage sdkmath.Int) error {
	if maxLeverage.LT(sdkmath.NewInt(1_000_000_000)) {
		return protocol.ErrLeverageTooLow
	}
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	end, err := o.beginSystem()
	if err != nil {
		return err
	}
	defer end()

	pair, ok := o.st.Pairs[id]
	if !ok {
		pair = &types.Pair{
			ID:              id,
			TotalCollateral: sdkmath.ZeroInt(),
			TotalBorrowed:   sdkmath.ZeroInt(),
			UtilizationRate: sdkmath.ZeroInt(),
			BorrowingRate:   sdkmath.ZeroInt(),
		}
		o.st.Pairs[id] = pair
	}
	pair.MaxLeverage = maxLeverage
	pair.IsActive = true

	o.log.Info().
		Uint16("pair", uint16(id)).
		Str("max_leverage", maxLeverage.String()).
		Msg("pair registered")
	o.emit(block, types.EventParameterSet, "", &id, map[string]string{
		"max_leverage": maxLeverage.String(),
		"action":       "add_pair",
	})
	return nil
}

// SetPairActive flips a pair's trading flag. Open positions on a
// deactivated pair can still be closed and liquidated.
func (o *Orchestrator) SetPairActive(ctx context.Context, id types.PairID, active bool) error {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	end, err := o.beginSystem()
	if err != nil {
		return err
	}
	defer end()

	pair, ok := o.st.Pairs[id]
	if !ok {
		return protocol.ErrPairNotFound
	}
	pair.IsActive = active
	o.emit(block, types.EventParameterSet, "", &id, map[string]bool{
		"is_active": active,
	})
	return nil
}

// Pause halts all user entry points.
func (o *Orchestrator) Pause(ctx context.Context) error {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	end, err := o.beginSystem()
	if err != nil {
		return err
	}
	defer end()

	o.st.Globals.Paused = true
	o.log.Warn().Uint64("block", block).Msg("protocol paused")
	o.emit(block, types.EventParameterSet, "", nil, map[string]bool{"paused": true})
	return nil
}

// Unpause resumes user entry points.
func (o *Orchestrator) Unpause(ctx context.Context) error {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	end, err := o.beginSystem()
	if err != nil {
		return err
	}
	defer end()

	o.st.Globals.Paused = false
	o.log.Info().Uint64("block", block).Msg("protocol unpaused")
	o.emit(block, types.EventParameterSet, "", nil, map[string]bool{"paused": false})
	return nil
}
