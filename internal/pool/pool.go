/*
Package pool manages the shared TAO liquidity that positions borrow from.

Providers deposit TAO and receive shares priced at stake-per-share, so fees
folded into the pool raise every share equally. Pending rewards are settled
before any share change; reward debt is re-pinned afterwards, which keeps
distributions strictly non-retroactive.
*/
package pool

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/tenexium/tenex-core/internal/fees"
	"github.com/tenexium/tenex-core/internal/fixedpoint"
	"github.com/tenexium/tenex-core/internal/logger"
	"github.com/tenexium/tenex-core/internal/protocol"
	"github.com/tenexium/tenex-core/internal/types"
)

// Pool mutates the LP side of the protocol state. All methods expect the
// caller to hold the state lock.
type Pool struct {
	st   *protocol.State
	acct *fees.Accountant
	log  zerolog.Logger
}

// New returns a pool bound to st.
func New(st *protocol.State, acct *fees.Accountant) *Pool {
	return &Pool{st: st, acct: acct, log: logger.GetForComponent("pool")}
}

// Deposit adds amountWei of TAO for addr, minting shares at the current
// stake-per-share price.
func (p *Pool) Deposit(addr common.Address, amountWei sdkmath.Int, block uint64) error {
	if !amountWei.IsPositive() {
		return protocol.ErrAmountZero
	}
	if amountWei.LT(p.st.Params.MinLiquidityDeposit) {
		return protocol.ErrBelowMinimum
	}

	if err := p.acct.SettleLp(addr); err != nil {
		return err
	}

	var shares sdkmath.Int
	if p.st.Globals.TotalShares.IsZero() {
		shares = amountWei
	} else {
		var err error
		shares, err = fixedpoint.MulDiv(amountWei, p.st.Globals.TotalShares, p.st.Globals.TotalLpStakes)
		if err != nil {
			return err
		}
	}
	if shares.IsZero() {
		return protocol.ErrAmountZero
	}

	lp := p.st.Lp(addr)
	lp.Stake = lp.Stake.Add(amountWei)
	lp.Shares = lp.Shares.Add(shares)
	lp.LastRewardBlock = block
	lp.IsActive = true
	p.st.Globals.TotalLpStakes = p.st.Globals.TotalLpStakes.Add(amountWei)
	p.st.Globals.TotalShares = p.st.Globals.TotalShares.Add(shares)

	if err := p.acct.ResetLpRewardDebt(addr); err != nil {
		return err
	}

	p.log.Info().
		Str("provider", addr.Hex()).
		Str("amount_wei", amountWei.String()).
		Str("shares", shares.String()).
		Msg("liquidity added")
	return nil
}

// Withdraw removes amountWei of addr's stake. The withdrawal is rejected
// when it would push utilization past the maximum or dip into borrowed
// funds.
func (p *Pool) Withdraw(addr common.Address, amountWei sdkmath.Int, block uint64) error {
	if !amountWei.IsPositive() {
		return protocol.ErrAmountZero
	}

	lp, ok := p.st.Lps[addr]
	if !ok || lp.Stake.LT(amountWei) {
		return protocol.ErrInsufficientStake
	}
	if amountWei.GT(p.st.AvailableLiquidity()) {
		return protocol.ErrInsufficientLiquidity
	}

	remaining := p.st.Globals.TotalLpStakes.Sub(amountWei)
	if remaining.IsZero() {
		if !p.st.Globals.TotalBorrowed.IsZero() {
			return protocol.ErrUtilizationTooHigh
		}
	} else {
		util, err := fixedpoint.MulDiv(p.st.Globals.TotalBorrowed, fixedpoint.PrecisionInt(), remaining)
		if err != nil {
			return err
		}
		if util.GT(p.st.Params.MaxUtilization) {
			return protocol.ErrUtilizationTooHigh
		}
	}

	if err := p.acct.SettleLp(addr); err != nil {
		return err
	}

	var burned sdkmath.Int
	if amountWei.Equal(lp.Stake) {
		burned = lp.Shares
	} else {
		var err error
		burned, err = fixedpoint.MulDiv(amountWei, p.st.Globals.TotalShares, p.st.Globals.TotalLpStakes)
		if err != nil {
			return err
		}
	}

	lp.Stake = lp.Stake.Sub(amountWei)
	lp.Shares = lp.Shares.Sub(burned)
	lp.LastRewardBlock = block
	if lp.Stake.IsZero() {
		lp.IsActive = false
	}
	p.st.Globals.TotalLpStakes = p.st.Globals.TotalLpStakes.Sub(amountWei)
	p.st.Globals.TotalShares = p.st.Globals.TotalShares.Sub(burned)

	if err := p.acct.ResetLpRewardDebt(addr); err != nil {
		return err
	}

	p.log.Info().
		Str("provider", addr.Hex()).
		Str("amount_wei", amountWei.String()).
		Str("shares_burned", burned.String()).
		Msg("liquidity removed")
	return nil
}

// CheckCircuitBreaker trips the breaker when utilization exceeds the
// configured maximum or total stake falls under the pool floor, and resets
// it once both recover. Called after every operation that moves stake or
// debt.
func (p *Pool) CheckCircuitBreaker() {
	util := p.st.UtilizationRate()
	over := util.GT(p.st.Params.MaxUtilization) ||
		p.st.Globals.TotalLpStakes.LT(p.st.Params.MinTotalStake)
	switch {
	case over && !p.st.Globals.CircuitBreaker:
		p.st.Globals.CircuitBreaker = true
		p.log.Warn().
			Str("utilization", util.String()).
			Str("total_lp_stakes", p.st.Globals.TotalLpStakes.String()).
			Str("max_utilization", p.st.Params.MaxUtilization.String()).
			Msg("liquidity circuit breaker tripped")
	case !over && p.st.Globals.CircuitBreaker:
		p.st.Globals.CircuitBreaker = false
		p.log.Info().
			Str("utilization", util.String()).
			Msg("liquidity circuit breaker reset")
	}
}

// LpInfo reports a provider's stake, shares and claimable rewards.
func (p *Pool) LpInfo(addr common.Address) (types.LpInfo, error) {
	pending, err := p.acct.PendingLp(addr)
	if err != nil {
		return types.LpInfo{}, err
	}
	claimable := pending
	if bal, ok := p.st.LpFeeBalances[addr]; ok {
		claimable = claimable.Add(bal)
	}

	lp, ok := p.st.Lps[addr]
	if !ok {
		return types.LpInfo{
			Stake:     sdkmath.ZeroInt(),
			Shares:    sdkmath.ZeroInt(),
			Claimable: claimable,
		}, nil
	}
	return types.LpInfo{
		Stake:     lp.Stake,
		Shares:    lp.Shares,
		Claimable: claimable,
		IsActive:  lp.IsActive,
	}, nil
}
