/*
Package buyback spends accrued protocol fees on subnet tokens and locks the
purchases behind linear vesting schedules.

The spend per window is a configured fraction of the buyback pool, boosted
10% per missed window (capped at +50%) so a stalled schedule catches up
instead of compounding a backlog. Missing a window is a schedule adjustment,
not an error.
*/
package buyback

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/tenexium/tenex-core/internal/fixedpoint"
	"github.com/tenexium/tenex-core/internal/gateway"
	"github.com/tenexium/tenex-core/internal/logger"
	"github.com/tenexium/tenex-core/internal/protocol"
	"github.com/tenexium/tenex-core/internal/types"
)

// Ramp boost per missed window and its cap, fixed point.
var (
	rampStep = sdkmath.NewInt(100_000_000) // +10%
	rampCap  = sdkmath.NewInt(500_000_000) // +50%
)

// Engine executes buybacks against shared state. All methods expect the
// caller to hold the state lock.
type Engine struct {
	st        *protocol.State
	gw        gateway.StakingGateway
	validator types.Hotkey
	log       zerolog.Logger
}

// New returns a buyback engine staking through gw to validator.
func New(st *protocol.State, gw gateway.StakingGateway, validator types.Hotkey) *Engine {
	return &Engine{st: st, gw: gw, validator: validator, log: logger.GetForComponent("buyback")}
}

func (e *Engine) blocksSince(block uint64) uint64 {
	if block <= e.st.Globals.LastBuybackBlock {
		return 0
	}
	return block - e.st.Globals.LastBuybackBlock
}

// missedWindows counts full intervals that elapsed beyond the first due one.
func (e *Engine) missedWindows(block uint64) uint64 {
	since := e.blocksSince(block)
	interval := e.st.Params.BuybackInterval
	if since < interval {
		return 0
	}
	return since/interval - 1
}

// plannedSpend returns the wei this window would spend: the configured rate
// boosted by the catch-up ramp, applied to the pool. High rates with the
// boost can plan past the pool, so the spend is capped at the available
// balance.
func (e *Engine) plannedSpend(block uint64) (sdkmath.Int, error) {
	boost := sdkmath.NewIntFromUint64(e.missedWindows(block)).Mul(rampStep)
	if boost.GT(rampCap) {
		boost = rampCap
	}
	fraction, err := fixedpoint.MulDiv(e.st.Params.BuybackRate, fixedpoint.PrecisionInt().Add(boost), fixedpoint.PrecisionInt())
	if err != nil {
		return sdkmath.Int{}, err
	}
	spend, err := fixedpoint.ApplyRate(e.st.Globals.BuybackPool, fraction)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if spend.GT(e.st.Globals.BuybackPool) {
		spend = e.st.Globals.BuybackPool
	}
	return spend, nil
}

// CanExecute reports whether a buyback would run at block: the interval has
// elapsed, the pool has reached the execution threshold, and the planned
// spend is nonzero.
func (e *Engine) CanExecute(block uint64) bool {
	if e.blocksSince(block) < e.st.Params.BuybackInterval {
		return false
	}
	if e.st.Globals.BuybackPool.LT(e.st.Params.BuybackThreshold) {
		return false
	}
	spend, err := e.plannedSpend(block)
	if err != nil {
		return false
	}
	return spend.IsPositive()
}

// Execute runs one buyback window: spend, record slippage, and lock the
// purchased tokens behind a fresh vesting schedule for the beneficiary.
func (e *Engine) Execute(ctx context.Context, beneficiary common.Address, block uint64) (*types.BuybackResult, error) {
	if e.blocksSince(block) < e.st.Params.BuybackInterval {
		return nil, protocol.ErrBuybackNotDue
	}
	if e.st.Globals.BuybackPool.LT(e.st.Params.BuybackThreshold) {
		return nil, protocol.ErrBuybackEmpty
	}
	missed := e.missedWindows(block)
	spend, err := e.plannedSpend(block)
	if err != nil {
		return nil, err
	}
	if !spend.IsPositive() {
		return nil, protocol.ErrBuybackEmpty
	}

	expected, err := e.gw.SimulateBuy(ctx, spend)
	if err != nil {
		return nil, err
	}
	actual, err := e.gw.Stake(ctx, spend, e.validator)
	if err != nil {
		return nil, err
	}

	slippage := sdkmath.ZeroInt()
	if actual.LT(expected) && expected.IsPositive() {
		slippage, err = fixedpoint.MulDiv(expected.Sub(actual), fixedpoint.PrecisionInt(), expected)
		if err != nil {
			return nil, err
		}
	}

	e.st.Globals.BuybackPool = e.st.Globals.BuybackPool.Sub(spend)
	e.st.Globals.CumulativeBuyback = e.st.Globals.CumulativeBuyback.Add(actual)
	e.st.Globals.LastBuybackBlock = block

	schedule := &types.VestingSchedule{
		Beneficiary:   beneficiary,
		TotalAmount:   actual,
		ClaimedAmount: sdkmath.ZeroInt(),
		StartBlock:    block,
		CliffBlock:    block + e.st.Params.VestingCliffBlocks,
		EndBlock:      block + e.st.Params.VestingDurationBlocks,
	}
	e.st.Vesting[beneficiary] = append(e.st.Vesting[beneficiary], schedule)

	result := &types.BuybackResult{
		Block:          block,
		SpendWei:       spend,
		ExpectedTokens: expected,
		ActualTokens:   actual,
		Slippage:       slippage,
		MissedWindows:  missed,
	}
	e.log.Info().
		Uint64("block", block).
		Str("spend_wei", spend.String()).
		Str("tokens_rao", actual.String()).
		Uint64("missed_windows", missed).
		Msg("buyback executed")
	return result, nil
}

// Vested returns the amount of a schedule unlocked at block: zero before the
// cliff, linear from start to end, the full amount at or past the end.
func Vested(s *types.VestingSchedule, block uint64) sdkmath.Int {
	if s.Revoked || block < s.CliffBlock {
		return sdkmath.ZeroInt()
	}
	if block >= s.EndBlock {
		return s.TotalAmount
	}
	elapsed := sdkmath.NewIntFromUint64(block - s.StartBlock)
	span := sdkmath.NewIntFromUint64(s.EndBlock - s.StartBlock)
	return s.TotalAmount.Mul(elapsed).Quo(span)
}

// ClaimVested sweeps the claimable remainder across all of the
// beneficiary's schedules. An empty schedule list is an error; nothing
// being claimable yet is not, it returns zero.
func (e *Engine) ClaimVested(beneficiary common.Address, block uint64) (sdkmath.Int, error) {
	schedules, ok := e.st.Vesting[beneficiary]
	if !ok || len(schedules) == 0 {
		return sdkmath.Int{}, protocol.ErrNoVestingSchedules
	}

	total := sdkmath.ZeroInt()
	for _, s := range schedules {
		claimable := Vested(s, block).Sub(s.ClaimedAmount)
		if claimable.IsPositive() {
			s.ClaimedAmount = s.ClaimedAmount.Add(claimable)
			total = total.Add(claimable)
		}
	}
	if total.IsPositive() {
		e.log.Info().
			Str("beneficiary", beneficiary.Hex()).
			Str("claimed_rao", total.String()).
			Msg("vested tokens claimed")
	}
	return total, nil
}
