/*
Package orchestrator is the admission layer in front of the protocol
engines. Every external entry point runs here: it serializes access under
the single state mutex, holds the reentrancy guard across external calls,
enforces the pause flag, the circuit breaker and the per-user cooldown,
delegates to the engine/pool/fee/buyback components, re-evaluates the
circuit breaker afterwards and records an operation event.

Persistence is best-effort: the in-memory state is authoritative and a
database failure is logged, never surfaced to the caller of a completed
operation.
*/
package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tenexium/tenex-core/internal/buyback"
	"github.com/tenexium/tenex-core/internal/config"
	"github.com/tenexium/tenex-core/internal/engine"
	"github.com/tenexium/tenex-core/internal/fees"
	"github.com/tenexium/tenex-core/internal/gateway"
	"github.com/tenexium/tenex-core/internal/logger"
	"github.com/tenexium/tenex-core/internal/pool"
	"github.com/tenexium/tenex-core/internal/protocol"
	"github.com/tenexium/tenex-core/internal/state"
	"github.com/tenexium/tenex-core/internal/types"
)

// Orchestrator wires the protocol components behind guarded entry points.
type Orchestrator struct {
	st      *protocol.State
	engine  *engine.Engine
	pool    *pool.Pool
	acct    *fees.Accountant
	buyback *buyback.Engine
	gw      gateway.StakingGateway

	// beneficiary receives the vesting schedules created by buybacks.
	beneficiary common.Address

	log zerolog.Logger
}

// New builds the component graph on a shared state.
func New(st *protocol.State, gw gateway.StakingGateway, validator types.Hotkey, beneficiary common.Address) *Orchestrator {
	acct := fees.NewAccountant(st)
	return &Orchestrator{
		st:          st,
		engine:      engine.New(st, acct, gw, validator),
		pool:        pool.New(st, acct),
		acct:        acct,
		buyback:     buyback.New(st, gw, validator),
		gw:          gw,
		beneficiary: beneficiary,
		log:         logger.GetForComponent("orchestrator"),
	}
}

// begin acquires the reentrancy guard and the state lock, then runs the
// admission checks for a user entry point. Risk-increasing operations are
// additionally blocked while the circuit breaker is open. The returned
// release function must be deferred.
func (o *Orchestrator) begin(caller common.Address, block uint64, riskIncreasing bool) (func(), error) {
	if err := o.st.Enter(); err != nil {
		return nil, err
	}
	o.st.Lock()
	end := func() {
		o.st.Unlock()
		o.st.Exit()
	}

	if o.st.Globals.Paused {
		end()
		return nil, protocol.ErrPaused
	}
	if riskIncreasing && o.st.Globals.CircuitBreaker {
		end()
		return nil, protocol.ErrBreakerOpen
	}
	if last, ok := o.st.LastActionBlock[caller]; ok && block < last+o.st.Params.CooldownBlocks {
		end()
		return nil, protocol.ErrCooldown
	}
	return end, nil
}

// beginSystem is begin without the cooldown, for the buyback scheduler and
// admin operations.
func (o *Orchestrator) beginSystem() (func(), error) {
	if err := o.st.Enter(); err != nil {
		return nil, err
	}
	o.st.Lock()
	return func() {
		o.st.Unlock()
		o.st.Exit()
	}, nil
}

// touch records the caller's action block for cooldown enforcement.
func (o *Orchestrator) touch(caller common.Address, block uint64) {
	o.st.LastActionBlock[caller] = block
}

// afterMutation is the post-action hook: re-evaluates the circuit breaker
// and mirrors trips and recoveries to the database.
func (o *Orchestrator) afterMutation(block uint64) {
	before := o.st.Globals.CircuitBreaker
	o.pool.CheckCircuitBreaker()
	after := o.st.Globals.CircuitBreaker
	if before == after || state.DB == nil {
		return
	}
	if after {
		util := o.st.UtilizationRate()
		if err := state.SaveBreakerTrip(block, util.String()); err != nil {
			o.log.Warn().Err(err).Msg("failed to persist breaker trip")
		}
		o.emit(block, types.EventBreakerTrip, "", nil, map[string]string{
			"utilization":     util.String(),
			"total_lp_stakes": o.st.Globals.TotalLpStakes.String(),
		})
	} else {
		if err := state.ResolveBreakerTrips(); err != nil {
			o.log.Warn().Err(err).Msg("failed to resolve breaker trips")
		}
	}
}

// emit writes an operation event row. No-op without a database.
func (o *Orchestrator) emit(block uint64, kind, user string, pairID *types.PairID, payload interface{}) {
	if state.DB == nil {
		return
	}
	var blob []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			o.log.Warn().Err(err).Str("kind", kind).Msg("failed to marshal event payload")
		} else {
			blob = b
		}
	}
	ev := types.OperationEvent{
		ID:        uuid.New(),
		Block:     block,
		Kind:      kind,
		User:      user,
		PairID:    pairID,
		Payload:   blob,
		Timestamp: time.Now(),
	}
	if err := state.SaveEvent(ev); err != nil {
		o.log.Warn().Err(err).Str("kind", kind).Msg("failed to persist operation event")
	}
}

// Associate binds the caller's address to a subnet hotkey for fee-tier
// lookups. A zero hotkey is rejected.
func (o *Orchestrator) Associate(ctx context.Context, user common.Address, hotkey types.Hotkey) error {
	if hotkey.IsZero() {
		return protocol.ErrNoAssociation
	}
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	end, err := o.begin(user, block, false)
	if err != nil {
		return err
	}
	defer end()

	o.st.Associations[user] = hotkey
	o.touch(user, block)
	o.emit(block, types.EventAssociate, user.Hex(), nil, map[string]string{
		"hotkey": hotkey.String(),
	})
	return nil
}

// OpenPosition opens a leveraged position for user on pairID.
func (o *Orchestrator) OpenPosition(ctx context.Context, user common.Address, pairID types.PairID, collateral, leverage, maxSlippage sdkmath.Int) (*types.Position, error) {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return nil, err
	}
	end, err := o.begin(user, block, true)
	if err != nil {
		return nil, err
	}
	defer end()

	pos, err := o.engine.Open(ctx, user, pairID, collateral, leverage, maxSlippage, block)
	if err != nil {
		return nil, err
	}
	o.touch(user, block)
	o.afterMutation(block)
	o.emit(block, types.EventOpenPosition, user.Hex(), &pairID, pos)
	return pos, nil
}

// ClosePosition closes amountRao of user's position on pairID; zero closes
// it entirely.
func (o *Orchestrator) ClosePosition(ctx context.Context, user common.Address, pairID types.PairID, amountRao, maxSlippage sdkmath.Int) (*types.CloseResult, error) {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return nil, err
	}
	end, err := o.begin(user, block, false)
	if err != nil {
		return nil, err
	}
	defer end()

	res, err := o.engine.Close(ctx, user, pairID, amountRao, maxSlippage, block)
	if err != nil {
		return nil, err
	}
	o.touch(user, block)
	o.afterMutation(block)
	o.emit(block, types.EventClosePosition, user.Hex(), &pairID, res)
	return res, nil
}

// AddCollateral tops up user's position on pairID.
func (o *Orchestrator) AddCollateral(ctx context.Context, user common.Address, pairID types.PairID, amount sdkmath.Int) error {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	end, err := o.begin(user, block, false)
	if err != nil {
		return err
	}
	defer end()

	if err := o.engine.AddCollateral(user, pairID, amount, block); err != nil {
		return err
	}
	o.touch(user, block)
	o.afterMutation(block)
	o.emit(block, types.EventAddCollateral, user.Hex(), &pairID, map[string]string{
		"amount_wei": amount.String(),
	})
	return nil
}

// LiquidatePosition liquidates user's position on pairID on behalf of
// liquidator. Liquidations stay open under the circuit breaker because
// they reduce pool risk.
func (o *Orchestrator) LiquidatePosition(ctx context.Context, liquidator, user common.Address, pairID types.PairID, justification string, contentHash types.ContentHash) (*types.LiquidationResult, error) {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return nil, err
	}
	end, err := o.begin(liquidator, block, false)
	if err != nil {
		return nil, err
	}
	defer end()

	res, err := o.engine.Liquidate(ctx, liquidator, user, pairID, justification, contentHash, block)
	if err != nil {
		return nil, err
	}
	o.touch(liquidator, block)
	o.afterMutation(block)
	o.emit(block, types.EventLiquidation, user.Hex(), &pairID, res)
	return res, nil
}

// AddLiquidity deposits amountWei into the shared pool for provider.
func (o *Orchestrator) AddLiquidity(ctx context.Context, provider common.Address, amountWei sdkmath.Int) error {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	end, err := o.begin(provider, block, false)
	if err != nil {
		return err
	}
	defer end()

	if err := o.pool.Deposit(provider, amountWei, block); err != nil {
		return err
	}
	o.touch(provider, block)
	o.afterMutation(block)
	o.emit(block, types.EventAddLiquidity, provider.Hex(), nil, map[string]string{
		"amount_wei": amountWei.String(),
	})
	return nil
}

// RemoveLiquidity withdraws amountWei of provider's stake.
func (o *Orchestrator) RemoveLiquidity(ctx context.Context, provider common.Address, amountWei sdkmath.Int) error {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	end, err := o.begin(provider, block, true)
	if err != nil {
		return err
	}
	defer end()

	if err := o.pool.Withdraw(provider, amountWei, block); err != nil {
		return err
	}
	o.touch(provider, block)
	o.afterMutation(block)
	o.emit(block, types.EventRemoveLiquidity, provider.Hex(), nil, map[string]string{
		"amount_wei": amountWei.String(),
	})
	return nil
}

// ClaimLpRewards pays out provider's settled and pending LP fees.
func (o *Orchestrator) ClaimLpRewards(ctx context.Context, provider common.Address) (sdkmath.Int, error) {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	end, err := o.begin(provider, block, false)
	if err != nil {
		return sdkmath.Int{}, err
	}
	defer end()

	claimed, err := o.acct.ClaimLpFees(provider)
	if err != nil {
		return sdkmath.Int{}, err
	}
	o.touch(provider, block)
	o.emit(block, types.EventClaimLpFees, provider.Hex(), nil, map[string]string{
		"claimed_wei": claimed.String(),
	})
	return claimed, nil
}

// ClaimLiquidatorRewards pays out liquidator's settled and pending share of
// the liquidator fee pool.
func (o *Orchestrator) ClaimLiquidatorRewards(ctx context.Context, liquidator common.Address) (sdkmath.Int, error) {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	end, err := o.begin(liquidator, block, false)
	if err != nil {
		return sdkmath.Int{}, err
	}
	defer end()

	claimed, err := o.acct.ClaimLiquidatorFees(liquidator)
	if err != nil {
		return sdkmath.Int{}, err
	}
	o.touch(liquidator, block)
	o.emit(block, types.EventClaimLiqFees, liquidator.Hex(), nil, map[string]string{
		"claimed_wei": claimed.String(),
	})
	return claimed, nil
}

// ExecuteBuyback runs one buyback window if due. Driven by RunBuybackLoop
// but also callable directly.
func (o *Orchestrator) ExecuteBuyback(ctx context.Context) (*types.BuybackResult, error) {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return nil, err
	}
	end, err := o.beginSystem()
	if err != nil {
		return nil, err
	}
	defer end()

	res, err := o.buyback.Execute(ctx, o.beneficiary, block)
	if err != nil {
		return nil, err
	}
	if state.DB != nil {
		if err := state.SaveBuyback(*res); err != nil {
			o.log.Warn().Err(err).Msg("failed to persist buyback execution")
		}
		if err := state.SaveSnapshot(block, o.st.Stats()); err != nil {
			o.log.Warn().Err(err).Msg("failed to persist protocol snapshot")
		}
	}
	o.emit(block, types.EventBuyback, "", nil, res)
	return res, nil
}

// ClaimVested pays out the vested portion of the beneficiary's schedules.
func (o *Orchestrator) ClaimVested(ctx context.Context, beneficiary common.Address) (sdkmath.Int, error) {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	end, err := o.begin(beneficiary, block, false)
	if err != nil {
		return sdkmath.Int{}, err
	}
	defer end()

	claimed, err := o.buyback.ClaimVested(beneficiary, block)
	if err != nil {
		return sdkmath.Int{}, err
	}
	o.touch(beneficiary, block)
	o.emit(block, types.EventClaimVested, beneficiary.Hex(), nil, map[string]string{
		"claimed_rao": claimed.String(),
	})
	return claimed, nil
}

// RunBuybackLoop polls for due buyback windows until ctx is cancelled.
func (o *Orchestrator) RunBuybackLoop(ctx context.Context, pollInterval time.Duration) {
	o.log.Info().
		Dur("poll_interval", pollInterval).
		Msg("Starting buyback loop")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info().Msg("Buyback loop stopped due to context cancellation")
			return
		case <-ticker.C:
			res, err := o.ExecuteBuyback(ctx)
			switch {
			case err == nil:
				o.log.Info().
					Uint64("block", res.Block).
					Str("spend_wei", res.SpendWei.String()).
					Str("tokens_rao", res.ActualTokens.String()).
					Msg("Buyback executed")
			case err == protocol.ErrBuybackNotDue || err == protocol.ErrBuybackEmpty || err == protocol.ErrPaused:
				// quiet until the next window
			default:
				o.log.Warn().Err(err).Msg("Buyback attempt failed")
			}
		}
	}
}

// ProtocolStats returns the protocol-wide snapshot.
func (o *Orchestrator) ProtocolStats() types.ProtocolStats {
	o.st.Lock()
	defer o.st.Unlock()
	return o.st.Stats()
}

// LpInfo returns provider's stake, shares and claimable rewards.
func (o *Orchestrator) LpInfo(provider common.Address) (types.LpInfo, error) {
	o.st.Lock()
	defer o.st.Unlock()
	return o.pool.LpInfo(provider)
}

// LiquidatorScore returns liquidator's score and claimable rewards.
func (o *Orchestrator) LiquidatorScore(liquidator common.Address) (score, claimable sdkmath.Int, err error) {
	o.st.Lock()
	defer o.st.Unlock()

	score = sdkmath.ZeroInt()
	if s, ok := o.st.LiquidatorScores[liquidator]; ok {
		score = s
	}
	pending, err := o.acct.PendingLiquidator(liquidator)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	claimable = pending
	if bal, ok := o.st.LiquidatorBalances[liquidator]; ok {
		claimable = claimable.Add(bal)
	}
	return score, claimable, nil
}

// Position returns user's active position on pairID.
func (o *Orchestrator) Position(user common.Address, pairID types.PairID) (types.Position, error) {
	o.st.Lock()
	defer o.st.Unlock()
	pos, err := o.st.Position(user, pairID)
	if err != nil {
		return types.Position{}, err
	}
	return *pos, nil
}

// Positions returns all of user's active positions.
func (o *Orchestrator) Positions(user common.Address) []types.Position {
	o.st.Lock()
	defer o.st.Unlock()

	var out []types.Position
	for _, pos := range o.st.Positions[user] {
		if pos.IsActive {
			out = append(out, *pos)
		}
	}
	return out
}

// Params returns the active parameter set.
func (o *Orchestrator) Params() config.ProtocolParams {
	o.st.Lock()
	defer o.st.Unlock()
	return o.st.Params
}

// VestingSchedules returns the beneficiary's schedules with the vested
// amount evaluated at the current block.
func (o *Orchestrator) VestingSchedules(ctx context.Context, beneficiary common.Address) ([]types.VestingSchedule, sdkmath.Int, error) {
	block, err := o.gw.CurrentBlock(ctx)
	if err != nil {
		return nil, sdkmath.Int{}, err
	}
	o.st.Lock()
	defer o.st.Unlock()

	vested := sdkmath.ZeroInt()
	var out []types.VestingSchedule
	for _, s := range o.st.Vesting[beneficiary] {
		out = append(out, *s)
		vested = vested.Add(buyback.Vested(s, block))
	}
	return out, vested, nil
}
