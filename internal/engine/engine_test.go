package engine

import (
	"context"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tenexium/tenex-core/internal/config"
	"github.com/tenexium/tenex-core/internal/fees"
	"github.com/tenexium/tenex-core/internal/gateway"
	"github.com/tenexium/tenex-core/internal/pool"
	"github.com/tenexium/tenex-core/internal/protocol"
	"github.com/tenexium/tenex-core/internal/types"
)

var (
	trader     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	provider   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	liquidator = common.HexToAddress("0x00000000000000000000000000000000000000c3")

	validatorKey = types.Hotkey{0x01}
	traderKey    = types.Hotkey{0x02}

	pairID = types.PairID(7)
)

func tao(n int64) sdkmath.Int { return sdkmath.NewIntWithDecimal(n, 18) }

// parity is the 1:1 price: one token per TAO.
var parity = sdkmath.NewInt(1_000_000_000)

type testEnv struct {
	st   *protocol.State
	acct *fees.Accountant
	pool *pool.Pool
	sim  *gateway.Simulator
	eng  *Engine
}

func newTestEnv(t *testing.T, seedLiquidity sdkmath.Int) *testEnv {
	t.Helper()
	st := protocol.NewState(config.DefaultProtocolParams())
	st.Pairs[pairID] = &types.Pair{
		ID:              pairID,
		TotalCollateral: sdkmath.ZeroInt(),
		TotalBorrowed:   sdkmath.ZeroInt(),
		UtilizationRate: sdkmath.ZeroInt(),
		BorrowingRate:   sdkmath.ZeroInt(),
		MaxLeverage:     sdkmath.NewInt(10_000_000_000),
		IsActive:        true,
	}

	acct := fees.NewAccountant(st)
	p := pool.New(st, acct)
	sim := gateway.NewSimulator(parity)
	eng := New(st, acct, sim, validatorKey)

	// Opening requires an association; with no stake seeded the trader sits
	// in the zero-stake tier.
	st.Associations[trader] = traderKey

	if seedLiquidity.IsPositive() {
		if err := p.Deposit(provider, seedLiquidity, 1); err != nil {
			t.Fatalf("seed liquidity: %v", err)
		}
	}
	return &testEnv{st: st, acct: acct, pool: p, sim: sim, eng: eng}
}

func mustOpen(t *testing.T, env *testEnv, collateral, leverage sdkmath.Int, block uint64) *types.Position {
	t.Helper()
	pos, err := env.eng.Open(context.Background(), trader, pairID, collateral, leverage, sdkmath.ZeroInt(), block)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return pos
}

func TestOpenCloseRoundTrip(t *testing.T) {
	env := newTestEnv(t, tao(500))

	pos := mustOpen(t, env, tao(10), sdkmath.NewInt(2_000_000_000), 10)
	if !pos.Borrowed.Equal(tao(10)) {
		t.Fatalf("borrowed: got %s, want 10 TAO", pos.Borrowed)
	}
	// 0.3% fee on the 20 TAO gross notional leaves 19.94 staked at parity.
	wantTokens := sdkmath.NewInt(19_940_000_000)
	if !pos.TokenAmount.Equal(wantTokens) {
		t.Fatalf("token amount: got %s, want %s", pos.TokenAmount, wantTokens)
	}
	if !env.st.Globals.TotalBorrowed.Equal(tao(10)) {
		t.Fatalf("total borrowed: got %s", env.st.Globals.TotalBorrowed)
	}
	if !env.st.Globals.TotalCollateral.Equal(tao(10)) {
		t.Fatalf("total collateral: got %s", env.st.Globals.TotalCollateral)
	}

	// Same block, so no interest accrues; the user gets collateral back
	// minus the two trading fees.
	res, err := env.eng.Close(context.Background(), trader, pairID, sdkmath.ZeroInt(), sdkmath.ZeroInt(), 10)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !res.FullyClosed {
		t.Fatal("close of the full amount must report fully closed")
	}
	if !res.ProceedsWei.Equal(sdkmath.NewIntWithDecimal(1994, 16)) {
		t.Fatalf("proceeds: got %s", res.ProceedsWei)
	}
	wantNet, _ := sdkmath.NewIntFromString("9880180000000000000") // 10 - 0.06 - 0.05982
	if !res.NetReturn.Equal(wantNet) {
		t.Fatalf("net return: got %s, want %s", res.NetReturn, wantNet)
	}
	if !res.BorrowingFees.IsZero() {
		t.Fatalf("borrowing fees in the same block: got %s", res.BorrowingFees)
	}

	if _, err := env.st.Position(trader, pairID); !errors.Is(err, protocol.ErrPositionNotFound) {
		t.Fatalf("position after close: got %v, want ErrPositionNotFound", err)
	}
	if !env.st.Globals.TotalBorrowed.IsZero() || !env.st.Globals.TotalCollateral.IsZero() {
		t.Fatalf("residual totals: borrowed %s, collateral %s",
			env.st.Globals.TotalBorrowed, env.st.Globals.TotalCollateral)
	}
	pair := env.st.Pairs[pairID]
	if !pair.TotalBorrowed.IsZero() || !pair.TotalCollateral.IsZero() {
		t.Fatalf("residual pair totals: borrowed %s, collateral %s", pair.TotalBorrowed, pair.TotalCollateral)
	}
}

func TestOpenRejectsUtilizationExhaustion(t *testing.T) {
	env := newTestEnv(t, tao(100))

	// borrowed=95 needs 114 available with the 20% buffer; only 100 exists.
	_, err := env.eng.Open(context.Background(), trader, pairID, tao(95), sdkmath.NewInt(2_000_000_000), sdkmath.ZeroInt(), 5)
	if !errors.Is(err, protocol.ErrInsufficientLiquidity) {
		t.Fatalf("open: got %v, want ErrInsufficientLiquidity", err)
	}
	if !env.st.Globals.TotalBorrowed.IsZero() {
		t.Fatal("failed open must not move totals")
	}
}

func TestLeverageBoundEnforcement(t *testing.T) {
	env := newTestEnv(t, tao(500))

	// No stake on the associated hotkey: base tier caps leverage at 2x.
	_, err := env.eng.Open(context.Background(), trader, pairID, tao(10), sdkmath.NewInt(3_000_000_000), sdkmath.ZeroInt(), 5)
	if !errors.Is(err, protocol.ErrLeverageTooHigh) {
		t.Fatalf("open above base tier: got %v, want ErrLeverageTooHigh", err)
	}

	// With 1k tokens staked on the hotkey the 5x tier applies.
	env.sim.SeedStake(traderKey, sdkmath.NewInt(1_000_000_000_000))
	if _, err := env.eng.Open(context.Background(), trader, pairID, tao(10), sdkmath.NewInt(3_000_000_000), sdkmath.ZeroInt(), 5); err != nil {
		t.Fatalf("open within tier: %v", err)
	}
}

func TestOpenRequiresAssociation(t *testing.T) {
	env := newTestEnv(t, tao(500))
	delete(env.st.Associations, trader)

	_, err := env.eng.Open(context.Background(), trader, pairID, tao(10), sdkmath.NewInt(2_000_000_000), sdkmath.ZeroInt(), 5)
	if !errors.Is(err, protocol.ErrNoAssociation) {
		t.Fatalf("unassociated open: got %v, want ErrNoAssociation", err)
	}
}

func TestOpenRejectsDustCollateral(t *testing.T) {
	env := newTestEnv(t, tao(500))

	// Default floor is 0.01 TAO.
	_, err := env.eng.Open(context.Background(), trader, pairID, sdkmath.NewInt(1_000), sdkmath.NewInt(2_000_000_000), sdkmath.ZeroInt(), 5)
	if !errors.Is(err, protocol.ErrBelowMinimum) {
		t.Fatalf("dust open: got %v, want ErrBelowMinimum", err)
	}
}

func TestOpenRejectsDuplicatePosition(t *testing.T) {
	env := newTestEnv(t, tao(500))

	mustOpen(t, env, tao(10), sdkmath.NewInt(2_000_000_000), 5)
	_, err := env.eng.Open(context.Background(), trader, pairID, tao(10), sdkmath.NewInt(2_000_000_000), sdkmath.ZeroInt(), 6)
	if !errors.Is(err, protocol.ErrPositionExists) {
		t.Fatalf("duplicate open: got %v, want ErrPositionExists", err)
	}
}

func TestOpenSlippageReversed(t *testing.T) {
	env := newTestEnv(t, tao(500))
	env.sim.SetExecutionSkew(sdkmath.NewInt(20_000_000)) // 2% vs the 1% cap

	_, err := env.eng.Open(context.Background(), trader, pairID, tao(10), sdkmath.NewInt(2_000_000_000), sdkmath.ZeroInt(), 5)
	if !errors.Is(err, protocol.ErrSlippageExceeded) {
		t.Fatalf("open: got %v, want ErrSlippageExceeded", err)
	}
	if _, err := env.st.Position(trader, pairID); !errors.Is(err, protocol.ErrPositionNotFound) {
		t.Fatal("aborted open must not leave a position")
	}
	if !env.st.Globals.TotalBorrowed.IsZero() || !env.st.Globals.TotalVolume.IsZero() {
		t.Fatal("aborted open must not move totals")
	}
	// The compensating unstake returned the staked tokens.
	bal, err := env.sim.StakeBalance(context.Background(), validatorKey)
	if err != nil {
		t.Fatalf("stake balance: %v", err)
	}
	if !bal.IsZero() {
		t.Fatalf("stake left behind after reversal: %s", bal)
	}
}

func TestOpenZeroTokenReceiptAborted(t *testing.T) {
	env := newTestEnv(t, tao(500))

	// Price so high the staked wei quote to zero tokens; the open must
	// abort rather than record an unbacked position.
	env.sim.SetPrice(sdkmath.NewIntWithDecimal(1, 18))

	_, err := env.eng.Open(context.Background(), trader, pairID, sdkmath.NewIntWithDecimal(1, 16), sdkmath.NewInt(2_000_000_000), sdkmath.ZeroInt(), 5)
	if !errors.Is(err, protocol.ErrSlippageExceeded) {
		t.Fatalf("zero-token open: got %v, want ErrSlippageExceeded", err)
	}
	if _, err := env.st.Position(trader, pairID); !errors.Is(err, protocol.ErrPositionNotFound) {
		t.Fatal("aborted open must not leave a position")
	}
	if !env.st.Globals.TotalBorrowed.IsZero() || !env.st.Globals.TotalCollateral.IsZero() {
		t.Fatal("aborted open must not move totals")
	}
}

func TestCloseInsufficientProceedsReverts(t *testing.T) {
	env := newTestEnv(t, tao(500))

	pos := mustOpen(t, env, tao(10), sdkmath.NewInt(2_000_000_000), 5)
	tokensBefore := pos.TokenAmount

	// Price halves: unwinding yields ~9.97, below the 10 borrowed.
	env.sim.SetPrice(sdkmath.NewInt(500_000_000))

	_, err := env.eng.Close(context.Background(), trader, pairID, sdkmath.ZeroInt(), sdkmath.ZeroInt(), 5)
	if !errors.Is(err, protocol.ErrInsufficientProceeds) {
		t.Fatalf("close: got %v, want ErrInsufficientProceeds", err)
	}

	// Position and totals are untouched; the unstake was restaked.
	after, err := env.st.Position(trader, pairID)
	if err != nil {
		t.Fatalf("position must survive the aborted close: %v", err)
	}
	if !after.Borrowed.Equal(tao(10)) {
		t.Fatalf("borrowed after abort: got %s", after.Borrowed)
	}
	if !env.st.Globals.TotalBorrowed.Equal(tao(10)) {
		t.Fatalf("total borrowed after abort: got %s", env.st.Globals.TotalBorrowed)
	}
	bal, _ := env.sim.StakeBalance(context.Background(), validatorKey)
	if !bal.Equal(tokensBefore) {
		t.Fatalf("stake after reversal: got %s, want %s", bal, tokensBefore)
	}
}

func TestPartialCloseShrinksProportionally(t *testing.T) {
	env := newTestEnv(t, tao(500))

	pos := mustOpen(t, env, tao(10), sdkmath.NewInt(2_000_000_000), 5)
	half := pos.TokenAmount.QuoRaw(2)

	res, err := env.eng.Close(context.Background(), trader, pairID, half, sdkmath.ZeroInt(), 5)
	if err != nil {
		t.Fatalf("partial close: %v", err)
	}
	if res.FullyClosed {
		t.Fatal("half close must not report fully closed")
	}
	if !res.BorrowedRepaid.Equal(tao(5)) {
		t.Fatalf("borrowed repaid: got %s, want 5 TAO", res.BorrowedRepaid)
	}

	after, err := env.st.Position(trader, pairID)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if !after.Borrowed.Equal(tao(5)) {
		t.Fatalf("remaining borrowed: got %s", after.Borrowed)
	}
	if !after.Collateral.Equal(tao(5)) {
		t.Fatalf("remaining collateral: got %s", after.Collateral)
	}
	if !after.TokenAmount.Equal(half) {
		t.Fatalf("remaining tokens: got %s", after.TokenAmount)
	}
}

func TestCloseRejectsOversizedAmount(t *testing.T) {
	env := newTestEnv(t, tao(500))

	pos := mustOpen(t, env, tao(10), sdkmath.NewInt(2_000_000_000), 5)
	_, err := env.eng.Close(context.Background(), trader, pairID, pos.TokenAmount.AddRaw(1), sdkmath.ZeroInt(), 5)
	if !errors.Is(err, protocol.ErrAmountTooLarge) {
		t.Fatalf("oversized close: got %v, want ErrAmountTooLarge", err)
	}
}

func TestAddCollateralAccruesInterestFirst(t *testing.T) {
	env := newTestEnv(t, tao(500))

	mustOpen(t, env, tao(10), sdkmath.NewInt(2_000_000_000), 100)

	// 360 blocks later the pending interest must survive the block bump.
	if err := env.eng.AddCollateral(trader, pairID, tao(5), 460); err != nil {
		t.Fatalf("add collateral: %v", err)
	}
	pos, err := env.st.Position(trader, pairID)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if !pos.AccruedFees.IsPositive() {
		t.Fatal("interest for the elapsed window was forgiven")
	}
	if pos.LastUpdateBlock != 460 {
		t.Fatalf("last update block: got %d", pos.LastUpdateBlock)
	}
	if !pos.Collateral.Equal(tao(15)) {
		t.Fatalf("collateral: got %s, want 15 TAO", pos.Collateral)
	}
	if !env.st.Globals.TotalCollateral.Equal(tao(15)) {
		t.Fatalf("total collateral: got %s", env.st.Globals.TotalCollateral)
	}
}

// seedPosition writes a position and its aggregates directly, bypassing the
// open path, to pin exact debt numbers for liquidation scenarios.
func seedPosition(env *testEnv, borrowed, tokenAmount sdkmath.Int) {
	pos := &types.Position{
		User:            trader,
		PairID:          pairID,
		Collateral:      borrowed, // 2x shape; exact value is irrelevant here
		Borrowed:        borrowed,
		TokenAmount:     tokenAmount,
		Leverage:        sdkmath.NewInt(2_000_000_000),
		EntryPrice:      parity,
		LastUpdateBlock: 5,
		AccruedFees:     sdkmath.ZeroInt(),
		IsActive:        true,
		ValidatorHotkey: validatorKey,
	}
	env.st.PutPosition(pos)
	env.st.Pairs[pairID].TotalBorrowed = env.st.Pairs[pairID].TotalBorrowed.Add(borrowed)
	env.st.Pairs[pairID].TotalCollateral = env.st.Pairs[pairID].TotalCollateral.Add(pos.Collateral)
	env.st.Globals.TotalBorrowed = env.st.Globals.TotalBorrowed.Add(borrowed)
	env.st.Globals.TotalCollateral = env.st.Globals.TotalCollateral.Add(pos.Collateral)
	env.sim.SeedStake(validatorKey, tokenAmount)
}

func TestLiquidationWaterfall(t *testing.T) {
	env := newTestEnv(t, tao(500))
	// Raise the threshold so a 20/15 health ratio (1.33x) is liquidatable.
	env.st.Params.LiquidationThreshold = sdkmath.NewInt(1_400_000_000)

	// Debt 15 TAO, unwind proceeds 20 TAO at parity.
	seedPosition(env, tao(15), sdkmath.NewInt(20_000_000_000))

	res, err := env.eng.Liquidate(context.Background(), liquidator, trader, pairID, "health below threshold", types.ContentHash{0x01}, 5)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	if !res.DebtRepaid.Equal(tao(15)) {
		t.Fatalf("debt repaid: got %s, want 15 TAO", res.DebtRepaid)
	}
	if !res.LiquidationFee.Equal(sdkmath.NewIntWithDecimal(1, 17)) { // 2% of 5
		t.Fatalf("liquidation fee: got %s, want 0.1 TAO", res.LiquidationFee)
	}
	if !res.LiquidatorPayout.Equal(sdkmath.NewIntWithDecimal(4, 16)) { // 40% of fee
		t.Fatalf("liquidator payout: got %s, want 0.04 TAO", res.LiquidatorPayout)
	}
	if !res.ProtocolShare.Equal(sdkmath.NewIntWithDecimal(6, 16)) {
		t.Fatalf("protocol share: got %s, want 0.06 TAO", res.ProtocolShare)
	}
	wantOwner, _ := sdkmath.NewIntFromString("4900000000000000000")
	if !res.OwnerReturn.Equal(wantOwner) {
		t.Fatalf("owner return: got %s, want 4.9 TAO", res.OwnerReturn)
	}

	if !env.st.LiquidatorBalances[liquidator].Equal(res.LiquidatorPayout) {
		t.Fatalf("liquidator balance: got %s", env.st.LiquidatorBalances[liquidator])
	}
	if !env.st.Globals.BuybackPool.Equal(res.ProtocolShare) {
		t.Fatalf("buyback pool: got %s", env.st.Globals.BuybackPool)
	}
	if !env.st.LiquidatorScores[liquidator].Equal(tao(20)) {
		t.Fatalf("liquidator score: got %s, want position value", env.st.LiquidatorScores[liquidator])
	}
	if _, err := env.st.Position(trader, pairID); !errors.Is(err, protocol.ErrPositionNotFound) {
		t.Fatal("liquidated position must be gone")
	}
	if !env.st.Globals.TotalBorrowed.IsZero() {
		t.Fatalf("total borrowed after liquidation: got %s", env.st.Globals.TotalBorrowed)
	}
}

func TestLiquidationThresholdBoundary(t *testing.T) {
	env := newTestEnv(t, tao(500))

	// Debt 10 TAO against 10 tokens: at price 1.1 the health ratio is
	// exactly the 1.1x threshold.
	seedPosition(env, tao(10), sdkmath.NewInt(10_000_000_000))
	env.sim.SetPrice(sdkmath.NewInt(1_100_000_000))

	_, err := env.eng.Liquidate(context.Background(), liquidator, trader, pairID, "at threshold", types.ContentHash{0x01}, 5)
	if !errors.Is(err, protocol.ErrNotLiquidatable) {
		t.Fatalf("at threshold: got %v, want ErrNotLiquidatable", err)
	}

	// One price tick below, the position is liquidatable.
	env.sim.SetPrice(sdkmath.NewInt(1_099_999_999))
	if _, err := env.eng.Liquidate(context.Background(), liquidator, trader, pairID, "below threshold", types.ContentHash{0x01}, 5); err != nil {
		t.Fatalf("below threshold: %v", err)
	}
}

func TestLiquidationValidation(t *testing.T) {
	env := newTestEnv(t, tao(500))
	seedPosition(env, tao(10), sdkmath.NewInt(10_000_000_000))

	if _, err := env.eng.Liquidate(context.Background(), liquidator, trader, pairID, "", types.ContentHash{0x01}, 5); !errors.Is(err, protocol.ErrInvalidJustification) {
		t.Fatalf("empty justification: got %v", err)
	}
	if _, err := env.eng.Liquidate(context.Background(), liquidator, trader, pairID, "reason", types.ContentHash{}, 5); !errors.Is(err, protocol.ErrInvalidJustification) {
		t.Fatalf("zero content hash: got %v", err)
	}
	if _, err := env.eng.Liquidate(context.Background(), trader, trader, pairID, "reason", types.ContentHash{0x01}, 5); !errors.Is(err, protocol.ErrSelfLiquidation) {
		t.Fatalf("self liquidation: got %v", err)
	}
}

func TestOpenOnInactivePair(t *testing.T) {
	env := newTestEnv(t, tao(500))
	env.st.Pairs[pairID].IsActive = false

	_, err := env.eng.Open(context.Background(), trader, pairID, tao(10), sdkmath.NewInt(2_000_000_000), sdkmath.ZeroInt(), 5)
	if !errors.Is(err, protocol.ErrPairInactive) {
		t.Fatalf("inactive pair: got %v, want ErrPairInactive", err)
	}
	_, err = env.eng.Open(context.Background(), trader, types.PairID(99), tao(10), sdkmath.NewInt(2_000_000_000), sdkmath.ZeroInt(), 5)
	if !errors.Is(err, protocol.ErrPairNotFound) {
		t.Fatalf("unknown pair: got %v, want ErrPairNotFound", err)
	}
}
