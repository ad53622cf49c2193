package fees

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tenexium/tenex-core/internal/config"
	"github.com/tenexium/tenex-core/internal/protocol"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func newTestState(t *testing.T) *protocol.State {
	t.Helper()
	params := config.DefaultProtocolParams()
	if err := params.Validate(); err != nil {
		t.Fatalf("params: %v", err)
	}
	return protocol.NewState(params)
}

func grantShares(st *protocol.State, addr common.Address, shares sdkmath.Int) {
	lp := st.Lp(addr)
	lp.Shares = lp.Shares.Add(shares)
	lp.Stake = lp.Stake.Add(shares)
	lp.IsActive = true
	st.Globals.TotalShares = st.Globals.TotalShares.Add(shares)
	st.Globals.TotalLpStakes = st.Globals.TotalLpStakes.Add(shares)
}

func TestDistributeProportionalToShares(t *testing.T) {
	st := newTestState(t)
	acct := NewAccountant(st)

	grantShares(st, alice, sdkmath.NewIntWithDecimal(30, 18))
	grantShares(st, bob, sdkmath.NewIntWithDecimal(10, 18))

	fee := sdkmath.NewIntWithDecimal(4, 18)
	if err := acct.Distribute(fee); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	// 60% of the fee goes to LPs, split 3:1.
	lpCut := sdkmath.NewIntWithDecimal(24, 17)
	alicePending, err := acct.PendingLp(alice)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if !alicePending.Equal(lpCut.MulRaw(3).QuoRaw(4)) {
		t.Fatalf("alice pending: got %s, want %s", alicePending, lpCut.MulRaw(3).QuoRaw(4))
	}
	bobPending, err := acct.PendingLp(bob)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if !bobPending.Equal(lpCut.QuoRaw(4)) {
		t.Fatalf("bob pending: got %s, want %s", bobPending, lpCut.QuoRaw(4))
	}

	// 30% lands in the protocol treasury and funds the buyback pool.
	protoCut := sdkmath.NewIntWithDecimal(12, 17)
	if !st.Globals.ProtocolFees.Equal(protoCut) {
		t.Fatalf("protocol fees: got %s, want %s", st.Globals.ProtocolFees, protoCut)
	}
	if !st.Globals.BuybackPool.Equal(protoCut) {
		t.Fatalf("buyback pool: got %s, want %s", st.Globals.BuybackPool, protoCut)
	}
}

func TestDistributionNotRetroactive(t *testing.T) {
	st := newTestState(t)
	acct := NewAccountant(st)

	grantShares(st, alice, sdkmath.NewIntWithDecimal(10, 18))
	if err := acct.Distribute(sdkmath.NewIntWithDecimal(1, 18)); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	// Bob joins after the first distribution; settling pins his debt to the
	// current accumulator so he earns nothing from it.
	grantShares(st, bob, sdkmath.NewIntWithDecimal(10, 18))
	if err := acct.SettleLp(bob); err != nil {
		t.Fatalf("settle: %v", err)
	}
	bobPending, err := acct.PendingLp(bob)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if !bobPending.IsZero() {
		t.Fatalf("late joiner earned %s from an earlier distribution", bobPending)
	}

	// The next distribution splits evenly.
	if err := acct.Distribute(sdkmath.NewIntWithDecimal(1, 18)); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	alicePending, err := acct.PendingLp(alice)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	bobPending, err = acct.PendingLp(bob)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	lpCutHalf := sdkmath.NewIntWithDecimal(3, 17) // half of 60% of 1 TAO
	if !bobPending.Equal(lpCutHalf) {
		t.Fatalf("bob pending: got %s, want %s", bobPending, lpCutHalf)
	}
	if !alicePending.Equal(lpCutHalf.MulRaw(3)) { // first round + half of second
		t.Fatalf("alice pending: got %s, want %s", alicePending, lpCutHalf.MulRaw(3))
	}
}

func TestDistributeWithNoRecipients(t *testing.T) {
	st := newTestState(t)
	acct := NewAccountant(st)

	if err := acct.Distribute(sdkmath.NewIntWithDecimal(1, 18)); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if !st.Globals.AccLpFeesPerShare.IsZero() {
		t.Fatal("LP accumulator moved with zero shares outstanding")
	}
	if !st.Globals.AccLiquidatorFeesPerScore.IsZero() {
		t.Fatal("liquidator accumulator moved with zero score outstanding")
	}
	// The protocol cut is still credited.
	if !st.Globals.ProtocolFees.Equal(sdkmath.NewIntWithDecimal(3, 17)) {
		t.Fatalf("protocol fees: got %s", st.Globals.ProtocolFees)
	}
}

func TestClaimLpFees(t *testing.T) {
	st := newTestState(t)
	acct := NewAccountant(st)

	grantShares(st, alice, sdkmath.NewIntWithDecimal(10, 18))
	if err := acct.Distribute(sdkmath.NewIntWithDecimal(1, 18)); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	got, err := acct.ClaimLpFees(alice)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !got.Equal(sdkmath.NewIntWithDecimal(6, 17)) {
		t.Fatalf("claim: got %s, want 0.6 TAO", got)
	}

	if _, err := acct.ClaimLpFees(alice); !errors.Is(err, protocol.ErrNothingToClaim) {
		t.Fatalf("second claim: got %v, want ErrNothingToClaim", err)
	}
}

func TestLiquidatorScoreRewards(t *testing.T) {
	st := newTestState(t)
	acct := NewAccountant(st)

	if err := acct.AddLiquidatorScore(carol, sdkmath.NewIntWithDecimal(5, 18)); err != nil {
		t.Fatalf("add score: %v", err)
	}
	if err := acct.Distribute(sdkmath.NewIntWithDecimal(1, 18)); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	// Carol holds the entire score, so the full 10% liquidator cut is hers.
	pending, err := acct.PendingLiquidator(carol)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if !pending.Equal(sdkmath.NewIntWithDecimal(1, 17)) {
		t.Fatalf("pending: got %s, want 0.1 TAO", pending)
	}

	got, err := acct.ClaimLiquidatorFees(carol)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !got.Equal(sdkmath.NewIntWithDecimal(1, 17)) {
		t.Fatalf("claim: got %s", got)
	}
	if _, err := acct.ClaimLiquidatorFees(carol); !errors.Is(err, protocol.ErrNothingToClaim) {
		t.Fatalf("second claim: got %v, want ErrNothingToClaim", err)
	}
}

func TestScoreGrowthNotRetroactive(t *testing.T) {
	st := newTestState(t)
	acct := NewAccountant(st)

	if err := acct.AddLiquidatorScore(carol, sdkmath.NewIntWithDecimal(5, 18)); err != nil {
		t.Fatalf("add score: %v", err)
	}
	if err := acct.Distribute(sdkmath.NewIntWithDecimal(1, 18)); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	// Growing the score settles first; the earlier reward must not be rescaled.
	if err := acct.AddLiquidatorScore(carol, sdkmath.NewIntWithDecimal(5, 18)); err != nil {
		t.Fatalf("add score: %v", err)
	}
	pending, err := acct.PendingLiquidator(carol)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if !pending.IsZero() {
		t.Fatalf("pending after settle: got %s, want 0", pending)
	}
	if !st.LiquidatorBalances[carol].Equal(sdkmath.NewIntWithDecimal(1, 17)) {
		t.Fatalf("settled balance: got %s, want 0.1 TAO", st.LiquidatorBalances[carol])
	}
}

func TestTierLookupAndDiscount(t *testing.T) {
	st := newTestState(t)
	acct := NewAccountant(st)

	base := acct.TierFor(sdkmath.ZeroInt())
	if !base.FeeDiscount.IsZero() {
		t.Fatalf("base tier discount: got %s, want 0", base.FeeDiscount)
	}

	top := acct.TierFor(sdkmath.NewInt(10_000_000_000_000))
	if !top.MaxLeverage.Equal(sdkmath.NewInt(10_000_000_000)) {
		t.Fatalf("top tier leverage: got %s, want 10x", top.MaxLeverage)
	}

	fee := sdkmath.NewIntWithDecimal(1, 18)
	discounted, err := acct.DiscountedFee(fee, top)
	if err != nil {
		t.Fatalf("discount: %v", err)
	}
	if !discounted.Equal(sdkmath.NewIntWithDecimal(5, 17)) {
		t.Fatalf("discounted fee: got %s, want 0.5 TAO", discounted)
	}
}
