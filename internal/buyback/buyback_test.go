package buyback

import (
	"context"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tenexium/tenex-core/internal/config"
	"github.com/tenexium/tenex-core/internal/gateway"
	"github.com/tenexium/tenex-core/internal/protocol"
	"github.com/tenexium/tenex-core/internal/types"
)

var (
	treasury     = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	validatorKey = types.Hotkey{0x01}
	parity       = sdkmath.NewInt(1_000_000_000)
)

func tao(n int64) sdkmath.Int { return sdkmath.NewIntWithDecimal(n, 18) }

func newTestEngine(t *testing.T, poolWei sdkmath.Int) (*Engine, *protocol.State, *gateway.Simulator) {
	t.Helper()
	st := protocol.NewState(config.DefaultProtocolParams())
	st.Globals.BuybackPool = poolWei
	sim := gateway.NewSimulator(parity)
	return New(st, sim, validatorKey), st, sim
}

func TestExecuteNotDue(t *testing.T) {
	e, st, _ := newTestEngine(t, tao(100))
	st.Globals.LastBuybackBlock = 1000

	if e.CanExecute(1000 + st.Params.BuybackInterval - 1) {
		t.Fatal("buyback must not be executable before the interval elapses")
	}
	_, err := e.Execute(context.Background(), treasury, 1000+st.Params.BuybackInterval-1)
	if !errors.Is(err, protocol.ErrBuybackNotDue) {
		t.Fatalf("early execute: got %v, want ErrBuybackNotDue", err)
	}
}

func TestExecuteBelowThreshold(t *testing.T) {
	e, st, _ := newTestEngine(t, sdkmath.NewIntWithDecimal(5, 17)) // half the 1 TAO threshold

	if e.CanExecute(st.Params.BuybackInterval) {
		t.Fatal("thin pool must not be executable")
	}
	_, err := e.Execute(context.Background(), treasury, st.Params.BuybackInterval)
	if !errors.Is(err, protocol.ErrBuybackEmpty) {
		t.Fatalf("thin pool execute: got %v, want ErrBuybackEmpty", err)
	}
}

func TestExecuteSpendsConfiguredRate(t *testing.T) {
	e, st, _ := newTestEngine(t, tao(100))

	block := st.Params.BuybackInterval
	if !e.CanExecute(block) {
		t.Fatal("buyback must be executable")
	}
	res, err := e.Execute(context.Background(), treasury, block)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	// 5% of 100 TAO, no missed windows, no skew at parity.
	if !res.SpendWei.Equal(tao(5)) {
		t.Fatalf("spend: got %s, want 5 TAO", res.SpendWei)
	}
	if res.MissedWindows != 0 {
		t.Fatalf("missed windows: got %d", res.MissedWindows)
	}
	if !res.ActualTokens.Equal(sdkmath.NewInt(5_000_000_000)) {
		t.Fatalf("tokens: got %s", res.ActualTokens)
	}
	if !res.Slippage.IsZero() {
		t.Fatalf("slippage at parity: got %s", res.Slippage)
	}
	if !st.Globals.BuybackPool.Equal(tao(95)) {
		t.Fatalf("pool after spend: got %s", st.Globals.BuybackPool)
	}
	if !st.Globals.CumulativeBuyback.Equal(res.ActualTokens) {
		t.Fatalf("cumulative: got %s", st.Globals.CumulativeBuyback)
	}
	if st.Globals.LastBuybackBlock != block {
		t.Fatalf("last buyback block: got %d", st.Globals.LastBuybackBlock)
	}

	schedules := st.Vesting[treasury]
	if len(schedules) != 1 {
		t.Fatalf("schedules: got %d, want 1", len(schedules))
	}
	s := schedules[0]
	if !s.TotalAmount.Equal(res.ActualTokens) {
		t.Fatalf("schedule amount: got %s", s.TotalAmount)
	}
	if s.CliffBlock != block+st.Params.VestingCliffBlocks || s.EndBlock != block+st.Params.VestingDurationBlocks {
		t.Fatalf("schedule bounds: cliff %d, end %d", s.CliffBlock, s.EndBlock)
	}
}

func TestMissedWindowRamp(t *testing.T) {
	e, st, _ := newTestEngine(t, tao(100))

	// Three full intervals elapsed: two missed windows, +20% boost.
	block := 3 * st.Params.BuybackInterval
	res, err := e.Execute(context.Background(), treasury, block)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.MissedWindows != 2 {
		t.Fatalf("missed windows: got %d, want 2", res.MissedWindows)
	}
	if !res.SpendWei.Equal(tao(6)) { // 5% * 1.2 of 100 TAO
		t.Fatalf("ramped spend: got %s, want 6 TAO", res.SpendWei)
	}
}

func TestRampCap(t *testing.T) {
	e, st, _ := newTestEngine(t, tao(100))

	// Ten intervals: nine missed windows, boost capped at +50%.
	block := 10 * st.Params.BuybackInterval
	res, err := e.Execute(context.Background(), treasury, block)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.SpendWei.Equal(sdkmath.NewIntWithDecimal(75, 17)) { // 5% * 1.5 of 100 TAO
		t.Fatalf("capped spend: got %s, want 7.5 TAO", res.SpendWei)
	}
}

func TestRampedSpendCappedAtPool(t *testing.T) {
	e, st, _ := newTestEngine(t, tao(10))

	// At a 100% rate the +50% boost would plan 15 TAO against a 10 TAO
	// pool; the spend must cap at the balance instead of overdrawing it.
	st.Params.BuybackRate = sdkmath.NewInt(1_000_000_000)

	block := 10 * st.Params.BuybackInterval
	res, err := e.Execute(context.Background(), treasury, block)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.SpendWei.Equal(tao(10)) {
		t.Fatalf("capped spend: got %s, want the full 10 TAO pool", res.SpendWei)
	}
	if st.Globals.BuybackPool.IsNegative() {
		t.Fatalf("pool overdrawn: %s", st.Globals.BuybackPool)
	}
	if !st.Globals.BuybackPool.IsZero() {
		t.Fatalf("pool after spend: got %s, want 0", st.Globals.BuybackPool)
	}
}

func TestVestedCurve(t *testing.T) {
	s := &types.VestingSchedule{
		Beneficiary:   treasury,
		TotalAmount:   sdkmath.NewInt(1_000_000),
		ClaimedAmount: sdkmath.ZeroInt(),
		StartBlock:    1000,
		CliffBlock:    1100,
		EndBlock:      2000,
	}

	if !Vested(s, 1099).IsZero() {
		t.Fatal("nothing vests before the cliff")
	}
	// At the cliff the start-anchored linear curve unlocks the elapsed part.
	if !Vested(s, 1100).Equal(sdkmath.NewInt(100_000)) {
		t.Fatalf("at cliff: got %s, want 100000", Vested(s, 1100))
	}
	if !Vested(s, 1500).Equal(sdkmath.NewInt(500_000)) {
		t.Fatalf("midpoint: got %s, want 500000", Vested(s, 1500))
	}
	if !Vested(s, 2000).Equal(s.TotalAmount) {
		t.Fatalf("at end: got %s", Vested(s, 2000))
	}
	if !Vested(s, 5000).Equal(s.TotalAmount) {
		t.Fatalf("past end: got %s", Vested(s, 5000))
	}

	// Monotonic over the whole range.
	prev := sdkmath.ZeroInt()
	for block := uint64(1000); block <= 2100; block += 50 {
		v := Vested(s, block)
		if v.LT(prev) {
			t.Fatalf("vested decreased at block %d: %s < %s", block, v, prev)
		}
		prev = v
	}

	s.Revoked = true
	if !Vested(s, 1500).IsZero() {
		t.Fatal("revoked schedule must vest nothing")
	}
}

func TestClaimVested(t *testing.T) {
	e, st, _ := newTestEngine(t, tao(100))

	if _, err := e.ClaimVested(treasury, 100); !errors.Is(err, protocol.ErrNoVestingSchedules) {
		t.Fatalf("claim with no schedules: got %v, want ErrNoVestingSchedules", err)
	}

	block := st.Params.BuybackInterval
	res, err := e.Execute(context.Background(), treasury, block)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	// Before the cliff: not an error, just zero.
	got, err := e.ClaimVested(treasury, block+1)
	if err != nil {
		t.Fatalf("claim before cliff: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("claim before cliff: got %s, want 0", got)
	}

	// Past the end everything is claimable, once.
	got, err = e.ClaimVested(treasury, block+st.Params.VestingDurationBlocks)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !got.Equal(res.ActualTokens) {
		t.Fatalf("claim: got %s, want %s", got, res.ActualTokens)
	}
	got, err = e.ClaimVested(treasury, block+st.Params.VestingDurationBlocks+100)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("second claim: got %s, want 0", got)
	}

	if !st.Vesting[treasury][0].ClaimedAmount.Equal(res.ActualTokens) {
		t.Fatalf("claimed amount: got %s", st.Vesting[treasury][0].ClaimedAmount)
	}
}
