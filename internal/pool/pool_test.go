package pool

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tenexium/tenex-core/internal/config"
	"github.com/tenexium/tenex-core/internal/fees"
	"github.com/tenexium/tenex-core/internal/protocol"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func newTestPool(t *testing.T) (*Pool, *protocol.State, *fees.Accountant) {
	t.Helper()
	st := protocol.NewState(config.DefaultProtocolParams())
	acct := fees.NewAccountant(st)
	return New(st, acct), st, acct
}

func tao(n int64) sdkmath.Int { return sdkmath.NewIntWithDecimal(n, 18) }

func TestFirstDepositMintsOneToOne(t *testing.T) {
	p, st, _ := newTestPool(t)

	if err := p.Deposit(alice, tao(100), 1); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	lp := st.Lps[alice]
	if !lp.Shares.Equal(tao(100)) {
		t.Fatalf("shares: got %s, want %s", lp.Shares, tao(100))
	}
	if !st.Globals.TotalLpStakes.Equal(tao(100)) {
		t.Fatalf("total stakes: got %s", st.Globals.TotalLpStakes)
	}
	if !lp.IsActive {
		t.Fatal("provider must be active after deposit")
	}
}

func TestDepositWithdrawRoundtrip(t *testing.T) {
	p, st, _ := newTestPool(t)

	if err := p.Deposit(alice, tao(100), 1); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := p.Withdraw(alice, tao(100), 2); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	lp := st.Lps[alice]
	if !lp.Stake.IsZero() || !lp.Shares.IsZero() {
		t.Fatalf("residual stake %s, shares %s", lp.Stake, lp.Shares)
	}
	if lp.IsActive {
		t.Fatal("provider must be inactive after full withdrawal")
	}
	if !st.Globals.TotalLpStakes.IsZero() || !st.Globals.TotalShares.IsZero() {
		t.Fatalf("residual totals: stakes %s, shares %s", st.Globals.TotalLpStakes, st.Globals.TotalShares)
	}
}

func TestSecondDepositPricedByStakePerShare(t *testing.T) {
	p, st, _ := newTestPool(t)

	if err := p.Deposit(alice, tao(100), 1); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Fees folded into the pool raise stake without minting shares, so the
	// next depositor pays a higher share price.
	st.Globals.TotalLpStakes = st.Globals.TotalLpStakes.Add(tao(100))

	if err := p.Deposit(bob, tao(100), 2); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !st.Lps[bob].Shares.Equal(tao(50)) {
		t.Fatalf("bob shares: got %s, want %s", st.Lps[bob].Shares, tao(50))
	}
}

func TestWithdrawRejectsBorrowedFunds(t *testing.T) {
	p, st, _ := newTestPool(t)

	if err := p.Deposit(alice, tao(100), 1); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	st.Globals.TotalBorrowed = tao(95)

	if err := p.Withdraw(alice, tao(10), 2); !errors.Is(err, protocol.ErrInsufficientLiquidity) {
		t.Fatalf("withdraw into borrowed funds: got %v, want ErrInsufficientLiquidity", err)
	}
}

func TestWithdrawRejectsUtilizationBreach(t *testing.T) {
	p, st, _ := newTestPool(t)

	// 100 staked, 85 borrowed: withdrawing 10 leaves 90 staked and pushes
	// utilization to 94%, past the 90% maximum.
	if err := p.Deposit(alice, tao(100), 1); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	st.Globals.TotalBorrowed = tao(85)

	if err := p.Withdraw(alice, tao(10), 2); !errors.Is(err, protocol.ErrUtilizationTooHigh) {
		t.Fatalf("utilization breach: got %v, want ErrUtilizationTooHigh", err)
	}

	// A smaller withdrawal that keeps utilization at 89.5% passes.
	if err := p.Withdraw(alice, tao(5), 2); err != nil {
		t.Fatalf("withdraw within limits: %v", err)
	}
}

func TestWithdrawMoreThanStake(t *testing.T) {
	p, _, _ := newTestPool(t)

	if err := p.Deposit(alice, tao(10), 1); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := p.Withdraw(alice, tao(11), 2); !errors.Is(err, protocol.ErrInsufficientStake) {
		t.Fatalf("overdraw: got %v, want ErrInsufficientStake", err)
	}
	if err := p.Withdraw(bob, tao(1), 2); !errors.Is(err, protocol.ErrInsufficientStake) {
		t.Fatalf("unknown provider: got %v, want ErrInsufficientStake", err)
	}
}

func TestZeroAmountRejected(t *testing.T) {
	p, _, _ := newTestPool(t)

	if err := p.Deposit(alice, sdkmath.ZeroInt(), 1); !errors.Is(err, protocol.ErrAmountZero) {
		t.Fatalf("zero deposit: got %v, want ErrAmountZero", err)
	}
	if err := p.Withdraw(alice, sdkmath.ZeroInt(), 1); !errors.Is(err, protocol.ErrAmountZero) {
		t.Fatalf("zero withdraw: got %v, want ErrAmountZero", err)
	}
}

func TestDepositRejectsDustAmount(t *testing.T) {
	p, _, _ := newTestPool(t)

	// Default floor is 0.1 TAO.
	below := sdkmath.NewIntWithDecimal(1, 16)
	if err := p.Deposit(alice, below, 1); !errors.Is(err, protocol.ErrBelowMinimum) {
		t.Fatalf("dust deposit: got %v, want ErrBelowMinimum", err)
	}
	if err := p.Deposit(alice, sdkmath.NewIntWithDecimal(1, 17), 1); err != nil {
		t.Fatalf("deposit at the floor: %v", err)
	}
}

func TestDepositSettlesBeforeShareChange(t *testing.T) {
	p, st, acct := newTestPool(t)

	if err := p.Deposit(alice, tao(100), 1); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := acct.Distribute(tao(10)); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	// Doubling the stake must not rescale the already earned reward.
	if err := p.Deposit(alice, tao(100), 2); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	earned := st.LpFeeBalances[alice]
	if !earned.Equal(tao(6)) { // 60% LP share of 10 TAO
		t.Fatalf("settled reward: got %s, want %s", earned, tao(6))
	}
	pending, err := acct.PendingLp(alice)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if !pending.IsZero() {
		t.Fatalf("pending after settle: got %s, want 0", pending)
	}
}

func TestCircuitBreakerTripAndReset(t *testing.T) {
	p, st, _ := newTestPool(t)

	if err := p.Deposit(alice, tao(100), 1); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	st.Globals.TotalBorrowed = tao(95)
	p.CheckCircuitBreaker()
	if !st.Globals.CircuitBreaker {
		t.Fatal("breaker must trip above max utilization")
	}

	st.Globals.TotalBorrowed = tao(50)
	p.CheckCircuitBreaker()
	if st.Globals.CircuitBreaker {
		t.Fatal("breaker must reset once utilization recovers")
	}
}

func TestCircuitBreakerTripsBelowStakeFloor(t *testing.T) {
	p, st, _ := newTestPool(t)

	if err := p.Deposit(alice, tao(100), 1); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	p.CheckCircuitBreaker()
	if st.Globals.CircuitBreaker {
		t.Fatal("breaker must stay closed above the stake floor")
	}

	st.Globals.TotalLpStakes = tao(5) // default floor is 10 TAO
	p.CheckCircuitBreaker()
	if !st.Globals.CircuitBreaker {
		t.Fatal("breaker must trip below the stake floor")
	}
}

func TestLpInfoAggregatesClaimable(t *testing.T) {
	p, st, acct := newTestPool(t)

	if err := p.Deposit(alice, tao(100), 1); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := acct.Distribute(tao(10)); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	st.LpFeeBalances[alice] = tao(1)

	info, err := p.LpInfo(alice)
	if err != nil {
		t.Fatalf("lp info: %v", err)
	}
	if !info.Stake.Equal(tao(100)) {
		t.Fatalf("stake: got %s", info.Stake)
	}
	if !info.Claimable.Equal(tao(7)) { // 6 pending + 1 settled
		t.Fatalf("claimable: got %s, want %s", info.Claimable, tao(7))
	}
}
