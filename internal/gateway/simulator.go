package gateway

import (
	"context"
	"errors"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/tenexium/tenex-core/internal/fixedpoint"
	"github.com/tenexium/tenex-core/internal/types"
)

// Simulator is an in-memory StakingGateway for tests and paper mode. Swaps
// execute at the configured price; ExecutionSkew widens the gap between
// simulated and executed proceeds to exercise slippage handling.
type Simulator struct {
	mu sync.Mutex

	// Price is fixed point TAO per token.
	Price sdkmath.Int

	// ExecutionSkew shaves this fixed-point fraction off executed (not
	// simulated) proceeds. Zero means execution matches simulation.
	ExecutionSkew sdkmath.Int

	// Block advances on demand via AdvanceBlocks.
	Block uint64

	// Stakes tracks rao per hotkey, fed by Stake/Unstake and seedable for
	// tier tests.
	Stakes map[types.Hotkey]sdkmath.Int
}

// NewSimulator returns a simulator at the given price with no skew.
func NewSimulator(price sdkmath.Int) *Simulator {
	return &Simulator{
		Price:         price,
		ExecutionSkew: sdkmath.ZeroInt(),
		Block:         1,
		Stakes:        make(map[types.Hotkey]sdkmath.Int),
	}
}

// SetPrice moves the spot price.
func (s *Simulator) SetPrice(price sdkmath.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Price = price
}

// SetExecutionSkew sets the simulated-vs-executed gap.
func (s *Simulator) SetExecutionSkew(skew sdkmath.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ExecutionSkew = skew
}

// AdvanceBlocks moves the simulated chain head forward.
func (s *Simulator) AdvanceBlocks(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Block += n
}

// SeedStake sets a hotkey's stake balance directly.
func (s *Simulator) SeedStake(hotkey types.Hotkey, amountRao sdkmath.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stakes[hotkey] = amountRao
}

func (s *Simulator) quoteBuy(amountWei sdkmath.Int) (sdkmath.Int, error) {
	if s.Price.IsZero() {
		return sdkmath.Int{}, errors.New("simulator: price not set")
	}
	// wei value = rao * price, so rao = wei / price.
	return amountWei.Quo(s.Price), nil
}

func (s *Simulator) quoteSell(amountRao sdkmath.Int) (sdkmath.Int, error) {
	return fixedpoint.Mul(amountRao, s.Price)
}

func (s *Simulator) applySkew(amount sdkmath.Int) sdkmath.Int {
	if s.ExecutionSkew.IsZero() {
		return amount
	}
	cut := amount.Mul(s.ExecutionSkew).Quo(fixedpoint.PrecisionInt())
	return amount.Sub(cut)
}

func (s *Simulator) Stake(ctx context.Context, amountWei sdkmath.Int, hotkey types.Hotkey) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quoted, err := s.quoteBuy(amountWei)
	if err != nil {
		return sdkmath.Int{}, err
	}
	received := s.applySkew(quoted)
	bal, ok := s.Stakes[hotkey]
	if !ok {
		bal = sdkmath.ZeroInt()
	}
	s.Stakes[hotkey] = bal.Add(received)
	return received, nil
}

func (s *Simulator) Unstake(ctx context.Context, amountRao sdkmath.Int, hotkey types.Hotkey) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quoted, err := s.quoteSell(amountRao)
	if err != nil {
		return sdkmath.Int{}, err
	}
	bal, ok := s.Stakes[hotkey]
	if ok {
		if amountRao.GT(bal) {
			return sdkmath.Int{}, errors.New("simulator: unstake exceeds stake")
		}
		s.Stakes[hotkey] = bal.Sub(amountRao)
	}
	return s.applySkew(quoted), nil
}

func (s *Simulator) SimulateBuy(ctx context.Context, amountWei sdkmath.Int) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quoteBuy(amountWei)
}

func (s *Simulator) SimulateSell(ctx context.Context, amountRao sdkmath.Int) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quoteSell(amountRao)
}

func (s *Simulator) CurrentPrice(ctx context.Context) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Price, nil
}

func (s *Simulator) StakeBalance(ctx context.Context, hotkey types.Hotkey) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.Stakes[hotkey]
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	return bal, nil
}

func (s *Simulator) CurrentBlock(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Block, nil
}
