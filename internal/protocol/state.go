/*
Package protocol owns the in-memory protocol state shared by the engine,
pool, fee and buyback components.

Access discipline: every externally-triggered operation takes the single
state mutex for its full duration and additionally holds the reentrancy
guard, so callbacks from the chain gateway can never re-enter an operation
in flight. Components mutate the state only after all external calls and
validations have succeeded; the pure map and integer updates at the tail of
each operation cannot fail, which is what makes operations all-or-nothing
without snapshotting.
*/
package protocol

import (
	"sync"
	"sync/atomic"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tenexium/tenex-core/internal/config"
	"github.com/tenexium/tenex-core/internal/fixedpoint"
	"github.com/tenexium/tenex-core/internal/types"
)

// Globals are the pool-wide accumulators. All amounts are wei unless noted.
type Globals struct {
	TotalLpStakes   sdkmath.Int
	TotalShares     sdkmath.Int
	TotalCollateral sdkmath.Int
	TotalBorrowed   sdkmath.Int

	// Reward accumulators, scaled by fixedpoint.AccPrecision.
	AccLpFeesPerShare         sdkmath.Int
	AccLiquidatorFeesPerScore sdkmath.Int
	TotalLiquidatorScore      sdkmath.Int

	ProtocolFees      sdkmath.Int // cumulative, never decremented
	BuybackPool       sdkmath.Int // spendable balance
	CumulativeBuyback sdkmath.Int // rao purchased across all buybacks
	LastBuybackBlock  uint64

	TotalVolume sdkmath.Int
	TradeCount  uint64

	CircuitBreaker bool
	Paused         bool
}

// State is the complete mutable protocol state.
type State struct {
	mu      sync.Mutex
	entered atomic.Bool

	Params config.ProtocolParams

	Globals Globals

	Positions map[common.Address]map[types.PairID]*types.Position
	Pairs     map[types.PairID]*types.Pair

	Lps           map[common.Address]*types.LiquidityProvider
	LpFeeBalances map[common.Address]sdkmath.Int // settled, claimable wei

	LiquidatorScores      map[common.Address]sdkmath.Int
	LiquidatorRewardDebts map[common.Address]sdkmath.Int
	LiquidatorBalances    map[common.Address]sdkmath.Int // settled, claimable wei

	Associations    map[common.Address]types.Hotkey
	UserStats       map[common.Address]*types.UserStats
	LastActionBlock map[common.Address]uint64

	Vesting map[common.Address][]*types.VestingSchedule
}

// NewState returns an empty state under the given parameters.
func NewState(params config.ProtocolParams) *State {
	return &State{
		Params: params,
		Globals: Globals{
			TotalLpStakes:             sdkmath.ZeroInt(),
			TotalShares:               sdkmath.ZeroInt(),
			TotalCollateral:           sdkmath.ZeroInt(),
			TotalBorrowed:             sdkmath.ZeroInt(),
			AccLpFeesPerShare:         sdkmath.ZeroInt(),
			AccLiquidatorFeesPerScore: sdkmath.ZeroInt(),
			TotalLiquidatorScore:      sdkmath.ZeroInt(),
			ProtocolFees:              sdkmath.ZeroInt(),
			BuybackPool:               sdkmath.ZeroInt(),
			CumulativeBuyback:         sdkmath.ZeroInt(),
			TotalVolume:               sdkmath.ZeroInt(),
		},
		Positions:             make(map[common.Address]map[types.PairID]*types.Position),
		Pairs:                 make(map[types.PairID]*types.Pair),
		Lps:                   make(map[common.Address]*types.LiquidityProvider),
		LpFeeBalances:         make(map[common.Address]sdkmath.Int),
		LiquidatorScores:      make(map[common.Address]sdkmath.Int),
		LiquidatorRewardDebts: make(map[common.Address]sdkmath.Int),
		LiquidatorBalances:    make(map[common.Address]sdkmath.Int),
		Associations:          make(map[common.Address]types.Hotkey),
		UserStats:             make(map[common.Address]*types.UserStats),
		LastActionBlock:       make(map[common.Address]uint64),
		Vesting:               make(map[common.Address][]*types.VestingSchedule),
	}
}

// Lock takes the state mutex. Callers hold it for the full operation.
func (s *State) Lock() { s.mu.Lock() }

// Unlock releases the state mutex.
func (s *State) Unlock() { s.mu.Unlock() }

// Enter flips the reentrancy guard. It returns ErrReentrantCall when an
// operation is already in flight.
func (s *State) Enter() error {
	if !s.entered.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

// Exit clears the reentrancy guard.
func (s *State) Exit() { s.entered.Store(false) }

// Position returns the user's active position on pair, or ErrPositionNotFound.
func (s *State) Position(user common.Address, pair types.PairID) (*types.Position, error) {
	byPair, ok := s.Positions[user]
	if !ok {
		return nil, ErrPositionNotFound
	}
	pos, ok := byPair[pair]
	if !ok || !pos.IsActive {
		return nil, ErrPositionNotFound
	}
	return pos, nil
}

// PutPosition stores a position, creating the user's pair map on first use.
func (s *State) PutPosition(pos *types.Position) {
	byPair, ok := s.Positions[pos.User]
	if !ok {
		byPair = make(map[types.PairID]*types.Position)
		s.Positions[pos.User] = byPair
	}
	byPair[pos.PairID] = pos
}

// RemovePosition deletes a closed position.
func (s *State) RemovePosition(user common.Address, pair types.PairID) {
	if byPair, ok := s.Positions[user]; ok {
		delete(byPair, pair)
		if len(byPair) == 0 {
			delete(s.Positions, user)
		}
	}
}

// Pair returns the pair record, distinguishing missing from inactive.
func (s *State) Pair(id types.PairID) (*types.Pair, error) {
	pair, ok := s.Pairs[id]
	if !ok {
		return nil, ErrPairNotFound
	}
	if !pair.IsActive {
		return nil, ErrPairInactive
	}
	return pair, nil
}

// PairAny returns the pair record whether or not it is active. Closes and
// liquidations keep working on deactivated pairs.
func (s *State) PairAny(id types.PairID) (*types.Pair, error) {
	pair, ok := s.Pairs[id]
	if !ok {
		return nil, ErrPairNotFound
	}
	return pair, nil
}

// Lp returns the provider record for addr, creating an inactive empty one on
// first reference.
func (s *State) Lp(addr common.Address) *types.LiquidityProvider {
	lp, ok := s.Lps[addr]
	if !ok {
		lp = &types.LiquidityProvider{
			Address:    addr,
			Stake:      sdkmath.ZeroInt(),
			Shares:     sdkmath.ZeroInt(),
			RewardDebt: sdkmath.ZeroInt(),
		}
		s.Lps[addr] = lp
	}
	return lp
}

// Stats builds the read-only protocol snapshot.
func (s *State) Stats() types.ProtocolStats {
	open := 0
	for _, byPair := range s.Positions {
		for _, pos := range byPair {
			if pos.IsActive {
				open++
			}
		}
	}
	return types.ProtocolStats{
		TotalLpStakes:        s.Globals.TotalLpStakes,
		TotalCollateral:      s.Globals.TotalCollateral,
		TotalBorrowed:        s.Globals.TotalBorrowed,
		UtilizationRate:      s.UtilizationRate(),
		AvailableLiquidity:   s.AvailableLiquidity(),
		ProtocolFees:         s.Globals.ProtocolFees,
		BuybackPool:          s.Globals.BuybackPool,
		CumulativeBuyback:    s.Globals.CumulativeBuyback,
		TotalLiquidatorScore: s.Globals.TotalLiquidatorScore,
		TotalVolume:          s.Globals.TotalVolume,
		TradeCount:           s.Globals.TradeCount,
		OpenPositions:        open,
		LastBuybackBlock:     s.Globals.LastBuybackBlock,
		CircuitBreaker:       s.Globals.CircuitBreaker,
		Paused:               s.Globals.Paused,
	}
}

// UtilizationRate returns borrowed/totalLpStakes as a fixed-point ratio.
// An empty pool reports zero.
func (s *State) UtilizationRate() sdkmath.Int {
	if s.Globals.TotalLpStakes.IsZero() {
		return sdkmath.ZeroInt()
	}
	util, err := fixedpoint.MulDiv(s.Globals.TotalBorrowed, fixedpoint.PrecisionInt(), s.Globals.TotalLpStakes)
	if err != nil {
		// Borrows are bounded by stake, so the quotient stays in range;
		// saturate at 100% if the accounting is ever that far off.
		return fixedpoint.PrecisionInt()
	}
	return util
}

// AvailableLiquidity returns the unborrowed LP stake, clamped at zero.
func (s *State) AvailableLiquidity() sdkmath.Int {
	if s.Globals.TotalBorrowed.GTE(s.Globals.TotalLpStakes) {
		return sdkmath.ZeroInt()
	}
	return s.Globals.TotalLpStakes.Sub(s.Globals.TotalBorrowed)
}
