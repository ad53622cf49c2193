/*

This file contains the types for leveraged positions and the per-pair totals
the engine maintains alongside them.

All TAO-denominated amounts are in wei (1e18 per TAO). Subnet token amounts
are in rao (1e9 per token), the staking gateway's native unit. Ratios and
leverage multipliers are 9-decimal fixed point (1e9 == 100% == 1x).

*/

package types

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Position is a user's open leveraged long on a pair, keyed by (user, pair).
type Position struct {
	User            common.Address `json:"user"`
	PairID          PairID         `json:"pair_id"`
	Collateral      sdkmath.Int    `json:"collateral"`        // wei
	Borrowed        sdkmath.Int    `json:"borrowed"`          // wei
	TokenAmount     sdkmath.Int    `json:"token_amount"`      // rao
	Leverage        sdkmath.Int    `json:"leverage"`          // fixed point, 1e9 == 1x
	EntryPrice      sdkmath.Int    `json:"entry_price"`       // fixed point, TAO per token
	LastUpdateBlock uint64         `json:"last_update_block"` // borrowing fees accrued up to here
	AccruedFees     sdkmath.Int    `json:"accrued_fees"`      // wei, settled borrowing fees
	IsActive        bool           `json:"is_active"`
	ValidatorHotkey Hotkey         `json:"validator_hotkey"` // hotkey the stake is held under
}

// Pair holds the per-subnet aggregates mutated by every open/close/liquidate
// touching that pair.
type Pair struct {
	ID              PairID      `json:"id"`
	TotalCollateral sdkmath.Int `json:"total_collateral"` // wei
	TotalBorrowed   sdkmath.Int `json:"total_borrowed"`   // wei
	UtilizationRate sdkmath.Int `json:"utilization_rate"` // fixed point, refreshed after each op
	BorrowingRate   sdkmath.Int `json:"borrowing_rate"`   // fixed point per 360 blocks
	MaxLeverage     sdkmath.Int `json:"max_leverage"`     // fixed point
	IsActive        bool        `json:"is_active"`
}

// UserStats are the per-user lifetime counters reported through the stats
// surface.
type UserStats struct {
	TotalVolume sdkmath.Int `json:"total_volume"` // wei, gross notional traded
	TradeCount  uint64      `json:"trade_count"`
}

// CloseResult captures the economics of a close for the caller and the event
// log.
type CloseResult struct {
	User            common.Address `json:"user"`
	PairID          PairID         `json:"pair_id"`
	ClosedFraction  sdkmath.Int    `json:"closed_fraction"` // fixed point
	ProceedsWei     sdkmath.Int    `json:"proceeds_wei"`
	BorrowedRepaid  sdkmath.Int    `json:"borrowed_repaid"`
	BorrowingFees   sdkmath.Int    `json:"borrowing_fees"`
	TradingFee      sdkmath.Int    `json:"trading_fee"`
	NetReturn       sdkmath.Int    `json:"net_return"`
	PnL             sdkmath.Int    `json:"pnl"` // signed
	FullyClosed     bool           `json:"fully_closed"`
}

// LiquidationResult captures the waterfall applied to a liquidated position.
type LiquidationResult struct {
	User             common.Address `json:"user"`
	Liquidator       common.Address `json:"liquidator"`
	PairID           PairID         `json:"pair_id"`
	PositionValue    sdkmath.Int    `json:"position_value"` // wei, at liquidation
	ProceedsWei      sdkmath.Int    `json:"proceeds_wei"`
	DebtRepaid       sdkmath.Int    `json:"debt_repaid"`
	LiquidationFee   sdkmath.Int    `json:"liquidation_fee"`
	LiquidatorPayout sdkmath.Int    `json:"liquidator_payout"`
	ProtocolShare    sdkmath.Int    `json:"protocol_share"`
	OwnerReturn      sdkmath.Int    `json:"owner_return"`
	Justification    string         `json:"justification"`
	ContentHash      ContentHash    `json:"content_hash"`
}
