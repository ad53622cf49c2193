package types

import (
	sdkmath "cosmossdk.io/math"
)

// ProtocolStats is the pool-wide snapshot served through getProtocolStats and
// the dashboard API. Amounts are wei unless noted.
type ProtocolStats struct {
	TotalLpStakes        sdkmath.Int `json:"total_lp_stakes"`
	TotalCollateral      sdkmath.Int `json:"total_collateral"`
	TotalBorrowed        sdkmath.Int `json:"total_borrowed"`
	UtilizationRate      sdkmath.Int `json:"utilization_rate"` // fixed point
	AvailableLiquidity   sdkmath.Int `json:"available_liquidity"`
	ProtocolFees         sdkmath.Int `json:"protocol_fees"` // cumulative accrual
	BuybackPool          sdkmath.Int `json:"buyback_pool"`  // spendable balance
	CumulativeBuyback    sdkmath.Int `json:"cumulative_buyback"` // rao purchased
	TotalLiquidatorScore sdkmath.Int `json:"total_liquidator_score"`
	TotalVolume          sdkmath.Int `json:"total_volume"`
	TradeCount           uint64      `json:"trade_count"`
	OpenPositions        int         `json:"open_positions"`
	LastBuybackBlock     uint64      `json:"last_buyback_block"`
	CircuitBreaker       bool        `json:"circuit_breaker"`
	Paused               bool        `json:"paused"`
}
