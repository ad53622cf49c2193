/*

This file contains the types for pooled liquidity providers and the reward
accounting attached to them.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// LiquidityProvider is the per-address record of pooled collateral.
//
// RewardDebt is the accumulator-per-share bookmark: it equals
// shares x accLpFeesPerShare / ACC_PRECISION as of the last share-changing
// event, so pending rewards are always computed relative to fees distributed
// while the shares actually existed.
type LiquidityProvider struct {
	Address         common.Address `json:"address"`
	Stake           sdkmath.Int    `json:"stake"`  // wei
	Shares          sdkmath.Int    `json:"shares"` // 1:1 with stake under the current share model
	RewardDebt      sdkmath.Int    `json:"reward_debt"`
	LastRewardBlock uint64         `json:"last_reward_block"`
	IsActive        bool           `json:"is_active"`
}

// LpInfo is the read-only view served to validators and the dashboard.
type LpInfo struct {
	Stake     sdkmath.Int `json:"stake"`
	Shares    sdkmath.Int `json:"shares"`
	Claimable sdkmath.Int `json:"claimable"`
	IsActive  bool        `json:"is_active"`
}
