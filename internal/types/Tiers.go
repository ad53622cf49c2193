package types

import (
	sdkmath "cosmossdk.io/math"
)

// Tier grants leverage headroom and a fee discount based on the stake a user
// holds with their associated hotkey. Tiers are ordered by descending
// MinStake; the last tier has MinStake zero so every user matches one.
type Tier struct {
	MinStake    sdkmath.Int `json:"min_stake"`    // rao
	MaxLeverage sdkmath.Int `json:"max_leverage"` // fixed point, 1e9 == 1x
	FeeDiscount sdkmath.Int `json:"fee_discount"` // fixed point fraction of the fee waived
}
