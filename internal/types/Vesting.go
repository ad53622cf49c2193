/*

This file contains the types for treasury buybacks and the linear vesting
schedules they create.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// VestingSchedule vests a purchased token amount linearly between StartBlock
// and EndBlock, with nothing claimable before CliffBlock.
type VestingSchedule struct {
	Beneficiary   common.Address `json:"beneficiary"`
	TotalAmount   sdkmath.Int    `json:"total_amount"`   // rao
	ClaimedAmount sdkmath.Int    `json:"claimed_amount"` // rao
	StartBlock    uint64         `json:"start_block"`
	CliffBlock    uint64         `json:"cliff_block"`
	EndBlock      uint64         `json:"end_block"`
	Revoked       bool           `json:"revoked"`
}

// BuybackResult records one executed treasury buyback.
type BuybackResult struct {
	Block          uint64      `json:"block"`
	SpendWei       sdkmath.Int `json:"spend_wei"`
	ExpectedTokens sdkmath.Int `json:"expected_tokens"` // rao
	ActualTokens   sdkmath.Int `json:"actual_tokens"`   // rao
	Slippage       sdkmath.Int `json:"slippage"`        // fixed point fraction of expected
	MissedWindows  uint64      `json:"missed_windows"`
}
