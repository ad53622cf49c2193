package types

import (
	"time"

	"github.com/google/uuid"
)

// Kinds of operation events recorded to the database.
const (
	EventOpenPosition    = "open_position"
	EventClosePosition   = "close_position"
	EventAddCollateral   = "add_collateral"
	EventLiquidation     = "liquidation"
	EventAddLiquidity    = "add_liquidity"
	EventRemoveLiquidity = "remove_liquidity"
	EventClaimLpFees     = "claim_lp_fees"
	EventClaimLiqFees    = "claim_liquidator_fees"
	EventBuyback         = "buyback"
	EventClaimVested     = "claim_vested"
	EventAssociate       = "associate"
	EventBreakerTrip     = "circuit_breaker_trip"
	EventParameterSet    = "parameter_update"
)

// OperationEvent is the audit record written after every mutating protocol
// operation. Payload is a JSON document whose shape depends on Kind.
type OperationEvent struct {
	ID        uuid.UUID `json:"id"`
	Block     uint64    `json:"block"`
	Kind      string    `json:"kind"`
	User      string    `json:"user,omitempty"`
	PairID    *PairID   `json:"pair_id,omitempty"`
	Payload   []byte    `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
