/*
Package gateway abstracts the chain-side staking surface the protocol trades
through. Position opens stake TAO into the subnet and receive alpha tokens;
closes unstake alpha back into TAO. The live implementation talks to the
Bittensor EVM staking precompile over JSON-RPC; the simulator backs tests
and paper mode.
*/
package gateway

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/tenexium/tenex-core/internal/types"
)

// StakingGateway is the protocol's only dependency on the chain. Amount
// conventions follow the rest of the codebase: TAO in wei, subnet tokens in
// rao, prices fixed point TAO per token.
//
// Stake and Unstake report the amount actually received, measured as a
// balance delta around the transaction, because the chain's swap pricing
// moves between simulation and execution.
type StakingGateway interface {
	// Stake swaps amountWei of TAO into subnet tokens delegated to hotkey.
	// Returns the rao received.
	Stake(ctx context.Context, amountWei sdkmath.Int, hotkey types.Hotkey) (sdkmath.Int, error)

	// Unstake swaps amountRao of subnet tokens back into TAO.
	// Returns the wei received.
	Unstake(ctx context.Context, amountRao sdkmath.Int, hotkey types.Hotkey) (sdkmath.Int, error)

	// SimulateBuy quotes the rao a Stake of amountWei would currently yield.
	SimulateBuy(ctx context.Context, amountWei sdkmath.Int) (sdkmath.Int, error)

	// SimulateSell quotes the wei an Unstake of amountRao would currently yield.
	SimulateSell(ctx context.Context, amountRao sdkmath.Int) (sdkmath.Int, error)

	// CurrentPrice returns the spot subnet token price.
	CurrentPrice(ctx context.Context) (sdkmath.Int, error)

	// StakeBalance returns the rao hotkey has staked on the subnet for the
	// protocol's coldkey. Used for fee-tier lookups.
	StakeBalance(ctx context.Context, hotkey types.Hotkey) (sdkmath.Int, error)

	// CurrentBlock returns the latest chain block number.
	CurrentBlock(ctx context.Context) (uint64, error)
}
