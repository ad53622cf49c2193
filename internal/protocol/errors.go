package protocol

import "errors"

// Sentinel errors surfaced by the engine, pool and buyback paths. Callers
// match with errors.Is; the web layer maps them onto HTTP status codes.
var (
	ErrReentrantCall = errors.New("reentrant call")
	ErrPaused        = errors.New("protocol is paused")
	ErrBreakerOpen   = errors.New("liquidity circuit breaker is open")
	ErrCooldown      = errors.New("operation inside cooldown window")

	ErrAmountZero       = errors.New("amount must be positive")
	ErrBelowMinimum     = errors.New("amount below configured minimum")
	ErrAmountTooLarge   = errors.New("amount exceeds position size")
	ErrPairNotFound     = errors.New("pair not found")
	ErrPairInactive     = errors.New("pair is inactive")
	ErrPositionNotFound = errors.New("no active position")
	ErrPositionExists   = errors.New("position already open for pair")

	ErrLeverageTooHigh       = errors.New("leverage exceeds tier maximum")
	ErrLeverageTooLow        = errors.New("leverage below 1x")
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")
	ErrUtilizationTooHigh    = errors.New("utilization above maximum")
	ErrSlippageExceeded      = errors.New("execution slippage above maximum")
	ErrInsufficientProceeds  = errors.New("proceeds insufficient to repay debt")

	ErrNotLiquidatable      = errors.New("position is not liquidatable")
	ErrSelfLiquidation      = errors.New("cannot liquidate own position")
	ErrInvalidJustification = errors.New("invalid liquidation justification")

	ErrInsufficientStake  = errors.New("insufficient LP stake")
	ErrNoAssociation      = errors.New("no hotkey associated")
	ErrNothingToClaim     = errors.New("nothing to claim")
	ErrNoVestingSchedules = errors.New("no vesting schedules")

	ErrBuybackNotDue = errors.New("buyback window not yet due")
	ErrBuybackEmpty  = errors.New("buyback pool is empty")
)
