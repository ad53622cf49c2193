// ./internal/state/buyback_store.go
package state

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/tenexium/tenex-core/internal/types"
)

// SaveBuyback records an executed treasury buyback.
func SaveBuyback(res types.BuybackResult) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	stmt := `
        INSERT INTO buyback_executions (block_height, spend_wei, expected_tokens_rao, actual_tokens_rao, slippage, missed_windows)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING execution_id;`

	var executionID int64
	err := DB.QueryRow(
		stmt,
		int64(res.Block),
		res.SpendWei.String(),
		res.ExpectedTokens.String(),
		res.ActualTokens.String(),
		res.Slippage.String(),
		int64(res.MissedWindows),
	).Scan(&executionID)
	if err != nil {
		return fmt.Errorf("failed to insert buyback execution: %w", err)
	}

	log.Info().
		Int64("execution_id", executionID).
		Uint64("block", res.Block).
		Str("spend_wei", res.SpendWei.String()).
		Msg("Saved buyback execution")
	return nil
}

// RecentBuybacks returns the most recent buyback executions, newest first.
func RecentBuybacks(limit int) ([]types.BuybackResult, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}

	stmt := `
        SELECT block_height, spend_wei, expected_tokens_rao, actual_tokens_rao, slippage, missed_windows
        FROM buyback_executions
        ORDER BY block_height DESC
        LIMIT $1;`

	rows, err := DB.Query(stmt, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query buyback executions: %w", err)
	}
	defer rows.Close()

	var results []types.BuybackResult
	for rows.Next() {
		var (
			block, missed                     int64
			spend, expected, actual, slippage string
		)
		if err := rows.Scan(&block, &spend, &expected, &actual, &slippage, &missed); err != nil {
			return nil, fmt.Errorf("failed to scan buyback execution: %w", err)
		}
		res := types.BuybackResult{
			Block:         uint64(block),
			MissedWindows: uint64(missed),
		}
		var ok bool
		if res.SpendWei, ok = sdkmath.NewIntFromString(spend); !ok {
			return nil, fmt.Errorf("invalid spend_wei value %q", spend)
		}
		if res.ExpectedTokens, ok = sdkmath.NewIntFromString(expected); !ok {
			return nil, fmt.Errorf("invalid expected_tokens_rao value %q", expected)
		}
		if res.ActualTokens, ok = sdkmath.NewIntFromString(actual); !ok {
			return nil, fmt.Errorf("invalid actual_tokens_rao value %q", actual)
		}
		if res.Slippage, ok = sdkmath.NewIntFromString(slippage); !ok {
			return nil, fmt.Errorf("invalid slippage value %q", slippage)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating buyback executions: %w", err)
	}
	return results, nil
}
