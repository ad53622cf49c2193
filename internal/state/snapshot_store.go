// ./internal/state/snapshot_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tenexium/tenex-core/internal/types"
)

// SaveSnapshot records a point-in-time view of the protocol totals.
func SaveSnapshot(block uint64, stats types.ProtocolStats) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	blob, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal protocol stats: %w", err)
	}

	stmt := `
        INSERT INTO protocol_snapshots (block_height, stats)
        VALUES ($1, $2);`

	_, err = DB.Exec(stmt, int64(block), blob)
	if err != nil {
		return fmt.Errorf("failed to insert protocol snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the newest stored snapshot, or (0, nil, nil)
// when none has been recorded yet.
func LatestSnapshot() (uint64, *types.ProtocolStats, error) {
	if DB == nil {
		return 0, nil, fmt.Errorf("database not initialized")
	}

	stmt := `
        SELECT block_height, stats FROM protocol_snapshots
        ORDER BY snapshot_timestamp DESC
        LIMIT 1;`

	var block int64
	var blob []byte
	err := DB.QueryRow(stmt).Scan(&block, &blob)
	if err == sql.ErrNoRows {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load latest protocol snapshot: %w", err)
	}

	var stats types.ProtocolStats
	if err := json.Unmarshal(blob, &stats); err != nil {
		return 0, nil, fmt.Errorf("failed to unmarshal protocol stats: %w", err)
	}
	return uint64(block), &stats, nil
}

// SaveBreakerTrip records a circuit breaker trip.
func SaveBreakerTrip(block uint64, utilization string) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	stmt := `
        INSERT INTO breaker_trips (block_height, utilization)
        VALUES ($1, $2)
        RETURNING trip_id;`

	var tripID int64
	err := DB.QueryRow(stmt, int64(block), utilization).Scan(&tripID)
	if err != nil {
		return fmt.Errorf("failed to insert breaker trip: %w", err)
	}

	log.Warn().
		Int64("trip_id", tripID).
		Uint64("block", block).
		Str("utilization", utilization).
		Msg("Saved circuit breaker trip")
	return nil
}

// ResolveBreakerTrips marks all unresolved trips resolved.
func ResolveBreakerTrips() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	stmt := `
        UPDATE breaker_trips
        SET resolved = TRUE, resolved_at = CURRENT_TIMESTAMP
        WHERE resolved = FALSE;`

	_, err := DB.Exec(stmt)
	if err != nil {
		return fmt.Errorf("failed to resolve breaker trips: %w", err)
	}
	return nil
}
