// ./internal/state/event_store.go
package state

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/tenexium/tenex-core/internal/types"
)

// SaveEvent records an operation event. Called after every mutating
// protocol operation; the in-memory state is authoritative, so a failed
// insert is reported but must not abort the operation itself.
func SaveEvent(ev types.OperationEvent) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	stmt := `
        INSERT INTO operation_events (event_id, event_timestamp, block_height, kind, user_address, pair_id, payload)
        VALUES ($1, $2, $3, $4, $5, $6, $7);`

	var user sql.NullString
	if ev.User != "" {
		user = sql.NullString{String: ev.User, Valid: true}
	}
	var pairID sql.NullInt32
	if ev.PairID != nil {
		pairID = sql.NullInt32{Int32: int32(*ev.PairID), Valid: true}
	}
	var payload interface{}
	if len(ev.Payload) > 0 {
		payload = ev.Payload
	}

	_, err := DB.Exec(stmt, ev.ID, ev.Timestamp, int64(ev.Block), ev.Kind, user, pairID, payload)
	if err != nil {
		return fmt.Errorf("failed to insert operation event %s: %w", ev.Kind, err)
	}
	return nil
}

// RecentEvents returns the most recent operation events, newest first.
// kind filters when non-empty; limit is clamped to [1, 500].
func RecentEvents(kind string, limit int) ([]types.OperationEvent, error) {
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
        SELECT event_id, event_timestamp, block_height, kind, user_address, pair_id, payload
        FROM operation_events
        WHERE ($1 = '' OR kind = $1)
        ORDER BY event_timestamp DESC
        LIMIT $2;`

	rows, err := DB.Query(stmt, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation events: %w", err)
	}
	defer rows.Close()

	var events []types.OperationEvent
	for rows.Next() {
		var (
			ev      types.OperationEvent
			id      uuid.UUID
			block   int64
			user    sql.NullString
			pairID  sql.NullInt32
			payload []byte
		)
		if err := rows.Scan(&id, &ev.Timestamp, &block, &ev.Kind, &user, &pairID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan operation event: %w", err)
		}
		ev.ID = id
		ev.Block = uint64(block)
		if user.Valid {
			ev.User = user.String
		}
		if pairID.Valid {
			p := types.PairID(pairID.Int32)
			ev.PairID = &p
		}
		ev.Payload = payload
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operation events: %w", err)
	}
	return events, nil
}
