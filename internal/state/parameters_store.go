// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tenexium/tenex-core/internal/config"
)

// SaveProtocolParams persists a new version of the protocol parameters.
// When makeActive is true the previously active row is deactivated in the
// same transaction so exactly one row is active at any time.
func SaveProtocolParams(params config.ProtocolParams, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	blob, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal protocol parameters: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE protocol_parameters SET is_active = FALSE WHERE is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters: %w", err)
		}
	}

	stmt := `
        INSERT INTO protocol_parameters (version, is_active, activated_at, created_at, params)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING params_id;`

	var paramsID int64
	currentTime := time.Now()
	err = tx.QueryRow(stmt, version, makeActive, currentTime, currentTime, blob).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert protocol parameters: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved protocol parameters")
	return paramsID, nil
}

// LoadActiveParams loads the currently active protocol parameters.
// Returns (nil, nil) when no row has been activated yet so callers can
// fall back to defaults on a fresh database.
func LoadActiveParams() (*config.ProtocolParams, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	stmt := `
        SELECT params FROM protocol_parameters
        WHERE is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var blob []byte
	err := DB.QueryRow(stmt).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active protocol parameters: %w", err)
	}

	var params config.ProtocolParams
	if err := json.Unmarshal(blob, &params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal protocol parameters: %w", err)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("stored protocol parameters are invalid: %w", err)
	}
	return &params, nil
}

// NextParamsVersion returns one past the highest stored version.
func NextParamsVersion() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var maxVersion sql.NullInt64
	err := DB.QueryRow(`SELECT MAX(version) FROM protocol_parameters;`).Scan(&maxVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to query parameter versions: %w", err)
	}
	if !maxVersion.Valid {
		return 1, nil
	}
	return int(maxVersion.Int64) + 1, nil
}
