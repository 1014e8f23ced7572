/*

This file manages the persistent keeper run counter.
The counter is stored in the database to ensure continuity across restarts.

*/

package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCurrentRunNumber retrieves the current run number from the database
func (s *Store) GetCurrentRunNumber() (int, error) {
	var current int
	err := s.db.QueryRow(`SELECT current_run FROM run_counter WHERE id = 1`).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// EnsureSchema inserts the row; a missing row means it was never run
			s.log.Warn().Msg("No run counter row found, initializing to 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current run number: %w", err)
	}
	return current, nil
}

// IncrementRunNumber increments the run counter and returns the new value
func (s *Store) IncrementRunNumber() (int, error) {
	var next int
	err := s.db.QueryRow(`
		UPDATE run_counter
		SET current_run = current_run + 1,
		    updated_unix_ms = $1
		WHERE id = 1
		RETURNING current_run`, time.Now().UnixMilli()).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to increment run number: %w", err)
	}
	s.log.Debug().Int("run", next).Msg("Incremented run counter")
	return next, nil
}

// ResetRunNumber resets the run counter to a specific value (for testing/maintenance)
func (s *Store) ResetRunNumber(run int) error {
	if run < 0 {
		return fmt.Errorf("run number cannot be negative: %d", run)
	}
	result, err := s.db.Exec(`
		UPDATE run_counter
		SET current_run = $1,
		    updated_unix_ms = $2
		WHERE id = 1`, run, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to reset run number to %d: %w", run, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated when resetting run number")
	}
	s.log.Warn().Int("run", run).Msg("Reset run counter")
	return nil
}
