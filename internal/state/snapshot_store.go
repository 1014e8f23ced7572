package state

import (
	"encoding/json"
	"fmt"

	"github.com/elys-network/stratvault/internal/types"
)

// SaveRebalanceSnapshot saves a committed rebalance to the database.
func (s *Store) SaveRebalanceSnapshot(snapshot types.RebalanceSnapshot) (int64, error) {
	receiptsJSON, err := json.Marshal(snapshot.Receipts)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal receipts: %w", err)
	}

	query := `
		INSERT INTO rebalance_snapshots (
			rebalance_id, rebalance_number, vault_address, underlying, snapshot_unix_ms,
			from_strategy, to_strategy,
			value_before_ut, value_after_ut, idle_after_ut, total_supply,
			receipts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING snapshot_id`

	var snapshotID int64
	err = s.db.QueryRow(
		query,
		snapshot.RebalanceID, snapshot.RebalanceNumber, snapshot.Vault.Hex(), snapshot.Underlying.Hex(), snapshot.Timestamp.UnixMilli(),
		snapshot.FromStrategy.Hex(), snapshot.ToStrategy.Hex(),
		amountString(snapshot.ValueBeforeUT), amountString(snapshot.ValueAfterUT), amountString(snapshot.IdleAfterUT), amountString(snapshot.TotalSupply),
		string(receiptsJSON),
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save rebalance snapshot: %w", err)
	}

	s.log.Info().
		Int64("snapshot_id", snapshotID).
		Str("rebalance_id", snapshot.RebalanceID).
		Str("vault", snapshot.Vault.Hex()).
		Int("rebalance_number", snapshot.RebalanceNumber).
		Msg("Rebalance snapshot saved to database")
	return snapshotID, nil
}
